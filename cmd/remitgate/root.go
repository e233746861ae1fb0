package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "remitgate",
		Short: "Request-safety gateway for wallet-authenticated remittance APIs",
		Long: `remitgate fronts a remittance API with wallet login, sealed session
cookies, idempotent writes and per-client rate limiting.

Configuration is read from the environment, optionally seeded from
.env and .env.local in the working directory.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newKeygenCmd(), newSignCmd())
	return root
}
