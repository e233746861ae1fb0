package ports

import (
	"context"

	"github.com/layer-3/remitgate/core"
)

// TransferLedger records remittance transfers
type TransferLedger interface {
	Submit(ctx context.Context, transfer core.Transfer) (core.Transfer, error)
	List(ctx context.Context, identity string) ([]core.Transfer, error)
}
