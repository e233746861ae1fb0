package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/ports"
)

const (
	// DefaultAsset is used when a transfer request names none
	DefaultAsset = "USDC"
	// MaxAmountPlaces is the finest amount precision accepted
	MaxAmountPlaces = 7
	maxMemoLength   = 28
	maxDestLength   = 128
)

// TransferRequest is the client input for a new transfer
type TransferRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Asset       string `json:"asset"`
	Memo        string `json:"memo"`
}

// TransferService validates transfers before they reach the ledger
type TransferService struct {
	ledger ports.TransferLedger
}

// NewTransferService creates a transfer service
func NewTransferService(ledger ports.TransferLedger) *TransferService {
	return &TransferService{ledger: ledger}
}

// Submit validates req and records it for identity
func (s *TransferService) Submit(ctx context.Context, identity string, req TransferRequest) (core.Transfer, error) {
	transfer, err := parseTransfer(identity, req)
	if err != nil {
		return core.Transfer{}, err
	}

	recorded, err := s.ledger.Submit(ctx, transfer)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("submit transfer: %w", err)
	}
	return recorded, nil
}

// List returns the transfers submitted by identity
func (s *TransferService) List(ctx context.Context, identity string) ([]core.Transfer, error) {
	transfers, err := s.ledger.List(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return transfers, nil
}

func parseTransfer(identity string, req TransferRequest) (core.Transfer, error) {
	dest := strings.TrimSpace(req.Destination)
	if dest == "" || len(dest) > maxDestLength {
		return core.Transfer{}, core.NewValidationError("destination is required")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return core.Transfer{}, core.NewValidationError("amount must be a decimal number")
	}
	if !amount.IsPositive() {
		return core.Transfer{}, core.NewValidationError("amount must be positive")
	}
	if !amount.Equal(amount.Truncate(MaxAmountPlaces)) {
		return core.Transfer{}, core.NewValidationError(fmt.Sprintf("amount supports at most %d decimal places", MaxAmountPlaces))
	}

	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	if asset == "" {
		asset = DefaultAsset
	}
	if len(req.Memo) > maxMemoLength {
		return core.Transfer{}, core.NewValidationError(fmt.Sprintf("memo exceeds %d bytes", maxMemoLength))
	}

	return core.Transfer{
		Identity:    identity,
		Destination: dest,
		Amount:      amount,
		Asset:       asset,
		Memo:        req.Memo,
	}, nil
}
