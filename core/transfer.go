package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is a remittance request recorded on behalf of an identity
type Transfer struct {
	ID          string          `json:"id"`
	Identity    string          `json:"identity"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Asset       string          `json:"asset"`
	Memo        string          `json:"memo,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
