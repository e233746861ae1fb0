package core

import (
	"net/http"
	"time"
)

// MaxIdempotencyKeyLength bounds client supplied idempotency keys.
const MaxIdempotencyKeyLength = 255

// IdempotencyStatus tracks whether the protected handler has finished
type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "pending"
	IdempotencyCompleted IdempotencyStatus = "completed"
)

// StoredResponse is the response captured for idempotent replays
type StoredResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Successful reports whether the response is in the 2xx range
func (r StoredResponse) Successful() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// IdempotencyRecord is a cached request/response pair keyed by idempotency key
type IdempotencyRecord struct {
	Key         string            `json:"key"`
	RequestHash string            `json:"request_hash"`
	Status      IdempotencyStatus `json:"status"`
	Response    StoredResponse    `json:"response"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Expired reports whether the record is no longer live at now
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
