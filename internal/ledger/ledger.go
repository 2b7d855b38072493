// Package ledger is the append-only audit store of notification attempts.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRecord = errors.New("ledger: invalid record")

// EventKind mirrors the upstream webhook event taxonomy.
type EventKind string

const (
	KindPaymentReceived EventKind = "payment.received"
	KindTest            EventKind = "test_event"
	KindManual          EventKind = "manual_send"
	KindRedirect        EventKind = "redirect"
	KindOther           EventKind = "other"
)

func (k EventKind) Valid() bool {
	switch k {
	case KindPaymentReceived, KindTest, KindManual, KindRedirect, KindOther:
		return true
	}
	return false
}

// Outcome is the delivery status of one record.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
)

// Record is one notification attempt. Once the outcome is terminal the
// record is immutable.
type Record struct {
	ID            string          `json:"id"`
	Recipient     string          `json:"recipient"`
	Body          string          `json:"body"`
	Kind          EventKind       `json:"kind"`
	Outcome       Outcome         `json:"outcome"`
	FailureReason string          `json:"failure_reason,omitempty"`
	WebhookData   json.RawMessage `json:"webhook_data,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.Recipient) == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidRecord)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidRecord, r.Kind)
	}
	switch r.Outcome {
	case OutcomePending, OutcomeSent, OutcomeFailed:
	default:
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidRecord, r.Outcome)
	}
	return nil
}

// Filter selects records for Query. A zero Filter matches everything.
type Filter struct {
	Recipient string
	Limit     int
}

// Ledger appends delivery records and queries them most recent first.
type Ledger interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, f Filter) ([]Record, error)
}
