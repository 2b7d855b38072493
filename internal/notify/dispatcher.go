// Package notify turns send requests into delivery attempts with an
// auditable outcome per attempt.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"wanotify/internal/ledger"
	"wanotify/internal/observability"
)

var ErrEmptyRecipient = errors.New("notify: empty recipient")

// Sender is the session send primitive the dispatcher serializes against.
type Sender interface {
	Send(ctx context.Context, recipient, body string) error
}

// Dispatcher normalizes recipients, forwards sends, and records every
// attempt in the ledger. It never retries a send; retry is the caller's
// call.
type Dispatcher struct {
	session Sender
	ledger  ledger.Ledger
}

func NewDispatcher(session Sender, l ledger.Ledger) *Dispatcher {
	return &Dispatcher{session: session, ledger: l}
}

// Notify performs exactly one delivery attempt and returns the settled
// record alongside the send error, if any. The record is appended to the
// ledger unconditionally; a ledger failure is logged and never replaces
// the send outcome.
func (d *Dispatcher) Notify(ctx context.Context, recipient, body string, kind ledger.EventKind, webhookData json.RawMessage) (ledger.Record, error) {
	normalized := NormalizePhone(recipient)
	if normalized == "" {
		return ledger.Record{}, ErrEmptyRecipient
	}

	now := time.Now()
	rec := ledger.Record{
		ID:          uuid.NewString(),
		Recipient:   normalized,
		Body:        body,
		Kind:        kind,
		Outcome:     ledger.OutcomePending,
		WebhookData: webhookData,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	sendErr := d.session.Send(ctx, normalized, body)
	if sendErr != nil {
		rec.Outcome = ledger.OutcomeFailed
		rec.FailureReason = sendErr.Error()
		log.Warn().Str("recipient", normalized).Str("kind", string(kind)).Err(sendErr).Msg("notify_send_failed")
	} else {
		rec.Outcome = ledger.OutcomeSent
		log.Info().Str("recipient", normalized).Str("kind", string(kind)).Msg("notify_sent")
	}
	rec.UpdatedAt = time.Now()
	observability.RecordDelivery(string(kind), string(rec.Outcome))

	if err := d.ledger.Append(ctx, rec); err != nil {
		log.Error().Str("record_id", rec.ID).Err(err).Msg("notify_ledger_append_failed")
	}
	return rec, sendErr
}
