// Package webhook applies the inbound payment-webhook policy: verify,
// check eligibility, format, dispatch, and decide the HTTP answer.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"wanotify/internal/directory"
	"wanotify/internal/ledger"
	"wanotify/internal/notify"
	"wanotify/internal/observability"
	"wanotify/internal/signature"
)

// Subscription notices, verbatim from the production bot.
const (
	msgNotRegistered = "Nomor Anda belum terdaftar. Silakan daftar terlebih dahulu untuk menggunakan layanan kami."
	msgExpired       = "Langganan Anda telah berakhir. Silakan perpanjang untuk melanjutkan menggunakan layanan kami."
)

// Notifier is the dispatch primitive the processor forwards to.
type Notifier interface {
	Notify(ctx context.Context, recipient, body string, kind ledger.EventKind, webhookData json.RawMessage) (ledger.Record, error)
}

// Request is one inbound webhook call, already decoded from HTTP.
type Request struct {
	Recipient   string
	MerchantKey string
	Event       string
	Data        json.RawMessage
	Signature   string
	RawBody     json.RawMessage
}

// Outcome is the HTTP answer the processor decided on.
type Outcome struct {
	Status int
	Body   map[string]any
}

type Processor struct {
	notifier Notifier
	dir      directory.Directory
	now      func() time.Time
}

func NewProcessor(notifier Notifier, dir directory.Directory) *Processor {
	return &Processor{notifier: notifier, dir: dir, now: time.Now}
}

// Handle runs the webhook policy. The upstream sender retries on non-200,
// so only authorization and malformed-payload failures answer with an
// error status; a failed downstream delivery still acknowledges receipt.
func (p *Processor) Handle(ctx context.Context, req Request) Outcome {
	event := strings.TrimSpace(req.Event)
	if event == "" {
		observability.RecordWebhookEvent("(none)", "ignored")
		return Outcome{Status: 200, Body: map[string]any{
			"status":  "ignored",
			"message": "Webhook ignored: missing event",
		}}
	}

	kind := eventKind(event)
	webhookData := req.RawBody

	if kind == ledger.KindPaymentReceived {
		if req.Data == nil {
			observability.RecordWebhookEvent(event, "malformed")
			return Outcome{Status: 400, Body: map[string]any{
				"status":  "error",
				"message": "Malformed payload: missing data",
			}}
		}
		if req.Signature != "" {
			if !p.verifyPayment(req) {
				observability.RecordWebhookEvent(event, "unauthorized")
				return Outcome{Status: 401, Body: map[string]any{
					"error": "Unauthorized: Invalid signature",
				}}
			}
		} else {
			// Unsigned payment webhooks are processed by policy, but the
			// skipped verification is kept visible in the audit trail.
			webhookData = unverifiedNote(req.RawBody)
			log.Warn().Str("event", event).Msg("webhook_signature_missing")
		}
	}

	recipient := notify.NormalizePhone(req.Recipient)
	if recipient == "" {
		observability.RecordWebhookEvent(event, "malformed")
		return Outcome{Status: 400, Body: map[string]any{
			"status":  "error",
			"message": "Malformed payload: missing recipient",
		}}
	}

	now := p.now()
	sub, err := p.dir.Find(recipient)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		_, _ = p.notifier.Notify(ctx, recipient, msgNotRegistered, ledger.KindManual, nil)
		observability.RecordWebhookEvent(event, "notice_sent")
		return p.processed(event, "recipient not registered; notice sent")
	case err != nil:
		// Directory trouble must not trigger upstream retries.
		log.Error().Err(err).Str("recipient", recipient).Msg("webhook_directory_lookup_failed")
		return p.processed(event, "subscriber lookup unavailable")
	case !sub.Active(now):
		_, _ = p.notifier.Notify(ctx, recipient, msgExpired, ledger.KindManual, nil)
		observability.RecordWebhookEvent(event, "notice_sent")
		return p.processed(event, "subscription expired; notice sent")
	}

	var body string
	switch kind {
	case ledger.KindPaymentReceived:
		body = notify.FormatPayment(req.Data, now)
	case ledger.KindTest:
		body = notify.FormatTest(req.Data, now)
	default:
		body = notify.FormatGeneric(event, req.Data, now)
	}

	if _, err := p.notifier.Notify(ctx, recipient, body, kind, webhookData); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("webhook_dispatch_failed")
	}
	observability.RecordWebhookEvent(event, "processed")
	return p.processed(event, "Webhook processed successfully for event: "+event)
}

func (p *Processor) processed(event, message string) Outcome {
	return Outcome{Status: 200, Body: map[string]any{
		"status":    "ok",
		"message":   message,
		"event":     event,
		"timestamp": p.now().Format(time.RFC3339),
	}}
}

func (p *Processor) verifyPayment(req Request) bool {
	var payload struct {
		MessageID   string `json:"message_id"`
		MessageData struct {
			RefID  string `json:"refId"`
			Totals struct {
				GrandTotal *float64 `json:"grandTotal"`
			} `json:"totals"`
		} `json:"message_data"`
	}
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		return false
	}
	if payload.MessageData.Totals.GrandTotal == nil {
		return false
	}
	params := signature.Params{
		Amount:    signature.AmountString(*payload.MessageData.Totals.GrandTotal),
		RefID:     payload.MessageData.RefID,
		MessageID: payload.MessageID,
	}
	return signature.Verify(params, req.MerchantKey, req.Signature)
}

func eventKind(event string) ledger.EventKind {
	switch event {
	case "payment.received":
		return ledger.KindPaymentReceived
	case "test_event":
		return ledger.KindTest
	case "manual_send":
		return ledger.KindManual
	case "redirect":
		return ledger.KindRedirect
	default:
		return ledger.KindOther
	}
}

func unverifiedNote(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		raw = json.RawMessage("null")
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{
		"note": json.RawMessage(`"signature missing; processed without verification"`),
		"body": raw,
	})
	if err != nil {
		return raw
	}
	return wrapped
}
