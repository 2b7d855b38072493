package notify

import (
	"encoding/json"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var idPrinter = message.NewPrinter(language.Indonesian)

// FormatCurrency groups an amount the Indonesian way: 50000 -> 50.000.
func FormatCurrency(amount float64) string {
	return idPrinter.Sprintf("%v", number.Decimal(amount))
}

// FormatDate renders a timestamp for the id-ID audience.
func FormatDate(t time.Time) string {
	return t.Format("2/1/2006, 15.04.05")
}

type paymentPayload struct {
	MessageID   string `json:"message_id"`
	MessageData struct {
		RefID     string `json:"refId"`
		CreatedAt string `json:"createdAt"`
		Totals    struct {
			GrandTotal *float64 `json:"grandTotal"`
		} `json:"totals"`
		Customer struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Phone string `json:"phone"`
		} `json:"customer"`
	} `json:"message_data"`
}

// FormatPayment builds the payment-received notification. A payload that
// is missing the structured fields falls back to a raw dump so the
// notification still carries the evidence.
func FormatPayment(data json.RawMessage, now time.Time) string {
	var p paymentPayload
	if err := json.Unmarshal(data, &p); err != nil ||
		p.MessageData.RefID == "" || p.MessageData.Totals.GrandTotal == nil {
		return "🎉 PEMBAYARAN DITERIMA!\n\n📄 Raw Data: " + rawDump(data)
	}

	created := now
	if t, err := time.Parse(time.RFC3339, p.MessageData.CreatedAt); err == nil {
		created = t
	}
	return "🎉 PEMBAYARAN DITERIMA!\n\n" +
		"💰 Jumlah: Rp " + FormatCurrency(*p.MessageData.Totals.GrandTotal) + "\n" +
		"📋 Ref ID: " + p.MessageData.RefID + "\n" +
		"👤 Customer: " + p.MessageData.Customer.Name + "\n" +
		"📧 Email: " + p.MessageData.Customer.Email + "\n" +
		"📱 Phone: " + p.MessageData.Customer.Phone + "\n" +
		"⏰ Waktu: " + FormatDate(created)
}

type testPayload struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// FormatTest builds the test-webhook notification.
func FormatTest(data json.RawMessage, now time.Time) string {
	var p testPayload
	_ = json.Unmarshal(data, &p)
	if p.Message == "" {
		p.Message = "No message"
	}
	ts := now
	if t, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
		ts = t
	}
	return "🧪 TEST WEBHOOK BERHASIL!\n\n" +
		"📋 Event: test_event\n" +
		"💬 Message: " + p.Message + "\n" +
		"⏰ Timestamp: " + FormatDate(ts)
}

// FormatGeneric builds the passthrough notification for events without a
// dedicated formatter.
func FormatGeneric(event string, data json.RawMessage, now time.Time) string {
	return "📨 WEBHOOK EVENT: " + event + "\n\n" +
		"📄 Data:\n" + rawDump(data) + "\n\n" +
		"⏰ Received: " + FormatDate(now)
}

func rawDump(data json.RawMessage) string {
	if len(data) == 0 {
		return "{}"
	}
	var pretty map[string]any
	if err := json.Unmarshal(data, &pretty); err != nil {
		return string(data)
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return string(data)
	}
	return string(out)
}
