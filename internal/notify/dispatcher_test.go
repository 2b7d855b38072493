package notify

import (
	"context"
	"errors"
	"testing"

	"wanotify/internal/ledger"
	"wanotify/internal/session"
	"wanotify/internal/testutil/testlog"
)

type stubSender struct {
	err   error
	calls []string
}

func (s *stubSender) Send(_ context.Context, recipient, body string) error {
	s.calls = append(s.calls, recipient+"|"+body)
	return s.err
}

func TestNotifySuccessRecordsSent(t *testing.T) {
	testlog.Start(t)
	sender := &stubSender{}
	led := ledger.NewMemoryLedger()
	d := NewDispatcher(sender, led)

	rec, err := d.Notify(context.Background(), "0821741742", "halo", ledger.KindManual, nil)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if rec.Outcome != ledger.OutcomeSent {
		t.Fatalf("unexpected outcome: %v", rec.Outcome)
	}
	if rec.Recipient != "62821741742" {
		t.Fatalf("recipient not normalized: %q", rec.Recipient)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "62821741742|halo" {
		t.Fatalf("unexpected send calls: %v", sender.calls)
	}
	rows, _ := led.Query(context.Background(), ledger.Filter{})
	if len(rows) != 1 || rows[0].Outcome != ledger.OutcomeSent {
		t.Fatalf("ledger not updated: %+v", rows)
	}
}

func TestNotifyNotReadyStillAppendsFailedRecord(t *testing.T) {
	testlog.Start(t)
	sender := &stubSender{err: session.ErrNotReady}
	led := ledger.NewMemoryLedger()
	d := NewDispatcher(sender, led)

	rec, err := d.Notify(context.Background(), "0821", "halo", ledger.KindTest, nil)
	if !errors.Is(err, session.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if rec.Outcome != ledger.OutcomeFailed || rec.FailureReason == "" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	rows, _ := led.Query(context.Background(), ledger.Filter{})
	if len(rows) != 1 || rows[0].Outcome != ledger.OutcomeFailed {
		t.Fatalf("failed record missing from ledger: %+v", rows)
	}
}

type failingLedger struct{}

func (failingLedger) Append(context.Context, ledger.Record) error {
	return errors.New("datastore down")
}

func (failingLedger) Query(context.Context, ledger.Filter) ([]ledger.Record, error) {
	return nil, errors.New("datastore down")
}

func TestNotifyLedgerFailureDoesNotMaskOutcome(t *testing.T) {
	testlog.Start(t)
	sender := &stubSender{}
	d := NewDispatcher(sender, failingLedger{})

	rec, err := d.Notify(context.Background(), "0821", "halo", ledger.KindManual, nil)
	if err != nil {
		t.Fatalf("ledger failure must not surface as send failure: %v", err)
	}
	if rec.Outcome != ledger.OutcomeSent {
		t.Fatalf("unexpected outcome: %v", rec.Outcome)
	}
}

func TestNotifyEmptyRecipient(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher(&stubSender{}, ledger.NewMemoryLedger())
	if _, err := d.Notify(context.Background(), "---", "halo", ledger.KindManual, nil); !errors.Is(err, ErrEmptyRecipient) {
		t.Fatalf("expected ErrEmptyRecipient, got %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	testlog.Start(t)
	cases := []struct{ in, want string }{
		{"082217417425", "6282217417425"},
		{"6282217417425", "6282217417425"},
		{"+62 822-1741-7425", "6282217417425"},
		{"82217417425", "6282217417425"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
