package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"wanotify/internal/config"
	"wanotify/internal/directory"
	"wanotify/internal/ledger"
	"wanotify/internal/notify"
	"wanotify/internal/session"
	"wanotify/internal/signature"
	"wanotify/internal/testutil/testlog"
	"wanotify/internal/webhook"
)

type fixture struct {
	server    *Server
	manager   *session.Manager
	transport *session.Loopback
	ledger    *ledger.MemoryLedger
	directory *directory.MemoryDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	transport := &session.Loopback{PairingCode: []byte("test-pairing")}
	creds, err := session.NewFileCredentialStore(t.TempDir(), "test", "")
	if err != nil {
		t.Fatalf("credential store: %v", err)
	}
	manager := session.NewManager(transport, creds, session.Config{
		ReconnectDelay: 20 * time.Millisecond,
		ReinitDelay:    20 * time.Millisecond,
	})
	t.Cleanup(func() { _ = manager.Close() })

	led := ledger.NewMemoryLedger()
	dir := directory.NewMemoryDirectory(directory.Subscriber{
		Identifier: "6282217417425",
		ExpiresOn:  time.Now().AddDate(1, 0, 0).Format("20060102"),
	})
	dispatcher := notify.NewDispatcher(manager, led)
	processor := webhook.NewProcessor(dispatcher, dir)

	cfg := config.Config{}
	cfg.ApplyDefaults()
	cfg.WhatsApp.Passphrase = "hunter2"
	cfg.WhatsApp.SendTimeout = config.Duration{Duration: time.Second}

	srv := New(cfg, Deps{
		Session:   manager,
		Notifier:  dispatcher,
		Processor: processor,
		Ledger:    led,
		Directory: dir,
	})
	return &fixture{
		server:    srv,
		manager:   manager,
		transport: transport,
		ledger:    led,
		directory: dir,
	}
}

func (f *fixture) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline; session state %v", f.manager.Status().State)
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.manager.Initialize()
	f.waitFor(t, func() bool {
		return f.manager.Status().State == session.StateAwaitingPairing
	})
	conn, ok := f.transport.LastConn()
	if !ok {
		t.Fatal("no loopback connection")
	}
	conn.ConfirmPairing()
	f.waitFor(t, func() bool { return f.manager.Status().Ready() })
}

func (f *fixture) do(t *testing.T, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthReportsSessionState(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" || body["whatsapp"] != "uninitialized" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestStatusReflectsConnection(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	body := decodeBody(t, f.do(t, http.MethodGet, "/status", nil, nil))
	if body["state"] != "connected" || body["ready"] != true {
		t.Fatalf("unexpected status body: %v", body)
	}
}

func TestLoginShowsQRWhilePairing(t *testing.T) {
	f := newFixture(t)
	f.manager.Initialize()
	f.waitFor(t, func() bool {
		return f.manager.Status().State == session.StateAwaitingPairing
	})
	w := f.do(t, http.MethodGet, "/login", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "data:image/png;base64,") {
		t.Fatalf("QR data URL missing from page:\n%s", w.Body.String())
	}
}

func TestLoginWhenConnected(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	w := f.do(t, http.MethodGet, "/login", nil, nil)
	if !strings.Contains(w.Body.String(), "paired and ready") {
		t.Fatalf("expected connected page:\n%s", w.Body.String())
	}
}

func TestWebhookTestEventWithoutSignature(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	payload := []byte(`{"event": "test_event", "data": {"message": "probe"}}`)
	w := f.do(t, http.MethodPost, "/webhook/lynk/082217417425/merchant-key", payload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d (%s)", w.Code, w.Body.String())
	}

	rows, _ := f.ledger.Query(context.Background(), ledger.Filter{})
	if len(rows) != 1 || rows[0].Outcome != ledger.OutcomeSent || rows[0].Kind != ledger.KindTest {
		t.Fatalf("unexpected ledger rows: %+v", rows)
	}
	conn, _ := f.transport.LastConn()
	sent := conn.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "TEST WEBHOOK BERHASIL") {
		t.Fatalf("unexpected delivery: %+v", sent)
	}
}

func TestWebhookValidPaymentSignature(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	key := "merchant-key"
	sig := signature.Compute(signature.Params{Amount: "50000", RefID: "R1", MessageID: "M1"}, key)
	payload := []byte(`{
		"event": "payment.received",
		"data": {
			"message_id": "M1",
			"message_data": {
				"refId": "R1",
				"totals": {"grandTotal": 50000},
				"customer": {"name": "Budi"}
			}
		}
	}`)
	w := f.do(t, http.MethodPost, "/webhook/lynk/082217417425/"+key, payload, map[string]string{
		"x-lynk-signature": sig,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d (%s)", w.Code, w.Body.String())
	}
	conn, _ := f.transport.LastConn()
	sent := conn.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "Rp 50.000") {
		t.Fatalf("unexpected delivery: %+v", sent)
	}
}

func TestWebhookTamperedSignatureRejected(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	key := "merchant-key"
	sig := signature.Compute(signature.Params{Amount: "50001", RefID: "R1", MessageID: "M1"}, key)
	payload := []byte(`{
		"event": "payment.received",
		"data": {
			"message_id": "M1",
			"message_data": {"refId": "R1", "totals": {"grandTotal": 50000}}
		}
	}`)
	w := f.do(t, http.MethodPost, "/webhook/lynk/082217417425/"+key, payload, map[string]string{
		"x-signature": sig,
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d (%s)", w.Code, w.Body.String())
	}
	rows, _ := f.ledger.Query(context.Background(), ledger.Filter{})
	if len(rows) != 0 {
		t.Fatalf("rejected webhook must leave no records: %+v", rows)
	}
}

func TestWebhookSignatureFromBodyField(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	key := "merchant-key"
	sig := signature.Compute(signature.Params{Amount: "50000", RefID: "R1", MessageID: "M1"}, key)
	payload := []byte(fmt.Sprintf(`{
		"event": "payment.received",
		"signature": %q,
		"data": {
			"message_id": "M1",
			"message_data": {"refId": "R1", "totals": {"grandTotal": 50000}}
		}
	}`, sig))
	w := f.do(t, http.MethodPost, "/webhook/lynk/082217417425/"+key, payload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d (%s)", w.Code, w.Body.String())
	}
}

func TestSendHappyPath(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	target := "/send?nm=082217417425&m=" + url.QueryEscape("halo dunia")
	w := f.do(t, http.MethodGet, target, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "sent" || body["number"] != "6282217417425" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSendWhileReconnectingFailsFastAndIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	conn, _ := f.transport.LastConn()
	f.transport.DialErr = fmt.Errorf("network unreachable")
	conn.Drop(fmt.Errorf("stream error"))
	f.waitFor(t, func() bool {
		return f.manager.Status().State == session.StateReconnecting
	})

	start := time.Now()
	w := f.do(t, http.MethodGet, "/send?nm=0821&m=halo", nil, nil)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("send did not fail fast: %v", elapsed)
	}
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "error" {
		t.Fatalf("unexpected body: %v", body)
	}

	rows, _ := f.ledger.Query(context.Background(), ledger.Filter{})
	if len(rows) != 1 || rows[0].Outcome != ledger.OutcomeFailed {
		t.Fatalf("failed send must be recorded: %+v", rows)
	}
}

func TestRedirectDefaultsTargetAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	w := f.do(t, http.MethodGet, "/redirect", nil, nil)
	if w.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != defaultRedirectURL {
		t.Fatalf("unexpected redirect target: %q", loc)
	}

	conn, _ := f.transport.LastConn()
	sent := conn.Sent()
	if len(sent) != 1 || sent[0].Body != "hallo_ada_orderan_dari_lynk" {
		t.Fatalf("expected default notification, got %+v", sent)
	}
	rows, _ := f.ledger.Query(context.Background(), ledger.Filter{})
	if len(rows) != 1 || rows[0].Kind != ledger.KindRedirect {
		t.Fatalf("redirect must be recorded: %+v", rows)
	}
}

func TestRedirectHonorsURLParameter(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	w := f.do(t, http.MethodGet, "/redirect?url="+url.QueryEscape("https://example.com/x"), nil, nil)
	if w.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://example.com/x" {
		t.Fatalf("unexpected redirect target: %q", loc)
	}
}

func TestMessagesFilterByPhone(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.do(t, http.MethodGet, "/send?nm=0821&m=a", nil, nil)
	f.do(t, http.MethodGet, "/send?nm=0822&m=b", nil, nil)

	body := decodeBody(t, f.do(t, http.MethodGet, "/messages?phone=0821", nil, nil))
	if body["count"] != float64(1) {
		t.Fatalf("unexpected count: %v", body)
	}
}

func TestUserLifecycle(t *testing.T) {
	f := newFixture(t)

	create := []byte(`{"nama": "081234567890", "endDate": "20301231"}`)
	w := f.do(t, http.MethodPost, "/user", create, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("create failed: %d (%s)", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/user/081234567890", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup failed: %d", w.Code)
	}

	update := []byte(`{"endDate": "20351231"}`)
	w = f.do(t, http.MethodPut, "/user/081234567890", update, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("update failed: %d (%s)", w.Code, w.Body.String())
	}

	update = []byte(`{"expires_on": "2036-06-30"}`)
	w = f.do(t, http.MethodPut, "/user/081234567890", update, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("update with expires_on failed: %d (%s)", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/user/081234567890/check-expiration", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("check-expiration failed: %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["expired"] != false {
		t.Fatalf("unexpected expiration: %v", body)
	}

	w = f.do(t, http.MethodGet, "/user/089999999999", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown user should 404: %d", w.Code)
	}
}

func TestConfigRedactsPassphrase(t *testing.T) {
	f := newFixture(t)
	body := decodeBody(t, f.do(t, http.MethodGet, "/config", nil, nil))
	wa, ok := body["whatsapp"].(map[string]any)
	if !ok {
		t.Fatalf("missing whatsapp section: %v", body)
	}
	if wa["passphrase"] != "********" {
		t.Fatalf("passphrase not redacted: %v", wa)
	}

	w := f.do(t, http.MethodGet, "/config/nope", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown section should 404: %d", w.Code)
	}
}
