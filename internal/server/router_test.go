package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chungtau/mti-gateway/internal/auth"
	"github.com/chungtau/mti-gateway/internal/config"
	"github.com/chungtau/mti-gateway/internal/handler"
	"github.com/chungtau/mti-gateway/internal/middleware"
	"github.com/chungtau/mti-gateway/internal/model"
	"github.com/chungtau/mti-gateway/internal/notify"
	"github.com/chungtau/mti-gateway/internal/payout"
	"github.com/chungtau/mti-gateway/internal/processor"
	"github.com/chungtau/mti-gateway/internal/store"
)

const secret = "router-test-secret"

// fixedRandom always captures and always yields approval code "000000".
type fixedRandom struct{}

func (fixedRandom) Float64() float64 { return 0.1 }
func (fixedRandom) IntN(int) int     { return 0 }

func newMockRouter(t *testing.T) (http.Handler, *processor.Processor) {
	t.Helper()
	mem := store.NewMemory()
	store.SeedMemory(mem)
	hub := notify.NewHub(zerolog.Nop())
	proc := processor.New(mem, mem, hub, payout.NewRouter(payout.SimulatedBank{}, payout.SimulatedCrypto{}),
		processor.WithLatencies(0, 0),
		processor.WithRandom(fixedRandom{}),
	)
	t.Cleanup(proc.Wait)

	cfg := &config.Config{JWTSecret: secret, SubscriberBuffer: 8, DefaultCurrency: "USD"}
	r := SetupRouter(cfg, RouterDeps{
		Transactions: proc,
		Hub:          hub,
		Idempotency:  store.NewMemoryIdempotency(),
		Health:       map[string]handler.Pinger{"redis": nil},
		Logger:       zerolog.Nop(),
	})
	return r, proc
}

func token(t *testing.T, merchantID string) string {
	t.Helper()
	tok, _, err := auth.Issue(secret, merchantID, "", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return "Bearer " + tok
}

const submitBody = `{
	"cardHolderName": "Jane Doe",
	"cardNumber": "4532015112830366",
	"expiry": "12/29",
	"cvv": "123",
	"amount": 150.00,
	"protocolId": "101.1",
	"authCode": "1234",
	"online": true
}`

func submit(t *testing.T, r http.Handler, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/transactions", strings.NewReader(submitBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token(t, "MERCH_BANK_001"))
	if key != "" {
		req.Header.Set(middleware.IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_SubmitRunsToPayout(t *testing.T) {
	r, proc := newMockRouter(t)

	w := submit(t, r, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var accepted handler.SubmitTransactionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}

	proc.Wait()

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions/"+accepted.TransactionID, nil)
	req.Header.Set("Authorization", token(t, "MERCH_BANK_001"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var tx model.Transaction
	if err := json.Unmarshal(w.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tx.Status != model.StatusPayoutInitiated || tx.PayoutMethod != model.PayoutBank {
		t.Errorf("unexpected final record %+v", tx)
	}
	if tx.CardNumber != "************0366" {
		t.Errorf("expected masked card, got %q", tx.CardNumber)
	}
}

func TestRouter_IdempotentSubmit(t *testing.T) {
	r, proc := newMockRouter(t)

	first := submit(t, r, "key-1")
	second := submit(t, r, "key-1")
	proc.Wait()

	if second.Header().Get("X-Idempotency-Hit") != "true" {
		t.Fatal("expected replayed response")
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("replay differs: %s vs %s", first.Body.String(), second.Body.String())
	}
}

func TestRouter_RequiresAuth(t *testing.T) {
	r, _ := newMockRouter(t)

	for _, path := range []string{"/v1/transactions", "/v1/protocols", "/v1/events"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health: expected 200, got %d", w.Code)
	}
}

func TestRouter_DevTokenOnlyInDevMode(t *testing.T) {
	r, _ := newMockRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/dev/token", strings.NewReader(`{}`)))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 outside dev mode, got %d", w.Code)
	}
}
