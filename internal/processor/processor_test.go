package processor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chungtau/mti-gateway/internal/model"
	"github.com/chungtau/mti-gateway/internal/notify"
	"github.com/chungtau/mti-gateway/internal/payout"
)

// --- test doubles ---

type stubStore struct {
	mu      sync.Mutex
	records map[string]*model.Transaction
	history []model.Transaction
	failOn  func(*model.Transaction) error
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]*model.Transaction)}
}

func (s *stubStore) Save(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		if err := s.failOn(tx); err != nil {
			return err
		}
	}
	s.records[tx.TransactionID] = tx.Clone()
	s.history = append(s.history, *tx.Clone())
	return nil
}

func (s *stubStore) Get(_ context.Context, id string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.records[id]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (s *stubStore) ListByMerchant(_ context.Context, merchantID string, limit int) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range s.records {
		if tx.MerchantID == merchantID && len(out) < limit {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func (s *stubStore) statuses() []model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Status, 0, len(s.history))
	for _, tx := range s.history {
		out = append(out, tx.Status)
	}
	return out
}

type stubMerchants map[string]*model.MerchantPayoutSettings

func (m stubMerchants) PayoutSettings(_ context.Context, merchantID string) (*model.MerchantPayoutSettings, error) {
	s, ok := m[merchantID]
	if !ok {
		return nil, model.ErrMerchantNotFound
	}
	return s, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.NotificationEvent
	failOn func(model.NotificationEvent) error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev model.NotificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != nil {
		if err := p.failOn(ev); err != nil {
			return err
		}
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) mtis() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.MTI)
	}
	return out
}

type stubRandom struct {
	draw float64
	next int
}

func (r *stubRandom) Float64() float64 { return r.draw }

func (r *stubRandom) IntN(n int) int {
	r.next++
	return r.next % n
}

// --- fixtures ---

const merchantID = "MERCH_001"

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func bankMerchant() stubMerchants {
	return stubMerchants{merchantID: {
		MerchantID:          merchantID,
		DefaultPayoutMethod: model.PayoutBank,
		BankAccount:         model.BankAccount{AccountNumber: "000123", RoutingNumber: "110000", AccountHolderName: "Acme Ltd"},
	}}
}

func validRequest() model.SubmitRequest {
	return model.SubmitRequest{
		MerchantID:     merchantID,
		CardHolderName: "Jane Doe",
		CardNumber:     "4532 0151 1283 0366",
		Expiry:         "12/29",
		CVV:            "123",
		Amount:         decimal.RequireFromString("150.00"),
		ProtocolID:     "101.1",
		AuthCode:       "1234",
		Online:         true,
	}
}

func newTestProcessor(store Store, merchants MerchantDirectory, pub notify.Publisher, rnd Random) *Processor {
	router := payout.NewRouter(
		payout.SimulatedBank{Now: func() time.Time { return fixedNow }},
		payout.SimulatedCrypto{},
	)
	return New(store, merchants, pub, router,
		WithRandom(rnd),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "tx-1" }),
		WithLatencies(0, 0),
		WithLogger(zerolog.Nop()),
	)
}

// --- tests ---

func TestProcess_HappyPathBankPayout(t *testing.T) {
	store := newStubStore()
	pub := &recordingPublisher{}
	p := newTestProcessor(store, bankMerchant(), pub, &stubRandom{draw: 0.10})

	tx, err := p.Process(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.Status != model.StatusPayoutInitiated || tx.Stage != model.StagePayout {
		t.Fatalf("expected payout_initiated at payout stage, got %s/%d", tx.Status, tx.Stage)
	}
	if !regexp.MustCompile(`^[0-9A-Z]{6}$`).MatchString(tx.ApprovalCode) {
		t.Errorf("unexpected approval code %q", tx.ApprovalCode)
	}
	if tx.ResponseCode != "00" {
		t.Errorf("expected response code 00, got %q", tx.ResponseCode)
	}
	if tx.PayoutMethod != model.PayoutBank || tx.PayoutReference != "TXN_1709294400000" {
		t.Errorf("unexpected payout fields %s/%s", tx.PayoutMethod, tx.PayoutReference)
	}
	if !tx.PayoutAmount.Equal(decimal.RequireFromString("145.50")) {
		t.Errorf("expected net payout 145.50, got %s", tx.PayoutAmount)
	}
	if tx.Currency != DefaultCurrency {
		t.Errorf("expected default currency, got %q", tx.Currency)
	}

	wantStatuses := []model.Status{
		model.StatusSubmitted, model.StatusProcessing, model.StatusApproved,
		model.StatusProcessing, model.StatusCompleted, model.StatusPayoutInitiated,
	}
	if got := store.statuses(); !slices.Equal(got, wantStatuses) {
		t.Errorf("persisted statuses = %v, want %v", got, wantStatuses)
	}

	wantMTIs := []string{
		model.MTIAuthorizationRequest, model.MTIAuthorizationResponse,
		model.MTIFinancialRequest, model.MTIFinancialResponse, model.MTIPayout,
	}
	if got := pub.mtis(); !slices.Equal(got, wantMTIs) {
		t.Fatalf("published MTIs = %v, want %v", got, wantMTIs)
	}

	auth := pub.events[1]
	if auth.ApprovalCode != tx.ApprovalCode || auth.ResponseCode != "00" || auth.Status != model.StatusApproved {
		t.Errorf("unexpected 0110 event %+v", auth)
	}
	if auth.Message != "Authorization approved" {
		t.Errorf("unexpected 0110 message %q", auth.Message)
	}
	if pub.events[4].PayoutMethod != model.PayoutBank || pub.events[4].Status != model.StatusPayoutInitiated {
		t.Errorf("unexpected PAYOUT event %+v", pub.events[4])
	}
	for _, ev := range pub.events {
		if ev.MerchantID != merchantID || ev.TransactionID != "tx-1" {
			t.Errorf("event routed to wrong merchant or transaction: %+v", ev)
		}
	}
}

func TestProcess_NeverStoresFullCardNumber(t *testing.T) {
	store := newStubStore()
	p := newTestProcessor(store, bankMerchant(), &recordingPublisher{}, &stubRandom{draw: 0.10})

	if _, err := p.Process(context.Background(), validRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, rec := range store.history {
		if rec.CardNumber != "************0366" {
			t.Fatalf("expected masked card number, got %q", rec.CardNumber)
		}
	}
}

func TestProcess_Declined(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.SubmitRequest)
	}{
		{"auth code too short", func(r *model.SubmitRequest) { r.AuthCode = "123" }},
		{"auth code wrong length for 6-digit protocol", func(r *model.SubmitRequest) { r.ProtocolID = "201.1" }},
		{"auth code not numeric", func(r *model.SubmitRequest) { r.AuthCode = "12a4" }},
		{"luhn failure", func(r *model.SubmitRequest) { r.CardNumber = "4532015112830367" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStubStore()
			pub := &recordingPublisher{}
			p := newTestProcessor(store, bankMerchant(), pub, &stubRandom{draw: 0.10})

			req := validRequest()
			tt.mutate(&req)
			tx, err := p.Process(context.Background(), req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tx.Status != model.StatusDeclined {
				t.Fatalf("expected declined, got %s", tx.Status)
			}
			if tx.ApprovalCode != "" || tx.ResponseCode != "05" {
				t.Errorf("expected no approval code and response 05, got %q/%q", tx.ApprovalCode, tx.ResponseCode)
			}
			want := []string{model.MTIAuthorizationRequest, model.MTIAuthorizationResponse}
			if got := pub.mtis(); !slices.Equal(got, want) {
				t.Errorf("published MTIs = %v, want %v", got, want)
			}
			if pub.events[1].Message != "Authorization declined" {
				t.Errorf("unexpected message %q", pub.events[1].Message)
			}
		})
	}
}

func TestProcess_ProtocolLabelIsNormalized(t *testing.T) {
	pub := &recordingPublisher{}
	p := newTestProcessor(newStubStore(), bankMerchant(), pub, &stubRandom{draw: 0.10})

	req := validRequest()
	req.ProtocolID = "POS Terminal -101.4 (6-digit approval)"
	req.AuthCode = "123456"
	tx, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.ProtocolID != "101.4" || tx.Status != model.StatusPayoutInitiated {
		t.Errorf("expected normalized protocol and payout, got %s/%s", tx.ProtocolID, tx.Status)
	}
}

func TestProcess_CaptureFailure(t *testing.T) {
	for _, draw := range []float64{0.95, 0.99} {
		store := newStubStore()
		pub := &recordingPublisher{}
		p := newTestProcessor(store, bankMerchant(), pub, &stubRandom{draw: draw})

		tx, err := p.Process(context.Background(), validRequest())
		if err != nil {
			t.Fatalf("draw %v: unexpected error: %v", draw, err)
		}

		if tx.Status != model.StatusFailed {
			t.Fatalf("draw %v: expected failed, got %s", draw, tx.Status)
		}
		if tx.ApprovalCode != "" {
			t.Errorf("draw %v: expected approval code cleared, got %q", draw, tx.ApprovalCode)
		}
		want := []string{
			model.MTIAuthorizationRequest, model.MTIAuthorizationResponse,
			model.MTIFinancialRequest, model.MTIFinancialResponse,
		}
		if got := pub.mtis(); !slices.Equal(got, want) {
			t.Errorf("draw %v: published MTIs = %v, want %v", draw, got, want)
		}
		last := pub.events[len(pub.events)-1]
		if last.Status != model.StatusFailed || last.Message != "Financial transaction failed" {
			t.Errorf("draw %v: unexpected 0210 event %+v", draw, last)
		}
	}
}

func TestProcess_PayoutFailedIsRecordedButNotPublished(t *testing.T) {
	tests := []struct {
		name      string
		merchants stubMerchants
	}{
		{"crypto without wallet", stubMerchants{merchantID: {
			MerchantID:          merchantID,
			DefaultPayoutMethod: model.PayoutCrypto,
		}}},
		{"unknown merchant", stubMerchants{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStubStore()
			pub := &recordingPublisher{}
			p := newTestProcessor(store, tt.merchants, pub, &stubRandom{draw: 0.10})

			tx, err := p.Process(context.Background(), validRequest())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tx.Status != model.StatusPayoutFailed {
				t.Fatalf("expected payout_failed, got %s", tx.Status)
			}
			if tx.PayoutMethod != "" || tx.PayoutReference != "" {
				t.Errorf("expected payout fields unset, got %q/%q", tx.PayoutMethod, tx.PayoutReference)
			}
			if tx.ApprovalCode == "" {
				t.Error("expected approval code retained on payout_failed")
			}
			if slices.Contains(pub.mtis(), model.MTIPayout) {
				t.Error("no PAYOUT event expected for payout_failed")
			}

			stored, err := p.Get(context.Background(), merchantID, tx.TransactionID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if stored.Status != model.StatusPayoutFailed {
				t.Errorf("expected persisted payout_failed, got %s", stored.Status)
			}
		})
	}
}

func TestProcess_PersistenceErrorAbortsStage(t *testing.T) {
	store := newStubStore()
	boom := errors.New("disk full")
	store.failOn = func(tx *model.Transaction) error {
		if tx.Status == model.StatusApproved {
			return boom
		}
		return nil
	}
	pub := &recordingPublisher{}
	p := newTestProcessor(store, bankMerchant(), pub, &stubRandom{draw: 0.10})

	tx, err := p.Process(context.Background(), validRequest())

	var perr *model.PersistenceError
	if !errors.As(err, &perr) || !errors.Is(err, boom) {
		t.Fatalf("expected PersistenceError wrapping cause, got %v", err)
	}
	if tx.Status != model.StatusProcessing || tx.ApprovalCode != "" {
		t.Errorf("expected in-memory record left at processing, got %s (approval %q)", tx.Status, tx.ApprovalCode)
	}
	if got := pub.mtis(); !slices.Equal(got, []string{model.MTIAuthorizationRequest}) {
		t.Errorf("expected only 0100 published, got %v", got)
	}
	stored, _ := store.Get(context.Background(), "tx-1")
	if stored.Status != model.StatusProcessing || stored.Stage != model.StageAuthorizing {
		t.Errorf("expected last persisted state authoritative, got %s/%d", stored.Status, stored.Stage)
	}
}

func TestProcess_DeliveryErrorAbortsStage(t *testing.T) {
	store := newStubStore()
	boom := errors.New("broker unavailable")
	pub := &recordingPublisher{failOn: func(ev model.NotificationEvent) error {
		if ev.MTI == model.MTIFinancialRequest {
			return boom
		}
		return nil
	}}
	p := newTestProcessor(store, bankMerchant(), pub, &stubRandom{draw: 0.10})

	_, err := p.Process(context.Background(), validRequest())

	var derr *model.DeliveryError
	if !errors.As(err, &derr) || derr.MTI != model.MTIFinancialRequest || !errors.Is(err, boom) {
		t.Fatalf("expected DeliveryError for 0200, got %v", err)
	}
	stored, _ := store.Get(context.Background(), "tx-1")
	if stored.Status != model.StatusProcessing || stored.Stage != model.StageCapturing {
		t.Errorf("expected capture processing persisted before emit, got %s/%d", stored.Status, stored.Stage)
	}
	if slices.Contains(pub.mtis(), model.MTIFinancialResponse) {
		t.Error("no 0210 expected after aborted 0200")
	}
}

func TestSubmit_ValidationErrorCreatesNothing(t *testing.T) {
	store := newStubStore()
	pub := &recordingPublisher{}
	p := newTestProcessor(store, bankMerchant(), pub, &stubRandom{})

	req := validRequest()
	req.Amount = decimal.Zero
	req.Expiry = "13/29"
	req.CardHolderName = ""

	_, err := p.Submit(context.Background(), req)
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"amount", "expiry", "cardHolderName"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("expected field %q in validation error", field)
		}
	}
	if len(store.history) != 0 || len(pub.events) != 0 {
		t.Error("expected no writes and no events for rejected submission")
	}
}

func TestSubmit_PersistenceErrorOnCreate(t *testing.T) {
	store := newStubStore()
	store.failOn = func(*model.Transaction) error { return errors.New("connection refused") }
	pub := &recordingPublisher{}
	p := newTestProcessor(store, bankMerchant(), pub, &stubRandom{})

	_, err := p.Submit(context.Background(), validRequest())
	var perr *model.PersistenceError
	if !errors.As(err, &perr) || perr.Op != "create" {
		t.Fatalf("expected create PersistenceError, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Error("expected no events")
	}
}

func TestSubmit_RunsInBackgroundAndSubscriberSeesOrderedPrefix(t *testing.T) {
	store := newStubStore()
	hub := notify.NewHub(zerolog.Nop())
	q := notify.NewQueue(16)
	hub.Subscribe(merchantID, q)
	p := newTestProcessor(store, bankMerchant(), hub, &stubRandom{draw: 0.10})

	ctx, cancel := context.WithCancel(context.Background())
	id, err := p.Submit(ctx, validRequest())
	cancel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "tx-1" {
		t.Errorf("expected id tx-1, got %q", id)
	}

	p.Wait()
	q.Close()

	order := []model.Status{
		model.StatusProcessing, model.StatusApproved, model.StatusProcessing,
		model.StatusCompleted, model.StatusPayoutInitiated,
	}
	var got []model.Status
	for ev := range q.Events() {
		got = append(got, ev.Status)
	}
	if !slices.Equal(got, order) {
		t.Errorf("subscriber statuses = %v, want %v", got, order)
	}

	tx, err := p.Get(context.Background(), merchantID, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tx.Status != model.StatusPayoutInitiated {
		t.Errorf("expected background run to reach payout_initiated despite cancelled ctx, got %s", tx.Status)
	}
}

func TestSubmit_ConcurrentSubmissionsAreIndependent(t *testing.T) {
	const n = 50
	store := newStubStore()
	hub := notify.NewHub(zerolog.Nop())
	q := notify.NewQueue(n * 8)
	hub.Subscribe(merchantID, q)

	var seq atomic.Int64
	router := payout.NewRouter(payout.SimulatedBank{}, payout.SimulatedCrypto{})
	p := New(store, bankMerchant(), hub, router,
		WithRandom(&stubRandom{draw: 0.10}),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return fmt.Sprintf("tx-%d", seq.Add(1)) }),
		WithLatencies(0, 0),
		WithLogger(zerolog.Nop()),
	)

	ids := make(map[string]bool, n)
	for i := range n {
		id, err := p.Submit(context.Background(), validRequest())
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if id == "" || ids[id] {
			t.Fatalf("submit %d returned empty or duplicate id %q", i, id)
		}
		ids[id] = true
		if i%2 == 1 {
			p.Wait()
		}
	}
	p.Wait()
	q.Close()

	for id := range ids {
		tx, err := p.Get(context.Background(), merchantID, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if tx.Status != model.StatusPayoutInitiated {
			t.Errorf("%s: expected payout_initiated, got %s", id, tx.Status)
		}
	}

	perTx := make(map[string]int)
	for ev := range q.Events() {
		perTx[ev.TransactionID]++
	}
	for id := range ids {
		if perTx[id] != 5 {
			t.Errorf("%s: expected 5 events, got %d", id, perTx[id])
		}
	}
}

func TestProcess_ScenarioNeverDeclined(t *testing.T) {
	rnd := rand.New(rand.NewPCG(42, 7))
	terminal := []model.Status{model.StatusFailed, model.StatusPayoutInitiated, model.StatusPayoutFailed}

	for range 25 {
		p := newTestProcessor(newStubStore(), bankMerchant(), &recordingPublisher{}, rnd)
		tx, err := p.Process(context.Background(), validRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Contains(terminal, tx.Status) {
			t.Fatalf("unexpected terminal status %s", tx.Status)
		}
		if err := tx.CheckInvariants(); err != nil {
			t.Errorf("invariants violated: %v", err)
		}
	}
}

func TestGet_ScopedToMerchant(t *testing.T) {
	p := newTestProcessor(newStubStore(), bankMerchant(), &recordingPublisher{}, &stubRandom{draw: 0.10})
	if _, err := p.Process(context.Background(), validRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Get(context.Background(), "MERCH_OTHER", "tx-1"); !errors.Is(err, model.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound for foreign merchant, got %v", err)
	}
	if _, err := p.Get(context.Background(), merchantID, "missing"); !errors.Is(err, model.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound for unknown id, got %v", err)
	}

	list, err := p.List(context.Background(), merchantID, 0)
	if err != nil || len(list) != 1 {
		t.Errorf("expected one listed transaction, got %d (%v)", len(list), err)
	}
}
