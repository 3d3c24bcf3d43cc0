// Package processor drives a card-present transaction through the 0100/0110,
// 0200/0210 and PAYOUT stages. Every transition is saved before its event is
// published, and in-memory state only changes once the save succeeds.
package processor

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chungtau/mti-gateway/internal/model"
	"github.com/chungtau/mti-gateway/internal/notify"
	"github.com/chungtau/mti-gateway/internal/payout"
	"github.com/chungtau/mti-gateway/internal/validation"
)

const (
	DefaultCaptureLatency = 2 * time.Second
	DefaultSuccessRate    = 0.95
	DefaultCurrency       = "USD"

	defaultListLimit = 20
	maxListLimit     = 100
)

// Store persists one record per transaction id, overwritten on every transition.
type Store interface {
	Save(ctx context.Context, tx *model.Transaction) error
	Get(ctx context.Context, id string) (*model.Transaction, error)
	ListByMerchant(ctx context.Context, merchantID string, limit int) ([]*model.Transaction, error)
}

// MerchantDirectory reads payout settings owned by account management. Unknown
// merchants return model.ErrMerchantNotFound.
type MerchantDirectory interface {
	PayoutSettings(ctx context.Context, merchantID string) (*model.MerchantPayoutSettings, error)
}

type PayoutRouter interface {
	Route(ctx context.Context, tx *model.Transaction, settings *model.MerchantPayoutSettings) (payout.Result, error)
}

// Random is satisfied by *rand.Rand from math/rand/v2.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

type Processor struct {
	store     Store
	merchants MerchantDirectory
	publisher notify.Publisher
	router    PayoutRouter

	rndMu sync.Mutex
	rnd   Random

	now            func() time.Time
	newID          func() string
	authLatency    time.Duration
	captureLatency time.Duration
	successRate    float64
	currency       string
	logger         zerolog.Logger

	wg sync.WaitGroup
}

type Option func(*Processor)

func WithRandom(r Random) Option { return func(p *Processor) { p.rnd = r } }

func WithClock(now func() time.Time) Option { return func(p *Processor) { p.now = now } }

func WithIDGenerator(fn func() string) Option { return func(p *Processor) { p.newID = fn } }

func WithLatencies(auth, capture time.Duration) Option {
	return func(p *Processor) {
		p.authLatency = auth
		p.captureLatency = capture
	}
}

// WithSuccessRate sets the probability that a financial capture succeeds.
func WithSuccessRate(rate float64) Option { return func(p *Processor) { p.successRate = rate } }

func WithDefaultCurrency(code string) Option { return func(p *Processor) { p.currency = code } }

func WithLogger(l zerolog.Logger) Option { return func(p *Processor) { p.logger = l } }

func New(store Store, merchants MerchantDirectory, publisher notify.Publisher, router PayoutRouter, opts ...Option) *Processor {
	p := &Processor{
		store:          store,
		merchants:      merchants,
		publisher:      publisher,
		router:         router,
		rnd:            globalRand{},
		now:            time.Now,
		newID:          uuid.NewString,
		captureLatency: DefaultCaptureLatency,
		successRate:    DefaultSuccessRate,
		currency:       DefaultCurrency,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("component", "processor").Logger()
	return p
}

// Submit validates req, saves the submitted record, runs the 0100 stage and
// returns the transaction id. The remaining stages run in the background and
// are not cancelled when ctx is.
func (p *Processor) Submit(ctx context.Context, req model.SubmitRequest) (string, error) {
	tx, err := p.begin(ctx, req)
	if err != nil {
		return "", err
	}

	// The pipeline works on its own copy.
	id := tx.TransactionID
	work := tx.Clone()
	pan := req.CardNumber
	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.run(bg, work, pan); err != nil {
			p.logger.Error().Err(err).
				Str("transaction_id", work.TransactionID).
				Str("merchant_id", work.MerchantID).
				Str("status", string(work.Status)).
				Msg("transaction aborted")
		}
	}()
	return id, nil
}

// Process runs every stage synchronously and returns the last committed record.
// On error the record reflects the last successful transition.
func (p *Processor) Process(ctx context.Context, req model.SubmitRequest) (*model.Transaction, error) {
	tx, err := p.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, tx, req.CardNumber)
}

// Get returns the persisted record if it belongs to merchantID.
func (p *Processor) Get(ctx context.Context, merchantID, id string) (*model.Transaction, error) {
	tx, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.MerchantID != merchantID {
		return nil, model.ErrTransactionNotFound
	}
	return tx, nil
}

// List returns the merchant's most recent transactions, newest first.
func (p *Processor) List(ctx context.Context, merchantID string, limit int) ([]*model.Transaction, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return p.store.ListByMerchant(ctx, merchantID, limit)
}

// Wait blocks until every background transaction has stopped.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) begin(ctx context.Context, req model.SubmitRequest) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = p.currency
	}
	now := p.now()
	tx := &model.Transaction{
		TransactionID:  p.newID(),
		MerchantID:     req.MerchantID,
		CardNumber:     validation.MaskCardNumber(req.CardNumber),
		CardHolderName: req.CardHolderName,
		Amount:         req.Amount,
		Currency:       currency,
		ProtocolID:     validation.NormalizeProtocol(req.ProtocolID),
		AuthCode:       req.AuthCode,
		Online:         req.Online,
		Status:         model.StatusSubmitted,
		Stage:          model.StageSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.store.Save(ctx, tx); err != nil {
		return nil, &model.PersistenceError{Op: "create", TransactionID: tx.TransactionID, Err: err}
	}

	if err := p.commit(ctx, tx, model.StatusProcessing, "authorization request", nil); err != nil {
		return nil, err
	}
	if err := p.emit(ctx, tx, model.MTIAuthorizationRequest, "Authorization request initiated"); err != nil {
		return nil, err
	}
	p.logger.Info().
		Str("transaction_id", tx.TransactionID).
		Str("merchant_id", tx.MerchantID).
		Str("protocol_id", tx.ProtocolID).
		Str("amount", tx.Amount.StringFixed(2)).
		Msg("transaction submitted")
	return tx, nil
}

func (p *Processor) run(ctx context.Context, tx *model.Transaction, pan string) (*model.Transaction, error) {
	if err := p.authorize(ctx, tx, pan); err != nil {
		return tx, err
	}
	if tx.Status != model.StatusApproved {
		return tx, nil
	}
	if err := p.settle(ctx, tx); err != nil {
		return tx, err
	}
	if tx.Status != model.StatusCompleted {
		return tx, nil
	}
	return tx, p.initiatePayout(ctx, tx)
}

// commit applies the next transition to a copy of tx, saves the copy and only
// then copies it back into tx.
func (p *Processor) commit(ctx context.Context, tx *model.Transaction, to model.Status, op string, mutate func(*model.Transaction)) error {
	next := tx.Clone()
	if err := next.Advance(to, p.now()); err != nil {
		return err
	}
	if mutate != nil {
		mutate(next)
	}
	if err := next.CheckInvariants(); err != nil {
		return err
	}
	if err := p.store.Save(ctx, next); err != nil {
		return &model.PersistenceError{Op: op, TransactionID: tx.TransactionID, Err: err}
	}
	*tx = *next
	return nil
}

func (p *Processor) emit(ctx context.Context, tx *model.Transaction, mti, message string) error {
	ev := model.NotificationEvent{
		MerchantID:    tx.MerchantID,
		MTI:           mti,
		TransactionID: tx.TransactionID,
		Status:        tx.Status,
		Message:       message,
		Timestamp:     p.now(),
	}
	switch mti {
	case model.MTIAuthorizationResponse:
		ev.ApprovalCode = tx.ApprovalCode
		ev.ResponseCode = tx.ResponseCode
	case model.MTIPayout:
		ev.PayoutMethod = tx.PayoutMethod
	}

	err := p.publisher.Publish(ctx, tx.MerchantID, ev)
	if err == nil {
		return nil
	}
	var derr *model.DeliveryError
	if errors.As(err, &derr) {
		return err
	}
	return &model.DeliveryError{MTI: mti, TransactionID: tx.TransactionID, Err: err}
}

func (p *Processor) float64() float64 {
	p.rndMu.Lock()
	defer p.rndMu.Unlock()
	return p.rnd.Float64()
}

const approvalAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func (p *Processor) approvalCode() string {
	p.rndMu.Lock()
	defer p.rndMu.Unlock()
	b := make([]byte, 6)
	for i := range b {
		b[i] = approvalAlphabet[p.rnd.IntN(len(approvalAlphabet))]
	}
	return string(b)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
