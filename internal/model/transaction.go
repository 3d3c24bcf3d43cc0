package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the externally visible state of a transaction.
type Status string

const (
	StatusSubmitted       Status = "submitted"
	StatusProcessing      Status = "processing"
	StatusApproved        Status = "approved"
	StatusDeclined        Status = "declined"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusPayoutInitiated Status = "payout_initiated"
	StatusPayoutFailed    Status = "payout_failed"
)

// Stage orders the lifecycle. "processing" occurs twice in the status graph,
// so the stage disambiguates authorization processing from capture processing.
type Stage int

const (
	StageSubmitted Stage = iota
	StageAuthorizing
	StageAuthorized
	StageCapturing
	StageCaptured
	StagePayout
)

type step struct {
	from []Status
	to   []Status
}

// lifecycle is indexed by the target stage.
var lifecycle = map[Stage]step{
	StageAuthorizing: {from: []Status{StatusSubmitted}, to: []Status{StatusProcessing}},
	StageAuthorized:  {from: []Status{StatusProcessing}, to: []Status{StatusApproved, StatusDeclined}},
	StageCapturing:   {from: []Status{StatusApproved}, to: []Status{StatusProcessing}},
	StageCaptured:    {from: []Status{StatusProcessing}, to: []Status{StatusCompleted, StatusFailed}},
	StagePayout:      {from: []Status{StatusCompleted}, to: []Status{StatusPayoutInitiated, StatusPayoutFailed}},
}

// Transaction is the persisted record of one card-present transaction.
type Transaction struct {
	TransactionID   string          `json:"transactionId"`
	MerchantID      string          `json:"merchantId"`
	CardNumber      string          `json:"cardNumber"` // masked, last 4 digits only
	CardHolderName  string          `json:"cardHolderName"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	ProtocolID      string          `json:"protocolId"`
	AuthCode        string          `json:"authCode"`
	Online          bool            `json:"online"`
	Status          Status          `json:"status"`
	Stage           Stage           `json:"stage"`
	ApprovalCode    string          `json:"approvalCode,omitempty"`
	ResponseCode    string          `json:"responseCode,omitempty"`
	PayoutMethod    PayoutMethod    `json:"payoutMethod,omitempty"`
	PayoutReference string          `json:"payoutReference,omitempty"`
	PayoutFee       decimal.Decimal `json:"payoutFee,omitzero"`
	PayoutAmount    decimal.Decimal `json:"payoutAmount,omitzero"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Advance moves the transaction to the next stage with the given status.
// Any move that skips, repeats or branches away from the graph is rejected.
func (t *Transaction) Advance(to Status, now time.Time) error {
	next := t.Stage + 1
	s, ok := lifecycle[next]
	if !ok || !slices.Contains(s.from, t.Status) || !slices.Contains(s.to, to) {
		return fmt.Errorf("%w: %s(%d) -> %s", ErrInvalidTransition, t.Status, t.Stage, to)
	}
	t.Status = to
	t.Stage = next
	t.UpdatedAt = now
	return nil
}

// Terminal reports whether no further stage can follow.
func (t *Transaction) Terminal() bool {
	switch t.Status {
	case StatusDeclined, StatusFailed, StatusPayoutInitiated, StatusPayoutFailed:
		return true
	}
	return false
}

// Clone returns a copy that shares no mutable state with t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

// CheckInvariants verifies the approval-code rule for the current status.
func (t *Transaction) CheckInvariants() error {
	approvedPath := t.Status == StatusApproved ||
		t.Status == StatusCompleted ||
		t.Status == StatusPayoutInitiated ||
		t.Status == StatusPayoutFailed ||
		// capture processing only follows approval, so the code is already set
		(t.Status == StatusProcessing && t.Stage == StageCapturing)
	if approvedPath != (t.ApprovalCode != "") {
		return fmt.Errorf("approval code presence mismatch for status %s", t.Status)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", t.Amount)
	}
	return nil
}
