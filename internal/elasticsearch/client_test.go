package elasticsearch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chungtau/mti-gateway/internal/dlq"
	"github.com/chungtau/mti-gateway/internal/model"
)

type recordingDLQ struct {
	docs []dlq.FailedDocument
}

func (r *recordingDLQ) SendToDeadLetter(_ context.Context, doc dlq.FailedDocument) error {
	r.docs = append(r.docs, doc)
	return nil
}

func TestNewEventDocument(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := model.NotificationEvent{
		MerchantID:    "MERCH_BANK_001",
		MTI:           model.MTIPayout,
		TransactionID: "tx-1",
		Status:        model.StatusPayoutInitiated,
		Message:       "Payout initiated",
		PayoutMethod:  model.PayoutBank,
		Timestamp:     ts,
	}

	doc := NewEventDocument(ev, ts.Add(time.Second))
	if doc.Status != "payout_initiated" || doc.PayoutMethod != "bank" || !doc.EventTime.Equal(ts) {
		t.Errorf("unexpected document %+v", doc)
	}
	if got := DocumentID(ev); got != "tx-1-PAYOUT" {
		t.Errorf("expected tx-1-PAYOUT, got %s", got)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	if _, ok := m["approvalCode"]; ok {
		t.Error("empty approvalCode should be omitted")
	}
}

func TestDocumentIDDistinguishesStages(t *testing.T) {
	req := model.NotificationEvent{TransactionID: "tx-1", MTI: model.MTIAuthorizationRequest}
	resp := model.NotificationEvent{TransactionID: "tx-1", MTI: model.MTIAuthorizationResponse}
	if DocumentID(req) == DocumentID(resp) {
		t.Fatal("request and response must index as separate documents")
	}
}

func TestDeadLetter(t *testing.T) {
	sink := &recordingDLQ{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &Client{
		sourceTopic: "mti-events",
		dlq:         sink,
		logger:      zerolog.Nop(),
		now:         func() time.Time { return now },
	}

	c.deadLetter("tx-1-0110", []byte(`{"mti":"0110"}`), "mapper_parsing_exception", "bad field")

	if len(sink.docs) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(sink.docs))
	}
	got := sink.docs[0]
	if got.DocumentID != "tx-1-0110" || got.SourceTopic != "mti-events" || got.ErrorType != "mapper_parsing_exception" {
		t.Errorf("unexpected dead letter %+v", got)
	}
	if !got.FailedAt.Equal(now) {
		t.Errorf("expected FailedAt %v, got %v", now, got.FailedAt)
	}
}
