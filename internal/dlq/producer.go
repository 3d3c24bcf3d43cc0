package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// FailedDocument is an audit event that could not be indexed
type FailedDocument struct {
	OriginalDocument json.RawMessage `json:"originalDocument"`
	DocumentID       string          `json:"documentId"`
	ErrorType        string          `json:"errorType"`
	ErrorReason      string          `json:"errorReason"`
	FailedAt         time.Time       `json:"failedAt"`
	RetryCount       int             `json:"retryCount"`
	SourceTopic      string          `json:"sourceTopic"`
}

// NewFailedDocument builds a dead letter for raw. Payloads that are not valid
// JSON are stored as a JSON string so the record itself stays decodable.
func NewFailedDocument(docID string, raw []byte, errorType, reason, sourceTopic string, failedAt time.Time) FailedDocument {
	original := json.RawMessage(raw)
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(string(raw))
		original = quoted
	}
	return FailedDocument{
		OriginalDocument: original,
		DocumentID:       docID,
		ErrorType:        errorType,
		ErrorReason:      reason,
		FailedAt:         failedAt.UTC(),
		SourceTopic:      sourceTopic,
	}
}

// MessageWriter is the subset of *kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes failed documents to the dead-letter topic
type Producer struct {
	writer MessageWriter
	topic  string
	logger zerolog.Logger
}

func NewProducer(brokers []string, topic string, logger zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false, // Sync writes for reliability
	}
	return NewProducerWithWriter(writer, topic, logger)
}

func NewProducerWithWriter(w MessageWriter, topic string, logger zerolog.Logger) *Producer {
	logger.Info().Str("topic", topic).Msg("DLQ producer initialized")
	return &Producer{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "dlq").Logger(),
	}
}

// SendToDeadLetter sends a failed document to the DLQ
func (p *Producer) SendToDeadLetter(ctx context.Context, doc FailedDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal failed document: %w", err)
	}

	// Same document id, same partition
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(doc.DocumentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "error_type", Value: []byte(doc.ErrorType)},
			{Key: "source_topic", Value: []byte(doc.SourceTopic)},
		},
	})
	if err != nil {
		p.logger.Error().Err(err).Str("document_id", doc.DocumentID).Msg("failed to send document to DLQ")
		return err
	}

	p.logger.Warn().Str("document_id", doc.DocumentID).Str("topic", p.topic).Msg("sent failed document to DLQ")
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
