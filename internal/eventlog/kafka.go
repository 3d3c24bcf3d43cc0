// Package eventlog mirrors every published notification to a Kafka topic for
// the audit consumer.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/chungtau/mti-gateway/internal/model"
)

// MessageWriter is the subset of *kafka.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink implements notify.Publisher on top of a Kafka topic.
type KafkaSink struct {
	writer MessageWriter
	topic  string
	logger zerolog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger zerolog.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return NewKafkaSinkWithWriter(writer, topic, logger)
}

func NewKafkaSinkWithWriter(w MessageWriter, topic string, logger zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "eventlog").Str("topic", topic).Logger(),
	}
}

// Encode builds the Kafka message for ev. The key is the transaction id so all
// events of one transaction land on one partition in order.
func Encode(ev model.NotificationEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.TransactionID),
		Value: payload,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "mti", Value: []byte(ev.MTI)},
			{Key: "merchant_id", Value: []byte(ev.MerchantID)},
		},
	}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, merchantID string, ev model.NotificationEvent) error {
	if ev.MerchantID == "" {
		ev.MerchantID = merchantID
	}
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("transaction_id", ev.TransactionID).
			Str("mti", ev.MTI).
			Msg("failed to mirror event")
		return fmt.Errorf("write to %s: %w", s.topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}
