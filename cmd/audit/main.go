package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/chungtau/mti-gateway/internal/config"
	"github.com/chungtau/mti-gateway/internal/dlq"
	"github.com/chungtau/mti-gateway/internal/elasticsearch"
	"github.com/chungtau/mti-gateway/internal/logging"
	"github.com/chungtau/mti-gateway/internal/model"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadAudit()
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Logger = logger

	logger.Info().
		Str("broker", cfg.KafkaBroker).
		Str("topic", cfg.KafkaTopic).
		Str("group_id", cfg.GroupID).
		Msg("starting audit service")

	producer := dlq.NewProducer([]string{cfg.KafkaBroker}, cfg.KafkaDLQTopic, logger)
	defer producer.Close()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		URL:         cfg.ESURL,
		Index:       cfg.ESIndex,
		SourceTopic: cfg.KafkaTopic,
		DLQ:         producer,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize Elasticsearch")
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.KafkaBroker},
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.GroupID, // Load Balancing
		MinBytes: 1,           // 1 byte - consume messages immediately
		MaxBytes: 10e6,        // 10MB
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info().Msg("received shutdown signal, stopping consumer")
		cancel()
	}()

	logger.Info().Msg("consumer started, waiting for messages")
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error().Err(err).Msg("error reading message")
			continue
		}

		processMessage(ctx, logger, es, producer, cfg.KafkaTopic, m)
	}

	if err := r.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close reader")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := es.Close(closeCtx); err != nil {
		logger.Error().Err(err).Msg("failed to flush Elasticsearch")
	}
	logger.Info().Msg("audit service stopped gracefully")
}

func processMessage(ctx context.Context, logger zerolog.Logger, es *elasticsearch.Client, producer *dlq.Producer, topic string, m kafka.Message) {
	logger.Debug().
		Str("key", string(m.Key)).
		Int("partition", m.Partition).
		Int64("offset", m.Offset).
		Msg("received event")

	var event model.NotificationEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		logger.Error().Err(err).Str("raw", string(m.Value)).Msg("failed to unmarshal event")
		deadLetter(logger, producer, topic, string(m.Key), m.Value, "decode_error", err.Error())
		return
	}

	logger.Info().
		Str("transaction_id", event.TransactionID).
		Str("merchant_id", event.MerchantID).
		Str("mti", event.MTI).
		Str("status", string(event.Status)).
		Msg("audit event")

	if err := es.IndexEvent(ctx, event, m.Value); err != nil {
		logger.Error().Err(err).Str("transaction_id", event.TransactionID).Msg("failed to queue event for indexing")
		deadLetter(logger, producer, topic, elasticsearch.DocumentID(event), m.Value, "indexer_error", err.Error())
	}
}

func deadLetter(logger zerolog.Logger, producer *dlq.Producer, topic, docID string, raw []byte, errorType, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	doc := dlq.NewFailedDocument(docID, raw, errorType, reason, topic, time.Now())
	if err := producer.SendToDeadLetter(ctx, doc); err != nil {
		logger.Error().Err(err).Str("document_id", docID).Msg("failed to send to DLQ")
	}
}
