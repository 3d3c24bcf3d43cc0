package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/rs/zerolog"

	"github.com/chungtau/mti-gateway/internal/dlq"
	"github.com/chungtau/mti-gateway/internal/model"
)

// DeadLetterSink is implemented by *dlq.Producer
type DeadLetterSink interface {
	SendToDeadLetter(ctx context.Context, doc dlq.FailedDocument) error
}

// Client indexes MTI events into Elasticsearch
type Client struct {
	es          *elasticsearch.Client
	indexer     esutil.BulkIndexer
	index       string
	sourceTopic string
	dlq         DeadLetterSink
	logger      zerolog.Logger
	now         func() time.Time
}

type Config struct {
	URL   string
	Index string
	// SourceTopic is recorded on dead-lettered documents
	SourceTopic string
	DLQ         DeadLetterSink
	Logger      zerolog.Logger
}

// EventDocument is one indexed stage transition
type EventDocument struct {
	TransactionID string    `json:"transactionId"`
	MerchantID    string    `json:"merchantId"`
	MTI           string    `json:"mti"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	ApprovalCode  string    `json:"approvalCode,omitempty"`
	ResponseCode  string    `json:"responseCode,omitempty"`
	PayoutMethod  string    `json:"payoutMethod,omitempty"`
	EventTime     time.Time `json:"eventTime"`
	IndexedAt     time.Time `json:"indexedAt"`
}

const indexMapping = `{
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0,
		"index": {
			"refresh_interval": "1s"
		}
	},
	"mappings": {
		"properties": {
			"transactionId": { "type": "keyword" },
			"merchantId": { "type": "keyword" },
			"mti": { "type": "keyword" },
			"status": { "type": "keyword" },
			"message": { "type": "text" },
			"approvalCode": { "type": "keyword" },
			"responseCode": { "type": "keyword" },
			"payoutMethod": { "type": "keyword" },
			"eventTime": { "type": "date" },
			"indexedAt": { "type": "date" }
		}
	}
}`

// DocumentID is unique per transaction and message type, so a redelivered
// event overwrites its earlier copy.
func DocumentID(ev model.NotificationEvent) string {
	return ev.TransactionID + "-" + ev.MTI
}

func NewEventDocument(ev model.NotificationEvent, indexedAt time.Time) EventDocument {
	return EventDocument{
		TransactionID: ev.TransactionID,
		MerchantID:    ev.MerchantID,
		MTI:           ev.MTI,
		Status:        string(ev.Status),
		Message:       ev.Message,
		ApprovalCode:  ev.ApprovalCode,
		ResponseCode:  ev.ResponseCode,
		PayoutMethod:  string(ev.PayoutMethod),
		EventTime:     ev.Timestamp,
		IndexedAt:     indexedAt,
	}
}

// NewClient connects, ensures the index and starts a bulk indexer
func NewClient(cfg Config) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}

	logger := cfg.Logger.With().Str("component", "elasticsearch").Logger()
	logger.Info().Str("status", res.Status()).Msg("connected to Elasticsearch")

	client := &Client{
		es:          es,
		index:       cfg.Index,
		sourceTopic: cfg.SourceTopic,
		dlq:         cfg.DLQ,
		logger:      logger,
		now:         time.Now,
	}

	if err := client.ensureIndex(); err != nil {
		return nil, fmt.Errorf("failed to ensure index: %w", err)
	}

	indexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        es,
		Index:         cfg.Index,
		NumWorkers:    2,
		FlushBytes:    5e+6, // 5MB
		FlushInterval: 5 * time.Second,
		OnError: func(ctx context.Context, err error) {
			logger.Error().Err(err).Msg("bulk indexer error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}
	client.indexer = indexer

	return client, nil
}

func (c *Client) ensureIndex() error {
	res, err := c.es.Indices.Exists([]string{c.index})
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		c.logger.Info().Str("index", c.index).Msg("index already exists")
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.Status())
	}

	c.logger.Info().Str("index", c.index).Msg("created index with mapping")
	return nil
}

// IndexEvent queues ev on the bulk indexer. Documents the cluster rejects are
// sent to the dead-letter topic with rawJSON.
func (c *Client) IndexEvent(ctx context.Context, ev model.NotificationEvent, rawJSON []byte) error {
	docID := DocumentID(ev)
	body, err := json.Marshal(NewEventDocument(ev, c.now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	err = c.indexer.Add(ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: docID,
		Body:       bytes.NewReader(body),
		OnSuccess: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem) {
			c.logger.Debug().Str("document_id", docID).Msg("indexed event")
		},
		OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			errorType, errorReason := "client_error", ""
			if err != nil {
				errorReason = err.Error()
			} else {
				errorType, errorReason = res.Error.Type, res.Error.Reason
			}
			c.deadLetter(docID, rawJSON, errorType, errorReason)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add to bulk indexer: %w", err)
	}
	return nil
}

func (c *Client) deadLetter(docID string, rawJSON []byte, errorType, errorReason string) {
	c.logger.Error().
		Str("document_id", docID).
		Str("error_type", errorType).
		Str("error_reason", errorReason).
		Bytes("payload", rawJSON).
		Msg("failed to index event")

	if c.dlq == nil {
		return
	}

	// Independent of the consumer context so a shutdown still records the failure
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.SendToDeadLetter(ctx, dlq.NewFailedDocument(docID, rawJSON, errorType, errorReason, c.sourceTopic, c.now()))
	if err != nil {
		c.logger.Error().Err(err).Str("document_id", docID).Msg("failed to send to DLQ")
	}
}

// Close flushes and closes the bulk indexer
func (c *Client) Close(ctx context.Context) error {
	if c.indexer == nil {
		return nil
	}
	if err := c.indexer.Close(ctx); err != nil {
		return fmt.Errorf("failed to close bulk indexer: %w", err)
	}
	stats := c.indexer.Stats()
	c.logger.Info().Uint64("flushed", stats.NumFlushed).Uint64("failed", stats.NumFailed).Msg("bulk indexer closed")
	return nil
}

func (c *Client) Stats() esutil.BulkIndexerStats {
	return c.indexer.Stats()
}
