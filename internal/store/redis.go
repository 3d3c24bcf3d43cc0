package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chungtau/mti-gateway/internal/model"
)

func txnKey(id string) string {
	return "txn:" + id
}

func merchantTxnsKey(id string) string {
	return "merchant:" + id + ":txns"
}

func merchantPayoutKey(id string) string {
	return "merchant:" + id + ":payout"
}

// RedisStore persists each transaction as a JSON document under txn:{id} and
// indexes it in a per-merchant sorted set scored by creation time.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save overwrites the record and its index entry in one MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, tx *model.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, txnKey(tx.TransactionID), data, 0)
		pipe.ZAdd(ctx, merchantTxnsKey(tx.MerchantID), redis.Z{
			Score:  float64(tx.CreatedAt.UnixMilli()),
			Member: tx.TransactionID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", tx.TransactionID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Transaction, error) {
	data, err := s.client.Get(ctx, txnKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}

	var tx model.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("unmarshal transaction %s: %w", id, err)
	}
	return &tx, nil
}

func (s *RedisStore) ListByMerchant(ctx context.Context, merchantID string, limit int) ([]*model.Transaction, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, merchantTxnsKey(merchantID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", merchantID, err)
	}
	if len(ids) == 0 {
		return []*model.Transaction{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = txnKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make([]*model.Transaction, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var tx model.Transaction
		if err := json.Unmarshal([]byte(raw), &tx); err != nil {
			return nil, fmt.Errorf("unmarshal transaction %s: %w", ids[i], err)
		}
		out = append(out, &tx)
	}
	return out, nil
}

// PayoutSettings reads a settings document cached under merchant:{id}:payout.
func (s *RedisStore) PayoutSettings(ctx context.Context, merchantID string) (*model.MerchantPayoutSettings, error) {
	data, err := s.client.Get(ctx, merchantPayoutKey(merchantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrMerchantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get payout settings %s: %w", merchantID, err)
	}

	var settings model.MerchantPayoutSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("unmarshal payout settings %s: %w", merchantID, err)
	}
	return &settings, nil
}

// PutMerchant seeds payout settings, used in dev mode.
func (s *RedisStore) PutMerchant(ctx context.Context, settings model.MerchantPayoutSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal payout settings: %w", err)
	}
	return s.client.Set(ctx, merchantPayoutKey(settings.MerchantID), data, 0).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
