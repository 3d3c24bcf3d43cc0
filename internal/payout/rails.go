package payout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

const (
	DefaultBankLatency   = time.Second
	DefaultCryptoLatency = 1500 * time.Millisecond
)

// SimulatedBank accepts every transfer after Latency.
type SimulatedBank struct {
	Latency time.Duration
	Now     func() time.Time
}

func (b SimulatedBank) Transfer(ctx context.Context, _ BankTransfer) (string, error) {
	if err := wait(ctx, b.Latency); err != nil {
		return "", err
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return fmt.Sprintf("TXN_%d", now().UnixMilli()), nil
}

// SimulatedCrypto accepts every transfer after Latency and returns a random
// 32-byte hash in hex.
type SimulatedCrypto struct {
	Latency time.Duration
	Entropy io.Reader
}

func (c SimulatedCrypto) Send(ctx context.Context, _ CryptoTransfer) (string, error) {
	if err := wait(ctx, c.Latency); err != nil {
		return "", err
	}
	src := c.Entropy
	if src == nil {
		src = rand.Reader
	}
	var hash [32]byte
	if _, err := io.ReadFull(src, hash[:]); err != nil {
		return "", fmt.Errorf("generate tx hash: %w", err)
	}
	return hex.EncodeToString(hash[:]), nil
}

func wait(ctx context.Context, d time.Duration) error {
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
