package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chungtau/mti-gateway/internal/store"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	// reservationTTL bounds how long a crashed request can block its key.
	reservationTTL = time.Minute
)

// IdempotencyStore caches responses by key. Reserve claims a key atomically;
// Get returns nil, nil on a miss and store.ErrIdempotencyInProgress while the
// key is reserved but not yet saved.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*store.CachedResponse, error)
	Save(ctx context.Context, key string, resp store.CachedResponse, ttl time.Duration) error
}

// bodyRecorder tees the handler's response body into a buffer
type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key. Keys are scoped to the authenticated merchant, so it must run
// after Auth. A repeat that arrives while the first request still runs gets 409.
// 5xx responses release the key so the client can retry.
func Idempotency(s IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		logger := zerolog.Ctx(ctx)
		scoped := GetMerchantID(c) + ":" + key

		reserved, err := s.Reserve(ctx, scoped, reservationTTL)
		if err != nil {
			// Fail open
			logger.Error().Err(err).Str("idempotency_key", key).Msg("idempotency reserve failed")
			c.Next()
			return
		}

		if !reserved {
			cached, err := s.Get(ctx, scoped)
			switch {
			case errors.Is(err, store.ErrIdempotencyInProgress):
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"code":    "IDEMPOTENCY_IN_PROGRESS",
					"message": "A request with this Idempotency-Key is still being processed",
				})
			case err != nil:
				logger.Error().Err(err).Str("idempotency_key", key).Msg("idempotency lookup failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"code":    "IDEMPOTENCY_UNAVAILABLE",
					"message": "Could not check Idempotency-Key, retry later",
				})
			case cached == nil:
				// Expired between Reserve and Get
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"code":    "IDEMPOTENCY_IN_PROGRESS",
					"message": "Idempotency-Key state changed, retry the request",
				})
			default:
				logger.Info().Str("idempotency_key", key).Msg("idempotency cache hit")
				c.Header("X-Idempotency-Hit", "true")
				c.Data(cached.StatusCode, "application/json; charset=utf-8", cached.Body)
				c.Abort()
			}
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = recorder

		c.Next()

		if recorder.Status() >= http.StatusInternalServerError {
			if err := s.Release(ctx, scoped); err != nil {
				logger.Error().Err(err).Str("idempotency_key", key).Msg("idempotency release failed")
			}
			return
		}
		err = s.Save(ctx, scoped, store.CachedResponse{
			StatusCode: recorder.Status(),
			Body:       recorder.body.Bytes(),
		}, idempotencyTTL)
		if err != nil {
			logger.Error().Err(err).Str("idempotency_key", key).Msg("idempotency save failed")
		}
	}
}
