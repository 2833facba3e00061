package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ridepay/internal/logger"
)

const (
	idempotencyHeader   = "Idempotency-Key"
	idempotencyReplayed = "Idempotent-Replayed"
	idempotencyTTL      = 24 * time.Hour
	inFlightTTL         = time.Minute
)

// CachedResponse is a stored response replayed for a repeated key.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// ResponseStore keeps replayable responses per idempotency key.
type ResponseStore interface {
	// Reserve marks key as in flight. It returns false if the key is already
	// reserved or completed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Get returns the stored response, or nil while the key is still in flight.
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Save(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RedisResponseStore keeps responses in Redis under idempotency:<key>.
type RedisResponseStore struct {
	client redis.Cmdable
}

// NewRedisResponseStore creates a new RedisResponseStore.
func NewRedisResponseStore(client redis.Cmdable) *RedisResponseStore {
	return &RedisResponseStore{client: client}
}

const inFlightMarker = "in-flight"

func (s *RedisResponseStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, "idempotency:"+key, inFlightMarker, ttl).Result()
}

func (s *RedisResponseStore) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := s.client.Get(ctx, "idempotency:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if string(data) == inFlightMarker {
		return nil, nil
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (s *RedisResponseStore) Save(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, "idempotency:"+key, data, ttl).Err()
}

func (s *RedisResponseStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, "idempotency:"+key).Err()
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a mutating request
// that carries an already-seen Idempotency-Key. A request whose key is still
// being processed gets 409. Keys are scoped by method and path. If the store
// is unreachable the request proceeds without replay protection.
func IdempotencyMiddleware(store ResponseStore, log *zap.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return func(c *gin.Context) {
		// Only apply to mutating methods.
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scoped := c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		reserved, err := store.Reserve(ctx, scoped, inFlightTTL)
		if err != nil {
			log.Warn("idempotency store unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if !reserved {
			cached, err := store.Get(ctx, scoped)
			switch {
			case err != nil:
				log.Warn("idempotency store unavailable", zap.String("key", key), zap.Error(err))
				c.Next()
			case cached == nil:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is in progress"})
			default:
				for k, v := range cached.Headers {
					for _, val := range v {
						c.Header(k, val)
					}
				}
				c.Header(idempotencyReplayed, "true")
				c.Data(cached.StatusCode, "application/json", cached.Body)
				c.Abort()
			}
			return
		}

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		// The outcome must be stored even if the client has gone away.
		saveCtx := context.WithoutCancel(ctx)
		status := c.Writer.Status()
		if status >= 500 && status != http.StatusBadGateway {
			// Let the client retry transient failures with the same key.
			if err := store.Release(saveCtx, scoped); err != nil {
				log.Warn("idempotency key not released", zap.String("key", key), zap.Error(err))
			}
			return
		}

		resp := CachedResponse{
			StatusCode: status,
			Body:       w.body.Bytes(),
			Headers:    extractResponseHeaders(c),
		}
		if err := store.Save(saveCtx, scoped, &resp, idempotencyTTL); err != nil {
			log.Warn("idempotent response not stored", zap.String("key", key), zap.Error(err))
		}
	}
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
