package idempotency

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	// HeaderIdempotencyKey is the HTTP header for idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	DefaultTTL = 24 * time.Hour

	maxKeyLength = 255
)

var (
	ErrEmptyKey   = errors.New("idempotency key is empty")
	ErrKeyTooLong = errors.New("idempotency key exceeds 255 characters")
	ErrBadKeyChar = errors.New("idempotency key contains non-printable characters")
)

// Store claims a key once. Claim reports false when the key was already seen.
type Store interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// MemoryStore is a process-local Store bounded by size and TTL
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (s *MemoryStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.cache.Get(key); seen {
		return false, nil
	}
	s.cache.Add(key, struct{}{})
	return true, nil
}

// ValidateKey checks the header value a sender supplied
func ValidateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(key) > maxKeyLength {
		return ErrKeyTooLong
	}
	for _, r := range key {
		if !unicode.IsPrint(r) {
			return ErrBadKeyChar
		}
	}
	return nil
}

// Middleware acknowledges redelivered requests without running the handler.
// Requests without an Idempotency-Key header pass through, and a failing
// store fails open.
func Middleware(store Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		if err := ValidateKey(key); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "Invalid idempotency key",
				"message":    err.Error(),
				"request_id": c.GetString("request_id"),
			})
			return
		}

		first, err := store.Claim(c.Request.Context(), c.Request.URL.Path+":"+key)
		if err != nil {
			logger.Warn("Idempotency store unavailable, processing request",
				zap.String("idempotency_key", key),
				zap.Error(err))
			c.Next()
			return
		}
		if !first {
			logger.Info("Duplicate delivery acknowledged",
				zap.String("idempotency_key", key),
				zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusOK, gin.H{
				"status":     "duplicate",
				"request_id": c.GetString("request_id"),
			})
			return
		}

		c.Next()
	}
}
