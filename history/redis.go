package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/internal/logging"
)

// List abstracts the Redis list operations used by RedisStore.
type List interface {
	LPush(ctx context.Context, key string, value string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)
	Del(ctx context.Context, key string) error
}

// RedisList adapts a go-redis client to List.
type RedisList struct {
	client redis.Cmdable
}

// NewRedisList wraps client.
func NewRedisList(client redis.Cmdable) *RedisList {
	return &RedisList{client: client}
}

func (l *RedisList) LPush(ctx context.Context, key string, value string) error {
	return l.client.LPush(ctx, key, value).Err()
}

func (l *RedisList) LTrim(ctx context.Context, key string, start, stop int64) error {
	return l.client.LTrim(ctx, key, start, stop).Err()
}

func (l *RedisList) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return l.client.LRange(ctx, key, start, stop).Result()
}

func (l *RedisList) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	return l.client.LRem(ctx, key, count, value).Result()
}

func (l *RedisList) Del(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// RedisConfig tunes RedisStore.
type RedisConfig struct {
	Key      string
	MaxItems int // default DefaultMaxItems

	// RetryAttempts includes the first try (default 3).
	RetryAttempts  int
	InitialBackoff time.Duration // default 50ms
	MaxBackoff     time.Duration // default 500ms

	Logger *zap.Logger
}

// RedisStore keeps the history as a Redis list of JSON entries, newest at
// the head.
type RedisStore struct {
	list   List
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisStore creates a store over list.
func NewRedisStore(list List, cfg RedisConfig) (*RedisStore, error) {
	if list == nil {
		return nil, errors.New("history: redis list is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("history: redis key is required")
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 50 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 500 * time.Millisecond
	}
	return &RedisStore{list: list, cfg: cfg, logger: logging.OrNop(cfg.Logger).Named("history")}, nil
}

func (s *RedisStore) Add(ctx context.Context, e Entry) error {
	if e.Text == "" {
		return ErrEmptyText
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("history: marshal entry: %w", err)
	}
	if err := s.withRetry(ctx, "history.add", func() error {
		return s.list.LPush(ctx, s.cfg.Key, string(raw))
	}); err != nil {
		return err
	}
	return s.withRetry(ctx, "history.trim", func() error {
		return s.list.LTrim(ctx, s.cfg.Key, 0, int64(s.cfg.MaxItems-1))
	})
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	raws, err := s.rawEntries(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.logger.Warn("history: skipping malformed entry", zap.String("key", s.cfg.Key), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) DeleteByText(ctx context.Context, text string) (int, error) {
	raws, err := s.rawEntries(ctx)
	if err != nil {
		return 0, err
	}

	// Entries with the same text differ by timestamp, so each raw value is
	// removed on its own.
	seen := make(map[string]bool)
	removed := 0
	for _, raw := range raws {
		var e Entry
		if json.Unmarshal([]byte(raw), &e) != nil || e.Text != text || seen[raw] {
			continue
		}
		seen[raw] = true
		var n int64
		if err := s.withRetry(ctx, "history.delete", func() error {
			var err error
			n, err = s.list.LRem(ctx, s.cfg.Key, 0, raw)
			return err
		}); err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.withRetry(ctx, "history.clear", func() error {
		return s.list.Del(ctx, s.cfg.Key)
	})
}

func (s *RedisStore) rawEntries(ctx context.Context) ([]string, error) {
	var raws []string
	err := s.withRetry(ctx, "history.list", func() error {
		var err error
		raws, err = s.list.LRange(ctx, s.cfg.Key, 0, -1)
		return err
	})
	return raws, err
}

// withRetry retries transient Redis failures with exponential backoff.
func (s *RedisStore) withRetry(ctx context.Context, operation string, fn func() error) error {
	opLogger := logging.WithOperation(s.logger, operation, s.cfg.Key)
	backoff := s.cfg.InitialBackoff
	var err error
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, s.cfg.Key, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.cfg.MaxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if !isTransientError(err) || attempt == s.cfg.RetryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, s.cfg.Key, err)
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, s.cfg.Key, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
