// internal/store/store.go
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebuddy-cli/internal/config"
)

// Keys shared by the page context and the popup.
const (
	KeyProblemDescription = "problemDescription"
	KeyUserCode           = "userCode"
	KeySubmissionError    = "submissionError"
)

// Store is the extension-scoped key-value store. Writes replace the whole
// value of a key and the last writer wins; there are no multi-key
// transactions. A missing key is reported as ok=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// scopedKey namespaces a key by the site origin it belongs to.
func scopedKey(origin, key string) string {
	return origin + "|" + key
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.StoreDriverMemory, "":
		return NewMemory(cfg.Origin), nil
	case config.StoreDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s, err := NewRedis(ctx, client, cfg.Origin, cfg.Redis.TTL, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
