package idempotency

import (
	"time"

	"go.uber.org/zap"
)

type storeConfig struct {
	ttl time.Duration
}

// StoreOption configures an InMemoryStore.
type StoreOption func(*storeConfig)

// WithTTL bounds how long terminal records are kept before lazy eviction.
//
// Zero (the default) keeps records for the lifetime of the process. A TTL
// shrinks the deduplication window: a retry arriving after eviction is
// treated as a fresh call.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

type executorConfig struct {
	logger *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorConfig)

// WithLogger sets the logger used for internal consistency alerts.
// Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.logger = logger
	}
}
