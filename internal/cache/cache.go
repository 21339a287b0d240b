package cache

import (
	"context"
	"time"
)

// TokenCache maps a sync token to its account id so the hot auth path can
// skip the database. A miss is never an error.
type TokenCache interface {
	Get(ctx context.Context, token string) (string, bool, error)
	Set(ctx context.Context, token string, accountID string, ttl time.Duration) error
}

type NoopTokenCache struct{}

func (NoopTokenCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopTokenCache) Set(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}
