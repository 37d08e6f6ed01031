package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/cloudtally/cloudtally/internal/config"
)

const (
	keyIngestLock   = "ingest:lock:%s"
	keyVendorCalls  = "ingest:vendor:%s"
	ingestLockTTL   = 15 * time.Minute
	vendorCallRate  = 5.0
	vendorCallBurst = 10
)

// IngestGate coordinates ingestion across scheduler replicas: a per-account
// lock keeps two replicas from pulling the same account at once, and a
// per-provider token bucket caps how hard we hit each vendor API. Disabled
// when no Redis address is configured, in which case every call allows.
type IngestGate struct {
	enabled bool
	bucket  *TokenBucket
	locker  *Locker
}

func NewIngestGate(cfg config.Config) *IngestGate {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &IngestGate{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
	}
}

func (g *IngestGate) Enabled() bool {
	return g != nil && g.enabled
}

// AllowVendorCall rate-limits outbound calls per provider.
func (g *IngestGate) AllowVendorCall(ctx context.Context, provider string) (bool, error) {
	if !g.Enabled() {
		return true, nil
	}
	result, err := g.bucket.Allow(ctx, fmt.Sprintf(keyVendorCalls, strings.TrimSpace(provider)), vendorCallRate, vendorCallBurst)
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}

// TryLockAccount claims the ingestion lock for an account. The returned
// token must be passed back to ReleaseAccount.
func (g *IngestGate) TryLockAccount(ctx context.Context, accountID string) (string, bool, error) {
	if !g.Enabled() {
		return "", true, nil
	}
	return g.locker.TryLock(ctx, fmt.Sprintf(keyIngestLock, strings.TrimSpace(accountID)), ingestLockTTL)
}

func (g *IngestGate) ReleaseAccount(ctx context.Context, accountID, token string) error {
	if !g.Enabled() {
		return nil
	}
	return g.locker.Release(ctx, fmt.Sprintf(keyIngestLock, strings.TrimSpace(accountID)), token)
}
