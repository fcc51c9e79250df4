package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/agentdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyOrgMutations = "agentdesk:ratelimit:org:%s"

// OrgLimiter caps credit, call and payment mutations per organization.
// A nil limiter allows everything.
type OrgLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

func NewOrgLimiter(p Params) (*OrgLimiter, error) {
	cfg := p.Config.RateLimit
	if !cfg.Enabled {
		return nil, nil
	}
	if p.Redis == nil {
		p.Log.Warn("rate limit enabled without redis, mutations are not limited")
		return nil, nil
	}
	return New(p.Redis, cfg.OrgRate, cfg.OrgBurst)
}

func New(client *redis.Client, rate float64, burst int) (*OrgLimiter, error) {
	if rate <= 0 || burst <= 0 {
		return nil, errors.New("org rate limit must be positive")
	}
	bucket := NewTokenBucket(client)
	if bucket == nil {
		return nil, errors.New("rate limit redis client is required")
	}
	return &OrgLimiter{bucket: bucket, rate: rate, burst: burst}, nil
}

func (l *OrgLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *OrgLimiter) Allow(ctx context.Context, orgRef string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyOrgMutations, strings.ToLower(strings.TrimSpace(orgRef)))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
