package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/internal/repository"
	"github.com/noah-isme/rc-quote-api/pkg/config"
)

type rateWindowStore interface {
	Update(ctx context.Context, key string, fn repository.RateWindowUpdateFunc) error
}

// RateLimiter admits at most MaxRequests per key inside a trailing window.
type RateLimiter struct {
	store     rateWindowStore
	window    time.Duration
	max       int
	enabled   bool
	whitelist map[string]struct{}
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewRateLimiter builds a limiter from configuration.
func NewRateLimiter(store rateWindowStore, cfg config.RateLimitConfig, metrics *MetricsService, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Hour
	}
	max := cfg.MaxRequests
	if max <= 0 {
		max = 3
	}
	whitelist := make(map[string]struct{}, len(cfg.Whitelist))
	for _, k := range cfg.Whitelist {
		whitelist[k] = struct{}{}
	}
	return &RateLimiter{
		store:     store,
		window:    window,
		max:       max,
		enabled:   cfg.Enabled,
		whitelist: whitelist,
		metrics:   metrics,
		logger:    logger,
	}
}

// Admit decides whether key may submit at now. Blocked attempts are not recorded.
func (l *RateLimiter) Admit(ctx context.Context, key string, now time.Time) (models.AdmissionDecision, error) {
	if !l.enabled {
		return models.AdmissionDecision{Allowed: true, Remaining: l.max}, nil
	}
	if _, ok := l.whitelist[key]; ok {
		return models.AdmissionDecision{Allowed: true, Remaining: l.max}, nil
	}

	var decision models.AdmissionDecision
	err := l.store.Update(ctx, key, func(rec *models.RateWindowRecord) (bool, error) {
		rec.Prune(now, l.window)
		count := rec.Count()
		if count >= l.max {
			decision = models.AdmissionDecision{
				Allowed:    false,
				Reason:     models.BlockReasonWindowFull,
				Count:      count,
				RetryAfter: rec.Oldest().Add(l.window).Sub(now),
			}
			return false, nil
		}
		rec.Append(now)
		decision = models.AdmissionDecision{
			Allowed:   true,
			Count:     count + 1,
			Remaining: l.max - count - 1,
		}
		return true, nil
	})
	if err != nil {
		l.metrics.ObserveAdmission("error")
		return models.AdmissionDecision{Allowed: false, Reason: models.BlockReasonStoreFailed}, err
	}

	if !decision.Allowed {
		l.metrics.ObserveAdmission("blocked")
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int("count", decision.Count),
			zap.Int("max", l.max),
			zap.Duration("retry_after", decision.RetryAfter),
		)
		return decision, nil
	}
	l.metrics.ObserveAdmission("allowed")
	return decision, nil
}
