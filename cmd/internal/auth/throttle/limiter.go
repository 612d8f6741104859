package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited reports that the attempt budget is spent for the
	// current window.
	ErrRateLimited = errors.New("throttle: rate limited")

	// ErrUnavailable reports a Redis failure. Callers decide whether to
	// fail open or closed.
	ErrUnavailable = errors.New("throttle: redis unavailable")
)

// Config tunes the login limiter.
type Config struct {
	// MaxAttempts is the failed-attempt budget per key per window.
	MaxAttempts int
	// Window is the fixed window length; the counter's TTL.
	Window time.Duration
	// PerIP additionally throttles by client IP when true.
	PerIP bool
}

// DefaultConfig allows 10 failures per 15 minutes per key.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 10,
		Window:      15 * time.Minute,
		PerIP:       true,
	}
}

// Limiter enforces login attempt budgets with Redis counters.
type Limiter struct {
	rdb redis.UniversalClient
	cfg Config
}

// New creates a Limiter backed by the given Redis client.
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Limiter{rdb: rdb, cfg: cfg}
}

// Allow reports whether a login attempt for email+ip may proceed. It does
// not consume budget; call RecordFailure when the attempt fails.
func (l *Limiter) Allow(ctx context.Context, email, ip string) error {
	if err := l.check(ctx, emailKey(email)); err != nil {
		return err
	}
	if l.cfg.PerIP && ip != "" {
		if err := l.check(ctx, ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// RecordFailure counts a failed attempt against email and ip.
func (l *Limiter) RecordFailure(ctx context.Context, email, ip string) error {
	if _, err := l.bump(ctx, emailKey(email)); err != nil {
		return err
	}
	if l.cfg.PerIP && ip != "" {
		if _, err := l.bump(ctx, ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears counters after a successful login.
func (l *Limiter) Reset(ctx context.Context, email, ip string) error {
	keys := []string{emailKey(email)}
	if l.cfg.PerIP && ip != "" {
		keys = append(keys, ipKey(ip))
	}
	if err := l.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Limiter) check(ctx context.Context, key string) error {
	count, err := l.rdb.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.cfg.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) bump(ctx context.Context, key string) (int64, error) {
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Fixed-window semantics: the first hit in a window sets the TTL.
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.cfg.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}

func emailKey(email string) string { return "gate:login:email:" + email }
func ipKey(ip string) string       { return "gate:login:ip:" + ip }
