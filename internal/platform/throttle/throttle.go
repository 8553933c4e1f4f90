// Package throttle limits how often a caller may attempt an action within a
// rolling window, using redis counters shared by every server instance.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("scheduler.internal.platform.throttle")

// Config bounds attempts per key per window.
type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// DefaultConfig allows 10 booking attempts per patient per hour.
func DefaultConfig() Config {
	return Config{Limit: 10, Window: time.Hour, Prefix: "booking_attempts"}
}

// AttemptLimiter counts attempts with INCR and lets the key expire after the
// window. Both commands go out in one MULTI so a counter never outlives it. When redis is unreachable it fails open.
type AttemptLimiter struct {
	redis  *redis.Client
	logger zerolog.Logger
	config Config
}

func NewAttemptLimiter(client *redis.Client, config Config, logger zerolog.Logger) *AttemptLimiter {
	if config.Prefix == "" {
		config.Prefix = DefaultConfig().Prefix
	}
	return &AttemptLimiter{redis: client, logger: logger, config: config}
}

func (l *AttemptLimiter) key(id string) string {
	return fmt.Sprintf("%s:%s", l.config.Prefix, id)
}

// Allow records one attempt for id and reports whether it is within the limit.
func (l *AttemptLimiter) Allow(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "throttle.allow")
	defer span.End()

	key := l.key(id)
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		// NX leaves a running window alone and repairs a key that lost its TTL.
		pipe.ExpireNX(ctx, key, l.config.Window)
		return nil
	})
	if err != nil {
		l.logger.Error().Err(err).Str("key", key).Msg("attempt throttle unavailable, allowing")
		span.SetAttributes(attribute.Bool("throttle.fail_open", true))
		return true, nil
	}
	count := incr.Val()

	allowed := count <= int64(l.config.Limit)
	span.SetAttributes(attribute.Int64("throttle.count", count), attribute.Bool("throttle.exceeded", !allowed))
	if !allowed {
		l.logger.Warn().Str("key", key).Int64("count", count).Int("limit", l.config.Limit).Msg("attempt limit exceeded")
	}
	return allowed, nil
}
