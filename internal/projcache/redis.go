package projcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"redline/api/internal/metrics"
	"redline/api/internal/review"
)

const (
	DefaultTTL = 10 * time.Minute
	fenceTTL   = 7 * 24 * time.Hour
)

// Redis shares projections between API processes. Each clause has a fence
// counter that Invalidate increments; Put only writes while the fence still
// matches the caller's ticket.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis connects to redisURL and checks the connection.
func NewRedis(redisURL string, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, ttl, logger), nil
}

// NewRedisWithClient creates a cache from an existing Redis client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		prefix: "projection:",
		ttl:    ttl,
		logger: logger,
	}
}

func (r *Redis) key(clauseID string) string {
	return r.prefix + clauseID
}

func (r *Redis) fenceKey(clauseID string) string {
	return r.prefix + "fence:" + clauseID
}

func (r *Redis) Get(ctx context.Context, clauseID string) (review.Projection, Ticket, bool) {
	var value, fence *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		value = pipe.Get(ctx, r.key(clauseID))
		fence = pipe.Get(ctx, r.fenceKey(clauseID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.WarnContext(ctx, "projection cache read failed", "clause_id", clauseID, "error", err)
		metrics.CacheLookups.WithLabelValues("redis", "error").Inc()
		return review.Projection{}, 0, false
	}

	ticket, err := parseTicket(fence)
	if err != nil {
		r.logger.WarnContext(ctx, "projection cache fence unreadable", "clause_id", clauseID, "error", err)
		metrics.CacheLookups.WithLabelValues("redis", "error").Inc()
		return review.Projection{}, 0, false
	}

	raw, err := value.Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("redis", "miss").Inc()
		return review.Projection{}, ticket, false
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("redis", "error").Inc()
		return review.Projection{}, ticket, false
	}

	var p review.Projection
	if err := json.Unmarshal(raw, &p); err != nil {
		r.logger.WarnContext(ctx, "projection cache entry unreadable", "clause_id", clauseID, "error", err)
		metrics.CacheLookups.WithLabelValues("redis", "error").Inc()
		return review.Projection{}, ticket, false
	}
	metrics.CacheLookups.WithLabelValues("redis", "hit").Inc()
	return p, ticket, true
}

func (r *Redis) Put(ctx context.Context, clauseID string, ticket Ticket, p review.Projection) {
	raw, err := json.Marshal(p)
	if err != nil {
		r.logger.WarnContext(ctx, "projection cache encode failed", "clause_id", clauseID, "error", err)
		return
	}

	fenceKey := r.fenceKey(clauseID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := parseTicket(tx.Get(ctx, fenceKey))
		if err != nil {
			return err
		}
		if current > ticket {
			metrics.CacheStalePuts.WithLabelValues("redis").Inc()
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(clauseID), raw, r.ttl)
			return nil
		})
		return err
	}, fenceKey)
	if errors.Is(err, redis.TxFailedErr) {
		// fence moved while writing
		metrics.CacheStalePuts.WithLabelValues("redis").Inc()
		return
	}
	if err != nil {
		r.logger.WarnContext(ctx, "projection cache write failed", "clause_id", clauseID, "error", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, clauseID string) error {
	fenceKey := r.fenceKey(clauseID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, fenceKey)
		pipe.Expire(ctx, fenceKey, fenceTTL)
		pipe.Del(ctx, r.key(clauseID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate projection: %w", err)
	}
	metrics.CacheInvalidations.WithLabelValues("redis").Inc()
	return nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func parseTicket(cmd *redis.StringCmd) (Ticket, error) {
	value, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fence %q: %w", value, err)
	}
	return Ticket(n), nil
}
