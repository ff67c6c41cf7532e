package redisclient

import (
  "context"
  "fmt"
  "time"

  "github.com/alim08/coingraph/pkg/metrics"
  "github.com/alim08/coingraph/pkg/models"
  "github.com/alim08/coingraph/pkg/resilience"
  "github.com/go-redis/redis/v8"
)

const (
  // LatestKey holds the most recent sample as a hash.
  LatestKey = "market:latest"
  // SamplesChannel receives every new sample as JSON.
  SamplesChannel = "market:samples"
)

type Client struct {
  rdb     *redis.Client
  breaker *resilience.Breaker
}

// New constructs a Client with sensible defaults & retry logic
func New(redisURL string) (*Client, error) {
  opt, err := redis.ParseURL(redisURL)
  if err != nil {
    return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
  }
  opt.PoolSize = 10
  opt.MinIdleConns = 2
  opt.MaxRetries = 3
  opt.DialTimeout = 5 * time.Second
  opt.ReadTimeout = 3 * time.Second
  opt.WriteTimeout = 3 * time.Second
  opt.IdleTimeout = 5 * time.Minute
  return &Client{rdb: redis.NewClient(opt), breaker: resilience.NewBreaker("redis")}, nil
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
  start := time.Now()
  err := fn()
  duration := time.Since(start).Seconds()

  metrics.RedisOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(duration)
  if err != nil {
    metrics.RedisErrors.WithLabelValues(operation).Inc()
  }

  return err
}

// PublishSample stores the sample as the latest snapshot and fans it out to
// subscribers.
func (c *Client) PublishSample(ctx context.Context, s models.MarketSample) error {
  payload, err := s.ToJSON()
  if err != nil {
    return err
  }
  if err := c.HSet(ctx, LatestKey, s.HashFields()...); err != nil {
    return fmt.Errorf("cache latest sample: %w", err)
  }
  if err := c.Publish(ctx, SamplesChannel, payload); err != nil {
    return fmt.Errorf("publish sample: %w", err)
  }
  return nil
}

// HSet sets hash fields with retry
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) error {
  return c.withMetrics("hset", func() error {
    return resilience.Retry(ctx, c.breaker, 3, func(ctx context.Context) error {
      ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
      defer cancel()
      return c.rdb.HSet(ctx, key, values...).Err()
    })
  })
}

// Publish wraps rdb.Publish with a short timeout
func (c *Client) Publish(ctx context.Context, channel string, msg interface{}) error {
  return c.withMetrics("publish", func() error {
    return resilience.Retry(ctx, c.breaker, 1, func(ctx context.Context) error {
      ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
      defer cancel()
      return c.rdb.Publish(ctx, channel, msg).Err()
    })
  })
}

// Latest reads back the cached snapshot hash.
func (c *Client) Latest(ctx context.Context) (map[string]string, error) {
  var out map[string]string
  err := c.withMetrics("hgetall", func() error {
    var err error
    out, err = c.rdb.HGetAll(ctx, LatestKey).Result()
    return err
  })
  return out, err
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
  return c.withMetrics("ping", func() error {
    return c.rdb.Ping(ctx).Err()
  })
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
  return c.rdb.Close()
}
