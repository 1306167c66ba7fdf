// Package redis opens the optional Redis connection used by the status mirror.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

// ConnectOptions defines Redis connection retry behavior.
type ConnectOptions struct {
	Addr           string        // Redis address (ex: "localhost:6379")
	User           string        // Optional username
	Password       string        // Optional password
	RedisDB        int           // Redis DB number
	DialTimeout    time.Duration // Redis dial timeout
	ReadTimeout    time.Duration // Redis read timeout
	WriteTimeout   time.Duration // Redis write timeout
	PoolSize       int           // Redis connection pool size
	ConnectTimeout time.Duration // Total time allowed for connection attempts (ex: 10s)
	RetryInterval  time.Duration // Initial wait between retries, doubles each attempt
	MaxWait        time.Duration // Cap on the wait between retries
	PingTimeout    time.Duration // Timeout for each ping attempt
	WarnThreshold  int           // Attempts logged as warnings before escalating to errors
}

// connectionLogger handles all Redis connection logging.
type connectionLogger struct {
	logger logger.Logger
	addr   string
}

func (cl *connectionLogger) logConnectionStart(timeout time.Duration) {
	cl.logger.Info("connecting to redis",
		logger.String("addr", cl.addr),
		logger.Duration("timeout", timeout))
}

func (cl *connectionLogger) logSuccess(attempts int, elapsed time.Duration) {
	if attempts > 1 {
		cl.logger.Warn("connected to redis after retry",
			logger.String("addr", cl.addr),
			logger.Int("attempts", attempts),
			logger.Duration("elapsed", elapsed))
		return
	}
	cl.logger.Info("connected to redis", logger.String("addr", cl.addr))
}

func (cl *connectionLogger) logGiveUp(attempts int, timeout time.Duration, err error) {
	cl.logger.Warn("redis unavailable, status mirror disabled",
		logger.String("addr", cl.addr),
		logger.Int("attempts", attempts),
		logger.Duration("timeout", timeout),
		logger.Error(err))
}

func (cl *connectionLogger) logRetry(attempt, warnThreshold int, nextRetry time.Duration, err error) {
	if attempt <= warnThreshold {
		cl.logger.Warn("redis connection failed, retrying",
			logger.String("addr", cl.addr),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
		return
	}
	cl.logger.Error("redis still unavailable",
		logger.String("addr", cl.addr),
		logger.Int("attempt", attempt),
		logger.Duration("next_retry_in", nextRetry),
		logger.Error(err))
}

func validateOptions(opts ConnectOptions) error {
	switch {
	case opts.Addr == "":
		return fmt.Errorf("redis address must be set")
	case opts.ConnectTimeout <= 0:
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", opts.ConnectTimeout)
	case opts.RetryInterval <= 0:
		return fmt.Errorf("RetryInterval must be > 0, got %v", opts.RetryInterval)
	case opts.MaxWait <= 0:
		return fmt.Errorf("MaxWait must be > 0, got %v", opts.MaxWait)
	case opts.PingTimeout <= 0:
		return fmt.Errorf("PingTimeout must be > 0, got %v", opts.PingTimeout)
	case opts.WarnThreshold < 0:
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", opts.WarnThreshold)
	}
	return nil
}

// New creates a Redis client and pings it until it answers or
// ConnectTimeout elapses. The client is closed on failure.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	if err := connectWithRetry(ctx, client, opts, &connectionLogger{logger: log, addr: opts.Addr}); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func connectWithRetry(ctx context.Context, client *redis.Client, opts ConnectOptions, log *connectionLogger) error {
	log.logConnectionStart(opts.ConnectTimeout)

	policy := &backoff.ExponentialBackOff{
		InitialInterval:     opts.RetryInterval,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         opts.MaxWait,
	}

	start := time.Now()
	attempt := 0
	ping := func() (struct{}, error) {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
		return struct{}{}, client.Ping(pingCtx).Err()
	}

	_, err := backoff.Retry(ctx, ping,
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(opts.ConnectTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.logRetry(attempt, opts.WarnThreshold, next, err)
		}),
	)
	if err != nil {
		log.logGiveUp(attempt, opts.ConnectTimeout, err)
		return fmt.Errorf("redis unavailable at %s after %d attempts (timeout: %v): %w",
			opts.Addr, attempt, opts.ConnectTimeout, err)
	}

	log.logSuccess(attempt, time.Since(start))
	return nil
}
