package events

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/user/forum-subscriptions/internal/config"
)

// Open builds the sink selected by cfg, throttled to cfg.RateLimit events
// per second. The returned function releases the sink's connections.
func Open(cfg *config.EventsConfig) (Sink, func() error, error) {
	var (
		sink    Sink
		closeFn = func() error { return nil }
	)

	switch cfg.Sink {
	case config.SinkLog:
		sink = NewLogSink(zerolog.New(os.Stdout).With().Timestamp().Str("component", "events").Logger())
	case config.SinkKafka:
		kafka, err := NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		sink, closeFn = kafka, kafka.Close
	case config.SinkRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rs := NewRedisSink(client, cfg.RedisChannel)
		sink, closeFn = rs, rs.Close
	default:
		return nil, nil, fmt.Errorf("unknown event sink %q", cfg.Sink)
	}

	return Throttle(sink, cfg.RateLimit), closeFn, nil
}
