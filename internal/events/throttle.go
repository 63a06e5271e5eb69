package events

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// ThrottledSink limits how fast events reach the wrapped sink
type ThrottledSink struct {
	sink    Sink
	limiter *rate.Limiter
}

// Throttle wraps sink with a limiter allowing perSecond events per second.
// A non-positive rate returns sink unchanged.
func Throttle(sink Sink, perSecond float64) Sink {
	if perSecond <= 0 {
		return sink
	}
	return &ThrottledSink{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (s *ThrottledSink) Publish(ctx context.Context, event Event) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return s.sink.Publish(ctx, event)
}
