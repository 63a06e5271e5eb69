package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes events as structured log lines
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, event Event) error {
	e := s.logger.Info().
		Str("event_id", event.ID).
		Str("event", string(event.Name)).
		Uint("context_id", event.ContextID).
		Uint("object_id", event.ObjectID).
		Uint("related_user_id", event.RelatedUserID).
		Uint("forum_id", event.Other.ForumID)
	if event.Other.DiscussionID != 0 {
		e = e.Uint("discussion_id", event.Other.DiscussionID)
	}
	if event.Other.Mode != "" {
		e = e.Str("mode", string(event.Other.Mode))
	}
	if len(event.Snapshots) > 0 {
		e = e.Int("snapshots", len(event.Snapshots))
	}
	e.Msg("Subscription event")
	return nil
}
