package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/user/forum-subscriptions/internal/model"
)

// Name identifies the kind of subscription event
type Name string

const (
	SubscriptionCreated           Name = "subscription_created"
	SubscriptionDeleted           Name = "subscription_deleted"
	DiscussionSubscriptionCreated Name = "discussion_subscription_created"
	DiscussionSubscriptionDeleted Name = "discussion_subscription_deleted"
	SubscriptionModeUpdated       Name = "subscription_mode_updated"
)

// Other carries event-specific data
type Other struct {
	ForumID      uint                   `json:"forum_id"`
	DiscussionID uint                   `json:"discussion_id,omitempty"`
	Mode         model.SubscriptionMode `json:"mode,omitempty"`
}

// Snapshot is a copy of a discussion subscription row removed as a side
// effect of a forum-level change
type Snapshot struct {
	ID           uint       `json:"id"`
	UserID       uint       `json:"user_id"`
	ForumID      uint       `json:"forum_id"`
	DiscussionID uint       `json:"discussion_id"`
	Unsubscribed bool       `json:"unsubscribed"`
	SubscribedAt *time.Time `json:"subscribed_at,omitempty"`
}

// Event is a subscription change published for notification dispatch and audit
type Event struct {
	ID            string     `json:"id"`
	Name          Name       `json:"name"`
	ContextID     uint       `json:"context_id"`
	ObjectID      uint       `json:"object_id"`
	RelatedUserID uint       `json:"related_user_id"`
	Other         Other      `json:"other"`
	Snapshots     []Snapshot `json:"snapshots,omitempty"`
	Time          time.Time  `json:"time"`
}

// Sink receives published events
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// New builds an event about forum, stamped with a fresh id
func New(name Name, forum *model.Forum, objectID, relatedUserID uint) Event {
	return Event{
		ID:            uuid.NewString(),
		Name:          name,
		ContextID:     forum.ContextID,
		ObjectID:      objectID,
		RelatedUserID: relatedUserID,
		Other:         Other{ForumID: forum.ID},
		Time:          time.Now(),
	}
}

// AddSnapshots attaches copies of removed discussion subscription rows
func (e *Event) AddSnapshots(subs []*model.DiscussionSubscription) {
	for _, sub := range subs {
		e.Snapshots = append(e.Snapshots, Snapshot{
			ID:           sub.ID,
			UserID:       sub.UserID,
			ForumID:      sub.ForumID,
			DiscussionID: sub.DiscussionID,
			Unsubscribed: sub.Unsubscribed,
			SubscribedAt: sub.SubscribedAt,
		})
	}
}
