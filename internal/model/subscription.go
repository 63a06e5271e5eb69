package model

import (
	"time"
)

// ForumSubscription records that a user is subscribed to a whole forum
type ForumSubscription struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"uniqueIndex:idx_forum_subscriptions_user_forum;not null"`
	ForumID   uint `gorm:"uniqueIndex:idx_forum_subscriptions_user_forum;index;not null"`
	CreatedAt time.Time
}

// TableName returns the table name for ForumSubscription
func (ForumSubscription) TableName() string {
	return "forum_subscriptions"
}

// DiscussionSubscription overrides the forum-level default for one discussion.
// Unsubscribed alone decides whether the row opts the user out; any other
// row opts in, since SubscribedAt.
type DiscussionSubscription struct {
	ID           uint `gorm:"primaryKey"`
	UserID       uint `gorm:"uniqueIndex:idx_discussion_subscriptions_user_discussion;not null"`
	ForumID      uint `gorm:"index;not null"`
	DiscussionID uint `gorm:"uniqueIndex:idx_discussion_subscriptions_user_discussion;not null"`
	Unsubscribed bool `gorm:"not null;default:false"`
	SubscribedAt *time.Time
}

// TableName returns the table name for DiscussionSubscription
func (DiscussionSubscription) TableName() string {
	return "discussion_subscriptions"
}

// Preference returns the stored preference as a tagged value. An opt-in row
// without a timestamp reads as subscribed since the zero time.
func (s *DiscussionSubscription) Preference() Preference {
	if s.Unsubscribed {
		return Unsubscribed()
	}
	var at time.Time
	if s.SubscribedAt != nil {
		at = *s.SubscribedAt
	}
	return SubscribedSince(at)
}

// SetPreference stores p in the row
func (s *DiscussionSubscription) SetPreference(p Preference) {
	if at, ok := p.SubscribedAt(); ok {
		s.Unsubscribed = false
		s.SubscribedAt = &at
		return
	}
	s.Unsubscribed = true
	s.SubscribedAt = nil
}

// DigestPreference holds a user's digest setting for a forum
type DigestPreference struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"uniqueIndex:idx_digest_preferences_user_forum;not null"`
	ForumID   uint `gorm:"uniqueIndex:idx_digest_preferences_user_forum;not null"`
	MaxDigest int  `gorm:"not null;default:0"`
}

// TableName returns the table name for DigestPreference
func (DigestPreference) TableName() string {
	return "digest_preferences"
}
