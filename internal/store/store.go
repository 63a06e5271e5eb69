package store

import (
	"context"

	"github.com/user/forum-subscriptions/internal/model"
)

// Store defines the record store consumed by the subscription engine.
// Reads of a single missing row return nil with a nil error.
type Store interface {
	// Forum configuration
	GetForum(ctx context.Context, forumID uint) (*model.Forum, error)
	SaveForum(ctx context.Context, forum *model.Forum) error
	SetSubscriptionMode(ctx context.Context, forumID uint, mode model.SubscriptionMode) error
	GetDiscussion(ctx context.Context, discussionID uint) (*model.Discussion, error)
	SaveDiscussion(ctx context.Context, discussion *model.Discussion) error

	// Forum-level subscriptions
	GetForumSubscription(ctx context.Context, userID, forumID uint) (*model.ForumSubscription, error)
	GetForumSubscriptions(ctx context.Context, forumID uint) ([]*model.ForumSubscription, error)
	// GetCourseSubscriptionStates maps every non-FORCED forum in the course
	// to whether the user holds a forum-level subscription to it.
	GetCourseSubscriptionStates(ctx context.Context, courseID, userID uint) (map[uint]bool, error)
	CreateForumSubscription(ctx context.Context, sub *model.ForumSubscription) error
	DeleteForumSubscription(ctx context.Context, id uint) error
	GetUnsubscribableForums(ctx context.Context, userID uint) ([]*model.Forum, error)

	// Discussion-level subscriptions
	GetDiscussionSubscription(ctx context.Context, userID, discussionID uint) (*model.DiscussionSubscription, error)
	GetUserDiscussionSubscriptions(ctx context.Context, userID, forumID uint) ([]*model.DiscussionSubscription, error)
	GetDiscussionSubscriptions(ctx context.Context, forumID uint) ([]*model.DiscussionSubscription, error)
	SaveDiscussionSubscription(ctx context.Context, sub *model.DiscussionSubscription) error
	DeleteDiscussionSubscription(ctx context.Context, id uint) error
	// PruneDiscussionSubscriptions deletes the user's opt-in rows for the
	// forum, keeps the opt-outs, and returns what was deleted.
	PruneDiscussionSubscriptions(ctx context.Context, userID, forumID uint) ([]*model.DiscussionSubscription, error)

	// Digest preferences
	SaveDigestPreference(ctx context.Context, pref *model.DigestPreference) error
	DeleteDigestPreference(ctx context.Context, userID, forumID uint) error

	// Health check
	Ping(ctx context.Context) error
	Close() error
}
