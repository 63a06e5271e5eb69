package subscription

import (
	"context"
	"fmt"
	"sort"

	"github.com/user/forum-subscriptions/internal/model"
	"github.com/user/forum-subscriptions/internal/store"
)

// Resolver answers whether a user is effectively subscribed to a forum or to
// a discussion within it. It only reads; all lookups go through the Cache.
type Resolver struct {
	cache *Cache
	store store.Store
}

// NewResolver creates a resolver reading through cache
func NewResolver(cache *Cache) *Resolver {
	return &Resolver{cache: cache, store: cache.store}
}

// IsSubscribed reports the user's forum-level state. canForce is the
// caller's answer to whether the user holds the force-subscribe capability
// in the forum's context.
func (r *Resolver) IsSubscribed(ctx context.Context, userID uint, forum *model.Forum, canForce bool) (bool, error) {
	if forum.IsForceSubscribed() && canForce {
		return true, nil
	}
	return r.cache.FetchForumSubscribed(ctx, forum.ID, userID)
}

// IsSubscribedToDiscussion reports the user's effective state for one
// discussion: a forced capability holder is always subscribed, then a stored
// discussion preference wins, then the forum-level state applies.
func (r *Resolver) IsSubscribedToDiscussion(ctx context.Context, userID uint, forum *model.Forum, discussionID uint, canForce bool) (bool, error) {
	if forum.IsForceSubscribed() && canForce {
		return true, nil
	}

	prefs, err := r.cache.FetchDiscussionSubscriptions(ctx, forum.ID, userID)
	if err != nil {
		return false, err
	}
	if pref, ok := prefs[discussionID]; ok {
		return !pref.IsUnsubscribed(), nil
	}

	return r.cache.FetchForumSubscribed(ctx, forum.ID, userID)
}

// SubscribedUsers lists the ids of users holding a forum-level subscription,
// in ascending order
func (r *Resolver) SubscribedUsers(ctx context.Context, forum *model.Forum) ([]uint, error) {
	return r.cache.forumSubscribers(ctx, forum.ID)
}

// DiscussionSubscribers lists every user with a stored row in the forum whose
// effective state for the discussion is subscribed. Holders of the
// force-subscribe capability are not enumerated; enrolment lives elsewhere.
func (r *Resolver) DiscussionSubscribers(ctx context.Context, forum *model.Forum, discussionID uint) ([]uint, error) {
	subscribers, err := r.cache.forumSubscribers(ctx, forum.ID)
	if err != nil {
		return nil, err
	}
	prefs, err := r.cache.discussionPreferences(ctx, forum.ID)
	if err != nil {
		return nil, err
	}

	forumLevel := make(map[uint]bool, len(subscribers))
	for _, userID := range subscribers {
		forumLevel[userID] = true
	}

	candidates := make(map[uint]struct{}, len(forumLevel)+len(prefs))
	for userID := range forumLevel {
		candidates[userID] = struct{}{}
	}
	for userID := range prefs {
		candidates[userID] = struct{}{}
	}

	users := make([]uint, 0, len(candidates))
	for userID := range candidates {
		subscribed := forumLevel[userID]
		if pref, ok := prefs[userID][discussionID]; ok {
			subscribed = !pref.IsUnsubscribed()
		}
		if subscribed {
			users = append(users, userID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

// UnsubscribableForums lists the forums the user is subscribed to and may
// leave, that is every subscribed forum whose mode is not FORCED
func (r *Resolver) UnsubscribableForums(ctx context.Context, userID uint) ([]*model.Forum, error) {
	forums, err := r.store.GetUnsubscribableForums(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsubscribable forums: %w", err)
	}
	return forums, nil
}
