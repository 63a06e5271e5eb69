package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/forum-subscriptions/internal/events"
	"github.com/user/forum-subscriptions/internal/metrics"
	"github.com/user/forum-subscriptions/internal/model"
	"github.com/user/forum-subscriptions/internal/store"
)

// Service changes forum and discussion subscriptions. Every mutation writes
// the record store, updates the shared Cache before returning and publishes
// an event describing the change.
type Service struct {
	store    store.Store
	cache    *Cache
	resolver *Resolver
	sink     events.Sink
	now      func() time.Time

	// mu serializes check-then-write sequences within this process.
	// Events are published after it is released.
	mu sync.Mutex
}

// NewService creates a mutation service sharing cache with its resolver
func NewService(cache *Cache, sink events.Sink) *Service {
	return &Service{
		store:    cache.store,
		cache:    cache,
		resolver: NewResolver(cache),
		sink:     sink,
		now:      time.Now,
	}
}

// Resolver returns the resolver reading through the service's cache
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// SubscribeUserToForum gives the user a forum-level subscription. created is
// false when the user was already subscribed, in which case nothing changes.
// A user-initiated subscription also removes the user's discussion opt-ins in
// the forum, keeping the opt-outs.
func (s *Service) SubscribeUserToForum(ctx context.Context, userID uint, forum *model.Forum, userInitiated bool) (uint, bool, error) {
	id, event, err := s.subscribeUserToForum(ctx, userID, forum, userInitiated)
	s.finish(ctx, "subscribe_forum", event, err)
	if err != nil || event == nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *Service) subscribeUserToForum(ctx context.Context, userID uint, forum *model.Forum, userInitiated bool) (uint, *events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subscribed, err := s.resolver.IsSubscribed(ctx, userID, forum, false)
	if err != nil {
		return 0, nil, err
	}
	if subscribed {
		return 0, nil, nil
	}

	sub := &model.ForumSubscription{UserID: userID, ForumID: forum.ID, CreatedAt: s.now()}
	if err := s.store.CreateForumSubscription(ctx, sub); err != nil {
		return 0, nil, err
	}
	// The row is committed; the cache follows it even if pruning fails below.
	s.cache.setForumSubscribed(forum.ID, userID, true)

	var pruned []*model.DiscussionSubscription
	if userInitiated {
		pruned, err = s.prune(ctx, userID, forum.ID)
		if err != nil {
			return 0, nil, err
		}
	}

	log.Info().
		Uint("userID", userID).
		Uint("forumID", forum.ID).
		Uint("subscriptionID", sub.ID).
		Int("pruned", len(pruned)).
		Msg("User subscribed to forum")

	event := events.New(events.SubscriptionCreated, forum, sub.ID, userID)
	event.AddSnapshots(pruned)
	return sub.ID, &event, nil
}

// UnsubscribeUserFromForum removes the user's forum-level subscription and
// digest preference. It reports true whether or not a row existed. A
// user-initiated unsubscription also removes the user's discussion opt-ins in
// the forum, keeping the opt-outs.
func (s *Service) UnsubscribeUserFromForum(ctx context.Context, userID uint, forum *model.Forum, userInitiated bool) (bool, error) {
	event, err := s.unsubscribeUserFromForum(ctx, userID, forum, userInitiated)
	s.finish(ctx, "unsubscribe_forum", event, err)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) unsubscribeUserFromForum(ctx context.Context, userID uint, forum *model.Forum, userInitiated bool) (*events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteDigestPreference(ctx, userID, forum.ID); err != nil {
		return nil, err
	}

	existing, err := s.store.GetForumSubscription(ctx, userID, forum.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.store.DeleteForumSubscription(ctx, existing.ID); err != nil {
			return nil, err
		}
	}
	s.cache.setForumSubscribed(forum.ID, userID, false)

	var pruned []*model.DiscussionSubscription
	if userInitiated {
		pruned, err = s.prune(ctx, userID, forum.ID)
		if err != nil {
			return nil, err
		}
	}

	if existing == nil && len(pruned) == 0 {
		return nil, nil
	}

	log.Info().
		Uint("userID", userID).
		Uint("forumID", forum.ID).
		Int("pruned", len(pruned)).
		Msg("User unsubscribed from forum")

	var objectID uint
	if existing != nil {
		objectID = existing.ID
	}
	event := events.New(events.SubscriptionDeleted, forum, objectID, userID)
	event.AddSnapshots(pruned)
	return &event, nil
}

// SubscribeUserToDiscussion makes the user subscribed to one discussion.
// It reports false when the user already was. Only rows that differ from
// the forum-level state are kept: a subscribed forum member has a stale
// opt-out removed, anyone else gets an opt-in row.
func (s *Service) SubscribeUserToDiscussion(ctx context.Context, userID uint, discussion *model.Discussion) (bool, error) {
	event, err := s.setDiscussionState(ctx, userID, discussion, true)
	s.finish(ctx, "subscribe_discussion", event, err)
	return event != nil && err == nil, err
}

// UnsubscribeUserFromDiscussion makes the user unsubscribed from one
// discussion. It reports false when the user already was. A user without a
// forum-level subscription has a stale opt-in removed, a subscribed forum
// member gets an opt-out row.
func (s *Service) UnsubscribeUserFromDiscussion(ctx context.Context, userID uint, discussion *model.Discussion) (bool, error) {
	event, err := s.setDiscussionState(ctx, userID, discussion, false)
	s.finish(ctx, "unsubscribe_discussion", event, err)
	return event != nil && err == nil, err
}

// setDiscussionState moves the user's effective state for the discussion to
// subscribed, keeping a row only when it disagrees with the forum level
func (s *Service) setDiscussionState(ctx context.Context, userID uint, discussion *model.Discussion, subscribed bool) (*events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	forum, existing, err := s.loadDiscussionState(ctx, userID, discussion)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Unsubscribed != subscribed {
		return nil, nil
	}

	forumSubscribed, err := s.resolver.IsSubscribed(ctx, userID, forum, false)
	if err != nil {
		return nil, err
	}

	var objectID uint
	if forumSubscribed == subscribed {
		if existing == nil {
			return nil, nil
		}
		if err := s.store.DeleteDiscussionSubscription(ctx, existing.ID); err != nil {
			return nil, err
		}
		s.cache.dropDiscussionPreferences(forum.ID, userID, discussion.ID)
		objectID = existing.ID
	} else {
		sub := existing
		if sub == nil {
			sub = &model.DiscussionSubscription{UserID: userID, ForumID: forum.ID, DiscussionID: discussion.ID}
		}
		pref := model.Unsubscribed()
		if subscribed {
			pref = model.SubscribedSince(s.now())
		}
		sub.SetPreference(pref)
		if err := s.store.SaveDiscussionSubscription(ctx, sub); err != nil {
			return nil, err
		}
		s.cache.setDiscussionPreference(forum.ID, userID, discussion.ID, pref)
		objectID = sub.ID
	}

	name := events.DiscussionSubscriptionDeleted
	if subscribed {
		name = events.DiscussionSubscriptionCreated
	}
	event := events.New(name, forum, objectID, userID)
	event.Other.DiscussionID = discussion.ID
	return &event, nil
}

// SetSubscriptionMode changes the forum's subscription mode. It reports
// false when the forum already had that mode.
func (s *Service) SetSubscriptionMode(ctx context.Context, forum *model.Forum, mode model.SubscriptionMode) (bool, error) {
	event, err := s.setSubscriptionMode(ctx, forum, mode)
	s.finish(ctx, "set_mode", event, err)
	return event != nil && err == nil, err
}

func (s *Service) setSubscriptionMode(ctx context.Context, forum *model.Forum, mode model.SubscriptionMode) (*events.Event, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid subscription mode %q", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if forum.SubscriptionMode == mode {
		return nil, nil
	}
	if err := s.store.SetSubscriptionMode(ctx, forum.ID, mode); err != nil {
		return nil, err
	}
	forum.SubscriptionMode = mode

	log.Info().
		Uint("forumID", forum.ID).
		Str("mode", string(mode)).
		Msg("Forum subscription mode updated")

	event := events.New(events.SubscriptionModeUpdated, forum, forum.ID, 0)
	event.Other.Mode = mode
	return &event, nil
}

// loadDiscussionState reads the discussion's forum and the user's stored row
// for the discussion, if any
func (s *Service) loadDiscussionState(ctx context.Context, userID uint, discussion *model.Discussion) (*model.Forum, *model.DiscussionSubscription, error) {
	forum, err := s.store.GetForum(ctx, discussion.ForumID)
	if err != nil {
		return nil, nil, err
	}
	if forum == nil {
		return nil, nil, fmt.Errorf("forum %d of discussion %d not found", discussion.ForumID, discussion.ID)
	}

	existing, err := s.store.GetDiscussionSubscription(ctx, userID, discussion.ID)
	if err != nil {
		return nil, nil, err
	}
	return forum, existing, nil
}

// prune deletes the user's discussion opt-ins for the forum and drops them
// from the cache
func (s *Service) prune(ctx context.Context, userID, forumID uint) ([]*model.DiscussionSubscription, error) {
	pruned, err := s.store.PruneDiscussionSubscriptions(ctx, userID, forumID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(pruned))
	for _, sub := range pruned {
		ids = append(ids, sub.DiscussionID)
	}
	s.cache.dropDiscussionPreferences(forumID, userID, ids...)
	return pruned, nil
}

// finish records the mutation outcome and publishes its event, if any.
// It runs after the service lock is released so a slow sink does not hold up
// other mutations.
func (s *Service) finish(ctx context.Context, op string, event *events.Event, err error) {
	switch {
	case err != nil:
		metrics.RecordMutation(op, "error")
	case event != nil:
		metrics.RecordMutation(op, "changed")
		s.publish(ctx, *event)
	default:
		metrics.RecordMutation(op, "noop")
	}
}

// publish hands the event to the sink. The mutation is already committed,
// so a failed publish is logged rather than returned.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.sink.Publish(ctx, event); err != nil {
		metrics.RecordEvent(string(event.Name), "failed")
		log.Error().
			Err(err).
			Str("event", string(event.Name)).
			Str("eventID", event.ID).
			Uint("objectID", event.ObjectID).
			Msg("Failed to publish subscription event")
		return
	}
	metrics.RecordEvent(string(event.Name), "published")
}
