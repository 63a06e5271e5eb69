package subscription

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/user/forum-subscriptions/internal/metrics"
	"github.com/user/forum-subscriptions/internal/model"
	"github.com/user/forum-subscriptions/internal/store"
)

// Entry is a cache lookup result: either not fetched yet, or a value.
type Entry[T any] struct {
	value   T
	fetched bool
}

func notFetched[T any]() Entry[T] {
	return Entry[T]{}
}

func fetched[T any](v T) Entry[T] {
	return Entry[T]{value: v, fetched: true}
}

// Get returns the cached value and whether one was present
func (e Entry[T]) Get() (T, bool) {
	return e.value, e.fetched
}

// forumTable holds the forum-level flags known for one forum.
// complete means every subscription row of the forum has been loaded, so an
// absent user is known to be unsubscribed.
type forumTable struct {
	complete bool
	users    map[uint]bool
}

func (t *forumTable) lookup(userID uint) Entry[bool] {
	if subscribed, ok := t.users[userID]; ok {
		return fetched(subscribed)
	}
	if t.complete {
		return fetched(false)
	}
	return notFetched[bool]()
}

func (t *forumTable) subscribers() []uint {
	users := make([]uint, 0, len(t.users))
	for userID, subscribed := range t.users {
		if subscribed {
			users = append(users, userID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// discussionTable holds the discussion preferences known for one forum,
// per user and then per discussion.
type discussionTable struct {
	complete bool
	users    map[uint]map[uint]model.Preference
}

func (t *discussionTable) lookup(userID uint) Entry[map[uint]model.Preference] {
	if prefs, ok := t.users[userID]; ok {
		return fetched(prefs)
	}
	if t.complete {
		return fetched(map[uint]model.Preference{})
	}
	return notFetched[map[uint]model.Preference]()
}

func (t *discussionTable) copyUsers() map[uint]map[uint]model.Preference {
	users := make(map[uint]map[uint]model.Preference, len(t.users))
	for userID, prefs := range t.users {
		users[userID] = copyPreferences(prefs)
	}
	return users
}

// Cache memoizes forum-level subscription flags and discussion-level
// preferences read from the record store. Values are projections of the
// store and are only kept in step by mutations made through a Service
// sharing this Cache; changes made by other processes are not seen until a
// reset.
//
// A Cache is safe for concurrent use. The lock is never held across store
// calls; a load that overlaps a mutation or reset is returned to its caller
// but not kept.
type Cache struct {
	store store.Store

	mu          sync.Mutex
	generation  uint64
	forums      map[uint]*forumTable
	discussions map[uint]*discussionTable
}

// NewCache creates an empty cache over s
func NewCache(s store.Store) *Cache {
	return &Cache{
		store:       s,
		forums:      make(map[uint]*forumTable),
		discussions: make(map[uint]*discussionTable),
	}
}

func (c *Cache) forumTableLocked(forumID uint) *forumTable {
	t, ok := c.forums[forumID]
	if !ok {
		t = &forumTable{users: make(map[uint]bool)}
		c.forums[forumID] = t
	}
	return t
}

func (c *Cache) discussionTableLocked(forumID uint) *discussionTable {
	t, ok := c.discussions[forumID]
	if !ok {
		t = &discussionTable{users: make(map[uint]map[uint]model.Preference)}
		c.discussions[forumID] = t
	}
	return t
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Cache) lookupForum(forumID, userID uint) Entry[bool] {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.forums[forumID]
	if !ok {
		return notFetched[bool]()
	}
	return t.lookup(userID)
}

func (c *Cache) lookupDiscussions(forumID, userID uint) Entry[map[uint]model.Preference] {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.discussions[forumID]
	if !ok {
		return notFetched[map[uint]model.Preference]()
	}
	entry := t.lookup(userID)
	if prefs, ok := entry.Get(); ok {
		return fetched(copyPreferences(prefs))
	}
	return entry
}

// FetchForumSubscribed reports whether the user holds a forum-level
// subscription, loading the single (user, forum) row on a miss. The forum is
// not marked complete by this call.
func (c *Cache) FetchForumSubscribed(ctx context.Context, forumID, userID uint) (bool, error) {
	if subscribed, ok := c.lookupForum(forumID, userID).Get(); ok {
		metrics.RecordCacheLookup("forum", true)
		return subscribed, nil
	}
	metrics.RecordCacheLookup("forum", false)

	return c.loadForumUser(ctx, forumID, userID)
}

// FillForumCacheForUser memoizes the forum-level flag of one user
func (c *Cache) FillForumCacheForUser(ctx context.Context, forumID, userID uint) error {
	if _, ok := c.lookupForum(forumID, userID).Get(); ok {
		return nil
	}
	_, err := c.loadForumUser(ctx, forumID, userID)
	return err
}

func (c *Cache) loadForumUser(ctx context.Context, forumID, userID uint) (bool, error) {
	gen := c.currentGeneration()

	metrics.RecordStoreLoad("forum_user")
	sub, err := c.store.GetForumSubscription(ctx, userID, forumID)
	if err != nil {
		return false, fmt.Errorf("failed to load forum subscription: %w", err)
	}
	subscribed := sub != nil

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.forumTableLocked(forumID).users[userID] = subscribed
	}
	return subscribed, nil
}

// FillForumCache loads every forum-level subscription of a forum in one
// query and marks the forum complete
func (c *Cache) FillForumCache(ctx context.Context, forumID uint) error {
	_, err := c.forumSubscribers(ctx, forumID)
	return err
}

// forumSubscribers returns the ids of every forum-level subscriber, filling
// the forum table when it is not complete yet.
func (c *Cache) forumSubscribers(ctx context.Context, forumID uint) ([]uint, error) {
	c.mu.Lock()
	if t, ok := c.forums[forumID]; ok && t.complete {
		users := t.subscribers()
		c.mu.Unlock()
		return users, nil
	}
	gen := c.generation
	c.mu.Unlock()

	metrics.RecordStoreLoad("forum_all")
	subs, err := c.store.GetForumSubscriptions(ctx, forumID)
	if err != nil {
		return nil, fmt.Errorf("failed to load forum subscriptions: %w", err)
	}

	t := &forumTable{complete: true, users: make(map[uint]bool, len(subs))}
	for _, sub := range subs {
		t.users[sub.UserID] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.forums[forumID] = t
	}
	return t.subscribers(), nil
}

// FillCourseCache loads the user's forum-level flag for every non-forced
// forum of a course in one query
func (c *Cache) FillCourseCache(ctx context.Context, courseID, userID uint) error {
	gen := c.currentGeneration()

	metrics.RecordStoreLoad("course")
	states, err := c.store.GetCourseSubscriptionStates(ctx, courseID, userID)
	if err != nil {
		return fmt.Errorf("failed to load course subscriptions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return nil
	}
	for forumID, subscribed := range states {
		c.forumTableLocked(forumID).users[userID] = subscribed
	}
	return nil
}

// FetchDiscussionSubscriptions returns the user's discussion preferences
// within a forum, keyed by discussion id
func (c *Cache) FetchDiscussionSubscriptions(ctx context.Context, forumID, userID uint) (map[uint]model.Preference, error) {
	if prefs, ok := c.lookupDiscussions(forumID, userID).Get(); ok {
		metrics.RecordCacheLookup("discussion", true)
		return prefs, nil
	}
	metrics.RecordCacheLookup("discussion", false)

	return c.loadDiscussionUser(ctx, forumID, userID)
}

// FillDiscussionCacheForUser memoizes one user's discussion preferences for a
// forum. Finding no rows is remembered as an empty set.
func (c *Cache) FillDiscussionCacheForUser(ctx context.Context, forumID, userID uint) error {
	if _, ok := c.lookupDiscussions(forumID, userID).Get(); ok {
		return nil
	}
	_, err := c.loadDiscussionUser(ctx, forumID, userID)
	return err
}

func (c *Cache) loadDiscussionUser(ctx context.Context, forumID, userID uint) (map[uint]model.Preference, error) {
	gen := c.currentGeneration()

	metrics.RecordStoreLoad("discussion_user")
	subs, err := c.store.GetUserDiscussionSubscriptions(ctx, userID, forumID)
	if err != nil {
		return nil, fmt.Errorf("failed to load discussion subscriptions: %w", err)
	}

	prefs := make(map[uint]model.Preference, len(subs))
	for _, sub := range subs {
		prefs[sub.DiscussionID] = sub.Preference()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.discussionTableLocked(forumID).users[userID] = copyPreferences(prefs)
	}
	return prefs, nil
}

// FillDiscussionCache loads every discussion preference of a forum in one
// query and marks the forum complete
func (c *Cache) FillDiscussionCache(ctx context.Context, forumID uint) error {
	_, err := c.discussionPreferences(ctx, forumID)
	return err
}

// discussionPreferences returns every stored preference of a forum keyed by
// user and then discussion, filling the discussion table when it is not
// complete yet. The result is a copy.
func (c *Cache) discussionPreferences(ctx context.Context, forumID uint) (map[uint]map[uint]model.Preference, error) {
	c.mu.Lock()
	if t, ok := c.discussions[forumID]; ok && t.complete {
		users := t.copyUsers()
		c.mu.Unlock()
		return users, nil
	}
	gen := c.generation
	c.mu.Unlock()

	metrics.RecordStoreLoad("discussion_all")
	subs, err := c.store.GetDiscussionSubscriptions(ctx, forumID)
	if err != nil {
		return nil, fmt.Errorf("failed to load discussion subscriptions: %w", err)
	}

	t := &discussionTable{complete: true, users: make(map[uint]map[uint]model.Preference)}
	for _, sub := range subs {
		prefs, ok := t.users[sub.UserID]
		if !ok {
			prefs = make(map[uint]model.Preference)
			t.users[sub.UserID] = prefs
		}
		prefs[sub.DiscussionID] = sub.Preference()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.discussions[forumID] = t
	}
	return t.copyUsers(), nil
}

// ResetForumCache drops every forum-level entry
func (c *Cache) ResetForumCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.forums = make(map[uint]*forumTable)
	metrics.RecordCacheReset("forum")
}

// ResetDiscussionCache drops every discussion-level entry
func (c *Cache) ResetDiscussionCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.discussions = make(map[uint]*discussionTable)
	metrics.RecordCacheReset("discussion")
}

// setForumSubscribed records a forum-level change made by this process
func (c *Cache) setForumSubscribed(forumID, userID uint, subscribed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.forumTableLocked(forumID).users[userID] = subscribed
}

// setDiscussionPreference records a discussion-level change made by this
// process. Nothing is recorded for a user whose preferences were never
// loaded, since a partial set would hide the rows not yet read.
func (c *Cache) setDiscussionPreference(forumID, userID, discussionID uint, pref model.Preference) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	t, ok := c.discussions[forumID]
	if !ok {
		return
	}
	prefs, ok := t.users[userID]
	if !ok {
		if !t.complete {
			return
		}
		prefs = make(map[uint]model.Preference)
		t.users[userID] = prefs
	}
	prefs[discussionID] = pref
}

// dropDiscussionPreferences forgets the given discussions for a user
func (c *Cache) dropDiscussionPreferences(forumID, userID uint, discussionIDs ...uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	t, ok := c.discussions[forumID]
	if !ok {
		return
	}
	prefs, ok := t.users[userID]
	if !ok {
		return
	}
	for _, id := range discussionIDs {
		delete(prefs, id)
	}
}

func copyPreferences(prefs map[uint]model.Preference) map[uint]model.Preference {
	out := make(map[uint]model.Preference, len(prefs))
	for id, pref := range prefs {
		out[id] = pref
	}
	return out
}
