package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/forum-subscriptions/internal/model"
)

// MemoryStore implements Store with in-process maps. Rows handed out are
// copies, so callers cannot change stored state without going through the
// store.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      uint
	forums      map[uint]*model.Forum
	discussions map[uint]*model.Discussion
	forumSubs   map[uint]*model.ForumSubscription
	discSubs    map[uint]*model.DiscussionSubscription
	digests     map[uint]*model.DigestPreference

	reads atomic.Int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		forums:      make(map[uint]*model.Forum),
		discussions: make(map[uint]*model.Discussion),
		forumSubs:   make(map[uint]*model.ForumSubscription),
		discSubs:    make(map[uint]*model.DiscussionSubscription),
		digests:     make(map[uint]*model.DigestPreference),
	}
}

// Reads returns how many read operations the store has served
func (m *MemoryStore) Reads() int64 {
	return m.reads.Load()
}

func (m *MemoryStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) GetForum(ctx context.Context, forumID uint) (*model.Forum, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.forums[forumID]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) SaveForum(ctx context.Context, forum *model.Forum) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if forum.SubscriptionMode == "" {
		forum.SubscriptionMode = model.ModeOptional
	}
	if forum.ID == 0 {
		forum.ID = m.id()
	} else if forum.ID > m.nextID {
		m.nextID = forum.ID
	}
	cp := *forum
	m.forums[forum.ID] = &cp
	return nil
}

func (m *MemoryStore) SetSubscriptionMode(ctx context.Context, forumID uint, mode model.SubscriptionMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.forums[forumID]; ok {
		f.SubscriptionMode = mode
	}
	return nil
}

func (m *MemoryStore) GetDiscussion(ctx context.Context, discussionID uint) (*model.Discussion, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.discussions[discussionID]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) SaveDiscussion(ctx context.Context, discussion *model.Discussion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if discussion.ID == 0 {
		discussion.ID = m.id()
	} else if discussion.ID > m.nextID {
		m.nextID = discussion.ID
	}
	cp := *discussion
	m.discussions[discussion.ID] = &cp
	return nil
}

func (m *MemoryStore) GetForumSubscription(ctx context.Context, userID, forumID uint) (*model.ForumSubscription, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.forumSubs {
		if sub.UserID == userID && sub.ForumID == forumID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetForumSubscriptions(ctx context.Context, forumID uint) ([]*model.ForumSubscription, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var subs []*model.ForumSubscription
	for _, sub := range m.forumSubs {
		if sub.ForumID == forumID {
			cp := *sub
			subs = append(subs, &cp)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

func (m *MemoryStore) GetCourseSubscriptionStates(ctx context.Context, courseID, userID uint) (map[uint]bool, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make(map[uint]bool)
	for _, f := range m.forums {
		if f.CourseID == courseID && !f.IsForceSubscribed() {
			states[f.ID] = false
		}
	}
	for _, sub := range m.forumSubs {
		if _, ok := states[sub.ForumID]; ok && sub.UserID == userID {
			states[sub.ForumID] = true
		}
	}
	return states, nil
}

func (m *MemoryStore) CreateForumSubscription(ctx context.Context, sub *model.ForumSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.forumSubs {
		if existing.UserID == sub.UserID && existing.ForumID == sub.ForumID {
			return fmt.Errorf("failed to create forum subscription: duplicate user %d forum %d", sub.UserID, sub.ForumID)
		}
	}
	sub.ID = m.id()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	cp := *sub
	m.forumSubs[sub.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteForumSubscription(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.forumSubs, id)
	return nil
}

func (m *MemoryStore) GetUnsubscribableForums(ctx context.Context, userID uint) ([]*model.Forum, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var forums []*model.Forum
	for _, sub := range m.forumSubs {
		if sub.UserID != userID {
			continue
		}
		if f, ok := m.forums[sub.ForumID]; ok && !f.IsForceSubscribed() {
			cp := *f
			forums = append(forums, &cp)
		}
	}
	sort.Slice(forums, func(i, j int) bool { return forums[i].ID < forums[j].ID })
	return forums, nil
}

func (m *MemoryStore) GetDiscussionSubscription(ctx context.Context, userID, discussionID uint) (*model.DiscussionSubscription, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.discSubs {
		if sub.UserID == userID && sub.DiscussionID == discussionID {
			return copyDiscussionSubscription(sub), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetUserDiscussionSubscriptions(ctx context.Context, userID, forumID uint) ([]*model.DiscussionSubscription, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterDiscussionSubscriptions(func(sub *model.DiscussionSubscription) bool {
		return sub.UserID == userID && sub.ForumID == forumID
	}), nil
}

func (m *MemoryStore) GetDiscussionSubscriptions(ctx context.Context, forumID uint) ([]*model.DiscussionSubscription, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterDiscussionSubscriptions(func(sub *model.DiscussionSubscription) bool {
		return sub.ForumID == forumID
	}), nil
}

func (m *MemoryStore) SaveDiscussionSubscription(ctx context.Context, sub *model.DiscussionSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == 0 {
		for _, existing := range m.discSubs {
			if existing.UserID == sub.UserID && existing.DiscussionID == sub.DiscussionID {
				return fmt.Errorf("failed to save discussion subscription: duplicate user %d discussion %d", sub.UserID, sub.DiscussionID)
			}
		}
		sub.ID = m.id()
	}
	m.discSubs[sub.ID] = copyDiscussionSubscription(sub)
	return nil
}

func (m *MemoryStore) DeleteDiscussionSubscription(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.discSubs, id)
	return nil
}

func (m *MemoryStore) PruneDiscussionSubscriptions(ctx context.Context, userID, forumID uint) ([]*model.DiscussionSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := m.filterDiscussionSubscriptions(func(sub *model.DiscussionSubscription) bool {
		return sub.UserID == userID && sub.ForumID == forumID && !sub.Unsubscribed
	})
	for _, sub := range pruned {
		delete(m.discSubs, sub.ID)
	}
	return pruned, nil
}

func (m *MemoryStore) SaveDigestPreference(ctx context.Context, pref *model.DigestPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pref.ID == 0 {
		pref.ID = m.id()
	}
	cp := *pref
	m.digests[pref.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteDigestPreference(ctx context.Context, userID, forumID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pref := range m.digests {
		if pref.UserID == userID && pref.ForumID == forumID {
			delete(m.digests, id)
		}
	}
	return nil
}

// DigestPreferences returns how many digest rows exist for the pair
func (m *MemoryStore) DigestPreferences(userID, forumID uint) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, pref := range m.digests {
		if pref.UserID == userID && pref.ForumID == forumID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// filterDiscussionSubscriptions must be called with m.mu held
func (m *MemoryStore) filterDiscussionSubscriptions(keep func(*model.DiscussionSubscription) bool) []*model.DiscussionSubscription {
	var subs []*model.DiscussionSubscription
	for _, sub := range m.discSubs {
		if keep(sub) {
			subs = append(subs, copyDiscussionSubscription(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs
}

func copyDiscussionSubscription(sub *model.DiscussionSubscription) *model.DiscussionSubscription {
	cp := *sub
	if sub.SubscribedAt != nil {
		at := *sub.SubscribedAt
		cp.SubscribedAt = &at
	}
	return &cp
}
