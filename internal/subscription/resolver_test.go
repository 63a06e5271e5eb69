package subscription

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/user/forum-subscriptions/internal/model"
)

// Stored discussion preference kinds used by the generators
const (
	prefNone = iota
	prefSubscribed
	prefUnsubscribed
)

// seedState stores a forum-level row and a discussion preference for user 1
func seedState(t *testing.T, env *testEnv, forum *model.Forum, d *model.Discussion, forumSub bool, prefKind int) {
	t.Helper()
	if forumSub {
		env.subscribeRow(t, 1, forum.ID)
	}
	switch prefKind {
	case prefSubscribed:
		env.preferenceRow(t, 1, d, model.SubscribedSince(time.Now()))
	case prefUnsubscribed:
		env.preferenceRow(t, 1, d, model.Unsubscribed())
	}
}

// Property 1: Force Overrides All
// *For any* stored forum or discussion rows, a user holding the force
// capability on a FORCED forum is subscribed to the forum and to every
// discussion in it.
func TestProperty_ForceOverridesAll(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("forced capability holder is always subscribed", prop.ForAll(
		func(forumSub bool, prefKind int) bool {
			ctx := context.Background()
			env := newTestEnv(t)
			forum := env.forum(t, model.ModeForced)
			d := env.discussion(t, forum)
			seedState(t, env, forum, d, forumSub, prefKind)

			atForum, err := env.resolver.IsSubscribed(ctx, 1, forum, true)
			if err != nil {
				return false
			}
			atDiscussion, err := env.resolver.IsSubscribedToDiscussion(ctx, 1, forum, d.ID, true)
			if err != nil {
				return false
			}
			return atForum && atDiscussion
		},
		gen.Bool(),
		gen.IntRange(prefNone, prefUnsubscribed),
	))

	properties.TestingRun(t)
}

// Property 2: Discussion Override Precedence
// *For any* non-forced forum and forum-level state, a stored opt-out makes
// the discussion unsubscribed and a stored opt-in makes it subscribed.
func TestProperty_DiscussionOverridePrecedence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	modeGen := gen.OneConstOf(model.ModeOptional, model.ModeAuto, model.ModeDisallowed, model.ModeForced)

	properties.Property("stored preference decides the discussion", prop.ForAll(
		func(mode model.SubscriptionMode, forumSub bool, optOut bool, canForce bool) bool {
			if mode == model.ModeForced && canForce {
				return true
			}
			ctx := context.Background()
			env := newTestEnv(t)
			forum := env.forum(t, mode)
			d := env.discussion(t, forum)
			prefKind := prefSubscribed
			if optOut {
				prefKind = prefUnsubscribed
			}
			seedState(t, env, forum, d, forumSub, prefKind)

			got, err := env.resolver.IsSubscribedToDiscussion(ctx, 1, forum, d.ID, canForce)
			if err != nil {
				return false
			}
			return got == !optOut
		},
		modeGen,
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property 3: Forum-Level Fallback
// *For any* forum without a stored row for the discussion, the discussion
// answer equals the forum answer.
func TestProperty_ForumLevelFallback(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	modeGen := gen.OneConstOf(model.ModeOptional, model.ModeAuto, model.ModeDisallowed, model.ModeForced)

	properties.Property("no discussion row falls back to the forum", prop.ForAll(
		func(mode model.SubscriptionMode, forumSub bool, otherPref bool, canForce bool) bool {
			ctx := context.Background()
			env := newTestEnv(t)
			forum := env.forum(t, mode)
			d := env.discussion(t, forum)
			seedState(t, env, forum, d, forumSub, prefNone)
			if otherPref {
				// A row for a different discussion must not leak
				other := env.discussion(t, forum)
				env.preferenceRow(t, 1, other, model.Unsubscribed())
			}

			atForum, err := env.resolver.IsSubscribed(ctx, 1, forum, canForce)
			if err != nil {
				return false
			}
			atDiscussion, err := env.resolver.IsSubscribedToDiscussion(ctx, 1, forum, d.ID, canForce)
			if err != nil {
				return false
			}
			return atForum == atDiscussion
		},
		modeGen,
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestResolver_NoRows(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		mode     model.SubscriptionMode
		canForce bool
		want     bool
	}{
		{"optional", model.ModeOptional, false, false},
		{"forced without capability", model.ModeForced, false, false},
		{"forced with capability", model.ModeForced, true, true},
		{"optional ignores capability", model.ModeOptional, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			forum := env.forum(t, tt.mode)

			got, err := env.resolver.IsSubscribed(ctx, 1, forum, tt.canForce)
			if err != nil {
				t.Fatalf("IsSubscribed failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsSubscribed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolver_SubscribedUsers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	forum := env.forum(t, model.ModeOptional)
	other := env.forum(t, model.ModeOptional)
	env.subscribeRow(t, 3, forum.ID)
	env.subscribeRow(t, 1, forum.ID)
	env.subscribeRow(t, 2, other.ID)

	users, err := env.resolver.SubscribedUsers(ctx, forum)
	if err != nil {
		t.Fatalf("SubscribedUsers failed: %v", err)
	}
	if want := []uint{1, 3}; !reflect.DeepEqual(users, want) {
		t.Errorf("SubscribedUsers() = %v, want %v", users, want)
	}

	// The listing fills the cache
	reads := env.store.Reads()
	if _, err := env.resolver.IsSubscribed(ctx, 2, forum, false); err != nil {
		t.Fatalf("IsSubscribed failed: %v", err)
	}
	if extra := env.store.Reads() - reads; extra != 0 {
		t.Errorf("expected no reads after listing, got %d", extra)
	}
}

func TestResolver_DiscussionSubscribers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	forum := env.forum(t, model.ModeOptional)
	d := env.discussion(t, forum)
	other := env.discussion(t, forum)

	// 1: forum subscriber, 2: forum subscriber with opt-out,
	// 3: opt-in only, 4: opt-in on another discussion, 5: forum subscriber
	// with opt-out elsewhere
	env.subscribeRow(t, 1, forum.ID)
	env.subscribeRow(t, 2, forum.ID)
	env.preferenceRow(t, 2, d, model.Unsubscribed())
	env.preferenceRow(t, 3, d, model.SubscribedSince(time.Now()))
	env.preferenceRow(t, 4, other, model.SubscribedSince(time.Now()))
	env.subscribeRow(t, 5, forum.ID)
	env.preferenceRow(t, 5, other, model.Unsubscribed())

	users, err := env.resolver.DiscussionSubscribers(ctx, forum, d.ID)
	if err != nil {
		t.Fatalf("DiscussionSubscribers failed: %v", err)
	}
	if want := []uint{1, 3, 5}; !reflect.DeepEqual(users, want) {
		t.Errorf("DiscussionSubscribers() = %v, want %v", users, want)
	}

	for userID := uint(1); userID <= 5; userID++ {
		got, err := env.resolver.IsSubscribedToDiscussion(ctx, userID, forum, d.ID, false)
		if err != nil {
			t.Fatalf("IsSubscribedToDiscussion failed: %v", err)
		}
		listed := userID == 1 || userID == 3 || userID == 5
		if got != listed {
			t.Errorf("user %d: IsSubscribedToDiscussion() = %v, listed = %v", userID, got, listed)
		}
	}
}

func TestResolver_UnsubscribableForums(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	optional := env.forum(t, model.ModeOptional)
	forced := env.forum(t, model.ModeForced)
	env.forum(t, model.ModeAuto)
	env.subscribeRow(t, 1, optional.ID)
	env.subscribeRow(t, 1, forced.ID)

	forums, err := env.resolver.UnsubscribableForums(ctx, 1)
	if err != nil {
		t.Fatalf("UnsubscribableForums failed: %v", err)
	}
	if len(forums) != 1 || forums[0].ID != optional.ID {
		t.Errorf("expected only forum %d, got %v", optional.ID, forums)
	}
}
