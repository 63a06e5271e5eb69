package model

import (
	"time"
)

// Preference is a discussion-level subscription preference: either
// subscribed since a point in time, or explicitly unsubscribed.
type Preference struct {
	unsubscribed bool
	at           time.Time
}

// SubscribedSince returns a preference opting in at t
func SubscribedSince(t time.Time) Preference {
	return Preference{at: t}
}

// Unsubscribed returns a preference opting out
func Unsubscribed() Preference {
	return Preference{unsubscribed: true}
}

// IsUnsubscribed reports whether the preference opts out
func (p Preference) IsUnsubscribed() bool {
	return p.unsubscribed
}

// SubscribedAt returns the opt-in time; ok is false for an opt-out
func (p Preference) SubscribedAt() (at time.Time, ok bool) {
	if p.unsubscribed {
		return time.Time{}, false
	}
	return p.at, true
}

func (p Preference) String() string {
	if p.unsubscribed {
		return "unsubscribed"
	}
	return "subscribed@" + p.at.UTC().Format(time.RFC3339)
}
