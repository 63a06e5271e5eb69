package model

// SubscriptionMode defines how users may subscribe to a forum
type SubscriptionMode string

const (
	// ModeOptional lets users choose whether to subscribe
	ModeOptional SubscriptionMode = "OPTIONAL"
	// ModeForced subscribes everyone holding the force-subscribe capability
	ModeForced SubscriptionMode = "FORCED"
	// ModeAuto subscribes users initially but lets them opt out
	ModeAuto SubscriptionMode = "AUTO"
	// ModeDisallowed turns subscriptions off
	ModeDisallowed SubscriptionMode = "DISALLOWED"
)

// Valid reports whether m is one of the known modes
func (m SubscriptionMode) Valid() bool {
	switch m {
	case ModeOptional, ModeForced, ModeAuto, ModeDisallowed:
		return true
	default:
		return false
	}
}

// IsForceSubscribed reports whether the mode is FORCED
func (m SubscriptionMode) IsForceSubscribed() bool {
	return m == ModeForced
}

// IsSubscriptionDisabled reports whether the mode is DISALLOWED
func (m SubscriptionMode) IsSubscriptionDisabled() bool {
	return m == ModeDisallowed
}

// IsSubscribable reports whether users can change their own subscription
func (m SubscriptionMode) IsSubscribable() bool {
	return !m.IsForceSubscribed() && !m.IsSubscriptionDisabled()
}

// Forum represents a forum instance and its subscription configuration
type Forum struct {
	ID               uint             `gorm:"primaryKey"`
	CourseID         uint             `gorm:"index;not null"`
	ContextID        uint             `gorm:"not null"`
	Name             string           `gorm:"size:255"`
	SubscriptionMode SubscriptionMode `gorm:"size:20;not null"`
}

// TableName returns the table name for Forum
func (Forum) TableName() string {
	return "forums"
}

func (f *Forum) IsForceSubscribed() bool {
	return f.SubscriptionMode.IsForceSubscribed()
}

func (f *Forum) IsSubscriptionDisabled() bool {
	return f.SubscriptionMode.IsSubscriptionDisabled()
}

func (f *Forum) IsSubscribable() bool {
	return f.SubscriptionMode.IsSubscribable()
}

// Discussion represents a thread within a forum
type Discussion struct {
	ID      uint   `gorm:"primaryKey"`
	ForumID uint   `gorm:"index;not null"`
	Name    string `gorm:"size:255"`
}

// TableName returns the table name for Discussion
func (Discussion) TableName() string {
	return "discussions"
}
