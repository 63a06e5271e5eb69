package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/forum-subscriptions/internal/config"
	"github.com/user/forum-subscriptions/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore implements Store on top of a relational database
type GormStore struct {
	db *gorm.DB
}

// Open builds the store selected by cfg.Driver
func Open(cfg *config.DBConfig) (Store, error) {
	var (
		s   *GormStore
		err error
	)
	switch cfg.Driver {
	case config.DriverMySQL:
		s, err = NewMySQLStore(cfg)
	case config.DriverSQLite:
		s, err = NewSQLiteStore(cfg.SQLitePath, cfg.MaxConns)
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMySQLStore creates a new MySQL-backed store instance
func NewMySQLStore(cfg *config.DBConfig) (*GormStore, error) {
	return newGormStore(mysql.Open(cfg.DSN()), cfg.MaxConns)
}

// NewSQLiteStore creates a SQLite-backed store. Use ":memory:" with
// maxConns 1 for a throwaway database.
func NewSQLiteStore(path string, maxConns int) (*GormStore, error) {
	return newGormStore(sqlite.Open(path), maxConns)
}

func newGormStore(dialector gorm.Dialector, maxConns int) (*GormStore, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool. At least one idle connection is kept so an
	// in-memory SQLite database survives between queries.
	idle := maxConns / 2
	if idle < 1 {
		idle = 1
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(idle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Auto migrate tables
	if err := db.AutoMigrate(
		&model.Forum{},
		&model.Discussion{},
		&model.ForumSubscription{},
		&model.DiscussionSubscription{},
		&model.DigestPreference{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &GormStore{db: db}, nil
}

// GetForum retrieves a forum by id
func (s *GormStore) GetForum(ctx context.Context, forumID uint) (*model.Forum, error) {
	var forum model.Forum
	result := s.db.WithContext(ctx).Where("id = ?", forumID).First(&forum)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get forum: %w", result.Error)
	}
	return &forum, nil
}

// SaveForum inserts or updates a forum
func (s *GormStore) SaveForum(ctx context.Context, forum *model.Forum) error {
	if forum.SubscriptionMode == "" {
		forum.SubscriptionMode = model.ModeOptional
	}
	if err := s.db.WithContext(ctx).Save(forum).Error; err != nil {
		return fmt.Errorf("failed to save forum: %w", err)
	}
	return nil
}

// SetSubscriptionMode updates the subscription mode of a forum
func (s *GormStore) SetSubscriptionMode(ctx context.Context, forumID uint, mode model.SubscriptionMode) error {
	result := s.db.WithContext(ctx).
		Model(&model.Forum{}).
		Where("id = ?", forumID).
		Update("subscription_mode", mode)
	if result.Error != nil {
		return fmt.Errorf("failed to set subscription mode: %w", result.Error)
	}
	return nil
}

// GetDiscussion retrieves a discussion by id
func (s *GormStore) GetDiscussion(ctx context.Context, discussionID uint) (*model.Discussion, error) {
	var discussion model.Discussion
	result := s.db.WithContext(ctx).Where("id = ?", discussionID).First(&discussion)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get discussion: %w", result.Error)
	}
	return &discussion, nil
}

// SaveDiscussion inserts or updates a discussion
func (s *GormStore) SaveDiscussion(ctx context.Context, discussion *model.Discussion) error {
	if err := s.db.WithContext(ctx).Save(discussion).Error; err != nil {
		return fmt.Errorf("failed to save discussion: %w", err)
	}
	return nil
}

// GetForumSubscription retrieves the forum-level subscription of a user
func (s *GormStore) GetForumSubscription(ctx context.Context, userID, forumID uint) (*model.ForumSubscription, error) {
	var sub model.ForumSubscription
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND forum_id = ?", userID, forumID).
		First(&sub)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get forum subscription: %w", result.Error)
	}
	return &sub, nil
}

// GetForumSubscriptions retrieves every forum-level subscription of a forum
func (s *GormStore) GetForumSubscriptions(ctx context.Context, forumID uint) ([]*model.ForumSubscription, error) {
	var subs []*model.ForumSubscription
	result := s.db.WithContext(ctx).
		Where("forum_id = ?", forumID).
		Order("id").
		Find(&subs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get forum subscriptions: %w", result.Error)
	}
	return subs, nil
}

// GetCourseSubscriptionStates loads the user's forum-level state for every
// non-forced forum of a course in a single query
func (s *GormStore) GetCourseSubscriptionStates(ctx context.Context, courseID, userID uint) (map[uint]bool, error) {
	var rows []struct {
		ForumID        uint
		SubscriptionID *uint
	}
	result := s.db.WithContext(ctx).
		Table("forums AS f").
		Select("f.id AS forum_id, s.id AS subscription_id").
		Joins("LEFT JOIN forum_subscriptions s ON s.forum_id = f.id AND s.user_id = ?", userID).
		Where("f.course_id = ? AND f.subscription_mode <> ?", courseID, model.ModeForced).
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get course subscription states: %w", result.Error)
	}

	states := make(map[uint]bool, len(rows))
	for _, row := range rows {
		states[row.ForumID] = row.SubscriptionID != nil
	}
	return states, nil
}

// CreateForumSubscription creates a forum-level subscription
func (s *GormStore) CreateForumSubscription(ctx context.Context, sub *model.ForumSubscription) error {
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create forum subscription: %w", err)
	}
	return nil
}

// DeleteForumSubscription deletes a forum-level subscription by id
func (s *GormStore) DeleteForumSubscription(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&model.ForumSubscription{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete forum subscription: %w", err)
	}
	return nil
}

// GetUnsubscribableForums lists forums the user is subscribed to and may leave
func (s *GormStore) GetUnsubscribableForums(ctx context.Context, userID uint) ([]*model.Forum, error) {
	var forums []*model.Forum
	result := s.db.WithContext(ctx).
		Select("forums.*").
		Joins("JOIN forum_subscriptions ON forum_subscriptions.forum_id = forums.id").
		Where("forum_subscriptions.user_id = ? AND forums.subscription_mode <> ?", userID, model.ModeForced).
		Order("forums.id").
		Find(&forums)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get unsubscribable forums: %w", result.Error)
	}
	return forums, nil
}

// GetDiscussionSubscription retrieves a user's preference for one discussion
func (s *GormStore) GetDiscussionSubscription(ctx context.Context, userID, discussionID uint) (*model.DiscussionSubscription, error) {
	var sub model.DiscussionSubscription
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND discussion_id = ?", userID, discussionID).
		First(&sub)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get discussion subscription: %w", result.Error)
	}
	return &sub, nil
}

// GetUserDiscussionSubscriptions retrieves a user's discussion preferences within a forum
func (s *GormStore) GetUserDiscussionSubscriptions(ctx context.Context, userID, forumID uint) ([]*model.DiscussionSubscription, error) {
	var subs []*model.DiscussionSubscription
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND forum_id = ?", userID, forumID).
		Order("id").
		Find(&subs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get user discussion subscriptions: %w", result.Error)
	}
	return subs, nil
}

// GetDiscussionSubscriptions retrieves every discussion preference within a forum
func (s *GormStore) GetDiscussionSubscriptions(ctx context.Context, forumID uint) ([]*model.DiscussionSubscription, error) {
	var subs []*model.DiscussionSubscription
	result := s.db.WithContext(ctx).
		Where("forum_id = ?", forumID).
		Order("id").
		Find(&subs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get discussion subscriptions: %w", result.Error)
	}
	return subs, nil
}

// SaveDiscussionSubscription inserts a new preference row or updates an existing one
func (s *GormStore) SaveDiscussionSubscription(ctx context.Context, sub *model.DiscussionSubscription) error {
	db := s.db.WithContext(ctx)
	var err error
	if sub.ID == 0 {
		err = db.Create(sub).Error
	} else {
		err = db.Save(sub).Error
	}
	if err != nil {
		return fmt.Errorf("failed to save discussion subscription: %w", err)
	}
	return nil
}

// DeleteDiscussionSubscription deletes a discussion preference by id
func (s *GormStore) DeleteDiscussionSubscription(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&model.DiscussionSubscription{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete discussion subscription: %w", err)
	}
	return nil
}

// PruneDiscussionSubscriptions removes the user's opt-in rows for a forum
func (s *GormStore) PruneDiscussionSubscriptions(ctx context.Context, userID, forumID uint) ([]*model.DiscussionSubscription, error) {
	var pruned []*model.DiscussionSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("user_id = ? AND forum_id = ? AND unsubscribed = ?", userID, forumID, false).
			Order("id").
			Find(&pruned).Error; err != nil {
			return err
		}
		if len(pruned) == 0 {
			return nil
		}

		ids := make([]uint, len(pruned))
		for i, sub := range pruned {
			ids[i] = sub.ID
		}
		return tx.Delete(&model.DiscussionSubscription{}, ids).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prune discussion subscriptions: %w", err)
	}
	return pruned, nil
}

// SaveDigestPreference inserts or updates a digest preference
func (s *GormStore) SaveDigestPreference(ctx context.Context, pref *model.DigestPreference) error {
	if err := s.db.WithContext(ctx).Save(pref).Error; err != nil {
		return fmt.Errorf("failed to save digest preference: %w", err)
	}
	return nil
}

// DeleteDigestPreference deletes the digest preference of a user for a forum
func (s *GormStore) DeleteDigestPreference(ctx context.Context, userID, forumID uint) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND forum_id = ?", userID, forumID).
		Delete(&model.DigestPreference{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete digest preference: %w", result.Error)
	}
	return nil
}

// Ping checks database connectivity
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.Close()
}
