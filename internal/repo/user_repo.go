// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-hadith-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the bot layer.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertUser inserts the user row keyed by its platform ID, or refreshes the
// mutable profile fields when the row already exists. Moderation flags and
// Preferences are never touched on conflict; LastActivity is written only on
// insert (subsequent touches go through TouchUserActivity, detached from the
// response path).
//
// On success, it returns the persisted row as currently stored.
func UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	u.IsActive = true
	u.LastActivity = time.Now().UTC()
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"first_name", "last_name", "username", "language_code",
				"is_premium", "updated_at",
			}),
		}).
		Create(u).Error
	if err != nil {
		return nil, err
	}
	return GetUser(ctx, db, u.ID)
}

// GetUser fetches a single user by platform ID, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// TouchUserActivity sets LastActivity to now for the given user. Used as a
// fire-and-forget side effect; callers log but never fail on its error.
func TouchUserActivity(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("last_activity", time.Now().UTC()).Error
}

// SetUserActive flips the IsActive flag. Returns ErrNotFound when no row
// was affected.
func SetUserActive(ctx context.Context, db *gorm.DB, id int64, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetUserBlocked flips the IsBlocked flag. Returns ErrNotFound when no row
// was affected.
func SetUserBlocked(ctx context.Context, db *gorm.DB, id int64, blocked bool) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_blocked", blocked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountUsers returns the total number of known users.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error
	return total, err
}
