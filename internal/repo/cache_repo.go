// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides row-level helpers for the CacheEntry
// model. Expiry semantics (miss-on-expired, lazy deletion) live one level up
// in internal/cache; this file only persists rows.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-hadith-bot/internal/domain"
)

// PutCacheEntry inserts or overwrites the entry for key.
func PutCacheEntry(ctx context.Context, db *gorm.DB, key, value string, expiresAt time.Time) error {
	entry := &domain.CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(entry).Error
}

// GetCacheEntry fetches the row for key regardless of expiry, or ErrNotFound.
func GetCacheEntry(ctx context.Context, db *gorm.DB, key string) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	if err := db.WithContext(ctx).First(&entry, "key = ?", key).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteCacheEntry removes the row for key. Deleting a missing key is not
// an error.
func DeleteCacheEntry(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Delete(&domain.CacheEntry{}, "key = ?", key).Error
}

// DeleteCacheEntries removes every row whose key has the given prefix and
// returns the number of rows removed.
func DeleteCacheEntries(ctx context.Context, db *gorm.DB, prefix string) (int64, error) {
	res := db.WithContext(ctx).
		Where("key LIKE ?", prefix+"%").
		Delete(&domain.CacheEntry{})
	return res.RowsAffected, res.Error
}

// DeleteExpiredCacheEntries removes every row whose expiry is at or before
// now and returns the number of rows removed.
func DeleteExpiredCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.CacheEntry{})
	return res.RowsAffected, res.Error
}
