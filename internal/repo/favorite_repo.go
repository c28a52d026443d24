// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Favorite
// model (user bookmarks of hadith records).
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-hadith-bot/internal/domain"
)

// ErrDuplicate indicates that a row already exists for a unique key
// (e.g. a user bookmarking the same hadith twice).
var ErrDuplicate = errors.New("duplicate")

// CreateFavorite inserts a bookmark and returns ErrDuplicate on unique
// violation.
func CreateFavorite(ctx context.Context, db *gorm.DB, userID int64, hadithID string) (*domain.Favorite, error) {
	fav := &domain.Favorite{
		ID:        uuid.NewString(),
		UserID:    userID,
		HadithID:  hadithID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fav).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return fav, nil
}

// DeleteFavorite removes a user's bookmark of a hadith. Returns ErrNotFound
// when no row was affected.
func DeleteFavorite(ctx context.Context, db *gorm.DB, userID int64, hadithID string) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND hadith_id = ?", userID, hadithID).
		Delete(&domain.Favorite{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountFavorites returns the total number of bookmarks for a user.
func CountFavorites(ctx context.Context, db *gorm.DB, userID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Favorite{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListFavoritesPage returns one page of a user's bookmarked records, most
// recently bookmarked first.
func ListFavoritesPage(ctx context.Context, db *gorm.DB, userID int64, offset, limit int) ([]domain.HadithRecord, error) {
	var out []domain.HadithRecord
	err := db.WithContext(ctx).
		Model(&domain.HadithRecord{}).
		Joins("JOIN favorites ON favorites.hadith_id = hadiths.id").
		Where("favorites.user_id = ? AND favorites.deleted_at IS NULL", userID).
		Order("favorites.created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
