// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// HadithRecord model, including the dual-path persistence used by the
// normalizer: upsert when the external source ID is known, plain insert
// otherwise.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-hadith-bot/internal/domain"
)

// HadithFilter narrows queries over stored records. Zero values mean
// "no constraint".
type HadithFilter struct {
	Source       string
	Grade        string
	Topic        string
	VerifiedOnly bool
}

func (f HadithFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	if f.Grade != "" {
		q = q.Where("grade = ?", f.Grade)
	}
	if f.Topic != "" {
		q = q.Where("topic = ?", f.Topic)
	}
	if f.VerifiedOnly {
		q = q.Where("is_verified = ?", true)
	}
	return q
}

// SaveHadith persists a normalized record. When rec.SourceID is non-empty it
// upserts keyed on source_id (all content fields refreshed, the original ID
// and SearchCount retained); otherwise it always inserts a new row.
//
// The record's ID is assigned here when empty. On success the stored row is
// returned.
func SaveHadith(ctx context.Context, db *gorm.DB, rec *domain.HadithRecord) (*domain.HadithRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if rec.SourceID == "" {
		if err := db.WithContext(ctx).Create(rec).Error; err != nil {
			return nil, err
		}
		return rec, nil
	}

	// The unique index on source_id is partial (blank IDs excluded), and
	// SQLite only matches the conflict target when the clause repeats the
	// index predicate.
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "source_id"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{gorm.Expr("source_id <> ''")}},
			DoUpdates: clause.AssignmentColumns([]string{
				"text", "text_arabic", "narrator", "source", "chapter",
				"number", "grade", "topic", "keywords", "translation",
				"explanation", "is_verified", "updated_at",
			}),
		}).
		Create(rec).Error
	if err != nil {
		return nil, err
	}

	var stored domain.HadithRecord
	if err := db.WithContext(ctx).First(&stored, "source_id = ?", rec.SourceID).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetHadith fetches a single record by internal ID, or ErrNotFound.
func GetHadith(ctx context.Context, db *gorm.DB, id string) (*domain.HadithRecord, error) {
	var rec domain.HadithRecord
	if err := db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetHadithBySourceID fetches a single record by its external source ID,
// or ErrNotFound.
func GetHadithBySourceID(ctx context.Context, db *gorm.DB, sourceID string) (*domain.HadithRecord, error) {
	var rec domain.HadithRecord
	if err := db.WithContext(ctx).First(&rec, "source_id = ?", sourceID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountHadiths returns the number of stored records matching the filter.
func CountHadiths(ctx context.Context, db *gorm.DB, f HadithFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.HadithRecord{})).Count(&total).Error
	return total, err
}

// HadithAtOffset returns the record at the given offset within the filtered
// set, ordered by creation time for stable pagination. Used for random
// selection: count rows, pick a uniform offset, fetch that row.
//
// Selection is not perfectly uniform when rows are inserted between the count
// and the fetch. Accepted: the feature is a novelty pick, not a lottery.
func HadithAtOffset(ctx context.Context, db *gorm.DB, f HadithFilter, offset int) (*domain.HadithRecord, error) {
	var rec domain.HadithRecord
	err := f.apply(db.WithContext(ctx)).
		Order("created_at asc, id asc").
		Offset(offset).
		Limit(1).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// IncrementSearchCount bumps the record's lookup counter by one. Best-effort:
// callers treat a failure as non-fatal.
func IncrementSearchCount(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.HadithRecord{}).
		Where("id = ?", id).
		UpdateColumn("search_count", gorm.Expr("search_count + 1")).Error
}
