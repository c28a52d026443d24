// Package domain defines the persistence models for bot users, canonical
// hadith records, bookmarks, and cached API responses. These types are mapped
// with GORM and form the core data layer of the bot.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// User represents a chat-platform account known to the bot. The primary key
// is the platform's numeric user ID and is immutable; profile fields are
// refreshed on every inbound update.
//
// Fields:
//   - ID: chat-platform numeric user ID (primary key, never reused).
//   - FirstName / LastName / Username: mutable profile fields.
//   - LanguageCode: the user's locale as reported by the platform.
//   - IsActive: soft activation flag; flipped back on when a deactivated
//     user writes again.
//   - IsBlocked: when set, every update from this user is answered with a
//     blocked notice and no handler runs.
//   - IsPremium: platform premium flag, exposed as a capability.
//   - Preferences: serialized JSON preference map (see PreferenceMap).
//   - LastActivity: timestamp of the most recent update from this user.
type User struct {
	ID           int64  `json:"id"            gorm:"primaryKey;autoIncrement:false"`
	FirstName    string `json:"first_name"    gorm:"type:varchar(128)"`
	LastName     string `json:"last_name"     gorm:"type:varchar(128)"`
	Username     string `json:"username"      gorm:"type:varchar(64);index"`
	LanguageCode string `json:"language_code" gorm:"type:varchar(8)"`

	IsActive  bool `json:"is_active"  gorm:"not null;default:true"`
	IsBlocked bool `json:"is_blocked" gorm:"not null;default:false"`
	IsPremium bool `json:"is_premium" gorm:"not null;default:false"`

	Preferences  string    `json:"-" gorm:"type:text"`
	LastActivity time.Time `json:"last_activity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// PreferenceMap deserializes the user's preference blob. A missing or
// malformed blob yields an empty map, never an error.
func (u *User) PreferenceMap() map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(u.Preferences) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(u.Preferences), &out)
	return out
}

// HadithRecord is the canonical, normalized representation of one search
// result, stored independently of the external API's raw shape.
//
// Fields:
//   - ID: stable UUID primary key, generated once and never reused.
//   - SourceID: optional external-source identifier; unique when present and
//     used as the natural upsert key.
//   - Text / TextArabic: cleaned free text and NFKC-normalized Arabic text.
//     A record with neither is never stored.
//   - Narrator / Source / Chapter / Number: provenance fields.
//   - Grade: authenticity grade, canonicalized to a fixed vocabulary where
//     recognized, otherwise passed through trimmed.
//   - Topic / Keywords: topical metadata; Keywords is a comma-joined,
//     deduplicated, insertion-ordered set.
//   - Translation / Explanation: optional supplementary text.
//   - IsVerified: true when Source names one of the canonical collections.
//   - SearchCount: incremented on each direct lookup by ID.
type HadithRecord struct {
	ID       string `json:"id"        gorm:"type:char(36);primaryKey"`
	SourceID string `json:"source_id" gorm:"type:varchar(128);uniqueIndex:ux_hadiths_source_id,where:source_id <> ''"`

	Text       string `json:"text"        gorm:"type:text"`
	TextArabic string `json:"text_arabic" gorm:"type:text"`

	Narrator string `json:"narrator" gorm:"type:varchar(255)"`
	Source   string `json:"source"   gorm:"type:varchar(255);index"`
	Chapter  string `json:"chapter"  gorm:"type:varchar(255)"`
	Number   string `json:"number"   gorm:"type:varchar(64)"`
	Grade    string `json:"grade"    gorm:"type:varchar(64);index"`

	Topic    string `json:"topic"    gorm:"type:varchar(255);index"`
	Keywords string `json:"keywords" gorm:"type:text"`

	Translation string `json:"translation" gorm:"type:text"`
	Explanation string `json:"explanation" gorm:"type:text"`

	IsVerified  bool  `json:"is_verified"  gorm:"not null;default:false"`
	SearchCount int64 `json:"search_count" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for HadithRecord.
func (HadithRecord) TableName() string { return "hadiths" }

// Favorite is a user's bookmark of a hadith record. A user can bookmark a
// given record at most once (enforced by unique index).
type Favorite struct {
	ID       string `json:"id"        gorm:"type:char(36);primaryKey"`
	UserID   int64  `json:"user_id"   gorm:"not null;index;uniqueIndex:ux_favorites_user_hadith"`
	HadithID string `json:"hadith_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_favorites_user_hadith"`

	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Hadith is the bookmarked record. Favorites are cascade-deleted if the
	// underlying record is removed.
	Hadith HadithRecord `json:"-" gorm:"foreignKey:HadithID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Favorite.
func (Favorite) TableName() string { return "favorites" }

// CacheEntry is one row of the key/value response cache. Keys follow the
// "namespace:op:params" convention; values are JSON. An entry whose
// ExpiresAt is in the past behaves as a miss and is lazily deleted on read.
type CacheEntry struct {
	Key       string    `json:"key"        gorm:"type:varchar(512);primaryKey"`
	Value     string    `json:"value"      gorm:"type:text;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CacheEntry.
func (CacheEntry) TableName() string { return "cache_entries" }
