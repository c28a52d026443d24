// Package cache provides a TTL key/value store for API responses, persisted
// in the cache_entries table. Values are JSON-serialized; keys follow the
// "namespace:op:params" convention (see Key).
//
// Expiry semantics:
//   - A read of an expired entry behaves as a miss and lazily deletes the
//     stale row.
//   - Sweep removes all expired rows in bulk and is meant to run on an
//     independent periodic timer.
//
// Failure policy: the cache degrades, it never fails its caller. Storage
// errors on Get are logged and reported as misses; errors on Set/Delete are
// logged and swallowed.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-hadith-bot/internal/repo"
)

// Key joins namespace, operation, and parameter parts into a cache key,
// e.g. Key("hadith", "search", "prayer|limit=10") -> "hadith:search:prayer|limit=10".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Store is a TTL cache backed by the relational cache_entries table.
// Construct with New; the zero value is not usable.
type Store struct {
	db  *gorm.DB
	ttl time.Duration

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// New returns a Store with the given default TTL.
func New(db *gorm.DB, defaultTTL time.Duration) *Store {
	return &Store{db: db, ttl: defaultTTL, now: time.Now}
}

// Get unmarshals the cached value for key into out and reports whether a
// live entry was found. Expired entries are misses and are deleted as a
// side effect. Storage and decode failures are logged and reported as misses.
func (s *Store) Get(ctx context.Context, key string, out any) bool {
	entry, err := repo.GetCacheEntry(ctx, s.db, key)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return false
	}
	if !entry.ExpiresAt.After(s.now()) {
		// Stale row: remove it so storage does not accumulate dead entries.
		if derr := repo.DeleteCacheEntry(ctx, s.db, key); derr != nil {
			log.Warn().Err(derr).Str("key", key).Msg("cache expiry delete failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(entry.Value), out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache decode failed")
		return false
	}
	return true
}

// Set stores value under key with the given TTL; ttl <= 0 uses the store's
// default. Failures are logged, never returned.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	raw, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := repo.PutCacheEntry(ctx, s.db, key, string(raw), s.now().Add(ttl)); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Delete removes the entry for key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) {
	if err := repo.DeleteCacheEntry(ctx, s.db, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

// Clear removes every entry in the given namespace and returns how many
// rows were removed.
func (s *Store) Clear(ctx context.Context, namespace string) int64 {
	n, err := repo.DeleteCacheEntries(ctx, s.db, namespace+":")
	if err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("cache clear failed")
		return 0
	}
	return n
}

// Sweep bulk-deletes expired entries and returns how many rows were removed.
func (s *Store) Sweep(ctx context.Context) int64 {
	n, err := repo.DeleteExpiredCacheEntries(ctx, s.db, s.now())
	if err != nil {
		log.Warn().Err(err).Msg("cache sweep failed")
		return 0
	}
	if n > 0 {
		log.Debug().Int64("removed", n).Msg("cache sweep")
	}
	return n
}
