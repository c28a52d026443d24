// Package hadith – search service
//
// This file implements the Service, the application-level component that
// answers search, random, and by-ID lookups over canonical records. It
// validates input, serves from the TTL cache when possible, degrades
// upstream and storage failures to empty results, and persists every
// normalized record (upsert by external source ID, insert otherwise).
//
// Observability: public methods are OpenTelemetry-instrumented; upstream
// call outcomes and cache hits are counted with Prometheus.
package hadith

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-hadith-bot/internal/cache"
	"github.com/tbourn/go-hadith-bot/internal/domain"
	"github.com/tbourn/go-hadith-bot/internal/repo"
)

// ErrInvalidQuery is returned when a search query is empty (or too short)
// after trimming.
var ErrInvalidQuery = errors.New("query must be at least 2 characters")

// minQueryRunes is the shortest accepted search query after trimming.
const minQueryRunes = 2

// seedTopics are generic terms used when a random lookup finds nothing in
// storage and must fall back to an upstream search.
var seedTopics = []string{
	"الصلاة", "الصيام", "الزكاة", "الصدقة", "الإيمان", "العلم", "الأخلاق", "الدعاء",
}

var (
	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hadith_upstream_requests_total",
			Help: "Upstream Hadith API calls by outcome.",
		},
		[]string{"outcome"}, // ok | error
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hadith_cache_lookups_total",
			Help: "Search cache lookups by result.",
		},
		[]string{"result"}, // hit | miss
	)
	skippedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hadith_normalize_skipped_total",
			Help: "Upstream elements dropped during normalization.",
		},
	)
)

func init() {
	prometheus.MustRegister(upstreamCalls, cacheLookups, skippedRecords)
}

// Fetcher is the upstream contract required by Service. *Client implements
// it; tests substitute a fake.
type Fetcher interface {
	Fetch(ctx context.Context, query string, params map[string]string) ([]RawRecord, error)
}

// SearchOptions carries the optional upstream parameters of one search.
type SearchOptions struct {
	Source string // restrict to one collection
	Grade  string // restrict to one grade
	Limit  int    // max results requested upstream
}

// encode renders the options deterministically for cache keys and upstream
// query strings.
func (o SearchOptions) encode() string {
	return fmt.Sprintf("source=%s|grade=%s|limit=%d", o.Source, o.Grade, o.Limit)
}

func (o SearchOptions) params() map[string]string {
	p := map[string]string{}
	if o.Source != "" {
		p["source"] = o.Source
	}
	if o.Grade != "" {
		p["grade"] = o.Grade
	}
	if o.Limit > 0 {
		p["limit"] = fmt.Sprintf("%d", o.Limit)
	}
	return p
}

// Service answers hadith lookups. Construct with NewService.
type Service struct {
	DB      *gorm.DB
	Cache   *cache.Store
	Fetcher Fetcher

	// randIntn is a test seam; defaults to rand.Intn.
	randIntn func(n int) int
}

// NewService wires the service with its collaborators.
func NewService(db *gorm.DB, store *cache.Store, fetcher Fetcher) *Service {
	return &Service{DB: db, Cache: store, Fetcher: fetcher, randIntn: rand.Intn}
}

// Search returns canonical records for a free-text query.
//
// Behavior:
//   - Queries shorter than 2 runes after trimming fail with ErrInvalidQuery.
//   - Cached results within the TTL window are returned verbatim; a cache
//     hit issues no upstream request.
//   - Upstream transport or status failures are logged and degrade to an
//     empty slice with a nil error (best-effort search).
//   - Each response element is normalized independently; a failed element is
//     logged and skipped, never fatal to the batch.
//   - Normalized records are persisted (upsert by source ID / insert) and
//     the batch is cached before being returned.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]domain.HadithRecord, error) {
	tr := otel.Tracer("hadith/Service")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.String("query", query)),
	)
	defer span.End()

	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryRunes {
		return nil, ErrInvalidQuery
	}

	key := cache.Key("hadith", "search", query+"|"+opts.encode())
	var cached []domain.HadithRecord
	if s.Cache.Get(ctx, key, &cached) {
		cacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	raw, err := s.Fetcher.Fetch(ctx, query, opts.params())
	if err != nil {
		upstreamCalls.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("query", query).Msg("upstream search failed")
		return []domain.HadithRecord{}, nil
	}
	upstreamCalls.WithLabelValues("ok").Inc()

	results := s.processSearchResponse(ctx, raw)
	s.Cache.Set(ctx, key, results, 0)
	return results, nil
}

// processSearchResponse normalizes and persists every element of an
// upstream response, skipping elements that fail either step.
func (s *Service) processSearchResponse(ctx context.Context, raw []RawRecord) []domain.HadithRecord {
	out := make([]domain.HadithRecord, 0, len(raw))
	for i, r := range raw {
		rec, err := Normalize(r)
		if err != nil {
			skippedRecords.Inc()
			log.Debug().Err(err).Int("index", i).Msg("skipping unusable search result")
			continue
		}
		saved, err := repo.SaveHadith(ctx, s.DB, rec)
		if err != nil {
			// Persistence is best-effort: the user still gets the result.
			log.Warn().Err(err).Str("source_id", rec.SourceID).Msg("hadith save failed")
			out = append(out, *rec)
			continue
		}
		out = append(out, *saved)
	}
	return out
}

// GetRandom returns one record matching the filter, or nil when nothing
// matches anywhere.
//
// Storage is preferred: count matching rows, pick a uniform offset, fetch
// that row. Only when storage has no match does it fall back to an upstream
// search seeded with a random generic topic.
func (s *Service) GetRandom(ctx context.Context, f repo.HadithFilter) (*domain.HadithRecord, error) {
	tr := otel.Tracer("hadith/Service")
	ctx, span := tr.Start(ctx, "GetRandom")
	defer span.End()

	total, err := repo.CountHadiths(ctx, s.DB, f)
	if err != nil {
		log.Warn().Err(err).Msg("random count failed")
		total = 0
	}
	if total > 0 {
		rec, err := repo.HadithAtOffset(ctx, s.DB, f, s.randIntn(int(total)))
		if err != nil {
			log.Warn().Err(err).Msg("random fetch failed")
			return nil, nil
		}
		return rec, nil
	}

	seed := seedTopics[s.randIntn(len(seedTopics))]
	results, err := s.Search(ctx, seed, SearchOptions{Source: f.Source, Grade: f.Grade})
	if err != nil || len(results) == 0 {
		return nil, nil
	}
	pick := results[s.randIntn(len(results))]
	return &pick, nil
}

// GetByID returns the record with the given internal ID, or nil when it
// does not exist or storage fails. A successful lookup bumps the record's
// search counter as a best-effort side effect.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.HadithRecord, error) {
	tr := otel.Tracer("hadith/Service")
	ctx, span := tr.Start(ctx, "GetByID",
		trace.WithAttributes(attribute.String("hadith.id", id)),
	)
	defer span.End()

	rec, err := repo.GetHadith(ctx, s.DB, id)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Str("id", id).Msg("hadith lookup failed")
		}
		return nil, nil
	}
	if err := repo.IncrementSearchCount(ctx, s.DB, id); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("search count increment failed")
	}
	return rec, nil
}
