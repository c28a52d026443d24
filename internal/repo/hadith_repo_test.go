package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-hadith-bot/internal/domain"
)

func TestSaveHadith_InsertWithoutSourceID(t *testing.T) {
	db := newTestDB(t, &domain.HadithRecord{})

	rec := &domain.HadithRecord{Text: "a hadith"}
	saved, err := SaveHadith(context.Background(), db, rec)
	if err != nil {
		t.Fatalf("SaveHadith: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected a generated ID")
	}

	// A second identical record without a source ID is a distinct row.
	again, err := SaveHadith(context.Background(), db, &domain.HadithRecord{Text: "a hadith"})
	if err != nil {
		t.Fatalf("second SaveHadith: %v", err)
	}
	if again.ID == saved.ID {
		t.Fatal("records without source IDs must not be merged")
	}
	total, _ := CountHadiths(context.Background(), db, HadithFilter{})
	if total != 2 {
		t.Fatalf("expected 2 rows, got %d", total)
	}
}

func TestSaveHadith_UpsertBySourceID(t *testing.T) {
	db := newTestDB(t, &domain.HadithRecord{})
	ctx := context.Background()

	first, err := SaveHadith(ctx, db, &domain.HadithRecord{SourceID: "bukhari-1", Text: "old text", Grade: "حسن"})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := IncrementSearchCount(ctx, db, first.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}

	second, err := SaveHadith(ctx, db, &domain.HadithRecord{SourceID: "bukhari-1", Text: "new text", Grade: "صحيح"})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	// Same row: internal ID and search counter are retained, content refreshed.
	if second.ID != first.ID {
		t.Fatalf("upsert changed ID: %q -> %q", first.ID, second.ID)
	}
	if second.Text != "new text" || second.Grade != "صحيح" {
		t.Fatalf("content not refreshed: %+v", second)
	}
	if second.SearchCount != 1 {
		t.Fatalf("SearchCount not retained: %d", second.SearchCount)
	}
	total, _ := CountHadiths(ctx, db, HadithFilter{})
	if total != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", total)
	}
}

func TestSaveHadith_SourceIDUpsertIgnoresBlankRows(t *testing.T) {
	db := newTestDB(t, &domain.HadithRecord{})
	ctx := context.Background()

	// Blank source IDs sit outside the unique index and must not take part
	// in conflict resolution.
	for i := 0; i < 2; i++ {
		if _, err := SaveHadith(ctx, db, &domain.HadithRecord{Text: "unsourced"}); err != nil {
			t.Fatalf("blank save %d: %v", i, err)
		}
	}

	first, err := SaveHadith(ctx, db, &domain.HadithRecord{SourceID: "t-9", Text: "v1"})
	if err != nil {
		t.Fatalf("first sourced save: %v", err)
	}
	second, err := SaveHadith(ctx, db, &domain.HadithRecord{SourceID: "t-9", Text: "v2"})
	if err != nil {
		t.Fatalf("second sourced save: %v", err)
	}
	if second.ID != first.ID || second.Text != "v2" {
		t.Fatalf("sourced rows not merged: %+v vs %+v", first, second)
	}

	total, _ := CountHadiths(ctx, db, HadithFilter{})
	if total != 3 {
		t.Fatalf("expected 2 blank rows + 1 sourced row, got %d", total)
	}
}

func TestGetHadith_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.HadithRecord{})
	if _, err := GetHadith(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetHadithBySourceID(t *testing.T) {
	db := newTestDB(t, &domain.HadithRecord{})
	ctx := context.Background()

	if _, err := SaveHadith(ctx, db, &domain.HadithRecord{SourceID: "m-7", Text: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, err := GetHadithBySourceID(ctx, db, "m-7")
	if err != nil {
		t.Fatalf("GetHadithBySourceID: %v", err)
	}
	if rec.SourceID != "m-7" {
		t.Fatalf("wrong record: %+v", rec)
	}
}

func TestCountHadiths_Filter(t *testing.T) {
	db := newTestDB(t, &domain.HadithRecord{})
	ctx := context.Background()

	seed := []domain.HadithRecord{
		{ID: "h1", Text: "a", Source: "صحيح البخاري", Grade: "صحيح", IsVerified: true},
		{ID: "h2", Text: "b", Source: "صحيح البخاري", Grade: "حسن", IsVerified: true},
		{ID: "h3", Text: "c", Source: "other", Grade: "صحيح"},
	}
	for _, r := range seed {
		if err := db.Create(&r).Error; err != nil {
			t.Fatalf("seed %s: %v", r.ID, err)
		}
	}

	cases := []struct {
		name string
		f    HadithFilter
		want int64
	}{
		{"all", HadithFilter{}, 3},
		{"by source", HadithFilter{Source: "صحيح البخاري"}, 2},
		{"by grade", HadithFilter{Grade: "صحيح"}, 2},
		{"verified only", HadithFilter{VerifiedOnly: true}, 2},
		{"combined", HadithFilter{Source: "صحيح البخاري", Grade: "صحيح"}, 1},
	}
	for _, c := range cases {
		got, err := CountHadiths(ctx, db, c.f)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: CountHadiths = %d; want %d", c.name, got, c.want)
		}
	}
}

func TestHadithAtOffset_StableOrder(t *testing.T) {
	db := newTestDB(t, &domain.HadithRecord{})
	ctx := context.Background()

	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	seed := []domain.HadithRecord{
		{ID: "h1", Text: "a", CreatedAt: t1},
		{ID: "h2", Text: "b", CreatedAt: t1.Add(time.Hour)},
		{ID: "h3", Text: "c", CreatedAt: t1.Add(2 * time.Hour)},
	}
	for _, r := range seed {
		if err := db.Create(&r).Error; err != nil {
			t.Fatalf("seed %s: %v", r.ID, err)
		}
	}

	for i, wantID := range []string{"h1", "h2", "h3"} {
		rec, err := HadithAtOffset(ctx, db, HadithFilter{}, i)
		if err != nil {
			t.Fatalf("offset %d: %v", i, err)
		}
		if rec.ID != wantID {
			t.Errorf("offset %d: got %s; want %s", i, rec.ID, wantID)
		}
	}

	if _, err := HadithAtOffset(ctx, db, HadithFilter{}, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("out-of-range offset: expected ErrNotFound, got %v", err)
	}
}

func TestIncrementSearchCount(t *testing.T) {
	db := newTestDB(t, &domain.HadithRecord{})
	ctx := context.Background()

	if err := db.Create(&domain.HadithRecord{ID: "h1", Text: "a"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := IncrementSearchCount(ctx, db, "h1"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	rec, _ := GetHadith(ctx, db, "h1")
	if rec.SearchCount != 3 {
		t.Fatalf("SearchCount = %d; want 3", rec.SearchCount)
	}
}
