package mapping

import (
	"context"
	"database/sql"
	"testing"

	"mangahub/pkg/database"

	_ "github.com/mattn/go-sqlite3"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertCoalescesFields(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	hash := "f" + "0"
	for len(hash) < 64 {
		hash += "0"
	}

	_, err := s.Upsert(ctx, UpsertFields{
		MALID:        55825,
		TitleMain:    "Jigokuraku",
		ProviderSlug: map[string]string{"animasu": "jigokuraku"},
		PHashV1:      &hash,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	year := 2023
	m, err := s.Upsert(ctx, UpsertFields{
		MALID:        55825,
		TitleMain:    "Jigokuraku",
		ProviderSlug: map[string]string{"samehadaku": "jigokuraku-s"},
		ReleaseYear:  &year,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if m.PHashV1 != hash {
		t.Fatalf("phash should have been preserved, got %q", m.PHashV1)
	}
	if m.ReleaseYear != 2023 {
		t.Fatalf("release year should be set, got %d", m.ReleaseYear)
	}
	if len(m.ProviderSlugs) != 2 {
		t.Fatalf("expected both provider slugs merged, got %v", m.ProviderSlugs)
	}
}

func TestBySlugFindsMatch(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	_, err := s.Upsert(ctx, UpsertFields{
		MALID:        1,
		TitleMain:    "Test Anime",
		ProviderSlug: map[string]string{"animasu": "test-anime"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	m, err := s.BySlug(ctx, "animasu", "test-anime")
	if err != nil {
		t.Fatalf("by slug: %v", err)
	}
	if m == nil || m.MALID != 1 {
		t.Fatalf("expected to find mapping, got %+v", m)
	}

	none, err := s.BySlug(ctx, "animasu", "missing")
	if err != nil {
		t.Fatalf("by slug missing: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no match, got %+v", none)
	}
}

func TestNearestByPHashRespectsThreshold(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	exact := "000000000000000000000000000000000000000000000000000000000000000f"
	_, err := s.Upsert(ctx, UpsertFields{MALID: 2, TitleMain: "X", PHashV1: &exact})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	near := "000000000000000000000000000000000000000000000000000000000000000e"
	m, dist, err := s.NearestByPHash(ctx, near, 5)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if m == nil || m.MALID != 2 {
		t.Fatalf("expected nearest match, got %+v (dist=%d)", m, dist)
	}

	far := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	none, _, err := s.NearestByPHash(ctx, far, 5)
	if err != nil {
		t.Fatalf("nearest far: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no match beyond threshold, got %+v", none)
	}
}
