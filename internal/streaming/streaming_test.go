package streaming

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"mangahub/internal/archival"
	"mangahub/pkg/database"
	"mangahub/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

func newTestQueue(t *testing.T) *archival.Queue {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return archival.NewQueue(db)
}

func TestCacheExpiryIsLazy(t *testing.T) {
	c := newCache(10 * time.Millisecond)
	c.set("k", []models.StreamingServer{{Provider: "animasu"}})

	if _, ok := c.get("k"); !ok {
		t.Fatalf("expected fresh entry to be present")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.get("k"); ok {
		t.Fatalf("expected expired entry to be treated as a miss")
	}
}

func TestProxyURLEscapesTarget(t *testing.T) {
	s := &Service{opts: Options{ProxyBaseURL: "https://proxy.example.com"}}
	got := s.proxyURL("https://cdn.example.com/a b.mp4")
	want := "https://proxy.example.com/proxy?url=https%3A%2F%2Fcdn.example.com%2Fa+b.mp4"
	if got != want {
		t.Fatalf("proxyURL = %q, want %q", got, want)
	}
}

func TestEnrichUsesStoredEntryWhenPresent(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.UpsertStore(ctx, models.UpsertStorePayload{
		MALID: 1, Episode: 1, Provider: "animasu", Resolution: "720p",
		FileKey: "k", DirectURL: "https://s3/x.mp4",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	s := &Service{queue: q, opts: Options{ProxyBaseURL: "https://proxy.example.com"}}
	srv := models.StreamingServer{Provider: "animasu", Resolution: "720p", EmbedURL: "https://embed/x"}

	out := s.enrich(ctx, 1, 1, srv)
	if out.ResolvedURL != "https://s3/x.mp4" {
		t.Fatalf("expected resolved url rewritten to durable direct url, got %q", out.ResolvedURL)
	}
	if out.StreamURL == "" {
		t.Fatalf("expected stream url to be set from the durable record")
	}
}

func TestEnrichEnqueuesOnMiss(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	s := &Service{queue: q, opts: Options{ProxyBaseURL: "https://proxy.example.com", WorkerBaseURL: "http://127.0.0.1:0", Salt: "s"}}
	srv := models.StreamingServer{Provider: "animasu", Resolution: "480p", EmbedURL: "https://embed/y", ResolvedURL: "https://cdn/y.mp4"}

	_ = s.enrich(ctx, 2, 1, srv)

	inProgress, err := q.ExistsInProgress(ctx, 2, 1, "animasu", "480p")
	if err != nil {
		t.Fatalf("exists in progress: %v", err)
	}
	if !inProgress {
		t.Fatalf("expected enrich to have enqueued a new job")
	}
}
