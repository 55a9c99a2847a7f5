package archival

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"mangahub/pkg/database"
	"mangahub/pkg/models"

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

func TestEnqueueNoOpsOnReady(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db)
	ctx := context.Background()

	e, err := q.Enqueue(ctx, 1, 1, "animasu", "https://x/v.mp4", "720p")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.UpdateStatus(ctx, e.ID, models.QueueStatusReady, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}

	again, err := q.Enqueue(ctx, 1, 1, "animasu", "https://x/v2.mp4", "720p")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if again.Status != models.QueueStatusReady {
		t.Fatalf("expected ready entry to stay ready, got %q", again.Status)
	}
	if again.VideoURL == "https://x/v2.mp4" {
		t.Fatalf("ready entry's video_url should not have been overwritten")
	}
}

func TestEnqueueRevivesFailed(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db)
	ctx := context.Background()

	e, err := q.Enqueue(ctx, 2, 1, "animasu", "https://x/v.mp4", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.UpdateStatus(ctx, e.ID, models.QueueStatusFailed, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	revived, err := q.Enqueue(ctx, 2, 1, "animasu", "https://x/v2.mp4", "")
	if err != nil {
		t.Fatalf("revive enqueue: %v", err)
	}
	if revived.Status != models.QueueStatusPending {
		t.Fatalf("expected revived entry to be pending, got %q", revived.Status)
	}
	if revived.VideoURL != "https://x/v2.mp4" {
		t.Fatalf("expected revived entry's video_url refreshed, got %q", revived.VideoURL)
	}
}

func TestClaimMovesPendingToDownloading(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := q.Enqueue(ctx, int64(i), 1, "animasu", "https://x/v.mp4", ""); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	claimed, err := q.Claim(ctx, 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed entries, got %d", len(claimed))
	}
	for _, e := range claimed {
		if e.Status != models.QueueStatusDownloading {
			t.Fatalf("expected claimed entry to be downloading, got %q", e.Status)
		}
	}

	rest, err := q.Claim(ctx, 5)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected exactly 1 remaining pending entry, got %d", len(rest))
	}
}

func TestClaimByKeyClaimsNamedRowNotOldestPending(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, 100, 1, "animasu", "https://x/older.mp4", ""); err != nil {
		t.Fatalf("enqueue older: %v", err)
	}
	if _, err := q.Enqueue(ctx, 200, 1, "animasu", "https://x/newer.mp4", ""); err != nil {
		t.Fatalf("enqueue newer: %v", err)
	}

	claimed, err := q.ClaimByKey(ctx, 200, 1, "animasu", "")
	if err != nil {
		t.Fatalf("claim by key: %v", err)
	}
	if claimed == nil || claimed.MALID != 200 {
		t.Fatalf("expected the named key's entry to be claimed, got %+v", claimed)
	}
	if claimed.Status != models.QueueStatusDownloading {
		t.Fatalf("expected claimed entry to be downloading, got %q", claimed.Status)
	}

	older, err := q.byKey(ctx, 100, 1, "animasu", "")
	if err != nil {
		t.Fatalf("by key: %v", err)
	}
	if older.Status != models.QueueStatusPending {
		t.Fatalf("expected the older unrelated entry to remain pending, got %q", older.Status)
	}
}

func TestClaimByKeyReturnsNilWhenAlreadyClaimed(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, 300, 1, "animasu", "https://x/v.mp4", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, 1); err != nil {
		t.Fatalf("claim: %v", err)
	}

	claimed, err := q.ClaimByKey(ctx, 300, 1, "animasu", "")
	if err != nil {
		t.Fatalf("claim by key: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil for an already-downloading entry, got %+v", claimed)
	}
}

func TestUpsertStorePromotesQueueEntry(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, 7, 3, "animasu", "https://x/v.mp4", "720p"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	_, err := q.UpsertStore(ctx, models.UpsertStorePayload{
		MALID: 7, Episode: 3, Provider: "animasu", Resolution: "720p",
		FileKey: "abc123", AccountIndex: 0, RepoID: "r0", Path: "mangahub-7/7/ep3/abc123.mp4",
		DirectURL: "https://s3/x", StreamURL: "https://proxy/proxy?url=https%3A%2F%2Fs3%2Fx",
	})
	if err != nil {
		t.Fatalf("upsert store: %v", err)
	}

	entry, err := q.byKey(ctx, 7, 3, "animasu", "720p")
	if err != nil {
		t.Fatalf("by key: %v", err)
	}
	if entry == nil || entry.Status != models.QueueStatusReady {
		t.Fatalf("expected queue entry promoted to ready, got %+v", entry)
	}
}

func TestResetStaleJobsRevivesOldInFlightEntries(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db)
	ctx := context.Background()

	e, err := q.Enqueue(ctx, 9, 1, "animasu", "https://x/v.mp4", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, 1); err != nil {
		t.Fatalf("claim: %v", err)
	}

	old := time.Now().UTC().Add(-3 * time.Hour)
	if _, err := db.ExecContext(ctx, "UPDATE video_queue SET updated_at = ? WHERE id = ?", old, e.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := q.ResetStaleJobs(ctx, 2*time.Hour)
	if err != nil {
		t.Fatalf("reset stale jobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stale job reset, got %d", n)
	}

	refreshed, err := q.byKey(ctx, 9, 1, "animasu", "")
	if err != nil {
		t.Fatalf("by key: %v", err)
	}
	if refreshed.Status != models.QueueStatusPending {
		t.Fatalf("expected stale job reset to pending, got %q", refreshed.Status)
	}
}
