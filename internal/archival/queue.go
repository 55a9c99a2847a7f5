// Package archival implements the relational job queue behind the
// download-and-upload pipeline: enqueue, atomic multi-claim, status
// transitions, and the durable-store commit that promotes a claimed job to
// ready. Grounded on internal/scraper/persist.go's ON CONFLICT ... DO
// UPDATE upsert shape and internal/library/repo.go's Upsert, generalised
// from manga persistence to the video queue's status machine.
package archival

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mangahub/pkg/models"
)

type Queue struct {
	DB *sql.DB
}

func NewQueue(db *sql.DB) *Queue {
	return &Queue{DB: db}
}

// Enqueue implements SPEC_FULL §4.8's enqueue: no-op on ready, revive on
// failed, otherwise leave status and only refresh video_url/updated_at.
func (q *Queue) Enqueue(ctx context.Context, malID int64, episode int, provider, videoURL, resolution string) (*models.VideoQueueEntry, error) {
	existing, err := q.byKey(ctx, malID, episode, provider, resolution)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		id := uuid.NewString()
		_, err := q.DB.ExecContext(ctx, `
			INSERT INTO video_queue (id, mal_id, episode, provider, resolution, video_url, status, retry_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		`, id, malID, episode, provider, resolution, videoURL, models.QueueStatusPending, now, now)
		if err != nil {
			return nil, fmt.Errorf("archival: enqueue insert: %w", err)
		}
		return q.byKey(ctx, malID, episode, provider, resolution)
	}

	switch existing.Status {
	case models.QueueStatusReady:
		return existing, nil
	case models.QueueStatusFailed:
		_, err := q.DB.ExecContext(ctx, `
			UPDATE video_queue SET status = ?, video_url = ?, updated_at = ? WHERE id = ?
		`, models.QueueStatusPending, videoURL, now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("archival: enqueue revive: %w", err)
		}
	default:
		_, err := q.DB.ExecContext(ctx, `
			UPDATE video_queue SET video_url = ?, updated_at = ? WHERE id = ?
		`, videoURL, now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("archival: enqueue refresh: %w", err)
		}
	}
	return q.byKey(ctx, malID, episode, provider, resolution)
}

// Claim implements SPEC_FULL §4.8's claim(N): a single UPDATE ... WHERE id
// IN (SELECT ...) RETURNING * run inside a serializable transaction, which
// gives the same exactly-once-claim guarantee SELECT FOR UPDATE SKIP
// LOCKED gives on a server database, using only SQLite's own writer lock.
func (q *Queue) Claim(ctx context.Context, n int) ([]models.VideoQueueEntry, error) {
	tx, err := q.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("archival: claim begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx, `
		UPDATE video_queue SET status = ?, updated_at = ?
		WHERE id IN (SELECT id FROM video_queue WHERE status = ? ORDER BY created_at LIMIT ?)
		RETURNING id, mal_id, episode, provider, video_url, resolution, status, retry_count, error_message, created_at, updated_at
	`, models.QueueStatusDownloading, now, models.QueueStatusPending, n)
	if err != nil {
		return nil, fmt.Errorf("archival: claim update: %w", err)
	}

	var out []models.VideoQueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("archival: claim commit: %w", err)
	}
	return out, nil
}

// ClaimByKey claims the single pending row for a specific key, for the
// webhook-triggered intake path: unlike Claim(ctx, n), which grabs
// whichever rows are oldest queue-wide, this claims exactly the row the
// caller named, so a webhook for one key never ends up starting some
// unrelated older job while its own key sits untouched.
func (q *Queue) ClaimByKey(ctx context.Context, malID int64, episode int, provider, resolution string) (*models.VideoQueueEntry, error) {
	tx, err := q.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("archival: claim by key begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `
		UPDATE video_queue SET status = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM video_queue
			WHERE mal_id = ? AND episode = ? AND provider = ? AND resolution = ? AND status = ?
			LIMIT 1
		)
		RETURNING id, mal_id, episode, provider, video_url, resolution, status, retry_count, error_message, created_at, updated_at
	`, models.QueueStatusDownloading, now, malID, episode, provider, resolution, models.QueueStatusPending)

	e, err := scanQueueEntryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archival: claim by key update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("archival: claim by key commit: %w", err)
	}
	return e, nil
}

// UpdateStatus implements SPEC_FULL §4.8's update_status. On failed it
// increments retry_count and records the last error.
func (q *Queue) UpdateStatus(ctx context.Context, id, status string, errMsg string) error {
	now := time.Now().UTC()
	if status == models.QueueStatusFailed {
		_, err := q.DB.ExecContext(ctx, `
			UPDATE video_queue SET status = ?, retry_count = retry_count + 1, error_message = ?, updated_at = ?
			WHERE id = ?
		`, status, errMsg, now, id)
		return err
	}
	_, err := q.DB.ExecContext(ctx, `
		UPDATE video_queue SET status = ?, updated_at = ? WHERE id = ?
	`, status, now, id)
	return err
}

// UpsertStore implements SPEC_FULL §4.8's upsert_store: insert-or-replace
// the durable record, and in the same transaction promote the matching
// queue entry to ready.
func (q *Queue) UpsertStore(ctx context.Context, p models.UpsertStorePayload) (*models.VideoStoreEntry, error) {
	tx, err := q.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("archival: upsert_store begin tx: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO video_store (id, mal_id, episode, provider, resolution, file_key, account_index, repo_id, path, direct_url, stream_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mal_id, episode, provider, resolution) DO UPDATE SET
			file_key      = excluded.file_key,
			account_index = excluded.account_index,
			repo_id       = excluded.repo_id,
			path          = excluded.path,
			direct_url    = excluded.direct_url,
			stream_url    = excluded.stream_url
	`, id, p.MALID, p.Episode, p.Provider, p.Resolution, p.FileKey, p.AccountIndex, p.RepoID, p.Path, p.DirectURL, p.StreamURL, now)
	if err != nil {
		return nil, fmt.Errorf("archival: upsert_store insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE video_queue SET status = ?, updated_at = ?
		WHERE mal_id = ? AND episode = ? AND provider = ? AND resolution = ?
	`, models.QueueStatusReady, now, p.MALID, p.Episode, p.Provider, p.Resolution); err != nil {
		return nil, fmt.Errorf("archival: upsert_store promote: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("archival: upsert_store commit: %w", err)
	}
	return q.StoreByKey(ctx, p.MALID, p.Episode, p.Provider, p.Resolution)
}

// StoreByKey looks up a durable record by its unique key.
func (q *Queue) StoreByKey(ctx context.Context, malID int64, episode int, provider, resolution string) (*models.VideoStoreEntry, error) {
	row := q.DB.QueryRowContext(ctx, `
		SELECT id, mal_id, episode, provider, resolution, file_key, account_index, repo_id, path, direct_url, stream_url, created_at
		FROM video_store WHERE mal_id = ? AND episode = ? AND provider = ? AND resolution = ?
	`, malID, episode, provider, resolution)
	var e models.VideoStoreEntry
	if err := row.Scan(&e.ID, &e.MALID, &e.Episode, &e.Provider, &e.Resolution, &e.FileKey, &e.AccountIndex, &e.RepoID, &e.Path, &e.DirectURL, &e.StreamURL, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("archival: store by key: %w", err)
	}
	return &e, nil
}

// ExistsInProgress reports whether a queue entry for this key already
// exists in any of pending/downloading/uploading/ready, so the caller
// doesn't fire a duplicate webhook.
func (q *Queue) ExistsInProgress(ctx context.Context, malID int64, episode int, provider, resolution string) (bool, error) {
	e, err := q.byKey(ctx, malID, episode, provider, resolution)
	if err != nil {
		return false, err
	}
	return e != nil && e.Status != models.QueueStatusFailed, nil
}

// ResetStaleJobs implements SPEC_FULL §4.8's startup recovery: any row
// stuck in downloading/uploading past the timeout goes back to pending, so
// a crashed worker's in-flight jobs are retried by the next claim cycle.
// Directly grounded on the original Python worker's reset_stale_jobs.
func (q *Queue) ResetStaleJobs(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	res, err := q.DB.ExecContext(ctx, `
		UPDATE video_queue SET status = ?, updated_at = ?
		WHERE status IN (?, ?) AND updated_at < ?
	`, models.QueueStatusPending, time.Now().UTC(), models.QueueStatusDownloading, models.QueueStatusUploading, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archival: reset stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// Counts implements the /status endpoint's per-status tally.
func (q *Queue) Counts(ctx context.Context) (models.QueueCounts, error) {
	rows, err := q.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM video_queue GROUP BY status`)
	if err != nil {
		return models.QueueCounts{}, fmt.Errorf("archival: counts: %w", err)
	}
	defer rows.Close()

	var c models.QueueCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.QueueCounts{}, err
		}
		switch status {
		case models.QueueStatusPending:
			c.Pending = n
		case models.QueueStatusDownloading:
			c.Downloading = n
		case models.QueueStatusUploading:
			c.Uploading = n
		case models.QueueStatusReady:
			c.Ready = n
		case models.QueueStatusFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}

func (q *Queue) byKey(ctx context.Context, malID int64, episode int, provider, resolution string) (*models.VideoQueueEntry, error) {
	row := q.DB.QueryRowContext(ctx, `
		SELECT id, mal_id, episode, provider, video_url, resolution, status, retry_count, error_message, created_at, updated_at
		FROM video_queue WHERE mal_id = ? AND episode = ? AND provider = ? AND resolution = ?
	`, malID, episode, provider, resolution)
	e, err := scanQueueEntryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func scanQueueEntry(rows *sql.Rows) (*models.VideoQueueEntry, error) {
	var e models.VideoQueueEntry
	var errMsg sql.NullString
	if err := rows.Scan(&e.ID, &e.MALID, &e.Episode, &e.Provider, &e.VideoURL, &e.Resolution, &e.Status, &e.RetryCount, &errMsg, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, fmt.Errorf("archival: scan queue entry: %w", err)
	}
	e.ErrorMessage = errMsg.String
	return &e, nil
}

func scanQueueEntryRow(row *sql.Row) (*models.VideoQueueEntry, error) {
	var e models.VideoQueueEntry
	var errMsg sql.NullString
	if err := row.Scan(&e.ID, &e.MALID, &e.Episode, &e.Provider, &e.VideoURL, &e.Resolution, &e.Status, &e.RetryCount, &errMsg, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.ErrorMessage = errMsg.String
	return &e, nil
}
