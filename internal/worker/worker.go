package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"mangahub/internal/archival"
	"mangahub/internal/objectstore"
	"mangahub/internal/resolvers"
	"mangahub/pkg/models"
)

type Options struct {
	Salt            string
	ProxyBaseURL    string
	APIBaseURL      string
	PollInterval    time.Duration
	Concurrency     int
	StaleJobTimeout time.Duration
	WorkDir         string
}

// Worker runs the archival pipeline described in SPEC_FULL §4.9: a poll
// loop and a webhook handler both feed the same bounded-concurrency
// pipeline, deduplicated across both triggers by an in-memory active-key
// set mirroring the original Python worker's _active_job_keys.
type Worker struct {
	queue   *archival.Queue
	targets []objectstore.Target
	opts    Options

	sem *semaphore

	activeMu sync.Mutex
	active   map[string]struct{}
}

func New(queue *archival.Queue, targets []objectstore.Target, opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Worker{
		queue:   queue,
		targets: targets,
		opts:    opts,
		sem:     newSemaphore(opts.Concurrency),
		active:  make(map[string]struct{}),
	}
}

// Run starts the poll loop. It blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if n, err := w.queue.ResetStaleJobs(ctx, w.opts.StaleJobTimeout); err != nil {
		log.Printf("[worker] reset stale jobs failed: %v", err)
	} else if n > 0 {
		log.Printf("[worker] reset %d stale job(s) to pending on startup", n)
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	jobs, err := w.queue.Claim(ctx, w.opts.Concurrency)
	if err != nil {
		log.Printf("[worker] claim failed: %v", err)
		return
	}
	for _, j := range jobs {
		go w.process(ctx, j)
	}
}

// TriggerWebhook implements the webhook-triggered intake path: an
// authorised caller names a specific key, and the job is claimed and
// started immediately, in addition to the regular poll cycle.
func (w *Worker) TriggerWebhook(ctx context.Context, malID int64, episode int, provider, videoURL, resolution string) {
	if _, err := w.queue.Enqueue(ctx, malID, episode, provider, videoURL, resolution); err != nil {
		log.Printf("[worker] webhook enqueue failed: %v", err)
		return
	}
	job, err := w.queue.ClaimByKey(ctx, malID, episode, provider, resolution)
	if err != nil {
		log.Printf("[worker] webhook claim failed: %v", err)
		return
	}
	if job == nil {
		// Already claimed by the regular poll loop, or already ready;
		// nothing left for this trigger to start.
		return
	}
	go w.process(ctx, *job)
}

func (w *Worker) process(ctx context.Context, job models.VideoQueueEntry) {
	key := fmt.Sprintf("%d:%d:%s:%s", job.MALID, job.Episode, job.Provider, job.Resolution)

	if !w.claimActive(key) {
		return
	}
	defer w.releaseActive(key)

	w.sem.acquire()
	defer w.sem.release()

	if err := w.runJob(ctx, job); err != nil {
		log.Printf("[worker] job %s failed: %v", key, err)
		if uerr := w.queue.UpdateStatus(ctx, job.ID, models.QueueStatusFailed, err.Error()); uerr != nil {
			log.Printf("[worker] update_status failed: %v", uerr)
		}
	}
}

func (w *Worker) claimActive(key string) bool {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	if _, ok := w.active[key]; ok {
		return false
	}
	w.active[key] = struct{}{}
	return true
}

func (w *Worker) releaseActive(key string) {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	delete(w.active, key)
}

func (w *Worker) runJob(ctx context.Context, job models.VideoQueueEntry) error {
	videoURL := job.VideoURL

	// Step 1: re-resolve if the enqueued URL was an embed URL requiring
	// the worker's own network to obtain a fresh direct URL.
	if looksLikeEmbed(videoURL) {
		res, err := resolvers.Resolve(ctx, videoURL)
		if err != nil {
			return fmt.Errorf("re-resolve: %w", err)
		}
		if res == nil || res.DirectURL == "" {
			return fmt.Errorf("re-resolve: no direct url for %s", videoURL)
		}
		videoURL = res.DirectURL
	}

	if err := w.queue.UpdateStatus(ctx, job.ID, models.QueueStatusDownloading, ""); err != nil {
		return fmt.Errorf("mark downloading: %w", err)
	}

	destPath := filepath.Join(w.opts.WorkDir, fmt.Sprintf("%d-ep%d-%s-%s.mp4", job.MALID, job.Episode, job.Provider, job.Resolution))
	defer os.Remove(destPath)

	// Step 2: download.
	var dlErr error
	if isHLS(videoURL) {
		dlErr = downloadHLS(ctx, videoURL, destPath)
	} else {
		dlErr = downloadDirect(ctx, videoURL, destPath)
	}
	if dlErr != nil {
		return fmt.Errorf("download: %w", dlErr)
	}
	size := fileSize(destPath)
	log.Printf("[worker] downloaded %s (%s)", destPath, humanize.Bytes(uint64(size)))

	// Step 3: compute file_key.
	fileKey := FileKey(w.opts.Salt, job.MALID, job.Episode, job.Provider, job.Resolution)
	path := fmt.Sprintf("mangahub-%d/%d/ep%d/%s.mp4", job.MALID, job.MALID, job.Episode, fileKey)

	if err := w.queue.UpdateStatus(ctx, job.ID, models.QueueStatusUploading, ""); err != nil {
		return fmt.Errorf("mark uploading: %w", err)
	}

	// Step 4: upload to every configured target; the first success wins
	// as primary, the rest provide redundancy.
	var primaryURL string
	var primaryRepo string
	var primaryIdx int
	uploaded := false
	for i, t := range w.targets {
		f, err := os.Open(destPath)
		if err != nil {
			return fmt.Errorf("reopen download: %w", err)
		}
		directURL, err := t.Upload(ctx, path, f, size, "video/mp4")
		f.Close()
		if err != nil {
			log.Printf("[worker] upload to target %d failed: %v", i, err)
			continue
		}
		log.Printf("[worker] uploaded %s to target %d", humanize.Bytes(uint64(size)), i)
		if !uploaded {
			primaryURL, primaryRepo, primaryIdx = directURL, t.RepoID(), i
			uploaded = true
		}
	}
	if !uploaded {
		return fmt.Errorf("upload: all %d target(s) failed", len(w.targets))
	}

	// Step 5: commit.
	streamURL := w.opts.ProxyBaseURL + "/proxy?url=" + url.QueryEscape(primaryURL)
	if _, err := w.queue.UpsertStore(ctx, models.UpsertStorePayload{
		MALID: job.MALID, Episode: job.Episode, Provider: job.Provider, Resolution: job.Resolution,
		FileKey: fileKey, AccountIndex: primaryIdx, RepoID: primaryRepo, Path: path,
		DirectURL: primaryURL, StreamURL: streamURL,
	}); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	w.invalidateCache(job.MALID, job.Episode)
	return nil
}

// invalidateCache is the fire-and-forget best-effort call to the API's
// cache-invalidation endpoint (§4.7) once archival commits.
func (w *Worker) invalidateCache(malID int64, episode int) {
	if w.opts.APIBaseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		body := fmt.Sprintf(`{"mal_id":%d,"episode":%d,"secret":%q}`, malID, episode, w.opts.Salt)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.opts.APIBaseURL+"/api/v1/streaming/invalidate", strings.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Printf("[worker] invalidate callback failed (non-fatal): %v", err)
			return
		}
		resp.Body.Close()
	}()
}

// looksLikeEmbed is a cheap heuristic: enqueued direct download URLs
// always point at a media file or playlist; an embed URL doesn't.
func looksLikeEmbed(u string) bool {
	for _, ext := range []string{".mp4", ".m3u8", ".mkv", ".webm"} {
		if len(u) >= len(ext) && u[len(u)-len(ext):] == ext {
			return false
		}
	}
	return true
}

// semaphore is a counting semaphore bounding concurrent jobs, per
// SPEC_FULL §4.9's "at most 2 jobs in flight across both triggers."
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(n int) *semaphore {
	return &semaphore{ch: make(chan struct{}, n)}
}

func (s *semaphore) acquire() { s.ch <- struct{}{} }
func (s *semaphore) release() { <-s.ch }
