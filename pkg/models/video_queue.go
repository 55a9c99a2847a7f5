package models

import "time"

const (
	QueueStatusPending     = "pending"
	QueueStatusDownloading = "downloading"
	QueueStatusUploading   = "uploading"
	QueueStatusReady       = "ready"
	QueueStatusFailed      = "failed"
)

// VideoQueueEntry tracks one (mal_id, episode, provider, resolution)
// download job through the archival status machine.
type VideoQueueEntry struct {
	ID           string    `json:"id"`
	MALID        int64     `json:"mal_id"`
	Episode      int       `json:"episode"`
	Provider     string    `json:"provider"`
	VideoURL     string    `json:"video_url"`
	Resolution   string    `json:"resolution,omitempty"`
	Status       string    `json:"status"`
	RetryCount   int       `json:"retry_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QueueCounts is the per-status tally the worker's /status endpoint reports.
type QueueCounts struct {
	Pending     int `json:"pending"`
	Downloading int `json:"downloading"`
	Uploading   int `json:"uploading"`
	Ready       int `json:"ready"`
	Failed      int `json:"failed"`
}
