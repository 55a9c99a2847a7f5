package models

import "time"

// VideoStoreEntry records the durable, archived copy of a queue entry once
// the worker has uploaded it to at least one storage account.
type VideoStoreEntry struct {
	ID           string    `json:"id"`
	MALID        int64     `json:"mal_id"`
	Episode      int       `json:"episode"`
	Provider     string    `json:"provider"`
	Resolution   string    `json:"resolution,omitempty"`
	FileKey      string    `json:"file_key"`
	AccountIndex int       `json:"account_index"`
	RepoID       string    `json:"repo_id"`
	Path         string    `json:"path"`
	DirectURL    string    `json:"direct_url"`
	StreamURL    string    `json:"stream_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// UpsertStorePayload is what the worker hands the archival queue once a
// download has been uploaded to at least one durable target.
type UpsertStorePayload struct {
	MALID        int64
	Episode      int
	Provider     string
	Resolution   string
	FileKey      string
	AccountIndex int
	RepoID       string
	Path         string
	DirectURL    string
	StreamURL    string
}
