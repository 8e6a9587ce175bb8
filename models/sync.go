package models

import (
	"time"
)

// Stages at which a single post can fail during a sync run.
const (
	SyncStageFetch = "fetch"
	SyncStageMedia = "media"
	SyncStageStore = "store"
)

// SyncItemError records one non-fatal per-post failure inside a run.
type SyncItemError struct {
	PostID  string `json:"post_id"`
	Stage   string `json:"stage"` // fetch, media, store
	Message string `json:"message"`
}

// SyncResult summarizes one sync run for an account. It is returned even on
// partial failure so callers can tell "nothing new" from "some items failed"
// from "run aborted".
type SyncResult struct {
	RunID           string          `json:"run_id"`
	Account         string          `json:"account"`
	TotalListed     int             `json:"total_listed"`
	Fetched         int             `json:"fetched"`
	SkippedExisting int             `json:"skipped_existing"`
	Failed          int             `json:"failed"`
	Errors          []SyncItemError `json:"errors,omitempty"`
	Aborted         bool            `json:"aborted"`
	AbortReason     string          `json:"abort_reason,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}
