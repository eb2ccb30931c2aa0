package model

import "time"

// HistoryEntry is a read-only projection of a past job for listing. Entries
// are created by a bulk fetch and replaced wholesale on refresh, never
// mutated incrementally.
type HistoryEntry struct {
	JobID      string     `json:"jobId"`
	KindLabel  string     `json:"kindLabel"`
	Status     string     `json:"status"`
	Progress   int        `json:"progress"`
	Filename   string     `json:"filename,omitempty"`
	OutputRef  string     `json:"outputRef,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the entry's artifact window has elapsed.
func (e HistoryEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
