package models

import "time"

type SyncType string

const (
	SyncTypeDiscovery   SyncType = "discovery"
	SyncTypeMaterialize SyncType = "materialize"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRun is one logged execution of discovery or materialization.
// It is created as running and closed exactly once.
type SyncRun struct {
	ID           string     `json:"id"`
	SyncType     SyncType   `json:"syncType"`
	Category     *Category  `json:"category,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Status       SyncStatus `json:"status"`
	FoundCount   int        `json:"foundCount"`
	AddedCount   int        `json:"addedCount"`
	UpdatedCount int        `json:"updatedCount"`
	FailedCount  int        `json:"failedCount"`
	SkippedCount int        `json:"skippedCount"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
}

// Complete closes the run successfully
func (r *SyncRun) Complete(at time.Time) {
	r.Status = SyncStatusCompleted
	r.CompletedAt = &at
	r.ErrorMessage = nil
}

// Fail closes the run with an error message
func (r *SyncRun) Fail(at time.Time, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r.Status = SyncStatusFailed
	r.CompletedAt = &at
	r.ErrorMessage = &msg
}

// DiscoveryStats summarises one discovery pass
type DiscoveryStats struct {
	RunID       string `json:"runId"`
	Members     int    `json:"members"`
	Found       int    `json:"found"`
	Added       int    `json:"added"`
	Updated     int    `json:"updated"`
	Deactivated int    `json:"deactivated"`
}

// MaterializeStats summarises one materialization pass over a category
type MaterializeStats struct {
	RunID    string   `json:"runId"`
	Category Category `json:"category"`
	Total    int      `json:"total"`
	Success  int      `json:"success"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
}
