package model

import "time"

// JobStatus is the local lifecycle state of a generation job.
// Jobs move pending -> succeeded | failed; both end states are terminal.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// CancelReason is recorded on jobs failed through user cancellation.
const CancelReason = "canceled"

// GenerationJob tracks one prediction dispatched to the external provider.
// ExternalHandle is the provider's identifier, set once submission is
// acknowledged. Rows are created at dispatch, mutated only by poll/cancel
// and never hard-deleted.
type GenerationJob struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	ExternalHandle *string   `db:"external_handle" json:"external_handle,omitempty"`
	Status         JobStatus `db:"status" json:"status"`
	ResultURL      *string   `db:"result_url" json:"result_url,omitempty"`
	ErrorReason    *string   `db:"error_reason" json:"error_reason,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the job can no longer change state.
func (j *GenerationJob) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
