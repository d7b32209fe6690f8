package model

import "time"

// BatchStatus is the lifecycle state of one batch verification run
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchStalled   BatchStatus = "stalled"
	BatchCancelled BatchStatus = "cancelled"
)

// BatchRun tracks one execution of verification over a set of
// citations against one Act. Completed never decreases and never
// exceeds Total. FailedAt is the 1-based index of the group that
// failed; resume restarts exactly there.
type BatchRun struct {
	ID        string      `json:"id"`
	ActID     string      `json:"act_id"`
	CaseID    string      `json:"case_id,omitempty"`
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	FailedAt  *int        `json:"failed_at,omitempty"`
	Heartbeat time.Time   `json:"heartbeat"`
	Status    BatchStatus `json:"status"`
	Attempts  int         `json:"attempts"` // resume/re-enqueue count, bounded by config
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ProgressEvent is broadcast after each group's results are durably
// persisted (emit-after-persist).
type ProgressEvent struct {
	BatchID   string `json:"batch_id"`
	ActName   string `json:"act_name"`
	Verified  int    `json:"verified_count"`
	Total     int    `json:"total_count"`
	Completed bool   `json:"completed"`
}

// CitationEvent announces one citation reaching a terminal status
type CitationEvent struct {
	BatchID     string             `json:"batch_id"`
	CitationID  string             `json:"citation_id"`
	Status      VerificationStatus `json:"status"`
	Explanation string             `json:"explanation,omitempty"`
}
