package model

import "time"

// BatchStatus tracks the lifecycle of one import run.
type BatchStatus string

// Batch lifecycle states. A crash mid-ingest leaves a batch in
// StatusRunning; rollback can still clean it up.
const (
	BatchRunning    BatchStatus = "running"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchRolledBack BatchStatus = "rolled_back"
)

// ImportBatch is the audit record for one execution of the ingestion
// process against one source file. It is the unit of rollback.
type ImportBatch struct {
	StartedAt        time.Time
	CompletedAt      *time.Time
	BatchID          string
	SourceFile       string
	SourceFileHash   string
	ErrorMessage     string
	Status           BatchStatus
	RejectBreakdown  map[RejectReason]int64
	DataYear         int
	TotalRecords     int64
	AcceptedRecords  int64
	DuplicateRecords int64
	RejectedRecords  int64
}
