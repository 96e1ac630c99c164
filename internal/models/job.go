package models

import "time"

type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// TileOutcome values for individual tiles within a download job.
const (
	TileOutcomeDownloaded = "downloaded"
	TileOutcomeSkipped    = "skipped" // already on disk
	TileOutcomeFailed     = "failed"
)

// TileResult is the outcome of one tile download task within a job.
type TileResult struct {
	TileCode     string    `json:"tile_code"`
	Displacement string    `json:"displacement"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// DownloadJob is a batch download request over a tile range.
type DownloadJob struct {
	ID            string       `json:"id"`
	MinE          int          `json:"min_e"`
	MaxE          int          `json:"max_e"`
	MinN          int          `json:"min_n"`
	MaxN          int          `json:"max_n"`
	Displacements []string     `json:"displacements"`
	YearSpan      string       `json:"year_span"`
	Status        JobStatus    `json:"status"`
	TotalTasks    int          `json:"total_tasks"`
	Completed     int          `json:"completed"`
	Results       []TileResult `json:"results"`
	CreatedAt     time.Time    `json:"created_at"`
	FinishedAt    time.Time    `json:"finished_at,omitzero"`
}
