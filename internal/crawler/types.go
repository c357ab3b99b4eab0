// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"
)

// JobStatus represents the lifecycle state of an orchestration job.
type JobStatus string

// Job status values recorded in the job history store.
const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusPartial   JobStatus = "partial"
	JobStatusRejected  JobStatus = "rejected"
	JobStatusFaulted   JobStatus = "faulted"
)

// Account is the last-observed login validity of one platform account.
type Account struct {
	Identity   string    `json:"identity"`
	LoginValid bool      `json:"loginValid"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// JobRequest describes one submitted crawl. JobID is caller supplied and may be empty.
type JobRequest struct {
	JobID    string   `json:"jobId,omitempty"`
	Targets  []string `json:"targets"`
	Headless bool     `json:"headless"`
}

// Batch is a bounded slice of targets processed against one account.
type Batch struct {
	Sequence int      `json:"sequence"`
	Targets  []string `json:"targets"`
}

// CrawlRequest is handed to a Crawler for a single batch.
type CrawlRequest struct {
	Account  string
	Targets  []string
	Headless bool
}

// RawNote is a content record as produced by the platform crawler.
type RawNote struct {
	NoteID         string `json:"note_id"`
	Title          string `json:"title"`
	NoteURL        string `json:"note_url"`
	Time           int64  `json:"time"`
	UserID         string `json:"user_id"`
	LikedCount     string `json:"liked_count"`
	CollectedCount string `json:"collected_count"`
	CommentCount   string `json:"comment_count"`
	ShareCount     string `json:"share_count"`
}

// ContentRecord is the projected, caller-facing form of a RawNote.
type ContentRecord struct {
	NoteID          string `json:"noteId"`
	NoteTitle       string `json:"noteTitle"`
	NoteURL         string `json:"noteUrl"`
	NotePublishTime string `json:"notePublishTime"`
	KolID           string `json:"kolId"`
	LikeNum         string `json:"likeNum"`
	FavNum          string `json:"favNum"`
	CmtNum          string `json:"cmtNum"`
	ShareNum        string `json:"shareNum"`
}

// RunState is the process-wide view of the active job.
type RunState struct {
	Running   bool      `json:"running"`
	JobID     string    `json:"jobId,omitempty"`
	Account   string    `json:"account,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
}

// Report is the aggregated outcome of a completed job.
type Report struct {
	RunID      string            `json:"jobId"`
	Total      int               `json:"total"`
	List       []ContentRecord   `json:"list"`
	ErrorInfos map[string]string `json:"errorInfos"`
	Elapsed    time.Duration     `json:"-"`
	ElapsedMs  int64             `json:"elapsedMs"`
}

// JobRecord is the history entry kept for each admitted job.
type JobRecord struct {
	RunID      string            `json:"runId"`
	JobID      string            `json:"jobId,omitempty"`
	Status     JobStatus         `json:"status"`
	Targets    int               `json:"targets"`
	Batches    int               `json:"batches"`
	Total      int               `json:"total"`
	ErrorInfos map[string]string `json:"errorInfos,omitempty"`
	ErrorText  string            `json:"errorText,omitempty"`
	Started    time.Time         `json:"startedAt"`
	Finished   *time.Time        `json:"finishedAt,omitempty"`
}
