package models

import (
	"fmt"
	"time"
)

// Job status constants
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// FileManifestEntry records one submitted file in a job's metadata
type FileManifestEntry struct {
	Filename    string `bson:"filename" json:"filename"`
	Size        int64  `bson:"size" json:"size"`
	FileType    string `bson:"file_type" json:"file_type"`
	ContentHash string `bson:"content_hash,omitempty" json:"content_hash,omitempty"`
	Skipped     bool   `bson:"skipped,omitempty" json:"skipped,omitempty"`
	Error       string `bson:"error,omitempty" json:"error,omitempty"`
}

// JobMetadata carries the per-file manifest and running counters
type JobMetadata struct {
	Files         []FileManifestEntry `bson:"files" json:"files"`
	ChunksCreated int                 `bson:"chunks_created" json:"chunks_created"`
	CurrentFile   string              `bson:"current_file,omitempty" json:"current_file,omitempty"`
	TopicTags     []string            `bson:"topic_tags,omitempty" json:"topic_tags,omitempty"`
}

// IngestionJob tracks one batch-processing request for a persona.
// Status transitions: queued -> processing -> {completed | failed}.
// A failed job may be requeued, but only with resupplied files: the raw
// bytes are not retained after processing.
type IngestionJob struct {
	ID             string      `bson:"_id" json:"id"`
	PersonaID      string      `bson:"persona_id" json:"persona_id"`
	OwnerID        string      `bson:"owner_id" json:"owner_id"`
	TotalFiles     int         `bson:"total_files" json:"total_files"`
	ProcessedFiles int         `bson:"processed_files" json:"processed_files"`
	Status         string      `bson:"status" json:"status"`
	Progress       int         `bson:"progress" json:"progress"`
	ErrorMessage   string      `bson:"error_message,omitempty" json:"error_message,omitempty"`
	Metadata       JobMetadata `bson:"metadata" json:"metadata"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `bson:"updated_at" json:"updated_at"`
	CompletedAt    *time.Time  `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a final state
func (j *IngestionJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Requeue resets a failed job back to queued with a fresh file manifest.
// Only failed jobs may be requeued; counters, progress, the error message
// and completion time are all cleared.
func (j *IngestionJob) Requeue(files []FileManifestEntry, topicTags []string) error {
	if j.Status != JobStatusFailed {
		return fmt.Errorf("only failed jobs can be requeued, job is %s", j.Status)
	}
	j.Status = JobStatusQueued
	j.Progress = 0
	j.ProcessedFiles = 0
	j.TotalFiles = len(files)
	j.ErrorMessage = ""
	j.CompletedAt = nil
	j.Metadata = JobMetadata{Files: files, TopicTags: topicTags}
	return nil
}

// JobSnapshot is the progress shape served by the pull endpoint and
// emitted by the SSE stream.
type JobSnapshot struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Progress       int    `json:"progress_percent"`
	ProcessedFiles int    `json:"processed_files"`
	TotalFiles     int    `json:"total_files"`
	ChunksCreated  int    `json:"chunks_created"`
	CurrentFile    string `json:"current_file,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Snapshot projects the job into its progress-reporting shape
func (j *IngestionJob) Snapshot() JobSnapshot {
	return JobSnapshot{
		JobID:          j.ID,
		Status:         j.Status,
		Progress:       j.Progress,
		ProcessedFiles: j.ProcessedFiles,
		TotalFiles:     j.TotalFiles,
		ChunksCreated:  j.Metadata.ChunksCreated,
		CurrentFile:    j.Metadata.CurrentFile,
		Error:          j.ErrorMessage,
	}
}
