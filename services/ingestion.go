package services

import (
	"context"
	"fmt"
	"time"

	"persona-advisor/internal/logger"
	"persona-advisor/internal/telemetry"
	"persona-advisor/internal/vector"
	"persona-advisor/models"
	"persona-advisor/utils"
)

// IngestedFile is one uploaded file's bytes, as handed off by the queue.
type IngestedFile struct {
	Name string
	Data []byte
}

// JobStore is the slice of JobService the orchestrator needs.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*models.IngestionJob, error)
	UpdateJob(ctx context.Context, job *models.IngestionJob) error
}

// PersonaStore resolves personas and accumulates their ingestion counters.
type PersonaStore interface {
	GetPersona(ctx context.Context, personaID string) (*models.Persona, error)
	AddCounters(ctx context.Context, personaID string, chunks, tokens int64) error
}

// TextExtractor turns file bytes into plain text.
type TextExtractor interface {
	ExtractText(fileName string, data []byte) (string, error)
}

// SegmentChunker splits text into token-bounded segments.
type SegmentChunker interface {
	Chunk(text, sourceName string) []models.Segment
}

// DocumentEmbedder embeds segment texts, possibly returning a shorter
// result than the input when later batches fail.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Ingestor drives one job through extract -> dedup -> chunk -> embed ->
// upsert for each file. It owns the job state machine and is the failure
// containment boundary: errors inside a job mark it failed, they do not
// escape to the caller.
type Ingestor struct {
	jobs     JobStore
	personas PersonaStore
	extract  TextExtractor
	chunker  SegmentChunker
	embedder DocumentEmbedder
	store    vector.Store
	metrics  *telemetry.Metrics
}

func NewIngestor(jobs JobStore, personas PersonaStore, extract TextExtractor, chunker SegmentChunker, embedder DocumentEmbedder, store vector.Store, metrics *telemetry.Metrics) *Ingestor {
	return &Ingestor{
		jobs:     jobs,
		personas: personas,
		extract:  extract,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		metrics:  metrics,
	}
}

// Run processes one queued job. It returns an error only when the job
// record itself cannot be loaded or persisted; everything else ends in a
// terminal job status and a nil return.
func (ing *Ingestor) Run(ctx context.Context, jobID string, files []IngestedFile) error {
	start := time.Now()

	job, err := ing.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Terminal() {
		logger.Warn("job already terminal, skipping", "job_id", jobID, "status", job.Status)
		return nil
	}

	// Persist the PROCESSING transition before any file work so progress
	// pollers see it immediately.
	job.Status = models.JobStatusProcessing
	job.TotalFiles = len(files)
	if err := ing.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark job %s processing: %w", jobID, err)
	}

	persona, err := ing.personas.GetPersona(ctx, job.PersonaID)
	if err != nil {
		ing.fail(ctx, job, fmt.Sprintf("failed to resolve persona %s: %v", job.PersonaID, err))
		ing.record(len(files), 0, start, models.JobStatusFailed)
		return nil
	}

	seen := make(map[string]bool)
	var totalChunks, totalTokens int64

	for i, file := range files {
		job.Metadata.CurrentFile = file.Name
		ing.persist(ctx, job)

		chunks, tokens, skipped, fileErr := ing.processFile(ctx, job, persona, file, seen, i)
		entry := ing.manifestEntry(job, file.Name)
		switch {
		case fileErr != nil:
			// One bad file never fails the whole job
			logger.Error("file ingestion failed", "job_id", job.ID, "file", file.Name, "error", fileErr.Error())
			if entry != nil {
				entry.Error = fileErr.Error()
			}
		case skipped:
			logger.Info("duplicate file skipped", "job_id", job.ID, "file", file.Name)
			if entry != nil {
				entry.Skipped = true
			}
		default:
			job.ProcessedFiles++
			job.Metadata.ChunksCreated += int(chunks)
			totalChunks += chunks
			totalTokens += tokens
		}

		job.Progress = (i + 1) * 100 / len(files)
		ing.persist(ctx, job)
	}

	if totalChunks == 0 {
		ing.fail(ctx, job, "no content could be extracted from any files")
		ing.record(len(files), 0, start, models.JobStatusFailed)
		return nil
	}

	if err := ing.personas.AddCounters(ctx, persona.ID, totalChunks, totalTokens); err != nil {
		logger.Error("failed to update persona counters", "persona_id", persona.ID, "error", err.Error())
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.Metadata.CurrentFile = ""
	job.CompletedAt = &now
	if err := ing.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark job %s completed: %w", jobID, err)
	}

	logger.Info("ingestion completed", "job_id", job.ID, "persona_id", persona.ID,
		"files", job.ProcessedFiles, "chunks", totalChunks, "tokens", totalTokens,
		"duration", time.Since(start).String())
	ing.record(len(files), totalChunks, start, models.JobStatusCompleted)
	return nil
}

// processFile runs the per-file pipeline. A true skipped return means the
// file duplicated an earlier one in this job and was not processed.
func (ing *Ingestor) processFile(ctx context.Context, job *models.IngestionJob, persona *models.Persona, file IngestedFile, seen map[string]bool, fileIdx int) (chunks, tokens int64, skipped bool, err error) {
	text, err := ing.extract.ExtractText(file.Name, file.Data)
	if err != nil {
		return 0, 0, false, err
	}

	hash := utils.ContentHash(text)
	if entry := ing.manifestEntry(job, file.Name); entry != nil {
		entry.ContentHash = hash
	}
	if seen[hash] {
		return 0, 0, true, nil
	}
	seen[hash] = true

	segments := ing.chunker.Chunk(text, file.Name)
	if len(segments) == 0 {
		return 0, 0, false, fmt.Errorf("%s: produced no segments", file.Name)
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	vectors, err := ing.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, 0, false, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) < len(segments) {
		// Partial embedding result: store what was embedded
		logger.Warn("partial embedding result", "job_id", job.ID, "file", file.Name,
			"embedded", len(vectors), "segments", len(segments))
		segments = segments[:len(vectors)]
	}

	records := make([]vector.Record, len(segments))
	now := time.Now().UTC()
	for i, seg := range segments {
		records[i] = vector.Record{
			ID:     vector.RecordID(persona.ID, hash, seg.Index),
			Vector: vectors[i],
			Metadata: vector.Metadata{
				Excerpt:     seg.Text,
				Source:      seg.Source,
				FileType:    FileType(file.Name),
				ContentHash: hash,
				CharStart:   seg.CharStart,
				CharEnd:     seg.CharEnd,
				PersonaID:   persona.ID,
				TopicTags:   job.Metadata.TopicTags,
				CreatedAt:   now,
			},
		}
		tokens += int64(seg.TokenCount)
	}

	upserted, err := ing.store.Upsert(ctx, persona.Namespace, records)
	if err != nil {
		return 0, 0, false, fmt.Errorf("vector upsert failed after %d records: %w", upserted, err)
	}
	return int64(upserted), tokens, false, nil
}

func (ing *Ingestor) manifestEntry(job *models.IngestionJob, fileName string) *models.FileManifestEntry {
	for i := range job.Metadata.Files {
		if job.Metadata.Files[i].Filename == fileName {
			return &job.Metadata.Files[i]
		}
	}
	return nil
}

// maxErrorMessageLen bounds the persisted error message so unbounded
// provider errors cannot bloat job documents or progress payloads.
const maxErrorMessageLen = 500

func (ing *Ingestor) fail(ctx context.Context, job *models.IngestionJob, msg string) {
	job.Status = models.JobStatusFailed
	job.ErrorMessage = truncateMessage(msg, maxErrorMessageLen)
	job.Metadata.CurrentFile = ""
	logger.Error("ingestion job failed", "job_id", job.ID, "error", msg)
	ing.persist(ctx, job)
}

func truncateMessage(msg string, limit int) string {
	runes := []rune(msg)
	if len(runes) <= limit {
		return msg
	}
	return string(runes[:limit]) + "..."
}

// persist saves intermediate progress; failures are logged, not fatal,
// since the final terminal update is the one that matters.
func (ing *Ingestor) persist(ctx context.Context, job *models.IngestionJob) {
	if err := ing.jobs.UpdateJob(ctx, job); err != nil {
		logger.Error("failed to persist job progress", "job_id", job.ID, "error", err.Error())
	}
}

func (ing *Ingestor) record(files int, chunks int64, start time.Time, status string) {
	if ing.metrics == nil {
		return
	}
	ing.metrics.RecordIngestion(int64(files), chunks, time.Since(start).Seconds(), status)
}
