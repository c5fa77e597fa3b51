package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"persona-advisor/internal/logger"
	"persona-advisor/services"
	"persona-advisor/utils"
)

const TaskIngestDocuments = "ingest:documents"

// TaskFilePayload carries one file's bytes through Redis. Bytes are
// compressed (size-dependent) and base64-encoded for the JSON envelope.
type TaskFilePayload struct {
	Name        string                     `json:"name"`
	Data        string                     `json:"data"`
	Compression utils.CompressionAlgorithm `json:"compression"`
}

type IngestPayload struct {
	JobID string            `json:"job_id"`
	Files []TaskFilePayload `json:"files"`
}

// NewIngestionTask packs the job's files into an asynq task. MaxRetry is
// low: the orchestrator is its own failure boundary, so a retried task
// normally means the worker died mid-job.
func NewIngestionTask(jobID string, files []services.IngestedFile) (*asynq.Task, error) {
	payloadFiles := make([]TaskFilePayload, len(files))
	for i, f := range files {
		algorithm := utils.GetBestCompression(f.Data)
		compressed, err := utils.CompressData(f.Data, algorithm)
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", f.Name, err)
		}
		payloadFiles[i] = TaskFilePayload{
			Name:        f.Name,
			Data:        base64.StdEncoding.EncodeToString(compressed),
			Compression: algorithm,
		}
	}

	payload, err := json.Marshal(IngestPayload{JobID: jobID, Files: payloadFiles})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocuments,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor adapts queue tasks onto the ingestion orchestrator.
type TaskProcessor struct {
	ingestor *services.Ingestor
}

func NewTaskProcessor(ingestor *services.Ingestor) *TaskProcessor {
	return &TaskProcessor{ingestor: ingestor}
}

func (p *TaskProcessor) HandleIngestion(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	files := make([]services.IngestedFile, len(payload.Files))
	for i, f := range payload.Files {
		compressed, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", f.Name, asynq.SkipRetry)
		}
		data, err := utils.DecompressData(compressed, f.Compression)
		if err != nil {
			return fmt.Errorf("decompress %s: %w", f.Name, asynq.SkipRetry)
		}
		files[i] = services.IngestedFile{Name: f.Name, Data: data}
	}

	logger.Info("ingestion task received", "job_id", payload.JobID, "files", len(files))
	return p.ingestor.Run(ctx, payload.JobID, files)
}
