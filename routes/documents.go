package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"persona-advisor/internal/config"
	"persona-advisor/internal/logger"
	"persona-advisor/internal/queue"
	"persona-advisor/middleware"
	"persona-advisor/models"
	"persona-advisor/services"
	"persona-advisor/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

const estimatedSecondsPerFile = 30

// JobStore is the slice of the job service the document routes depend on.
type JobStore interface {
	CreateJob(ctx context.Context, personaID, ownerID string, files []models.FileManifestEntry, topicTags []string) (*models.IngestionJob, error)
	RequeueJob(ctx context.Context, jobID, ownerID string, files []models.FileManifestEntry, topicTags []string) (*models.IngestionJob, error)
	GetJobForOwner(ctx context.Context, jobID, ownerID string) (*models.IngestionJob, error)
}

// SetupDocumentRoutes wires document submission plus the two progress read
// paths: a pull snapshot endpoint and an SSE push stream.
func SetupDocumentRoutes(api *gin.RouterGroup, cfg *config.Config, personas *services.PersonaService, jobs JobStore, queueClient *asynq.Client) {

	readFiles := func(c *gin.Context) ([]services.IngestedFile, []models.FileManifestEntry, bool) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "Failed to parse upload", gin.H{"error": err.Error()})
			return nil, nil, false
		}
		form := c.Request.MultipartForm
		if form == nil || len(form.File["files"]) == 0 {
			utils.RespondWithBadRequest(c, "At least one file is required (multipart field \"files\")", nil)
			return nil, nil, false
		}
		headers := form.File["files"]
		if len(headers) > cfg.MaxBatchSize {
			utils.RespondWithBadRequest(c,
				fmt.Sprintf("Too many files: %d submitted, limit is %d", len(headers), cfg.MaxBatchSize), nil)
			return nil, nil, false
		}

		files := make([]services.IngestedFile, 0, len(headers))
		manifest := make([]models.FileManifestEntry, 0, len(headers))
		for _, header := range headers {
			if header.Size > cfg.MaxFileSize {
				utils.RespondWithBadRequest(c,
					fmt.Sprintf("File %s exceeds the %d byte limit", header.Filename, cfg.MaxFileSize), nil)
				return nil, nil, false
			}
			data, err := readMultipartFile(header, cfg.MaxFileSize)
			if err != nil {
				utils.RespondWithBadRequest(c,
					fmt.Sprintf("Failed to read file %s", header.Filename), gin.H{"error": err.Error()})
				return nil, nil, false
			}
			files = append(files, services.IngestedFile{Name: header.Filename, Data: data})
			manifest = append(manifest, models.FileManifestEntry{
				Filename: header.Filename,
				Size:     header.Size,
				FileType: services.FileType(header.Filename),
			})
		}
		return files, manifest, true
	}

	enqueue := func(c *gin.Context, job *models.IngestionJob, files []services.IngestedFile) bool {
		task, err := queue.NewIngestionTask(job.ID, files)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create processing task", gin.H{"error": err.Error()})
			return false
		}
		info, err := queueClient.Enqueue(task)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue processing task", nil)
			return false
		}
		logger.Info("ingestion job enqueued", "job_id", job.ID, "task_id", info.ID, "files", len(files))
		return true
	}

	// Submit a batch of documents for ingestion into a persona
	api.POST("/personas/:personaID/documents", func(c *gin.Context) {
		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		persona, err := personas.GetPersonaForOwner(ctx, c.Param("personaID"), middleware.GetUserID(c))
		if err != nil {
			if errors.Is(err, services.ErrPersonaNotFound) {
				utils.RespondWithNotFound(c, "Persona not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load persona", nil)
			return
		}

		files, manifest, ok := readFiles(c)
		if !ok {
			return
		}

		job, err := jobs.CreateJob(ctx, persona.ID, middleware.GetUserID(c), manifest, readTopicTags(c))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create job", nil)
			return
		}

		if !enqueue(c, job, files) {
			return
		}

		c.JSON(http.StatusAccepted, models.SubmitResponse{
			JobID:         job.ID,
			FilesCount:    len(files),
			EstimatedTime: len(files) * estimatedSecondsPerFile,
		})
	})

	// Requeue a failed job. Original bytes are not retained, so the caller
	// must resupply the files.
	api.POST("/jobs/:jobID/requeue", func(c *gin.Context) {
		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		files, manifest, ok := readFiles(c)
		if !ok {
			return
		}

		job, err := jobs.RequeueJob(ctx, c.Param("jobID"), middleware.GetUserID(c), manifest, readTopicTags(c))
		if err != nil {
			if errors.Is(err, services.ErrJobNotFound) {
				utils.RespondWithNotFound(c, "Job not found")
				return
			}
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}

		if !enqueue(c, job, files) {
			return
		}

		c.JSON(http.StatusAccepted, models.SubmitResponse{
			JobID:         job.ID,
			FilesCount:    len(files),
			EstimatedTime: len(files) * estimatedSecondsPerFile,
		})
	})

	// Pull path: current job snapshot
	api.GET("/jobs/:jobID", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		job, err := jobs.GetJobForOwner(ctx, c.Param("jobID"), middleware.GetUserID(c))
		if err != nil {
			if errors.Is(err, services.ErrJobNotFound) {
				utils.RespondWithNotFound(c, "Job not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load job", nil)
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	})

	// Push path: SSE stream polling the persisted job, emitting only on
	// change, closing after one terminal event.
	api.GET("/jobs/:jobID/events", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		jobID := c.Param("jobID")

		initCtx, initCancel := utils.WithTimeout(c.Request.Context())
		initial, err := jobs.GetJobForOwner(initCtx, jobID, userID)
		initCancel()
		if err != nil {
			if errors.Is(err, services.ErrJobNotFound) {
				utils.RespondWithNotFound(c, "Job not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load job", nil)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		last := initial.Snapshot()
		c.SSEvent("progress", last)
		c.Writer.Flush()
		if initial.Terminal() {
			c.SSEvent("complete", last)
			return
		}

		interval := time.Duration(cfg.SSEPollSeconds) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case <-ticker.C:
			}

			ctx, cancel := utils.WithShortTimeout(c.Request.Context())
			job, err := jobs.GetJobForOwner(ctx, jobID, userID)
			cancel()
			if err != nil {
				return false
			}

			snap := job.Snapshot()
			if snap != last {
				c.SSEvent("progress", snap)
				last = snap
			}
			if job.Terminal() {
				c.SSEvent("complete", snap)
				return false
			}
			return true
		})
	})
}

// readTopicTags parses the optional comma-separated "topic_tags" form field.
func readTopicTags(c *gin.Context) []string {
	raw := c.PostForm("topic_tags")
	if raw == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func readMultipartFile(header *multipart.FileHeader, maxSize int64) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxSize))
}
