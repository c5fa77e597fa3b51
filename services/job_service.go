package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"persona-advisor/internal/logger"
	"persona-advisor/models"
)

var ErrJobNotFound = errors.New("job not found")

// JobService persists ingestion jobs and owns their status transitions.
type JobService struct {
	jobs *mongo.Collection
}

func NewJobService(db *mongo.Database) *JobService {
	return &JobService{jobs: db.Collection("ingestion_jobs")}
}

func (s *JobService) CreateJob(ctx context.Context, personaID, ownerID string, files []models.FileManifestEntry, topicTags []string) (*models.IngestionJob, error) {
	now := time.Now().UTC()
	job := &models.IngestionJob{
		ID:         uuid.NewString(),
		PersonaID:  personaID,
		OwnerID:    ownerID,
		TotalFiles: len(files),
		Status:     models.JobStatusQueued,
		Metadata:   models.JobMetadata{Files: files, TopicTags: topicTags},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.jobs.InsertOne(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	var job models.IngestionJob
	err := s.jobs.FindOne(ctx, bson.M{"_id": jobID}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetJobForOwner returns the job only if it belongs to the given user.
func (s *JobService) GetJobForOwner(ctx context.Context, jobID, ownerID string) (*models.IngestionJob, error) {
	var job models.IngestionJob
	err := s.jobs.FindOne(ctx, bson.M{"_id": jobID, "owner_id": ownerID}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs returns a persona's jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, personaID, ownerID string, limit int64) ([]models.IngestionJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.jobs.Find(ctx, bson.M{"persona_id": personaID, "owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []models.IngestionJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateJob replaces the stored job document, refreshing updated_at.
func (s *JobService) UpdateJob(ctx context.Context, job *models.IngestionJob) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

// RequeueJob moves a failed job back to queued with a fresh file manifest.
// Original file bytes are not retained after processing, so the caller must
// resupply them.
func (s *JobService) RequeueJob(ctx context.Context, jobID, ownerID string, files []models.FileManifestEntry, topicTags []string) (*models.IngestionJob, error) {
	job, err := s.GetJobForOwner(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := job.Requeue(files, topicTags); err != nil {
		return nil, err
	}
	if err := s.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// FailStaleJobs marks jobs stuck in processing beyond the timeout as failed.
// Covers worker crashes that never reached a terminal transition.
func (s *JobService) FailStaleJobs(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	res, err := s.jobs.UpdateMany(ctx,
		bson.M{"status": models.JobStatusProcessing, "updated_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{
			"status":        models.JobStatusFailed,
			"error_message": "worker lost: job exceeded processing timeout",
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return 0, err
	}
	if res.ModifiedCount > 0 {
		logger.Warn("stale jobs marked failed", "count", res.ModifiedCount)
	}
	return res.ModifiedCount, nil
}

// DeleteOldJobs removes terminal jobs older than the retention window.
func (s *JobService) DeleteOldJobs(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.jobs.DeleteMany(ctx, bson.M{
		"status":     bson.M{"$in": []string{models.JobStatusCompleted, models.JobStatusFailed}},
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
