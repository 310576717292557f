package jobs

import (
	"context"

	"speakcheck-worker/pkg/models"

	"github.com/google/uuid"
)

type JobService interface {
	CreateJob(ctx context.Context, req *models.JobRequest, userID *uuid.UUID) (*models.TranscriptionJob, error)
	GetJob(ctx context.Context, id int64) (*models.TranscriptionJob, error)
	ListJobs(ctx context.Context, status string, speechID *uuid.UUID) ([]*models.TranscriptionJob, error)
	ClaimNextJob(ctx context.Context) (*models.TranscriptionJob, error)
	CompleteJob(ctx context.Context, id int64, transcript string, metadata models.JSON, questions models.QuestionPayloadList) error
	FailJob(ctx context.Context, id int64, errorMessage string) error
	CancelJobsForSpeech(ctx context.Context, speechID uuid.UUID) (int64, error)
	LatestCompletedForSpeech(ctx context.Context, speechID uuid.UUID) (*models.TranscriptionJob, error)
}
