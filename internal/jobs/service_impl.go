package jobs

import (
	"context"
	"fmt"
	"log"

	"speakcheck-worker/pkg/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type jobServiceImpl struct {
	repo   JobRepository
	tracer trace.Tracer
}

func NewJobServiceImpl(repo JobRepository) JobService {
	return &jobServiceImpl{
		repo:   repo,
		tracer: otel.Tracer("speakcheck-worker/jobs"),
	}
}

func (s *jobServiceImpl) CreateJob(ctx context.Context, req *models.JobRequest, userID *uuid.UUID) (*models.TranscriptionJob, error) {
	ctx, span := s.tracer.Start(ctx, "JobService.CreateJob")
	defer span.End()

	// Défauts appliqués ici plutôt qu'en base pour que la réponse API les
	// reflète immédiatement
	language := req.Language
	if language == "" {
		language = "ko"
	}
	modelSize := req.ModelSize
	if modelSize == "" {
		modelSize = "medium"
	}
	generateQuestions := true
	if req.GenerateQuestions != nil {
		generateQuestions = *req.GenerateQuestions
	}

	job := &models.TranscriptionJob{
		VideoSource:       req.VideoSource,
		UserID:            userID,
		StageID:           req.StageID,
		SpeechID:          req.SpeechID,
		Language:          language,
		ModelSize:         modelSize,
		GenerateQuestions: generateQuestions,
		Status:            models.StatusPending,
	}

	if err := s.repo.Create(ctx, job); err != nil {
		span.RecordError(err)
		log.Printf("JobService.CreateJob: Failed to create job: %v", err)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	log.Printf("JobService.CreateJob: Job %d created (source: %s)", job.ID, job.VideoSource)
	return job, nil
}

func (s *jobServiceImpl) GetJob(ctx context.Context, id int64) (*models.TranscriptionJob, error) {
	ctx, span := s.tracer.Start(ctx, "JobService.GetJob")
	defer span.End()

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get job %d: %w", id, err)
	}

	return job, nil
}

func (s *jobServiceImpl) ListJobs(ctx context.Context, status string, speechID *uuid.UUID) ([]*models.TranscriptionJob, error) {
	ctx, span := s.tracer.Start(ctx, "JobService.ListJobs")
	defer span.End()

	filters := JobFilters{
		Status:   status,
		SpeechID: speechID,
		Limit:    100, // Default limit
	}

	jobs, err := s.repo.List(ctx, filters)
	if err != nil {
		span.RecordError(err)
		log.Printf("JobService.ListJobs: Failed to list jobs: %v", err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

func (s *jobServiceImpl) ClaimNextJob(ctx context.Context) (*models.TranscriptionJob, error) {
	ctx, span := s.tracer.Start(ctx, "JobService.ClaimNextJob")
	defer span.End()

	job, err := s.repo.ClaimNext(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to claim next job: %w", err)
	}

	if job != nil {
		log.Printf("JobService.ClaimNextJob: Job %d claimed", job.ID)
	}
	return job, nil
}

func (s *jobServiceImpl) CompleteJob(ctx context.Context, id int64, transcript string, metadata models.JSON, questions models.QuestionPayloadList) error {
	ctx, span := s.tracer.Start(ctx, "JobService.CompleteJob")
	defer span.End()

	if err := s.repo.Complete(ctx, id, transcript, metadata, questions); err != nil {
		span.RecordError(err)
		log.Printf("JobService.CompleteJob: Failed to complete job %d: %v", id, err)
		return fmt.Errorf("failed to complete job %d: %w", id, err)
	}

	log.Printf("JobService.CompleteJob: Job %d completed (%d questions)", id, len(questions))
	return nil
}

func (s *jobServiceImpl) FailJob(ctx context.Context, id int64, errorMessage string) error {
	ctx, span := s.tracer.Start(ctx, "JobService.FailJob")
	defer span.End()

	if err := s.repo.Fail(ctx, id, errorMessage); err != nil {
		span.RecordError(err)
		log.Printf("JobService.FailJob: Failed to mark job %d as failed: %v", id, err)
		return fmt.Errorf("failed to mark job %d as failed: %w", id, err)
	}

	log.Printf("JobService.FailJob: Job %d marked as failed: %s", id, errorMessage)
	return nil
}

func (s *jobServiceImpl) CancelJobsForSpeech(ctx context.Context, speechID uuid.UUID) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "JobService.CancelJobsForSpeech")
	defer span.End()

	cancelled, err := s.repo.CancelInFlightForSpeech(ctx, speechID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to cancel jobs for speech %s: %w", speechID, err)
	}

	if cancelled > 0 {
		log.Printf("JobService.CancelJobsForSpeech: %d jobs cancelled for speech %s", cancelled, speechID)
	}
	return cancelled, nil
}

func (s *jobServiceImpl) LatestCompletedForSpeech(ctx context.Context, speechID uuid.UUID) (*models.TranscriptionJob, error) {
	ctx, span := s.tracer.Start(ctx, "JobService.LatestCompletedForSpeech")
	defer span.End()

	job, err := s.repo.LatestCompletedForSpeech(ctx, speechID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get latest completed job for speech %s: %w", speechID, err)
	}
	return job, nil
}
