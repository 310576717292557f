package jobs

import (
	"context"
	"errors"
	"time"

	"speakcheck-worker/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Longueur maximale d'un message d'erreur persisté (mark_failed)
const maxErrorMessageLength = 2000

type JobRepository interface {
	Create(ctx context.Context, job *models.TranscriptionJob) error
	GetByID(ctx context.Context, id int64) (*models.TranscriptionJob, error)
	List(ctx context.Context, filters JobFilters) ([]*models.TranscriptionJob, error)
	// ClaimNext sélectionne le plus ancien job pending en sautant les lignes
	// verrouillées, le passe en processing et efface l'erreur résiduelle.
	// Retourne (nil, nil) quand aucun job n'est éligible.
	ClaimNext(ctx context.Context) (*models.TranscriptionJob, error)
	Complete(ctx context.Context, id int64, transcript string, metadata models.JSON, questions models.QuestionPayloadList) error
	Fail(ctx context.Context, id int64, errorMessage string) error
	CancelInFlightForSpeech(ctx context.Context, speechID uuid.UUID) (int64, error)
	LatestCompletedForSpeech(ctx context.Context, speechID uuid.UUID) (*models.TranscriptionJob, error)
}

type JobFilters struct {
	Status   string
	SpeechID *uuid.UUID
	Limit    int
	Offset   int
}

type jobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(ctx context.Context, job *models.TranscriptionJob) error {
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()

	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepository) GetByID(ctx context.Context, id int64) (*models.TranscriptionJob, error) {
	var job models.TranscriptionJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) List(ctx context.Context, filters JobFilters) ([]*models.TranscriptionJob, error) {
	var jobs []*models.TranscriptionJob

	query := r.db.WithContext(ctx).Model(&models.TranscriptionJob{})

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	if filters.SpeechID != nil {
		query = query.Where("speech_id = ?", *filters.SpeechID)
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	query = query.Order("created_at DESC")

	err := query.Find(&jobs).Error
	return jobs, err
}

// ClaimNext réalise la réclamation atomique : SELECT ... FOR UPDATE SKIP
// LOCKED puis UPDATE dans la même transaction. Deux workers concurrents ne
// peuvent donc jamais obtenir la même ligne.
func (r *jobRepository) ClaimNext(ctx context.Context) (*models.TranscriptionJob, error) {
	var claimed *models.TranscriptionJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.TranscriptionJob

		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.StatusPending).
			Order("created_at ASC").
			Limit(1).
			First(&job).Error
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":        models.StatusProcessing,
			"error_message": "",
			"updated_at":    time.Now(),
		}
		if err := tx.Model(&models.TranscriptionJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
			return err
		}

		job.Status = models.StatusProcessing
		job.ErrorMessage = ""
		claimed = &job
		return nil
	})

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// Complete écrit l'état terminal de succès en une seule instruction. Seuls
// les jobs encore en processing sont touchés : un job annulé pendant le
// traitement conserve son statut cancelled.
func (r *jobRepository) Complete(ctx context.Context, id int64, transcript string, metadata models.JSON, questions models.QuestionPayloadList) error {
	updates := map[string]interface{}{
		"status":              models.StatusCompleted,
		"transcript":          transcript,
		"transcript_metadata": metadata,
		"questions":           questions,
		"updated_at":          time.Now(),
	}

	return r.db.WithContext(ctx).Model(&models.TranscriptionJob{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(updates).Error
}

// Fail écrit l'état terminal d'échec avec un message tronqué. Même garde de
// statut que Complete.
func (r *jobRepository) Fail(ctx context.Context, id int64, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        models.StatusFailed,
		"error_message": truncateErrorMessage(errorMessage),
		"updated_at":    time.Now(),
	}

	return r.db.WithContext(ctx).Model(&models.TranscriptionJob{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(updates).Error
}

// truncateErrorMessage coupe sur une frontière de rune : les messages sont
// majoritairement en coréen et une coupe en plein milieu d'un caractère
// produirait un UTF-8 invalide que postgres refuserait.
func truncateErrorMessage(s string) string {
	runes := []rune(s)
	if len(runes) > maxErrorMessageLength {
		return string(runes[:maxErrorMessageLength])
	}
	return s
}

// CancelInFlightForSpeech annule les jobs pending/processing d'un speech dont
// la source vient d'être remplacée.
func (r *jobRepository) CancelInFlightForSpeech(ctx context.Context, speechID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.TranscriptionJob{}).
		Where("speech_id = ? AND status IN ?", speechID,
			[]models.JobStatus{models.StatusPending, models.StatusProcessing}).
		Updates(map[string]interface{}{
			"status":     models.StatusCancelled,
			"updated_at": time.Now(),
		})

	return result.RowsAffected, result.Error
}

func (r *jobRepository) LatestCompletedForSpeech(ctx context.Context, speechID uuid.UUID) (*models.TranscriptionJob, error) {
	var job models.TranscriptionJob
	err := r.db.WithContext(ctx).
		Where("speech_id = ? AND status = ?", speechID, models.StatusCompleted).
		Order("updated_at DESC, id DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
