package speeches

import (
	"context"
	"time"

	"speakcheck-worker/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuestionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListBySpeech(ctx context.Context, speechID uuid.UUID) ([]*models.Question, error)
	// ReplaceForSpeech supprime le jeu de questions existant et insère le
	// nouveau, dans une même transaction.
	ReplaceForSpeech(ctx context.Context, speechID uuid.UUID, payloads []models.QuestionPayload) ([]*models.Question, error)
	UpdateFeedback(ctx context.Context, id uuid.UUID, userAnswer, aiFeedback string, score *int) error
}

type questionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	var question models.Question
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&question).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *questionRepository) ListBySpeech(ctx context.Context, speechID uuid.UUID) ([]*models.Question, error) {
	var questions []*models.Question
	err := r.db.WithContext(ctx).
		Where("speech_id = ?", speechID).
		Order("created_at ASC").
		Find(&questions).Error
	return questions, err
}

func (r *questionRepository) ReplaceForSpeech(ctx context.Context, speechID uuid.UUID, payloads []models.QuestionPayload) ([]*models.Question, error) {
	var inserted []*models.Question

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("speech_id = ?", speechID).Delete(&models.Question{}).Error; err != nil {
			return err
		}

		for _, p := range payloads {
			q := models.FromPayload(speechID, p)
			if err := tx.Create(&q).Error; err != nil {
				return err
			}
			row := q
			inserted = append(inserted, &row)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (r *questionRepository) UpdateFeedback(ctx context.Context, id uuid.UUID, userAnswer, aiFeedback string, score *int) error {
	updates := map[string]interface{}{
		"user_answer": userAnswer,
		"ai_feedback": aiFeedback,
		"score":       score,
		"updated_at":  time.Now(),
	}

	return r.db.WithContext(ctx).Model(&models.Question{}).Where("id = ?", id).Updates(updates).Error
}
