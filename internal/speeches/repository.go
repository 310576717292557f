package speeches

import (
	"context"
	"errors"
	"time"

	"speakcheck-worker/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Longueur maximale du snippet speech_name dérivé du texte combiné
const maxSpeechNameLength = 255

type SpeechRepository interface {
	Create(ctx context.Context, speech *models.Speech) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Speech, error)
	ListByStage(ctx context.Context, stageID uuid.UUID) ([]*models.Speech, error)
	// ReplaceVideoSource applique la sémantique de remplacement : questions
	// supprimées, speech_name remis à NULL, titre et source réécrits. Les
	// jobs en vol sont annulés séparément par le Job Store.
	ReplaceVideoSource(ctx context.Context, id uuid.UUID, title, videoSource string) error
	UpdateDocumentURL(ctx context.Context, id uuid.UUID, title, documentURL string) error
	// UpdateSpeechName écrit le nom dérivé après une transcription réussie.
	// Seul champ du speech que le pipeline a le droit de modifier.
	UpdateSpeechName(ctx context.Context, id uuid.UUID, combinedText string) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetStage(ctx context.Context, stageID uuid.UUID) (*models.Stage, error)
}

type speechRepository struct {
	db *gorm.DB
}

func NewSpeechRepository(db *gorm.DB) SpeechRepository {
	return &speechRepository{db: db}
}

func (r *speechRepository) Create(ctx context.Context, speech *models.Speech) error {
	speech.CreatedAt = time.Now()
	speech.UpdatedAt = time.Now()

	return r.db.WithContext(ctx).Create(speech).Error
}

func (r *speechRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Speech, error) {
	var speech models.Speech
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&speech).Error
	if err != nil {
		return nil, err
	}
	return &speech, nil
}

func (r *speechRepository) ListByStage(ctx context.Context, stageID uuid.UUID) ([]*models.Speech, error) {
	var speeches []*models.Speech
	err := r.db.WithContext(ctx).
		Where("stage_id = ?", stageID).
		Order("created_at ASC").
		Find(&speeches).Error
	return speeches, err
}

func (r *speechRepository) ReplaceVideoSource(ctx context.Context, id uuid.UUID, title, videoSource string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("speech_id = ?", id).Delete(&models.Question{}).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"title":        title,
			"video_source": videoSource,
			"speech_name":  nil,
			"updated_at":   time.Now(),
		}
		return tx.Model(&models.Speech{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (r *speechRepository) UpdateDocumentURL(ctx context.Context, id uuid.UUID, title, documentURL string) error {
	updates := map[string]interface{}{
		"title":        title,
		"document_url": documentURL,
		"updated_at":   time.Now(),
	}

	return r.db.WithContext(ctx).Model(&models.Speech{}).Where("id = ?", id).Updates(updates).Error
}

func (r *speechRepository) UpdateSpeechName(ctx context.Context, id uuid.UUID, combinedText string) error {
	name := deriveSpeechName(combinedText)

	updates := map[string]interface{}{
		"speech_name": name,
		"updated_at":  time.Now(),
	}

	return r.db.WithContext(ctx).Model(&models.Speech{}).Where("id = ?", id).Updates(updates).Error
}

func (r *speechRepository) Delete(ctx context.Context, id uuid.UUID) error {
	// Suppression en cascade : questions d'abord, puis le speech
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("speech_id = ?", id).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Speech{}).Error
	})
}

func (r *speechRepository) GetStage(ctx context.Context, stageID uuid.UUID) (*models.Stage, error) {
	var stage models.Stage
	err := r.db.WithContext(ctx).Where("id = ?", stageID).First(&stage).Error
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// deriveSpeechName tronque le texte combiné en snippet de 255 caractères au
// plus, sur une frontière de rune.
func deriveSpeechName(combinedText string) string {
	runes := []rune(combinedText)
	if len(runes) > maxSpeechNameLength {
		runes = runes[:maxSpeechNameLength]
	}
	return string(runes)
}

// IsNotFound indique si l'erreur correspond à une ligne absente.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
