package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Question est produite par le pipeline (insertion après suppression du jeu
// précédent). UserAnswer, AIFeedback et Score sont écrits exclusivement par
// le chemin de feedback de l'API.
type Question struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SpeechID        uuid.UUID `json:"speech_id" gorm:"type:uuid;not null;index"`
	Question        string    `json:"question" gorm:"type:varchar(255);not null"`
	Answer          *string   `json:"answer" gorm:"type:varchar(255)"`
	ModelAnswer     *string   `json:"model_answer" gorm:"type:text"`
	ImprovementTips *string   `json:"improvement_tips" gorm:"type:text"`
	UserAnswer      *string   `json:"user_answer" gorm:"type:text"`
	AIFeedback      *string   `json:"ai_feedback" gorm:"type:text"`
	Score           *int      `json:"score"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "question"
}

// BeforeCreate hook GORM pour initialiser l'ID
func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// FromPayload construit une ligne question à partir d'une entrée générée.
func FromPayload(speechID uuid.UUID, p QuestionPayload) Question {
	return Question{
		SpeechID:        speechID,
		Question:        p.Question,
		Answer:          p.Answer,
		ModelAnswer:     p.ModelAnswer,
		ImprovementTips: p.ImprovementTips,
		Score:           p.Score,
	}
}
