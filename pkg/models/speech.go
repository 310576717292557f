package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stage appartient à la couche API externe; le pipeline ne le lit que pour
// les contrôles de propriété.
type Stage struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	StageName    string    `json:"stage_name" gorm:"type:varchar(255);not null"`
	Situation    *string   `json:"situation" gorm:"type:varchar(255)"`
	CheckListURL *string   `json:"check_list_url" gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Stage) TableName() string {
	return "stages"
}

// Speech référence les sources courantes (vidéo + document). Le pipeline ne
// modifie que SpeechName, jamais Title ni StageID.
type Speech struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	StageID     uuid.UUID `json:"stage_id" gorm:"type:uuid;not null;index"`
	Title       string    `json:"title" gorm:"type:varchar(255);not null"`
	SpeechName  *string   `json:"speech_name" gorm:"type:varchar(255)"`
	VideoSource *string   `json:"video_source" gorm:"type:text"`
	DocumentURL *string   `json:"document_url" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Speech) TableName() string {
	return "speeches"
}

// BeforeCreate hook GORM pour initialiser l'ID
func (s *Speech) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
