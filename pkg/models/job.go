package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// JSON type pour la compatibilité PostgreSQL (colonnes jsonb)
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON", value)
	}

	if len(bytes) == 0 {
		*j = make(map[string]interface{})
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// QuestionPayload est une question générée, telle que stockée dans le blob
// jsonb du job. Les champs optionnels non générés restent à nil.
type QuestionPayload struct {
	Question        string  `json:"question"`
	Answer          *string `json:"answer"`
	ModelAnswer     *string `json:"model_answer"`
	ImprovementTips *string `json:"improvement_tips"`
	Score           *int    `json:"score"`
}

// QuestionPayloadList type jsonb pour la colonne questions
type QuestionPayloadList []QuestionPayload

func (ql QuestionPayloadList) Value() (driver.Value, error) {
	if ql == nil {
		return nil, nil
	}
	return json.Marshal(ql)
}

func (ql *QuestionPayloadList) Scan(value interface{}) error {
	if value == nil {
		*ql = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into QuestionPayloadList", value)
	}

	if len(bytes) == 0 {
		*ql = nil
		return nil
	}

	return json.Unmarshal(bytes, ql)
}

// TranscriptionJob est le modèle principal de la file de travail.
// L'ID est numérique et monotone (séquence PostgreSQL).
type TranscriptionJob struct {
	ID                 int64               `json:"id" gorm:"primaryKey;autoIncrement"`
	VideoSource        string              `json:"video_source" gorm:"type:text;not null"`
	UserID             *uuid.UUID          `json:"user_id" gorm:"type:uuid;index"`
	StageID            *uuid.UUID          `json:"stage_id" gorm:"type:uuid"`
	SpeechID           *uuid.UUID          `json:"speech_id" gorm:"type:uuid;index"`
	Language           string              `json:"language" gorm:"type:varchar(16);default:'ko'"`
	ModelSize          string              `json:"model_size" gorm:"type:varchar(16);default:'medium'"`
	GenerateQuestions  bool                `json:"generate_questions" gorm:"default:true"`
	Status             JobStatus           `json:"status" gorm:"type:varchar(16);not null;default:'pending';index"`
	Transcript         string              `json:"transcript" gorm:"type:text"`
	TranscriptMetadata JSON                `json:"transcript_metadata" gorm:"type:jsonb"`
	Questions          QuestionPayloadList `json:"questions" gorm:"type:jsonb"`
	ErrorMessage       string              `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt          time.Time           `json:"created_at" gorm:"index"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// TableName spécifie le nom de la table
func (TranscriptionJob) TableName() string {
	return "transcription_jobs"
}

// IsTerminal retourne true si le job est dans un état final
func (j *TranscriptionJob) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// IsActive retourne true si le job est en attente ou en cours de traitement
func (j *TranscriptionJob) IsActive() bool {
	return j.Status == StatusPending || j.Status == StatusProcessing
}

// JobRequest représente une demande de transcription soumise à l'API
type JobRequest struct {
	VideoSource       string     `json:"video_source" binding:"required"`
	StageID           *uuid.UUID `json:"stage_id,omitempty"`
	SpeechID          *uuid.UUID `json:"speech_id,omitempty"`
	Language          string     `json:"language,omitempty"`
	ModelSize         string     `json:"model_size,omitempty"`
	GenerateQuestions *bool      `json:"generate_questions,omitempty"`
}

// JobResponse représente la réponse contenant les détails d'un job
type JobResponse struct {
	ID                 int64                  `json:"id"`
	VideoSource        string                 `json:"video_source"`
	UserID             *uuid.UUID             `json:"user_id,omitempty"`
	StageID            *uuid.UUID             `json:"stage_id,omitempty"`
	SpeechID           *uuid.UUID             `json:"speech_id,omitempty"`
	Language           string                 `json:"language"`
	ModelSize          string                 `json:"model_size"`
	GenerateQuestions  bool                   `json:"generate_questions"`
	Status             JobStatus              `json:"status"`
	Transcript         string                 `json:"transcript,omitempty"`
	TranscriptMetadata map[string]interface{} `json:"transcript_metadata,omitempty"`
	Questions          []QuestionPayload      `json:"questions,omitempty"`
	ErrorMessage       string                 `json:"error_message,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// ToResponse convertit un TranscriptionJob en JobResponse
func (j *TranscriptionJob) ToResponse() *JobResponse {
	return &JobResponse{
		ID:                 j.ID,
		VideoSource:        j.VideoSource,
		UserID:             j.UserID,
		StageID:            j.StageID,
		SpeechID:           j.SpeechID,
		Language:           j.Language,
		ModelSize:          j.ModelSize,
		GenerateQuestions:  j.GenerateQuestions,
		Status:             j.Status,
		Transcript:         j.Transcript,
		TranscriptMetadata: map[string]interface{}(j.TranscriptMetadata),
		Questions:          []QuestionPayload(j.Questions),
		ErrorMessage:       j.ErrorMessage,
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
	}
}
