package api

import (
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"

	"speakcheck-worker/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SpeechCreateRequest crée un speech vide rattaché à un stage
type SpeechCreateRequest struct {
	StageID uuid.UUID `json:"stage_id" binding:"required"`
	Title   string    `json:"title"`
}

// SpeechVideoUpdateRequest remplace la source vidéo d'un speech
type SpeechVideoUpdateRequest struct {
	VideoSource string `json:"video_source" binding:"required"`
}

// SpeechDocumentUpdateRequest remplace le document d'un speech
type SpeechDocumentUpdateRequest struct {
	DocumentURL string `json:"document_url" binding:"required"`
}

// SpeechVideoResponse combine le speech mis à jour et le job créé
type SpeechVideoResponse struct {
	Speech *models.Speech      `json:"speech"`
	Job    *models.JobResponse `json:"job"`
}

// StageWithSpeeches est la vue agrégée d'un stage
type StageWithSpeeches struct {
	Stage    *models.Stage    `json:"stage"`
	Speeches []*models.Speech `json:"speeches"`
}

// CreateSpeech crée un speech sous un stage possédé par l'appelant
func (h *Handlers) CreateSpeech(c *gin.Context) {
	var req SpeechCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format", "details": err.Error()})
		return
	}

	if !h.ensureStageOwnership(c, req.StageID) {
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled Speech"
	}

	speech := &models.Speech{
		StageID: req.StageID,
		Title:   title,
	}
	if err := h.speechRepo.Create(c.Request.Context(), speech); err != nil {
		log.Printf("Failed to create speech: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, speech)
}

// GetSpeech retourne un speech après contrôle de propriété
func (h *Handlers) GetSpeech(c *gin.Context) {
	speech, ok := h.loadOwnedSpeech(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, speech)
}

// DeleteSpeech supprime un speech et ses questions
func (h *Handlers) DeleteSpeech(c *gin.Context) {
	speech, ok := h.loadOwnedSpeech(c)
	if !ok {
		return
	}

	if err := h.speechRepo.Delete(c.Request.Context(), speech.ID); err != nil {
		log.Printf("Failed to delete speech %s: %v", speech.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetStage retourne un stage et ses speeches
func (h *Handlers) GetStage(c *gin.Context) {
	stageID, validationResult := h.validator.ValidateUUIDParam("stage_id", c.Param("id"))
	if !validationResult.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stage ID", "validation_errors": validationResult.Errors})
		return
	}

	if !h.ensureStageOwnership(c, stageID) {
		return
	}

	stage, err := h.speechRepo.GetStage(c.Request.Context(), stageID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stage not found"})
		return
	}

	speechList, err := h.speechRepo.ListByStage(c.Request.Context(), stageID)
	if err != nil {
		log.Printf("Failed to list speeches for stage %s: %v", stageID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, StageWithSpeeches{Stage: stage, Speeches: speechList})
}

// UpdateSpeechVideo remplace la source vidéo : questions purgées, jobs en
// vol annulés, puis un nouveau job est mis en file.
func (h *Handlers) UpdateSpeechVideo(c *gin.Context) {
	speech, ok := h.loadOwnedSpeech(c)
	if !ok {
		return
	}

	var req SpeechVideoUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format", "details": err.Error()})
		return
	}

	if result := h.validator.ValidateVideoSource(req.VideoSource); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "validation_errors": result.Errors})
		return
	}

	ctx := c.Request.Context()

	// Les jobs rattachés à l'ancienne source ne doivent plus aboutir
	if _, err := h.jobService.CancelJobsForSpeech(ctx, speech.ID); err != nil {
		log.Printf("Failed to cancel in-flight jobs for speech %s: %v", speech.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	title := deriveTitle(req.VideoSource)
	if err := h.speechRepo.ReplaceVideoSource(ctx, speech.ID, title, req.VideoSource); err != nil {
		log.Printf("Failed to update video source for speech %s: %v", speech.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var userID *uuid.UUID
	if id, ok := currentUserID(c); ok {
		userID = &id
	}

	speechID := speech.ID
	stageID := speech.StageID
	job, err := h.jobService.CreateJob(ctx, &models.JobRequest{
		VideoSource: req.VideoSource,
		StageID:     &stageID,
		SpeechID:    &speechID,
	}, userID)
	if err != nil {
		log.Printf("Failed to enqueue job for speech %s: %v", speech.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.speechRepo.GetByID(ctx, speech.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, SpeechVideoResponse{
		Speech: updated,
		Job:    job.ToResponse(),
	})
}

// UpdateSpeechDocument remplace la référence document du speech
func (h *Handlers) UpdateSpeechDocument(c *gin.Context) {
	speech, ok := h.loadOwnedSpeech(c)
	if !ok {
		return
	}

	var req SpeechDocumentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format", "details": err.Error()})
		return
	}

	if result := h.validator.ValidateDocumentURL(req.DocumentURL); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "validation_errors": result.Errors})
		return
	}

	title := deriveTitle(req.DocumentURL)
	if err := h.speechRepo.UpdateDocumentURL(c.Request.Context(), speech.ID, title, req.DocumentURL); err != nil {
		log.Printf("Failed to update document for speech %s: %v", speech.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.speechRepo.GetByID(c.Request.Context(), speech.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// SpeechFeedback génère un feedback global de présentation à partir du
// dernier job complété.
func (h *Handlers) SpeechFeedback(c *gin.Context) {
	speech, ok := h.loadOwnedSpeech(c)
	if !ok {
		return
	}

	if h.feedbackService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Feedback service is not configured"})
		return
	}

	job, err := h.jobService.LatestCompletedForSpeech(c.Request.Context(), speech.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil || strings.TrimSpace(job.Transcript) == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Completed transcription not found"})
		return
	}

	var documentText *string
	if text := documentTextFromMetadata(job.TranscriptMetadata); text != "" {
		documentText = &text
	}

	result := h.feedbackService.SpeechFeedback(c.Request.Context(), job.Transcript, documentText, speech.VideoSource)

	c.JSON(http.StatusOK, gin.H{
		"speech_id": speech.ID,
		"feedback":  result.Feedback,
		"scores":    result.Scores,
	})
}

// loadOwnedSpeech charge le speech de l'URL et vérifie que son stage
// appartient à l'appelant. Répond lui-même en cas d'échec.
func (h *Handlers) loadOwnedSpeech(c *gin.Context) (*models.Speech, bool) {
	speechID, validationResult := h.validator.ValidateUUIDParam("speech_id", c.Param("id"))
	if !validationResult.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid speech ID", "validation_errors": validationResult.Errors})
		return nil, false
	}

	speech, err := h.speechRepo.GetByID(c.Request.Context(), speechID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Speech not found"})
		return nil, false
	}

	if !h.ensureStageOwnership(c, speech.StageID) {
		return nil, false
	}

	return speech, true
}

// ensureStageOwnership vérifie que le stage appartient à l'utilisateur
// courant. Répond lui-même en cas d'échec.
func (h *Handlers) ensureStageOwnership(c *gin.Context, stageID uuid.UUID) bool {
	stage, err := h.speechRepo.GetStage(c.Request.Context(), stageID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stage not found"})
		return false
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication"})
		return false
	}

	if stage.UserID != uuid.Nil && stage.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Stage does not belong to user"})
		return false
	}

	return true
}

// deriveTitle tire un titre du nom de fichier de la référence source.
func deriveTitle(source string) string {
	var candidate string

	if u, err := url.Parse(source); err == nil && u.Path != "" {
		candidate = strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	}
	if candidate == "" && !strings.Contains(source, "://") {
		candidate = strings.TrimSuffix(path.Base(source), path.Ext(source))
	}

	candidate = strings.TrimSpace(candidate)
	if candidate == "" || candidate == "." || candidate == "/" {
		return "Untitled Speech"
	}
	return candidate
}

// documentTextFromMetadata retrouve le texte document stocké par le
// pipeline dans les métadonnées du job.
func documentTextFromMetadata(metadata models.JSON) string {
	docInfo, ok := metadata["document"].(map[string]interface{})
	if !ok {
		return ""
	}

	if text, ok := docInfo["full_text"].(string); ok && strings.TrimSpace(text) != "" {
		return text
	}

	if details, ok := docInfo["details"].(map[string]interface{}); ok {
		if text, ok := details["full_text"].(string); ok && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return ""
}
