package api

import (
	"log"
	"net/http"
	"strings"

	"speakcheck-worker/internal/questions"
	"speakcheck-worker/pkg/models"

	"github.com/gin-gonic/gin"
)

// QuestionAnswerRequest soumet la réponse d'un apprenant
type QuestionAnswerRequest struct {
	Answer          string `json:"answer"`
	RequestFeedback bool   `json:"request_feedback"`
}

// GetQuestionsForSpeech retourne les questions d'un speech. Sans lignes
// persistées, les questions du dernier job complété sont matérialisées; à
// défaut elles sont générées paresseusement depuis le texte combiné.
func (h *Handlers) GetQuestionsForSpeech(c *gin.Context) {
	speech, ok := h.loadOwnedSpeech(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	existing, err := h.questionRepo.ListBySpeech(ctx, speech.ID)
	if err != nil {
		log.Printf("Failed to list questions for speech %s: %v", speech.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(existing) > 0 {
		c.JSON(http.StatusOK, existing)
		return
	}

	job, err := h.jobService.LatestCompletedForSpeech(ctx, speech.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No questions available"})
		return
	}

	// Questions déjà générées par le pipeline : matérialiser en lignes
	if len(job.Questions) > 0 {
		inserted, err := h.questionRepo.ReplaceForSpeech(ctx, speech.ID, []models.QuestionPayload(job.Questions))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, inserted)
		return
	}

	// Génération paresseuse depuis transcript + texte document
	combined := questions.Fuse(job.Transcript, documentTextFromMetadata(job.TranscriptMetadata))
	if strings.TrimSpace(combined) == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No questions available"})
		return
	}

	if h.generator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Question generation is not configured"})
		return
	}

	generated, err := h.generator.Generate(ctx, combined, 0, "medium")
	if err != nil {
		log.Printf("Lazy question generation failed for speech %s: %v", speech.ID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to generate questions"})
		return
	}
	if len(generated) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No questions available"})
		return
	}

	inserted, err := h.questionRepo.ReplaceForSpeech(ctx, speech.ID, generated)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, inserted)
}

// SubmitQuestionAnswer enregistre la réponse de l'apprenant et, sur
// demande, un feedback évalué.
func (h *Handlers) SubmitQuestionAnswer(c *gin.Context) {
	questionID, validationResult := h.validator.ValidateUUIDParam("question_id", c.Param("id"))
	if !validationResult.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID", "validation_errors": validationResult.Errors})
		return
	}

	var req QuestionAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()

	question, err := h.questionRepo.GetByID(ctx, questionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
		return
	}

	speech, err := h.speechRepo.GetByID(ctx, question.SpeechID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Speech not found"})
		return
	}

	if !h.ensureStageOwnership(c, speech.StageID) {
		return
	}

	var feedbackText string
	var feedbackScore *int

	if req.RequestFeedback {
		if h.feedbackService == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Feedback service is not configured"})
			return
		}

		// Contexte : transcript + texte document du dernier job complété
		var contextText string
		if job, err := h.jobService.LatestCompletedForSpeech(ctx, speech.ID); err == nil && job != nil {
			contextText = questions.Fuse(job.Transcript, documentTextFromMetadata(job.TranscriptMetadata))
		}

		result := h.feedbackService.AnswerFeedback(ctx, question.Question, question.ModelAnswer, req.Answer, contextText)
		feedbackText = result.Feedback
		feedbackScore = result.Score
	}

	if err := h.questionRepo.UpdateFeedback(ctx, questionID, req.Answer, feedbackText, feedbackScore); err != nil {
		log.Printf("Failed to update question %s feedback: %v", questionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.questionRepo.GetByID(ctx, questionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update question"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"question": updated,
		"feedback": feedbackText,
		"score":    feedbackScore,
	})
}
