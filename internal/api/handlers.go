package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"speakcheck-worker/internal/feedback"
	"speakcheck-worker/internal/jobs"
	"speakcheck-worker/internal/questions"
	"speakcheck-worker/internal/speeches"
	"speakcheck-worker/internal/validation"
	"speakcheck-worker/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handlers struct {
	jobService      jobs.JobService
	speechRepo      speeches.SpeechRepository
	questionRepo    speeches.QuestionRepository
	generator       questions.Generator // nil quand GEMINI_API_KEY absent
	feedbackService feedback.Service    // idem
	validator       *validation.APIValidator
}

func NewHandlers(
	jobService jobs.JobService,
	speechRepo speeches.SpeechRepository,
	questionRepo speeches.QuestionRepository,
	generator questions.Generator,
	feedbackService feedback.Service,
	apiValidator *validation.APIValidator,
) *Handlers {
	return &Handlers{
		jobService:      jobService,
		speechRepo:      speechRepo,
		questionRepo:    questionRepo,
		generator:       generator,
		feedbackService: feedbackService,
		validator:       apiValidator,
	}
}

// Health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "speakcheck-worker",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// CreateJob enregistre un nouveau job de transcription
func (h *Handlers) CreateJob(c *gin.Context) {
	var req models.JobRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format", "details": err.Error()})
		return
	}

	validationResult := h.validator.ValidateJobRequest(&req)
	if !validationResult.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "Validation failed",
			"validation_errors": validationResult.Errors,
		})
		return
	}

	var userID *uuid.UUID
	if id, ok := currentUserID(c); ok {
		userID = &id
	}

	job, err := h.jobService.CreateJob(c.Request.Context(), &req, userID)
	if err != nil {
		log.Printf("Failed to create job: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job.ToResponse())
}

// GetJob retourne l'état d'un job
func (h *Handlers) GetJob(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	job, err := h.jobService.GetJob(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, job.ToResponse())
}

// ListJobs liste les jobs avec filtres optionnels
func (h *Handlers) ListJobs(c *gin.Context) {
	status := c.Query("status")
	speechIDStr := c.Query("speech_id")

	validationResult := h.validator.ValidateListParams(status)
	if !validationResult.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "Invalid query parameters",
			"validation_errors": validationResult.Errors,
		})
		return
	}

	var speechID *uuid.UUID
	if speechIDStr != "" {
		parsed, speechValidation := h.validator.ValidateUUIDParam("speech_id", speechIDStr)
		if !speechValidation.Valid {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "Invalid speech_id parameter",
				"validation_errors": speechValidation.Errors,
			})
			return
		}
		speechID = &parsed
	}

	jobList, err := h.jobService.ListJobs(c.Request.Context(), status, speechID)
	if err != nil {
		log.Printf("Failed to list jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	responses := make([]*models.JobResponse, 0, len(jobList))
	for _, job := range jobList {
		responses = append(responses, job.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  responses,
		"total": len(responses),
	})
}
