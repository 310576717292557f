// internal/validation/api_validation.go - Validation spécifique à l'API

package validation

import (
	"speakcheck-worker/pkg/models"

	"github.com/google/uuid"
)

// APIValidator gère la validation des requêtes API
type APIValidator struct {
	validationService *ValidationService
}

// NewAPIValidator crée un nouveau validateur d'API
func NewAPIValidator(config *ValidationConfig) *APIValidator {
	return &APIValidator{
		validationService: NewValidationService(config),
	}
}

// ValidateJobRequest valide une requête de création de job
func (av *APIValidator) ValidateJobRequest(req *models.JobRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	sourceResult := av.validationService.ValidateSourceRef(req.VideoSource)
	if !sourceResult.Valid {
		result.Valid = false
		result.Errors = append(result.Errors, sourceResult.Errors...)
	}

	languageResult := av.validationService.ValidateLanguage(req.Language)
	if !languageResult.Valid {
		result.Valid = false
		result.Errors = append(result.Errors, languageResult.Errors...)
	}

	modelResult := av.validationService.ValidateModelSize(req.ModelSize)
	if !modelResult.Valid {
		result.Valid = false
		result.Errors = append(result.Errors, modelResult.Errors...)
	}

	return result
}

// ValidateVideoSource valide une référence vidéo isolée
func (av *APIValidator) ValidateVideoSource(ref string) *ValidationResult {
	return av.validationService.ValidateSourceRef(ref)
}

// ValidateDocumentURL valide une référence document isolée
func (av *APIValidator) ValidateDocumentURL(ref string) *ValidationResult {
	return av.validationService.ValidateDocumentRef(ref)
}

// ValidateUUIDParam valide un paramètre UUID depuis l'URL et le retourne parsé
func (av *APIValidator) ValidateUUIDParam(field, value string) (uuid.UUID, *ValidationResult) {
	result := av.validationService.ValidateUUIDParam(field, value)

	if !result.Valid {
		return uuid.Nil, result
	}

	id, _ := uuid.Parse(value)
	return id, result
}

// ValidateListParams valide les paramètres de listage (status)
func (av *APIValidator) ValidateListParams(status string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if status != "" {
		validStatuses := []string{"pending", "processing", "completed", "failed", "cancelled"}
		isValid := false
		for _, validStatus := range validStatuses {
			if status == validStatus {
				isValid = true
				break
			}
		}

		if !isValid {
			result.AddError("status", status,
				"invalid status (must be: pending, processing, completed, failed, cancelled)",
				"INVALID_STATUS")
		}
	}

	return result
}
