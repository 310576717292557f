// internal/validation/validation.go - Service de validation des références sources

package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ValidationConfig contient la configuration de validation
type ValidationConfig struct {
	MaxRefLength      int             // Longueur max d'une référence source
	AllowedDocExts    map[string]bool // Extensions de documents autorisées
	AllowedURLSchemes map[string]bool // Schémas d'URL autorisés
}

// DefaultValidationConfig retourne une configuration par défaut sécurisée
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxRefLength: 2048,
		AllowedDocExts: map[string]bool{
			".pdf": true,
		},
		AllowedURLSchemes: map[string]bool{
			"http":  true,
			"https": true,
		},
	}
}

// ValidationService gère la validation des entrées
type ValidationService struct {
	config *ValidationConfig
}

// NewValidationService crée un nouveau service de validation
func NewValidationService(config *ValidationConfig) *ValidationService {
	if config == nil {
		config = DefaultValidationConfig()
	}

	return &ValidationService{
		config: config,
	}
}

// ValidationError représente une erreur de validation avec détails
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ValidationResult contient le résultat de validation
type ValidationResult struct {
	Valid  bool               `json:"valid"`
	Errors []*ValidationError `json:"errors,omitempty"`
}

// AddError ajoute une erreur de validation
func (vr *ValidationResult) AddError(field, value, message, code string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Code:    code,
	})
}

// ValidateSourceRef valide une référence vidéo : chemin local, URL HTTP(S) ou
// clé object-storage. Seules les formes manifestement dangereuses ou
// malformées sont rejetées ici; l'existence est vérifiée par le resolver.
func (vs *ValidationService) ValidateSourceRef(ref string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if strings.TrimSpace(ref) == "" {
		result.AddError("video_source", "", "source reference is required", "REQUIRED")
		return result
	}

	if len(ref) > vs.config.MaxRefLength {
		result.AddError("video_source", ref[:64],
			fmt.Sprintf("source reference too long (max %d)", vs.config.MaxRefLength), "TOO_LONG")
		return result
	}

	if strings.ContainsRune(ref, '\x00') {
		result.AddError("video_source", "", "source reference contains a null byte", "FORBIDDEN_CHAR")
		return result
	}

	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		if !vs.config.AllowedURLSchemes[u.Scheme] {
			result.AddError("video_source", ref,
				fmt.Sprintf("URL scheme %q is not allowed", u.Scheme), "FORBIDDEN_SCHEME")
		}
		return result
	}

	// Référence locale ou object-storage : refuser la remontée de répertoire
	for _, part := range strings.Split(filepath.ToSlash(ref), "/") {
		if part == ".." {
			result.AddError("video_source", ref, "path traversal is not allowed", "PATH_TRAVERSAL")
			return result
		}
	}

	return result
}

// ValidateDocumentRef valide une référence document : mêmes règles que
// ValidateSourceRef plus le contrôle d'extension, AVANT tout appel réseau.
func (vs *ValidationService) ValidateDocumentRef(ref string) *ValidationResult {
	result := vs.ValidateSourceRef(ref)
	if !result.Valid {
		for _, e := range result.Errors {
			e.Field = "document_url"
		}
		return result
	}

	ext := strings.ToLower(filepath.Ext(stripQuery(ref)))
	if ext == "" {
		result.AddError("document_url", ref, "document reference has no extension", "NO_EXTENSION")
		return result
	}
	if !vs.config.AllowedDocExts[ext] {
		result.AddError("document_url", ref,
			fmt.Sprintf("document extension %q is not supported", ext), "FORBIDDEN_EXTENSION")
	}

	return result
}

// ValidateLanguage valide un code langue court (ex: "ko", "en")
func (vs *ValidationService) ValidateLanguage(language string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if language == "" {
		return result // défaut appliqué en aval
	}

	if len(language) > 16 {
		result.AddError("language", language, "language code too long (max 16)", "TOO_LONG")
		return result
	}

	for _, r := range language {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && r != '-' && r != '_' {
			result.AddError("language", language, "language code contains invalid characters", "INVALID_FORMAT")
			return result
		}
	}

	return result
}

// ValidateModelSize valide une classe de taille de modèle de transcription
func (vs *ValidationService) ValidateModelSize(modelSize string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if modelSize == "" {
		return result // défaut appliqué en aval
	}

	validSizes := []string{"tiny", "base", "small", "medium", "large"}
	for _, s := range validSizes {
		if modelSize == s {
			return result
		}
	}

	result.AddError("model_size", modelSize,
		"invalid model size (must be: tiny, base, small, medium, large)", "INVALID_MODEL_SIZE")
	return result
}

// ValidateUUIDParam valide un paramètre d'URL censé être un UUID
func (vs *ValidationService) ValidateUUIDParam(field, value string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if value == "" {
		result.AddError(field, "", field+" is required", "REQUIRED")
		return result
	}

	if _, err := uuid.Parse(value); err != nil {
		result.AddError(field, value, field+" must be a valid UUID", "INVALID_UUID")
	}

	return result
}

// stripQuery retire la query string d'une URL pour isoler l'extension.
func stripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}
