package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"speakcheck-worker/internal/extractor"
	"speakcheck-worker/internal/jobs"
	"speakcheck-worker/internal/questions"
	"speakcheck-worker/internal/resolver"
	"speakcheck-worker/internal/speeches"
	"speakcheck-worker/internal/transcoder"
	"speakcheck-worker/internal/transcribe"
	"speakcheck-worker/pkg/models"
)

// JobResult contient le résultat du traitement d'un job
type JobResult struct {
	Success  bool
	Error    error
	Duration time.Duration
}

// JobProcessor exécute la machine à états d'un job de transcription :
// resolve → extract_audio → transcribe → extract_document (optionnel) →
// fuse/generate → persist, avec nettoyage sur tous les chemins.
type JobProcessor struct {
	jobService   jobs.JobService
	speechRepo   speeches.SpeechRepository
	questionRepo speeches.QuestionRepository
	resolver     resolver.Resolver
	transcoder   transcoder.Transcoder
	transcriber  transcribe.Transcriber
	extractor    extractor.Extractor
	generator    questions.Generator
	config       *PoolConfig
}

// NewJobProcessor crée un nouveau processeur de jobs. generator peut être
// nil quand aucune clé d'API n'est configurée : la génération de questions
// est alors simplement sautée.
func NewJobProcessor(
	jobService jobs.JobService,
	speechRepo speeches.SpeechRepository,
	questionRepo speeches.QuestionRepository,
	res resolver.Resolver,
	trans transcoder.Transcoder,
	transcriber transcribe.Transcriber,
	ext extractor.Extractor,
	generator questions.Generator,
	config *PoolConfig,
) *JobProcessor {
	return &JobProcessor{
		jobService:   jobService,
		speechRepo:   speechRepo,
		questionRepo: questionRepo,
		resolver:     res,
		transcoder:   trans,
		transcriber:  transcriber,
		extractor:    ext,
		generator:    generator,
		config:       config,
	}
}

// ProcessJob traite un job complet. Le job est déjà en processing (réclamé
// par le worker); toute erreur fatale le passe en failed avec la classe et
// le message de l'erreur. Le nettoyage s'exécute sur tous les chemins.
func (p *JobProcessor) ProcessJob(ctx context.Context, job *models.TranscriptionJob) *JobResult {
	startTime := time.Now()
	result := &JobResult{Success: false}

	scratch, err := NewScratchTracker(p.config.DownloadsDir, p.config.AudioOutputDir)
	if err != nil {
		result.Error = fmt.Errorf("failed to initialize scratch tracker: %w", err)
		p.failJob(ctx, job.ID, result.Error)
		return result
	}
	defer scratch.Cleanup(job.ID)

	// Étape 1 : résolution de la source vidéo
	log.Printf("Job %d: Resolving video source %s", job.ID, job.VideoSource)
	videoPath, err := p.resolver.ResolveMedia(ctx, job.VideoSource, job.ID)
	if err != nil {
		result.Error = fmt.Errorf("resolution error: %w", err)
		p.failJob(ctx, job.ID, result.Error)
		return result
	}
	scratch.Track(videoPath)

	// Étape 2 : extraction audio
	log.Printf("Job %d: Extracting audio from %s", job.ID, videoPath)
	audioPath, err := p.transcoder.ExtractAudio(ctx, videoPath)
	if err != nil {
		result.Error = fmt.Errorf("transcoding error: %w", err)
		p.failJob(ctx, job.ID, result.Error)
		return result
	}
	scratch.Track(audioPath)

	// Étape 3 : transcription
	log.Printf("Job %d: Transcribing %s (model: %s, language: %s)", job.ID, audioPath, job.ModelSize, job.Language)
	transcription, err := p.transcriber.Transcribe(ctx, audioPath, job.Language, job.ModelSize)
	if err != nil {
		result.Error = fmt.Errorf("transcription error: %w", err)
		p.failJob(ctx, job.ID, result.Error)
		return result
	}

	metadata := buildMetadata(job, transcription)

	// Étape 4 : extraction du texte document (optionnelle, best-effort)
	documentText := p.extractDocumentText(ctx, job, scratch, metadata)

	// Étape 5 : fusion et génération de questions (best-effort)
	combined := questions.Fuse(transcription.Text, documentText)
	generated := p.generateQuestions(ctx, job, combined)

	// Étape 6 : persistance durable
	if err := p.jobService.CompleteJob(ctx, job.ID, transcription.Text, metadata, generated); err != nil {
		result.Error = fmt.Errorf("persistence error: %w", err)
		p.failJob(ctx, job.ID, result.Error)
		return result
	}

	// Mises à jour dérivées sur le speech, après le commit du job
	p.updateSpeechArtifacts(ctx, job, combined, generated)

	result.Success = true
	result.Duration = time.Since(startTime)
	log.Printf("Job %d: Completed in %v", job.ID, result.Duration)
	return result
}

// extractDocumentText récupère et extrait le document attaché au speech du
// job, s'il existe. Tout échec dégrade vers un texte vide avec une note
// d'erreur dans les métadonnées — jamais vers un échec du job.
func (p *JobProcessor) extractDocumentText(ctx context.Context, job *models.TranscriptionJob, scratch *ScratchTracker, metadata models.JSON) string {
	if job.SpeechID == nil {
		return ""
	}

	speech, err := p.speechRepo.GetByID(ctx, *job.SpeechID)
	if err != nil {
		log.Printf("Job %d: cannot load speech %s for document lookup: %v", job.ID, *job.SpeechID, err)
		return ""
	}
	if speech.DocumentURL == nil || strings.TrimSpace(*speech.DocumentURL) == "" {
		return ""
	}

	docInfo := models.JSON{}
	metadata["document"] = map[string]interface{}(docInfo)

	log.Printf("Job %d: Resolving document %s", job.ID, *speech.DocumentURL)
	docPath, err := p.resolver.ResolveDocument(ctx, *speech.DocumentURL, job.ID)
	if err != nil {
		log.Printf("Job %d: document resolution failed (non-fatal): %v", job.ID, err)
		docInfo["error"] = err.Error()
		return ""
	}
	scratch.Track(docPath)

	extracted, err := p.extractor.Extract(ctx, docPath, job.Language)
	if err != nil {
		log.Printf("Job %d: document extraction failed (non-fatal): %v", job.ID, err)
		docInfo["error"] = err.Error()
	}
	if extracted == nil {
		return ""
	}

	docInfo["method"] = extracted.Method
	docInfo["pages"] = extracted.Pages
	docInfo["full_text"] = extracted.Text

	return extracted.Text
}

// generateQuestions appelle le générateur si le job le demande. Les erreurs
// sont TOUJOURS non fatales : la persistance du transcript n'en dépend pas.
func (p *JobProcessor) generateQuestions(ctx context.Context, job *models.TranscriptionJob, combined string) models.QuestionPayloadList {
	if !job.GenerateQuestions || p.generator == nil || strings.TrimSpace(combined) == "" {
		return nil
	}

	generated, err := p.generator.Generate(ctx, combined, 0, "medium")
	if err != nil {
		log.Printf("Job %d: question generation failed (non-fatal): %v", job.ID, err)
		return nil
	}
	if len(generated) == 0 {
		return nil
	}
	return models.QuestionPayloadList(generated)
}

// updateSpeechArtifacts écrit le speech_name dérivé et remplace le jeu de
// questions du speech. Exécuté après le commit du job : un échec ici laisse
// le job completed et se contente d'un log.
func (p *JobProcessor) updateSpeechArtifacts(ctx context.Context, job *models.TranscriptionJob, combined string, generated models.QuestionPayloadList) {
	if job.SpeechID == nil {
		return
	}

	if strings.TrimSpace(combined) != "" {
		if err := p.speechRepo.UpdateSpeechName(ctx, *job.SpeechID, combined); err != nil {
			log.Printf("Job %d: failed to update speech name: %v", job.ID, err)
		}
	}

	if len(generated) > 0 {
		if _, err := p.questionRepo.ReplaceForSpeech(ctx, *job.SpeechID, []models.QuestionPayload(generated)); err != nil {
			log.Printf("Job %d: failed to replace questions for speech %s: %v", job.ID, *job.SpeechID, err)
		}
	}
}

func (p *JobProcessor) failJob(ctx context.Context, jobID int64, jobErr error) {
	if err := p.jobService.FailJob(ctx, jobID, jobErr.Error()); err != nil {
		log.Printf("Job %d: failed to record failure: %v", jobID, err)
	}
}

// buildMetadata assemble le rapport de qualité de la transcription dans le
// blob jsonb du job.
func buildMetadata(job *models.TranscriptionJob, t *transcribe.Result) models.JSON {
	return models.JSON{
		"language":                 job.Language,
		"model_size":               job.ModelSize,
		"detected_language":        t.Quality.DetectedLanguage,
		"word_count":               t.Quality.WordCount,
		"char_count":               t.Quality.CharCount,
		"segment_count":            t.Quality.SegmentCount,
		"mean_logprob":             t.Quality.MeanLogProb,
		"low_confidence_count":     t.Quality.LowConfidenceCount,
		"low_confidence_segments":  segmentMaps(t.Quality.LowConfidenceSegments),
		"low_confidence_threshold": t.Quality.LowConfidenceThreshold,
		"segments":                 segmentMaps(t.Segments),
	}
}

func segmentMaps(segments []transcribe.Segment) []interface{} {
	maps := make([]interface{}, 0, len(segments))
	for _, s := range segments {
		maps = append(maps, map[string]interface{}{
			"start_ms":    s.StartMs,
			"end_ms":      s.EndMs,
			"text":        s.Text,
			"avg_logprob": s.AvgLogProb,
		})
	}
	return maps
}
