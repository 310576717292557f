// internal/worker/worker_test.go
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"speakcheck-worker/internal/extractor"
	"speakcheck-worker/internal/transcribe"
	"speakcheck-worker/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScratchTracker(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "speakcheck-scratch-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	downloads := filepath.Join(tempDir, "downloads")
	audio := filepath.Join(tempDir, "audio")
	require.NoError(t, os.MkdirAll(downloads, 0o755))
	require.NoError(t, os.MkdirAll(audio, 0o755))

	t.Run("requires at least one root", func(t *testing.T) {
		_, err := NewScratchTracker("", "")
		assert.Error(t, err)
	})

	t.Run("containment", func(t *testing.T) {
		tracker, err := NewScratchTracker(downloads, audio)
		require.NoError(t, err)

		assert.True(t, tracker.Contains(filepath.Join(downloads, "job_1_video.mp4")))
		assert.True(t, tracker.Contains(filepath.Join(audio, "job_1_video.mp3")))
		assert.False(t, tracker.Contains(filepath.Join(tempDir, "permanent.mp4")))
		assert.False(t, tracker.Contains(downloads+"_sibling/file.mp4"))
		assert.False(t, tracker.Contains(filepath.Join(downloads, "..", "escape.mp4")))
	})

	t.Run("cleanup removes only scratch paths", func(t *testing.T) {
		tracker, err := NewScratchTracker(downloads, audio)
		require.NoError(t, err)

		scratchFile := filepath.Join(downloads, "job_7_video.mp4")
		permanentFile := filepath.Join(tempDir, "library_video.mp4")
		require.NoError(t, os.WriteFile(scratchFile, []byte("data"), 0o644))
		require.NoError(t, os.WriteFile(permanentFile, []byte("data"), 0o644))

		tracker.Track(scratchFile)
		tracker.Track(permanentFile)
		tracker.Track("") // ignoré
		tracker.Cleanup(7)

		_, err = os.Stat(scratchFile)
		assert.True(t, os.IsNotExist(err), "scratch file removed")

		_, err = os.Stat(permanentFile)
		assert.NoError(t, err, "permanent file untouched")
	})

	t.Run("cleanup tolerates already-removed files", func(t *testing.T) {
		tracker, err := NewScratchTracker(downloads)
		require.NoError(t, err)

		tracker.Track(filepath.Join(downloads, "already_gone.mp4"))
		tracker.Cleanup(8) // ne doit pas paniquer ni propager d'erreur
	})

	t.Run("symlinked root still contains its artifacts", func(t *testing.T) {
		realRoot := filepath.Join(tempDir, "real_downloads")
		require.NoError(t, os.MkdirAll(realRoot, 0o755))
		linkRoot := filepath.Join(tempDir, "linked_downloads")
		require.NoError(t, os.Symlink(realRoot, linkRoot))

		tracker, err := NewScratchTracker(linkRoot)
		require.NoError(t, err)

		artifact := filepath.Join(linkRoot, "job_9_video.mp4")
		require.NoError(t, os.WriteFile(artifact, []byte("data"), 0o644))

		assert.True(t, tracker.Contains(artifact))
		assert.True(t, tracker.Contains(filepath.Join(realRoot, "job_9_video.mp4")))

		tracker.Track(artifact)
		tracker.Cleanup(9)

		_, err = os.Stat(filepath.Join(realRoot, "job_9_video.mp4"))
		assert.True(t, os.IsNotExist(err), "artifact removed through the symlinked root")
	})
}

func TestJobProcessor(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "speakcheck-processor-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	downloads := filepath.Join(tempDir, "downloads")
	audio := filepath.Join(tempDir, "audio")
	require.NoError(t, os.MkdirAll(downloads, 0o755))
	require.NoError(t, os.MkdirAll(audio, 0o755))

	config := &PoolConfig{
		WorkerCount:    1,
		PollInterval:   50 * time.Millisecond,
		DownloadsDir:   downloads,
		AudioOutputDir: audio,
	}

	newJob := func(speechID *uuid.UUID) *models.TranscriptionJob {
		return &models.TranscriptionJob{
			ID:                42,
			VideoSource:       "videos/lecture.mp4",
			Language:          "ko",
			ModelSize:         "medium",
			GenerateQuestions: true,
			SpeechID:          speechID,
			Status:            models.StatusProcessing,
		}
	}

	t.Run("happy path persists transcript and questions", func(t *testing.T) {
		speechID := uuid.New()
		docURL := "documents/slides.pdf"

		jobService := &mockJobService{}
		speechRepo := &mockSpeechRepo{
			speech: &models.Speech{ID: speechID, DocumentURL: &docURL},
		}
		questionRepo := &mockQuestionRepo{}
		res := &mockResolver{downloads: downloads}
		generator := &mockGenerator{
			payloads: []models.QuestionPayload{{Question: "핵심 주장은 무엇인가요?"}},
		}

		processor := NewJobProcessor(jobService, speechRepo, questionRepo, res,
			&mockTranscoder{audioDir: audio},
			&mockTranscriber{text: "발표 내용입니다"},
			&mockExtractor{text: "슬라이드 내용", method: "direct", pages: 3},
			generator, config)

		result := processor.ProcessJob(context.Background(), newJob(&speechID))

		require.True(t, result.Success, "job should succeed: %v", result.Error)
		assert.Greater(t, result.Duration, time.Duration(0))

		require.NotNil(t, jobService.completed)
		assert.Equal(t, "발표 내용입니다", jobService.completed.transcript)
		assert.Equal(t, "ko", jobService.completed.metadata["language"])
		assert.Equal(t, 0, jobService.completed.metadata["low_confidence_count"])
		assert.Empty(t, jobService.completed.metadata["low_confidence_segments"])

		docInfo, ok := jobService.completed.metadata["document"].(map[string]interface{})
		require.True(t, ok, "document info recorded in metadata")
		assert.Equal(t, "direct", docInfo["method"])
		assert.Equal(t, 3, docInfo["pages"])
		assert.Equal(t, "슬라이드 내용", docInfo["full_text"])

		require.Len(t, jobService.completed.questions, 1)

		// Texte combiné : transcript puis document
		assert.Equal(t, "발표 내용입니다\n\n슬라이드 내용", generator.lastText)
		assert.Equal(t, "발표 내용입니다\n\n슬라이드 내용", speechRepo.lastSpeechName)
		assert.Equal(t, speechID, questionRepo.lastSpeechID)

		// Tous les artefacts scratch ont été nettoyés
		left, err := filepath.Glob(filepath.Join(downloads, "*"))
		require.NoError(t, err)
		assert.Empty(t, left)
	})

	t.Run("transcription failure marks the job failed and cleans up", func(t *testing.T) {
		jobService := &mockJobService{}
		res := &mockResolver{downloads: downloads}

		processor := NewJobProcessor(jobService, &mockSpeechRepo{}, &mockQuestionRepo{}, res,
			&mockTranscoder{audioDir: audio},
			&mockTranscriber{err: fmt.Errorf("model exploded")},
			&mockExtractor{}, nil, config)

		result := processor.ProcessJob(context.Background(), newJob(nil))

		assert.False(t, result.Success)
		assert.ErrorContains(t, result.Error, "transcription error")
		assert.Contains(t, jobService.failedMessage, "transcription error")
		assert.Nil(t, jobService.completed, "no transcript persisted on failure")

		left, err := filepath.Glob(filepath.Join(downloads, "*"))
		require.NoError(t, err)
		assert.Empty(t, left, "scratch cleaned on the failure path too")
	})

	t.Run("document failure is non-fatal", func(t *testing.T) {
		speechID := uuid.New()
		docURL := "documents/slides.pdf"

		jobService := &mockJobService{}
		speechRepo := &mockSpeechRepo{
			speech: &models.Speech{ID: speechID, DocumentURL: &docURL},
		}

		processor := NewJobProcessor(jobService, speechRepo, &mockQuestionRepo{},
			&mockResolver{downloads: downloads, documentErr: fmt.Errorf("object not found")},
			&mockTranscoder{audioDir: audio},
			&mockTranscriber{text: "발표 내용입니다"},
			&mockExtractor{}, nil, config)

		result := processor.ProcessJob(context.Background(), newJob(&speechID))

		require.True(t, result.Success)
		docInfo, ok := jobService.completed.metadata["document"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, docInfo["error"], "object not found")
	})

	t.Run("generator failure is non-fatal", func(t *testing.T) {
		jobService := &mockJobService{}

		processor := NewJobProcessor(jobService, &mockSpeechRepo{}, &mockQuestionRepo{},
			&mockResolver{downloads: downloads},
			&mockTranscoder{audioDir: audio},
			&mockTranscriber{text: "발표 내용입니다"},
			&mockExtractor{},
			&mockGenerator{err: fmt.Errorf("quota exceeded")}, config)

		result := processor.ProcessJob(context.Background(), newJob(nil))

		require.True(t, result.Success)
		assert.Empty(t, jobService.completed.questions)
	})

	t.Run("nil generator skips question generation", func(t *testing.T) {
		jobService := &mockJobService{}

		processor := NewJobProcessor(jobService, &mockSpeechRepo{}, &mockQuestionRepo{},
			&mockResolver{downloads: downloads},
			&mockTranscoder{audioDir: audio},
			&mockTranscriber{text: "발표 내용입니다"},
			&mockExtractor{}, nil, config)

		result := processor.ProcessJob(context.Background(), newJob(nil))
		require.True(t, result.Success)
		assert.Empty(t, jobService.completed.questions)
	})
}

func TestWorkerPool(t *testing.T) {
	jobService := &mockJobService{}
	processor := NewJobProcessor(jobService, &mockSpeechRepo{}, &mockQuestionRepo{},
		&mockResolver{}, &mockTranscoder{}, &mockTranscriber{}, &mockExtractor{}, nil,
		DefaultPoolConfig())

	config := &PoolConfig{
		WorkerCount:    2,
		PollInterval:   20 * time.Millisecond,
		DownloadsDir:   os.TempDir(),
		AudioOutputDir: os.TempDir(),
	}

	pool := NewWorkerPool(jobService, processor, config)

	t.Run("Pool Creation", func(t *testing.T) {
		assert.NotNil(t, pool)
		assert.Len(t, pool.workers, 2)
	})

	t.Run("Pool Stats", func(t *testing.T) {
		stats := pool.GetStats()
		assert.Equal(t, 2, stats.WorkerCount)
		assert.False(t, stats.Running)
		assert.Len(t, stats.Workers, 2)
	})

	t.Run("Start and Stop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		require.NoError(t, pool.Start(ctx))
		assert.True(t, pool.GetStats().Running)

		// Laisser les workers tourner à vide quelques cycles de poll
		time.Sleep(60 * time.Millisecond)

		require.NoError(t, pool.Stop())
		assert.False(t, pool.GetStats().Running)
	})
}

// --- Mocks ---

type completedJob struct {
	transcript string
	metadata   models.JSON
	questions  models.QuestionPayloadList
}

type mockJobService struct {
	completed     *completedJob
	failedMessage string
}

func (m *mockJobService) CreateJob(ctx context.Context, req *models.JobRequest, userID *uuid.UUID) (*models.TranscriptionJob, error) {
	return nil, nil
}

func (m *mockJobService) GetJob(ctx context.Context, id int64) (*models.TranscriptionJob, error) {
	return nil, fmt.Errorf("job not found")
}

func (m *mockJobService) ListJobs(ctx context.Context, status string, speechID *uuid.UUID) ([]*models.TranscriptionJob, error) {
	return nil, nil
}

func (m *mockJobService) ClaimNextJob(ctx context.Context) (*models.TranscriptionJob, error) {
	return nil, nil
}

func (m *mockJobService) CompleteJob(ctx context.Context, id int64, transcript string, metadata models.JSON, questions models.QuestionPayloadList) error {
	m.completed = &completedJob{transcript: transcript, metadata: metadata, questions: questions}
	return nil
}

func (m *mockJobService) FailJob(ctx context.Context, id int64, errorMessage string) error {
	m.failedMessage = errorMessage
	return nil
}

func (m *mockJobService) CancelJobsForSpeech(ctx context.Context, speechID uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *mockJobService) LatestCompletedForSpeech(ctx context.Context, speechID uuid.UUID) (*models.TranscriptionJob, error) {
	return nil, nil
}

type mockSpeechRepo struct {
	speech         *models.Speech
	lastSpeechName string
}

func (m *mockSpeechRepo) Create(ctx context.Context, speech *models.Speech) error { return nil }

func (m *mockSpeechRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Speech, error) {
	if m.speech == nil {
		return nil, fmt.Errorf("speech not found")
	}
	return m.speech, nil
}

func (m *mockSpeechRepo) ListByStage(ctx context.Context, stageID uuid.UUID) ([]*models.Speech, error) {
	return nil, nil
}

func (m *mockSpeechRepo) ReplaceVideoSource(ctx context.Context, id uuid.UUID, title, videoSource string) error {
	return nil
}

func (m *mockSpeechRepo) UpdateDocumentURL(ctx context.Context, id uuid.UUID, title, documentURL string) error {
	return nil
}

func (m *mockSpeechRepo) UpdateSpeechName(ctx context.Context, id uuid.UUID, combinedText string) error {
	m.lastSpeechName = combinedText
	return nil
}

func (m *mockSpeechRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (m *mockSpeechRepo) GetStage(ctx context.Context, stageID uuid.UUID) (*models.Stage, error) {
	return nil, fmt.Errorf("stage not found")
}

type mockQuestionRepo struct {
	lastSpeechID uuid.UUID
}

func (m *mockQuestionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return nil, fmt.Errorf("question not found")
}

func (m *mockQuestionRepo) ListBySpeech(ctx context.Context, speechID uuid.UUID) ([]*models.Question, error) {
	return nil, nil
}

func (m *mockQuestionRepo) ReplaceForSpeech(ctx context.Context, speechID uuid.UUID, payloads []models.QuestionPayload) ([]*models.Question, error) {
	m.lastSpeechID = speechID
	return nil, nil
}

func (m *mockQuestionRepo) UpdateFeedback(ctx context.Context, id uuid.UUID, userAnswer, aiFeedback string, score *int) error {
	return nil
}

// mockResolver écrit des fichiers scratch réels pour que le nettoyage soit
// observable.
type mockResolver struct {
	downloads   string
	documentErr error
}

func (m *mockResolver) ResolveMedia(ctx context.Context, ref string, jobID int64) (string, error) {
	path := filepath.Join(m.downloads, fmt.Sprintf("job_%d_video.mp4", jobID))
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (m *mockResolver) ResolveDocument(ctx context.Context, ref string, jobID int64) (string, error) {
	if m.documentErr != nil {
		return "", m.documentErr
	}
	path := filepath.Join(m.downloads, fmt.Sprintf("job_%d_slides.pdf", jobID))
	if err := os.WriteFile(path, []byte("pdf"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type mockTranscoder struct {
	audioDir string
}

func (m *mockTranscoder) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	path := filepath.Join(m.audioDir, "job_audio.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type mockTranscriber struct {
	text string
	err  error
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath, language, modelSize string) (*transcribe.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &transcribe.Result{
		Text: m.text,
		Segments: []transcribe.Segment{
			{StartMs: 0, EndMs: 1000, Text: m.text, AvgLogProb: -0.1},
		},
		Quality: transcribe.QualityReport{
			WordCount:        len(m.text),
			SegmentCount:     1,
			DetectedLanguage: language,
		},
	}, nil
}

type mockExtractor struct {
	text   string
	method string
	pages  int
	err    error
}

func (m *mockExtractor) Extract(ctx context.Context, documentPath, language string) (*extractor.Result, error) {
	if m.err != nil {
		return &extractor.Result{Text: "", Method: "none"}, m.err
	}
	return &extractor.Result{Text: m.text, Method: m.method, Pages: m.pages}, nil
}

type mockGenerator struct {
	payloads []models.QuestionPayload
	err      error
	lastText string
}

func (m *mockGenerator) Generate(ctx context.Context, text string, numQuestions int, difficulty string) ([]models.QuestionPayload, error) {
	m.lastText = text
	if m.err != nil {
		return nil, m.err
	}
	return m.payloads, nil
}
