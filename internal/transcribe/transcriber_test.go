package transcribe

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const whisperFixture = `{
	"result": {"language": "ko"},
	"transcription": [
		{
			"offsets": {"from": 0, "to": 4200},
			"text": " 안녕하세요, 오늘 발표를 시작하겠습니다.",
			"tokens": [
				{"text": "안녕", "p": 0.95},
				{"text": "하세요", "p": 0.90}
			]
		},
		{
			"offsets": {"from": 4200, "to": 8000},
			"text": " ",
			"tokens": []
		},
		{
			"offsets": {"from": 8000, "to": 12000},
			"text": " 첫 번째 주제입니다.",
			"tokens": [
				{"text": "첫", "p": 0.20},
				{"text": "번째", "p": 0.25}
			]
		}
	]
}`

func TestParseWhisperJSON(t *testing.T) {
	result, err := parseWhisperJSON([]byte(whisperFixture))
	require.NoError(t, err)

	t.Run("text and segments", func(t *testing.T) {
		assert.Equal(t, "안녕하세요, 오늘 발표를 시작하겠습니다. 첫 번째 주제입니다.", result.Text)
		require.Len(t, result.Segments, 2, "blank segment dropped")

		assert.Equal(t, int64(0), result.Segments[0].StartMs)
		assert.Equal(t, int64(4200), result.Segments[0].EndMs)
		assert.Equal(t, "안녕하세요, 오늘 발표를 시작하겠습니다.", result.Segments[0].Text)
	})

	t.Run("log probabilities", func(t *testing.T) {
		expected := (math.Log(0.95) + math.Log(0.90)) / 2
		assert.InDelta(t, expected, result.Segments[0].AvgLogProb, 1e-9)

		lowExpected := (math.Log(0.20) + math.Log(0.25)) / 2
		assert.InDelta(t, lowExpected, result.Segments[1].AvgLogProb, 1e-9)
		assert.Less(t, result.Segments[1].AvgLogProb, lowConfidenceThreshold)
	})

	t.Run("quality report", func(t *testing.T) {
		q := result.Quality
		assert.Equal(t, "ko", q.DetectedLanguage)
		assert.Equal(t, 2, q.SegmentCount)
		assert.Equal(t, 1, q.LowConfidenceCount)
		require.Len(t, q.LowConfidenceSegments, 1)
		assert.Equal(t, "첫 번째 주제입니다.", q.LowConfidenceSegments[0].Text)
		assert.Equal(t, int64(8000), q.LowConfidenceSegments[0].StartMs)
		assert.Equal(t, int64(12000), q.LowConfidenceSegments[0].EndMs)
		assert.Equal(t, lowConfidenceThreshold, q.LowConfidenceThreshold)
		assert.Equal(t, len([]rune(result.Text)), q.CharCount)
		assert.Equal(t, 7, q.WordCount)
		assert.Less(t, q.MeanLogProb, 0.0)
	})
}

func TestParseWhisperJSONEmpty(t *testing.T) {
	result, err := parseWhisperJSON([]byte(`{"result": {"language": "en"}, "transcription": []}`))
	require.NoError(t, err)

	assert.Equal(t, "", result.Text)
	assert.Empty(t, result.Segments)
	assert.Equal(t, 0, result.Quality.WordCount)
	assert.Equal(t, 0.0, result.Quality.MeanLogProb)
}

func TestParseWhisperJSONInvalid(t *testing.T) {
	_, err := parseWhisperJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestResolveModel(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "speakcheck-models-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	for _, name := range []string{
		"ggml-medium.bin",
		"ggml-large-v3.bin",
		"ggml-base.en.bin",
		"ggml-mediumish.bin",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte("weights"), 0o644))
	}

	w := &whisperTranscriber{
		command:    "whisper-cli",
		modelDir:   tempDir,
		modelPaths: make(map[string]string),
	}

	t.Run("exact size", func(t *testing.T) {
		path, err := w.resolveModel("medium")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tempDir, "ggml-medium.bin"), path)
	})

	t.Run("versioned variant", func(t *testing.T) {
		path, err := w.resolveModel("large")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tempDir, "ggml-large-v3.bin"), path)
	})

	t.Run("language variant", func(t *testing.T) {
		path, err := w.resolveModel("base")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tempDir, "ggml-base.en.bin"), path)
	})

	t.Run("unknown size", func(t *testing.T) {
		_, err := w.resolveModel("tiny")
		assert.Error(t, err)
	})

	t.Run("cache survives directory removal", func(t *testing.T) {
		first, err := w.resolveModel("medium")
		require.NoError(t, err)

		require.NoError(t, os.Remove(filepath.Join(tempDir, "ggml-medium.bin")))

		cached, err := w.resolveModel("medium")
		require.NoError(t, err)
		assert.Equal(t, first, cached)
	})
}
