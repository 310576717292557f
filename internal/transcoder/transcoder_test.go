package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg écrit un script qui crée son dernier argument, comme ffmpeg
// créerait le fichier de sortie.
func fakeFFmpeg(t *testing.T, dir string) string {
	t.Helper()

	script := filepath.Join(dir, "fake-ffmpeg.sh")
	content := "#!/bin/sh\nfor a; do last=$a; done\necho audio > \"$last\"\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))
	return script
}

func TestExtractAudio(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "speakcheck-transcoder-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	outputDir := filepath.Join(tempDir, "audio")
	videoPath := filepath.Join(tempDir, "lecture_01.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("video"), 0o644))

	t.Run("extracts next to the video name", func(t *testing.T) {
		tr := NewFFmpeg(fakeFFmpeg(t, tempDir), outputDir)

		audioPath, err := tr.ExtractAudio(context.Background(), videoPath)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(outputDir, "lecture_01.mp3"), audioPath)

		info, err := os.Stat(audioPath)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	})

	t.Run("reuses an existing extraction", func(t *testing.T) {
		// "false" échoue toujours : la réutilisation doit éviter tout appel
		tr := NewFFmpeg("false", outputDir)

		audioPath, err := tr.ExtractAudio(context.Background(), videoPath)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(outputDir, "lecture_01.mp3"), audioPath)
	})

	t.Run("failure leaves no partial file", func(t *testing.T) {
		tr := NewFFmpeg("false", outputDir)

		otherVideo := filepath.Join(tempDir, "other.mp4")
		require.NoError(t, os.WriteFile(otherVideo, []byte("video"), 0o644))

		_, err := tr.ExtractAudio(context.Background(), otherVideo)
		assert.Error(t, err)

		_, statErr := os.Stat(filepath.Join(outputDir, "other.mp3"))
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short output", tail([]byte("  short output\n")))

	long := make([]byte, 2048)
	for i := range long {
		long[i] = 'x'
	}
	result := tail(long)
	assert.LessOrEqual(t, len(result), 515)
	assert.Contains(t, result, "...")
}
