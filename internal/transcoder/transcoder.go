package transcoder

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Transcoder extrait la piste audio d'un fichier vidéo.
type Transcoder interface {
	// ExtractAudio produit un mp3 dans outputDir, nommé d'après la vidéo.
	// L'extraction est sautée si le fichier cible existe déjà.
	ExtractAudio(ctx context.Context, videoPath string) (string, error)
}

type ffmpegTranscoder struct {
	command   string
	outputDir string
}

func NewFFmpeg(command, outputDir string) Transcoder {
	return &ffmpegTranscoder{
		command:   command,
		outputDir: outputDir,
	}
}

func (t *ffmpegTranscoder) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	if err := os.MkdirAll(t.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create audio output directory: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outputPath := filepath.Join(t.outputDir, baseName+".mp3")

	// Extraction idempotente : un mp3 déjà présent est réutilisé
	if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
		log.Printf("Audio already extracted, reusing %s", outputPath)
		return outputPath, nil
	}

	cmd := exec.CommandContext(ctx, t.command,
		"-i", videoPath,
		"-vn",
		"-acodec", "mp3",
		"-ab", "192k",
		"-ar", "44100",
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath) // ne pas laisser un mp3 partiel
		return "", fmt.Errorf("ffmpeg failed for %s: %w: %s", videoPath, err, tail(output))
	}

	log.Printf("Audio extracted from %s to %s", videoPath, outputPath)
	return outputPath, nil
}

// tail garde la fin de la sortie ffmpeg, où se trouve l'erreur utile.
func tail(output []byte) string {
	const max = 512
	s := strings.TrimSpace(string(output))
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
