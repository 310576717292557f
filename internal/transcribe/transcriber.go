package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// Seuil de log-probabilité moyenne en dessous duquel un segment est signalé
// comme peu fiable dans le rapport de qualité.
const lowConfidenceThreshold = -1.0

// Segment est une tranche horodatée du transcript.
type Segment struct {
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Text       string  `json:"text"`
	AvgLogProb float64 `json:"avg_logprob"`
}

// QualityReport résume la fiabilité d'une transcription. Les segments peu
// fiables sont listés intégralement pour que les consommateurs puissent les
// signaler individuellement, pas seulement les compter.
type QualityReport struct {
	WordCount              int       `json:"word_count"`
	CharCount              int       `json:"char_count"`
	SegmentCount           int       `json:"segment_count"`
	MeanLogProb            float64   `json:"mean_logprob"`
	LowConfidenceCount     int       `json:"low_confidence_count"`
	LowConfidenceSegments  []Segment `json:"low_confidence_segments"`
	DetectedLanguage       string    `json:"detected_language"`
	LowConfidenceThreshold float64   `json:"low_confidence_threshold"`
}

// Result est la sortie complète d'une transcription.
type Result struct {
	Text     string
	Segments []Segment
	Quality  QualityReport
}

// Transcriber convertit un fichier audio en texte.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language, modelSize string) (*Result, error)
}

type whisperTranscriber struct {
	command  string
	modelDir string

	// Cache borné des chemins de modèles résolus, un par classe de taille.
	// La résolution scanne modelDir une seule fois par classe.
	mu         sync.Mutex
	modelPaths map[string]string
}

func NewWhisper(command, modelDir string) Transcriber {
	return &whisperTranscriber{
		command:    command,
		modelDir:   modelDir,
		modelPaths: make(map[string]string),
	}
}

func (w *whisperTranscriber) Transcribe(ctx context.Context, audioPath, language, modelSize string) (*Result, error) {
	modelPath, err := w.resolveModel(modelSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s model: %w", modelSize, err)
	}

	outputBase := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))

	cmd := exec.CommandContext(ctx, w.command,
		"-m", modelPath,
		"-l", language,
		"-f", audioPath,
		"--output-json-full",
		"--output-file", outputBase,
		"--no-prints",
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper inference failed for %s: %w: %s", audioPath, err, tail(output))
	}

	jsonPath := outputBase + ".json"
	defer os.Remove(jsonPath)

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("whisper produced no JSON output for %s: %w", audioPath, err)
	}

	result, err := parseWhisperJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse whisper output for %s: %w", audioPath, err)
	}

	log.Printf("Transcription of %s completed: %d segments, %d words",
		audioPath, result.Quality.SegmentCount, result.Quality.WordCount)
	return result, nil
}

// resolveModel localise le fichier de poids correspondant à la classe de
// taille, avec mise en cache : un grand répertoire de modèles n'est scanné
// qu'une fois par classe.
func (w *whisperTranscriber) resolveModel(modelSize string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if path, ok := w.modelPaths[modelSize]; ok {
		return path, nil
	}

	entries, err := os.ReadDir(w.modelDir)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory %s: %w", w.modelDir, err)
	}

	// Convention whisper.cpp : ggml-<size>.bin, variantes ggml-<size>.en.bin
	// ou quantifiées ggml-<size>-q5_0.bin
	var candidate string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".bin") {
			continue
		}
		if strings.HasPrefix(name, "ggml-"+modelSize+".") || strings.HasPrefix(name, "ggml-"+modelSize+"-") {
			candidate = filepath.Join(w.modelDir, name)
			break
		}
	}

	if candidate == "" {
		return "", fmt.Errorf("no model file for size %q in %s", modelSize, w.modelDir)
	}

	w.modelPaths[modelSize] = candidate
	log.Printf("Resolved %s model to %s", modelSize, candidate)
	return candidate, nil
}

// Formes du JSON complet de whisper.cpp (--output-json-full)
type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text   string `json:"text"`
		Tokens []struct {
			Text string  `json:"text"`
			P    float64 `json:"p"`
		} `json:"tokens"`
	} `json:"transcription"`
}

func parseWhisperJSON(data []byte) (*Result, error) {
	var raw whisperJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var (
		builder      strings.Builder
		segments     []Segment
		lowSegments  []Segment
		logProbSum   float64
		logProbCount int
	)

	for _, seg := range raw.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		// Log-probabilité moyenne du segment à partir des probabilités de
		// tokens (p), ln(p) par token
		var segSum float64
		var segCount int
		for _, tok := range seg.Tokens {
			if tok.P > 0 {
				segSum += math.Log(tok.P)
				segCount++
			}
		}

		avgLogProb := 0.0
		if segCount > 0 {
			avgLogProb = segSum / float64(segCount)
			logProbSum += segSum
			logProbCount += segCount
		}
		segment := Segment{
			StartMs:    seg.Offsets.From,
			EndMs:      seg.Offsets.To,
			Text:       text,
			AvgLogProb: avgLogProb,
		}
		segments = append(segments, segment)
		if avgLogProb < lowConfidenceThreshold {
			lowSegments = append(lowSegments, segment)
		}

		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(text)
	}

	text := builder.String()

	meanLogProb := 0.0
	if logProbCount > 0 {
		meanLogProb = logProbSum / float64(logProbCount)
	}

	return &Result{
		Text:     text,
		Segments: segments,
		Quality: QualityReport{
			WordCount:              len(strings.Fields(text)),
			CharCount:              utf8.RuneCountInString(text),
			SegmentCount:           len(segments),
			MeanLogProb:            meanLogProb,
			LowConfidenceCount:     len(lowSegments),
			LowConfidenceSegments:  lowSegments,
			DetectedLanguage:       raw.Result.Language,
			LowConfidenceThreshold: lowConfidenceThreshold,
		},
	}, nil
}

func tail(output []byte) string {
	const max = 512
	s := strings.TrimSpace(string(output))
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
