package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config regroupe toute la configuration du service, chargée depuis
// l'environnement.
type Config struct {
	Port        string
	DatabaseURL string

	// Répertoires scratch : tout nettoyage est confiné à ces racines
	DownloadsDir   string
	AudioOutputDir string

	// Object storage (S3)
	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	AWSBucket    string
	AWSEndpoint  string // endpoint personnalisé (MinIO/Garage), vide = AWS

	// Commandes externes
	FFmpegCommand    string
	WhisperCommand   string
	WhisperModelDir  string
	YTDLPCommand     string
	PdfToTextCommand string
	PdfToPpmCommand  string
	TesseractCommand string

	// Génération de questions (Gemini)
	GeminiAPIKey string
	GeminiModel  string

	JWTSecretKey string

	Worker WorkerConfig

	DownloadTimeout time.Duration
	LogLevel        string
	Environment     string
}

// WorkerConfig contient la configuration du pool de workers
type WorkerConfig struct {
	WorkerCount  int
	PollInterval time.Duration
}

// Load charge la configuration et valide les variables obligatoires.
func Load() (*Config, error) {
	downloadTimeout, _ := time.ParseDuration(getEnv("DOWNLOAD_TIMEOUT", "10m"))
	pollInterval, _ := time.ParseDuration(getEnv("POLL_INTERVAL", "5s"))

	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		DownloadsDir:   getEnv("DOWNLOADS_DIR", "downloads"),
		AudioOutputDir: getEnv("AUDIO_OUTPUT_DIR", "audio"),

		AWSRegion:    getEnv("AWS_REGION", getEnv("AWS_DEFAULT_REGION", "ap-northeast-2")),
		AWSAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AWSSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AWSBucket:    getEnv("AWS_BUCKET", ""),
		AWSEndpoint:  getEnv("AWS_ENDPOINT", ""),

		FFmpegCommand:    getEnv("FFMPEG_COMMAND", "ffmpeg"),
		WhisperCommand:   getEnv("WHISPER_COMMAND", "whisper-cli"),
		WhisperModelDir:  getEnv("WHISPER_MODEL_DIR", "models"),
		YTDLPCommand:     getEnv("YTDLP_COMMAND", "yt-dlp"),
		PdfToTextCommand: getEnv("PDFTOTEXT_COMMAND", "pdftotext"),
		PdfToPpmCommand:  getEnv("PDFTOPPM_COMMAND", "pdftoppm"),
		TesseractCommand: getEnv("TESSERACT_COMMAND", "tesseract"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-pro"),

		JWTSecretKey: getEnv("JWT_SECRET_KEY", ""),

		Worker: WorkerConfig{
			WorkerCount:  getEnvInt("WORKER_COUNT", 1),
			PollInterval: pollInterval,
		},

		DownloadTimeout: downloadTimeout,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Environment:     getEnv("ENVIRONMENT", "development"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate vérifie les variables sans défaut raisonnable
func (c *Config) validate() error {
	var missing []string

	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecretKey == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}
	if c.AWSBucket == "" {
		missing = append(missing, "AWS_BUCKET")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Worker.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.Worker.WorkerCount)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
