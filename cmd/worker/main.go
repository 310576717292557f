package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"speakcheck-worker/internal/api"
	"speakcheck-worker/internal/config"
	"speakcheck-worker/internal/database"
	"speakcheck-worker/internal/extractor"
	"speakcheck-worker/internal/feedback"
	"speakcheck-worker/internal/jobs"
	"speakcheck-worker/internal/questions"
	"speakcheck-worker/internal/resolver"
	"speakcheck-worker/internal/speeches"
	"speakcheck-worker/internal/storage"
	"speakcheck-worker/internal/transcoder"
	"speakcheck-worker/internal/transcribe"
	"speakcheck-worker/internal/validation"
	"speakcheck-worker/internal/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Initialize object storage
	objectStore, err := storage.NewS3Store(&storage.Config{
		Region:    cfg.AWSRegion,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Bucket:    cfg.AWSBucket,
		Endpoint:  cfg.AWSEndpoint,
	})
	if err != nil {
		log.Fatal("Failed to initialize object storage:", err)
	}

	// Initialize repositories and services
	jobRepo := jobs.NewJobRepository(db.DB)
	jobService := jobs.NewJobServiceImpl(jobRepo)
	speechRepo := speeches.NewSpeechRepository(db.DB)
	questionRepo := speeches.NewQuestionRepository(db.DB)

	// Pipeline components
	sourceResolver := resolver.New(resolver.Config{
		DownloadsDir:    cfg.DownloadsDir,
		YTDLPCommand:    cfg.YTDLPCommand,
		DownloadTimeout: cfg.DownloadTimeout,
	}, objectStore)
	audioTranscoder := transcoder.NewFFmpeg(cfg.FFmpegCommand, cfg.AudioOutputDir)
	transcriber := transcribe.NewWhisper(cfg.WhisperCommand, cfg.WhisperModelDir)
	docExtractor := extractor.NewPDF(cfg.PdfToTextCommand, cfg.PdfToPpmCommand, cfg.TesseractCommand)

	// Génération de questions et feedback : optionnels, le pipeline dégrade
	// sans eux
	var questionGenerator questions.Generator
	var feedbackService feedback.Service
	if cfg.GeminiAPIKey != "" {
		questionGenerator, err = questions.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal("Failed to initialize question generator:", err)
		}
		feedbackService, err = feedback.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal("Failed to initialize feedback service:", err)
		}
	} else {
		log.Println("GEMINI_API_KEY not set, question generation and feedback disabled")
	}

	// Worker pool
	poolConfig := worker.DefaultPoolConfig()
	poolConfig.WorkerCount = cfg.Worker.WorkerCount
	poolConfig.PollInterval = cfg.Worker.PollInterval
	poolConfig.DownloadsDir = cfg.DownloadsDir
	poolConfig.AudioOutputDir = cfg.AudioOutputDir

	processor := worker.NewJobProcessor(
		jobService,
		speechRepo,
		questionRepo,
		sourceResolver,
		audioTranscoder,
		transcriber,
		docExtractor,
		questionGenerator,
		poolConfig,
	)

	pool := worker.NewWorkerPool(jobService, processor, poolConfig)
	if err := pool.Start(ctx); err != nil {
		log.Fatal("Failed to start worker pool:", err)
	}

	// Setup router
	apiValidator := validation.NewAPIValidator(nil)
	handlers := api.NewHandlers(jobService, speechRepo, questionRepo, questionGenerator, feedbackService, apiValidator)
	router := api.SetupRouter(handlers, cfg.JWTSecretKey)

	log.Printf("Starting speakcheck-worker on port %s", cfg.Port)
	log.Printf("Workers: %d (poll interval: %v)", cfg.Worker.WorkerCount, cfg.Worker.PollInterval)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- router.Run(":" + cfg.Port)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatal("Server failed to start:", err)
	case sig := <-quit:
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
		if err := pool.Stop(); err != nil {
			log.Printf("Worker pool shutdown error: %v", err)
		}
		log.Println("Server shutdown complete")
	}
}
