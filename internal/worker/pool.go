// internal/worker/pool.go
package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"speakcheck-worker/internal/jobs"
)

// WorkerPool gère un pool de workers concurrents. L'exclusion mutuelle entre
// workers est assurée par la réclamation SKIP LOCKED côté base, pas par une
// queue en mémoire : chaque worker réclame directement.
type WorkerPool struct {
	jobService jobs.JobService
	processor  *JobProcessor
	config     *PoolConfig
	workers    []*Worker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.RWMutex
}

// PoolConfig contient la configuration du pool de workers
// Aucun timeout global par job : seuls les téléchargements réseau sont
// bornés (côté resolver). Une transcription ou un OCR long doit pouvoir
// aller au bout.
type PoolConfig struct {
	WorkerCount    int           // Nombre de workers simultanés
	PollInterval   time.Duration // Backoff quand aucun job n'est éligible
	DownloadsDir   string        // Racine scratch des téléchargements
	AudioOutputDir string        // Racine scratch des extractions audio
}

// DefaultPoolConfig retourne une configuration par défaut
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		WorkerCount:    1,
		PollInterval:   5 * time.Second,
		DownloadsDir:   "downloads",
		AudioOutputDir: "audio",
	}
}

// NewWorkerPool crée un nouveau pool de workers
func NewWorkerPool(jobService jobs.JobService, processor *JobProcessor, config *PoolConfig) *WorkerPool {
	if config == nil {
		config = DefaultPoolConfig()
	}

	pool := &WorkerPool{
		jobService: jobService,
		processor:  processor,
		config:     config,
		stopCh:     make(chan struct{}),
	}

	for i := 0; i < config.WorkerCount; i++ {
		pool.workers = append(pool.workers, NewWorker(i, jobService, processor, config))
	}

	return pool
}

// Start démarre le pool de workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	log.Printf("Starting worker pool with %d workers", p.config.WorkerCount)

	for i, worker := range p.workers {
		p.wg.Add(1)
		go func(workerID int, w *Worker) {
			defer p.wg.Done()
			w.Start(ctx, p.stopCh)
		}(i, worker)
		log.Printf("Worker %d started", i)
	}

	p.running = true
	log.Printf("Worker pool started successfully")

	return nil
}

// Stop arrête le pool et attend la fin des jobs en cours
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	log.Println("Stopping worker pool...")

	close(p.stopCh)
	p.wg.Wait()

	p.running = false
	log.Println("Worker pool stopped")

	return nil
}

// PoolStats agrège l'état du pool pour l'endpoint de supervision
type PoolStats struct {
	WorkerCount int           `json:"worker_count"`
	Running     bool          `json:"running"`
	Workers     []WorkerStats `json:"workers"`
}

// WorkerStats expose l'état d'un worker individuel
type WorkerStats struct {
	ID           int    `json:"id"`
	Status       string `json:"status"`
	CurrentJobID int64  `json:"current_job_id,omitempty"`
	JobsTotal    int64  `json:"jobs_total"`
	JobsSuccess  int64  `json:"jobs_success"`
	JobsFailed   int64  `json:"jobs_failed"`
}

// GetStats retourne les statistiques du pool
func (p *WorkerPool) GetStats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		WorkerCount: len(p.workers),
		Running:     p.running,
	}

	for i, worker := range p.workers {
		ws := worker.GetStats()
		stats.Workers = append(stats.Workers, WorkerStats{
			ID:           i,
			Status:       ws.Status,
			CurrentJobID: ws.CurrentJobID,
			JobsTotal:    ws.JobsTotal,
			JobsSuccess:  ws.JobsSuccess,
			JobsFailed:   ws.JobsFailed,
		})
	}

	return stats
}
