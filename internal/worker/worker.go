// internal/worker/worker.go
package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"speakcheck-worker/internal/jobs"
	"speakcheck-worker/pkg/models"
)

// Worker est une boucle mono-thread : réclamer le plus ancien job pending,
// le traiter, recommencer. Quand rien n'est éligible il attend PollInterval
// avant de re-réclamer — jamais de boucle serrée sur la base.
type Worker struct {
	id         int
	jobService jobs.JobService
	processor  *JobProcessor
	config     *PoolConfig

	// État du worker - protégé par mutex
	mu           sync.RWMutex
	status       string
	currentJobID int64

	// Statistiques - atomic pour éviter les locks
	jobsTotal   int64
	jobsSuccess int64
	jobsFailed  int64
}

// NewWorker crée un nouveau worker
func NewWorker(id int, jobService jobs.JobService, processor *JobProcessor, config *PoolConfig) *Worker {
	return &Worker{
		id:         id,
		jobService: jobService,
		processor:  processor,
		config:     config,
		status:     "idle",
	}
}

// Start exécute la boucle de réclamation jusqu'à l'annulation du contexte
// ou la fermeture de stopCh.
func (w *Worker) Start(ctx context.Context, stopCh <-chan struct{}) {
	log.Printf("Worker %d starting (poll interval: %v)", w.id, w.config.PollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopped due to context cancellation", w.id)
			w.setState("stopped", 0)
			return
		case <-stopCh:
			log.Printf("Worker %d stopped", w.id)
			w.setState("stopped", 0)
			return
		default:
		}

		job, err := w.jobService.ClaimNextJob(ctx)
		if err != nil {
			log.Printf("Worker %d: claim failed: %v", w.id, err)
			w.wait(ctx, stopCh)
			continue
		}

		if job == nil {
			// Rien d'éligible : backoff avant la prochaine réclamation
			w.wait(ctx, stopCh)
			continue
		}

		w.processJob(ctx, job)
	}
}

// processJob traite un job réclamé
func (w *Worker) processJob(ctx context.Context, job *models.TranscriptionJob) {
	w.setState("busy", job.ID)
	atomic.AddInt64(&w.jobsTotal, 1)

	log.Printf("Worker %d processing job %d (source: %s)", w.id, job.ID, job.VideoSource)

	// Pas de deadline sur le job : transcription et OCR peuvent durer
	// arbitrairement longtemps, seuls les téléchargements sont bornés.
	result := w.processor.ProcessJob(ctx, job)

	if result.Success {
		atomic.AddInt64(&w.jobsSuccess, 1)
		log.Printf("Worker %d completed job %d in %v", w.id, job.ID, result.Duration)
	} else {
		atomic.AddInt64(&w.jobsFailed, 1)
		log.Printf("Worker %d failed job %d: %v", w.id, job.ID, result.Error)
	}

	w.setState("idle", 0)
}

// wait bloque PollInterval, interruptible par l'arrêt
func (w *Worker) wait(ctx context.Context, stopCh <-chan struct{}) {
	timer := time.NewTimer(w.config.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-stopCh:
	case <-timer.C:
	}
}

// setState met à jour l'état du worker de manière atomique
func (w *Worker) setState(status string, jobID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.status = status
	w.currentJobID = jobID
}

// GetStats retourne les statistiques du worker
func (w *Worker) GetStats() WorkerStatsInternal {
	w.mu.RLock()
	status := w.status
	currentJobID := w.currentJobID
	w.mu.RUnlock()

	return WorkerStatsInternal{
		Status:       status,
		CurrentJobID: currentJobID,
		JobsTotal:    atomic.LoadInt64(&w.jobsTotal),
		JobsSuccess:  atomic.LoadInt64(&w.jobsSuccess),
		JobsFailed:   atomic.LoadInt64(&w.jobsFailed),
	}
}

// WorkerStatsInternal structure interne pour les stats du worker
type WorkerStatsInternal struct {
	Status       string
	CurrentJobID int64
	JobsTotal    int64
	JobsSuccess  int64
	JobsFailed   int64
}
