package cover

import (
	"context"
	"sync"

	"github.com/pagebound/jacket/util/log"
)

// ConvergeJob carries one book toward its durable cover.
type ConvergeJob struct {
	Book Book
	Hint string
}

// ProcessFunc is the function a worker runs per job.
type ProcessFunc func(ctx context.Context, job ConvergeJob)

// Pipeline runs convergence jobs on a fixed worker pool. Submissions
// never block the caller; a full queue drops the job, which is safe
// because convergence is re-triggered on the next resolve.
type Pipeline struct {
	mu       sync.RWMutex
	stopped  bool
	jobChan  chan ConvergeJob
	workerWg sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	process  ProcessFunc
}

// NewPipeline creates a pipeline around the given process function.
func NewPipeline(process ProcessFunc) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		jobChan: make(chan ConvergeJob, convergeQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		process: process,
	}
}

// Start starts the worker pool.
func (p *Pipeline) Start(workerCount int) {
	log.Printf("Starting convergence pipeline with %d workers", workerCount)
	for i := 0; i < workerCount; i++ {
		p.workerWg.Add(1)
		go p.workerLoop(i)
	}
}

// Stop refuses further submissions, drains the queue, then cancels the
// context in-flight work sees.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobChan)
	p.mu.Unlock()

	p.workerWg.Wait()
	p.cancel()
	log.Println("Convergence pipeline stopped.")
}

// Submit queues a job. Returns false when the pipeline is stopped or the
// queue is full.
func (p *Pipeline) Submit(job ConvergeJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.jobChan <- job:
		return true
	default:
		log.Warnf("Convergence queue full, dropping job for %s", job.Book.Fingerprint())
		return false
	}
}

// workerLoop is the main loop for a worker goroutine. It exits when the
// queue is closed and drained.
func (p *Pipeline) workerLoop(id int) {
	defer p.workerWg.Done()
	log.Debugf("Converge worker %d started", id)

	for job := range p.jobChan {
		p.process(p.ctx, job)
	}
	log.Debugf("Converge worker %d stopping", id)
}
