// Package dispatcher manages worker fan-out over the job queue and tracks
// which jobs can still be cancelled.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
	"github.com/JakeFAU/site-screenshot-crawler/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
	cancels *Registry
}

// New creates a Dispatcher. The registry may be shared with the workers so
// Cancel reaches jobs they are running.
func New(queue crawler.Queue, workers []*worker.Worker, cancels *Registry) *Dispatcher {
	if cancels == nil {
		cancels = NewRegistry()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		cancels: cancels,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Cancel asks the job to stop. See Registry.Cancel.
func (d *Dispatcher) Cancel(jobID string) bool {
	return d.cancels.Cancel(jobID)
}

// Registry maps running job IDs to their cancel functions. A job cancelled
// before a worker picks it up is remembered so it never starts.
type Registry struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
	pending map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		running: make(map[string]context.CancelFunc),
		pending: make(map[string]struct{}),
	}
}

// Register records cancel for jobID. It reports true, after calling cancel,
// when the job was cancelled before it started.
func (r *Registry) Register(jobID string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[jobID]; ok {
		delete(r.pending, jobID)
		cancel()
		return true
	}
	r.running[jobID] = cancel
	return false
}

// Done forgets jobID once its worker has finished it.
func (r *Registry) Done(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, jobID)
}

// Cancel stops jobID if it is running, or marks it so Register refuses it
// later. It reports whether the job was running.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.running[jobID]; ok {
		cancel()
		return true
	}
	r.pending[jobID] = struct{}{}
	return false
}
