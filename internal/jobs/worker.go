package jobs

import (
	"context"
	"log"
	"time"
)

// Task is one unit of periodic background work.
type Task func(ctx context.Context) error

// Worker runs a named task on a fixed interval until stopped.
type Worker struct {
	name     string
	task     Task
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(name string, task Task, interval time.Duration) *Worker {
	return &Worker{
		name:     name,
		task:     task,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the polling loop. Blocks until the context is cancelled or
// Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("worker %s: started (interval %v)", w.name, w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker %s: stopped, context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("worker %s: stopped", w.name)
			return
		case <-ticker.C:
			if err := w.task(ctx); err != nil {
				log.Printf("worker %s: %v", w.name, err)
			}
		}
	}
}

// Stop signals the loop to exit and waits for it to drain.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
