package recognizer

import (
	"log"
	"sync"
)

// asyncWriter runs persistence tasks off the recognition hot path. A
// single goroutine drains the queue so store writes stay ordered.
type asyncWriter struct {
	tasks chan func()
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newAsyncWriter(buffer int) *asyncWriter {
	w := &asyncWriter{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for task := range w.tasks {
			task()
		}
	}()
	return w
}

// submit queues a task. When the queue is full the task runs inline, a
// frame of latency beats losing a detection record.
func (w *asyncWriter) submit(task func()) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		task()
		return
	}
	select {
	case w.tasks <- task:
		w.mu.Unlock()
	default:
		w.mu.Unlock()
		log.Printf("write queue full, running task inline")
		task()
	}
}

// Close drains all queued tasks and stops the worker.
func (w *asyncWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.tasks)
	w.mu.Unlock()
	<-w.done
}
