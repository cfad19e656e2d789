package engine

import (
	"log/slog"
	"sync"
)

// dispatcher serializes work items per key while letting distinct keys
// progress concurrently. The router keys work by caller channel id, so
// events for one call never interleave but separate calls do not block
// each other.
type dispatcher struct {
	mu      sync.Mutex
	workers map[string]*worker
}

type worker struct {
	ch chan func()
}

func newDispatcher() *dispatcher {
	return &dispatcher{workers: make(map[string]*worker)}
}

// Submit enqueues fn on the serial queue for key, creating the worker on
// first use. The queue is bounded; a full queue means the call is
// receiving events far faster than it can process them, and the item is
// dropped with an error log rather than blocking the socket read loop.
func (d *dispatcher) Submit(key string, fn func()) {
	d.mu.Lock()
	w, ok := d.workers[key]
	if !ok {
		w = &worker{ch: make(chan func(), 128)}
		d.workers[key] = w
		go w.run()
	}
	select {
	case w.ch <- fn:
	default:
		slog.Error("Dropping work item, per-channel queue full", "channel", key)
	}
	d.mu.Unlock()
}

// Remove retires the worker for key once its queued items drain.
// Safe to call for unknown keys; a later Submit recreates the worker.
func (d *dispatcher) Remove(key string) {
	d.mu.Lock()
	if w, ok := d.workers[key]; ok {
		delete(d.workers, key)
		close(w.ch)
	}
	d.mu.Unlock()
}

func (w *worker) run() {
	for fn := range w.ch {
		fn()
	}
}
