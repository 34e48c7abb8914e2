package service

import (
	"context"
	"sync"

	"chat-archive/pkg/metrics"
)

// workerHandle is the cancellation handle of one running worker. done is
// closed after the worker has written its final state.
type workerHandle struct {
	streamID uint
	cancel   context.CancelFunc
	done     chan struct{}
}

type urlLock struct {
	mu   sync.Mutex
	refs int
}

// Registry tracks the running worker of every stream URL and serializes
// lifecycle transitions per URL. One Registry is created at startup and
// shared by everything that starts or stops workers.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*workerHandle
	locks   map[string]*urlLock
}

func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]*workerHandle),
		locks:   make(map[string]*urlLock),
	}
}

// Lock blocks until the caller owns transitions for url. The returned func
// releases it.
func (r *Registry) Lock(url string) func() {
	r.mu.Lock()
	l, ok := r.locks[url]
	if !ok {
		l = &urlLock{}
		r.locks[url] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, url)
		}
		r.mu.Unlock()
	}
}

// register returns false if url already has a worker.
func (r *Registry) register(url string, h *workerHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workers[url]; ok {
		return false
	}
	r.workers[url] = h
	metrics.ActiveWorkers.Set(float64(len(r.workers)))
	return true
}

// Running reports whether url has a registered worker.
func (r *Registry) Running(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[url]
	return ok
}

// take removes and returns the worker of url.
func (r *Registry) take(url string) (*workerHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.workers[url]
	if ok {
		delete(r.workers, url)
		metrics.ActiveWorkers.Set(float64(len(r.workers)))
	}
	return h, ok
}

// release removes h if it is still the worker registered for url.
func (r *Registry) release(url string, h *workerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workers[url] == h {
		delete(r.workers, url)
		metrics.ActiveWorkers.Set(float64(len(r.workers)))
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// drain removes every worker and returns their handles.
func (r *Registry) drain() []*workerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*workerHandle, 0, len(r.workers))
	for url, h := range r.workers {
		out = append(out, h)
		delete(r.workers, url)
	}
	metrics.ActiveWorkers.Set(0)
	return out
}
