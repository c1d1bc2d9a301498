package utils

import (
	"sync"
)

// Registration detaches a handler added to a HandlerSet. Close is idempotent.
type Registration interface {
	Close() error
}

// HandlerSet is a concurrency safe list of callbacks of one event type.
type HandlerSet[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]func(T)
	order    []uint64
}

type registration struct {
	once   sync.Once
	remove func()
}

func (r *registration) Close() error {
	r.once.Do(r.remove)
	return nil
}

// Add registers fn and returns a handle that removes it.
func (hs *HandlerSet[T]) Add(fn func(T)) Registration {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.handlers == nil {
		hs.handlers = map[uint64]func(T){}
	}
	id := hs.nextID
	hs.nextID++
	hs.handlers[id] = fn
	hs.order = append(hs.order, id)
	return &registration{remove: func() { hs.remove(id) }}
}

func (hs *HandlerSet[T]) remove(id uint64) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	delete(hs.handlers, id)
	for i, o := range hs.order {
		if o == id {
			hs.order = append(hs.order[:i], hs.order[i+1:]...)
			break
		}
	}
}

// Len is the number of attached handlers.
func (hs *HandlerSet[T]) Len() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return len(hs.handlers)
}

// Dispatch calls every attached handler with v, in registration order. Handlers run on the
// calling goroutine, outside the set's lock, so a handler may close its own registration.
func (hs *HandlerSet[T]) Dispatch(v T) {
	hs.mu.Lock()
	fns := make([]func(T), 0, len(hs.order))
	for _, id := range hs.order {
		fns = append(fns, hs.handlers[id])
	}
	hs.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
