package landmark

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrIngestorActive is returned when a session already has a streaming ingestor.
var ErrIngestorActive = errors.New("landmark ingestor already active for session")

// ErrSessionFinishing is returned when a session is being finished and accepts no new writer.
var ErrSessionFinishing = errors.New("session is finishing")

type ingestion struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry tracks the active ingestor of each session. A session has at most one writer,
// and a finishing session can ask its writer to flush and stop.
type Registry struct {
	mu        sync.Mutex
	active    map[string]*ingestion
	finishing map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		active:    make(map[string]*ingestion),
		finishing: make(map[string]int),
	}
}

// Acquire registers the caller as the session's ingestor. The returned context is cancelled
// when Close is called for the session; release must be called once the ingestor stopped writing.
func (r *Registry) Acquire(parent context.Context, sessionID string) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finishing[sessionID] > 0 {
		return nil, nil, ErrSessionFinishing
	}
	if _, ok := r.active[sessionID]; ok {
		return nil, nil, ErrIngestorActive
	}
	ctx, cancel := context.WithCancel(parent)
	ing := &ingestion{cancel: cancel, done: make(chan struct{})}
	r.active[sessionID] = ing

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			if r.active[sessionID] == ing {
				delete(r.active, sessionID)
			}
			r.mu.Unlock()
			cancel()
			close(ing.done)
		})
	}
	return ctx, release, nil
}

// Hold refuses new ingestors for the session until the returned resume func is called.
// Holds nest: the session accepts writers again once every hold was resumed.
func (r *Registry) Hold(sessionID string) (resume func()) {
	r.mu.Lock()
	r.finishing[sessionID]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.finishing[sessionID]--; r.finishing[sessionID] <= 0 {
				delete(r.finishing, sessionID)
			}
		})
	}
}

// Active reports whether the session has a streaming ingestor.
func (r *Registry) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[sessionID]
	return ok
}

// Close stops the session's ingestor, if any, and waits until it released the session.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	ing, ok := r.active[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	ing.cancel()
	select {
	case <-ing.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for landmark ingestor to close")
	}
}
