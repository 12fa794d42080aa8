// Package sync reconciles the engine's event feed for one session into
// the durable entity tables, one handler per entity family. Handlers
// run concurrently across families and sessions; events within one
// family for one session are applied in delivery order.
package sync

import (
	"sync"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/lock"
	"github.com/matheus3301/wagate/internal/store"
	"go.uber.org/zap"
)

// Emitter re-publishes externally visible changes, tagged with a
// success or error status.
type Emitter interface {
	Emit(event, sessionID string, data any)
	EmitError(event, sessionID, message string)
}

// Handler is one attachable entity-family handler.
type Handler interface {
	Attach()
	Detach()
}

// Registry owns the sync handlers for one session.
type Registry struct {
	handlers []Handler
}

// NewRegistry builds the chat, contact, message and group handlers for
// a session.
func NewRegistry(sessionID string, db *store.DB, b *bus.Bus, emitter Emitter, logger *zap.Logger) *Registry {
	logger = logger.With(zap.String("session", sessionID))
	return &Registry{
		handlers: []Handler{
			NewChatHandler(sessionID, db, b, emitter, logger),
			NewContactHandler(sessionID, db, b, emitter, logger),
			NewMessageHandler(sessionID, db, b, emitter, logger),
			NewGroupHandler(sessionID, db, b, emitter, logger, lock.NewKeyed()),
		},
	}
}

// Attach subscribes every handler to the session's event feed.
// Idempotent.
func (r *Registry) Attach() {
	for _, h := range r.handlers {
		h.Attach()
	}
}

// Detach unsubscribes every handler and waits for in-flight events to
// drain. Idempotent.
func (r *Registry) Detach() {
	for _, h := range r.handlers {
		h.Detach()
	}
}

// subscriber manages one handler's bus subscription and its delivery
// goroutine.
type subscriber struct {
	mu   sync.Mutex
	sub  *bus.Subscription
	quit chan struct{}
	done chan struct{}
}

func (s *subscriber) attach(b *bus.Bus, handle func(bus.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return
	}
	s.sub = b.Subscribe("", 256)
	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	go func(sub *bus.Subscription, quit, done chan struct{}) {
		defer close(done)
		for {
			select {
			case evt := <-sub.C:
				handle(evt)
			case <-quit:
				return
			}
		}
	}(s.sub, s.quit, s.done)
}

func (s *subscriber) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return
	}
	s.sub.Close()
	close(s.quit)
	<-s.done
	s.sub = nil
}

// fanOut applies fn to every item concurrently. It returns the items
// that were applied successfully and the errors of those that failed,
// so callers can treat "at least one success" and "report every
// failure" as distinct behaviors.
func fanOut[T any](items []T, fn func(T) error) (applied []T, errs []error) {
	results := make([]error, len(items))
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fn(items[i])
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			errs = append(errs, err)
		} else {
			applied = append(applied, items[i])
		}
	}
	return applied, errs
}
