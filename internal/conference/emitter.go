package conference

import (
	"sync"

	"github.com/dkeye/calla/internal/domain"
)

// Listener receives application events on the session loop. It must return promptly
// and must not call Session methods that wait for the loop.
type Listener func(Event)

type emitter struct {
	mu        sync.RWMutex
	listeners map[EventName][]Listener
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[EventName][]Listener)}
}

func (e *emitter) on(name EventName, fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], fn)
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	fns := e.listeners[ev.Name()]
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// waiter is a one-shot predicate over dispatched events.
type waiter struct {
	name EventName
	try  func(Event) bool
}

type waiters struct {
	mu   sync.Mutex
	next uint64
	set  map[uint64]*waiter
}

func (w *waiters) add(name EventName, try func(Event) bool) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.set == nil {
		w.set = make(map[uint64]*waiter)
	}
	w.next++
	w.set[w.next] = &waiter{name: name, try: try}
	return w.next
}

func (w *waiters) remove(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.set, id)
}

// notify offers ev to matching waiters and drops those it satisfied.
func (w *waiters) notify(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, wt := range w.set {
		if wt.name == ev.Name() && wt.try(ev) {
			delete(w.set, id)
		}
	}
}

// rewriteLocal replaces a local alias with the session's identity.
func rewriteLocal(ev Event, local domain.ParticipantID) Event {
	pe, ok := ev.(participantEvent)
	if !ok || !pe.Participant().IsLocalAlias() {
		return ev
	}
	return pe.withParticipant(local)
}
