package conference

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/calla/internal/domain"
)

// pending is a registered one-shot wait. Register it before triggering the action
// that produces the awaited event.
type pending[T Event] struct {
	s    *Session
	id   uint64
	name EventName
	ch   chan T
}

func expect[T Event](s *Session, name EventName, match func(T) bool) *pending[T] {
	p := &pending[T]{s: s, name: name, ch: make(chan T, 1)}
	p.id = s.waiters.add(name, func(ev Event) bool {
		t, ok := ev.(T)
		if !ok || !match(t) {
			return false
		}
		select {
		case p.ch <- t:
		default:
		}
		return true
	})
	return p
}

// cancel drops the wait; a match arriving afterwards goes nowhere.
func (p *pending[T]) cancel() { p.s.waiters.remove(p.id) }

// wait blocks until the match, the timeout, ctx or the session ends.
func (p *pending[T]) wait(ctx context.Context, timeout time.Duration) (T, error) {
	defer p.cancel()
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case t := <-p.ch:
		p.s.metrics.WaitFinished(string(p.name), true)
		return t, nil
	case <-timer.C:
		p.s.metrics.WaitFinished(string(p.name), false)
		return zero, fmt.Errorf("wait for %s: %w", p.name, domain.ErrTimeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.s.done:
		return zero, domain.ErrClosed
	}
}

// waitFor registers a wait, runs trigger and awaits the first matching event.
// A trigger error cancels the wait.
func waitFor[T Event](ctx context.Context, s *Session, name EventName, match func(T) bool, timeout time.Duration, trigger func() error) (T, error) {
	p := expect(s, name, match)
	if err := trigger(); err != nil {
		p.cancel()
		var zero T
		return zero, err
	}
	return p.wait(ctx, timeout)
}
