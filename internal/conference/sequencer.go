package conference

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
)

const (
	stateUnidentified = "unidentified"
	stateIdentified   = "identified"

	eventIdentify = "identify"
	eventForget   = "forget"
)

// Sequencer holds events back until the local identity is known so listeners never
// see a local alias. It is driven from the session loop only.
type Sequencer struct {
	machine  *fsm.FSM
	local    domain.ParticipantID
	queue    []Event
	dispatch func(Event)
	metrics  *metrics.Client
	logger   zerolog.Logger
}

func NewSequencer(dispatch func(Event), m *metrics.Client, logger zerolog.Logger) *Sequencer {
	q := &Sequencer{dispatch: dispatch, metrics: m, logger: logger}
	q.machine = fsm.NewFSM(
		stateUnidentified,
		fsm.Events{
			{Name: eventIdentify, Src: []string{stateUnidentified}, Dst: stateIdentified},
			{Name: eventForget, Src: []string{stateIdentified}, Dst: stateUnidentified},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				q.logger.Debug().Str("from", e.Src).Str("to", e.Dst).Str("local", q.local.String()).Msg("sequencer state")
			},
		},
	)
	return q
}

func (q *Sequencer) Identified() bool { return q.machine.Is(stateIdentified) }

// LocalID is empty until a join has been seen.
func (q *Sequencer) LocalID() domain.ParticipantID { return q.local }

// Buffered is the number of events waiting for identification.
func (q *Sequencer) Buffered() int { return len(q.queue) }

func (q *Sequencer) Push(ev Event) {
	switch e := ev.(type) {
	case ConferenceJoined:
		q.identify(e)
		return
	case ConferenceLeft:
		if q.Identified() {
			q.dispatch(e)
			q.forget()
			return
		}
	}

	if !q.Identified() {
		q.queue = append(q.queue, ev)
		q.metrics.EventBuffered()
		return
	}
	q.dispatch(rewriteLocal(ev, q.local))
}

func (q *Sequencer) identify(e ConferenceJoined) {
	q.local = e.ID
	if q.Identified() {
		q.dispatch(e)
		return
	}
	if err := q.machine.Event(context.Background(), eventIdentify); err != nil {
		q.logger.Error().Err(err).Msg("identify")
	}
	q.dispatch(e)

	pending := q.queue
	q.queue = nil
	for i, ev := range pending {
		if left, ok := ev.(ConferenceLeft); ok {
			q.dispatch(left)
			q.forget()
			q.queue = pending[i+1:]
			return
		}
		q.dispatch(rewriteLocal(ev, q.local))
	}
}

func (q *Sequencer) forget() {
	if err := q.machine.Event(context.Background(), eventForget); err != nil {
		q.logger.Error().Err(err).Msg("forget")
	}
	q.local = ""
}
