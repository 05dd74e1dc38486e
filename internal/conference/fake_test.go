package conference

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

type fakeStream string

func (s fakeStream) ID() string { return string(s) }

type fakeTrack struct {
	id     string
	owner  domain.ParticipantID
	kind   domain.MediaKind
	local  bool
	device string
	tr     *fakeTransport

	mu        sync.Mutex
	muted     bool
	disposed  int
	onDispose func()
}

func (t *fakeTrack) ID() string                        { return t.id }
func (t *fakeTrack) Participant() domain.ParticipantID { return t.owner }
func (t *fakeTrack) Kind() domain.MediaKind            { return t.kind }
func (t *fakeTrack) IsLocal() bool                     { return t.local }
func (t *fakeTrack) Stream() transport.Stream          { return fakeStream("stream-" + t.id) }

func (t *fakeTrack) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *fakeTrack) SetMuted(muted bool) error {
	t.mu.Lock()
	t.muted = muted
	t.mu.Unlock()
	if t.tr != nil {
		t.tr.emit(transport.TrackMuteChanged{Track: t, Muted: muted})
	}
	return nil
}

func (t *fakeTrack) Dispose() error {
	t.mu.Lock()
	t.disposed++
	fn := t.onDispose
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (t *fakeTrack) Disposed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

type sentMessage struct {
	to   domain.ParticipantID
	data []byte
}

type fakeTransport struct {
	mu      sync.Mutex
	handler transport.Handler
	sent    []sentMessage
	ops     []string
	created []*fakeTrack
	onSend  func(to domain.ParticipantID, data []byte)
	seq     int
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (f *fakeTransport) SetHandler(h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeTransport) emit(ev transport.Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(ev)
}

func (f *fakeTransport) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeTransport) Connect(context.Context) error {
	f.emit(transport.Connected{})
	return nil
}

func (f *fakeTransport) Join(_ context.Context, room, name string) error {
	f.record("join " + room)
	return nil
}

func (f *fakeTransport) Leave(context.Context) error {
	f.emit(transport.LeftConference{})
	return nil
}

func (f *fakeTransport) SetDisplayName(name string) error {
	f.record("rename " + name)
	return nil
}

func (f *fakeTransport) SendMessage(to domain.ParticipantID, data []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{to: to, data: data})
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(to, data)
	}
	return nil
}

func (f *fakeTransport) CreateLocalTrack(_ context.Context, kind domain.MediaKind, deviceID string) (transport.Track, error) {
	f.mu.Lock()
	f.seq++
	t := &fakeTrack{
		id:     fmt.Sprintf("local-%s-%d", kind, f.seq),
		owner:  domain.LocalParticipant,
		kind:   kind,
		local:  true,
		device: deviceID,
		tr:     f,
	}
	f.created = append(f.created, t)
	f.ops = append(f.ops, "create "+string(kind)+" "+deviceID)
	f.mu.Unlock()
	return t, nil
}

func (f *fakeTransport) AddTrack(_ context.Context, t transport.Track) error {
	f.record("add " + t.ID())
	f.emit(transport.TrackAdded{Track: t})
	return nil
}

func (f *fakeTransport) RemoveTrack(_ context.Context, t transport.Track) error {
	f.record("remove " + t.ID())
	f.emit(transport.TrackRemoved{Track: t})
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeTransport) Created() []*fakeTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTrack(nil), f.created...)
}

func (f *fakeTransport) setOnSend(fn func(domain.ParticipantID, []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSend = fn
}

func (f *fakeTransport) resetSent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) Names() []EventName {
	var out []EventName
	for _, ev := range r.Events() {
		out = append(out, ev.Name())
	}
	return out
}

func listenAll(t *testing.T, s *Session) *recorder {
	t.Helper()
	r := &recorder{}
	for _, n := range SupportedEvents() {
		require.NoError(t, s.AddEventListener(string(n), r.add))
	}
	return r
}

func startSession(t *testing.T, opts ...Option) (*Session, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	opts = append([]Option{WithTimeouts(200*time.Millisecond, 200*time.Millisecond)}, opts...)
	s := New(tr, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s, tr
}

// settle waits until everything queued on the loop so far has run.
func settle(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.exec(context.Background(), func() {}))
}

func joinAs(t *testing.T, s *Session, tr *fakeTransport, local domain.ParticipantID, peers ...domain.ParticipantID) {
	t.Helper()
	tr.emit(transport.JoinedConference{LocalID: local, DisplayName: "me"})
	for _, p := range peers {
		tr.emit(transport.PeerJoined{ID: p, DisplayName: string(p)})
	}
	settle(t, s)
}
