package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/calla/internal/app"
	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
	"github.com/dkeye/calla/internal/protocol"
)

type sink struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (s *sink) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return errors.New("full")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *sink) Close() {}

func (s *sink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames {
		typ, _ := protocol.PeekType(f)
		out = append(out, typ)
	}
	return out
}

func (s *sink) last(t *testing.T, typ string, v any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if got, _ := protocol.PeekType(s.frames[i]); got == typ {
			require.NoError(t, json.Unmarshal(s.frames[i], v))
			return
		}
	}
	t.Fatalf("no %s frame", typ)
}

func newOrch(policy app.Policy) *Orchestrator {
	m := metrics.NewServer()
	return New(app.NewRegistry(), app.NewRoomManager(m), policy, nil, m)
}

func connect(o *Orchestrator, sid core.SessionID, name string) *sink {
	out := &sink{}
	user := o.Registry.GetOrCreateUser(sid)
	_ = o.Registry.UpdateUsername(sid, name)
	ms := core.NewMemberSession(domain.NewMember(user)).UpdateSignal(out)
	o.Registry.BindSignal(sid, ms, nil)
	return out
}

func TestJoinAssignsRoles(t *testing.T) {
	o := newOrch(app.SimplePolicy{})
	a := connect(o, "a", "alice")
	connect(o, "b", "bob")

	room, err := o.Join("a", "lobby")
	require.NoError(t, err)
	_, err = o.Join("b", "lobby")
	require.NoError(t, err)

	members := room.MembersSnapshot()
	require.Len(t, members, 2)
	assert.Equal(t, domain.RoleModerator, members[0].Role)
	assert.Equal(t, domain.RoleParticipant, members[1].Role)
	assert.Equal(t, []string{protocol.TypeMemberJoined}, a.types())
}

func TestJoinUnknownSession(t *testing.T) {
	o := newOrch(nil)
	_, err := o.Join("ghost", "lobby")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestLeavePromotesNextMember(t *testing.T) {
	o := newOrch(nil)
	connect(o, "a", "alice")
	b := connect(o, "b", "bob")
	connect(o, "c", "carol")
	for _, sid := range []core.SessionID{"a", "b", "c"} {
		_, err := o.Join(sid, "lobby")
		require.NoError(t, err)
	}

	require.True(t, o.Leave("a"))
	assert.False(t, o.Leave("a"))

	var role protocol.MemberEvent
	b.last(t, protocol.TypeMemberRole, &role)
	assert.Equal(t, "bob", role.User.Username)
	assert.Equal(t, domain.RoleModerator, role.User.Role)

	room, ok := o.Rooms.Get("lobby")
	require.True(t, ok)
	assert.Equal(t, 2, room.MemberCount())
}

func TestLastLeaveClosesRoom(t *testing.T) {
	o := newOrch(nil)
	connect(o, "a", "alice")
	_, err := o.Join("a", "lobby")
	require.NoError(t, err)

	o.Leave("a")
	_, ok := o.Rooms.Get("lobby")
	assert.False(t, ok)
}

func TestForwardStampsSender(t *testing.T) {
	o := newOrch(nil)
	connect(o, "a", "alice")
	b := connect(o, "b", "bob")
	c := connect(o, "c", "carol")
	for _, sid := range []core.SessionID{"a", "b", "c"} {
		_, err := o.Join(sid, "lobby")
		require.NoError(t, err)
	}
	aliceID := o.Registry.GetOrCreateUser("a").ID
	bobID := o.Registry.GetOrCreateUser("b").ID

	require.NoError(t, o.Forward("a", protocol.Data{From: "forged", To: bobID, Data: []byte("x")}))
	var msg protocol.Data
	b.last(t, protocol.TypeMessage, &msg)
	assert.Equal(t, aliceID, msg.From)
	assert.Empty(t, msg.To)
	assert.NotContains(t, c.types(), protocol.TypeMessage)

	require.NoError(t, o.Forward("a", protocol.Data{Data: []byte("all")}))
	assert.Contains(t, c.types(), protocol.TypeMessage)

	assert.ErrorIs(t, o.Forward("a", protocol.Data{To: "nobody"}), core.ErrNoSuchMember)
	assert.ErrorIs(t, o.Forward("z", protocol.Data{}), domain.ErrNotIdentified)
}

func TestBackpressureKicksSlowMember(t *testing.T) {
	o := newOrch(app.SimplePolicy{})
	connect(o, "a", "alice")
	b := connect(o, "b", "bob")
	for _, sid := range []core.SessionID{"a", "b"} {
		_, err := o.Join(sid, "lobby")
		require.NoError(t, err)
	}
	b.full = true

	require.NoError(t, o.Forward("a", protocol.Data{Data: []byte("x")}))
	_, _, ok := o.Registry.RoomOf("b")
	assert.False(t, ok)
}

func TestBackpressureTolerated(t *testing.T) {
	o := newOrch(app.TolerantPolicy{})
	connect(o, "a", "alice")
	b := connect(o, "b", "bob")
	for _, sid := range []core.SessionID{"a", "b"} {
		_, err := o.Join(sid, "lobby")
		require.NoError(t, err)
	}
	b.full = true

	require.NoError(t, o.Forward("a", protocol.Data{Data: []byte("x")}))
	_, _, ok := o.Registry.RoomOf("b")
	assert.True(t, ok)
}

func TestMuteReachesWholeRoom(t *testing.T) {
	o := newOrch(nil)
	a := connect(o, "a", "alice")
	b := connect(o, "b", "bob")
	for _, sid := range []core.SessionID{"a", "b"} {
		_, err := o.Join(sid, "lobby")
		require.NoError(t, err)
	}

	require.NoError(t, o.Mute("a", domain.MediaVideo, true))
	for _, s := range []*sink{a, b} {
		var ev protocol.TrackMuted
		s.last(t, protocol.TypeTrackMuted, &ev)
		assert.Equal(t, domain.MediaVideo, ev.Kind)
		assert.True(t, ev.Muted)
	}
	_, sess, _ := o.Registry.RoomOf("a")
	assert.True(t, sess.Meta().IsMuted(domain.MediaVideo))

	assert.Error(t, o.Mute("a", "screen", true))
	assert.ErrorIs(t, o.Mute("z", domain.MediaAudio, true), domain.ErrNotIdentified)
}

func TestRenameBroadcastsUpdate(t *testing.T) {
	o := newOrch(nil)
	connect(o, "a", "alice")
	b := connect(o, "b", "bob")
	for _, sid := range []core.SessionID{"a", "b"} {
		_, err := o.Join(sid, "lobby")
		require.NoError(t, err)
	}

	require.NoError(t, o.Rename("a", "alicia"))
	var ev protocol.MemberEvent
	b.last(t, protocol.TypeMemberUpdated, &ev)
	assert.Equal(t, "alicia", ev.User.Username)
	assert.ErrorIs(t, o.Rename("a", ""), domain.ErrUsernameEmpty)
}

func TestEvictRoom(t *testing.T) {
	o := newOrch(nil)
	a := connect(o, "a", "alice")
	connect(o, "b", "bob")
	for _, sid := range []core.SessionID{"a", "b"} {
		_, err := o.Join(sid, "lobby")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, o.EvictRoom("lobby"))
	assert.Contains(t, a.types(), protocol.TypeLeft)
	_, ok := o.Rooms.Get("lobby")
	assert.False(t, ok)
}
