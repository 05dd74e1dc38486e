package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/calla/internal/app"
	"github.com/dkeye/calla/internal/app/orch"
	"github.com/dkeye/calla/internal/app/sfu"
	"github.com/dkeye/calla/internal/config"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
	"github.com/dkeye/calla/internal/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := metrics.NewServer()
	o := orch.New(app.NewRegistry(), app.NewRoomManager(m), app.SimplePolicy{}, sfu.NewRelayManager(m), m)
	cfg := config.ServerConfig{Mode: "test", Secret: "test", MetricsPath: "/metrics"}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, out any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		got, err := protocol.PeekType(data)
		require.NoError(t, err)
		if got == typ {
			require.NoError(t, json.Unmarshal(data, out))
			return
		}
	}
}

func join(t *testing.T, conn *websocket.Conn, room, name string) protocol.RoomState {
	t.Helper()
	send(t, conn, protocol.Join{Type: protocol.TypeJoin, Room: room, Name: name})
	var st protocol.RoomState
	readUntil(t, conn, protocol.TypeRoomState, &st)
	return st
}

func TestRelayRoomFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)

	aliceState := join(t, alice, "lobby", "alice")
	assert.Equal(t, 1, aliceState.Count)
	assert.Equal(t, domain.RoleModerator, aliceState.Self.Role)
	assert.Equal(t, domain.RoomName("lobby"), aliceState.RoomName)

	bobState := join(t, bob, "lobby", "bob")
	assert.Equal(t, 2, bobState.Count)
	assert.Equal(t, domain.RoleParticipant, bobState.Self.Role)
	require.Len(t, bobState.Members, 2)
	assert.Equal(t, "alice", bobState.Members[0].Username)

	var joined protocol.MemberEvent
	readUntil(t, alice, protocol.TypeMemberJoined, &joined)
	assert.Equal(t, bobState.Self.ID, joined.User.ID)

	send(t, bob, protocol.Data{Type: protocol.TypeMessage, Data: []byte("hi")})
	var msg protocol.Data
	readUntil(t, alice, protocol.TypeMessage, &msg)
	assert.Equal(t, bobState.Self.ID, msg.From)
	assert.Equal(t, []byte("hi"), msg.Data)

	send(t, alice, protocol.Data{Type: protocol.TypeMessage, To: bobState.Self.ID, Data: []byte("direct")})
	readUntil(t, bob, protocol.TypeMessage, &msg)
	assert.Equal(t, aliceState.Self.ID, msg.From)
	assert.Equal(t, []byte("direct"), msg.Data)

	send(t, alice, protocol.Mute{Type: protocol.TypeMute, Kind: domain.MediaAudio, Muted: true})
	var muted protocol.TrackMuted
	readUntil(t, bob, protocol.TypeTrackMuted, &muted)
	assert.Equal(t, aliceState.Self.ID, muted.Participant)
	assert.True(t, muted.Muted)
	readUntil(t, alice, protocol.TypeTrackMuted, &muted)
	assert.Equal(t, domain.MediaAudio, muted.Kind)

	send(t, alice, protocol.Simple(protocol.TypeLeave))
	var left protocol.MemberEvent
	readUntil(t, bob, protocol.TypeMemberLeft, &left)
	assert.Equal(t, aliceState.Self.ID, left.User.ID)

	var role protocol.MemberEvent
	readUntil(t, bob, protocol.TypeMemberRole, &role)
	assert.Equal(t, bobState.Self.ID, role.User.ID)
	assert.Equal(t, domain.RoleModerator, role.User.Role)
}

func TestRelayMessageOutsideRoom(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.Data{Type: protocol.TypeMessage, Data: []byte("x")})
	var e protocol.Error
	readUntil(t, conn, protocol.TypeError, &e)
	assert.Equal(t, "not_in_room", e.Error)
}

func TestRelayPingAndWhoAmI(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.Simple(protocol.TypePing))
	var pong protocol.Envelope
	readUntil(t, conn, protocol.TypePong, &pong)

	join(t, conn, "den", "carol")
	send(t, conn, protocol.Simple(protocol.TypeWhoAmI))
	var who protocol.WhoAmI
	readUntil(t, conn, protocol.TypeWhoAmI, &who)
	assert.Equal(t, "carol", who.Username)
	assert.Equal(t, domain.RoomName("den"), who.Room)
	assert.NotEmpty(t, who.ID)
}

func TestRoomsAPIAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	join(t, conn, "attic", "dave")

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	var rooms []struct {
		Name  string `json:"name"`
		Count int    `json:"client_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "attic", rooms[0].Name)
	assert.Equal(t, 1, rooms[0].Count)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "calla_relay_members 1")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/rooms/attic", nil)
	require.NoError(t, err)
	dresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	dresp.Body.Close()
	assert.Equal(t, http.StatusOK, dresp.StatusCode)

	var left protocol.Envelope
	readUntil(t, conn, protocol.TypeLeft, &left)

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/rooms/attic", nil)
	require.NoError(t, err)
	dresp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	dresp.Body.Close()
	assert.Equal(t, http.StatusNotFound, dresp.StatusCode)
}
