package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "github.com/dkeye/calla/internal/adapters/http"
	"github.com/dkeye/calla/internal/app"
	"github.com/dkeye/calla/internal/app/orch"
	"github.com/dkeye/calla/internal/app/sfu"
	"github.com/dkeye/calla/internal/conference"
	"github.com/dkeye/calla/internal/config"
	"github.com/dkeye/calla/internal/devices"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFlagsBindIntoConfig(t *testing.T) {
	v := config.New()
	root := NewRootCommand(v)

	join, _, err := root.Find([]string{"join"})
	require.NoError(t, err)
	require.NoError(t, join.Flags().Set("room", "attic"))
	require.NoError(t, join.Flags().Set("codec", "msgpack"))
	require.NoError(t, root.PersistentFlags().Set("server", "ws://relay:9000/api/ws/signal"))

	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "attic", cfg.Client.Room)
	assert.Equal(t, "msgpack", cfg.Client.Codec)
	assert.Equal(t, "ws://relay:9000/api/ws/signal", cfg.Client.ServerURL)
}

func TestDevicesView(t *testing.T) {
	devs := []devices.Device{
		{ID: "default", Kind: domain.DeviceAudioInput, Label: "Built-in"},
		{ID: "usb-mic", Kind: domain.DeviceAudioInput, Label: "USB"},
		{ID: "cam0", Kind: domain.DeviceVideoInput},
	}
	out := DevicesView(devs, map[domain.DeviceKind]string{domain.DeviceAudioInput: "usb-mic"})
	assert.Contains(t, out, "usb-mic")
	assert.Contains(t, out, "no permission")
	assert.Equal(t, 1, strings.Count(out, "✓"))

	assert.Contains(t, DevicesView(nil, nil), "No devices")
}

func TestEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &eventPrinter{w: &buf, now: func() time.Time { return time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC) }}
	p.print(conference.UserMoved{ID: "bob", Pose: domain.NewPose(1, 2, 3)})
	p.print(conference.MuteStatusChanged{ID: "bob", Kind: domain.MediaAudio, Muted: true})

	out := buf.String()
	assert.Contains(t, out, "12:30:00")
	assert.Contains(t, out, "userMoved")
	assert.Contains(t, out, "(1.00, 2.00, 3.00)")
	assert.Contains(t, out, "audioMuteStatusChanged")
	assert.Contains(t, out, "bob audio muted")
}

func TestRunJoinAgainstRelay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewServer()
	o := orch.New(app.NewRegistry(), app.NewRoomManager(m), app.SimplePolicy{}, sfu.NewRelayManager(m), m)
	srv := httptest.NewServer(router.SetupRouter(context.Background(), config.ServerConfig{Mode: "test", Secret: "test"}, o))
	t.Cleanup(srv.Close)

	cfg, err := config.LoadFrom(config.New())
	require.NoError(t, err)
	cfg.Server.STUN = nil
	cfg.Client.ServerURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	cfg.Client.Room = "porch"
	cfg.Client.DisplayName = "eve"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runJoin(ctx, out, cfg, joinOptions{pose: domain.NewPose(1, 0, 2)}) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "videoConferenceJoined")
	}, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "as eve")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("join did not return")
	}
}
