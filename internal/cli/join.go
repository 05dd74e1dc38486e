package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/calla/internal/adapters/client"
	"github.com/dkeye/calla/internal/adapters/rtc"
	"github.com/dkeye/calla/internal/conference"
	"github.com/dkeye/calla/internal/conference/envelope"
	"github.com/dkeye/calla/internal/config"
	"github.com/dkeye/calla/internal/devices"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
	"github.com/dkeye/calla/internal/spatial"
)

const leaveTimeout = 2 * time.Second

type joinOptions struct {
	pose  domain.Pose
	audio bool
}

func newJoinCommand(v *viper.Viper) *cobra.Command {
	var opts joinOptions
	var x, y, z float64
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room as a headless participant and print its events",
		Example: `  calla join --room lobby --name alice
  calla join --room lobby --name bob --x 2 --z -1 --audio`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(v)
			if err != nil {
				return err
			}
			opts.pose = domain.NewPose(x, y, z)
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runJoin(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}
	f := cmd.Flags()
	f.String("room", "", "room to join")
	_ = v.BindPFlag("client.room", f.Lookup("room"))
	f.String("name", "", "display name")
	_ = v.BindPFlag("client.display_name", f.Lookup("name"))
	f.String("codec", "", "envelope format (json, msgpack)")
	_ = v.BindPFlag("client.codec", f.Lookup("codec"))
	f.String("metrics-addr", "", "serve client metrics on this address")
	_ = v.BindPFlag("client.metrics_addr", f.Lookup("metrics-addr"))
	f.Float64Var(&x, "x", 0, "initial x position")
	f.Float64Var(&y, "y", 0, "initial y position")
	f.Float64Var(&z, "z", 0, "initial z position")
	f.BoolVar(&opts.audio, "audio", false, "publish a microphone track")
	return cmd
}

// newSession wires a conference session over the relay client from cfg.
func newSession(cfg *config.Config, m *metrics.Client) (*conference.Session, *client.Client, error) {
	codec, err := envelope.New(envelope.Format(cfg.Client.Codec))
	if err != nil {
		return nil, nil, err
	}
	sel := spatial.NewSelector(
		spatial.NewHeadlessRenderer(true),
		spatial.WithDistanceModel(spatial.DistanceModel{
			MinDistance: cfg.Client.Spatial.MinDistance,
			MaxDistance: cfg.Client.Spatial.MaxDistance,
			Rolloff:     cfg.Client.Spatial.Rolloff,
		}),
		spatial.WithDegradeHook(m.PanningDegraded),
	)
	tr := client.New(cfg.Client.ServerURL, client.WithWebRTCConfig(rtc.Config(cfg.Server.STUN)))
	sess := conference.New(tr,
		conference.WithCodec(codec),
		conference.WithScene(spatial.NewManager(sel)),
		conference.WithResolver(devices.NewResolver(devices.MediaDevicesSource{}, cfg.Client.DeviceAttempts)),
		conference.WithMetrics(m),
		conference.WithPreferences(preferences(cfg)),
		conference.WithTimeouts(cfg.Client.HandshakeTimeout, cfg.Client.ConfirmTimeout),
	)
	return sess, tr, nil
}

func runJoin(ctx context.Context, out io.Writer, cfg *config.Config, opts joinOptions) error {
	m := metrics.NewClient()
	sess, tr, err := newSession(cfg, m)
	if err != nil {
		return err
	}

	printer := &eventPrinter{w: out, now: time.Now}
	for _, name := range conference.SupportedEvents() {
		if err := sess.AddEventListener(string(name), printer.print); err != nil {
			return err
		}
	}
	joined := make(chan struct{}, 1)
	left := make(chan struct{}, 1)
	_ = sess.AddEventListener(string(conference.EventConferenceJoined), func(conference.Event) {
		select {
		case joined <- struct{}{}:
		default:
		}
	})
	_ = sess.AddEventListener(string(conference.EventConferenceLeft), func(conference.Event) {
		select {
		case left <- struct{}{}:
		default:
		}
	})

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go func() {
		if err := sess.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("module", "cli").Msg("session loop ended")
		}
	}()

	if cfg.Client.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.Client.MetricsAddr, Handler: metrics.Handler(m.Registry())}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("module", "cli").Msg("metrics server")
			}
		}()
		defer srv.Close()
	}

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		_ = tr.Close()
		_ = sess.Close()
		<-sess.Done()
	}()
	if err := sess.Join(ctx, cfg.Client.Room, cfg.Client.DisplayName); err != nil {
		return err
	}

	select {
	case <-joined:
	case <-ctx.Done():
		return nil
	}
	if err := sess.SetLocalPosition(ctx, opts.pose.X, opts.pose.Y, opts.pose.Z); err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	if opts.audio {
		if muted, err := sess.ToggleAudioMuted(ctx); err != nil {
			log.Warn().Err(err).Str("module", "cli").Msg("no microphone track")
		} else {
			log.Info().Str("module", "cli").Bool("muted", muted).Msg("microphone published")
		}
	}

	select {
	case <-ctx.Done():
	case <-left:
		return nil
	}
	leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := sess.Leave(leaveCtx); err != nil {
		log.Warn().Err(err).Str("module", "cli").Msg("leave")
	}
	select {
	case <-left:
	case <-leaveCtx.Done():
	}
	return nil
}
