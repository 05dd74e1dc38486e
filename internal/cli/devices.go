package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/calla/internal/config"
	"github.com/dkeye/calla/internal/devices"
	"github.com/dkeye/calla/internal/domain"
)

var deviceKinds = []domain.DeviceKind{domain.DeviceAudioInput, domain.DeviceVideoInput, domain.DeviceAudioOutput}

func newDevicesCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List media devices and the ones calla would use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(v)
			if err != nil {
				return err
			}
			resolver := devices.NewResolver(devices.MediaDevicesSource{}, cfg.Client.DeviceAttempts)
			devs, err := resolver.Enumerate(cmd.Context(), domain.DeviceAudioInput, domain.DeviceVideoInput)
			if err != nil {
				return fmt.Errorf("enumerate devices: %w", err)
			}
			prefs := preferences(cfg)
			chosen := make(map[domain.DeviceKind]string, len(deviceKinds))
			for _, kind := range deviceKinds {
				if d, ok := devices.Resolve(devs, kind, prefs.For(kind), true); ok {
					chosen[kind] = d.ID
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), DevicesView(devs, chosen))
			return nil
		},
	}
	cmd.Flags().String("audio-input", "", "preferred microphone ID")
	_ = v.BindPFlag("client.devices.audio_input", cmd.Flags().Lookup("audio-input"))
	cmd.Flags().String("video-input", "", "preferred camera ID")
	_ = v.BindPFlag("client.devices.video_input", cmd.Flags().Lookup("video-input"))
	return cmd
}

func preferences(cfg *config.Config) devices.Preferences {
	return devices.Preferences{
		AudioInput:  cfg.Client.Devices.AudioInput,
		AudioOutput: cfg.Client.Devices.AudioOutput,
		VideoInput:  cfg.Client.Devices.VideoInput,
	}
}
