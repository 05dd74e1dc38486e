// Package cli is the calla command line: a headless conference participant and a
// device inspector.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/calla/internal/config"
)

// NewRootCommand builds the command tree. Flags are bound into v so config files,
// CALLA_* variables and flags resolve through one place.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "calla",
		Short:         "Spatial audio conference participant",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(v.GetString("log.level"))
		},
	}
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	root.PersistentFlags().String("server", "", "relay websocket URL")
	_ = v.BindPFlag("client.server_url", root.PersistentFlags().Lookup("server"))

	root.AddCommand(newJoinCommand(v), newDevicesCommand(v))
	return root
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCommand(config.New()).Execute(); err != nil {
		PrintError(os.Stderr, err.Error())
		return 1
	}
	return 0
}
