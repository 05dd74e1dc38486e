package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	StaticPath  string        `mapstructure:"static_path"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	Secret      string        `mapstructure:"secret"`
	MetricsPath string        `mapstructure:"metrics_path"`
	JoinLimit   int           `mapstructure:"join_limit"`
	JoinWindow  time.Duration `mapstructure:"join_window"`
	STUN        []string      `mapstructure:"stun"`
}

type ClientConfig struct {
	ServerURL        string        `mapstructure:"server_url"`
	Room             string        `mapstructure:"room"`
	DisplayName      string        `mapstructure:"display_name"`
	Codec            string        `mapstructure:"codec"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout"`
	DeviceAttempts   int           `mapstructure:"device_attempts"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	Devices          DeviceConfig  `mapstructure:"devices"`
	Spatial          SpatialConfig `mapstructure:"spatial"`
}

type DeviceConfig struct {
	AudioInput  string `mapstructure:"audio_input"`
	AudioOutput string `mapstructure:"audio_output"`
	VideoInput  string `mapstructure:"video_input"`
}

type SpatialConfig struct {
	MinDistance float64 `mapstructure:"min_distance"`
	MaxDistance float64 `mapstructure:"max_distance"`
	Rolloff     float64 `mapstructure:"rolloff"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// New returns a viper instance preloaded with defaults and env bindings.
// Callers may bind flags to it before passing it to Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("calla")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_path", "./web")
	v.SetDefault("server.read_limit", 32768)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.join_limit", 5)
	v.SetDefault("server.join_window", "10s")
	v.SetDefault("server.stun", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("client.server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client.room", "main")
	v.SetDefault("client.display_name", "guest")
	v.SetDefault("client.codec", "json")
	v.SetDefault("client.handshake_timeout", "1s")
	v.SetDefault("client.confirm_timeout", "1s")
	v.SetDefault("client.device_attempts", 3)
	v.SetDefault("client.spatial.min_distance", 1.0)
	v.SetDefault("client.spatial.max_distance", 10.0)
	v.SetDefault("client.spatial.rolloff", 1.0)

	v.SetDefault("log.level", "info")
	return v
}

func Load() (*Config, error) {
	return LoadFrom(New())
}

// LoadFrom reads config/config.<CONFIG_ENV>.yaml into v and decodes the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Debug().
		Str("module", "config").
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("codec", cfg.Client.Codec).
		Msg("config resolved")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Client.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("unsupported client.codec %q", c.Client.Codec)
	}
	if c.Client.HandshakeTimeout <= 0 {
		return fmt.Errorf("client.handshake_timeout must be positive")
	}
	if c.Client.DeviceAttempts < 1 {
		return fmt.Errorf("client.device_attempts must be at least 1")
	}
	return nil
}
