// Package config loads fleetd settings from defaults, an optional config
// file, FLEETD_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "FLEETD"

// Keys shared by viper, the config file and the environment.
const (
	KeyHTTPAddr       = "http_addr"
	KeyABCIAddr       = "abci_addr"
	KeyABCITransport  = "abci_transport"
	KeyVictoryTimeout = "victory_timeout"
	KeySweepInterval  = "sweep_interval"
	KeyEventBacklog   = "event_backlog"
	KeyLogLevel       = "log_level"
	KeyOTLPEndpoint   = "otlp_endpoint"
	KeyWSOrigins      = "ws_origins"
)

type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`

	// ABCIAddr enables the CometBFT application server when set.
	ABCIAddr      string `mapstructure:"abci_addr"`
	ABCITransport string `mapstructure:"abci_transport"`

	VictoryTimeout time.Duration `mapstructure:"victory_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	EventBacklog   int           `mapstructure:"event_backlog"`

	LogLevel     string   `mapstructure:"log_level"`
	OTLPEndpoint string   `mapstructure:"otlp_endpoint"`
	WSOrigins    []string `mapstructure:"ws_origins"`
}

func Default() Config {
	return Config{
		HTTPAddr:       ":3001",
		ABCITransport:  "socket",
		VictoryTimeout: 30 * time.Second,
		SweepInterval:  time.Second,
		EventBacklog:   100,
		LogLevel:       "info",
	}
}

// SetDefaults registers every key on v so environment variables are picked
// up by Unmarshal even without a config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyHTTPAddr, d.HTTPAddr)
	v.SetDefault(KeyABCIAddr, d.ABCIAddr)
	v.SetDefault(KeyABCITransport, d.ABCITransport)
	v.SetDefault(KeyVictoryTimeout, d.VictoryTimeout)
	v.SetDefault(KeySweepInterval, d.SweepInterval)
	v.SetDefault(KeyEventBacklog, d.EventBacklog)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyOTLPEndpoint, d.OTLPEndpoint)
	v.SetDefault(KeyWSOrigins, d.WSOrigins)
}

// RegisterFlags adds the serve flags to fs and binds them to v. Flag names
// use dashes, keys use underscores.
func RegisterFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	d := Default()
	fs.String("http-addr", d.HTTPAddr, "HTTP listen address")
	fs.String("abci-addr", d.ABCIAddr, "ABCI listen address, e.g. tcp://127.0.0.1:26658 (empty disables)")
	fs.String("abci-transport", d.ABCITransport, "ABCI transport (socket|grpc)")
	fs.Duration("victory-timeout", d.VictoryTimeout, "victory claim contest window")
	fs.Duration("sweep-interval", d.SweepInterval, "victory claim sweep interval")
	fs.Int("event-backlog", d.EventBacklog, "events buffered per log subscriber")
	fs.String("log-level", d.LogLevel, "log level (debug|info|error|none)")
	fs.String("otlp-endpoint", d.OTLPEndpoint, "OTLP/HTTP trace endpoint URL (empty disables tracing)")
	fs.StringSlice("ws-origins", d.WSOrigins, "origin patterns accepted by the websocket log stream")

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return err
}

// Load reads file (if non-empty) and the environment into a Config.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" && strings.TrimSpace(c.ABCIAddr) == "" {
		return fmt.Errorf("config: at least one of http_addr and abci_addr is required")
	}
	switch c.ABCITransport {
	case "socket", "grpc":
	default:
		return fmt.Errorf("config: abci_transport must be socket or grpc, got %q", c.ABCITransport)
	}
	if c.VictoryTimeout <= 0 {
		return fmt.Errorf("config: victory_timeout must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep_interval must be positive")
	}
	if c.EventBacklog <= 0 {
		return fmt.Errorf("config: event_backlog must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "error", "none":
	default:
		return fmt.Errorf("config: log_level must be debug, info, error or none, got %q", c.LogLevel)
	}
	return nil
}
