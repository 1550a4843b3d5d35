// Package config loads chanbusd's configuration from flags, environment,
// and an optional TOML file.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every tunable of the broker process.
type Config struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	MaxConnections   int           `mapstructure:"max_connections"` // 0 = probe fd limit
	EgressQueueDepth int           `mapstructure:"egress_queue_depth"`
	MaxFrameSize     int           `mapstructure:"max_frame_size"`
	AcceptThrottle   time.Duration `mapstructure:"accept_throttle"`
	LogLevel         string        `mapstructure:"log_level"`
}

// Defaults mirror spec.md §6 (listen addr) and the ambient-stack section of
// SPEC_FULL.md for everything else.
func Defaults() Config {
	return Config{
		ListenAddr:       "0.0.0.0:6142",
		MetricsAddr:      "",
		MaxConnections:   0,
		EgressQueueDepth: 256,
		MaxFrameSize:     16 << 20,
		AcceptThrottle:   1 * time.Second,
		LogLevel:         "info",
	}
}

// BindFlags registers every config field as a pflag, for use as a cobra
// command's flag set.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	d := Defaults()
	flags.String("addr", d.ListenAddr, "address to listen on, host:port")
	flags.String("metrics-addr", d.MetricsAddr, "address to serve /metrics and /status on; empty disables it")
	flags.Int("max-connections", d.MaxConnections, "cap on concurrent connections; 0 probes the process fd limit")
	flags.Int("egress-queue-depth", d.EgressQueueDepth, "per-peer outbound queue depth before a slow peer is evicted")
	flags.Int("max-frame-size", d.MaxFrameSize, "maximum accepted frame size in bytes")
	flags.Duration("accept-throttle", d.AcceptThrottle, "sleep between admission checks while at the connection cap")
	flags.String("log-level", d.LogLevel, "debug, info, or error")
	flags.String("config", "", "path to an optional TOML config file")

	_ = v.BindPFlag("listen_addr", flags.Lookup("addr"))
	_ = v.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	_ = v.BindPFlag("max_connections", flags.Lookup("max-connections"))
	_ = v.BindPFlag("egress_queue_depth", flags.Lookup("egress-queue-depth"))
	_ = v.BindPFlag("max_frame_size", flags.Lookup("max-frame-size"))
	_ = v.BindPFlag("accept_throttle", flags.Lookup("accept-throttle"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("config", flags.Lookup("config"))
}

// Load resolves the final Config from viper (flags > env > file > defaults)
// and, when a config file was given, re-validates it strictly with
// BurntSushi/toml so unrecognised keys are a hard error instead of a
// silently ignored typo.
func Load(v *viper.Viper) (Config, error) {
	d := Defaults()
	v.SetEnvPrefix("CHANBUS")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("max_connections", d.MaxConnections)
	v.SetDefault("egress_queue_depth", d.EgressQueueDepth)
	v.SetDefault("max_frame_size", d.MaxFrameSize)
	v.SetDefault("accept_throttle", d.AcceptThrottle)
	v.SetDefault("log_level", d.LogLevel)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "config: read %s", path)
		}
		if err := validateStrict(path); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: decode")
	}
	return cfg, nil
}

// validateStrict re-parses the TOML file directly, rejecting keys that
// don't correspond to a known field. Viper's own decode is permissive
// about stray top-level keys; this catches typos in hand-edited configs.
func validateStrict(path string) error {
	var probe struct {
		ListenAddr       *string `toml:"listen_addr"`
		MetricsAddr      *string `toml:"metrics_addr"`
		MaxConnections   *int    `toml:"max_connections"`
		EgressQueueDepth *int    `toml:"egress_queue_depth"`
		MaxFrameSize     *int    `toml:"max_frame_size"`
		AcceptThrottle   *string `toml:"accept_throttle"`
		LogLevel         *string `toml:"log_level"`
	}
	meta, err := toml.DecodeFile(path, &probe)
	if err != nil {
		return errors.Wrapf(err, "config: strict parse %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("config: %s: unrecognised key %q", path, undecoded[0].String())
	}
	return nil
}
