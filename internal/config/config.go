package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type RateLimit struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Port             int           `mapstructure:"port"`
	AdminPort        int           `mapstructure:"admin_port"`
	LogLevel         string        `mapstructure:"log_level"`
	ReadLimit        int           `mapstructure:"read_limit"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	EchoSelf         bool          `mapstructure:"echo_self"`
	TimestampFormat  string        `mapstructure:"timestamp_format"`
	RateLimit        RateLimit     `mapstructure:"rate_limit"`
}

var defaults = map[string]any{
	"mode":                "release",
	"port":                53000,
	"admin_port":          8080,
	"log_level":           "info",
	"read_limit":          32768,
	"send_buffer":         64,
	"handshake_timeout":   "10s",
	"write_timeout":       "5s",
	"shutdown_timeout":    "5s",
	"echo_self":           false,
	"timestamp_format":    "15:04:05",
	"rate_limit.messages": 10,
	"rate_limit.interval": "1s",
}

// Load resolves configuration from defaults, an optional yaml file, CHAT_*
// environment variables and command-line flags, in increasing precedence.
func Load(args []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	fs := pflag.NewFlagSet("chatrelay", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a yaml config file")
	fs.Int("port", 53000, "TCP chat port")
	fs.Int("admin-port", 8080, "admin HTTP port, 0 disables it")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	for key, flag := range map[string]string{"port": "port", "admin_port": "admin-port", "log_level": "log-level"} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileName := *configFile
	explicit := fileName != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if explicit || !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Int("admin_port", cfg.AdminPort).
		Bool("echo_self", cfg.EchoSelf).
		Msg("config resolved")
	return &cfg, nil
}

func (c *Config) sanitize() {
	reset := func(key string, bad any) {
		log.Warn().Str("module", "config").Str("key", key).Interface("value", bad).Msg("invalid value, using default")
	}

	if c.Port <= 0 || c.Port > 65535 {
		reset("port", c.Port)
		c.Port = defaults["port"].(int)
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		reset("admin_port", c.AdminPort)
		c.AdminPort = defaults["admin_port"].(int)
	}
	if c.ReadLimit <= 0 {
		reset("read_limit", c.ReadLimit)
		c.ReadLimit = defaults["read_limit"].(int)
	}
	if c.SendBuffer <= 0 {
		reset("send_buffer", c.SendBuffer)
		c.SendBuffer = defaults["send_buffer"].(int)
	}
	if c.HandshakeTimeout <= 0 {
		reset("handshake_timeout", c.HandshakeTimeout)
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		reset("write_timeout", c.WriteTimeout)
		c.WriteTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		reset("shutdown_timeout", c.ShutdownTimeout)
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.TimestampFormat == "" {
		c.TimestampFormat = defaults["timestamp_format"].(string)
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		reset("mode", c.Mode)
		c.Mode = "release"
	}
	if c.RateLimit.Messages < 0 {
		reset("rate_limit.messages", c.RateLimit.Messages)
		c.RateLimit.Messages = defaults["rate_limit.messages"].(int)
	}
	if c.RateLimit.Messages > 0 && c.RateLimit.Interval <= 0 {
		reset("rate_limit.interval", c.RateLimit.Interval)
		c.RateLimit.Interval = time.Second
	}
}
