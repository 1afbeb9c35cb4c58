package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/ChatCall/internal/adapters/rtc"
)

const envPrefix = "CHATCALL"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	SendBuffer int           `mapstructure:"send_buffer"`

	Log     LogConfig       `mapstructure:"log"`
	Auth    AuthConfig      `mapstructure:"auth"`
	DB      DBConfig        `mapstructure:"db"`
	Uploads UploadsConfig   `mapstructure:"uploads"`
	Redis   RedisConfig     `mapstructure:"redis"`
	Call    CallConfig      `mapstructure:"call"`
	HTTP    HTTPConfig      `mapstructure:"http"`
	ICE     []rtc.ICEServer `mapstructure:"ice_servers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// AuthConfig selects where a connection's identity comes from: the userId
// query parameter ("query") or the signed session cookie ("session").
type AuthConfig struct {
	Mode string `mapstructure:"mode"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type UploadsConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// RedisConfig enables the presence mirror when URL is set.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Channel  string `mapstructure:"channel"`
	Instance string `mapstructure:"instance"`
}

type CallConfig struct {
	RingTimeout   time.Duration `mapstructure:"ring_timeout"`
	InviteLimit   int           `mapstructure:"invite_limit"`
	InviteWindow  time.Duration `mapstructure:"invite_window"`
	ICEWarnWindow time.Duration `mapstructure:"ice_warn_window"`
}

type HTTPConfig struct {
	RateRPS   float64 `mapstructure:"rate_rps"`
	RateBurst int     `mapstructure:"rate_burst"`
}

const (
	AuthQuery   = "query"
	AuthSession = "session"
)

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if it exists, applies defaults and CHATCALL_*
// environment overrides, then validates the result.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.ICE) == 0 {
		cfg.ICE = rtc.DefaultICEServers()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("static", cfg.StaticPath).Str("auth", cfg.Auth.Mode).Bool("redis", cfg.Redis.URL != "").Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("send_buffer", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
	v.SetDefault("auth.mode", AuthQuery)
	v.SetDefault("db.path", "./data/chatcall.db")
	v.SetDefault("uploads.dir", "./data/uploads")
	v.SetDefault("uploads.max_bytes", 10<<20)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "chatcall:presence")
	v.SetDefault("redis.instance", "")

	v.SetDefault("call.ring_timeout", "0s")
	v.SetDefault("call.invite_limit", 10)
	v.SetDefault("call.invite_window", "1m")
	v.SetDefault("call.ice_warn_window", "10s")

	v.SetDefault("http.rate_rps", 5.0)
	v.SetDefault("http.rate_burst", 20)
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.PingPeriod <= 0:
		return fmt.Errorf("ping_period must be positive, got %s", c.PingPeriod)
	case c.ReadLimit <= 0:
		return fmt.Errorf("read_limit must be positive, got %d", c.ReadLimit)
	case c.Call.RingTimeout < 0, c.Call.InviteWindow < 0, c.Call.ICEWarnWindow < 0:
		return errors.New("call durations must not be negative")
	case c.Auth.Mode != AuthQuery && c.Auth.Mode != AuthSession:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	case c.HTTP.RateRPS < 0:
		return fmt.Errorf("http.rate_rps must not be negative")
	}
	for i, s := range c.ICE {
		if len(s.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d]: %w", i, rtc.ErrNoICEServerURL)
		}
	}
	return nil
}
