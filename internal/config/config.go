package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	TokenURL   string   `mapstructure:"token_url"`
	SignalURL  string   `mapstructure:"signal_url"`
	ICEServers []string `mapstructure:"ice_servers"`

	Room       string `mapstructure:"room"`
	RoomPrefix string `mapstructure:"room_prefix"`
	UserPrefix string `mapstructure:"user_prefix"`
	Language   string `mapstructure:"language"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RPCTimeout     time.Duration `mapstructure:"rpc_timeout"`
	RPCRateLimit   int           `mapstructure:"rpc_rate_limit"`
	PromptDelay    time.Duration `mapstructure:"prompt_delay"`

	AudioFile  string `mapstructure:"audio_file"`
	AudioLoop  bool   `mapstructure:"audio_loop"`
	RecordPath string `mapstructure:"record_path"`

	Redis RedisConfig `mapstructure:"redis"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "30s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("token_url", "http://localhost:3000")
	v.SetDefault("signal_url", "ws://localhost:7880/signal")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("room", "")
	v.SetDefault("room_prefix", domain.DefaultRoomPrefix)
	v.SetDefault("user_prefix", domain.DefaultUserPrefix)
	v.SetDefault("language", string(domain.LanguageEnglish))

	v.SetDefault("connect_timeout", "15s")
	v.SetDefault("rpc_timeout", "10s")
	v.SetDefault("rpc_rate_limit", 20)
	v.SetDefault("prompt_delay", "1s")

	v.SetDefault("audio_file", "")
	v.SetDefault("audio_loop", true)
	v.SetDefault("record_path", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "1h")
	v.SetDefault("redis.key_prefix", "voiceagent:results:")
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults.
// VOICE_* environment variables override both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("VOICE")
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("signal_url", cfg.SignalURL).
		Str("token_url", cfg.TokenURL).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.TokenURL == "" {
		errs = append(errs, errors.New("token_url is required"))
	}
	if c.SignalURL == "" {
		errs = append(errs, errors.New("signal_url is required"))
	}
	if _, err := domain.ParseLanguage(c.Language); err != nil {
		errs = append(errs, fmt.Errorf("language %q: %w", c.Language, err))
	}
	if c.Room != "" {
		if err := domain.ValidateHint(c.Room); err != nil {
			errs = append(errs, fmt.Errorf("room: %w", err))
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	return errors.Join(errs...)
}
