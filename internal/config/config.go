package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	PprofAddr string `mapstructure:"pprof_addr"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	PollTimeout int    `mapstructure:"poll_timeout"`
	Workers     int    `mapstructure:"workers"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ReferralConfig struct {
	Threshold               int    `mapstructure:"threshold"`
	GroupInviteHash         string `mapstructure:"group_invite_hash"`
	RewardLink              string `mapstructure:"reward_link"`
	RequireVerifiedReferrer bool   `mapstructure:"require_verified_referrer"`
}

type DiagnosticsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Store       StoreConfig       `mapstructure:"store"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Referral    ReferralConfig    `mapstructure:"referral"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.pprof_addr", ":8080")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.workers", 16)
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "gatebot")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "gatebot:")
	v.SetDefault("referral.threshold", 3)
	v.SetDefault("referral.group_invite_hash", "")
	v.SetDefault("referral.reward_link", "")
	v.SetDefault("referral.require_verified_referrer", false)
	v.SetDefault("diagnostics.enabled", false)
	v.SetDefault("diagnostics.interval", time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// LoadConfig reads config.yaml from path, then lets environment variables
// (e.g. TELEGRAM_TOKEN, REFERRAL_THRESHOLD) override any key.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Referral.Threshold < 1 {
		return fmt.Errorf("referral.threshold must be at least 1, got %d", c.Referral.Threshold)
	}
	if c.Telegram.Workers < 1 {
		return fmt.Errorf("telegram.workers must be at least 1, got %d", c.Telegram.Workers)
	}
	if c.Diagnostics.Enabled && c.Diagnostics.Interval <= 0 {
		return errors.New("diagnostics.interval must be positive when diagnostics are enabled")
	}
	return nil
}
