package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"keyadmin/lib/validate"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env:"LISTEN_BIND_IP" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env:"LISTEN_PORT" env-default:"8080"`
	// request timeout in seconds
	Timeout int `yaml:"timeout" env:"LISTEN_TIMEOUT" env-default:"30" validate:"gte=1"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	URL          string        `yaml:"url" env:"REDIS_URL" env-default:"redis://localhost:6379/0" validate:"required_if=Enabled true"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
}

type StoreConfig struct {
	DataDir   string `yaml:"data_dir" env:"STORE_DATA_DIR" env-default:"data" validate:"required"`
	KeyPrefix string `yaml:"key_prefix" env:"STORE_KEY_PREFIX" env-default:"exhub"`
}

type TokenConfig struct {
	Prefix string `yaml:"prefix" env:"TOKEN_PREFIX" env-default:"EXHUB"`
}

type PurgeConfig struct {
	// any: account OR token match removes a session entry; both: AND
	SessionMatch string `yaml:"session_match" env:"PURGE_SESSION_MATCH" env-default:"any" validate:"oneof=any both"`
}

type MongoConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Host     string `yaml:"host" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:"admin"`
	Password string `yaml:"password" env-default:"pass"`
	Database string `yaml:"database" env-default:""`
}

type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled" env-default:"false"`
	ApiKey   string  `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:"" validate:"required_if=Enabled true"`
	AdminIds []int64 `yaml:"admin_ids"`
	// minimum slog level forwarded to admin chats: debug, info, warn, error
	MinLevel string `yaml:"min_level" env-default:"error" validate:"oneof=debug info warn error"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env-default:"true"`
}

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local" validate:"oneof=local dev prod"`
	Listen   Listen         `yaml:"listen"`
	Redis    RedisConfig    `yaml:"redis"`
	Store    StoreConfig    `yaml:"store"`
	Token    TokenConfig    `yaml:"token"`
	Purge    PurgeConfig    `yaml:"purge"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Telegram TelegramConfig `yaml:"telegram"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	once.Do(func() {
		conf, err := Load(path)
		if err != nil {
			log.Fatal(err)
		}
		instance = conf
	})
	return instance
}

// Load reads the YAML file at path, applies environment overrides and checks
// the result.
func Load(path string) (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}
	if err := validate.Struct(conf); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return conf, nil
}
