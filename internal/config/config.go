package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Matching MatchingConfig `yaml:"matching"`
	Queue    QueueConfig    `yaml:"queue"`
	Session  SessionConfig  `yaml:"session"`
	Points   PointsConfig   `yaml:"points"`
	Rooms    RoomsConfig    `yaml:"rooms"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env-default:""`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

type RedisConfig struct {
	Address   string `yaml:"address" env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"speeddating"`
}

type MatchingConfig struct {
	Window       int           `yaml:"window" env-default:"20"`
	LockTTL      time.Duration `yaml:"lock_ttl" env-default:"30s"`
	PairingTTL   time.Duration `yaml:"pairing_ttl" env-default:"30m"`
	PollInterval time.Duration `yaml:"poll_interval" env-default:"5s"`
}

type QueueConfig struct {
	MaxWait                time.Duration `yaml:"max_wait" env-default:"10m"`
	InactivityThreshold    time.Duration `yaml:"inactivity_threshold" env-default:"2m"`
	HeartbeatSweepInterval time.Duration `yaml:"heartbeat_sweep_interval" env-default:"60s"`
	CleanupInterval        time.Duration `yaml:"cleanup_interval" env-default:"30s"`
	PositionUpdateInterval time.Duration `yaml:"position_update_interval" env-default:"10s"`
}

type SessionConfig struct {
	Duration      time.Duration `yaml:"duration" env-default:"90s"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"5s"`
}

type PointsConfig struct {
	Vibe       int `yaml:"vibe" env-default:"25"`
	MutualVibe int `yaml:"mutual_vibe" env-default:"50"`
	Skip       int `yaml:"skip" env-default:"10"`
	Report     int `yaml:"report" env-default:"0"`
}

type RoomsConfig struct {
	BaseURL     string        `yaml:"base_url" env:"ROOMS_BASE_URL" env-default:"http://localhost:3000"`
	TokenSecret string        `yaml:"token_secret" env:"ROOMS_TOKEN_SECRET"`
	TokenTTL    time.Duration `yaml:"token_ttl" env-default:"5m"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := LoadPath(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func LoadPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, &os.PathError{Op: "config", Path: configPath, Err: os.ErrNotExist}
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Matching.Window < 2 {
		c.Matching.Window = 2
	}
	if c.Rooms.TokenSecret == "" && c.Env == "local" {
		c.Rooms.TokenSecret = "local-room-secret"
	}
}
