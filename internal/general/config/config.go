package config

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`
	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		VHost    string `yaml:"vhost"`

		Heartbeat           time.Duration `yaml:"heartbeat"`
		ReconnectMaxBackoff time.Duration `yaml:"reconnect_max_backoff"`
	} `yaml:"rabbitmq"`
	// Redis is optional; an empty addr disables the presence mirror.
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		GeoKey   string `yaml:"geo_key"`
	} `yaml:"redis"`
	Server struct {
		Port            int           `yaml:"port"`
		MaxConcurrent   int           `yaml:"max_concurrent"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	JWT struct {
		SecretKey string        `yaml:"secret_key"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"jwt"`
	Dispatch struct {
		OutboundBuffer     int           `yaml:"outbound_buffer"`
		AuthTimeout        time.Duration `yaml:"auth_timeout"`
		PresenceTTL        time.Duration `yaml:"presence_ttl"`
		SweepInterval      time.Duration `yaml:"sweep_interval"`
		CandidatePolicy    string        `yaml:"candidate_policy"`
		NearestK           int           `yaml:"nearest_k"`
		NearestRadiusMiles float64       `yaml:"nearest_radius_miles"`
		EffectWorkers      int           `yaml:"effect_workers"`
		EffectQueueSize    int           `yaml:"effect_queue_size"`
		EffectTimeout      time.Duration `yaml:"effect_timeout"`
	} `yaml:"dispatch"`
	Pricing struct {
		BaseFare       float64 `yaml:"base_fare"`
		PerMile        float64 `yaml:"per_mile"`
		MinutesPerMile float64 `yaml:"minutes_per_mile"`
		Currency       string  `yaml:"currency"`
	} `yaml:"pricing"`
	Log struct {
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

// Load decodes YAML from r. ${VAR} references are expanded from the environment
// before decoding; unknown keys are rejected.
func Load(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// RabbitURL builds the AMQP URL for the configured broker.
func (c *Config) RabbitURL() string {
	vhost := strings.TrimPrefix(c.RabbitMQ.VHost, "/")
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port, vhost)
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.Heartbeat == 0 {
		cfg.RabbitMQ.Heartbeat = 10 * time.Second
	}
	if cfg.RabbitMQ.ReconnectMaxBackoff == 0 {
		cfg.RabbitMQ.ReconnectMaxBackoff = 30 * time.Second
	}

	// Redis
	if cfg.Redis.GeoKey == "" {
		cfg.Redis.GeoKey = "geo:drivers"
	}

	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.MaxConcurrent == 0 {
		cfg.Server.MaxConcurrent = 100
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// JWT
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 2 * time.Hour
	}
	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}

	// Dispatch
	if cfg.Dispatch.OutboundBuffer == 0 {
		cfg.Dispatch.OutboundBuffer = 64
	}
	if cfg.Dispatch.AuthTimeout == 0 {
		cfg.Dispatch.AuthTimeout = 5 * time.Second
	}
	if cfg.Dispatch.SweepInterval == 0 {
		cfg.Dispatch.SweepInterval = 30 * time.Second
	}
	if cfg.Dispatch.CandidatePolicy == "" {
		cfg.Dispatch.CandidatePolicy = "all"
	}
	if cfg.Dispatch.NearestK == 0 {
		cfg.Dispatch.NearestK = 5
	}
	if cfg.Dispatch.EffectWorkers == 0 {
		cfg.Dispatch.EffectWorkers = 4
	}
	if cfg.Dispatch.EffectQueueSize == 0 {
		cfg.Dispatch.EffectQueueSize = 256
	}
	if cfg.Dispatch.EffectTimeout == 0 {
		cfg.Dispatch.EffectTimeout = 10 * time.Second
	}

	// Pricing
	if cfg.Pricing.BaseFare == 0 {
		cfg.Pricing.BaseFare = 2.50
	}
	if cfg.Pricing.PerMile == 0 {
		cfg.Pricing.PerMile = 1.75
	}
	if cfg.Pricing.MinutesPerMile == 0 {
		cfg.Pricing.MinutesPerMile = 2
	}
	if cfg.Pricing.Currency == "" {
		cfg.Pricing.Currency = "usd"
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database is required")
	}
	if c.Database.MaxConns < 0 {
		problems = append(problems, "database.max_conns must be >= 0")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}
	if c.RabbitMQ.Heartbeat < 0 {
		problems = append(problems, "rabbitmq.heartbeat must be >= 0")
	}
	if c.RabbitMQ.ReconnectMaxBackoff < 0 {
		problems = append(problems, "rabbitmq.reconnect_max_backoff must be >= 0")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be in 1..65535")
	}
	if c.Server.MaxConcurrent < 1 {
		problems = append(problems, "server.max_concurrent must be >= 1")
	}

	// JWT
	if c.JWT.TTL < 0 {
		problems = append(problems, "jwt.ttl must be positive")
	}

	// Dispatch
	if c.Dispatch.OutboundBuffer < 1 {
		problems = append(problems, "dispatch.outbound_buffer must be >= 1")
	}
	if c.Dispatch.PresenceTTL < 0 {
		problems = append(problems, "dispatch.presence_ttl must be >= 0")
	}
	if c.Dispatch.SweepInterval < 0 {
		problems = append(problems, "dispatch.sweep_interval must be >= 0")
	}
	switch c.Dispatch.CandidatePolicy {
	case "all", "nearest":
	default:
		problems = append(problems, "dispatch.candidate_policy must be one of: all, nearest")
	}
	if c.Dispatch.NearestRadiusMiles < 0 {
		problems = append(problems, "dispatch.nearest_radius_miles must be >= 0")
	}
	if c.Dispatch.EffectWorkers < 1 {
		problems = append(problems, "dispatch.effect_workers must be >= 1")
	}
	if c.Dispatch.EffectQueueSize < 1 {
		problems = append(problems, "dispatch.effect_queue_size must be >= 1")
	}
	if c.Dispatch.EffectTimeout < 0 {
		problems = append(problems, "dispatch.effect_timeout must be >= 0")
	}

	// Pricing
	if c.Pricing.BaseFare < 0 || c.Pricing.PerMile < 0 {
		problems = append(problems, "pricing.base_fare and pricing.per_mile must be >= 0")
	}
	if c.Pricing.MinutesPerMile < 0 {
		problems = append(problems, "pricing.minutes_per_mile must be >= 0")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
