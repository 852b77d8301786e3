package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// TrackerConfig holds the geofence tracking configuration.
type TrackerConfig struct {
	PollEnabled             bool              `yaml:"poll_enabled"`
	PollIntervalSeconds     int               `yaml:"poll_interval_seconds"`
	PollInterval            time.Duration     `yaml:"-"` // Ignored by YAML parser
	PositionSourceURL       string            `yaml:"position_source_url"`
	PositionSourceHeaders   map[string]string `yaml:"position_source_headers"`
	HTTPProxy               string            `yaml:"http_proxy"`
	Timezone                string            `yaml:"timezone"`
	AutoActionTimeoutSecs   int               `yaml:"auto_action_timeout_seconds"`
	AutoActionTimeout       time.Duration     `yaml:"-"`
	EvaluationCooldownSecs  int               `yaml:"evaluation_cooldown_seconds"`
	EvaluationCooldown      time.Duration     `yaml:"-"`
	EntryDelayMinutes       int               `yaml:"entry_delay_minutes"`
	ExitBackdateOption1Mins int               `yaml:"exit_backdate_option1_minutes"`
	ExitBackdateOption2Mins int               `yaml:"exit_backdate_option2_minutes"`
	MinAccuracyMeters       float64           `yaml:"min_accuracy_meters"`
	WorkHoursStart          string            `yaml:"work_hours_start"`
	WorkHoursEnd            string            `yaml:"work_hours_end"`
	AllowOutsideHours       bool              `yaml:"allow_outside_hours"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Tracker.PollIntervalSeconds <= 0 {
		cfg.Tracker.PollIntervalSeconds = 30
	}
	cfg.Tracker.PollInterval = time.Duration(cfg.Tracker.PollIntervalSeconds) * time.Second

	if cfg.Tracker.AutoActionTimeoutSecs <= 0 {
		cfg.Tracker.AutoActionTimeoutSecs = 30
	}
	cfg.Tracker.AutoActionTimeout = time.Duration(cfg.Tracker.AutoActionTimeoutSecs) * time.Second

	if cfg.Tracker.EvaluationCooldownSecs <= 0 {
		cfg.Tracker.EvaluationCooldownSecs = 1
	}
	cfg.Tracker.EvaluationCooldown = time.Duration(cfg.Tracker.EvaluationCooldownSecs) * time.Second

	if cfg.Tracker.EntryDelayMinutes <= 0 {
		cfg.Tracker.EntryDelayMinutes = 10
	}
	if cfg.Tracker.ExitBackdateOption1Mins <= 0 {
		cfg.Tracker.ExitBackdateOption1Mins = 10
	}
	if cfg.Tracker.ExitBackdateOption2Mins <= 0 {
		cfg.Tracker.ExitBackdateOption2Mins = 30
	}
	if cfg.Tracker.MinAccuracyMeters <= 0 {
		cfg.Tracker.MinAccuracyMeters = 100
	}
	if cfg.Tracker.Timezone == "" {
		cfg.Tracker.Timezone = "UTC"
	}
	if cfg.Tracker.WorkHoursStart == "" {
		cfg.Tracker.WorkHoursStart = "05:00"
	}
	if cfg.Tracker.WorkHoursEnd == "" {
		cfg.Tracker.WorkHoursEnd = "22:00"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
