package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	BranchID      string              `yaml:"branch_id"`
	Backend       BackendConfig       `yaml:"backend"`
	Connection    ConnectionConfig    `yaml:"connection"`
	Room          RoomConfig          `yaml:"room"`
	Dedup         DedupConfig         `yaml:"dedup"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Push          PushConfig          `yaml:"push"`
	WorkerPool    WorkerPoolConfig    `yaml:"worker_pool"`
	Mirror        MirrorConfig        `yaml:"mirror"`
}

// BackendConfig describes how to reach the ordering backend.
type BackendConfig struct {
	SocketURL             string            `yaml:"socket_url"`
	APIURL                string            `yaml:"api_url"`
	HTTPProxy             string            `yaml:"http_proxy"`
	Headers               map[string]string `yaml:"headers"`
	RequestTimeoutSeconds int               `yaml:"request_timeout_seconds"`
	RequestTimeout        time.Duration     `yaml:"-"`
}

// ConnectionConfig tunes the realtime socket.
type ConnectionConfig struct {
	ReconnectMinMillis  int           `yaml:"reconnect_min_millis"`
	ReconnectMaxSeconds int           `yaml:"reconnect_max_seconds"`
	PingIntervalSeconds int           `yaml:"ping_interval_seconds"`
	AckTimeoutSeconds   int           `yaml:"ack_timeout_seconds"`
	ReconnectMin        time.Duration `yaml:"-"`
	ReconnectMax        time.Duration `yaml:"-"`
	PingInterval        time.Duration `yaml:"-"`
	AckTimeout          time.Duration `yaml:"-"`
}

// RoomConfig holds kitchen room membership timings.
type RoomConfig struct {
	JoinThrottleSeconds  int           `yaml:"join_throttle_seconds"`
	RetryDelaySeconds    int           `yaml:"retry_delay_seconds"`
	CheckIntervalSeconds int           `yaml:"check_interval_seconds"`
	JoinThrottle         time.Duration `yaml:"-"`
	RetryDelay           time.Duration `yaml:"-"`
	CheckInterval        time.Duration `yaml:"-"`
}

// DedupConfig controls the processed order ledger.
type DedupConfig struct {
	// ResetAfterSeconds is how long the connection must stay down before the ledger is cleared.
	ResetAfterSeconds int           `yaml:"reset_after_seconds"`
	ResetAfter        time.Duration `yaml:"-"`
}

// NotificationsConfig holds the notification list settings.
type NotificationsConfig struct {
	Retention  int    `yaml:"retention"`
	StorageKey string `yaml:"storage_key"`
}

// SnapshotConfig holds the table snapshot refresh settings.
type SnapshotConfig struct {
	Enabled              bool          `yaml:"enabled"`
	TableRefreshSeconds  int           `yaml:"table_refresh_seconds"`
	TableRefreshInterval time.Duration `yaml:"-"`
}

// ServerConfig holds the dashboard server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push cues.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the sizes of the background worker pools.
type WorkerPoolConfig struct {
	Size        int `yaml:"size"`
	EffectsSize int `yaml:"effects_size"`
}

// MirrorConfig configures republishing of ingested events to RabbitMQ.
type MirrorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
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

	if cfg.BranchID == "" {
		return nil, fmt.Errorf("branch_id is required")
	}
	if cfg.Backend.SocketURL == "" || cfg.Backend.APIURL == "" {
		return nil, fmt.Errorf("backend.socket_url and backend.api_url are required")
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Backend.RequestTimeoutSeconds <= 0 {
		cfg.Backend.RequestTimeoutSeconds = 15
	}
	cfg.Backend.RequestTimeout = time.Duration(cfg.Backend.RequestTimeoutSeconds) * time.Second

	if cfg.Connection.ReconnectMinMillis <= 0 {
		cfg.Connection.ReconnectMinMillis = 500
	}
	if cfg.Connection.ReconnectMaxSeconds <= 0 {
		cfg.Connection.ReconnectMaxSeconds = 30
	}
	if cfg.Connection.PingIntervalSeconds <= 0 {
		cfg.Connection.PingIntervalSeconds = 25
	}
	if cfg.Connection.AckTimeoutSeconds <= 0 {
		cfg.Connection.AckTimeoutSeconds = 5
	}
	cfg.Connection.ReconnectMin = time.Duration(cfg.Connection.ReconnectMinMillis) * time.Millisecond
	cfg.Connection.ReconnectMax = time.Duration(cfg.Connection.ReconnectMaxSeconds) * time.Second
	cfg.Connection.PingInterval = time.Duration(cfg.Connection.PingIntervalSeconds) * time.Second
	cfg.Connection.AckTimeout = time.Duration(cfg.Connection.AckTimeoutSeconds) * time.Second

	if cfg.Room.JoinThrottleSeconds <= 0 {
		cfg.Room.JoinThrottleSeconds = 2
	}
	if cfg.Room.RetryDelaySeconds <= 0 {
		cfg.Room.RetryDelaySeconds = 3
	}
	if cfg.Room.CheckIntervalSeconds <= 0 {
		cfg.Room.CheckIntervalSeconds = 30
	}
	cfg.Room.JoinThrottle = time.Duration(cfg.Room.JoinThrottleSeconds) * time.Second
	cfg.Room.RetryDelay = time.Duration(cfg.Room.RetryDelaySeconds) * time.Second
	cfg.Room.CheckInterval = time.Duration(cfg.Room.CheckIntervalSeconds) * time.Second

	if cfg.Dedup.ResetAfterSeconds <= 0 {
		cfg.Dedup.ResetAfterSeconds = 10
	}
	cfg.Dedup.ResetAfter = time.Duration(cfg.Dedup.ResetAfterSeconds) * time.Second

	if cfg.Notifications.Retention <= 0 {
		cfg.Notifications.Retention = 50
	}
	if cfg.Notifications.StorageKey == "" {
		cfg.Notifications.StorageKey = "kitchen_notifications"
	}

	if cfg.Snapshot.TableRefreshSeconds <= 0 {
		cfg.Snapshot.TableRefreshSeconds = 60
	}
	cfg.Snapshot.TableRefreshInterval = time.Duration(cfg.Snapshot.TableRefreshSeconds) * time.Second

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 20
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:kitchen.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.EffectsSize <= 0 {
		cfg.WorkerPool.EffectsSize = 2
	}

	if cfg.Mirror.Exchange == "" {
		cfg.Mirror.Exchange = "kitchen_events"
	}
}
