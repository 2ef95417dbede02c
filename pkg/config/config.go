package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig      `yaml:"server"`
	MasterDatabase DatabaseConfig    `yaml:"master_database"`
	TenantCache    TenantCacheConfig `yaml:"tenant_cache"`
	Providers      ProvidersConfig   `yaml:"providers"`
	Ledger         LedgerConfig      `yaml:"ledger"`
	Notifier       NotifierConfig    `yaml:"notifier"`
	Settlement     SettlementConfig  `yaml:"settlement"`
	JWT            JWTConfig         `yaml:"jwt"`
	WebSocket      WebSocketConfig   `yaml:"websocket"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
}

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	DBName          string `yaml:"name"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type TenantCacheConfig struct {
	ResolveTTL    time.Duration `yaml:"resolve_ttl"`
	IdleThreshold time.Duration `yaml:"idle_threshold"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	HeaderName    string        `yaml:"header_name"`
	BaseDomain    string        `yaml:"base_domain"`
}

type ProvidersConfig struct {
	Primary  string               `yaml:"primary"`
	Fallback string               `yaml:"fallback"`
	Avista   AvistaProviderConfig `yaml:"avista"`
	Pixefi   PixefiProviderConfig `yaml:"pixefi"`
}

type AvistaProviderConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
}

type PixefiProviderConfig struct {
	BaseURL          string        `yaml:"base_url"`
	ClientID         string        `yaml:"client_id"`
	ClientSecret     string        `yaml:"client_secret"`
	PixKey           string        `yaml:"pix_key"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
}

type LedgerConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Network          string        `yaml:"network"`
	TokenID          string        `yaml:"token_id"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
}

type NotifierConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

type SettlementConfig struct {
	ChargeExpiry       time.Duration `yaml:"charge_expiry"`
	MintWorkers        int           `yaml:"mint_workers"`
	MintQueueSize      int           `yaml:"mint_queue_size"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
	StuckThreshold     time.Duration `yaml:"stuck_threshold"`
	ReconcileBatchSize int           `yaml:"reconcile_batch_size"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	CheckOrigin     bool          `yaml:"check_origin"`
	PingPeriod      time.Duration `yaml:"ping_period"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		return nil, err
	}

	var config Config
	configData, err := os.ReadFile("./config.yaml")
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
