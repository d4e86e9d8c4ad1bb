package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	// HTTP server
	Server ServerConfig `mapstructure:"server"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Fraud classification windows and limits
	Fraud FraudConfig `mapstructure:"fraud"`

	// Click accrual policy
	Accrual AccrualConfig `mapstructure:"accrual"`

	// Commission settlement policy
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// CommissionSecret, when set, enables HMAC signature checks on the
	// sale-confirmation webhook.
	CommissionSecret string `mapstructure:"commission_secret"`
	RateLimitPerMin  int    `mapstructure:"rate_limit_per_min"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

// FraudConfig externalizes the sliding-window heuristics. Zero values are
// replaced with production defaults by ApplyDefaults; changing any of these
// changes affiliate-facing behavior.
type FraudConfig struct {
	WindowMinutes           int `mapstructure:"window_minutes"`
	MaxClicksPerFingerprint int `mapstructure:"max_clicks_per_fingerprint"`
	MaxAffiliatesPerIP      int `mapstructure:"max_affiliates_per_ip"`
	MaxClicksPerIP          int `mapstructure:"max_clicks_per_ip"`
	MinSecondsBetweenClicks int `mapstructure:"min_seconds_between_clicks"`
	MaxClicksPerAffiliate   int `mapstructure:"max_clicks_per_affiliate"`
	MinScreenWidth          int `mapstructure:"min_screen_width"`
	MaxScreenWidth          int `mapstructure:"max_screen_width"`
	MinScreenHeight         int `mapstructure:"min_screen_height"`
	MaxScreenHeight         int `mapstructure:"max_screen_height"`
	// RejectPrivateIPs is enabled in production deployments only; local
	// traffic always comes from private ranges in development.
	RejectPrivateIPs bool `mapstructure:"reject_private_ips"`
}

// Window returns the sliding window as a duration.
func (f FraudConfig) Window() time.Duration {
	return time.Duration(f.WindowMinutes) * time.Minute
}

// MinClickInterval returns the per-IP minimum spacing between valid clicks.
func (f FraudConfig) MinClickInterval() time.Duration {
	return time.Duration(f.MinSecondsBetweenClicks) * time.Second
}

type AccrualConfig struct {
	ClicksPerCredit int    `mapstructure:"clicks_per_credit"`
	CreditUnit      string `mapstructure:"credit_unit"`
}

// CreditUnitAmount parses the configured credit unit into a decimal amount.
func (a AccrualConfig) CreditUnitAmount() decimal.Decimal {
	d, err := decimal.NewFromString(a.CreditUnit)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type SettlementConfig struct {
	Threshold string `mapstructure:"threshold"`
	// SweepIntervalSeconds drives the opportunistic background settlement
	// sweep; 0 disables it.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

// ThresholdAmount parses the configured settlement threshold.
func (s SettlementConfig) ThresholdAmount() decimal.Decimal {
	d, err := decimal.NewFromString(s.Threshold)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset policy values with the production defaults the
// accounting rules were specified against.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerMin == 0 {
		c.Server.RateLimitPerMin = 120
	}

	f := &c.Fraud
	if f.WindowMinutes == 0 {
		f.WindowMinutes = 60
	}
	if f.MaxClicksPerFingerprint == 0 {
		f.MaxClicksPerFingerprint = 3
	}
	if f.MaxAffiliatesPerIP == 0 {
		f.MaxAffiliatesPerIP = 5
	}
	if f.MaxClicksPerIP == 0 {
		f.MaxClicksPerIP = 5
	}
	if f.MinSecondsBetweenClicks == 0 {
		f.MinSecondsBetweenClicks = 60
	}
	if f.MaxClicksPerAffiliate == 0 {
		f.MaxClicksPerAffiliate = 20
	}
	if f.MinScreenWidth == 0 {
		f.MinScreenWidth = 320
	}
	if f.MaxScreenWidth == 0 {
		f.MaxScreenWidth = 7680
	}
	if f.MinScreenHeight == 0 {
		f.MinScreenHeight = 240
	}
	if f.MaxScreenHeight == 0 {
		f.MaxScreenHeight = 4320
	}

	if c.Accrual.ClicksPerCredit == 0 {
		c.Accrual.ClicksPerCredit = 10
	}
	if c.Accrual.CreditUnit == "" {
		c.Accrual.CreditUnit = "0.05"
	}

	if c.Settlement.Threshold == "" {
		c.Settlement.Threshold = "50.00"
	}
	if c.Settlement.SweepIntervalSeconds == 0 {
		c.Settlement.SweepIntervalSeconds = 300
	}
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "APP_PORT")
	v.BindEnv("server.commission_secret", "COMMISSION_WEBHOOK_SECRET")
	v.BindEnv("server.rate_limit_per_min", "RATE_LIMIT_PER_MIN")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")

	// Policy overrides
	v.BindEnv("fraud.reject_private_ips", "FRAUD_REJECT_PRIVATE_IPS")
	v.BindEnv("settlement.threshold", "SETTLEMENT_THRESHOLD")
	v.BindEnv("accrual.credit_unit", "ACCRUAL_CREDIT_UNIT")
}
