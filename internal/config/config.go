package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Postgres  PostgresConfig  `json:"postgres"`
	Redis     RedisConfig     `json:"redis"`
	Security  SecurityConfig  `json:"security"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Anomaly   AnomalyConfig   `json:"anomaly"`
	Audit     AuditConfig     `json:"audit"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type SecurityConfig struct {
	// SigningSecret is the server-held secret for request signatures.
	// Overridden by LICENSE_SIGNING_SECRET.
	SigningSecret    string `json:"signing_secret"`
	ClockSkewSeconds int    `json:"clock_skew_seconds"`
	JWTSecret        string `json:"jwt_secret"`
	JWTExpiryHours   int    `json:"jwt_expiry_hours"`
}

type RateLimitConfig struct {
	LicenseWindowSeconds int `json:"license_window_seconds"`
	LicenseLimit         int `json:"license_limit"`
	IPWindowSeconds      int `json:"ip_window_seconds"`
	IPLimit              int `json:"ip_limit"`

	// Coarse guard in front of the public validate endpoint.
	PublicAlgorithm         string `json:"public_algorithm"`
	PublicRequestsPerMinute int    `json:"public_requests_per_minute"`
}

type AnomalyConfig struct {
	VelocityWindowSeconds int `json:"velocity_window_seconds"`
	VelocityThreshold     int `json:"velocity_threshold"`
	AddressWindowSeconds  int `json:"address_window_seconds"`
	AddressThreshold      int `json:"address_threshold"`
}

type AuditConfig struct {
	BufferSize    int `json:"buffer_size"`
	RetentionDays int `json:"retention_days"`
}

func Load(path string) (*Config, error) {
	config := defaults()

	file, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(config)

	if config.Security.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret is required (set security.signing_secret or LICENSE_SIGNING_SECRET)")
	}
	if config.Security.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required (set security.jwt_secret or JWT_SECRET)")
	}

	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Environment: "development",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Database: "licenses",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Security: SecurityConfig{
			ClockSkewSeconds: 300,
			JWTExpiryHours:   24,
		},
		RateLimit: RateLimitConfig{
			LicenseWindowSeconds:    60,
			LicenseLimit:            100,
			IPWindowSeconds:         3600,
			IPLimit:                 1000,
			PublicAlgorithm:         "fixed_window",
			PublicRequestsPerMinute: 300,
		},
		Anomaly: AnomalyConfig{
			VelocityWindowSeconds: 3600,
			VelocityThreshold:     500,
			AddressWindowSeconds:  86400,
			AddressThreshold:      10,
		},
		Audit: AuditConfig{
			BufferSize:    1000,
			RetentionDays: 90,
		},
	}
}

func applyEnv(config *Config) {
	setString(&config.Server.Port, "PORT")
	setString(&config.Server.Environment, "ENVIRONMENT")

	setString(&config.Postgres.Host, "POSTGRES_HOST")
	setString(&config.Postgres.Port, "POSTGRES_PORT")
	setString(&config.Postgres.User, "POSTGRES_USER")
	setString(&config.Postgres.Password, "POSTGRES_PASSWORD")
	setString(&config.Postgres.Database, "POSTGRES_DB")

	setString(&config.Redis.Host, "REDIS_HOST")
	setString(&config.Redis.Port, "REDIS_PORT")
	setString(&config.Redis.Password, "REDIS_PASSWORD")
	setInt(&config.Redis.DB, "REDIS_DB")

	setString(&config.Security.SigningSecret, "LICENSE_SIGNING_SECRET")
	setString(&config.Security.JWTSecret, "JWT_SECRET")
	setInt(&config.Security.ClockSkewSeconds, "CLOCK_SKEW_SECONDS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}
