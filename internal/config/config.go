// Package config provides configuration loading for the netscout services.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration shared by the API server and the worker.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Firmware FirmwareConfig `mapstructure:"firmware"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // dev, staging, prod
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	DevicesDir   string        `mapstructure:"devices_dir"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ScannerConfig holds scan pipeline tuning.
type ScannerConfig struct {
	NmapPath          string `mapstructure:"nmap_path"`
	RustscanPath      string `mapstructure:"rustscan_path"`
	ArpScanPath       string `mapstructure:"arp_scan_path"`
	Interface         string `mapstructure:"interface"`
	TimeoutPerHost    int    `mapstructure:"timeout_per_host"` // seconds
	RustscanBatchSize int    `mapstructure:"rustscan_batch_size"`
	ArpConcurrency    int    `mapstructure:"arp_concurrency"`
	PortConcurrency   int    `mapstructure:"port_concurrency"`
	DeepConcurrency   int    `mapstructure:"deep_concurrency"`
}

// FirmwareConfig holds firmware pipeline configuration.
type FirmwareConfig struct {
	Dir             string        `mapstructure:"dir"`
	EmbaPath        string        `mapstructure:"emba_path"`
	EmbaLogsDir     string        `mapstructure:"emba_logs_dir"`
	GPTLevel        string        `mapstructure:"gpt_level"`
	EmbaTimeout     time.Duration `mapstructure:"emba_timeout"`
	OllamaURL       string        `mapstructure:"ollama_url"`
	OllamaModel     string        `mapstructure:"ollama_model"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/netscout")

	v.SetEnvPrefix("NETSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults and env vars are enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.devices_dir", "/var/lib/netscout/devices")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "netscout")
	v.SetDefault("database.password", "netscout")
	v.SetDefault("database.database", "netscout")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Scanner defaults
	v.SetDefault("scanner.nmap_path", "nmap")
	v.SetDefault("scanner.rustscan_path", "rustscan")
	v.SetDefault("scanner.arp_scan_path", "arp-scan")
	v.SetDefault("scanner.interface", "eth0")
	v.SetDefault("scanner.timeout_per_host", 120)
	v.SetDefault("scanner.rustscan_batch_size", 3000)
	v.SetDefault("scanner.arp_concurrency", 50)
	v.SetDefault("scanner.port_concurrency", 20)
	v.SetDefault("scanner.deep_concurrency", 5)

	// Firmware defaults
	v.SetDefault("firmware.dir", "/var/lib/netscout/firmware")
	v.SetDefault("firmware.emba_path", "/opt/emba/emba")
	v.SetDefault("firmware.emba_logs_dir", "/var/lib/netscout/emba_logs")
	v.SetDefault("firmware.gpt_level", "1")
	v.SetDefault("firmware.emba_timeout", "2h")
	v.SetDefault("firmware.ollama_url", "http://localhost:11434")
	v.SetDefault("firmware.ollama_model", "mistral")
	v.SetDefault("firmware.download_timeout", "120s")
}
