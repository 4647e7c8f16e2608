package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Proxy ProxyConfig `yaml:"proxy"`
	Log   LogConfig   `yaml:"log"`
}

// ProxyConfig proxy runtime configuration
type ProxyConfig struct {
	BindAddr      string `yaml:"bind_addr"`      // Proxy listening address (format: ip:port or :port, e.g., ":3000")
	ListenAddress string `yaml:"listen_address"` // Metrics listener address
	TelemetryPath string `yaml:"telemetry_path"` // Metrics path
	RoutingConf   string `yaml:"routing_conf"`   // Path to the key=value routing configuration file
	DialTimeout   int    `yaml:"dial_timeout"`   // Backend dial timeout in seconds
	ReadTimeout   int    `yaml:"read_timeout"`   // Initial read timeout in seconds
}

// LogConfig log configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from file
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	config.SetDefaults()
	config.ApplyEnvOverrides()

	return &config, nil
}

// SetDefaults sets default values
func (c *Config) SetDefaults() {
	if c.Proxy.BindAddr == "" {
		c.Proxy.BindAddr = ":3000"
	}
	if c.Proxy.ListenAddress == "" {
		c.Proxy.ListenAddress = ":9090"
	}
	if c.Proxy.TelemetryPath == "" {
		c.Proxy.TelemetryPath = "/metrics"
	}
	if c.Proxy.RoutingConf == "" {
		c.Proxy.RoutingConf = "routing.conf"
	}
	if c.Proxy.DialTimeout == 0 {
		c.Proxy.DialTimeout = 30
	}
	if c.Proxy.ReadTimeout == 0 {
		c.Proxy.ReadTimeout = 30
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// GetDialTimeout gets backend dial timeout
func (c *Config) GetDialTimeout() time.Duration {
	return time.Duration(c.Proxy.DialTimeout) * time.Second
}

// GetReadTimeout gets initial read timeout
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Proxy.ReadTimeout) * time.Second
}

// ApplyEnvOverrides applies environment variable overrides
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("PROXY_BIND_ADDR"); val != "" {
		c.Proxy.BindAddr = val
	}
	if val := os.Getenv("PROXY_LISTEN_ADDRESS"); val != "" {
		c.Proxy.ListenAddress = val
	}
	if val := os.Getenv("PROXY_TELEMETRY_PATH"); val != "" {
		c.Proxy.TelemetryPath = val
	}
	if val := os.Getenv("ROUTING_CONF"); val != "" {
		c.Proxy.RoutingConf = val
	}
	if val := os.Getenv("PROXY_DIAL_TIMEOUT_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Proxy.DialTimeout = i
		}
	}
	if val := os.Getenv("PROXY_READ_TIMEOUT_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Proxy.ReadTimeout = i
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
}
