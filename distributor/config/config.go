// Package config loads the distributor's TOML configuration: the RPC server
// settings and the deployment (platform, oracle feeds, genesis accounts).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`

	RatePerMinute         int `toml:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests"`

	ServiceName    string `toml:"service_name"`
	ServiceVersion string `toml:"service_version"`
	Environment    string `toml:"environment"`

	EnableTracing  bool   `toml:"enable_tracing"`
	UseOTLPTraces  bool   `toml:"use_otlp_traces"`
	OTLPTracesURL  string `toml:"otlp_traces_url"`
	EnableMetrics  bool   `toml:"enable_metrics"`
	UsePrometheus  bool   `toml:"use_prometheus"`
	UseOTLPMetrics bool   `toml:"use_otlp_metrics"`
	OTLPMetricsURL string `toml:"otlp_metrics_url"`
	InsecureOTLP   bool   `toml:"insecure_otlp"`
}

// Address returns the host:port the server binds to.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FeedConfig configures one named price feed. A feed with a static price is
// served locally; otherwise prices come from the oracle HTTP endpoint.
type FeedConfig struct {
	Symbol      string `toml:"symbol"`
	Decimals    uint8  `toml:"decimals"`
	StaticPrice string `toml:"static_price"`
}

// OracleConfig configures the price oracle.
type OracleConfig struct {
	Endpoint    string       `toml:"endpoint"`
	MaxPriceAge string       `toml:"max_price_age"`
	Feeds       []FeedConfig `toml:"feeds"`
}

// MaxAge parses the staleness bound. Empty disables the check.
func (c *OracleConfig) MaxAge() (time.Duration, error) {
	if c.MaxPriceAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.MaxPriceAge)
	if err != nil {
		return 0, fmt.Errorf("failed to parse max_price_age: %w", err)
	}
	return d, nil
}

// PlatformConfig configures the factory's platform fee settings.
type PlatformConfig struct {
	Owner  string `toml:"owner"`
	Wallet string `toml:"wallet"`
	Fee    uint64 `toml:"fee"`
}

// GenesisAccount pre-funds an account at startup.
type GenesisAccount struct {
	Address string `toml:"address"`
	Balance string `toml:"balance"`
	Token   string `toml:"token"`
}

// DeploymentConfig is the full distributor deployment.
type DeploymentConfig struct {
	Server   ServerConfig     `toml:"server"`
	Platform PlatformConfig   `toml:"platform"`
	Oracle   OracleConfig     `toml:"oracle"`
	Genesis  []GenesisAccount `toml:"genesis"`
}

// Load reads and validates a deployment config from a TOML file.
func Load(path string) (*DeploymentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg DeploymentConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the parts that would otherwise fail at first use.
func (c *DeploymentConfig) Validate() error {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Platform.Owner == "" {
		return fmt.Errorf("platform.owner is required")
	}
	if c.Platform.Fee > 0 && c.Platform.Wallet == "" {
		return fmt.Errorf("platform.wallet is required when platform.fee is set")
	}
	if _, err := c.Oracle.MaxAge(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Oracle.Feeds))
	for _, f := range c.Oracle.Feeds {
		if f.Symbol == "" {
			return fmt.Errorf("oracle feed without symbol")
		}
		if seen[f.Symbol] {
			return fmt.Errorf("duplicate oracle feed symbol: %s", f.Symbol)
		}
		seen[f.Symbol] = true
		if f.StaticPrice == "" && c.Oracle.Endpoint == "" {
			return fmt.Errorf("feed %s has no static price and no oracle endpoint is set", f.Symbol)
		}
	}
	return nil
}
