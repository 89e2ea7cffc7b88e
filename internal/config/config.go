package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`
	DB          struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Gateway struct {
		URL            string `mapstructure:"url"`
		Token          string `mapstructure:"token"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"gateway"`
	Orchestrator struct {
		CompanyName          string `mapstructure:"company_name"`
		WorkflowVersion      int    `mapstructure:"workflow_version"`
		ReturnURL            string `mapstructure:"return_url"`
		PollIntervalSeconds  int    `mapstructure:"poll_interval_seconds"`
		PollTimeoutMinutes   int    `mapstructure:"poll_timeout_minutes"`
		PlatformDelayMs      int    `mapstructure:"platform_delay_ms"`
		HandshakePollSeconds int    `mapstructure:"handshake_poll_seconds"`
	} `mapstructure:"orchestrator"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment. An
// explicit file path overrides the default search locations.
func LoadConfig(configFile string) (*Config, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.AutomaticEnv()

	viper.SetDefault("environment", "DEV")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("gateway.timeout_seconds", 30)
	viper.SetDefault("orchestrator.company_name", "My Company")
	viper.SetDefault("orchestrator.workflow_version", 1)
	viper.SetDefault("orchestrator.poll_interval_seconds", 2)
	viper.SetDefault("orchestrator.poll_timeout_minutes", 10)
	viper.SetDefault("orchestrator.platform_delay_ms", 500)
	viper.SetDefault("orchestrator.handshake_poll_seconds", 1)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize the gateway base URL (strip trailing slash if any) so the
	// operation path can be appended without doubling separators
	config.Gateway.URL = strings.TrimRight(strings.TrimSpace(config.Gateway.URL), "/")

	return &config, nil
}

// PollInterval returns the job poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Orchestrator.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the job watch deadline as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Orchestrator.PollTimeoutMinutes) * time.Minute
}

// PlatformDelay returns the pause inserted between platform tasks.
func (c *Config) PlatformDelay() time.Duration {
	return time.Duration(c.Orchestrator.PlatformDelayMs) * time.Millisecond
}

// HandshakePollInterval returns the external-surface lifecycle poll interval.
func (c *Config) HandshakePollInterval() time.Duration {
	return time.Duration(c.Orchestrator.HandshakePollSeconds) * time.Second
}
