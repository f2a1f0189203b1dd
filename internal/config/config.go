package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	EnvPrefix = "WAGATE"

	DefaultPort            = 3000
	DefaultAuthRoot        = ".wwebjs_auth"
	DefaultWebVersionCache = "https://raw.githubusercontent.com/wppconnect-team/wa-version/main/html/2.2412.54.html"
)

func DefaultConfig() *Config {

	v := viper.New()

	// Set default values
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("error unmarshaling default config: %v", err)
	}

	return &config
}

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	if err := setupViperConfig(v, configFile); err != nil {
		return nil, err
	}

	bindEnvironmentVariables(v)

	config, err := readAndUnmarshalConfig(v)
	if err != nil {
		return nil, err
	}

	if err := setupLogging(config, v); err != nil {
		return nil, err
	}

	return config, nil
}

// loadEnvFile loads the .env file if it exists
func loadEnvFile() error {
	if err := gotenv.Load(); err != nil {
		// .env file not found, that's okay - continue with other sources
		if !os.IsNotExist(err) {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}
	return nil
}

// setupViperConfig configures viper with file paths and defaults
func setupViperConfig(v *viper.Viper, configFile string) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/wagate")

	if home, err := os.UserHomeDir(); err == nil && len(home) > 0 {
		v.AddConfigPath(filepath.Join(home, ".config", "wagate"))
	}

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	return nil
}

// bindEnvironmentVariables binds the well-known variable names that do not
// follow the WAGATE_ prefix convention.
func bindEnvironmentVariables(v *viper.Viper) {
	v.BindEnv("server.port", "WAGATE_SERVER_PORT", "PORT")
	v.BindEnv("server.host", "WAGATE_SERVER_HOST", "HOST")

	v.BindEnv("bridge.endpoint", "WAGATE_BRIDGE_ENDPOINT")
	v.BindEnv("bridge.token", "WAGATE_BRIDGE_TOKEN")
	v.BindEnv("bridge.callback_url", "WAGATE_BRIDGE_CALLBACK_URL")
	v.BindEnv("bridge.callback_token", "WAGATE_BRIDGE_CALLBACK_TOKEN")

	v.BindEnv("notify.slack_webhook_url", "WAGATE_NOTIFY_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL")
	v.BindEnv("notify.smtp.pass", "WAGATE_NOTIFY_SMTP_PASS")

	bindLoggingEnvVars(v)
}

// bindLoggingEnvVars binds logging configuration environment variables
func bindLoggingEnvVars(v *viper.Viper) {
	v.BindEnv("logging.level", "WAGATE_LOGGING_LEVEL")
	v.BindEnv("logging.format", "WAGATE_LOGGING_FORMAT")
	v.BindEnv("logging.output", "WAGATE_LOGGING_OUTPUT")
}

// readAndUnmarshalConfig reads the configuration file and unmarshals it
func readAndUnmarshalConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setupLogging configures the logging system based on the config
func setupLogging(config *Config, v *viper.Viper) error {
	logrusLevel, err := logrus.ParseLevel(config.Logging.Level)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}

	logrus.SetLevel(logrusLevel)
	config.logger = newRingLogger(defaultRingSize)
	logrus.AddHook(config.logger)

	switch strings.ToLower(config.Logging.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.WithFields(logrus.Fields{
			"format": config.Logging.Format,
		}).Warn("Unknown log format")
	}

	switch strings.ToLower(config.Logging.Output) {
	case "", "stdout":
		logrus.SetOutput(os.Stdout)
	case "stderr":
		logrus.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(config.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("error opening log output: %w", err)
		}
		logrus.SetOutput(file)
	}

	// Dump out the config settings if in debug mode
	if logrusLevel >= logrus.DebugLevel {
		for key, value := range v.AllSettings() {
			logrus.Debugf("Config '%s': %v\n", key, value)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", DefaultPort)

	// API defaults
	v.SetDefault("api.version", "v1")

	// Metrics defaults
	v.SetDefault("server.metrics.enabled", true)
	v.SetDefault("server.metrics.path", "/metrics")

	// Health defaults
	v.SetDefault("server.health.enabled", true)
	v.SetDefault("server.health.path", "/health")

	// Ready defaults
	v.SetDefault("server.ready.enabled", true)
	v.SetDefault("server.ready.path", "/ready")

	// The gateway is called from arbitrary frontends.
	v.SetDefault("server.security.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("server.security.cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Requested-With", "X-Correlation-ID"})
	v.SetDefault("server.security.cors.max_age", 86400)

	// Limits; QR waits take up to a minute so the write timeout must exceed it.
	v.SetDefault("server.limits.read_timeout", "30s")
	v.SetDefault("server.limits.write_timeout", "180s")
	v.SetDefault("server.limits.idle_timeout", "120s")
	v.SetDefault("server.limits.shutdown_timeout", "30s")
	v.SetDefault("server.limits.requests_per_minute", 600)
	v.SetDefault("server.limits.burst", 50)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	// Session lifecycle defaults
	v.SetDefault("sessions.auth_root", DefaultAuthRoot)
	v.SetDefault("sessions.uploads_dir", "")
	v.SetDefault("sessions.qr_timeout", "60s")
	v.SetDefault("sessions.qr_code_ttl", "45s")
	v.SetDefault("sessions.start_timeout", "120s")
	v.SetDefault("sessions.init_timeout", "90s")
	v.SetDefault("sessions.destroy_timeout", "15s")
	v.SetDefault("sessions.cleanup_delay", "1s")
	v.SetDefault("sessions.event_buffer", 16)
	v.SetDefault("sessions.wait_for_ready", true)
	v.SetDefault("sessions.max_upload_size_mib", 16)

	// Messaging defaults
	v.SetDefault("messaging.routing_prefix", "521")
	v.SetDefault("messaging.domain_suffix", "c.us")

	// Automation bridge defaults
	v.SetDefault("bridge.endpoint", "http://127.0.0.1:3100")
	v.SetDefault("bridge.timeout", "90s")
	v.SetDefault("bridge.headless", true)
	v.SetDefault("bridge.browser_args", []string{"--no-sandbox", "--disable-setuid-sandbox"})
	v.SetDefault("bridge.browser_timeout", "60s")
	v.SetDefault("bridge.web_version_cache", DefaultWebVersionCache)

	// Journal defaults
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", "./data/journal.db")
	v.SetDefault("journal.retention", "720h")

	// Notification defaults
	v.SetDefault("notify.states", []string{"auth_failed", "disconnected"})
	v.SetDefault("notify.smtp.port", 587)

	// QR rendering defaults
	v.SetDefault("qr.size", 256)
}
