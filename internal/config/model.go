package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wagate/gateway/internal/client"
	"github.com/wagate/gateway/internal/client/bridge"
	"github.com/wagate/gateway/internal/models"
	"github.com/wagate/gateway/internal/notify"
	"github.com/wagate/gateway/internal/sessions"
)

// Config represents the application configuration structure
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	API       APIConfig       `mapstructure:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	QR        QRConfig        `mapstructure:"qr"`

	logger *ringLogger
}

type ServerConfig struct {
	Host     string             `mapstructure:"host"`
	Port     int                `mapstructure:"port"`
	Limits   ServerLimitsConfig `mapstructure:"limits"`
	Metrics  MetricsConfig      `mapstructure:"metrics"`
	Health   HealthConfig       `mapstructure:"health"`
	Ready    ReadyConfig        `mapstructure:"ready"`
	Security SecurityConfig     `mapstructure:"security"`
}

type ServerLimitsConfig struct {
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" default:"info"`
	Format string `mapstructure:"format" default:"text"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Path    string `mapstructure:"path" default:"/metrics"`
}

type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Path    string `mapstructure:"path" default:"/health"`
}

type ReadyConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Path    string `mapstructure:"path" default:"/ready"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

type APIConfig struct {
	Version string `mapstructure:"version" default:"v1"`
}

func (api *APIConfig) GetVersion() string {
	if len(api.Version) > 0 {
		return api.Version
	}
	return "v1"
}

// SessionsConfig controls the session lifecycle.
type SessionsConfig struct {
	AuthRoot         string        `mapstructure:"auth_root"`
	UploadsDir       string        `mapstructure:"uploads_dir"`
	QRTimeout        time.Duration `mapstructure:"qr_timeout"`
	QRCodeTTL        time.Duration `mapstructure:"qr_code_ttl"`
	StartTimeout     time.Duration `mapstructure:"start_timeout"`
	InitTimeout      time.Duration `mapstructure:"init_timeout"`
	DestroyTimeout   time.Duration `mapstructure:"destroy_timeout"`
	CleanupDelay     time.Duration `mapstructure:"cleanup_delay"`
	EventBuffer      int           `mapstructure:"event_buffer"`
	WaitForReady     bool          `mapstructure:"wait_for_ready"`
	MaxUploadSizeMiB int64         `mapstructure:"max_upload_size_mib"`
}

type MessagingConfig struct {
	RoutingPrefix string `mapstructure:"routing_prefix"`
	DomainSuffix  string `mapstructure:"domain_suffix"`
}

// BridgeConfig points the gateway at the automation worker.
type BridgeConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Token           string        `mapstructure:"token"`
	CallbackURL     string        `mapstructure:"callback_url"`
	CallbackToken   string        `mapstructure:"callback_token"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Headless        bool          `mapstructure:"headless"`
	BrowserArgs     []string      `mapstructure:"browser_args"`
	BrowserTimeout  time.Duration `mapstructure:"browser_timeout"`
	WebVersionCache string        `mapstructure:"web_version_cache"`
}

type JournalConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

type NotifyConfig struct {
	SlackWebhookURL string     `mapstructure:"slack_webhook_url"`
	SMTP            SMTPConfig `mapstructure:"smtp"`
	States          []string   `mapstructure:"states"`
}

type SMTPConfig struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	User          string   `mapstructure:"user"`
	Pass          string   `mapstructure:"pass"`
	From          string   `mapstructure:"from"`
	To            []string `mapstructure:"to"`
	TLSSkipVerify bool     `mapstructure:"tls_skip_verify"`
}

type QRConfig struct {
	Size int `mapstructure:"size"`
}

// GetServerAddress returns the server bind address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetLocalServerUrl() string {
	hostname := c.Server.Host
	if hostname == "0.0.0.0" || len(hostname) == 0 {
		hostname = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", hostname, c.Server.Port)
}

func (c *Config) GetApiBasePath() string {
	return strings.TrimSuffix(fmt.Sprintf("/api/%s", c.API.GetVersion()), "/")
}

// GetUploadsDir returns where multipart uploads are staged.
func (c *Config) GetUploadsDir() string {
	if len(c.Sessions.UploadsDir) > 0 {
		return c.Sessions.UploadsDir
	}
	return filepath.Join(c.Sessions.AuthRoot, "uploads")
}

func (c *Config) GetMaxUploadSize() int64 {
	if c.Sessions.MaxUploadSizeMiB <= 0 {
		return 16 << 20
	}
	return c.Sessions.MaxUploadSizeMiB << 20
}

// GetCallbackURL returns the URL the automation worker posts events to.
func (c *Config) GetCallbackURL() string {
	if len(c.Bridge.CallbackURL) > 0 {
		return c.Bridge.CallbackURL
	}
	return fmt.Sprintf("%s%s/bridge/events", c.GetLocalServerUrl(), c.GetApiBasePath())
}

// SessionManagerConfig maps the configuration onto the lifecycle controller.
func (c *Config) SessionManagerConfig() sessions.Config {
	return sessions.Config{
		StartTimeout:     c.Sessions.StartTimeout,
		InitTimeout:      c.Sessions.InitTimeout,
		DestroyTimeout:   c.Sessions.DestroyTimeout,
		HandshakeTimeout: c.Sessions.QRTimeout,
		CodeTTL:          c.Sessions.QRCodeTTL,
		CleanupDelay:     c.Sessions.CleanupDelay,
		EventBuffer:      c.Sessions.EventBuffer,
		RoutingPrefix:    c.Messaging.RoutingPrefix,
		DomainSuffix:     c.Messaging.DomainSuffix,
		ClientOptions: client.Options{
			Headless:        c.Bridge.Headless,
			BrowserArgs:     c.Bridge.BrowserArgs,
			Timeout:         c.Bridge.BrowserTimeout,
			WebVersionCache: c.Bridge.WebVersionCache,
		},
	}
}

func (c *Config) BridgeConfig() bridge.Config {
	return bridge.Config{
		Endpoint:      c.Bridge.Endpoint,
		Token:         c.Bridge.Token,
		CallbackURL:   c.GetCallbackURL(),
		CallbackToken: c.Bridge.CallbackToken,
		Timeout:       c.Bridge.Timeout,
	}
}

func (c *Config) NotifyConfig() notify.Config {
	var states []models.SessionState
	for _, state := range c.Notify.States {
		if parsed := models.ParseSessionState(state); parsed != models.SessionStateAbsent {
			states = append(states, parsed)
		}
	}

	return notify.Config{
		SlackWebhookURL: c.Notify.SlackWebhookURL,
		States:          states,
		Instance:        c.GetServerAddress(),
		SMTP: notify.SMTPConfig{
			Host:          c.Notify.SMTP.Host,
			Port:          c.Notify.SMTP.Port,
			User:          c.Notify.SMTP.User,
			Pass:          c.Notify.SMTP.Pass,
			From:          c.Notify.SMTP.From,
			To:            c.Notify.SMTP.To,
			TLSSkipVerify: c.Notify.SMTP.TLSSkipVerify,
		},
	}
}

// GetLogger returns the in-memory log buffer installed by Load.
func (c *Config) GetLogger() LogBuffer {
	if c.logger == nil {
		return nil
	}
	return c.logger
}
