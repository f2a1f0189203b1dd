package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wagate/gateway/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "/api/v1", cfg.GetApiBasePath())
	assert.Equal(t, "0.0.0.0:3000", cfg.GetServerAddress())
	assert.Equal(t, "http://localhost:3000", cfg.GetLocalServerUrl())
	assert.Equal(t, "http://localhost:3000/api/v1/bridge/events", cfg.GetCallbackURL())

	assert.Equal(t, DefaultAuthRoot, cfg.Sessions.AuthRoot)
	assert.Equal(t, filepath.Join(DefaultAuthRoot, "uploads"), cfg.GetUploadsDir())
	assert.Equal(t, 60*time.Second, cfg.Sessions.QRTimeout)
	assert.Equal(t, time.Second, cfg.Sessions.CleanupDelay)
	assert.Equal(t, int64(16<<20), cfg.GetMaxUploadSize())

	assert.Equal(t, "521", cfg.Messaging.RoutingPrefix)
	assert.Equal(t, "c.us", cfg.Messaging.DomainSuffix)

	assert.True(t, cfg.Bridge.Headless)
	assert.Equal(t, []string{"--no-sandbox", "--disable-setuid-sandbox"}, cfg.Bridge.BrowserArgs)
	assert.Equal(t, 60*time.Second, cfg.Bridge.BrowserTimeout)
	assert.Equal(t, DefaultWebVersionCache, cfg.Bridge.WebVersionCache)

	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, []string{"*"}, cfg.Server.Security.CORS.AllowedOrigins)
}

func TestSessionManagerConfig(t *testing.T) {
	cfg := DefaultConfig()
	sm := cfg.SessionManagerConfig()

	assert.Equal(t, 60*time.Second, sm.HandshakeTimeout)
	assert.Equal(t, time.Second, sm.CleanupDelay)
	assert.Equal(t, "521", sm.RoutingPrefix)
	assert.True(t, sm.ClientOptions.Headless)
	assert.Empty(t, sm.ClientOptions.AuthDir)

	bc := cfg.BridgeConfig()
	assert.Equal(t, cfg.GetCallbackURL(), bc.CallbackURL)
}

func TestNotifyConfig(t *testing.T) {
	cfg := DefaultConfig()
	nc := cfg.NotifyConfig()

	assert.False(t, nc.Enabled())
	assert.Equal(t, []models.SessionState{
		models.SessionStateAuthFailed,
		models.SessionStateDisconnected,
	}, nc.States)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
sessions:
  auth_root: /var/lib/wagate
  qr_timeout: 30s
messaging:
  routing_prefix: "52"
journal:
  enabled: true
logging:
  level: warn
`), 0o600))

	t.Setenv("WAGATE_BRIDGE_TOKEN", "secret")
	t.Setenv("WAGATE_SESSIONS_CLEANUP_DELAY", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	t.Cleanup(func() { logrus.SetLevel(logrus.InfoLevel) })

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/var/lib/wagate", cfg.Sessions.AuthRoot)
	assert.Equal(t, "/var/lib/wagate/uploads", cfg.GetUploadsDir())
	assert.Equal(t, 30*time.Second, cfg.Sessions.QRTimeout)
	assert.Equal(t, 5*time.Second, cfg.Sessions.CleanupDelay)
	assert.Equal(t, "52", cfg.Messaging.RoutingPrefix)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "secret", cfg.Bridge.Token)
	assert.NotNil(t, cfg.GetLogger())
}

func TestLoad_PortFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "4321")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4321, cfg.Server.Port)
}

func TestLoad_RateLimitFromServerLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  limits:
    requests_per_minute: 120
    burst: 5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	t.Cleanup(func() { logrus.SetLevel(logrus.InfoLevel) })

	assert.Equal(t, 120, cfg.Server.Limits.RequestsPerMinute)
	assert.Equal(t, 5, cfg.Server.Limits.Burst)

	defaults := DefaultConfig()
	assert.Equal(t, 600, defaults.Server.Limits.RequestsPerMinute)
	assert.Equal(t, 50, defaults.Server.Limits.Burst)
}

func TestLoad_InvalidLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRingLogger(t *testing.T) {
	ring := newRingLogger(3)
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.AddHook(ring)

	logger.WithField("session_id", "a").Info("one")
	logger.WithField("session_id", "b").Warn("two")
	logger.WithField("session_id", "a").Error("three")
	logger.WithField("session_id", "a").Info("four")
	logger.Debug("ignored")

	events := ring.GetEvents()
	require.Len(t, events, 3)
	assert.Equal(t, "two", events[0].Message)
	assert.Equal(t, "four", events[2].Message)

	filtered := ring.GetEventsWithFilter(models.LogFilter{SessionID: "a"})
	require.Len(t, filtered, 2)
	assert.Equal(t, "three", filtered[0].Message)

	limited := ring.GetEventsWithFilter(models.LogFilter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, "four", limited[0].Message)

	levels := ring.GetEventsWithFilter(models.LogFilter{Levels: []logrus.Level{logrus.WarnLevel}})
	require.Len(t, levels, 1)
	assert.Equal(t, "two", levels[0].Message)

	ring.Clear()
	assert.Empty(t, ring.GetEvents())
}
