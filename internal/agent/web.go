package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/client/bridge"
	"github.com/wagate/gateway/internal/config"
	"github.com/wagate/gateway/internal/daemon"
	"github.com/wagate/gateway/internal/journal"
	"github.com/wagate/gateway/internal/metrics"
	"github.com/wagate/gateway/internal/notify"
	"github.com/wagate/gateway/internal/sessions"
)

const (
	journalPruneInterval = time.Hour
	uploadSweepInterval  = 15 * time.Minute
	uploadMaxAge         = time.Hour
)

// WebService owns every long-lived component of a running gateway.
type WebService struct {
	Config  *config.Config
	Server  *daemon.Server
	Manager *sessions.Manager
	Metrics *metrics.Recorder

	bridge    *bridge.Bridge
	journal   *journal.Journal
	notifier  *notify.Notifier
	scheduler *gocron.Scheduler
}

// StartWebService wires the gateway together and starts serving.
func StartWebService(cfg *config.Config) (*WebService, error) {
	ws := &WebService{
		Config:    cfg,
		Metrics:   metrics.New(),
		bridge:    bridge.New(cfg.BridgeConfig()),
		scheduler: gocron.NewScheduler(time.UTC),
	}

	observers := []sessions.Observer{ws.Metrics}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		ws.journal = j
		observers = append(observers, j)
	}

	if notifyConfig := cfg.NotifyConfig(); notifyConfig.Enabled() {
		ws.notifier = notify.New(notifyConfig)
		observers = append(observers, ws.notifier)
	}

	ws.Manager = sessions.NewManager(
		cfg.SessionManagerConfig(),
		ws.bridge,
		sessions.NewCleaner(cfg.Sessions.AuthRoot),
		observers...,
	)

	deps := daemon.Dependencies{
		Sessions: ws.Manager,
		Events:   ws.bridge,
		Metrics:  ws.Metrics.Handler(),
		Logs:     cfg.GetLogger(),
	}
	if ws.journal != nil {
		deps.Journal = ws.journal
	}

	ws.Server = daemon.NewServer(cfg, deps)

	if err := ws.scheduleMaintenance(); err != nil {
		ws.abort()
		return nil, err
	}

	if err := ws.Server.Start(); err != nil {
		ws.abort()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"address":   cfg.GetServerAddress(),
		"auth_root": cfg.Sessions.AuthRoot,
		"bridge":    cfg.Bridge.Endpoint,
		"journal":   cfg.Journal.Enabled,
	}).Infoln("Gateway started")

	return ws, nil
}

func (ws *WebService) scheduleMaintenance() error {
	uploads := ws.Config.GetUploadsDir()
	if _, err := ws.scheduler.Every(uploadSweepInterval).
		Tag("uploads-sweep").
		Do(sweepUploads, uploads, uploadMaxAge); err != nil {
		return fmt.Errorf("failed to schedule upload sweep: %w", err)
	}

	if ws.journal != nil && ws.Config.Journal.Retention > 0 {
		if _, err := ws.scheduler.Every(journalPruneInterval).
			Tag("journal-prune").
			Do(ws.pruneJournal); err != nil {
			return fmt.Errorf("failed to schedule journal pruning: %w", err)
		}
	}

	ws.scheduler.StartAsync()
	return nil
}

func (ws *WebService) pruneJournal() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := ws.journal.Prune(ctx, time.Now().UTC().Add(-ws.Config.Journal.Retention))
	if err != nil {
		logrus.WithError(err).Warnln("Failed to prune session journal")
		return
	}
	if removed > 0 {
		logrus.WithField("removed", removed).Infoln("Pruned session journal")
	}
}

// sweepUploads removes staged uploads left behind by an interrupted send.
func sweepUploads(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logrus.WithError(err).WithField("dir", dir).Warnln("Failed to read uploads directory")
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}

	if removed > 0 {
		logrus.WithField("removed", removed).Debugln("Swept stale uploads")
	}
	return removed
}

// Stop disconnects every session while keeping their credentials, then
// shuts the HTTP server down. Sessions go first so requests held on a start
// or QR wait are released instead of stalling the server shutdown.
func (ws *WebService) Stop(ctx context.Context) error {
	var errs []error

	ws.Server.Drain()

	if err := ws.Manager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("session shutdown: %w", err))
	}

	if err := ws.Server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	ws.release()

	return errors.Join(errs...)
}

// abort undoes a partial start.
func (ws *WebService) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ws.Manager.Shutdown(ctx)
	ws.release()
}

func (ws *WebService) release() {
	ws.scheduler.Stop()

	if ws.notifier != nil {
		ws.notifier.Close()
	}

	if ws.journal != nil {
		if err := ws.journal.Close(); err != nil {
			logrus.WithError(err).Warnln("Failed to close session journal")
		}
	}
}
