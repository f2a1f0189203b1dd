// Package journal persists session transitions to SQLite so operators can
// see how a session got to where it is.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Event is one row of the session_events table.
type Event struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID string    `gorm:"size:64;index:idx_session_events_session"`
	Attempt   uint64    `gorm:"not null"`
	Kind      string    `gorm:"size:32;not null"`
	FromState string    `gorm:"size:32"`
	ToState   string    `gorm:"size:32;not null"`
	Detail    string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"index"`
}

func (Event) TableName() string {
	return "session_events"
}

func (e Event) Transition() models.Transition {
	return models.Transition{
		SessionID: e.SessionID,
		Attempt:   e.Attempt,
		Event:     e.Kind,
		From:      models.ParseSessionState(e.FromState),
		To:        models.ParseSessionState(e.ToState),
		Detail:    e.Detail,
		Time:      e.CreatedAt.UTC(),
	}
}

type Journal struct {
	db *gorm.DB
}

// Open opens or creates the journal database at path. ":memory:" is accepted
// for an ephemeral journal.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite allows a single writer.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access journal connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	logrus.WithField("path", path).Debugln("Session journal opened")

	return &Journal{db: db}, nil
}

// OnTransition records t. Write failures are logged and dropped.
func (j *Journal) OnTransition(t models.Transition) {
	when := t.Time
	if when.IsZero() {
		when = time.Now().UTC()
	}

	event := Event{
		SessionID: t.SessionID,
		Attempt:   t.Attempt,
		Kind:      t.Event,
		FromState: string(t.From),
		ToState:   string(t.To),
		Detail:    truncate(t.Detail, 512),
		CreatedAt: when,
	}

	if err := j.db.Create(&event).Error; err != nil {
		logrus.WithError(err).WithField("session_id", t.SessionID).
			Errorln("Failed to record session transition")
	}
}

// History returns the most recent transitions of sessionID, newest first.
func (j *Journal) History(ctx context.Context, sessionID string, limit int) ([]models.Transition, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	var events []Event
	err := j.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	result := make([]models.Transition, 0, len(events))
	for _, event := range events {
		result = append(result, event.Transition())
	}
	return result, nil
}

// Prune deletes rows older than cutoff and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := j.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&Event{})
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
