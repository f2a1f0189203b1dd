package models

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry is a captured logrus entry kept in the in-memory ring buffer.
type LogEntry struct {
	Data    logrus.Fields `json:"data,omitempty"`
	Time    time.Time     `json:"time"`
	Level   logrus.Level  `json:"level,omitempty"`
	Message string        `json:"message,omitempty"`
}

func NewLogEntry(entry *logrus.Entry) *LogEntry {
	data := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}

	return &LogEntry{
		Data:    data,
		Time:    entry.Time,
		Level:   entry.Level,
		Message: entry.Message,
	}
}

// SessionID returns the session the entry was logged for, if any.
func (e *LogEntry) SessionID() string {
	if id, ok := e.Data["session_id"].(string); ok {
		return id
	}
	return ""
}

// LogFilter narrows the buffered entries returned by the logs endpoint.
type LogFilter struct {
	Levels    []logrus.Level `json:"levels,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Since     *time.Time     `json:"since,omitempty"`
	Until     *time.Time     `json:"until,omitempty"`
	Limit     int            `json:"limit,omitempty"`
}

func (f LogFilter) Matches(entry *LogEntry) bool {
	if entry == nil {
		return false
	}

	if len(f.Levels) > 0 {
		found := false
		for _, level := range f.Levels {
			if level == entry.Level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.SessionID) > 0 && entry.SessionID() != f.SessionID {
		return false
	}
	if f.Since != nil && entry.Time.Before(*f.Since) {
		return false
	}
	if f.Until != nil && entry.Time.After(*f.Until) {
		return false
	}
	return true
}

// HealthState is the coarse status reported by /health.
type HealthState string

const (
	HealthStatusHealthy   HealthState = "healthy"
	HealthStatusDegraded  HealthState = "degraded"
	HealthStatusUnhealthy HealthState = "unhealthy"
)

type HealthResponse struct {
	Status    HealthState            `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Services  map[string]HealthState `json:"services,omitempty"`
	Sessions  map[SessionState]int   `json:"sessions"`
}
