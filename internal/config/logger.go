package config

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/models"
)

const defaultRingSize = 1000

// LogBuffer exposes the most recent log entries.
type LogBuffer interface {
	GetEvents() []*models.LogEntry
	GetEventsWithFilter(filter models.LogFilter) []*models.LogEntry
	Clear()
}

// ringLogger is a logrus hook keeping the last entries in memory.
type ringLogger struct {
	eventBuffer []*models.LogEntry
	maxSize     int
	currentPos  int
	isFull      bool
	mu          sync.RWMutex
}

func newRingLogger(size int) *ringLogger {
	if size <= 0 {
		size = defaultRingSize
	}
	return &ringLogger{
		eventBuffer: make([]*models.LogEntry, size),
		maxSize:     size,
	}
}

func (t *ringLogger) Fire(entry *logrus.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.eventBuffer[t.currentPos] = models.NewLogEntry(entry)
	t.currentPos = (t.currentPos + 1) % t.maxSize

	if t.currentPos == 0 {
		t.isFull = true
	}

	return nil
}

func (t *ringLogger) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

func (t *ringLogger) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.eventBuffer = make([]*models.LogEntry, t.maxSize)
	t.currentPos = 0
	t.isFull = false
}

func (t *ringLogger) GetEvents() []*models.LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ordered()
}

// GetEventsWithFilter returns matching entries, newest last. With a limit
// the most recent matches are kept.
func (t *ringLogger) GetEventsWithFilter(filter models.LogFilter) []*models.LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var filtered []*models.LogEntry
	for _, entry := range t.ordered() {
		if filter.Matches(entry) {
			filtered = append(filtered, entry)
		}
	}

	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[len(filtered)-filter.Limit:]
	}
	return filtered
}

// ordered returns entries oldest first; the caller holds the lock.
func (t *ringLogger) ordered() []*models.LogEntry {
	if !t.isFull {
		result := make([]*models.LogEntry, t.currentPos)
		copy(result, t.eventBuffer[:t.currentPos])
		return result
	}

	result := make([]*models.LogEntry, t.maxSize)
	copy(result, t.eventBuffer[t.currentPos:])
	copy(result[t.maxSize-t.currentPos:], t.eventBuffer[:t.currentPos])
	return result
}
