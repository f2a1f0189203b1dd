package sessions

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/models"
)

const (
	DefaultCleanupDelay = time.Second

	authDirPrefix = "session-"
)

type pendingCleanup struct {
	job   *gocron.Job
	token uint64
}

// Cleaner removes the persisted credentials of sessions that disconnected.
// Removals are deferred by a delay so the client can release its files, and
// run on a gocron scheduler. Failures are logged and never surface to API
// callers.
type Cleaner struct {
	root      string
	scheduler *gocron.Scheduler

	mu      sync.Mutex
	pending map[string]pendingCleanup
	seq     uint64
	stopped bool

	onCleanup func(sessionID string, err error)
}

func NewCleaner(root string) *Cleaner {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.StartAsync()

	return &Cleaner{
		root:      root,
		scheduler: scheduler,
		pending:   make(map[string]pendingCleanup),
	}
}

// Root returns the directory holding every session's credentials.
func (c *Cleaner) Root() string {
	return c.root
}

// Dir returns the credential directory of a session.
func (c *Cleaner) Dir(sessionID string) string {
	return filepath.Join(c.root, authDirPrefix+sessionID)
}

// Schedule arranges for the credentials of sessionID to be removed after
// delay. A cleanup already pending for the same session is replaced.
func (c *Cleaner) Schedule(sessionID string, delay time.Duration) {
	if delay <= 0 {
		delay = DefaultCleanupDelay
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		go c.remove(sessionID)
		return
	}

	if previous, ok := c.pending[sessionID]; ok {
		c.scheduler.RemoveByReference(previous.job)
		delete(c.pending, sessionID)
	}

	c.seq++
	token := c.seq

	job, err := c.scheduler.
		Every(delay).
		WaitForSchedule().
		LimitRunsTo(1).
		Tag(sessionID, fmt.Sprintf("cleanup-%d", token)).
		Do(c.run, sessionID, token)

	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).
			Warnln("Failed to schedule credential cleanup, running it now")
		go c.remove(sessionID)
		return
	}

	c.pending[sessionID] = pendingCleanup{job: job, token: token}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"delay":      delay,
	}).Debugln("Scheduled credential cleanup")
}

// Flush runs any pending cleanup for sessionID right away. It is called
// before a session is re-created so a late removal cannot delete the
// credentials of the new attempt. It reports whether a cleanup was pending.
func (c *Cleaner) Flush(sessionID string) bool {
	c.mu.Lock()
	p, ok := c.pending[sessionID]
	delete(c.pending, sessionID)
	c.mu.Unlock()

	if !ok {
		return false
	}

	c.scheduler.RemoveByReference(p.job)
	c.remove(sessionID)
	return true
}

// Pending reports whether a cleanup is scheduled for sessionID.
func (c *Cleaner) Pending(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[sessionID]
	return ok
}

// Stop halts the scheduler and runs every pending cleanup synchronously.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	c.stopped = true
	pending := c.pending
	c.pending = make(map[string]pendingCleanup)
	c.mu.Unlock()

	c.scheduler.Stop()

	for sessionID := range pending {
		c.remove(sessionID)
	}
}

func (c *Cleaner) run(sessionID string, token uint64) {
	c.mu.Lock()
	p, ok := c.pending[sessionID]
	if !ok || p.token != token {
		c.mu.Unlock()
		return
	}
	delete(c.pending, sessionID)
	c.mu.Unlock()

	c.scheduler.RemoveByReference(p.job)
	c.remove(sessionID)
}

func (c *Cleaner) remove(sessionID string) {
	dir := c.Dir(sessionID)
	err := os.RemoveAll(dir)

	entry := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"path":       dir,
	})

	if err != nil {
		err = fmt.Errorf("%w: %v", models.ErrCleanupFailed, err)
		entry.WithError(err).Errorln("Failed to remove session credentials")
	} else {
		entry.Infoln("Removed session credentials")
	}

	if c.onCleanup != nil {
		c.onCleanup(sessionID, err)
	}
}
