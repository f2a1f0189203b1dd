// Package sessions owns the lifecycle of tenant sessions: one external
// client per session id, its state machine, the QR handshake and the
// credential cleanup that follows a disconnect.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/client"
	"github.com/wagate/gateway/internal/models"
)

const (
	DefaultStartTimeout   = 2 * time.Minute
	DefaultInitTimeout    = 90 * time.Second
	DefaultDestroyTimeout = 15 * time.Second
)

type Config struct {
	StartTimeout     time.Duration
	InitTimeout      time.Duration
	DestroyTimeout   time.Duration
	HandshakeTimeout time.Duration
	CodeTTL          time.Duration
	CleanupDelay     time.Duration
	EventBuffer      int

	RoutingPrefix string
	DomainSuffix  string

	// ClientOptions is the template for every client; AuthDir is filled in
	// per session.
	ClientOptions client.Options
}

func (c *Config) setDefaults() {
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.DestroyTimeout <= 0 {
		c.DestroyTimeout = DefaultDestroyTimeout
	}
	if c.CleanupDelay <= 0 {
		c.CleanupDelay = DefaultCleanupDelay
	}
	if len(c.RoutingPrefix) == 0 {
		c.RoutingPrefix = models.DefaultRoutingPrefix
	}
	if len(c.DomainSuffix) == 0 {
		c.DomainSuffix = models.DefaultDomainSuffix
	}
}

// Manager is the session lifecycle controller.
type Manager struct {
	config     Config
	store      *Store
	handshakes *Handshakes
	cleaner    *Cleaner
	factory    client.Factory
	observers  observers

	locks    keyedMutex
	attempts atomic.Uint64
	closing  atomic.Bool
	wg       sync.WaitGroup
}

func NewManager(cfg Config, factory client.Factory, cleaner *Cleaner, obs ...Observer) *Manager {
	cfg.setDefaults()

	m := &Manager{
		config:     cfg,
		store:      NewStore(),
		handshakes: NewHandshakes(cfg.HandshakeTimeout, cfg.CodeTTL),
		cleaner:    cleaner,
		factory:    factory,
		observers:  observers(obs),
	}

	cleaner.onCleanup = m.observers.cleanup

	return m
}

// Store exposes the session registry for read-only use.
func (m *Manager) Store() *Store {
	return m.store
}

// AuthDir returns where the credentials of sessionID are persisted.
func (m *Manager) AuthDir(sessionID string) string {
	return m.cleaner.Dir(sessionID)
}

// Status returns the snapshot of a resident session.
func (m *Manager) Status(sessionID string) (models.SessionInfo, error) {
	if err := models.ValidateSessionID(sessionID); err != nil {
		return models.SessionInfo{}, err
	}

	info, ok := m.store.Get(sessionID)
	if !ok {
		return info, models.NewSessionError(sessionID, models.SessionStateAbsent, models.ErrSessionNotFound)
	}
	info.AwaitingQR = m.handshakes.Pending(sessionID)
	return info, nil
}

// Counts returns the number of resident sessions per state.
func (m *Manager) Counts() map[models.SessionState]int {
	return m.store.Count()
}

func (m *Manager) List() []models.SessionInfo {
	result := m.store.List()
	for i := range result {
		result[i].AwaitingQR = m.handshakes.Pending(result[i].ID)
	}
	return result
}

// Start ensures a client exists for sessionID. A session that is already
// resident is left untouched and its current attempt is awaited instead.
// With wait unset Start returns as soon as the attempt is underway.
func (m *Manager) Start(ctx context.Context, sessionID string, wait bool) (models.SessionInfo, error) {
	if err := models.ValidateSessionID(sessionID); err != nil {
		return models.SessionInfo{}, err
	}
	if m.closing.Load() {
		return models.SessionInfo{ID: sessionID}, models.ErrGatewayShuttingDown
	}

	a, info, created := m.begin(sessionID)

	logger := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"attempt":    a.number,
	})

	if created && m.closing.Load() {
		m.teardown(sessionID, a, teardownReason{
			event: "shutdown",
			to:    models.SessionStateDisconnected,
			err:   models.ErrGatewayShuttingDown,
		})
		return models.SessionInfo{ID: sessionID}, models.ErrGatewayShuttingDown
	}

	if created {
		logger.Infoln("Initializing session")
		m.observers.transition(models.Transition{
			SessionID: sessionID,
			Attempt:   a.number,
			Event:     "start",
			From:      models.SessionStateAbsent,
			To:        models.SessionStateInitializing,
			Time:      info.LastTransitionAt,
		})

		m.wg.Add(2)
		go m.runEvents(sessionID, a)
		go m.initialize(sessionID, a)
	} else {
		logger.WithField("state", info.State).Debugln("Session already resident")
	}

	if !wait || info.State == models.SessionStateReady {
		return info, nil
	}

	state, err := a.wait(ctx, m.config.StartTimeout)
	if err != nil {
		current, ok := m.store.Get(sessionID)
		if !ok || current.Attempt != a.number {
			current = models.SessionInfo{ID: sessionID, State: state, Attempt: a.number}
		}
		if len(state) == 0 {
			state = current.State
		}
		return current, models.NewSessionError(sessionID, state, err)
	}

	current, ok := m.store.Get(sessionID)
	if !ok {
		return models.SessionInfo{ID: sessionID, State: state, Attempt: a.number}, nil
	}
	return current, nil
}

// begin returns the live attempt for sessionID, creating a new one when the
// session is absent.
func (m *Manager) begin(sessionID string) (*attempt, models.SessionInfo, bool) {
	var (
		a       *attempt
		created bool
	)

	info, _ := m.store.Upsert(sessionID, func(sess *Session, isNew bool) error {
		if sess.attempt != nil {
			a = sess.attempt
			return nil
		}

		a = newAttempt(m.attempts.Add(1), m.config.EventBuffer)
		sess.attempt = a
		sess.State = models.SessionStateInitializing
		sess.LastError = ""
		created = true
		return nil
	})

	return a, info, created
}

func (m *Manager) initialize(sessionID string, a *attempt) {
	defer m.wg.Done()

	logger := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"attempt":    a.number,
	})

	unlock := m.locks.Lock(sessionID)

	if a.stopped() {
		unlock()
		return
	}

	// A cleanup left over from an earlier attempt must not run after the new
	// client starts writing credentials.
	if m.cleaner.Flush(sessionID) {
		logger.Debugln("Flushed pending credential cleanup before re-creating session")
	}

	opts := m.config.ClientOptions
	opts.AuthDir = m.cleaner.Dir(sessionID)

	c, err := m.factory.New(sessionID, opts, a.sink)
	if err != nil {
		unlock()
		logger.WithError(err).Errorln("Failed to create client")
		m.fail(sessionID, a, fmt.Errorf("%w: %v", models.ErrInitializationFailed, err))
		return
	}

	_, err = m.store.Upsert(sessionID, func(sess *Session, isNew bool) error {
		if isNew || sess.attempt != a {
			return models.ErrStaleAttempt
		}
		sess.client = c
		return nil
	})
	if err != nil {
		logger.Debugln("Attempt was torn down before its client was attached")
		m.destroy(sessionID, c)
		unlock()
		return
	}
	unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.config.InitTimeout)
	defer cancel()

	if err := c.Initialize(ctx); err != nil {
		if a.stopped() {
			logger.WithError(err).Debugln("Attempt was torn down while its client initialized")
			return
		}
		logger.WithError(err).Errorln("Failed to initialize client")
		m.fail(sessionID, a, fmt.Errorf("%w: %v", models.ErrInitializationFailed, err))
		return
	}

	logger.Debugln("Client initialization requested")
}

func (m *Manager) runEvents(sessionID string, a *attempt) {
	defer m.wg.Done()

	for {
		select {
		case <-a.done:
			return
		case ev := <-a.events:
			m.handleEvent(sessionID, a, ev)
		}
	}
}

var errIgnoredEvent = errors.New("event not applicable in current state")

func (m *Manager) handleEvent(sessionID string, a *attempt, ev client.Event) {
	logger := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"attempt":    a.number,
		"event":      ev.String(),
	})

	switch ev.Kind {
	case client.EventQR:
		t, err := m.advance(sessionID, a, ev, models.SessionStateAwaitingScan,
			models.SessionStateInitializing, models.SessionStateAwaitingScan)
		if err != nil {
			logger.WithError(err).Debugln("Ignoring qr event")
			return
		}
		if t.From != t.To {
			m.observers.transition(t)
		}
		delivered := m.handshakes.Deliver(sessionID, ev.Code)
		logger.WithField("delivered", delivered).Infoln("QR code received")

	case client.EventAuthenticated:
		t, err := m.advance(sessionID, a, ev, models.SessionStateAuthenticated,
			models.SessionStateInitializing, models.SessionStateAwaitingScan)
		if err != nil {
			logger.WithError(err).Debugln("Ignoring authenticated event")
			return
		}
		m.handshakes.Supersede(sessionID, models.ErrAlreadyAuthenticated)
		m.observers.transition(t)
		logger.Infoln("Session authenticated")

	case client.EventReady:
		t, err := m.advance(sessionID, a, ev, models.SessionStateReady,
			models.SessionStateInitializing, models.SessionStateAwaitingScan, models.SessionStateAuthenticated)
		if err != nil {
			logger.WithError(err).Debugln("Ignoring ready event")
			return
		}
		m.handshakes.Supersede(sessionID, models.ErrAlreadyAuthenticated)
		a.settle(models.SessionStateReady, nil)
		m.observers.transition(t)
		logger.Infoln("Session ready")

	case client.EventAuthFailure:
		info, ok := m.store.Get(sessionID)
		if !ok || info.Attempt != a.number || !info.State.IsPending() {
			logger.Debugln("Ignoring auth_failure event")
			return
		}
		m.teardown(sessionID, a, teardownReason{
			event:  string(ev.Kind),
			to:     models.SessionStateAuthFailed,
			detail: ev.Reason,
			err:    withReason(models.ErrAuthenticationFailed, ev.Reason),
		})

	case client.EventDisconnected:
		m.teardown(sessionID, a, teardownReason{
			event:   string(ev.Kind),
			to:      models.SessionStateDisconnected,
			detail:  ev.Reason,
			err:     withReason(models.ErrSessionDisconnected, ev.Reason),
			cleanup: true,
		})

	default:
		logger.Warnln("Ignoring unknown lifecycle event")
	}
}

// advance moves the current attempt of sessionID to the given state when it
// is in one of the allowed source states.
func (m *Manager) advance(sessionID string, a *attempt, ev client.Event, to models.SessionState, from ...models.SessionState) (models.Transition, error) {
	t := models.Transition{
		SessionID: sessionID,
		Attempt:   a.number,
		Event:     string(ev.Kind),
		To:        to,
		Detail:    ev.Reason,
	}

	info, err := m.store.Upsert(sessionID, func(sess *Session, isNew bool) error {
		if isNew || sess.attempt != a {
			return models.ErrStaleAttempt
		}
		for _, state := range from {
			if sess.State == state {
				t.From = sess.State
				sess.State = to
				return nil
			}
		}
		return fmt.Errorf("%w: %s", errIgnoredEvent, sess.State)
	})
	if err != nil {
		return t, err
	}

	t.Time = info.LastTransitionAt
	return t, nil
}

type teardownReason struct {
	event   string
	to      models.SessionState
	detail  string
	err     error
	cleanup bool
}

// teardown ends attempt a of sessionID: the session is evicted, waiters are
// released, the client destroyed and, when requested, credential cleanup is
// scheduled. It reports false when a is no longer the resident attempt.
func (m *Manager) teardown(sessionID string, a *attempt, reason teardownReason) bool {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	removed, ok := m.store.removeIf(sessionID, func(sess *Session) bool {
		return sess.attempt == a
	})
	if !ok {
		return false
	}

	a.stop()

	if removed.client != nil {
		m.destroy(sessionID, removed.client)
	}

	m.handshakes.Supersede(sessionID, fmt.Errorf("%w: %w", models.ErrHandshakeSuperseded, reason.err))
	a.settle(reason.to, reason.err)

	if reason.cleanup {
		m.cleaner.Schedule(sessionID, m.config.CleanupDelay)
	}

	entry := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"attempt":    a.number,
		"from":       removed.State,
		"to":         reason.to,
		"reason":     reason.detail,
	})
	if reason.to == models.SessionStateAuthFailed {
		entry.Warnln("Session authentication failed")
	} else {
		entry.Infoln("Session disconnected")
	}

	m.observers.transition(models.Transition{
		SessionID: sessionID,
		Attempt:   a.number,
		Event:     reason.event,
		From:      removed.State,
		To:        reason.to,
		Detail:    reason.detail,
		Time:      time.Now().UTC(),
	})

	return true
}

// fail handles an attempt that never got its client running.
func (m *Manager) fail(sessionID string, a *attempt, err error) {
	if !m.teardown(sessionID, a, teardownReason{
		event:  "init_failure",
		to:     models.SessionStateAuthFailed,
		detail: err.Error(),
		err:    err,
	}) {
		a.settle(models.SessionStateAuthFailed, err)
	}
}

func (m *Manager) destroy(sessionID string, c client.Client) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"session_id": sessionID,
				"panic":      r,
			}).Errorln("Client destroy panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.config.DestroyTimeout)
	defer cancel()

	if err := c.Destroy(ctx); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).
			Warnln("Failed to destroy client")
	}
}

// Stop forces the session to Disconnected, following the same path as a
// disconnect reported by the client.
func (m *Manager) Stop(ctx context.Context, sessionID string) (models.SessionInfo, error) {
	if err := models.ValidateSessionID(sessionID); err != nil {
		return models.SessionInfo{}, err
	}

	_, a, info, ok := m.store.lookup(sessionID)
	if !ok {
		return info, models.NewSessionError(sessionID, models.SessionStateAbsent, models.ErrSessionNotFound)
	}

	if !m.teardown(sessionID, a, teardownReason{
		event:   "stop",
		to:      models.SessionStateDisconnected,
		detail:  "stopped by request",
		err:     models.ErrSessionDisconnected,
		cleanup: true,
	}) {
		return info, models.NewSessionError(sessionID, models.SessionStateAbsent, models.ErrSessionNotFound)
	}

	info.State = models.SessionStateDisconnected
	info.LastTransitionAt = time.Now().UTC()
	return info, nil
}

// QRCode starts the session if needed and waits for the next scannable code.
func (m *Manager) QRCode(ctx context.Context, sessionID string) (string, models.SessionInfo, error) {
	info, err := m.Start(ctx, sessionID, false)
	if err != nil {
		return "", info, err
	}

	if info.State.HasAuthenticated() {
		return "", info, models.NewSessionError(sessionID, info.State, models.ErrAlreadyAuthenticated)
	}

	hs := m.handshakes.Register(sessionID)

	// The session may have moved on between Start and Register, in which case
	// nobody would supersede the waiter.
	current, ok := m.store.Get(sessionID)
	switch {
	case !ok:
		hs.Cancel(models.ErrSessionDisconnected)
	case current.State.HasAuthenticated():
		hs.Cancel(models.ErrAlreadyAuthenticated)
	}

	code, err := hs.Wait(ctx)
	m.observers.handshake(sessionID, err)

	current, ok = m.store.Get(sessionID)
	if !ok {
		current = models.SessionInfo{ID: sessionID, State: models.SessionStateAbsent}
	}

	if err != nil {
		return "", current, models.NewSessionError(sessionID, current.State, err)
	}
	return code, current, nil
}

// Send delivers msg through the session's client. Only Ready sessions can
// send; anything else fails without reaching the client. A temporary
// attachment is removed once the call returns, whatever the outcome.
func (m *Manager) Send(ctx context.Context, sessionID string, msg models.OutgoingMessage) (*models.Ack, error) {
	if msg.Attachment != nil && msg.Attachment.Temporary {
		defer removeAttachment(msg.Attachment.Path)
	}

	if err := models.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	handle, _, info, ok := m.store.lookup(sessionID)
	if !ok || info.State != models.SessionStateReady || handle == nil {
		return nil, models.NewSessionError(sessionID, info.State, models.ErrNoActiveSession)
	}

	if msg.IsEmpty() {
		return nil, models.ErrEmptyMessage
	}

	recipient, err := models.RecipientAddress(m.config.RoutingPrefix, msg.Number, m.config.DomainSuffix)
	if err != nil {
		return nil, err
	}

	payload := models.MessagePayload{Text: msg.Text}
	if msg.Attachment != nil {
		payload = models.MessagePayload{Caption: msg.Text, Media: msg.Attachment}
	}

	ack, err := handle.SendMessage(ctx, recipient, payload)
	m.observers.message(sessionID, err)

	logger := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"recipient":  recipient,
		"media":      msg.Attachment != nil,
	})
	if err != nil {
		logger.WithError(err).Errorln("Failed to send message")
		return nil, err
	}
	logger.Infoln("Message sent")

	return ack, nil
}

// Shutdown stops accepting new sessions and disconnects every resident one.
// Credentials are kept so sessions can be restored by the next process.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.closing.CompareAndSwap(false, true) {
		return nil
	}

	for _, info := range m.store.List() {
		_, a, _, ok := m.store.lookup(info.ID)
		if !ok || a == nil {
			continue
		}
		m.teardown(info.ID, a, teardownReason{
			event:  "shutdown",
			to:     models.SessionStateDisconnected,
			detail: "gateway shutting down",
			err:    models.ErrGatewayShuttingDown,
		})
	}

	m.cleaner.Stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withReason(err error, reason string) error {
	if len(reason) == 0 {
		return err
	}
	return fmt.Errorf("%w: %s", err, reason)
}

func removeAttachment(path string) {
	if len(path) == 0 {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).WithField("path", path).
			Warnln("Failed to remove temporary attachment")
	}
}
