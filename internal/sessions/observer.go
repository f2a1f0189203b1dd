package sessions

import (
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/models"
)

// Observer is told about every committed state transition. Implementations
// must not block; anything slow belongs on their own goroutine.
type Observer interface {
	OnTransition(t models.Transition)
}

// MessageObserver is implemented by observers that also track sends.
type MessageObserver interface {
	OnMessage(sessionID string, err error)
}

// HandshakeObserver is implemented by observers that track QR waits.
type HandshakeObserver interface {
	OnHandshake(sessionID string, err error)
}

// CleanupObserver is implemented by observers that track credential removal.
type CleanupObserver interface {
	OnCleanup(sessionID string, err error)
}

type observers []Observer

func (o observers) transition(t models.Transition) {
	for _, observer := range o {
		safeObserve(func() { observer.OnTransition(t) })
	}
}

func (o observers) message(sessionID string, err error) {
	for _, observer := range o {
		if mo, ok := observer.(MessageObserver); ok {
			safeObserve(func() { mo.OnMessage(sessionID, err) })
		}
	}
}

func (o observers) handshake(sessionID string, err error) {
	for _, observer := range o {
		if ho, ok := observer.(HandshakeObserver); ok {
			safeObserve(func() { ho.OnHandshake(sessionID, err) })
		}
	}
}

func (o observers) cleanup(sessionID string, err error) {
	for _, observer := range o {
		if co, ok := observer.(CleanupObserver); ok {
			safeObserve(func() { co.OnCleanup(sessionID, err) })
		}
	}
}

func safeObserve(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Errorln("Session observer panicked")
		}
	}()
	fn()
}
