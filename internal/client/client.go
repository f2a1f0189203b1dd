// Package client defines the contract between the gateway and the external
// automation-driven messaging client. The gateway only ever issues the three
// lifecycle commands below and reacts to the events the client emits.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/wagate/gateway/internal/models"
)

// EventKind identifies a lifecycle event emitted by the external client.
type EventKind string

const (
	EventQR            EventKind = "qr"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailure   EventKind = "auth_failure"
	EventDisconnected  EventKind = "disconnected"
)

var eventKinds = []EventKind{
	EventQR,
	EventAuthenticated,
	EventReady,
	EventAuthFailure,
	EventDisconnected,
}

func ParseEventKind(value string) (EventKind, error) {
	for _, kind := range eventKinds {
		if string(kind) == value {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %s", models.ErrUnsupportedEventKind, value)
}

// Event is a single lifecycle notification. Code is set for qr events and
// Reason for auth_failure and disconnected.
type Event struct {
	Kind   EventKind `json:"kind"`
	Code   string    `json:"code,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventAuthFailure, EventDisconnected:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Reason)
	default:
		return string(e.Kind)
	}
}

// EventSink receives the events of one client instance, in emission order.
type EventSink func(Event)

// Client is a live handle on one external messaging client.
//
// Destroy must be safe to call at any point after New returned, including
// while Initialize is still running.
type Client interface {
	Initialize(ctx context.Context) error
	Destroy(ctx context.Context) error
	SendMessage(ctx context.Context, recipient string, payload models.MessagePayload) (*models.Ack, error)
}

// Options configures a new client instance.
type Options struct {
	// AuthDir is where the client persists credentials for the session.
	AuthDir         string
	Headless        bool
	BrowserArgs     []string
	Timeout         time.Duration
	WebVersionCache string
}

// Factory creates client instances. It must not start any I/O towards the
// messaging network; that happens in Client.Initialize.
type Factory interface {
	New(sessionID string, opts Options, sink EventSink) (Client, error)
}
