package models

import (
	"strings"
	"time"
)

// SessionState is the lifecycle state of a tenant session.
type SessionState string

const (
	SessionStateAbsent        SessionState = "absent"
	SessionStateInitializing  SessionState = "initializing"
	SessionStateAwaitingScan  SessionState = "awaiting_scan"
	SessionStateAuthenticated SessionState = "authenticated"
	SessionStateReady         SessionState = "ready"
	SessionStateAuthFailed    SessionState = "auth_failed"
	SessionStateDisconnected  SessionState = "disconnected"
)

// AllSessionStates lists every state in lifecycle order.
var AllSessionStates = []SessionState{
	SessionStateAbsent,
	SessionStateInitializing,
	SessionStateAwaitingScan,
	SessionStateAuthenticated,
	SessionStateReady,
	SessionStateAuthFailed,
	SessionStateDisconnected,
}

func (s SessionState) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends an attempt.
func (s SessionState) IsTerminal() bool {
	return s == SessionStateAuthFailed || s == SessionStateDisconnected
}

// IsPending reports whether the attempt is still working towards Ready.
func (s SessionState) IsPending() bool {
	switch s {
	case SessionStateInitializing, SessionStateAwaitingScan, SessionStateAuthenticated:
		return true
	}
	return false
}

// HasAuthenticated reports whether the credential handshake already completed.
func (s SessionState) HasAuthenticated() bool {
	return s == SessionStateAuthenticated || s == SessionStateReady
}

// ParseSessionState converts a textual state. Unknown values map to Absent.
func ParseSessionState(value string) SessionState {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, state := range AllSessionStates {
		if string(state) == value {
			return state
		}
	}
	return SessionStateAbsent
}

// SessionInfo is an immutable snapshot of a session as seen by API callers.
type SessionInfo struct {
	ID               string       `json:"id" yaml:"id"`
	State            SessionState `json:"state" yaml:"state"`
	Attempt          uint64       `json:"attempt" yaml:"attempt"`
	CreatedAt        time.Time    `json:"created_at" yaml:"created_at"`
	LastTransitionAt time.Time    `json:"last_transition_at" yaml:"last_transition_at"`
	AwaitingQR       bool         `json:"awaiting_qr" yaml:"awaiting_qr"`
	LastError        string       `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Age returns how long the session has been resident.
func (s SessionInfo) Age() time.Duration {
	if s.CreatedAt.IsZero() {
		return 0
	}
	return time.Since(s.CreatedAt)
}

// Transition describes a committed state change, handed to observers.
type Transition struct {
	SessionID string       `json:"session_id"`
	Attempt   uint64       `json:"attempt"`
	Event     string       `json:"event"`
	From      SessionState `json:"from"`
	To        SessionState `json:"to"`
	Detail    string       `json:"detail,omitempty"`
	Time      time.Time    `json:"time"`
}

// Session list response
type SessionListResponse struct {
	Sessions []SessionInfo `json:"sessions" yaml:"sessions"`
	Count    int           `json:"count" yaml:"count"`
}

// SessionResponse wraps a session snapshot for the HTTP API.
type SessionResponse struct {
	Success bool         `json:"success" yaml:"success"`
	Message string       `json:"message,omitempty" yaml:"message,omitempty"`
	Session *SessionInfo `json:"session,omitempty" yaml:"session,omitempty"`
}

// QRCodeResponse is returned once a scannable code is available.
type QRCodeResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	QR      string       `json:"qr,omitempty"`
	Code    string       `json:"code,omitempty"`
	State   SessionState `json:"state,omitempty"`
}
