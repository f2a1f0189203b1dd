package models

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrInvalidSessionID      = errors.New("invalid session id")
	ErrAlreadyInProgress     = errors.New("session initialization already in progress")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrInitializationFailed  = errors.New("initialization failed")
	ErrStartTimeout          = errors.New("session did not become ready before the deadline")
	ErrHandshakeTimeout      = errors.New("QR code scan timeout")
	ErrHandshakeSuperseded   = errors.New("QR handshake superseded")
	ErrAlreadyAuthenticated  = errors.New("session already authenticated")
	ErrNoActiveSession       = errors.New("no active session")
	ErrEmptyMessage          = errors.New("message body or file is required")
	ErrInvalidRecipient      = errors.New("invalid recipient number")
	ErrSessionDisconnected   = errors.New("session disconnected")
	ErrStaleAttempt          = errors.New("session attempt is no longer current")
	ErrCleanupFailed         = errors.New("credential cleanup failed")
	ErrGatewayShuttingDown   = errors.New("gateway is shutting down")
	ErrJournalDisabled       = errors.New("session journal is disabled")
	ErrUnsupportedEventKind  = errors.New("unsupported lifecycle event")
	ErrBridgeNotConfigured   = errors.New("automation bridge endpoint is not configured")
	ErrBridgeUnauthenticated = errors.New("bridge callback token mismatch")
)

// taxonomy lists the sentinels whose text is safe to show to API callers.
var taxonomy = []error{
	ErrSessionNotFound,
	ErrInvalidSessionID,
	ErrAlreadyInProgress,
	ErrAuthenticationFailed,
	ErrInitializationFailed,
	ErrStartTimeout,
	ErrHandshakeTimeout,
	ErrHandshakeSuperseded,
	ErrAlreadyAuthenticated,
	ErrNoActiveSession,
	ErrEmptyMessage,
	ErrInvalidRecipient,
	ErrSessionDisconnected,
	ErrStaleAttempt,
	ErrCleanupFailed,
	ErrGatewayShuttingDown,
	ErrJournalDisabled,
	ErrUnsupportedEventKind,
	ErrBridgeNotConfigured,
	ErrBridgeUnauthenticated,
}

// PublicMessage returns the text of the first sentinel err wraps, without
// whatever detail was attached to it.
func PublicMessage(err error) (string, bool) {
	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

// SessionError decorates a lifecycle failure with the session id and the
// state observed when it happened.
type SessionError struct {
	SessionID string
	State     SessionState
	Err       error
}

func NewSessionError(sessionID string, state SessionState, err error) *SessionError {
	return &SessionError{SessionID: sessionID, State: state, Err: err}
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s (%s): %v", e.SessionID, e.State, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// SessionStateOf extracts the state carried by a SessionError, if any.
func SessionStateOf(err error) (SessionState, bool) {
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr.State, true
	}
	return "", false
}

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Code    int          `json:"code"`
	Title   string       `json:"title"`
	Message string       `json:"message"`
	State   SessionState `json:"state,omitempty"`
}

// HTTPStatusFor maps the gateway error taxonomy onto HTTP status codes.
// Errors outside the taxonomy (transport failures included) map to 500.
func HTTPStatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidSessionID),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrInvalidRecipient),
		errors.Is(err, ErrNoActiveSession):
		return http.StatusBadRequest
	case errors.Is(err, ErrBridgeUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrJournalDisabled):
		return http.StatusNotFound
	case errors.Is(err, ErrHandshakeTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrHandshakeSuperseded),
		errors.Is(err, ErrSessionDisconnected):
		return http.StatusConflict
	case errors.Is(err, ErrStartTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrGatewayShuttingDown),
		errors.Is(err, ErrBridgeNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
