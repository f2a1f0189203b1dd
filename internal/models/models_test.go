package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipientAddress(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		number   string
		domain   string
		expected string
		wantErr  bool
	}{
		{
			name:     "plain local number",
			prefix:   "521",
			number:   "5551234",
			domain:   "c.us",
			expected: "5215551234@c.us",
		},
		{
			name:     "formatting characters are stripped",
			prefix:   "521",
			number:   " (555) 123-4 ",
			domain:   "c.us",
			expected: "5215551234@c.us",
		},
		{
			name:     "domain with leading at sign",
			prefix:   "",
			number:   "5551234",
			domain:   "@s.whatsapp.net",
			expected: "5551234@s.whatsapp.net",
		},
		{
			name:     "empty domain uses default",
			prefix:   "1",
			number:   "5551234",
			expected: "15551234@c.us",
		},
		{
			name:    "no digits",
			prefix:  "521",
			number:  "abc",
			domain:  "c.us",
			wantErr: true,
		},
		{
			name:     "non-ASCII digits are dropped",
			prefix:   "521",
			number:   "555١٢٣4",
			domain:   "c.us",
			expected: "5215554@c.us",
		},
		{
			name:    "only non-ASCII digits",
			prefix:  "521",
			number:  "٥٥٥",
			domain:  "c.us",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecipientAddress(tt.prefix, tt.number, tt.domain)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecipient)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("t1"))
	assert.NoError(t, ValidateSessionID("tenant_01-A"))

	for _, id := range []string{"", "../etc", "a/b", "with space", string(make([]byte, 65))} {
		assert.ErrorIs(t, ValidateSessionID(id), ErrInvalidSessionID, "id %q", id)
	}
}

func TestSessionStatePredicates(t *testing.T) {
	assert.True(t, SessionStateAuthFailed.IsTerminal())
	assert.True(t, SessionStateDisconnected.IsTerminal())
	assert.False(t, SessionStateReady.IsTerminal())

	assert.True(t, SessionStateInitializing.IsPending())
	assert.True(t, SessionStateAwaitingScan.IsPending())
	assert.True(t, SessionStateAuthenticated.IsPending())
	assert.False(t, SessionStateReady.IsPending())

	assert.True(t, SessionStateReady.HasAuthenticated())
	assert.False(t, SessionStateAwaitingScan.HasAuthenticated())

	assert.Equal(t, SessionStateAwaitingScan, ParseSessionState(" AWAITING_SCAN "))
	assert.Equal(t, SessionStateAbsent, ParseSessionState("bogus"))
}

func TestSessionError(t *testing.T) {
	err := fmt.Errorf("send: %w", NewSessionError("t1", SessionStateAwaitingScan, ErrNoActiveSession))

	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Contains(t, err.Error(), "session t1 (awaiting_scan)")

	state, ok := SessionStateOf(err)
	assert.True(t, ok)
	assert.Equal(t, SessionStateAwaitingScan, state)

	_, ok = SessionStateOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestHTTPStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFor(NewSessionError("t1", SessionStateAbsent, ErrNoActiveSession)))
	assert.Equal(t, http.StatusRequestTimeout, HTTPStatusFor(ErrHandshakeTimeout))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFor(ErrSessionNotFound))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatusFor(ErrStartTimeout))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFor(ErrAuthenticationFailed))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFor(errors.New("socket closed")))
}

func TestPublicMessage(t *testing.T) {
	err := NewSessionError("t1", SessionStateAuthFailed,
		fmt.Errorf("%w: %v", ErrInitializationFailed, errors.New("dial tcp 10.0.0.5:3100")))

	text, ok := PublicMessage(err)
	require.True(t, ok)
	assert.Equal(t, "initialization failed", text)

	_, ok = PublicMessage(errors.New("evaluation failed: chat not found"))
	assert.False(t, ok)
}

func TestLogFilterMatches(t *testing.T) {
	now := time.Now()
	entry := &LogEntry{
		Data:    logrus.Fields{"session_id": "t1"},
		Time:    now,
		Level:   logrus.InfoLevel,
		Message: "ready",
	}

	assert.True(t, LogFilter{}.Matches(entry))
	assert.True(t, LogFilter{SessionID: "t1", Levels: []logrus.Level{logrus.InfoLevel}}.Matches(entry))
	assert.False(t, LogFilter{SessionID: "t2"}.Matches(entry))
	assert.False(t, LogFilter{Levels: []logrus.Level{logrus.ErrorLevel}}.Matches(entry))

	later := now.Add(time.Minute)
	assert.False(t, LogFilter{Since: &later}.Matches(entry))
	assert.False(t, LogFilter{}.Matches(nil))
}

func TestNewLogEntryStringifiesErrors(t *testing.T) {
	entry := logrus.NewEntry(logrus.New()).WithError(errors.New("boom"))
	logEntry := NewLogEntry(entry)
	assert.Equal(t, "boom", logEntry.Data[logrus.ErrorKey])
}
