package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wagate/gateway/internal/client"
	"github.com/wagate/gateway/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeWorker struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   map[string]int
	response map[string]any
}

func newFakeWorker(t *testing.T) (*fakeWorker, *httptest.Server) {
	w := &fakeWorker{
		status:   map[string]int{},
		response: map[string]any{},
	}

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.mu.Lock()
		w.requests = append(w.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		status, ok := w.status[r.URL.Path]
		response := w.response[r.URL.Path]
		w.mu.Unlock()

		if !ok {
			status = http.StatusOK
		}

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		if response != nil {
			_ = json.NewEncoder(rw).Encode(response)
		} else {
			_, _ = rw.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(server.Close)

	return w, server
}

func (w *fakeWorker) last() recordedRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requests[len(w.requests)-1]
}

func TestBridge_NewRequiresEndpoint(t *testing.T) {
	b := New(Config{})
	_, err := b.New("t1", client.Options{}, func(client.Event) {})
	assert.ErrorIs(t, err, models.ErrBridgeNotConfigured)
}

func TestBridge_Initialize(t *testing.T) {
	worker, server := newFakeWorker(t)

	b := New(Config{
		Endpoint:    server.URL,
		Token:       "secret",
		CallbackURL: "http://gateway/api/v1/bridge/events",
	})

	c, err := b.New("t1", client.Options{
		AuthDir:         "/data/session-t1",
		Headless:        true,
		BrowserArgs:     []string{"--no-sandbox"},
		Timeout:         60 * time.Second,
		WebVersionCache: "https://example.com/wa.html",
	}, func(client.Event) {})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Live())

	require.NoError(t, c.Initialize(context.Background()))

	req := worker.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/sessions/t1/initialize", req.Path)
	assert.Equal(t, "Bearer secret", req.Auth)
	assert.Equal(t, "/data/session-t1", req.Body["auth_dir"])
	assert.Equal(t, true, req.Body["headless"])
	assert.Equal(t, float64(60000), req.Body["timeout_ms"])
	assert.Equal(t, "http://gateway/api/v1/bridge/events", req.Body["callback_url"])
	assert.NotEmpty(t, req.Body["instance"])

	cache, ok := req.Body["web_version_cache"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "remote", cache["type"])
}

func TestBridge_InitializeRejected(t *testing.T) {
	worker, server := newFakeWorker(t)
	worker.status["/sessions/t1/initialize"] = http.StatusInternalServerError

	b := New(Config{Endpoint: server.URL})
	c, err := b.New("t1", client.Options{}, func(client.Event) {})
	require.NoError(t, err)

	err = c.Initialize(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestBridge_DestroyToleratesMissingInstance(t *testing.T) {
	worker, server := newFakeWorker(t)
	worker.status["/sessions/t1/destroy"] = http.StatusNotFound

	b := New(Config{Endpoint: server.URL})
	c, err := b.New("t1", client.Options{}, func(client.Event) {})
	require.NoError(t, err)

	assert.NoError(t, c.Destroy(context.Background()))
	assert.Equal(t, 0, b.Live())

	// Second destroy is a no-op and does not reach the worker.
	worker.mu.Lock()
	count := len(worker.requests)
	worker.mu.Unlock()
	assert.NoError(t, c.Destroy(context.Background()))
	worker.mu.Lock()
	assert.Equal(t, count, len(worker.requests))
	worker.mu.Unlock()
}

// slowWorker builds instances only after a delay and answers 404 when asked
// to destroy one it has not built.
type slowWorker struct {
	mu   sync.Mutex
	live map[string]bool
}

func newSlowWorker(t *testing.T, delay time.Duration) (*slowWorker, *httptest.Server) {
	w := &slowWorker{live: map[string]bool{}}

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var body struct {
			Instance string `json:"instance"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		rw.Header().Set("Content-Type", "application/json")
		switch filepath.Base(r.URL.Path) {
		case "initialize":
			time.Sleep(delay)
			w.mu.Lock()
			w.live[body.Instance] = true
			w.mu.Unlock()
		case "destroy":
			w.mu.Lock()
			ok := w.live[body.Instance]
			delete(w.live, body.Instance)
			w.mu.Unlock()
			if !ok {
				rw.WriteHeader(http.StatusNotFound)
			}
		}
		_, _ = rw.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	return w, server
}

func (w *slowWorker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.live)
}

func TestBridge_DestroyWaitsForInitialize(t *testing.T) {
	worker, server := newSlowWorker(t, 200*time.Millisecond)

	b := New(Config{Endpoint: server.URL})
	c, err := b.New("t1", client.Options{}, func(client.Event) {})
	require.NoError(t, err)

	initErr := make(chan error, 1)
	go func() {
		initErr <- c.Initialize(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Destroy(context.Background()))

	select {
	case err := <-initErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("initialize did not return")
	}

	assert.Equal(t, 0, worker.count())
	assert.Equal(t, 0, b.Live())
}

func TestBridge_DestroyDeferredPastDeadline(t *testing.T) {
	worker, server := newSlowWorker(t, 200*time.Millisecond)

	b := New(Config{Endpoint: server.URL})
	c, err := b.New("t1", client.Options{}, func(client.Event) {})
	require.NoError(t, err)

	initErr := make(chan error, 1)
	go func() {
		initErr <- c.Initialize(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Destroy(ctx), context.DeadlineExceeded)

	select {
	case err := <-initErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("initialize did not return")
	}

	// Initialize released the instance itself once it came back.
	assert.Equal(t, 0, worker.count())
}

func TestBridge_SendMessage(t *testing.T) {
	worker, server := newFakeWorker(t)
	worker.response["/sessions/t1/messages"] = map[string]any{
		"id":        "msg-1",
		"ack":       1,
		"timestamp": 1700000000,
	}

	b := New(Config{Endpoint: server.URL})
	c, err := b.New("t1", client.Options{}, func(client.Event) {})
	require.NoError(t, err)

	ack, err := c.SendMessage(context.Background(), "5215551234@c.us", models.MessagePayload{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", ack.MessageID)
	assert.Equal(t, "5215551234@c.us", ack.Recipient)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ack.Timestamp)

	req := worker.last()
	assert.Equal(t, "/sessions/t1/messages", req.Path)
	assert.Equal(t, "hi", req.Body["text"])
	assert.Equal(t, "5215551234@c.us", req.Body["to"])
}

func TestBridge_SendMessageWithMedia(t *testing.T) {
	worker, server := newFakeWorker(t)

	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	b := New(Config{Endpoint: server.URL})
	c, err := b.New("t1", client.Options{}, func(client.Event) {})
	require.NoError(t, err)

	_, err = c.SendMessage(context.Background(), "5215551234@c.us", models.MessagePayload{
		Caption: "see attached",
		Media:   &models.Attachment{Path: path},
	})
	require.NoError(t, err)

	media, ok := worker.last().Body["media"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "note.txt", media["filename"])
	assert.Equal(t, "aGVsbG8=", media["data"])
	assert.Contains(t, media["mimetype"], "text/plain")
}

func TestBridge_SendMessageTransportError(t *testing.T) {
	worker, server := newFakeWorker(t)
	worker.status["/sessions/t1/messages"] = http.StatusBadGateway

	b := New(Config{Endpoint: server.URL})
	c, err := b.New("t1", client.Options{}, func(client.Event) {})
	require.NoError(t, err)

	_, err = c.SendMessage(context.Background(), "5215551234@c.us", models.MessagePayload{Text: "hi"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestBridge_Dispatch(t *testing.T) {
	_, server := newFakeWorker(t)
	b := New(Config{Endpoint: server.URL})

	var received []client.Event
	c, err := b.New("t1", client.Options{}, func(ev client.Event) {
		received = append(received, ev)
	})
	require.NoError(t, err)
	instance := c.(*remoteClient).instance

	event, err := NewLifecycleEvent("t1", instance, client.Event{Kind: client.EventQR, Code: "XYZ"})
	require.NoError(t, err)
	require.NoError(t, b.Dispatch(event))

	event, err = NewLifecycleEvent("t1", instance, client.Event{Kind: client.EventDisconnected, Reason: "NAVIGATION"})
	require.NoError(t, err)
	require.NoError(t, b.Dispatch(event))

	require.Len(t, received, 2)
	assert.Equal(t, client.Event{Kind: client.EventQR, Code: "XYZ"}, received[0])
	assert.Equal(t, client.Event{Kind: client.EventDisconnected, Reason: "NAVIGATION"}, received[1])
}

func TestBridge_DispatchRejectsStaleInstances(t *testing.T) {
	_, server := newFakeWorker(t)
	b := New(Config{Endpoint: server.URL})

	called := false
	c, err := b.New("t1", client.Options{}, func(client.Event) { called = true })
	require.NoError(t, err)
	instance := c.(*remoteClient).instance

	// Wrong subject for a live instance.
	event, err := NewLifecycleEvent("t2", instance, client.Event{Kind: client.EventReady})
	require.NoError(t, err)
	assert.ErrorIs(t, b.Dispatch(event), ErrUnknownInstance)

	require.NoError(t, c.Destroy(context.Background()))

	event, err = NewLifecycleEvent("t1", instance, client.Event{Kind: client.EventReady})
	require.NoError(t, err)
	assert.ErrorIs(t, b.Dispatch(event), ErrUnknownInstance)
	assert.False(t, called)
}

func TestBridge_DispatchRejectsUnknownType(t *testing.T) {
	b := New(Config{Endpoint: "http://localhost"})

	event, err := NewLifecycleEvent("t1", "x", client.Event{Kind: client.EventReady})
	require.NoError(t, err)

	event.SetType("com.example.other")
	assert.Error(t, b.Dispatch(event))

	event.SetType(EventTypePrefix + "rebooted")
	assert.ErrorIs(t, b.Dispatch(event), models.ErrUnsupportedEventKind)
}
