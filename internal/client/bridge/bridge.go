// Package bridge implements client.Factory on top of an out-of-process
// automation worker. Commands are sent to the worker over HTTP; the worker
// reports lifecycle events back to the gateway as CloudEvents, which the
// daemon hands to Dispatch.
package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/client"
	"github.com/wagate/gateway/internal/models"
)

var ErrUnknownInstance = errors.New("unknown client instance")

type Config struct {
	Endpoint    string
	Token       string
	CallbackURL string
	Timeout     time.Duration

	// CallbackToken is handed to the worker to authenticate its callbacks.
	CallbackToken string
}

// Bridge is a client.Factory whose clients live in the automation worker.
type Bridge struct {
	config Config
	http   *resty.Client

	mu        sync.RWMutex
	instances map[string]*remoteClient // instance id -> client
}

func New(cfg Config) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	if len(cfg.Token) > 0 {
		httpClient.SetAuthToken(cfg.Token)
	}

	logrus.WithFields(logrus.Fields{
		"endpoint": cfg.Endpoint,
		"callback": cfg.CallbackURL,
	}).Debugln("Automation bridge configured")

	return &Bridge{
		config:    cfg,
		http:      httpClient,
		instances: make(map[string]*remoteClient),
	}
}

func (b *Bridge) New(sessionID string, opts client.Options, sink client.EventSink) (client.Client, error) {
	if len(b.config.Endpoint) == 0 {
		return nil, models.ErrBridgeNotConfigured
	}
	if sink == nil {
		return nil, fmt.Errorf("event sink is required")
	}

	rc := &remoteClient{
		bridge:    b,
		sessionID: sessionID,
		instance:  uuid.New().String(),
		opts:      opts,
		sink:      sink,
	}

	b.mu.Lock()
	b.instances[rc.instance] = rc
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"instance":   rc.instance,
	}).Debugln("Registered bridge client instance")

	return rc, nil
}

// Live returns the number of registered instances.
func (b *Bridge) Live() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.instances)
}

func (b *Bridge) lookup(instance string) (*remoteClient, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rc, ok := b.instances[instance]
	return rc, ok
}

func (b *Bridge) unregister(instance string) {
	b.mu.Lock()
	delete(b.instances, instance)
	b.mu.Unlock()
}

type webVersionCache struct {
	Type       string `json:"type"`
	RemotePath string `json:"remotePath,omitempty"`
}

type initializeRequest struct {
	Instance        string           `json:"instance"`
	AuthDir         string           `json:"auth_dir"`
	Headless        bool             `json:"headless"`
	Args            []string         `json:"args,omitempty"`
	TimeoutMillis   int64            `json:"timeout_ms"`
	WebVersionCache *webVersionCache `json:"web_version_cache,omitempty"`
	CallbackURL     string           `json:"callback_url"`
	CallbackToken   string           `json:"callback_token,omitempty"`
}

type mediaPayload struct {
	MimeType string `json:"mimetype"`
	FileName string `json:"filename"`
	Data     string `json:"data"`
}

type sendRequest struct {
	Instance string        `json:"instance"`
	To       string        `json:"to"`
	Text     string        `json:"text,omitempty"`
	Caption  string        `json:"caption,omitempty"`
	Media    *mediaPayload `json:"media,omitempty"`
}

type sendResponse struct {
	ID        string `json:"id"`
	Ack       int    `json:"ack"`
	Timestamp int64  `json:"timestamp"`
	HasMedia  bool   `json:"has_media"`
}

type remoteClient struct {
	bridge    *Bridge
	sessionID string
	instance  string
	opts      client.Options
	sink      client.EventSink
	destroyed atomic.Bool

	// mu guards pending and orphaned. pending is closed when the in-flight
	// initialize request returns.
	mu       sync.Mutex
	pending  chan struct{}
	orphaned bool
}

func (c *remoteClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed.Load() {
		c.mu.Unlock()
		return fmt.Errorf("client instance %s already destroyed", c.instance)
	}
	if c.pending != nil {
		c.mu.Unlock()
		return fmt.Errorf("client instance %s is already initializing", c.instance)
	}
	done := make(chan struct{})
	c.pending = done
	c.mu.Unlock()

	err := c.initialize(ctx)

	c.mu.Lock()
	c.pending = nil
	orphaned := c.orphaned
	c.mu.Unlock()
	close(done)

	if orphaned {
		// Destroy gave up waiting for us; the worker may hold an instance
		// nobody will release.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), c.bridge.config.Timeout)
		defer cancel()
		if derr := c.release(cleanupCtx); derr != nil {
			logrus.WithError(derr).WithFields(logrus.Fields{
				"session_id": c.sessionID,
				"instance":   c.instance,
			}).Warnln("Failed to release instance destroyed during initialize")
		}
	}

	if err != nil {
		return err
	}
	if c.destroyed.Load() {
		return fmt.Errorf("client instance %s destroyed during initialize", c.instance)
	}
	return nil
}

func (c *remoteClient) initialize(ctx context.Context) error {
	body := initializeRequest{
		Instance:      c.instance,
		AuthDir:       c.opts.AuthDir,
		Headless:      c.opts.Headless,
		Args:          c.opts.BrowserArgs,
		TimeoutMillis: c.opts.Timeout.Milliseconds(),
		CallbackURL:   c.bridge.config.CallbackURL,
		CallbackToken: c.bridge.config.CallbackToken,
	}
	if len(c.opts.WebVersionCache) > 0 {
		body.WebVersionCache = &webVersionCache{
			Type:       "remote",
			RemotePath: c.opts.WebVersionCache,
		}
	}

	resp, err := c.bridge.http.R().
		SetContext(ctx).
		SetPathParam("id", c.sessionID).
		SetBody(body).
		Post("/sessions/{id}/initialize")

	if err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("initialize rejected with status %d: %s",
			resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	return nil
}

func (c *remoteClient) Destroy(ctx context.Context) error {
	if c.destroyed.Swap(true) {
		return nil
	}

	// Unregister first so no further events reach the sink.
	c.bridge.unregister(c.instance)

	// A destroy sent while initialize is still in flight would find nothing
	// on the worker and leave the browser it is about to build running.
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	if pending != nil {
		select {
		case <-pending:
		case <-ctx.Done():
			c.mu.Lock()
			if c.pending != nil {
				c.orphaned = true
				c.mu.Unlock()
				return fmt.Errorf("destroy deferred until initialize returns: %w", ctx.Err())
			}
			c.mu.Unlock()

			// Initialize returned just as ctx expired.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.bridge.config.Timeout)
			defer cancel()
			return c.release(releaseCtx)
		}
	}

	return c.release(ctx)
}

func (c *remoteClient) release(ctx context.Context) error {
	resp, err := c.bridge.http.R().
		SetContext(ctx).
		SetPathParam("id", c.sessionID).
		SetBody(map[string]string{"instance": c.instance}).
		Post("/sessions/{id}/destroy")

	if err != nil {
		return fmt.Errorf("destroy request failed: %w", err)
	}

	// The worker may not have constructed the instance yet.
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}

	if resp.IsError() {
		return fmt.Errorf("destroy rejected with status %d: %s",
			resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	return nil
}

func (c *remoteClient) SendMessage(ctx context.Context, recipient string, payload models.MessagePayload) (*models.Ack, error) {
	if c.destroyed.Load() {
		return nil, fmt.Errorf("client instance %s already destroyed", c.instance)
	}

	body := sendRequest{
		Instance: c.instance,
		To:       recipient,
		Text:     payload.Text,
		Caption:  payload.Caption,
	}

	if payload.Media != nil {
		media, err := encodeMedia(payload.Media)
		if err != nil {
			return nil, err
		}
		body.Media = media
	}

	var result sendResponse
	resp, err := c.bridge.http.R().
		SetContext(ctx).
		SetPathParam("id", c.sessionID).
		SetBody(body).
		SetResult(&result).
		Post("/sessions/{id}/messages")

	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, fmt.Errorf("send rejected with status %d: %s",
			resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	ack := &models.Ack{
		MessageID: result.ID,
		Recipient: recipient,
		Ack:       result.Ack,
		HasMedia:  result.HasMedia,
		Timestamp: time.Now().UTC(),
	}
	if result.Timestamp > 0 {
		ack.Timestamp = time.Unix(result.Timestamp, 0).UTC()
	}

	return ack, nil
}

func encodeMedia(attachment *models.Attachment) (*mediaPayload, error) {
	data, err := os.ReadFile(attachment.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}

	fileName := attachment.FileName
	if len(fileName) == 0 {
		fileName = filepath.Base(attachment.Path)
	}

	mimeType := attachment.MimeType
	if len(mimeType) == 0 {
		mimeType = mime.TypeByExtension(filepath.Ext(fileName))
	}
	if len(mimeType) == 0 {
		mimeType = http.DetectContentType(data)
	}

	return &mediaPayload{
		MimeType: mimeType,
		FileName: fileName,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}
