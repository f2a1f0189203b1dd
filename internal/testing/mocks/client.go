// Package mocks provides an in-memory client.Factory for tests. Tests drive
// the lifecycle by emitting events on the fake clients it creates.
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wagate/gateway/internal/client"
	"github.com/wagate/gateway/internal/models"
)

type SentMessage struct {
	Recipient string
	Payload   models.MessagePayload
}

// Client is a fake client.Client that records every call.
type Client struct {
	SessionID string
	Options   client.Options

	mu          sync.Mutex
	sink        client.EventSink
	initialized int
	destroyed   int
	sent        []SentMessage
	// initDone is closed when the latest Initialize returns.
	initDone chan struct{}

	InitializeErr error
	SendErr       error
	// InitializeHook, when set, runs inside Initialize.
	InitializeHook func(c *Client)
}

func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	c.initialized++
	hook := c.InitializeHook
	err := c.InitializeErr
	done := make(chan struct{})
	c.initDone = done
	c.mu.Unlock()
	defer close(done)

	if hook != nil {
		hook(c)
	}
	return err
}

// Destroy waits for an in-flight Initialize, as the bridge client does.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	done := c.initDone
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed++
	return nil
}

func (c *Client) SendMessage(ctx context.Context, recipient string, payload models.MessagePayload) (*models.Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, SentMessage{Recipient: recipient, Payload: payload})
	if c.SendErr != nil {
		return nil, c.SendErr
	}

	return &models.Ack{
		MessageID: "fake-" + recipient,
		Recipient: recipient,
		Ack:       1,
		HasMedia:  payload.Media != nil,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Emit delivers ev to the manager as if the external client produced it.
func (c *Client) Emit(ev client.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	sink(ev)
}

func (c *Client) Initialized() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *Client) Destroyed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.sent...)
}

var ErrFactoryFailure = errors.New("fake factory failure")

// Factory is a fake client.Factory. It keeps every client it created, in
// creation order.
type Factory struct {
	mu      sync.Mutex
	clients map[string][]*Client

	// Fail makes New return ErrFactoryFailure.
	Fail bool
	// Configure, when set, customizes each client before it is returned.
	Configure func(c *Client)
}

func NewFactory() *Factory {
	return &Factory{clients: make(map[string][]*Client)}
}

func (f *Factory) New(sessionID string, opts client.Options, sink client.EventSink) (client.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Fail {
		return nil, ErrFactoryFailure
	}

	c := &Client{
		SessionID: sessionID,
		Options:   opts,
		sink:      sink,
	}
	if f.Configure != nil {
		f.Configure(c)
	}

	f.clients[sessionID] = append(f.clients[sessionID], c)
	return c, nil
}

// Created returns how many clients were created for sessionID.
func (f *Factory) Created(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients[sessionID])
}

// Latest returns the most recent client for sessionID, or nil.
func (f *Factory) Latest(sessionID string) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.clients[sessionID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// Live returns how many clients for sessionID have not been destroyed.
func (f *Factory) Live(sessionID string) int {
	f.mu.Lock()
	list := append([]*Client(nil), f.clients[sessionID]...)
	f.mu.Unlock()

	live := 0
	for _, c := range list {
		if c.Destroyed() == 0 {
			live++
		}
	}
	return live
}
