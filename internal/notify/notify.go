// Package notify tells operators when a session drops out, through a Slack
// incoming webhook and/or SMTP email.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/models"
)

const (
	queueSize   = 64
	sendTimeout = 15 * time.Second
)

// Notification is what senders turn into a message.
type Notification struct {
	Subject    string
	Text       string
	Transition models.Transition
}

type sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type Config struct {
	SlackWebhookURL string
	SMTP            SMTPConfig
	// States lists the target states that trigger a notification.
	States []models.SessionState
	// Instance names this gateway in messages.
	Instance string
}

// Enabled reports whether at least one channel is configured.
func (c Config) Enabled() bool {
	return len(c.SlackWebhookURL) > 0 || c.SMTP.Enabled()
}

// Notifier is a session observer that forwards selected transitions on a
// background goroutine. Delivery failures are logged only.
type Notifier struct {
	instance string
	states   map[models.SessionState]bool
	senders  []sender

	queue     chan Notification
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(cfg Config) *Notifier {
	n := &Notifier{
		instance: cfg.Instance,
		states:   make(map[models.SessionState]bool),
		queue:    make(chan Notification, queueSize),
	}

	states := cfg.States
	if len(states) == 0 {
		states = []models.SessionState{
			models.SessionStateAuthFailed,
			models.SessionStateDisconnected,
		}
	}
	for _, state := range states {
		n.states[state] = true
	}

	if len(cfg.SlackWebhookURL) > 0 {
		n.senders = append(n.senders, &slackSender{webhookURL: cfg.SlackWebhookURL})
	}
	if cfg.SMTP.Enabled() {
		n.senders = append(n.senders, newEmailSender(cfg.SMTP))
	}

	n.wg.Add(1)
	go n.run()

	return n
}

func (n *Notifier) OnTransition(t models.Transition) {
	if !n.states[t.To] || len(n.senders) == 0 {
		return
	}

	notification := n.render(t)

	select {
	case n.queue <- notification:
	default:
		logrus.WithField("session_id", t.SessionID).
			Warnln("Notification queue full, dropping notification")
	}
}

// Close stops accepting notifications and waits for queued ones to go out.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		close(n.queue)
	})
	n.wg.Wait()
}

func (n *Notifier) run() {
	defer n.wg.Done()

	for notification := range n.queue {
		for _, s := range n.senders {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			err := s.Send(ctx, notification)
			cancel()

			entry := logrus.WithFields(logrus.Fields{
				"session_id": notification.Transition.SessionID,
				"channel":    s.Name(),
			})
			if err != nil {
				entry.WithError(err).Errorln("Failed to send notification")
			} else {
				entry.Debugln("Notification sent")
			}
		}
	}
}

func (n *Notifier) render(t models.Transition) Notification {
	instance := n.instance
	if len(instance) == 0 {
		instance = "wagate"
	}

	subject := fmt.Sprintf("[%s] session %s %s", instance, t.SessionID, t.To)

	text := fmt.Sprintf("Session %s moved from %s to %s (attempt %d, event %s)",
		t.SessionID, t.From, t.To, t.Attempt, t.Event)
	if len(t.Detail) > 0 {
		text += ": " + t.Detail
	}

	return Notification{
		Subject:    subject,
		Text:       text,
		Transition: t,
	}
}
