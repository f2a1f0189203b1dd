package bridge

import (
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/client"
)

const (
	EventTypePrefix   = "io.wagate.session."
	EventSource       = "wagate/bridge"
	ExtensionInstance = "instance"
)

type eventData struct {
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// EventType returns the CloudEvents type used for a lifecycle event kind.
func EventType(kind client.EventKind) string {
	return EventTypePrefix + string(kind)
}

// NewLifecycleEvent builds the CloudEvent a worker posts for one lifecycle
// notification.
func NewLifecycleEvent(sessionID, instance string, ev client.Event) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.New().String())
	event.SetSource(EventSource)
	event.SetType(EventType(ev.Kind))
	event.SetSubject(sessionID)
	event.SetTime(time.Now().UTC())
	event.SetExtension(ExtensionInstance, instance)

	if err := event.SetData(cloudevents.ApplicationJSON, eventData{
		Code:   ev.Code,
		Reason: ev.Reason,
	}); err != nil {
		return event, fmt.Errorf("failed to encode event data: %w", err)
	}

	return event, event.Validate()
}

// Dispatch routes a CloudEvent from the worker to the sink of the instance
// that emitted it. Events for destroyed or unknown instances are rejected so
// a late event from a torn-down client never reaches a newer attempt.
func (b *Bridge) Dispatch(event cloudevents.Event) error {
	if !strings.HasPrefix(event.Type(), EventTypePrefix) {
		return fmt.Errorf("unexpected event type %q", event.Type())
	}

	kind, err := client.ParseEventKind(strings.TrimPrefix(event.Type(), EventTypePrefix))
	if err != nil {
		return err
	}

	instance := extensionString(event, ExtensionInstance)
	rc, ok := b.lookup(instance)
	if !ok || rc.sessionID != event.Subject() {
		logrus.WithFields(logrus.Fields{
			"session_id": event.Subject(),
			"instance":   instance,
			"type":       event.Type(),
		}).Debugln("Dropping event for unknown client instance")
		return fmt.Errorf("%w: %s", ErrUnknownInstance, instance)
	}

	var data eventData
	if len(event.Data()) > 0 {
		if err := event.DataAs(&data); err != nil {
			return fmt.Errorf("failed to decode event data: %w", err)
		}
	}

	rc.sink(client.Event{
		Kind:   kind,
		Code:   data.Code,
		Reason: data.Reason,
	})

	return nil
}

func extensionString(event cloudevents.Event, name string) string {
	value, ok := event.Extensions()[name]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
