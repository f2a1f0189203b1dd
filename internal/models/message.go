package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultRoutingPrefix = "521"
	DefaultDomainSuffix  = "c.us"
)

// Attachment references a media file staged on local disk. When Temporary is
// set the file is owned by the send operation and removed once it completes.
type Attachment struct {
	Path      string `json:"path"`
	FileName  string `json:"file_name,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Temporary bool   `json:"-"`
}

// OutgoingMessage is a send request for a single recipient.
type OutgoingMessage struct {
	Number     string      `json:"number"`
	Text       string      `json:"message,omitempty"`
	Attachment *Attachment `json:"-"`
}

func (m OutgoingMessage) IsEmpty() bool {
	return len(strings.TrimSpace(m.Text)) == 0 && m.Attachment == nil
}

// MessagePayload is what the external client actually transmits. Caption is
// used instead of Text when media is attached.
type MessagePayload struct {
	Text    string      `json:"text,omitempty"`
	Caption string      `json:"caption,omitempty"`
	Media   *Attachment `json:"media,omitempty"`
}

// Ack is the delivery acknowledgment reported by the external client.
type Ack struct {
	MessageID string    `json:"id"`
	Recipient string    `json:"to"`
	Ack       int       `json:"ack"`
	Timestamp time.Time `json:"timestamp"`
	HasMedia  bool      `json:"has_media"`
}

// SendMessageRequest is the JSON variant of the send endpoint body.
type SendMessageRequest struct {
	Number  string `json:"number" form:"number"`
	Message string `json:"message" form:"message"`
}

type SendMessageResponse struct {
	Success  bool `json:"success"`
	Response *Ack `json:"response,omitempty"`
}

// RecipientAddress builds the routable chat address for a contact number:
// routing prefix, the digits of number, then "@" and the domain suffix.
func RecipientAddress(prefix, number, domain string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)

	if len(digits) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, number)
	}

	if len(domain) == 0 {
		domain = DefaultDomainSuffix
	}

	return fmt.Sprintf("%s%s@%s", prefix, digits, strings.TrimPrefix(domain, "@")), nil
}
