package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/wagate/gateway/internal/models"
)

type slackSender struct {
	webhookURL string
}

func (s *slackSender) Name() string {
	return "slack"
}

func (s *slackSender) Send(ctx context.Context, n Notification) error {
	color := "warning"
	if n.Transition.To == models.SessionStateAuthFailed {
		color = "danger"
	}

	msg := &slack.WebhookMessage{
		Text: n.Subject,
		Attachments: []slack.Attachment{
			{
				Color: color,
				Text:  n.Text,
				Fields: []slack.AttachmentField{
					{Title: "Session", Value: n.Transition.SessionID, Short: true},
					{Title: "State", Value: string(n.Transition.To), Short: true},
				},
			},
		},
	}

	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("failed to post slack webhook: %w", err)
	}
	return nil
}
