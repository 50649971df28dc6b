package alert

import (
	"context"

	"github.com/slack-go/slack"
)

// SlackChannel posts alerts to a Slack channel via the Web API.
type SlackChannel struct {
	api       *slack.Client
	channelID string
}

// NewSlackChannel builds the primary alert transport.
func NewSlackChannel(token, channelID string) *SlackChannel {
	return &SlackChannel{
		api:       slack.New(token),
		channelID: channelID,
	}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(text, false))
	return err
}
