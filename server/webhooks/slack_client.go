package webhooks

import (
	"context"

	"github.com/slack-go/slack"
)

// SlackClient is the slice of the Slack web API the notifier needs.
type SlackClient interface {
	AuthTest(ctx context.Context) error
	TokenIsSet() bool
	PostMessage(ctx context.Context, channelID string, message string) error
}

// DefaultSlackClient wraps the real Slack web API.
type DefaultSlackClient struct {
	Slack *slack.Client
	Token string
}

func NewSlackClient(token string) *DefaultSlackClient {
	return &DefaultSlackClient{
		Slack: slack.New(token),
		Token: token,
	}
}

func (d *DefaultSlackClient) AuthTest(ctx context.Context) error {
	_, err := d.Slack.AuthTestContext(ctx)
	return err
}

func (d *DefaultSlackClient) TokenIsSet() bool {
	return d.Token != ""
}

func (d *DefaultSlackClient) PostMessage(ctx context.Context, channelID string, message string) error {
	_, _, err := d.Slack.PostMessageContext(
		ctx, channelID,
		slack.MsgOptionText(message, false),
		slack.MsgOptionPostMessageParameters(slack.PostMessageParameters{Markdown: true}),
	)
	return err
}
