package webhooks_test

import (
	"context"
	"testing"

	"github.com/greenlightci/greenlight/server/webhooks"
	. "github.com/greenlightci/greenlight/testing"
	"github.com/pkg/errors"
)

func TestNewMultiWebhookSender(t *testing.T) {
	client := &fakeSlackClient{tokenSet: true}

	cases := []struct {
		description string
		configs     []webhooks.Config
		expErr      string
	}{
		{
			description: "no configs",
		},
		{
			description: "valid slack config",
			configs: []webhooks.Config{
				{Kind: webhooks.SlackKind, Event: webhooks.AllEvents, Channel: "C123"},
			},
		},
		{
			description: "unsupported kind",
			configs: []webhooks.Config{
				{Kind: "pagerduty", Event: webhooks.AllEvents, Channel: "C123"},
			},
			expErr: `webhook kind "pagerduty" is not supported`,
		},
		{
			description: "unsupported event",
			configs: []webhooks.Config{
				{Kind: webhooks.SlackKind, Event: "apply", Channel: "C123"},
			},
			expErr: `webhook event "apply" is not supported`,
		},
		{
			description: "invalid branch regex",
			configs: []webhooks.Config{
				{Kind: webhooks.SlackKind, Event: webhooks.AllEvents, BranchRegex: "(", Channel: "C123"},
			},
			expErr: `compiling branch regex "("`,
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			sender, err := webhooks.NewMultiWebhookSender(c.configs, client)
			if c.expErr != "" {
				ErrContains(t, c.expErr, err)
				return
			}
			Ok(t, err)
			Equals(t, len(c.configs), len(sender.Webhooks))
		})
	}
}

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) Send(ctx context.Context, result webhooks.RunResult) error {
	s.calls++
	return s.err
}

func TestMultiWebhookSender_AggregatesFailures(t *testing.T) {
	failing := &stubSender{err: errors.New("channel_not_found")}
	healthy := &stubSender{}
	sender := &webhooks.MultiWebhookSender{Webhooks: []webhooks.Sender{failing, healthy}}

	err := sender.Send(context.Background(), result)
	ErrContains(t, "channel_not_found", err)

	// A failing destination never blocks the others.
	Equals(t, 1, failing.calls)
	Equals(t, 1, healthy.calls)
}
