package webhooks

import (
	"bytes"
	"context"
	_ "embed" // embedding the default message template
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/pkg/errors"
)

//go:embed templates/slack_message.tmpl
var slackMessageTemplate string

// SlackWebhook posts run results into one Slack channel.
type SlackWebhook struct {
	Client      SlackClient
	BranchRegex *regexp.Regexp
	Channel     string
	// FailuresOnly drops everything but failed runs.
	FailuresOnly bool
	Template     *template.Template
}

func NewSlack(branchRegex *regexp.Regexp, config Config, client SlackClient) (*SlackWebhook, error) {
	if client == nil || !client.TokenIsSet() {
		return nil, errors.New("slack webhooks need a slack token to be set")
	}
	if config.Channel == "" {
		return nil, errors.New("slack webhooks need a channel")
	}
	tmpl, err := template.New("slack-message").Funcs(sprig.TxtFuncMap()).Parse(slackMessageTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "parsing slack message template")
	}
	return &SlackWebhook{
		Client:       client,
		BranchRegex:  branchRegex,
		Channel:      config.Channel,
		FailuresOnly: config.Event == FailureEvents,
		Template:     tmpl,
	}, nil
}

func (s *SlackWebhook) Send(ctx context.Context, result RunResult) error {
	if !s.BranchRegex.MatchString(result.Branch) {
		return nil
	}
	// Canceled runs were superseded by a newer revision, that revision's
	// run reports instead.
	if result.Status == models.CanceledRunStatus {
		return nil
	}
	if s.FailuresOnly && result.Status != models.FailedRunStatus {
		return nil
	}

	buf := &bytes.Buffer{}
	if err := s.Template.Execute(buf, result); err != nil {
		return errors.Wrap(err, "rendering slack message")
	}
	return s.Client.PostMessage(ctx, s.Channel, strings.TrimSpace(buf.String()))
}
