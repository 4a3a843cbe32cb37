// Package webhooks fans completed workflow runs out to notification
// destinations configured on the server, ex. a Slack channel.
package webhooks

import (
	"context"
	"regexp"
	"time"

	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const SlackKind = "slack"

// Event filter values accepted in a webhook config.
const (
	FailureEvents = "failures-only"
	AllEvents     = "all"
)

// RunResult is the completed-run summary handed to every notifier.
type RunResult struct {
	Repo     models.Repo
	Workflow string
	Branch   string
	Revision string
	Trigger  models.EventKind
	Status   models.RunStatus
	Duration time.Duration
}

// Sender delivers a run result to one destination.
type Sender interface {
	Send(ctx context.Context, result RunResult) error
}

// Config is one webhook destination as configured by the user.
type Config struct {
	// Kind of destination, only SlackKind is supported.
	Kind string
	// Event selects which run outcomes notify, FailureEvents or AllEvents.
	Event string
	// BranchRegex limits notifications to matching branches. Empty matches
	// every branch.
	BranchRegex string
	// Channel is the destination channel ID.
	Channel string
}

// MultiWebhookSender delivers to every configured webhook.
type MultiWebhookSender struct {
	Webhooks []Sender
}

func NewMultiWebhookSender(configs []Config, client SlackClient) (*MultiWebhookSender, error) {
	var senders []Sender
	for _, c := range configs {
		branchRegex, err := regexp.Compile(c.BranchRegex)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling branch regex %q", c.BranchRegex)
		}
		if c.Event != FailureEvents && c.Event != AllEvents {
			return nil, errors.Errorf("webhook event %q is not supported, use %q or %q", c.Event, FailureEvents, AllEvents)
		}
		switch c.Kind {
		case SlackKind:
			slack, err := NewSlack(branchRegex, c, client)
			if err != nil {
				return nil, err
			}
			senders = append(senders, slack)
		default:
			return nil, errors.Errorf("webhook kind %q is not supported", c.Kind)
		}
	}
	return &MultiWebhookSender{Webhooks: senders}, nil
}

// Send delivers the result to every webhook and aggregates delivery
// failures. A failed notification never fails the run.
func (w *MultiWebhookSender) Send(ctx context.Context, result RunResult) error {
	var sendErrs *multierror.Error
	for _, sender := range w.Webhooks {
		if err := sender.Send(ctx, result); err != nil {
			sendErrs = multierror.Append(sendErrs, err)
		}
	}
	return sendErrs.ErrorOrNil()
}
