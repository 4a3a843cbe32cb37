package controllers

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v45/github"
	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/metrics"
	"github.com/greenlightci/greenlight/server/vcs/provider/github/converter"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

const githubHeader = "X-Github-Event"

// VCSEventsController handles all webhook requests which signify 'events'
// in the VCS host, ex. GitHub.
type VCSEventsController struct {
	Logger        logging.Logger
	Scope         tally.Scope
	CommandRunner events.CommandRunner
	// GithubWebhookSecret is the secret added to this webhook via the
	// GitHub UI that identifies this call as coming from GitHub. If empty,
	// no request validation is done.
	GithubWebhookSecret    []byte
	GithubRequestValidator GithubRequestValidator
	PushEventConverter     converter.PushEventConverter
	PullEventConverter     converter.PullEventConverter
	// TestingMode runs commands in the webhook goroutine instead of
	// dispatching them.
	TestingMode bool
}

// Post handles POST webhook requests.
func (e *VCSEventsController) Post(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(githubHeader) != "" {
		e.handleGithubPost(w, r)
		return
	}
	e.respond(w, logging.Debug, http.StatusBadRequest, "Ignoring request")
}

func (e *VCSEventsController) handleGithubPost(w http.ResponseWriter, r *http.Request) {
	// Validate the request against the optional webhook secret.
	payload, err := e.GithubRequestValidator.Validate(r, e.GithubWebhookSecret)
	if err != nil {
		e.respond(w, logging.Warn, http.StatusBadRequest, err.Error())
		return
	}

	githubReqID := "X-Github-Delivery=" + r.Header.Get("X-Github-Delivery")
	scope := e.Scope.SubScope("github.event")
	event, _ := gh.ParseWebHook(gh.WebHookType(r), payload)

	switch event := event.(type) {
	case *gh.PushEvent:
		err = e.handleGithubPushEvent(event)
		scope = scope.SubScope("push")
	case *gh.PullRequestEvent:
		err = e.handleGithubPullRequestEvent(event)
		scope = scope.SubScope(fmt.Sprintf("pr.%s", event.GetAction()))
	default:
		e.respond(w, logging.Debug, http.StatusOK, "Ignoring unsupported event %s", githubReqID)
		return
	}

	if err != nil {
		scope.Counter(metrics.ExecutionErrorMetric).Inc(1)
		e.respond(w, logging.Error, http.StatusBadRequest, "%s %s", err.Error(), githubReqID)
		return
	}
	scope.Counter(metrics.ExecutionSuccessMetric).Inc(1)
	e.respond(w, logging.Debug, http.StatusOK, "Processing... %s", githubReqID)
}

func (e *VCSEventsController) handleGithubPushEvent(event *gh.PushEvent) error {
	push, err := e.PushEventConverter.Convert(event)
	if err != nil {
		return errors.Wrap(err, "converting push event")
	}
	e.run(func(ctx context.Context) {
		e.CommandRunner.RunPushCommand(ctx, push)
	})
	return nil
}

func (e *VCSEventsController) handleGithubPullRequestEvent(event *gh.PullRequestEvent) error {
	pull, err := e.PullEventConverter.Convert(event)
	if err != nil {
		return errors.Wrap(err, "converting pull request event")
	}
	e.run(func(ctx context.Context) {
		e.CommandRunner.RunPRCommand(ctx, pull)
	})
	return nil
}

// run dispatches without holding the webhook open. GitHub expects a
// response within ten seconds, runs take minutes.
func (e *VCSEventsController) run(f func(ctx context.Context)) {
	if e.TestingMode {
		f(context.Background())
		return
	}
	go f(context.Background())
}

func (e *VCSEventsController) respond(w http.ResponseWriter, lvl logging.LogLevel, code int, format string, args ...interface{}) {
	response := fmt.Sprintf(format, args...)
	switch lvl {
	case logging.Error:
		e.Logger.Error(response)
	case logging.Warn:
		e.Logger.Warn(response)
	case logging.Debug:
		e.Logger.Debug(response)
	default:
		e.Logger.Info(response)
	}
	w.WriteHeader(code)
	fmt.Fprintln(w, response)
}
