package controllers

import (
	"bytes"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v45/github"
	"github.com/greenlightci/greenlight/server/aws/sns"
	"github.com/greenlightci/greenlight/server/events"
	httputils "github.com/greenlightci/greenlight/server/http"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

// GatewayEventsController validates incoming webhooks and forwards the ones
// worth running to the worker queue. It never executes runs itself.
type GatewayEventsController struct {
	Logger logging.Logger
	Scope  tally.Scope
	// AllowlistChecker is consulted before a request is queued so workers
	// never see events from repos we don't serve.
	AllowlistChecker *events.RepoAllowlistChecker
	// GithubWebhookSecret is the secret added to this webhook via the
	// GitHub UI that identifies this call as coming from GitHub. If empty,
	// no request validation is done.
	GithubWebhookSecret    []byte
	GithubRequestValidator GithubRequestValidator
	SNSWriter              sns.Writer
}

// Post handles POST webhook requests.
func (g *GatewayEventsController) Post(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(githubHeader) != "" {
		g.handleGithubPost(w, r)
		return
	}
	g.respond(w, logging.Debug, http.StatusBadRequest, "Ignoring request")
}

func (g *GatewayEventsController) handleGithubPost(w http.ResponseWriter, r *http.Request) {
	// Buffer the request so the body survives validation and the worker
	// can check the signature again on replay.
	request, err := httputils.NewBufferedRequest(r)
	if err != nil {
		g.respond(w, logging.Error, http.StatusInternalServerError, err.Error())
		return
	}

	payload, err := g.GithubRequestValidator.Validate(request.GetRequest(), g.GithubWebhookSecret)
	if err != nil {
		g.respond(w, logging.Warn, http.StatusBadRequest, err.Error())
		return
	}

	githubReqID := "X-Github-Delivery=" + r.Header.Get("X-Github-Delivery")
	event, _ := gh.ParseWebHook(gh.WebHookType(r), payload)

	var repoFullName string
	switch event := event.(type) {
	case *gh.PushEvent:
		repoFullName = event.GetRepo().GetFullName()
	case *gh.PullRequestEvent:
		repoFullName = event.GetPullRequest().GetBase().GetRepo().GetFullName()
	default:
		g.respond(w, logging.Debug, http.StatusOK, "Ignoring unsupported event %s", githubReqID)
		return
	}

	if !g.AllowlistChecker.IsAllowlisted("github.com/" + repoFullName) {
		g.respond(w, logging.Warn, http.StatusForbidden, "Ignoring event from non-allowlisted repo %q %s", repoFullName, githubReqID)
		return
	}

	if err := g.SendToWorker(request); err != nil {
		g.respond(w, logging.Error, http.StatusBadRequest, "%s %s", err.Error(), githubReqID)
		return
	}
	g.respond(w, logging.Debug, http.StatusOK, "Processing... %s", githubReqID)
}

// SendToWorker publishes the raw webhook request to the worker topic.
func (g *GatewayEventsController) SendToWorker(request *httputils.BufferedRequest) error {
	buffer := bytes.NewBuffer([]byte{})
	if err := request.GetRequest().Write(buffer); err != nil {
		g.Scope.SubScope("send").Counter("failure").Inc(1)
		return errors.Wrap(err, "marshalling gateway request to buffer")
	}
	if err := g.SNSWriter.Write(buffer.Bytes()); err != nil {
		g.Scope.SubScope("send").Counter("failure").Inc(1)
		return errors.Wrap(err, "writing gateway request to sns topic")
	}
	g.Scope.SubScope("send").Counter("success").Inc(1)
	return nil
}

func (g *GatewayEventsController) respond(w http.ResponseWriter, lvl logging.LogLevel, code int, format string, args ...interface{}) {
	response := fmt.Sprintf(format, args...)
	switch lvl {
	case logging.Error:
		g.Logger.Error(response)
	case logging.Warn:
		g.Logger.Warn(response)
	case logging.Debug:
		g.Logger.Debug(response)
	default:
		g.Logger.Info(response)
	}
	w.WriteHeader(code)
	fmt.Fprintln(w, response)
}
