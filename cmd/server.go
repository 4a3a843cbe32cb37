package cmd

import (
	"fmt"
	"net/url"
	"os"

	"github.com/alecthomas/kong"
	"github.com/greenlightci/greenlight/server"
	"github.com/pkg/errors"
)

type Context struct {
	Version string
}

type VersionCmd struct{}

func (cmd *VersionCmd) Run(ctx Context) error {
	fmt.Printf("greenlight %s\n", ctx.Version)
	return nil
}

type ServerCmd struct {
	server.UserConfig `kong:"embed"`
}

var CLI struct {
	Version VersionCmd `cmd:"version" help:"Print the current Greenlight version"`
	Server  ServerCmd  `cmd:"server" help:"Start the greenlight server"`
	Run     RunCmd     `cmd:"run" help:"Execute the workflows of a local repository once and exit"`
	Dataset DatasetCmd `cmd:"dataset" help:"Build the household income dataset from the Census API"`
}

var FlagsVars = kong.Vars{
	"help_config":   "Path to yaml config file where flag values can also be set.",
	"help_data_dir": "Path to directory to store Greenlight data.",
	"help_external_url": "URL that Greenlight can be reached at. Defaults to http://$(hostname):$port. " +
		"Supports a base path ex. https://example.com/basepath.",
	"help_ff_path": "Path to a file containing feature flag configuration.",
	"help_gateway_sns_topic_arn": "Provide SNS topic ARN to publish GH events to greenlight workers. " +
		"Sns topic is used in gateway proxy mode",
	"help_gh_hostname": "Hostname of your Github Enterprise installation. " +
		"If using github.com, no need to set.",
	"help_gh_user":  "GitHub username of API user.",
	"help_gh_token": "GitHub token of API user.",
	"help_gh_webhook_secret": "Secret used to validate GitHub webhooks " +
		"(see https://developer.github.com/webhooks/securing/).\n" +
		"SECURITY WARNING: If not specified, Greenlight won't be able to validate that the incoming webhook call " +
		"came from GitHub. This means that an attacker could spoof calls to Greenlight " +
		"and cause it to perform malicious actions.",
	"help_ignore_file_list": "Comma separated list of file patterns that Greenlight drops from a push's " +
		"changed files before checking workflow path filters. Patterns use the " +
		"dockerignore (https://docs.docker.com/engine/reference/builder/#dockerignore_file) syntax. " +
		"Use single quotes to avoid shell expansion of '*'.",
	"help_log_level": "Log level. Either debug, info, warn, or error.",
	"help_mode": "Specifies which mode to run greenlight in. If not set, will assume the default mode. " +
		"Available modes:\n" +
		"default: Runs greenlight with a github event handler that executes workflow runs in process.\n" +
		"gateway: Runs greenlight with a gateway event handler that publishes events through sns.\n" +
		"worker:  Runs greenlight with a sqs handler that polls for events in the queue to process.\n" +
		"hybrid:  Runs greenlight with both a gateway event handler and sqs handler to perform " +
		"both gateway and worker behaviors.",
	"help_port": "Port to bind to.",
	"help_repo_allowlist": "Comma separated list of repositories that Greenlight will operate on." +
		"The format is {hostname}/{owner}/{repo}, ex. github.com/greenlightci/greenlight. '*' matches any " +
		"characters until the next comma. Examples:\n" +
		"all repos: '*' (not secure),\n" +
		"an entire hostname: 'internalgithub.com/*' or\n" +
		"an organization: 'github.com/greenlightci/*'.",
	"help_repo_config":        "Path to a repo config file, used to customize how Greenlight runs on each repo.",
	"help_slack_branch_regex": "Regex matched against the branch of a finished run to filter Slack notifications.",
	"help_slack_channel":      "Slack channel workflow run notifications get posted to. If not set, notifications are off.",
	"help_slack_events":       "Which run results get a Slack notification. Either failures-only or all.",
	"help_slack_token":        "API token for Slack notifications.",
	"help_ssl_cert_file": "File containing x509 Certificate used for serving HTTPS. " +
		"If the cert is signed by a CA, the file should be the concatenation of the server's certificate, " +
		"any intermediates, and the CA's certificate.",
	"help_ssl_key_file":    "File containing x509 private key.",
	"help_stats_namespace": "Namespace for aggregating stats.",
	"help_vcs_status_name": "Name used to identify Greenlight for commit statuses.",
	"help_worker_queue_url": "Provide queue URL of AWS SQS queue for greenlight workers to pull GH events " +
		"from and process.",
}

func (cmd *ServerCmd) Validate() error {
	if cmd.UserConfig.Mode != server.Gateway && string(cmd.UserConfig.GithubSecrets.User) == "" {
		return fmt.Errorf("credentials for the github api user should be defined")
	}

	var err error

	err = cmd.UserConfig.SSLSecrets.Validate()
	if err != nil {
		return err
	}
	err = cmd.UserConfig.GithubSecrets.Validate()
	if err != nil {
		return err
	}
	if cmd.UserConfig.Mode == server.Gateway || cmd.UserConfig.Mode == server.Hybrid {
		if cmd.UserConfig.GatewaySnsTopicArn == "" {
			return fmt.Errorf("gateway mode requires a sns topic arn to publish events to")
		}
	}
	if cmd.UserConfig.Mode == server.Worker || cmd.UserConfig.Mode == server.Hybrid {
		if cmd.UserConfig.WorkerQueueURL.String() == "" {
			return fmt.Errorf("worker mode requires a sqs queue url to poll events from")
		}
	}

	return nil
}

func (cmd *ServerCmd) Run(ctx Context) error {
	cmd.Version = ctx.Version
	if cmd.UserConfig.ExternalURL.String() == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return errors.Wrap(err, "failed to determine hostname")
		}
		externalUrl, err := url.Parse(fmt.Sprintf("http://%s:%d", hostname, cmd.Port))
		if err != nil {
			return err
		}
		cmd.UserConfig.ExternalURL = server.HttpUrl{externalUrl}
	}

	// Config looks good. Start the server.
	if err := os.MkdirAll(cmd.DataDir, 0700); err != nil {
		return err
	}
	srv, err := server.NewServer(cmd.UserConfig)
	if err != nil {
		return errors.Wrap(err, "initializing server")
	}

	return srv.Start()
}
