package server

import (
	"fmt"
	"net/url"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/docker/docker/pkg/fileutils"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/webhooks"
)

type ConfigFlag string

func (c ConfigFlag) BeforeResolve(kongCli *kong.Kong, ctx *kong.Context, trace *kong.Path) error {
	path := string(ctx.FlagValue(trace.Flag).(ConfigFlag))
	if path == "" {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		kong.Configuration(kongyaml.Loader).Apply(kongCli)
	case ".json":
		kong.Configuration(kong.JSON).Apply(kongCli)
	default:
		return fmt.Errorf("no loader for config with extension %q found", ext)
	}
	resolver, err := kongCli.LoadConfig(path)
	if err != nil {
		return err
	}
	ctx.AddResolver(resolver)
	return nil
}

// URL with http or https schema
type HttpUrl struct {
	*url.URL
}

func (h *HttpUrl) Decode(ctx *kong.DecodeContext) error {
	var rawUrl string
	err := ctx.Scan.PopValueInto("string", &rawUrl)
	if err != nil {
		return err
	}
	parsedUrl, err := url.Parse(rawUrl)
	if err != nil {
		return err
	}
	if parsedUrl.Scheme != "http" && parsedUrl.Scheme != "https" {
		return fmt.Errorf("failed to parse HTTP url: protocol %q is not supported", parsedUrl.Scheme)
	}
	*h = HttpUrl{parsedUrl}
	return nil
}

func (h *HttpUrl) String() string {
	if h != nil && h.URL != nil {
		return h.URL.String()
	}
	return ""
}

// URL object without schema
type Schemeless struct {
	*url.URL
}

func (s *Schemeless) Decode(ctx *kong.DecodeContext) error {
	var rawUrl string
	err := ctx.Scan.PopValueInto("string", &rawUrl)
	if err != nil {
		return err
	}
	parsedUrl, err := url.Parse(rawUrl)
	if err != nil {
		return err
	}
	if parsedUrl.Host == "" {
		parsedUrl, err = url.Parse(fmt.Sprintf("//%s", rawUrl))
		if err != nil {
			return err
		}
	}
	parsedUrl.Scheme = ""
	*s = Schemeless{parsedUrl}
	return nil
}

func (s *Schemeless) String() string {
	if s != nil && s.URL != nil {
		return s.URL.String()
	}
	return ""
}

// Pattern path matcher
type Matcher struct {
	*fileutils.PatternMatcher
}

func (m *Matcher) Decode(ctx *kong.DecodeContext) error {
	var rawFilesList string
	err := ctx.Scan.PopValueInto("string", &rawFilesList)
	if err != nil {
		return err
	}
	patternMatcher, err := fileutils.NewPatternMatcher(strings.Split(rawFilesList, ","))
	if err != nil {
		return err
	}
	*m = Matcher{patternMatcher}
	return nil
}

// VCS user
type User string

func (u *User) Decode(ctx *kong.DecodeContext) error {
	var rawUser string
	err := ctx.Scan.PopValueInto("string", &rawUser)
	if err != nil {
		return err
	}
	*u = User(strings.TrimPrefix(rawUser, "@"))
	return nil
}

// Server mode
type Mode int

const (
	Default Mode = iota
	Gateway
	Worker
	Hybrid
)

func (m *Mode) Decode(ctx *kong.DecodeContext) error {
	var rawMode string
	err := ctx.Scan.PopValueInto("string", &rawMode)
	if err != nil {
		return err
	}
	switch strings.ToLower(rawMode) {
	case "default":
		ctx.Value.Target.Set(reflect.ValueOf(Default))
	case "gateway":
		ctx.Value.Target.Set(reflect.ValueOf(Gateway))
	case "worker":
		ctx.Value.Target.Set(reflect.ValueOf(Worker))
	case "hybrid":
		ctx.Value.Target.Set(reflect.ValueOf(Hybrid))
	default:
		return fmt.Errorf("server mode %q is not supported", rawMode)
	}
	return nil
}

func (m Mode) String() string {
	switch m {
	case Gateway:
		return "gateway"
	case Worker:
		return "worker"
	case Hybrid:
		return "hybrid"
	}
	return "default"
}

// HTTPS SSL secrets
type SSLSecrets struct {
	CertFile string `help:"${help_ssl_cert_file}"`
	KeyFile  string `help:"${help_ssl_key_file}"`
}

func (s SSLSecrets) Validate() error {
	if (s.KeyFile == "") != (s.CertFile == "") {
		return fmt.Errorf("both ssl key and certificate are required")
	}
	return nil
}

// VCS Github secrets
type GithubSecrets struct {
	Hostname      Schemeless `default:"github.com" help:"${help_gh_hostname}"`
	Token         string     `help:"${help_gh_token}"`
	User          User       `help:"${help_gh_user}"`
	WebhookSecret string     `help:"${help_gh_webhook_secret}"` // nolint: gosec
}

func (s GithubSecrets) Validate() error {
	if (s.User == "") != (s.Token == "") {
		return fmt.Errorf("Github: both user and token should be set")
	}
	return nil
}

type UserConfig struct {
	Config             ConfigFlag       `help:"${help_config}"`
	DataDir            string           `type:"path" default:"~/.greenlight" help:"${help_data_dir}"`
	ExternalURL        HttpUrl          `help:"${help_external_url}"`
	FFPath             string           `help:"${help_ff_path}"`
	GatewaySnsTopicArn string           `help:"${help_gateway_sns_topic_arn}"`
	IgnoreFileList     Matcher          `help:"${help_ignore_file_list}"`
	LogLevel           logging.LogLevel `default:"info" help:"${help_log_level}"`
	Mode               Mode             `default:"default" help:"${help_mode}"`
	Port               int              `default:"4141" help:"${help_port}"`
	RepoAllowlist      []Schemeless     `help:"${help_repo_allowlist}" required`
	RepoConfig         string           `help:"${help_repo_config}"`
	SlackBranchRegex   string           `default:".*" help:"${help_slack_branch_regex}"`
	SlackChannel       string           `help:"${help_slack_channel}"`
	SlackEvents        string           `default:"failures-only" enum:"failures-only,all" help:"${help_slack_events}"`
	SlackToken         string           `help:"${help_slack_token}"`
	StatsNamespace     string           `default:"greenlight" help:"${help_stats_namespace}"`
	VCSStatusName      string           `default:"greenlight" help:"${help_vcs_status_name}"`
	WorkerQueueURL     HttpUrl          `help:"${help_worker_queue_url}"`
	Version            string           `kong:"-"`
	SSLSecrets         `kong:"embed,prefix='ssl-'"`
	GithubSecrets      `kong:"embed,prefix='gh-'"`
}

// AllowlistRules flattens the parsed allowlist flags back into the
// comma-separated rule string the checker consumes.
func (u UserConfig) AllowlistRules() string {
	rules := make([]string, 0, len(u.RepoAllowlist))
	for _, entry := range u.RepoAllowlist {
		rules = append(rules, strings.TrimPrefix(entry.String(), "//"))
	}
	return strings.Join(rules, ",")
}

// WebhooksConfig assembles the notification targets the Slack flags
// describe. No channel means notifications are off.
func (u UserConfig) WebhooksConfig() []webhooks.Config {
	if u.SlackChannel == "" {
		return nil
	}
	return []webhooks.Config{
		{
			Kind:        webhooks.SlackKind,
			Event:       u.SlackEvents,
			BranchRegex: u.SlackBranchRegex,
			Channel:     u.SlackChannel,
		},
	}
}
