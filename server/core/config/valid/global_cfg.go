package valid

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/graymeta/stow"
	"github.com/graymeta/stow/local"
	"github.com/mohae/deepcopy"
)

type BackendType string

const (
	LocalBackend BackendType = "local"
	S3Backend    BackendType = "s3"
)

const (
	LocalStore            = "greenlight"
	DefaultJobsPrefix     = "jobs"
	DefaultDepCachePrefix = "dep-cache"

	DefaultWorkflowsPath = ".github/workflows"
	DefaultShell         = "sh"
	DefaultStatusName    = "greenlight"
	DefaultCheckoutDepth = 1

	// DefaultJobTimeout matches what hosted runners give a job.
	DefaultJobTimeout = 360 * time.Minute

	DefaultMaxParallelJobs = 4
)

// StoreConfig mirrors the args a stow.Dial call takes plus the container
// and key prefix our writers use.
type StoreConfig struct {
	// ContainerName is the bucket or directory objects live in.
	ContainerName string
	// Prefix is prepended to object keys.
	Prefix      string
	BackendType BackendType
	Config      stow.ConfigMap
}

type PersistenceConfig struct {
	Jobs     StoreConfig
	DepCache StoreConfig
}

type Metrics struct {
	Statsd *Statsd
}

type Statsd struct {
	Host string
	Port string
}

// Toolchain describes one versioned tool the setup steps can install.
type Toolchain struct {
	// DefaultVersion is used when a workflow pins nothing.
	DefaultVersion string
	// DownloadURL is the base URL releases are fetched from.
	DownloadURL string
	// Releases are the published versions constraint resolution picks
	// from, newest first.
	Releases []string
}

// Repo is a per-repository override block. The first entry of
// GlobalCfg.Repos always carries the server defaults with an ID regex
// matching everything.
type Repo struct {
	// ID is an exact repo ID like github.com/owner/repo. Takes precedence
	// over IDRegex.
	ID string
	// IDRegex matches repo IDs when ID is empty.
	IDRegex *regexp.Regexp
	// WorkflowsPath is where workflow files live, relative to the repo
	// root.
	WorkflowsPath string
	// CheckoutDepth is the clone depth checkout steps use. Zero means
	// full history.
	CheckoutDepth int
}

// IDMatches returns whether this repo config applies to the given repo ID.
func (r Repo) IDMatches(otherID string) bool {
	if r.ID != "" {
		return r.ID == otherID
	}
	return r.IDRegex != nil && r.IDRegex.MatchString(otherID)
}

type GlobalCfg struct {
	Repos []Repo
	// Shell runs the run steps, invoked as <shell> -c <script>.
	Shell      string
	StatusName string
	// RunnerLabels are the runs-on labels this server accepts.
	RunnerLabels    []string
	JobTimeout      time.Duration
	MaxParallelJobs int
	Toolchains      map[string]Toolchain
	Metrics         Metrics
	PersistenceConfig
}

// NewGlobalCfg returns the defaults every server starts from. dataDir roots
// the local persistence backends.
func NewGlobalCfg(dataDir string) GlobalCfg {
	storageDir := filepath.Join(dataDir, "storage")
	return GlobalCfg{
		Repos: []Repo{
			{
				IDRegex:       regexp.MustCompile(".*"),
				WorkflowsPath: DefaultWorkflowsPath,
				CheckoutDepth: DefaultCheckoutDepth,
			},
		},
		Shell:           DefaultShell,
		StatusName:      DefaultStatusName,
		RunnerLabels:    []string{"self-hosted", "ubuntu-latest"},
		JobTimeout:      DefaultJobTimeout,
		MaxParallelJobs: DefaultMaxParallelJobs,
		Toolchains: map[string]Toolchain{
			"node": {
				DefaultVersion: "20.18.1",
				DownloadURL:    "https://nodejs.org/dist",
				Releases: []string{
					"22.12.0", "22.11.0",
					"20.18.1", "20.18.0", "20.17.0", "20.16.0", "20.15.1",
					"18.20.5", "18.20.4",
				},
			},
			"uv": {
				DefaultVersion: "0.5.24",
				DownloadURL:    "https://github.com/astral-sh/uv/releases/download",
				Releases: []string{
					"0.6.5", "0.6.0",
					"0.5.29", "0.5.24", "0.5.14", "0.5.0",
					"0.4.30",
				},
			},
		},
		PersistenceConfig: PersistenceConfig{
			Jobs: StoreConfig{
				ContainerName: LocalStore,
				Prefix:        DefaultJobsPrefix,
				BackendType:   LocalBackend,
				Config: stow.ConfigMap{
					local.ConfigKeyPath: storageDir,
				},
			},
			DepCache: StoreConfig{
				ContainerName: LocalStore,
				Prefix:        DefaultDepCachePrefix,
				BackendType:   LocalBackend,
				Config: stow.ConfigMap{
					local.ConfigKeyPath: storageDir,
				},
			},
		},
	}
}

// RepoSettings resolves the settings for one repo by overlaying every
// matching override, later entries winning, onto a copy of the defaults.
func (g GlobalCfg) RepoSettings(repoID string) Repo {
	defaults := g.Repos[0]
	settings := deepcopy.Copy(defaults).(Repo)
	// deepcopy doesn't copy the regex.
	settings.IDRegex = defaults.IDRegex

	for _, r := range g.Repos[1:] {
		if !r.IDMatches(repoID) {
			continue
		}
		if r.WorkflowsPath != "" {
			settings.WorkflowsPath = r.WorkflowsPath
		}
		if r.CheckoutDepth != 0 {
			settings.CheckoutDepth = r.CheckoutDepth
		}
	}
	return settings
}

// Toolchain looks up a tool by name, ex. "node".
func (g GlobalCfg) Toolchain(name string) (Toolchain, bool) {
	tc, ok := g.Toolchains[name]
	return tc, ok
}
