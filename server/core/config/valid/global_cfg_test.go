package valid_test

import (
	"path/filepath"
	"regexp"
	"testing"

	"github.com/graymeta/stow/local"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	. "github.com/greenlightci/greenlight/testing"
)

func TestNewGlobalCfg(t *testing.T) {
	cfg := valid.NewGlobalCfg("/tmp/greenlight")

	Equals(t, 1, len(cfg.Repos))
	Equals(t, ".*", cfg.Repos[0].IDRegex.String())
	Equals(t, valid.DefaultWorkflowsPath, cfg.Repos[0].WorkflowsPath)
	Equals(t, valid.DefaultCheckoutDepth, cfg.Repos[0].CheckoutDepth)
	Equals(t, valid.DefaultShell, cfg.Shell)
	Equals(t, valid.DefaultStatusName, cfg.StatusName)
	Equals(t, valid.DefaultJobTimeout, cfg.JobTimeout)
	Equals(t, valid.DefaultMaxParallelJobs, cfg.MaxParallelJobs)
	Equals(t, []string{"self-hosted", "ubuntu-latest"}, cfg.RunnerLabels)

	// Both stores default to local disk under the data dir.
	storageDir := filepath.Join("/tmp/greenlight", "storage")
	Equals(t, valid.LocalBackend, cfg.Jobs.BackendType)
	Equals(t, storageDir, cfg.Jobs.Config[local.ConfigKeyPath])
	Equals(t, valid.LocalBackend, cfg.DepCache.BackendType)
	Equals(t, storageDir, cfg.DepCache.Config[local.ConfigKeyPath])

	node, ok := cfg.Toolchain("node")
	Assert(t, ok, "node toolchain should be built in")
	Contains(t, node.DefaultVersion, node.Releases)

	uv, ok := cfg.Toolchain("uv")
	Assert(t, ok, "uv toolchain should be built in")
	Contains(t, uv.DefaultVersion, uv.Releases)

	_, ok = cfg.Toolchain("go")
	Assert(t, !ok, "go toolchain should not be built in")
}

func TestRepo_IDMatches(t *testing.T) {
	Equals(t, true, (valid.Repo{ID: "github.com/owner/repo"}).IDMatches("github.com/owner/repo"))
	Equals(t, false, (valid.Repo{ID: "github.com/owner/repo"}).IDMatches("github.com/owner/other"))

	Equals(t, true, (valid.Repo{IDRegex: regexp.MustCompile("github.com/owner/.*")}).IDMatches("github.com/owner/repo"))
	Equals(t, false, (valid.Repo{IDRegex: regexp.MustCompile("github.com/owner/.*")}).IDMatches("github.com/other/repo"))

	// Exact ID wins over the regex.
	Equals(t, false, (valid.Repo{ID: "github.com/owner/repo", IDRegex: regexp.MustCompile(".*")}).IDMatches("github.com/other/repo"))

	Equals(t, false, (valid.Repo{}).IDMatches("github.com/owner/repo"))
}

func TestRepoSettings(t *testing.T) {
	cases := []struct {
		description      string
		overrides        []valid.Repo
		repoID           string
		expWorkflowsPath string
		expCheckoutDepth int
	}{
		{
			description:      "no overrides",
			repoID:           "github.com/owner/repo",
			expWorkflowsPath: valid.DefaultWorkflowsPath,
			expCheckoutDepth: valid.DefaultCheckoutDepth,
		},
		{
			description: "override for another repo",
			overrides: []valid.Repo{
				{ID: "github.com/owner/other", WorkflowsPath: "ci/workflows", CheckoutDepth: 50},
			},
			repoID:           "github.com/owner/repo",
			expWorkflowsPath: valid.DefaultWorkflowsPath,
			expCheckoutDepth: valid.DefaultCheckoutDepth,
		},
		{
			description: "matching override",
			overrides: []valid.Repo{
				{ID: "github.com/owner/repo", WorkflowsPath: "ci/workflows", CheckoutDepth: 50},
			},
			repoID:           "github.com/owner/repo",
			expWorkflowsPath: "ci/workflows",
			expCheckoutDepth: 50,
		},
		{
			description: "partial override keeps the other defaults",
			overrides: []valid.Repo{
				{ID: "github.com/owner/repo", CheckoutDepth: 50},
			},
			repoID:           "github.com/owner/repo",
			expWorkflowsPath: valid.DefaultWorkflowsPath,
			expCheckoutDepth: 50,
		},
		{
			description: "later overrides win",
			overrides: []valid.Repo{
				{IDRegex: regexp.MustCompile("github.com/owner/.*"), WorkflowsPath: "ci/workflows"},
				{ID: "github.com/owner/repo", WorkflowsPath: "pipelines"},
			},
			repoID:           "github.com/owner/repo",
			expWorkflowsPath: "pipelines",
			expCheckoutDepth: valid.DefaultCheckoutDepth,
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			cfg := valid.NewGlobalCfg("/tmp/greenlight")
			cfg.Repos = append(cfg.Repos, c.overrides...)

			settings := cfg.RepoSettings(c.repoID)
			Equals(t, c.expWorkflowsPath, settings.WorkflowsPath)
			Equals(t, c.expCheckoutDepth, settings.CheckoutDepth)
		})
	}
}
