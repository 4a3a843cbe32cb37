package events_test

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/greenlightci/greenlight/server/events"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/stretchr/testify/assert"
	. "github.com/greenlightci/greenlight/testing"
)

// Clone at the current head of the source repo.
func TestClone_Simple(t *testing.T) {
	repoDir, cleanupRepo := initRepo(t)
	defer cleanupRepo()
	sha := appendCommit(t, repoDir, ".gitkeep", "initial commit")

	dataDir, cleanupDataDir := TempDir(t)
	defer cleanupDataDir()
	wd := &events.FileWorkspace{
		DataDir: dataDir,
		Logger:  logging.NewNoopCtxLogger(t),
	}
	destinationPath := wd.GenerateDirPath("octocat/hello-world")
	err := wd.Clone(newClonedRepo(repoDir), sha, destinationPath, 0)
	assert.NoError(t, err)

	actCommit := runCmd(t, destinationPath, "git", "rev-parse", "HEAD")
	assert.Equal(t, sha, strings.TrimSpace(actCommit))
}

// Clone then check out an older revision.
func TestClone_CheckoutOlderRevision(t *testing.T) {
	repoDir, cleanupRepo := initRepo(t)
	defer cleanupRepo()
	sha1 := appendCommit(t, repoDir, ".gitkeep", "initial commit")
	_ = appendCommit(t, repoDir, ".gitignore", "second commit")

	dataDir, cleanupDataDir := TempDir(t)
	defer cleanupDataDir()
	wd := &events.FileWorkspace{
		DataDir: dataDir,
		Logger:  logging.NewNoopCtxLogger(t),
	}
	destinationPath := wd.GenerateDirPath("octocat/hello-world")
	err := wd.Clone(newClonedRepo(repoDir), sha1, destinationPath, 0)
	assert.NoError(t, err)

	actCommit := runCmd(t, destinationPath, "git", "rev-parse", "HEAD")
	assert.Equal(t, sha1, strings.TrimSpace(actCommit))
}

// A shallow clone has to fetch the requested revision before checking
// it out.
func TestClone_ShallowFetchesRevision(t *testing.T) {
	repoDir, cleanupRepo := initRepo(t)
	defer cleanupRepo()
	runCmd(t, repoDir, "git", "config", "--local", "uploadpack.allowAnySHA1InWant", "true")
	sha1 := appendCommit(t, repoDir, ".gitkeep", "initial commit")
	_ = appendCommit(t, repoDir, ".gitignore", "second commit")

	dataDir, cleanupDataDir := TempDir(t)
	defer cleanupDataDir()
	wd := &events.FileWorkspace{
		DataDir: dataDir,
		Logger:  logging.NewNoopCtxLogger(t),
	}
	destinationPath := wd.GenerateDirPath("octocat/hello-world")
	err := wd.Clone(newClonedRepo(repoDir), sha1, destinationPath, 1)
	assert.NoError(t, err)

	actCommit := runCmd(t, destinationPath, "git", "rev-parse", "HEAD")
	assert.Equal(t, sha1, strings.TrimSpace(actCommit))
}

func TestClone_Failure(t *testing.T) {
	dataDir, cleanupDataDir := TempDir(t)
	defer cleanupDataDir()
	wd := &events.FileWorkspace{
		DataDir: dataDir,
		Logger:  logging.NewNoopCtxLogger(t),
	}
	repo := newClonedRepo("/nonexistent/repo")
	err := wd.Clone(repo, "abc123", wd.GenerateDirPath("octocat/hello-world"), 0)
	assert.Error(t, err)
}

func TestClone_UnknownRevision(t *testing.T) {
	repoDir, cleanupRepo := initRepo(t)
	defer cleanupRepo()
	_ = appendCommit(t, repoDir, ".gitkeep", "initial commit")

	dataDir, cleanupDataDir := TempDir(t)
	defer cleanupDataDir()
	wd := &events.FileWorkspace{
		DataDir: dataDir,
		Logger:  logging.NewNoopCtxLogger(t),
	}
	err := wd.Clone(newClonedRepo(repoDir), "0000000000000000000000000000000000000000", wd.GenerateDirPath("octocat/hello-world"), 0)
	assert.Error(t, err)
}

func TestDeleteClone(t *testing.T) {
	repoDir, cleanupRepo := initRepo(t)
	defer cleanupRepo()
	sha := appendCommit(t, repoDir, ".gitkeep", "initial commit")

	dataDir, cleanupDataDir := TempDir(t)
	defer cleanupDataDir()
	wd := &events.FileWorkspace{
		DataDir: dataDir,
		Logger:  logging.NewNoopCtxLogger(t),
	}
	destinationPath := wd.GenerateDirPath("octocat/hello-world")
	err := wd.Clone(newClonedRepo(repoDir), sha, destinationPath, 0)
	assert.NoError(t, err)

	assert.NoError(t, wd.DeleteClone(destinationPath))
	_, err = os.Stat(destinationPath)
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateDirPath_Unique(t *testing.T) {
	wd := &events.FileWorkspace{DataDir: "/greenlight-data"}
	first := wd.GenerateDirPath("octocat/hello-world")
	second := wd.GenerateDirPath("octocat/hello-world")
	assert.True(t, strings.HasPrefix(first, "/greenlight-data/repos/octocat/hello-world/"))
	assert.NotEqual(t, first, second)
}

func newClonedRepo(repoDir string) models.Repo {
	return models.Repo{
		FullName:          "octocat/hello-world",
		Owner:             "octocat",
		Name:              "hello-world",
		DefaultBranch:     "main",
		CloneURL:          fmt.Sprintf("file://%s", repoDir),
		SanitizedCloneURL: fmt.Sprintf("file://%s", repoDir),
	}
}

func initRepo(t *testing.T) (string, func()) {
	repoDir, cleanup := TempDir(t)
	runCmd(t, repoDir, "git", "init")
	runCmd(t, repoDir, "git", "config", "--local", "user.email", "ci@greenlight.localhost")
	runCmd(t, repoDir, "git", "config", "--local", "user.name", "greenlight-ci")
	return repoDir, cleanup
}

func appendCommit(t *testing.T, repoDir string, fileName string, commitMessage string) string {
	runCmd(t, repoDir, "touch", fileName)
	runCmd(t, repoDir, "git", "add", fileName)
	runCmd(t, repoDir, "git", "commit", "-m", commitMessage)
	return strings.TrimSpace(runCmd(t, repoDir, "git", "rev-parse", "HEAD"))
}

func runCmd(t *testing.T, dir string, name string, args ...string) string {
	t.Helper()
	cpCmd := exec.Command(name, args...)
	cpCmd.Dir = dir
	cpOut, err := cpCmd.CombinedOutput()
	assert.NoError(t, err, "err running %q: %s", strings.Join(append([]string{name}, args...), " "), cpOut)
	return string(cpOut)
}
