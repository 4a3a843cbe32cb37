package events

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/pkg/errors"
)

const workingDirPrefix = "repos"

// WorkingDir handles the workspace on disk a workflow run executes in.
type WorkingDir interface {
	// Clone materializes the repo at revision into destination. A depth of
	// zero clones full history.
	Clone(repo models.Repo, revision string, destination string, depth int) error
	DeleteClone(filePath string) error
	GenerateDirPath(repoName string) string
}

type FileWorkspace struct {
	DataDir string
	Logger  logging.Logger
}

func (w *FileWorkspace) Clone(repo models.Repo, revision string, destinationPath string, depth int) error {
	// Create the directory and parents if necessary.
	if err := os.MkdirAll(destinationPath, 0700); err != nil {
		return errors.Wrap(err, "creating new directory")
	}

	cloneCmd := []string{"git", "clone"}
	if depth > 0 {
		cloneCmd = append(cloneCmd, "--depth", strconv.Itoa(depth))
	}
	cloneCmd = append(cloneCmd, repo.CloneURL, destinationPath)
	if err := w.run(repo, cloneCmd, destinationPath); err != nil {
		return err
	}

	// Return immediately if commit at HEAD of clone matches the requested
	// revision.
	revParseOutput, _ := w.output(repo, []string{"git", "rev-parse", "HEAD"}, destinationPath)
	currCommit := strings.Trim(revParseOutput, "\n")
	if strings.HasPrefix(currCommit, revision) {
		return nil
	}

	// A full clone usually has the revision already. A shallow clone won't,
	// fetch it explicitly and retry.
	if err := w.run(repo, []string{"git", "checkout", revision}, destinationPath); err == nil {
		return nil
	}
	if err := w.run(repo, []string{"git", "fetch", "origin", revision}, destinationPath); err != nil {
		return err
	}
	return w.run(repo, []string{"git", "checkout", revision}, destinationPath)
}

func (w *FileWorkspace) DeleteClone(filePath string) error {
	return os.RemoveAll(filePath)
}

func (w *FileWorkspace) GenerateDirPath(repoName string) string {
	return filepath.Join(w.DataDir, workingDirPrefix, repoName, uuid.New().String())
}

func (w *FileWorkspace) run(repo models.Repo, args []string, destinationPath string) error {
	output, err := w.output(repo, args, destinationPath)
	if err != nil {
		// The clone URL embeds the access token, redact it everywhere it
		// can surface.
		sanitizedArgs := strings.Replace(strings.Join(args, " "), repo.CloneURL, repo.SanitizedCloneURL, -1)
		sanitizedOutput := strings.Replace(output, repo.CloneURL, repo.SanitizedCloneURL, -1)
		return errors.Errorf("running %s: %s: %s", sanitizedArgs, err, sanitizedOutput)
	}
	return nil
}

func (w *FileWorkspace) output(repo models.Repo, args []string, destinationPath string) (string, error) {
	cmd := exec.Command(args[0], args[1:]...) // nolint: gosec
	cmd.Dir = destinationPath
	cmd.Env = append(os.Environ(), []string{
		"EMAIL=greenlight@localhost",
		"GIT_AUTHOR_NAME=greenlight",
		"GIT_COMMITTER_NAME=greenlight",
	}...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}
