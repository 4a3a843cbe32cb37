package github

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v45/github"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/pkg/errors"
)

// RemoteFileFetcher lists the files an event changed, so trigger path
// filters can be evaluated.
type RemoteFileFetcher struct {
	Client *gh.Client
}

// GetModifiedFilesFromCommit returns the files changed by a single commit.
func (r *RemoteFileFetcher) GetModifiedFilesFromCommit(ctx context.Context, repo models.Repo, sha string) ([]string, error) {
	var files []string
	nextPage := 0
	for {
		opts := gh.ListOptions{
			PerPage: 300,
		}
		if nextPage != 0 {
			opts.Page = nextPage
		}
		repositoryCommit, resp, err := r.Client.Repositories.GetCommit(ctx, repo.Owner, repo.Name, sha, &opts)
		if err != nil {
			return nil, errors.Wrap(err, "fetching repository commit")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("not ok status fetching repository commit: %s", resp.Status)
		}
		files = appendCommitFiles(files, repositoryCommit.Files)
		if resp.NextPage == 0 {
			break
		}
		nextPage = resp.NextPage
	}
	return files, nil
}

// GetModifiedFilesFromCommitRange returns the files changed between two
// commits, the way a push event changes them.
func (r *RemoteFileFetcher) GetModifiedFilesFromCommitRange(ctx context.Context, repo models.Repo, base string, head string) ([]string, error) {
	var files []string
	nextPage := 0
	for {
		opts := gh.ListOptions{
			PerPage: 300,
		}
		if nextPage != 0 {
			opts.Page = nextPage
		}
		comparison, resp, err := r.Client.Repositories.CompareCommits(ctx, repo.Owner, repo.Name, base, head, &opts)
		if err != nil {
			return nil, errors.Wrap(err, "comparing commits")
		}
		files = appendCommitFiles(files, comparison.Files)
		if resp.NextPage == 0 {
			break
		}
		nextPage = resp.NextPage
	}
	return files, nil
}

// GetModifiedFilesFromPR returns the names of files that were modified in
// the pull request relative to the repo root, e.g. parent/child/file.txt.
func (r *RemoteFileFetcher) GetModifiedFilesFromPR(ctx context.Context, repo models.Repo, pullNum int) ([]string, error) {
	var files []string
	nextPage := 0
	for {
		opts := gh.ListOptions{
			PerPage: 300,
		}
		if nextPage != 0 {
			opts.Page = nextPage
		}
		pageFiles, resp, err := r.Client.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, pullNum, &opts)
		if err != nil {
			return nil, errors.Wrap(err, "listing pull request files")
		}
		files = appendCommitFiles(files, pageFiles)
		if resp.NextPage == 0 {
			break
		}
		nextPage = resp.NextPage
	}
	return files, nil
}

func appendCommitFiles(files []string, commitFiles []*gh.CommitFile) []string {
	for _, f := range commitFiles {
		files = append(files, f.GetFilename())

		// A renamed file also counts as a change to the path it moved
		// away from.
		if f.GetStatus() == "renamed" {
			files = append(files, f.GetPreviousFilename())
		}
	}
	return files
}
