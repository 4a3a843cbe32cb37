// Package converter turns go-github webhook payloads into the internal
// event models.
package converter

import (
	"github.com/greenlightci/greenlight/server/events/models"
)

// RepoConverter converts a github repository to our internal model.
type RepoConverter struct {
	GithubUser  string
	GithubToken string
}

type externalRepo interface {
	GetFullName() string
	GetCloneURL() string
	GetDefaultBranch() string
}

func (c RepoConverter) Convert(ghRepo externalRepo) (models.Repo, error) {
	repo, err := models.NewRepo(ghRepo.GetFullName(), ghRepo.GetCloneURL(), c.GithubUser, c.GithubToken)
	if err != nil {
		return models.Repo{}, err
	}
	repo.DefaultBranch = ghRepo.GetDefaultBranch()
	return repo, nil
}
