package github

import (
	"context"

	gh "github.com/google/go-github/v45/github"
	"github.com/greenlightci/greenlight/server/events/models"
	"github.com/greenlightci/greenlight/server/vcs/provider/github/converter"
	"github.com/pkg/errors"
)

// RepoFetcher resolves a repo full name into a clonable models.Repo. The
// scheduler uses it to turn configured repo IDs into repos it can tick.
type RepoFetcher struct {
	Client        *gh.Client
	RepoConverter converter.RepoConverter
}

func (r *RepoFetcher) Fetch(ctx context.Context, owner string, name string) (models.Repo, error) {
	repository, _, err := r.Client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return models.Repo{}, errors.Wrapf(err, "fetching repo %s/%s", owner, name)
	}
	return r.RepoConverter.Convert(repository)
}
