// Package feature decides which repos get features still being rolled out.
package feature

import (
	"context"

	"github.com/pkg/errors"
	"github.com/thomaspoignant/go-feature-flag"
	"github.com/thomaspoignant/go-feature-flag/ffuser"
)

// Configuration is the built-in flag state served when no flag file is
// configured.
const Configuration StringRetriever = `log-streaming:
  true: true
  false: false
  default: false
  trackEvents: false
dep-cache:
  true: true
  false: false
  default: true
  trackEvents: false`

type StringRetriever string

func (s StringRetriever) Retrieve(ctx context.Context) ([]byte, error) {
	return []byte(s), nil
}

// Allocator decides whether a repo gets a feature.
type Allocator interface {
	ShouldAllocate(featureID Name, fullRepoName string) (bool, error)
}

type RepoAllocator struct{}

// NewFileRepoAllocator reads flag definitions from a file, the way a
// deployment overrides the built-in defaults.
func NewFileRepoAllocator(filepath string) (Allocator, error) {
	err := ffclient.Init(
		ffclient.Config{
			Context:   context.Background(),
			Retriever: &ffclient.FileRetriever{Path: filepath},
		},
	)

	if err != nil {
		return nil, errors.Wrapf(err, "initializing feature allocator")
	}

	return &RepoAllocator{}, nil
}

// NewRepoAllocator serves the built-in flag defaults.
func NewRepoAllocator() (Allocator, error) {
	err := ffclient.Init(
		ffclient.Config{
			Context:   context.Background(),
			Retriever: Configuration,
		},
	)

	if err != nil {
		return nil, errors.Wrapf(err, "initializing feature allocator")
	}

	return &RepoAllocator{}, nil
}

func (r *RepoAllocator) ShouldAllocate(featureID Name, fullRepoName string) (bool, error) {
	repo := ffuser.NewUser(fullRepoName)
	shouldAllocate, err := ffclient.BoolVariation(string(featureID), repo, false)

	// An error reads as feature off.
	if err != nil {
		return false, errors.Wrapf(err, "getting feature %s", featureID)
	}

	return shouldAllocate, nil
}
