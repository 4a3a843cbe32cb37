package events_test

import (
	"testing"

	"github.com/greenlightci/greenlight/server/events"
	. "github.com/greenlightci/greenlight/testing"
)

func TestRepoAllowlistChecker(t *testing.T) {
	cases := []struct {
		description string
		allowlist   string
		repoID      string
		exp         bool
	}{
		{
			"exact match",
			"github.com/octocat/hello-world",
			"github.com/octocat/hello-world",
			true,
		},
		{
			"exact mismatch",
			"github.com/octocat/hello-world",
			"github.com/octocat/goodbye-world",
			false,
		},
		{
			"match all with wildcard",
			"*",
			"github.com/octocat/hello-world",
			true,
		},
		{
			"owner wildcard",
			"github.com/octocat/*",
			"github.com/octocat/hello-world",
			true,
		},
		{
			"owner wildcard does not leak to other owners",
			"github.com/octocat/*",
			"github.com/hubot/hello-world",
			false,
		},
		{
			"wildcard in the middle",
			"github.com/octocat/hello-*-world",
			"github.com/octocat/hello-new-world",
			true,
		},
		{
			"second rule matches",
			"github.com/hubot/*,github.com/octocat/hello-world",
			"github.com/octocat/hello-world",
			true,
		},
		{
			"case insensitive",
			"github.com/OctoCat/Hello-World",
			"github.com/octocat/hello-world",
			true,
		},
		{
			"regex metacharacters are literal",
			"github.com/octocat/hello.world",
			"github.com/octocat/helloxworld",
			false,
		},
		{
			"whitespace around rules is ignored",
			"github.com/hubot/* , github.com/octocat/*",
			"github.com/octocat/hello-world",
			true,
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			checker, err := events.NewRepoAllowlistChecker(c.allowlist)
			Ok(t, err)
			Equals(t, c.exp, checker.IsAllowlisted(c.repoID))
		})
	}
}

func TestNewRepoAllowlistChecker_Invalid(t *testing.T) {
	_, err := events.NewRepoAllowlistChecker("https://github.com/octocat/*")
	ErrContains(t, "contained ://", err)

	_, err = events.NewRepoAllowlistChecker(" , ")
	ErrContains(t, "at least one rule", err)
}
