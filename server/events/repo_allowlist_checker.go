package events

import (
	"fmt"
	"regexp"
	"strings"
)

// Wildcard matches 0-n of all characters except commas.
const Wildcard = "*"

// RepoAllowlistChecker decides which repositories may trigger workflow runs.
// Rules are comma separated and matched against the repo ID, for example
// "github.com/octocat/*,github.com/greenlightci/greenlight".
type RepoAllowlistChecker struct {
	rules []*regexp.Regexp
}

// NewRepoAllowlistChecker constructs a new checker and validates that the
// allowlist isn't malformed.
func NewRepoAllowlistChecker(allowlist string) (*RepoAllowlistChecker, error) {
	var rules []*regexp.Regexp
	for _, rule := range strings.Split(allowlist, ",") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		if strings.Contains(rule, "://") {
			return nil, fmt.Errorf("allowlist %q contained ://", rule)
		}
		rules = append(rules, ruleToRegex(rule))
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("allowlist must contain at least one rule")
	}
	return &RepoAllowlistChecker{rules: rules}, nil
}

// IsAllowlisted returns true if the repo with this ID matches one of the
// allowlist rules.
func (c *RepoAllowlistChecker) IsAllowlisted(repoID string) bool {
	candidate := strings.ToLower(repoID)
	for _, rule := range c.rules {
		if rule.MatchString(candidate) {
			return true
		}
	}
	return false
}

func ruleToRegex(rule string) *regexp.Regexp {
	var quoted []string
	for _, part := range strings.Split(strings.ToLower(rule), Wildcard) {
		quoted = append(quoted, regexp.QuoteMeta(part))
	}
	return regexp.MustCompile("^" + strings.Join(quoted, ".*") + "$")
}
