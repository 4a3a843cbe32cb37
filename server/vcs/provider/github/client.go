// Package github talks to github.com on behalf of the server: parsing
// webhooks into internal models, fetching changed files and setting
// commit statuses.
package github

import (
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v45/github"
)

// NewClient returns a go-github client authenticating every request with
// the given user and personal access token. A hostname other than
// github.com is treated as a GitHub Enterprise installation.
func NewClient(hostname string, user string, token string) (*gh.Client, error) {
	transport := &gh.BasicAuthTransport{
		Username: strings.TrimSpace(user),
		Password: strings.TrimSpace(token),
	}
	if hostname == "" || hostname == "github.com" {
		return gh.NewClient(&http.Client{Transport: transport}), nil
	}
	baseURL := fmt.Sprintf("https://%s/api/v3/", hostname)
	uploadURL := fmt.Sprintf("https://%s/api/uploads/", hostname)
	return gh.NewEnterpriseClient(baseURL, uploadURL, &http.Client{Transport: transport})
}
