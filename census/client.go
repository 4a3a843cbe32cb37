// Package census builds the household income by state dataset published
// alongside the example pipeline's workflow runs.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/pkg/errors"
)

// DefaultBaseURL is the root of the Census data API.
const DefaultBaseURL = "https://api.census.gov/data"

// Table is a decoded Census matrix response, one header row plus one row
// per state.
type Table struct {
	Header []string
	Rows   [][]string
}

// Client fetches ACS tables from the Census API. Responses are cached on
// disk, published vintages never change.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient returns a client caching responses under cacheDir. apiKey may
// be empty, anonymous requests are allowed at a lower rate limit.
func NewClient(cacheDir string, apiKey string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		HTTP:    httpcache.NewTransport(diskcache.New(cacheDir)).Client(),
	}
}

// IncomeByState fetches the B19001 household income table for every state
// in the given ACS3 vintage.
func (c *Client) IncomeByState(ctx context.Context, year int) (*Table, error) {
	requestURL := fmt.Sprintf("%s/%d/acs/acs3?get=group(B19001)&for=state:*", c.BaseURL, year)
	if c.APIKey != "" {
		requestURL += "&key=" + c.APIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building census request")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint: errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("census api returned %s", resp.Status)
	}

	// Annotation columns come back as JSON nulls, they decode to empty
	// strings and never get read.
	var rows [][]string
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, errors.Wrap(err, "decoding census response")
	}
	if len(rows) < 2 {
		return nil, errors.Errorf("invalid api response format: %v", rows)
	}
	return &Table{Header: rows[0], Rows: rows[1:]}, nil
}
