/**
 * @description
 * Client for the store membership directory. Grace-period eligibility and
 * in-store promotion both depend on whether a listing's owner belongs to
 * the storefront being promoted into.
 */
package storeclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client provides membership lookups against the store directory service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new store directory client.
func NewClient(baseURL, apiKey string) *Client {
	normalizedURL := strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL:    normalizedURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsMember reports whether the user belongs to the store. A 404 from the
// directory means "not a member" rather than an error.
func (c *Client) IsMember(ctx context.Context, storeID, userID string) (bool, error) {
	if c.baseURL == "" {
		return false, fmt.Errorf("store directory base URL is not configured")
	}

	url := fmt.Sprintf("%s/internal/stores/%s/members/%s", c.baseURL, storeID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("store directory returned status %d", resp.StatusCode)
	}
}

// StaticDirectory is a directory backed by a fixed membership table, used
// in local mode when no directory service is configured.
type StaticDirectory struct {
	Members map[string][]string // storeID -> userIDs
}

// IsMember checks the static table.
func (d *StaticDirectory) IsMember(ctx context.Context, storeID, userID string) (bool, error) {
	for _, id := range d.Members[storeID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}
