package supercell

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wager-escrow-go/internal/provider"
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// apiClient is the bearer-token JSON client shared by the Clash of Clans
// and Brawl Stars adapters. Both APIs use the same auth and error shapes.
type apiClient struct {
	baseURL    string
	apiKey     string
	httpClient httpDoer
}

func newAPIClient(baseURL, apiKey string, httpClient httpDoer) *apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *apiClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := provider.MapStatusCode(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", provider.ErrTransient, err)
	}
	return nil
}
