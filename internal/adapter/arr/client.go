package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

// Factory builds API clients for registered instances.
// Implements port.ClientFactory.
type Factory struct {
	timeout time.Duration
}

// NewFactory creates a client factory with a per-call timeout.
func NewFactory(timeout time.Duration) *Factory {
	return &Factory{timeout: timeout}
}

// ForInstance returns a client bound to one instance's base URL and API key.
func (f *Factory) ForInstance(baseURL, apiKey string) port.InstanceClient {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: f.timeout},
	}
}

// Client talks to one Radarr/Sonarr-compatible instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ApplyConfiguration pushes one recomputed definition payload to the
// instance's bulk configuration endpoint and returns the number of items the
// instance reports as updated.
func (c *Client) ApplyConfiguration(ctx context.Context, kind string, payload json.RawMessage) (int, error) {
	path, err := endpointFor(kind)
	if err != nil {
		return 0, err
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("put %s: status %d: %s", url, resp.StatusCode, truncate(string(body), 200))
	}

	// Instances report the updated item count; absent or malformed bodies
	// count as a single applied item.
	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Count < 1 {
		return 1, nil
	}
	return result.Count, nil
}

func endpointFor(kind string) (string, error) {
	switch kind {
	case domain.DefinitionKindFormat:
		return "/api/v3/customformat/bulk", nil
	case domain.DefinitionKindQualityProfile:
		return "/api/v3/qualityprofile/bulk", nil
	default:
		return "", fmt.Errorf("unknown definition kind %q", kind)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
