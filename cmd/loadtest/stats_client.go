package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// InternalStatsSnapshot mirrors the subset of internal/stats.Snapshot this
// tool cares about; unknown fields are ignored by json.Unmarshal.
type InternalStatsSnapshot struct {
	Counters struct {
		SendQueueDropTotal int64 `json:"sendQueueDropTotal"`
	} `json:"counters"`
}

type StatsClient struct {
	httpClient *http.Client
	baseURL    string
	statsURL   string
	token      string
}

func NewStatsClient(baseURL, statsURL, token string) *StatsClient {
	return &StatsClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSpace(baseURL),
		statsURL:   strings.TrimSpace(statsURL),
		token:      strings.TrimSpace(token),
	}
}

func (c *StatsClient) endpointURL() (string, error) {
	if strings.HasPrefix(c.statsURL, "http://") || strings.HasPrefix(c.statsURL, "https://") {
		return c.statsURL, nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	path := c.statsURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base.Path = path
	base.RawQuery = ""
	base.Fragment = ""
	return base.String(), nil
}

func (c *StatsClient) Fetch(ctx context.Context) (InternalStatsSnapshot, error) {
	var snapshot InternalStatsSnapshot
	endpoint, err := c.endpointURL()
	if err != nil {
		return snapshot, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return snapshot, err
	}
	if c.token != "" {
		req.Header.Set("X-Internal-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return snapshot, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return snapshot, fmt.Errorf("stats endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return snapshot, err
	}
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}
