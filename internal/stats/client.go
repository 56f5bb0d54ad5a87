// Package stats is the HTTP client for the view-count collector. The
// collector only decorates read responses, so every failure here degrades
// to zero counts instead of failing the calling request.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const dateTimeLayout = "2006-01-02 15:04:05"

type EndpointHit struct {
	App       string `json:"app"`
	URI       string `json:"uri"`
	IP        string `json:"ip"`
	Timestamp string `json:"timestamp"`
}

type ViewStats struct {
	App  string `json:"app"`
	URI  string `json:"uri"`
	Hits int64  `json:"hits"`
}

type Client struct {
	baseURL string
	app     string
	httpc   *http.Client
	log     *zerolog.Logger
}

func NewClient(baseURL, app string, log *zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		app:     app,
		httpc:   &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

// RecordAccess reports a single endpoint hit. Best effort: errors are
// logged and swallowed.
func (c *Client) RecordAccess(ctx context.Context, uri, clientIP string, ts time.Time) {
	hit := EndpointHit{
		App:       c.app,
		URI:       uri,
		IP:        clientIP,
		Timestamp: ts.Format(dateTimeLayout),
	}
	body, err := json.Marshal(hit)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to marshal endpoint hit")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/hit", strings.NewReader(string(body)))
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to build hit request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to record hit statistics")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("stats service rejected hit")
	}
}

// QueryCounts fetches per-URI view counts for a time range.
func (c *Client) QueryCounts(ctx context.Context, start, end time.Time, uris []string, unique bool) ([]ViewStats, error) {
	q := url.Values{}
	q.Set("start", start.Format(dateTimeLayout))
	q.Set("end", end.Format(dateTimeLayout))
	q.Set("unique", fmt.Sprintf("%t", unique))
	for _, u := range uris {
		q.Add("uris", u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build stats request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats service returned %d", resp.StatusCode)
	}

	var out []ViewStats
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}
	return out, nil
}

// EventViews returns the unique view count of a single event page, zero
// when the collector is unreachable.
func (c *Client) EventViews(ctx context.Context, eventID int64) int64 {
	uri := fmt.Sprintf("/events/%d", eventID)
	now := time.Now()
	counts, err := c.QueryCounts(ctx, now.AddDate(-1, 0, 0), now, []string{uri}, true)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to get event views")
		return 0
	}
	for _, v := range counts {
		if v.URI == uri {
			return v.Hits
		}
	}
	return 0
}
