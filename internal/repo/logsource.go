// Package repo holds HTTP clients for the engine's external data services:
// the Splunk-like log search API and the Weaviate document store.
package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/scoobystack/scooby-engine/internal/config"
)

// Incident is one detected incident summary from the log source.
type Incident struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
}

// LogRecord is one raw log line with its derived level.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Service   string    `json:"service"`
	Host      string    `json:"host"`
}

// LogSourceClient queries the upstream log search API.
type LogSourceClient struct {
	baseURL       string
	incidentsPath string
	searchPath    string
	token         string
	httpClient    *http.Client
}

// NewLogSourceClient constructs a client targeting the configured search API.
func NewLogSourceClient(cfg config.LogSourceConfig) *LogSourceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LogSourceClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		incidentsPath: cfg.IncidentsPath,
		searchPath:    cfg.SearchPath,
		token:         cfg.Token,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// RecentIncidents returns incidents detected in the trailing window, newest
// first. Severity is derived upstream from raw log levels: FATAL/CRITICAL
// map to P1, ERROR to P2, everything else to P3.
func (c *LogSourceClient) RecentIncidents(ctx context.Context, hours int) ([]Incident, error) {
	if c == nil {
		return nil, fmt.Errorf("log source client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("log source base URL not configured")
	}
	if hours <= 0 {
		hours = 24
	}

	payload := map[string]interface{}{
		"earliest_hours": hours,
		"limit":          50,
	}

	var response struct {
		Incidents []struct {
			ID        string    `json:"id"`
			Service   string    `json:"service"`
			Severity  string    `json:"severity"`
			Timestamp time.Time `json:"timestamp"`
			Message   string    `json:"message"`
			Count     int       `json:"count"`
		} `json:"incidents"`
	}

	if err := c.postJSON(ctx, c.resolvePath(c.incidentsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("log source incidents request failed: %w", err)
	}

	incidents := make([]Incident, 0, len(response.Incidents))
	for _, in := range response.Incidents {
		incidents = append(incidents, Incident{
			ID:        in.ID,
			Service:   in.Service,
			Severity:  normalizeSeverity(in.Severity),
			Timestamp: in.Timestamp,
			Message:   in.Message,
			Count:     in.Count,
		})
	}
	return incidents, nil
}

// SearchLogs returns raw log lines for one service in the trailing window.
func (c *LogSourceClient) SearchLogs(ctx context.Context, service string, hours int) ([]LogRecord, error) {
	if c == nil {
		return nil, fmt.Errorf("log source client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("log source base URL not configured")
	}
	if hours <= 0 {
		hours = 1
	}

	payload := map[string]interface{}{
		"service":        service,
		"earliest_hours": hours,
		"limit":          100,
	}

	var response struct {
		Records []struct {
			Timestamp time.Time `json:"timestamp"`
			Message   string    `json:"message"`
			Host      string    `json:"host"`
		} `json:"records"`
	}

	if err := c.postJSON(ctx, c.resolvePath(c.searchPath), payload, &response); err != nil {
		return nil, fmt.Errorf("log source search request failed: %w", err)
	}

	records := make([]LogRecord, 0, len(response.Records))
	for _, rec := range response.Records {
		records = append(records, LogRecord{
			Timestamp: rec.Timestamp,
			Level:     deriveLevel(rec.Message),
			Message:   rec.Message,
			Service:   service,
			Host:      rec.Host,
		})
	}
	return records, nil
}

// normalizeSeverity maps raw level keywords onto the P1/P2/P3 scale when the
// upstream did not already classify the record.
func normalizeSeverity(severity string) string {
	switch strings.ToUpper(strings.TrimSpace(severity)) {
	case "P1", "P2", "P3":
		return strings.ToUpper(strings.TrimSpace(severity))
	case "FATAL", "CRITICAL":
		return "P1"
	case "ERROR":
		return "P2"
	default:
		return "P3"
	}
}

func deriveLevel(message string) string {
	upper := strings.ToUpper(message)
	switch {
	case strings.Contains(upper, "ERROR"):
		return "ERROR"
	case strings.Contains(upper, "WARN"):
		return "WARN"
	case strings.Contains(upper, "INFO"):
		return "INFO"
	default:
		return "DEBUG"
	}
}

func (c *LogSourceClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *LogSourceClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("log source returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
