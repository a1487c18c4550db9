// Package statusapi is the REST client for the live status and presence
// endpoints. It implements livestatus.StatusQuerier and presence.Client.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
	"github.com/illmade-knight/go-livestatus/pkg/presence"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/rs/zerolog"
)

// Config locates the endpoints. Path templates use %d for the entity id.
type Config struct {
	BaseURL       string        `yaml:"base_url"`
	StatusPath    string        `yaml:"status_path"`
	JoinPath      string        `yaml:"join_path"`
	HeartbeatPath string        `yaml:"heartbeat_path"`
	LeavePath     string        `yaml:"leave_path"`
	Timeout       time.Duration `yaml:"timeout"`
}

// NewConfigDefaults returns the standard endpoint layout for baseURL.
func NewConfigDefaults(baseURL string) *Config {
	return &Config{
		BaseURL:       baseURL,
		StatusPath:    "/live/status",
		JoinPath:      "/live/%d/join",
		HeartbeatPath: "/live/%d/heartbeat",
		LeavePath:     "/live/%d/leave",
		Timeout:       15 * time.Second,
	}
}

// Validate checks the base url and that every presence path template takes
// exactly one %d and nothing else.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("statusapi base url is required"))
	} else if _, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid base url: %w", err))
	}
	for name, tmpl := range map[string]string{
		"join_path":      c.JoinPath,
		"heartbeat_path": c.HeartbeatPath,
		"leave_path":     c.LeavePath,
	} {
		if strings.Count(tmpl, "%d") != 1 || strings.Count(tmpl, "%") != 1 {
			errs = append(errs, fmt.Errorf("%s %q must contain exactly one %%d", name, tmpl))
		}
	}
	return errors.Join(errs...)
}

// Client calls the status and presence endpoints over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

var (
	_ livestatus.StatusQuerier = (*Client)(nil)
	_ presence.Client          = (*Client)(nil)
)

// NewClient creates a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg *Config, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("statusapi config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:        *cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "StatusAPIClient").Logger(),
	}, nil
}

// QueryStatus fetches the status of ids in one request. Ids the server has no
// data for are absent from the result.
func (c *Client) QueryStatus(ctx context.Context, ids []int64, headers http.Header) (map[string]types.Status, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.StatusPath + "?ids=" + strings.Join(parts, ",")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	copyHeaders(req, headers)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out map[string]types.Status
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if out == nil {
		out = map[string]types.Status{}
	}
	c.logger.Debug().Int("requested", len(ids)).Int("returned", len(out)).Msg("Status query complete.")
	return out, nil
}

// Join announces the viewer on entity id.
func (c *Client) Join(ctx context.Context, id int64, headers http.Header) error {
	return c.post(ctx, c.cfg.JoinPath, id, headers)
}

// Heartbeat keeps the viewer's presence on entity id alive.
func (c *Client) Heartbeat(ctx context.Context, id int64, headers http.Header) error {
	return c.post(ctx, c.cfg.HeartbeatPath, id, headers)
}

// Leave withdraws the viewer from entity id.
func (c *Client) Leave(ctx context.Context, id int64, headers http.Header) error {
	return c.post(ctx, c.cfg.LeavePath, id, headers)
}

func (c *Client) post(ctx context.Context, pathTemplate string, id int64, headers http.Header) error {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + fmt.Sprintf(pathTemplate, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build presence request: %w", err)
	}
	copyHeaders(req, headers)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("presence request for %d: %w", id, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return checkStatus(resp)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func copyHeaders(req *http.Request, headers http.Header) {
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}
