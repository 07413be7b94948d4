package airbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mtr002/linkboard/internal/logger"
)

const (
	DefaultBaseURL         = "https://api.airbridge.io"
	DefaultPollInterval    = time.Second
	DefaultPollMaxAttempts = 20
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("airbridge: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	BaseURL         string
	AppName         string
	APIToken        string
	Timeout         time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
	HTTPClient      *http.Client
}

// Client talks to the Airbridge tracking-link and report APIs.
type Client struct {
	baseURL         string
	appName         string
	token           string
	http            *http.Client
	pollInterval    time.Duration
	pollMaxAttempts int
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		appName:         opts.AppName,
		token:           opts.APIToken,
		http:            opts.HTTPClient,
		pollInterval:    opts.PollInterval,
		pollMaxAttempts: opts.PollMaxAttempts,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.pollMaxAttempts <= 0 {
		c.pollMaxAttempts = DefaultPollMaxAttempts
	}
	return c
}

// TrackingLinkRequest describes the campaign parameters of a new link.
type TrackingLinkRequest struct {
	Channel     string
	Campaign    string
	AdGroup     string
	AdCreative  string
	FallbackURL string
}

// TrackingLink is the part of the create response the dashboard keeps.
type TrackingLink struct {
	ID       string
	ShortURL string
}

type createTrackingLinkBody struct {
	Channel        string            `json:"channel"`
	CampaignParams map[string]string `json:"campaignParams"`
	IsReengagement string            `json:"isReengagement"`
	FallbackPaths  map[string]string `json:"fallbackPaths,omitempty"`
}

type createTrackingLinkResponse struct {
	Data struct {
		TrackingLink struct {
			ID       json.Number `json:"id"`
			ShortURL string      `json:"shortUrl"`
		} `json:"trackingLink"`
	} `json:"data"`
}

// CreateTrackingLink creates one short tracking link.
func (c *Client) CreateTrackingLink(ctx context.Context, req TrackingLinkRequest) (*TrackingLink, error) {
	body := createTrackingLinkBody{
		Channel: req.Channel,
		CampaignParams: map[string]string{
			"campaign":    req.Campaign,
			"ad_group":    req.AdGroup,
			"ad_creative": req.AdCreative,
		},
		IsReengagement: "OFF",
	}
	if req.FallbackURL != "" {
		body.FallbackPaths = map[string]string{"desktop": req.FallbackURL}
	}

	var resp createTrackingLinkResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tracking-links", body, &resp); err != nil {
		return nil, err
	}
	if resp.Data.TrackingLink.ShortURL == "" {
		return nil, fmt.Errorf("airbridge: tracking link response has no short url")
	}

	return &TrackingLink{
		ID:       resp.Data.TrackingLink.ID.String(),
		ShortURL: resp.Data.TrackingLink.ShortURL,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("airbridge: failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("airbridge: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("airbridge: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("airbridge: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Airbridge request failed")
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("airbridge: failed to decode response: %w", err)
	}
	return nil
}
