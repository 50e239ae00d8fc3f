package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"project-tracker/internal/platform/httpclient"
)

var (
	ErrNotConfigured = errors.New("capabilities client not configured")
	ErrUnauthorized  = errors.New("capabilities unauthorized")
	ErrUpstream      = errors.New("capabilities upstream error")
)

type Config struct {
	BaseURL string
	APIKey  string

	APIKeyHeader string
	Timeout      time.Duration
}

// Client consulta el servicio de capabilities globales (plan/features de plataforma).
type Client struct {
	http       *httpclient.Client
	configured bool
}

func NewClient(cfg Config) (*Client, error) {
	hc, err := httpclient.New(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	h := strings.TrimSpace(cfg.APIKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key != "" {
		hc.WithHeader(h, key)
	}
	return &Client{http: hc, configured: hc.BaseURL != "" && key != ""}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.configured
}

// CapabilitiesResponse: {"capabilities": {"platform:admin": true}}
type CapabilitiesResponse struct {
	Capabilities map[string]bool `json:"capabilities"`
}

func (c *Client) GetCapabilities(ctx context.Context, userID string) (CapabilitiesResponse, error) {
	if !c.IsConfigured() {
		return CapabilitiesResponse{}, ErrNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CapabilitiesResponse{}, errors.New("userID required")
	}

	var out CapabilitiesResponse
	err := c.http.DoJSON(ctx, http.MethodGet, "/v1/capabilities?user_id="+url.QueryEscape(userID), nil, nil, &out)
	if err != nil {
		switch httpclient.StatusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return CapabilitiesResponse{}, ErrUnauthorized
		default:
			return CapabilitiesResponse{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}
	if out.Capabilities == nil {
		out.Capabilities = map[string]bool{}
	}
	return out, nil
}
