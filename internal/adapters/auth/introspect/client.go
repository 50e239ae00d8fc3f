package introspect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"project-tracker/internal/platform/httpclient"
	"project-tracker/internal/ports/auth"
)

var (
	ErrNotConfigured = errors.New("introspect client not configured")
	ErrUpstream      = errors.New("introspect upstream error")
)

// Config del servicio de introspección de tokens.
type Config struct {
	BaseURL string
	APIKey  string

	// Header de la API key; vacío usa "X-Api-Key".
	APIKeyHeader string
	Timeout      time.Duration

	// Path del endpoint; vacío usa "/v1/tokens/verify".
	VerifyPath string
}

type Client struct {
	http       *httpclient.Client
	verifyPath string
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
	p := strings.TrimSpace(cfg.VerifyPath)
	if p == "" {
		p = "/v1/tokens/verify"
	}
	return &Client{
		http:       hc,
		verifyPath: p,
		configured: hc.BaseURL != "" && key != "",
	}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.configured
}

type verifyResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// VerifyToken pide al proveedor que valide el token y devuelva la identidad.
func (c *Client) VerifyToken(ctx context.Context, token string) (auth.Claims, error) {
	if !c.IsConfigured() {
		return auth.Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, auth.ErrInvalidToken
	}

	var out verifyResponse
	err := c.http.DoJSON(ctx, http.MethodPost, c.verifyPath,
		map[string]string{"Authorization": "Bearer " + token},
		map[string]string{"token": token},
		&out,
	)
	if err != nil {
		switch httpclient.StatusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return auth.Claims{}, auth.ErrInvalidToken
		default:
			return auth.Claims{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}

	out.UserID = strings.TrimSpace(out.UserID)
	if out.UserID == "" {
		return auth.Claims{}, fmt.Errorf("%w: response missing user_id", ErrUpstream)
	}
	return auth.Claims{UserID: out.UserID, Email: strings.TrimSpace(out.Email)}, nil
}
