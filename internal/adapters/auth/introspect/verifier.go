package introspect

import (
	"context"
	"strings"

	"project-tracker/internal/ports/auth"
)

// Verifier implementa auth.AuthVerifier contra el servicio de introspección.
type Verifier struct {
	client *Client
}

func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || v.client == nil {
		return auth.Claims{}, ErrNotConfigured
	}
	if strings.TrimSpace(token) == "" {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return v.client.VerifyToken(ctx, token)
}
