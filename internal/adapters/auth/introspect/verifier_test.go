package introspect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-tracker/internal/ports/auth"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tokens/verify" || r.Header.Get("X-Api-Key") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		switch in["token"] {
		case "good":
			_ = json.NewEncoder(w).Encode(map[string]string{"user_id": " u1 ", "email": "u1@example.com"})
		case "empty":
			_ = json.NewEncoder(w).Encode(map[string]string{})
		case "boom":
			http.Error(w, "boom", http.StatusBadGateway)
		default:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}))
}

func TestVerifier(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)
	v := NewVerifier(c)
	ctx := context.Background()

	claims, err := v.Verify(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, auth.Claims{UserID: "u1", Email: "u1@example.com"}, claims)

	_, err = v.Verify(ctx, "bad")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = v.Verify(ctx, "  ")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = v.Verify(ctx, "empty")
	assert.ErrorIs(t, err, ErrUpstream)

	_, err = v.Verify(ctx, "boom")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestVerifier_NotConfigured(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	_, err = NewVerifier(c).Verify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
