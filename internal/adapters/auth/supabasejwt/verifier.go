package supabasejwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"project-tracker/internal/ports/auth"
)

// Claims de un access token estilo Supabase: sub es el id del usuario.
// El claim "role" del proveedor se ignora; el rol sale de la membresía del tenant.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier valida tokens HS256 firmados con el secreto del proyecto.
type Verifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

type Options struct {
	Secret string
	// Opcionales: si se definen, el token debe traerlos.
	Issuer   string
	Audience string
	// Tolerancia de reloj.
	Leeway time.Duration
}

func NewVerifier(o Options) (*Verifier, error) {
	if strings.TrimSpace(o.Secret) == "" {
		return nil, errors.New("supabasejwt: secret required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if o.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(o.Issuer))
	}
	if o.Audience != "" {
		opts = append(opts, jwt.WithAudience(o.Audience))
	}
	if o.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(o.Leeway))
	}
	return &Verifier{secret: []byte(o.Secret), opts: opts}, nil
}

func (v *Verifier) Verify(_ context.Context, token string) (auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, auth.ErrInvalidToken
	}

	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}

	sub := strings.TrimSpace(c.Subject)
	if sub == "" {
		return auth.Claims{}, fmt.Errorf("%w: missing sub", auth.ErrInvalidToken)
	}
	return auth.Claims{UserID: sub, Email: strings.TrimSpace(c.Email)}, nil
}
