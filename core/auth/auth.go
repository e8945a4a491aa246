// Package auth trusts identities issued by an external OpenID Connect
// provider: requests carry an ID token as a bearer credential.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/irsalhamdi/course-progress/api/web"
	"github.com/irsalhamdi/course-progress/api/weberr"
	"github.com/irsalhamdi/course-progress/core/claims"
)

// Verifier turns a raw bearer token into claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (claims.Claims, error)
}

type OIDCVerifier struct {
	verifier  *oidc.IDTokenVerifier
	roleClaim string
}

// NewOIDCVerifier discovers the provider at issuer and verifies ID tokens
// issued for clientID. The learner's role is read from roleClaim.
func NewOIDCVerifier(ctx context.Context, issuer, clientID, roleClaim string) (*OIDCVerifier, error) {
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc provider %s: %w", issuer, err)
	}

	return &OIDCVerifier{
		verifier:  p.Verifier(&oidc.Config{ClientID: clientID}),
		roleClaim: roleClaim,
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, token string) (claims.Claims, error) {
	idt, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return claims.Claims{}, fmt.Errorf("verifying id token: %w", err)
	}

	var raw map[string]any
	if err := idt.Claims(&raw); err != nil {
		return claims.Claims{}, fmt.Errorf("decoding id token claims: %w", err)
	}

	clm := claims.Claims{LearnerID: idt.Subject, Role: claims.RoleLearner}
	if role, ok := raw[v.roleClaim].(string); ok && role != "" {
		clm.Role = role
	}

	return clm, nil
}

// StaticVerifier maps fixed tokens to claims. It backs local development and
// tests.
type StaticVerifier map[string]claims.Claims

func (s StaticVerifier) Verify(_ context.Context, token string) (claims.Claims, error) {
	c, ok := s[token]
	if !ok {
		return claims.Claims{}, errors.New("unknown token")
	}
	return c, nil
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

// Authenticate rejects requests without a valid bearer token and stores the
// verified claims in the context.
func Authenticate(v Verifier) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			token, ok := bearer(r)
			if !ok {
				return weberr.NotAuthorized(errors.New("missing bearer token"))
			}

			clm, err := v.Verify(ctx, token)
			if err != nil {
				return weberr.NotAuthorized(err)
			}

			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}

// Admin authenticates like Authenticate and additionally requires the admin
// role.
func Admin(v Verifier) web.Middleware {
	authen := Authenticate(v)
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if !claims.IsAdmin(ctx) {
				return weberr.Forbidden(errors.New("admin role required"))
			}
			return handler(ctx, w, r)
		}
		return authen(h)
	}
	return m
}
