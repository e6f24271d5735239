package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/service"
	"github.com/aussiebroadwan/accounts/pkg/accountsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal set by Authn.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// Authn resolves the bearer token to an active principal. A missing or
// invalid token is answered with 401 and a WWW-Authenticate challenge, an
// inactive account with 403.
func Authn(auth *service.AuthService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := httpx.BearerToken(r)
			if !ok {
				writeInvalidToken(w)
				return
			}

			p, err := auth.Authorize(ctx, token)
			switch {
			case errors.Is(err, service.ErrUnauthenticated):
				writeInvalidToken(w)
				return
			case errors.Is(err, service.ErrForbidden):
				accountsdk.ErrInactiveAccount.WriteError(w)
				return
			case err != nil:
				slogx.FromContext(ctx).Error("authorize failed", slog.Any("err", err))
				accountsdk.ErrServerError.WriteError(w)
				return
			}

			ctx = httpx.WithUserID(ctx, p.UserID)
			ctx = withPrincipal(ctx, p)
			ctx = slogx.With(ctx, "user_id", p.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSuperuser must run after Authn.
func RequireSuperuser(auth *service.AuthService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeInvalidToken(w)
				return
			}
			if err := auth.RequireSuperuser(p); err != nil {
				accountsdk.ErrInsufficientPrivileges.WriteError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeInvalidToken(w http.ResponseWriter) {
	e := accountsdk.ErrInvalidToken
	httpx.WriteBearerError(w, e.StatusCode, e.Code, e.Description)
}
