package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/httpx"
)

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *entity.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the caller attached by RequireAuth.
func FromContext(ctx context.Context) (*entity.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*entity.Principal)
	return p, ok && p != nil
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(m *Manager, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := m.Validate(r.Context(), httpx.BearerToken(r))
			if err != nil {
				httpx.WriteError(w, logger, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole must run inside RequireAuth.
func RequireRole(logger *zap.SugaredLogger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				httpx.WriteError(w, logger, r, ErrMissingToken)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.WriteError(w, logger, r, ErrForbidden)
		})
	}
}
