package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/services/iam"
	"github.com/terraconstructs/gridauth/internal/session"
)

// AuthDependencies are the long-lived authenticators the middleware draws from. Either
// guard may be nil to disable it.
type AuthDependencies struct {
	APIToken *iam.APITokenAuthenticator
	Sessions *iam.SessionAuthenticatorFactory
	Cookies  *session.Manager
	Logger   hclog.Logger
}

func (d AuthDependencies) logger() hclog.Logger {
	if d.Logger == nil {
		return hclog.NewNullLogger()
	}
	return d.Logger
}

type sessionAuthenticatorKey struct{}

// SessionAuthenticatorFromContext returns the request's session authenticator.
func SessionAuthenticatorFromContext(ctx context.Context) (*iam.SessionAuthenticator, bool) {
	s, ok := ctx.Value(sessionAuthenticatorKey{}).(*iam.SessionAuthenticator)
	return s, ok && s != nil
}

// RequestAuth installs a fresh request state and, when sessions are enabled, a session
// authenticator bound to this request's cookies. It authenticates nothing by itself.
func RequestAuth(deps AuthDependencies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := auth.WithRequestState(r.Context())
			if deps.Sessions != nil && deps.Cookies != nil {
				sessions, remember := deps.Cookies.Stores(w, r)
				ctx = context.WithValue(ctx, sessionAuthenticatorKey{}, deps.Sessions.New(sessions, remember))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches a user when the request carries valid credentials: a bearer token
// first, then the session. Requests without credentials pass through as guests.
func OptionalAuth(deps AuthDependencies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := loginIfCan(r, deps); err != nil {
				WriteAuthError(w, r, deps.logger(), err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth is OptionalAuth that rejects guests with 401.
func RequireAuth(deps AuthDependencies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := loginIfCan(r, deps)
			if err == nil && !ok {
				err = auth.ErrAuthenticationFailed
			}
			if err != nil {
				WriteAuthError(w, r, deps.logger(), err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAPIToken accepts only bearer tokens.
func RequireAPIToken(deps AuthDependencies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if deps.APIToken == nil {
				WriteAuthError(w, r, deps.logger(), auth.ErrConfiguration)
				return
			}
			if err := deps.APIToken.Check(r.Context(), iam.NewAuthRequest(r)); err != nil {
				WriteAuthError(w, r, deps.logger(), err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession accepts only an authenticated session (including remember-me restores).
func RequireSession(deps AuthDependencies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sa, ok := SessionAuthenticatorFromContext(r.Context())
			if !ok {
				WriteAuthError(w, r, deps.logger(), auth.ErrConfiguration)
				return
			}
			if _, err := sa.Authenticate(r.Context()); err != nil {
				WriteAuthError(w, r, deps.logger(), err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loginIfCan(r *http.Request, deps AuthDependencies) (bool, error) {
	ctx := r.Context()
	if _, ok := auth.UserFromContext(ctx); ok {
		return true, nil
	}

	var guards []iam.Guard
	if deps.APIToken != nil {
		guards = append(guards, deps.APIToken)
	}
	if sa, ok := SessionAuthenticatorFromContext(ctx); ok {
		guards = append(guards, sa)
	}

	req := iam.NewAuthRequest(r)
	for _, g := range guards {
		ok, err := g.LoginIfCan(ctx, req)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// ErrorResponse is the JSON body of auth failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteAuthError maps an authentication error to a response: recoverable rejections are
// 401 with a generic message, anything else is logged and reported as 500.
func WriteAuthError(w http.ResponseWriter, r *http.Request, logger hclog.Logger, err error) {
	status := http.StatusUnauthorized
	msg := "unauthenticated"
	if !auth.IsRecoverable(err) {
		status = http.StatusInternalServerError
		msg = "internal error"
		logger.Error("authentication error", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		logger.Debug("authentication rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="gridauth"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
