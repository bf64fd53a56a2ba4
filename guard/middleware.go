package guard

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/profile"
)

// NoticeHeader carries a redirect's notice to clients that cannot read the
// Notifier.
const NoticeHeader = "X-Authsync-Notice"

// StateFromContext returns the state the middleware rendered under.
func StateFromContext(ctx context.Context) (authsync.State, bool) {
	return authsync.StateFromContext(ctx)
}

// Middleware enforces req on every request. Waiting becomes 503 with
// Retry-After and no Location; a redirect becomes 303; a render passes the
// request on with the decided state in its context.
func (g *Guard) Middleware(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, s := g.Check(r.Context(), req, r.URL.Path)
			switch d.Action {
			case ActionWait:
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusServiceUnavailable)
			case ActionRedirect:
				if d.Notice != "" {
					w.Header().Set(NoticeHeader, d.Notice)
				}
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, d.To, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r.WithContext(authsync.WithState(r.Context(), s)))
			}
		})
	}
}

// RequireAuthenticated is Middleware(RequireAuth(roles...)).
func (g *Guard) RequireAuthenticated(roles ...profile.Role) func(http.Handler) http.Handler {
	return g.Middleware(RequireAuth(roles...))
}

// RequireGuestOnly is Middleware(RequireGuest()).
func (g *Guard) RequireGuestOnly() func(http.Handler) http.Handler {
	return g.Middleware(RequireGuest())
}
