package guard

import (
	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/profile"
)

// Action is what a view should do.
type Action uint8

const (
	// ActionWait renders nothing and does not navigate.
	ActionWait Action = iota
	// ActionRender renders the protected content.
	ActionRender
	// ActionRedirect navigates to Decision.To.
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "wait"
	case ActionRender:
		return "render"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// User-facing notices attached to redirects.
const (
	NoticeSignInRequired = "Please sign in to continue."
	NoticeForbidden      = "You do not have access to that page."
)

// Decision is the outcome of Evaluate. To and Notice are set only for
// ActionRedirect; Notice may be empty.
type Decision struct {
	Action Action
	To     string
	Notice string
}

// Requirement describes what a view demands of its visitor.
type Requirement struct {
	RequireAuth   bool
	RequireUnauth bool
	Roles         []profile.Role
}

// RequireAuth demands a signed-in visitor holding one of roles, or any
// role when none are given.
func RequireAuth(roles ...profile.Role) Requirement {
	return Requirement{RequireAuth: true, Roles: roles}
}

// RequireGuest marks an auth-entry view such as the sign-in page.
func RequireGuest() Requirement {
	return Requirement{RequireUnauth: true}
}

// Evaluate maps a state to a decision. Rules apply in order:
//
//  1. not initialized or loading: wait
//  2. auth required and no user: redirect to sign-in
//  3. guest required, user present, location is an auth-entry page:
//     redirect to the user's landing page; elsewhere the role rule
//     still applies
//  4. roles required and the profile is absent or holds another role:
//     redirect to the landing page of the role actually held
//  5. otherwise render
func Evaluate(s authsync.State, req Requirement, location string, routes authsync.RoutesConfig) Decision {
	if !s.Settled() {
		return Decision{Action: ActionWait}
	}

	if req.RequireAuth && s.User == nil {
		return redirect(routes.SignIn, NoticeSignInRequired, location, routes)
	}

	if req.RequireUnauth && s.User != nil && routes.IsAuthEntry(location) {
		to := routes.Home
		if s.Profile != nil {
			to = s.Profile.Role.Landing()
		}
		return redirect(to, "", location, routes)
	}

	if len(req.Roles) > 0 && !s.Profile.HasRole(req.Roles...) {
		return redirect(s.Role().Landing(), NoticeForbidden, location, routes)
	}

	return Decision{Action: ActionRender}
}

// redirect never targets the current location: a forbidden landing page
// falls back to Home, then to the sign-in page.
func redirect(to, notice, location string, routes authsync.RoutesConfig) Decision {
	for _, candidate := range []string{to, routes.Home, routes.SignIn} {
		if candidate != "" && candidate != location {
			return Decision{Action: ActionRedirect, To: candidate, Notice: notice}
		}
	}
	return Decision{Action: ActionWait}
}
