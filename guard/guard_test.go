package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/profile"
	"github.com/MrEthical07/authsync/session"
)

type staticSource struct {
	sess *session.Session
}

func (s *staticSource) CurrentSession(context.Context) (*session.Session, error) {
	return s.sess.Clone(), nil
}

func (s *staticSource) Subscribe(context.Context, func(session.Event)) (session.Subscription, error) {
	return nopSubscription{}, nil
}

func (s *staticSource) SignOut(context.Context) error { return nil }

type nopSubscription struct{}

func (nopSubscription) Unsubscribe() error { return nil }

type mapProfiles struct {
	mu    sync.Mutex
	rows  map[string]*profile.Profile
	calls int
}

func (m *mapProfiles) Get(_ context.Context, id string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if p, ok := m.rows[id]; ok {
		return p.Clone(), nil
	}
	return nil, profile.ErrNotFound
}

func (m *mapProfiles) put(p *profile.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = p
}

func user(uid string) *session.Session {
	return &session.Session{ID: "sid-" + uid, UserID: uid, ExpiresAt: time.Now().Add(time.Hour).Unix()}
}

func settled(u *session.Session, p *profile.Profile) authsync.State {
	return authsync.State{User: u, Profile: p, Initialized: true}
}

func newReconciler(t *testing.T, sess *session.Session, rows ...*profile.Profile) (*authsync.Reconciler, *mapProfiles) {
	t.Helper()
	store := &mapProfiles{rows: make(map[string]*profile.Profile)}
	for _, p := range rows {
		store.rows[p.ID] = p
	}
	r, err := authsync.New().
		WithRetry(1, 0).
		WithSessionSource(&staticSource{sess: sess}).
		WithProfileStore(store).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, store
}

func TestEvaluate(t *testing.T) {
	routes := authsync.DefaultConfig().Routes
	student := &profile.Profile{ID: "u1", Role: profile.RoleStudent}
	admin := &profile.Profile{ID: "u1", Role: profile.RoleAdmin}

	tests := []struct {
		name     string
		state    authsync.State
		req      Requirement
		location string
		want     Decision
	}{
		{
			name:     "uninitialized waits",
			state:    authsync.State{},
			req:      RequireAuth(),
			location: "/quiz",
			want:     Decision{Action: ActionWait},
		},
		{
			name:     "loading waits even when initialized",
			state:    authsync.State{Initialized: true, Loading: true},
			req:      RequireAuth(),
			location: "/quiz",
			want:     Decision{Action: ActionWait},
		},
		{
			name:     "auth required without user redirects to sign-in",
			state:    settled(nil, nil),
			req:      RequireAuth(),
			location: "/quiz",
			want:     Decision{Action: ActionRedirect, To: "/login", Notice: NoticeSignInRequired},
		},
		{
			name:     "auth required with user renders",
			state:    settled(user("u1"), student),
			req:      RequireAuth(),
			location: "/quiz",
			want:     Decision{Action: ActionRender},
		},
		{
			name:     "guest page with user on auth entry redirects to landing",
			state:    settled(user("u1"), student),
			req:      RequireGuest(),
			location: "/login",
			want:     Decision{Action: ActionRedirect, To: "/student"},
		},
		{
			name:     "guest page with user elsewhere renders",
			state:    settled(user("u1"), student),
			req:      RequireGuest(),
			location: "/about",
			want:     Decision{Action: ActionRender},
		},
		{
			name:     "guest page off auth entry still enforces roles",
			state:    settled(user("u1"), student),
			req:      Requirement{RequireUnauth: true, Roles: []profile.Role{profile.RoleAdmin}},
			location: "/admin",
			want:     Decision{Action: ActionRedirect, To: "/student", Notice: NoticeForbidden},
		},
		{
			name:     "guest page off auth entry renders for matching role",
			state:    settled(user("u1"), admin),
			req:      Requirement{RequireUnauth: true, Roles: []profile.Role{profile.RoleAdmin}},
			location: "/admin",
			want:     Decision{Action: ActionRender},
		},
		{
			name:     "guest page without user renders",
			state:    settled(nil, nil),
			req:      RequireGuest(),
			location: "/register",
			want:     Decision{Action: ActionRender},
		},
		{
			name:     "wrong role redirects to own landing",
			state:    settled(user("u1"), student),
			req:      RequireAuth(profile.RoleAdmin),
			location: "/admin",
			want:     Decision{Action: ActionRedirect, To: "/student", Notice: NoticeForbidden},
		},
		{
			name:     "matching role renders",
			state:    settled(user("u1"), admin),
			req:      RequireAuth(profile.RoleAdmin, profile.RoleTeacher),
			location: "/admin",
			want:     Decision{Action: ActionRender},
		},
		{
			name:     "missing profile with roles redirects to root",
			state:    settled(user("u1"), nil),
			req:      RequireAuth(profile.RoleTeacher),
			location: "/teacher",
			want:     Decision{Action: ActionRedirect, To: "/", Notice: NoticeForbidden},
		},
		{
			name:     "redirect never targets the current location",
			state:    settled(user("u1"), nil),
			req:      RequireAuth(profile.RoleTeacher),
			location: "/",
			want:     Decision{Action: ActionRedirect, To: "/login", Notice: NoticeForbidden},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.state, tc.req, tc.location, routes)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestCheckWaitsBeforeInitialization(t *testing.T) {
	r, store := newReconciler(t, user("u1"), &profile.Profile{ID: "u1", Role: profile.RoleStudent})
	g := New(r)

	d, _ := g.Check(context.Background(), RequireAuth(), "/quiz")
	if d.Action != ActionWait {
		t.Fatalf("expected wait, got %+v", d)
	}
	if store.calls != 0 {
		t.Fatal("guard must not look up profiles before initialization")
	}
	if r.Metrics().Value(authsync.MetricGuardWait) != 1 {
		t.Fatal("expected wait to be counted")
	}
}

func TestSelfHealRefreshesOncePerUser(t *testing.T) {
	r, store := newReconciler(t, user("u1"))
	r.Initialize(context.Background())
	if store.calls != 1 {
		t.Fatalf("expected one lookup during initialize, got %d", store.calls)
	}

	store.put(&profile.Profile{ID: "u1", Role: profile.RoleTeacher})
	g := New(r)

	d, s := g.Check(context.Background(), RequireAuth(profile.RoleTeacher), "/teacher")
	if d.Action != ActionRender || s.Role() != profile.RoleTeacher {
		t.Fatalf("expected healed render, got %+v with %+v", d, s)
	}
	if store.calls != 2 {
		t.Fatalf("expected one self-heal lookup, got %d total", store.calls)
	}

	if err := r.SetProfile(nil); err != nil {
		t.Fatalf("clear profile: %v", err)
	}
	g.Check(context.Background(), RequireAuth(), "/quiz")
	if store.calls != 2 {
		t.Fatalf("self-heal must not repeat for the same user, got %d lookups", store.calls)
	}
	if r.Metrics().Value(authsync.MetricGuardSelfHeal) != 1 {
		t.Fatal("expected one self-heal counted")
	}
}

func TestMiddlewareWaitRedirectRender(t *testing.T) {
	r, _ := newReconciler(t, nil)
	inbox := NewInbox(4)
	g := New(r, WithNotifier(inbox))

	h := g.RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s, ok := StateFromContext(req.Context())
		if !ok || !s.Initialized {
			t.Errorf("expected state in context, got %+v %v", s, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quiz", nil))
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 503 wait, got %d %v", rec.Code, rec.Header())
	}
	if rec.Header().Get("Location") != "" {
		t.Fatal("wait must not redirect")
	}

	r.Initialize(context.Background())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quiz", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if rec.Header().Get(NoticeHeader) != NoticeSignInRequired {
		t.Fatalf("expected notice header, got %q", rec.Header().Get(NoticeHeader))
	}
	notices := inbox.Drain()
	if len(notices) != 1 || notices[0].Message != NoticeSignInRequired || notices[0].From != "/quiz" {
		t.Fatalf("unexpected notices: %+v", notices)
	}

	guest := g.RequireGuestOnly()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec = httptest.NewRecorder()
	guest.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected sign-in page to render for guests, got %d", rec.Code)
	}
}

func TestMiddlewareRendersForSignedInRole(t *testing.T) {
	r, _ := newReconciler(t, user("u1"), &profile.Profile{ID: "u1", Role: profile.RoleAdmin})
	r.Initialize(context.Background())
	g := New(r)

	h := g.RequireAuthenticated(profile.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s, _ := StateFromContext(req.Context())
		if s.Role() != profile.RoleAdmin {
			t.Errorf("expected admin in context, got %q", s.Role())
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	g.RequireGuestOnly()(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/register", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/admin" {
		t.Fatalf("expected signed-in visitor bounced to /admin, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}
