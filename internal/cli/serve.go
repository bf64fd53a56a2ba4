package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/guard"
	"github.com/MrEthical07/authsync/internal/rate"
	"github.com/MrEthical07/authsync/metrics/export/prometheus"
	"github.com/MrEthical07/authsync/profile"
	"github.com/MrEthical07/authsync/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr  string
		token string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo server with guarded routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			client := b.client(cfg.Session.Device, token)
			r, err := b.reconciler(cfg, client)
			if err != nil {
				return err
			}
			defer r.Close()

			m, err := r.Mount(ctx)
			if err != nil {
				return fmt.Errorf("mount: %w", err)
			}
			defer m.Unmount()

			srv := newServer(r, client, b.issuer(), cfg.Session.Device, logger)
			srv.limiter = b.signInLimiter(cfg)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", addr, "device", cfg.Session.Device)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("listen: %w", err)
				}
			case <-ctx.Done():
			}
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&token, "token", defaultToken(), "Session token the device starts with (or AUTHSYNC_TOKEN env)")
	return cmd
}

// server is the demo application: a handful of pages behind the route guard
// and a small JSON API that drives the device's session.
type server struct {
	rec     *authsync.Reconciler
	client  *session.Client
	issuer  *session.Backend
	device  string
	guard   *guard.Guard
	inbox   *guard.Inbox
	metrics http.Handler
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newServer(r *authsync.Reconciler, client *session.Client, issuer *session.Backend, device string, logger *slog.Logger) *server {
	inbox := guard.NewInbox(32)
	logNotes := guard.LogNotifier{Logger: logger}
	notify := guard.NotifierFunc(func(ctx context.Context, n guard.Notice) {
		inbox.Notify(ctx, n)
		logNotes.Notify(ctx, n)
	})
	return &server{
		rec:     r,
		client:  client,
		issuer:  issuer,
		device:  device,
		guard:   guard.New(r, guard.WithNotifier(notify), guard.WithLogger(logger)),
		inbox:   inbox,
		metrics: prometheus.NewPrometheusExporter(r).Handler(),
		logger:  logger.With("component", "server"),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.page)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/notices", s.handleNotices)
		r.Post("/session", s.handleAdoptToken)
		r.Post("/signin", s.handleSignIn)
		r.Post("/signout", s.handleSignOut)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.guard.RequireGuestOnly())
		r.Get("/login", s.page)
		r.Get("/register", s.page)
		r.Get("/confirm-email", s.page)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.guard.RequireAuthenticated())
		r.Get("/quiz", s.page)
	})
	r.With(s.guard.RequireAuthenticated(profile.RoleStudent)).Get("/student", s.page)
	r.With(s.guard.RequireAuthenticated(profile.RoleTeacher)).Get("/teacher", s.page)
	r.With(s.guard.RequireAuthenticated(profile.RoleAdmin)).Get("/admin", s.page)

	return r
}

func (s *server) page(w http.ResponseWriter, r *http.Request) {
	st, ok := guard.StateFromContext(r.Context())
	if !ok {
		st = s.rec.Snapshot()
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "page:  %s\n", r.URL.Path)
	fmt.Fprintf(w, "phase: %s\n", st.Phase())
	if uid := st.UserID(); uid != "" {
		fmt.Fprintf(w, "user:  %s\n", uid)
	}
	if role := st.Role(); role != "" {
		fmt.Fprintf(w, "role:  %s\n", role)
	}
	for _, n := range s.inbox.Drain() {
		fmt.Fprintf(w, "[%s] %s\n", n.Severity, n.Message)
	}
}

func (s *server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(s.rec.Snapshot()))
}

func (s *server) handleNotices(w http.ResponseWriter, _ *http.Request) {
	notices := s.inbox.Drain()
	if notices == nil {
		notices = []guard.Notice{}
	}
	writeJSON(w, http.StatusOK, notices)
}

// handleAdoptToken hands a bearer token to the device, as if restored from
// storage, and reconciles against it.
func (s *server) handleAdoptToken(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "bearer token required")
		return
	}
	if _, err := s.client.Verify(token); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.client.SetToken(token)
	writeJSON(w, http.StatusOK, viewOf(s.rec.Initialize(r.Context())))
}

type signInRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type signInResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// handleSignIn plays the hosted service: it issues a session for the device,
// which learns about it through its change feed.
func (s *server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	if err := s.limiter.Allow(r.Context(), "signin:"+req.UserID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many sign-ins for this user")
			return
		}
		s.logger.Error("sign-in limiter", "error", err)
		writeError(w, http.StatusBadGateway, "could not issue session")
		return
	}

	sess, token, err := s.issuer.Issue(r.Context(), s.device, req.UserID, req.Email)
	if err != nil {
		s.logger.Error("issue session", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusBadGateway, "could not issue session")
		return
	}
	writeJSON(w, http.StatusCreated, signInResponse{SessionID: sess.ID, Token: token, ExpiresAt: sess.ExpiresAt})
}

func (s *server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.SignOut(r.Context()); err != nil {
		// Local state is already cleared.
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
