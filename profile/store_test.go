package profile

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisProfileStore(t *testing.T) (*RedisStore, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(rdb, "qa"), func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func newSQLProfileStore(t *testing.T) (*SQLStore, func()) {
	t.Helper()
	store, err := NewSQLStore(":memory:", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store, func() { _ = store.Close() }
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("redis", func(t *testing.T) {
		store, done := newRedisProfileStore(t)
		defer done()
		fn(t, store)
	})
	t.Run("sqlite", func(t *testing.T) {
		store, done := newSQLProfileStore(t)
		defer done()
		fn(t, store)
	})
}

func TestStoreGetMissReturnsErrNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		if _, err := store.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStorePutGetRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		in := &Profile{ID: "u1", Role: RoleTeacher, DisplayName: "Ada", Points: 40}
		if err := store.Put(ctx, in); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != "u1" || got.Role != RoleTeacher || got.DisplayName != "Ada" || got.Points != 40 {
			t.Fatalf("unexpected profile: %+v", got)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Fatalf("expected timestamps to be stamped: %+v", got)
		}

		in.Role = RoleAdmin
		if err := store.Put(ctx, in); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, _ = store.Get(ctx, "u1")
		if got.Role != RoleAdmin {
			t.Fatalf("expected role update, got %s", got.Role)
		}
	})
}

func TestStorePutRejectsInvalidRole(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		err := store.Put(context.Background(), &Profile{ID: "u1", Role: "owner"})
		if !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("expected ErrInvalidRole, got %v", err)
		}
	})
}

func TestStoreAddPoints(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		if _, err := store.AddPoints(ctx, "u1", 5); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for missing profile, got %v", err)
		}
		if err := store.Put(ctx, &Profile{ID: "u1", Role: RoleStudent, Points: 10}); err != nil {
			t.Fatalf("put: %v", err)
		}
		total, err := store.AddPoints(ctx, "u1", 15)
		if err != nil {
			t.Fatalf("add points: %v", err)
		}
		if total != 25 {
			t.Fatalf("expected 25 points, got %d", total)
		}
		got, _ := store.Get(ctx, "u1")
		if got.Points != 25 {
			t.Fatalf("expected stored 25 points, got %d", got.Points)
		}
	})
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		if err := store.Put(ctx, &Profile{ID: "u1", Role: RoleStudent}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := store.Delete(ctx, "u1"); err != nil {
			t.Fatalf("first delete: %v", err)
		}
		if err := store.Delete(ctx, "u1"); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisStore(rdb, "qa")
	mr.Close()

	if _, err := store.Get(context.Background(), "u1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestParseRoleAndLanding(t *testing.T) {
	cases := map[string]string{
		"admin":     "/admin",
		" Teacher ": "/teacher",
		"STUDENT":   "/student",
	}
	for in, landing := range cases {
		r, err := ParseRole(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if r.Landing() != landing {
			t.Fatalf("role %q landing: expected %s, got %s", in, landing, r.Landing())
		}
	}
	if _, err := ParseRole("owner"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if Role("").Landing() != "/" {
		t.Fatal("expected unknown role to land on /")
	}
}

func TestHasRole(t *testing.T) {
	var nilProfile *Profile
	if nilProfile.HasRole(RoleStudent) {
		t.Fatal("nil profile must never satisfy a role")
	}
	p := &Profile{ID: "u1", Role: RoleStudent}
	if p.HasRole(RoleTeacher, RoleAdmin) {
		t.Fatal("student must not satisfy teacher/admin")
	}
	if !p.HasRole(RoleTeacher, RoleStudent) {
		t.Fatal("student must satisfy a set containing student")
	}
}

func TestSQLStoreGetLogsUnreadableTimestamp(t *testing.T) {
	var buf bytes.Buffer
	store, err := NewSQLStore(":memory:", slog.New(slog.NewTextHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := store.db.ExecContext(ctx,
		`INSERT INTO profiles (id, role, created_at, updated_at) VALUES ('u1', 'student', 'garbage', '2024-01-02T03:04:05Z')`,
	); err != nil {
		t.Fatalf("insert: %v", err)
	}

	p, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Role != RoleStudent || !p.CreatedAt.IsZero() {
		t.Fatalf("expected student with zero created_at, got %+v", p)
	}
	if p.UpdatedAt.Year() != 2024 {
		t.Fatalf("expected updated_at parsed, got %v", p.UpdatedAt)
	}
	out := buf.String()
	if !strings.Contains(out, "unreadable profile timestamp") || !strings.Contains(out, "column=created_at") {
		t.Fatalf("expected timestamp warning, got %q", out)
	}
	if strings.Contains(out, "column=updated_at") {
		t.Fatalf("valid column must not be logged, got %q", out)
	}
}
