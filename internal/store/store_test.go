package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aabbtree77/headless/internal/config"
	"github.com/aabbtree77/headless/internal/settings"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(ctx, config.StorageConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background()); !errors.Is(err, ErrNoChange) {
		t.Fatalf("expected ErrNoChange, got %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Driver: "mysql", DSN: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOptionRepoBacksSettings(t *testing.T) {
	ctx := context.Background()
	repo := NewOptionRepo(openTestDB(t))

	if _, err := repo.GetOption(ctx, settings.OptionName); !errors.Is(err, settings.ErrNotFound) {
		t.Fatalf("expected settings.ErrNotFound, got %v", err)
	}

	wrote, err := settings.Activate(ctx, repo)
	if err != nil || !wrote {
		t.Fatalf("activate: wrote=%t err=%v", wrote, err)
	}
	wrote, err = settings.Activate(ctx, repo)
	if err != nil || wrote {
		t.Fatalf("re-activate: wrote=%t err=%v", wrote, err)
	}

	want := settings.Record{HeadlessMode: true, ProtectQueryAPI: true}
	if err := settings.Set(ctx, repo, want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, found, err := settings.Get(ctx, repo)
	if err != nil || !found {
		t.Fatalf("get: found=%t err=%v", found, err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepo(openTestDB(t))

	u, err := users.Create(ctx, CreateUserParams{Username: "alice", PasswordHash: "h1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == 0 || u.Role != RoleUser {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := users.Create(ctx, CreateUserParams{Username: "alice", PasswordHash: "h2"}); !IsUniqueConstraint(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	u, err = users.Update(ctx, "alice", UpdateUserPatch{Role: RoleAdmin})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !u.IsAdmin() || u.PasswordHash != "h1" {
		t.Fatalf("patch changed the wrong fields: %+v", u)
	}

	if _, err := users.Update(ctx, "nobody", UpdateUserPatch{Role: RoleAdmin}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := users.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %v", list, err)
	}

	if err := users.DeleteByUsername(ctx, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := users.GetByUsername(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepoDeleteExpired(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	u, err := NewUserRepo(db).Create(ctx, CreateUserParams{Username: "bob", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	sessions := NewSessionRepo(db)
	now := time.Now()
	if _, err := sessions.Create(ctx, u.ID, "old", now.Add(-time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := sessions.Create(ctx, u.ID, "fresh", now.Add(time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := sessions.DeleteExpired(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired: n=%d err=%v", n, err)
	}
	if _, err := sessions.GetByToken(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session survived: %v", err)
	}
	s, err := sessions.GetByToken(ctx, "fresh")
	if err != nil || s.UserID != u.ID {
		t.Fatalf("fresh session: %+v %v", s, err)
	}
}

func TestPostRepo(t *testing.T) {
	ctx := context.Background()
	posts := NewPostRepo(openTestDB(t))

	pub, err := posts.Create(ctx, CreatePostParams{Title: "Hello", Body: "World", Status: PostPublished})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := posts.Create(ctx, CreatePostParams{Title: "Draft"}); err != nil {
		t.Fatalf("create draft: %v", err)
	}

	list, err := posts.ListPublished(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != pub.ID {
		t.Fatalf("unexpected published list: %+v", list)
	}

	got, err := posts.Get(ctx, pub.ID)
	if err != nil || got.Title != "Hello" {
		t.Fatalf("get: %+v %v", got, err)
	}
}
