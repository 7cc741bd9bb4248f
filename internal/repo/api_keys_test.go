package repo_test

import (
	"context"
	"testing"
	"time"

	"faultline/internal/db"
	"faultline/internal/domain"
	"faultline/internal/migrate"
	"faultline/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func TestValidAPIKeyFormat(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{repo.APIKeyPrefix + "0123456789abcdef0123456789abcdef", true},
		{"  " + repo.APIKeyPrefix + "0123456789abcdef0123456789abcdef  ", true},
		{"0123456789abcdef0123456789abcdef", false},
		{repo.APIKeyPrefix + "0123456789abcdef", false},
		{repo.APIKeyPrefix + "0123456789ABCDEF0123456789ABCDEF", false},
		{repo.APIKeyPrefix + "0123456789abcdef0123456789abcdeg", false},
		{"", false},
		{repo.APIKeyPrefix, false},
	}
	for _, tc := range cases {
		if got := repo.ValidAPIKeyFormat(tc.key); got != tc.want {
			t.Fatalf("ValidAPIKeyFormat(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestHashAPIKeyTrimsAndIsStable(t *testing.T) {
	key := repo.APIKeyPrefix + "0123456789abcdef0123456789abcdef"
	if repo.HashAPIKey(key) != repo.HashAPIKey("  "+key+"  ") {
		t.Fatalf("expected hash to ignore surrounding whitespace")
	}
	if repo.HashAPIKey(key) == key {
		t.Fatalf("expected hashed value, got plaintext")
	}
	if repo.HashAPIKey(key) == repo.HashAPIKey(key+"x") {
		t.Fatalf("expected distinct keys to hash differently")
	}
}

func TestAPIKeyLookupByHash(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := r.EnsureActor(ctx, tx, "svc-1", time.Now().UTC().Format(time.RFC3339)); err != nil {
		t.Fatalf("ensure actor: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	plaintext := repo.APIKeyPrefix + "0123456789abcdef0123456789abcdef"
	key := domain.APIKey{
		ID:      "key-1",
		ActorID: "svc-1",
		Name:    "ci",
		KeyHash: repo.HashAPIKey(plaintext),
	}
	if err := r.InsertAPIKey(ctx, nil, key); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(plaintext))
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if got.ActorID != "svc-1" || got.Name != "ci" {
		t.Fatalf("unexpected key %+v", got)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("flk_other")); err != repo.ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown hash, got %v", err)
	}
}
