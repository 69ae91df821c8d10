package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spec-kit/ticketflow/internal/domain"
)

func TestFileAccountRepository_CreateGetList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	repo, err := NewFileAccountRepository(path)
	if err != nil {
		t.Fatalf("NewFileAccountRepository: %v", err)
	}
	ctx := context.Background()

	alice := &domain.Account{Username: "alice", PasswordHash: "h1", Role: domain.AccountRoleAdmin, CreatedAt: time.Now().UTC()}
	bob := &domain.Account{Username: "bob", PasswordHash: "h2", Role: domain.AccountRoleUser, CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, alice); err != nil {
		t.Fatalf("Create alice: %v", err)
	}
	if err := repo.Create(ctx, bob); err != nil {
		t.Fatalf("Create bob: %v", err)
	}
	if err := repo.Create(ctx, &domain.Account{Username: "alice"}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	reopened, err := NewFileAccountRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.GetByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if got.PasswordHash != "h2" || got.Role != domain.AccountRoleUser {
		t.Fatalf("unexpected account %+v", got)
	}
	if _, err := reopened.GetByUsername(ctx, "carol"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	all, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Username != "alice" || all[1].Username != "bob" {
		t.Fatalf("unexpected list %+v", all)
	}
}
