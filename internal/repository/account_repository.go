package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spec-kit/ticketflow/internal/domain"
	"github.com/spec-kit/ticketflow/internal/persistence"
)

// ErrAccountExists is returned by Create when the username is taken.
var ErrAccountExists = errors.New("account already exists")

// ErrAccountNotFound is returned when no account matches the username.
var ErrAccountNotFound = errors.New("account not found")

// AccountRepository defines persistence access for operator accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
}

type accountDocument struct {
	Users []domain.Account `json:"users"`
}

type fileAccountRepository struct {
	mu   sync.Mutex
	file *persistence.JSONFile
}

// NewFileAccountRepository opens (creating when absent) the accounts document at path.
func NewFileAccountRepository(path string) (AccountRepository, error) {
	file, err := persistence.NewJSONFile(path, accountDocument{Users: []domain.Account{}})
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}
	return &fileAccountRepository{file: file}, nil
}

func (r *fileAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, existing := range doc.Users {
		if existing.Username == account.Username {
			return ErrAccountExists
		}
	}
	doc.Users = append(doc.Users, *account)
	return r.file.Write(doc)
}

func (r *fileAccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, _ := r.load()
	for i := range doc.Users {
		if doc.Users[i].Username == username {
			return &doc.Users[i], nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *fileAccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, _ := r.load()
	return doc.Users, nil
}

// load returns an empty document alongside any read error; an unreadable
// accounts file reads as no accounts.
func (r *fileAccountRepository) load() (accountDocument, error) {
	var doc accountDocument
	if err := r.file.Read(&doc); err != nil {
		return accountDocument{Users: []domain.Account{}}, err
	}
	if doc.Users == nil {
		doc.Users = []domain.Account{}
	}
	return doc, nil
}
