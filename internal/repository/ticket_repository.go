package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticketflow/internal/domain"
	"github.com/spec-kit/ticketflow/internal/persistence"
)

// ErrStoreCorrupt is returned by writes when the backing document cannot be
// decoded; the document is left as is rather than overwritten.
var ErrStoreCorrupt = errors.New("ticket store is corrupt")

// ErrTicketExists is returned by Create when the ID is already taken.
var ErrTicketExists = errors.New("ticket already exists")

// TicketPredicate selects tickets in QueryBy.
type TicketPredicate func(*domain.Ticket) bool

// TicketMutator edits a ticket inside Update. Returning an error aborts the
// update and nothing is written.
type TicketMutator func(*domain.Ticket) error

// TicketRepository is the durable mapping from ticket ID to ticket. GetAll,
// QueryBy and Find return tickets in insertion order. Create and Update are
// atomic with respect to other writers of the same store, including other
// processes for the postgres backend.
type TicketRepository interface {
	Upsert(ctx context.Context, ticket *domain.Ticket) error
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, id string, mutate TicketMutator) (bool, error)
	Get(ctx context.Context, id string) (*domain.Ticket, bool, error)
	GetAll(ctx context.Context) ([]domain.Ticket, error)
	QueryBy(ctx context.Context, predicate TicketPredicate) ([]domain.Ticket, error)
	Find(ctx context.Context, criteria TicketCriteria) ([]domain.Ticket, error)
	Delete(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
}

type ticketDocument struct {
	Tickets []domain.Ticket `json:"tickets"`
}

type fileTicketRepository struct {
	mu     sync.Mutex
	file   *persistence.JSONFile
	logger *zap.Logger
}

// NewFileTicketRepository opens (creating when absent) the JSON document at path.
func NewFileTicketRepository(path string, logger *zap.Logger) (TicketRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	file, err := persistence.NewJSONFile(path, ticketDocument{Tickets: []domain.Ticket{}})
	if err != nil {
		return nil, fmt.Errorf("open ticket store: %w", err)
	}
	return &fileTicketRepository{file: file, logger: logger}, nil
}

func (r *fileTicketRepository) Upsert(ctx context.Context, ticket *domain.Ticket) error {
	if ticket == nil || ticket.ID == "" {
		return errors.New("upsert: ticket id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.loadForWrite()
	if err != nil {
		return err
	}
	replaced := false
	for i := range doc.Tickets {
		if doc.Tickets[i].ID == ticket.ID {
			doc.Tickets[i] = *ticket.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Tickets = append(doc.Tickets, *ticket.Clone())
	}
	if err := r.file.Write(doc); err != nil {
		return fmt.Errorf("upsert ticket %s: %w", ticket.ID, err)
	}
	return nil
}

func (r *fileTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket == nil || ticket.ID == "" {
		return errors.New("create: ticket id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.loadForWrite()
	if err != nil {
		return err
	}
	for i := range doc.Tickets {
		if doc.Tickets[i].ID == ticket.ID {
			return ErrTicketExists
		}
	}
	doc.Tickets = append(doc.Tickets, *ticket.Clone())
	if err := r.file.Write(doc); err != nil {
		return fmt.Errorf("create ticket %s: %w", ticket.ID, err)
	}
	return nil
}

// Update loads, mutates and writes back one ticket while holding the store
// lock. It returns false when the ticket does not exist.
func (r *fileTicketRepository) Update(ctx context.Context, id string, mutate TicketMutator) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.loadForWrite()
	if err != nil {
		return false, err
	}
	for i := range doc.Tickets {
		if doc.Tickets[i].ID != id {
			continue
		}
		working := doc.Tickets[i].Clone()
		if err := mutate(working); err != nil {
			return false, err
		}
		working.ID = id
		doc.Tickets[i] = *working
		if err := r.file.Write(doc); err != nil {
			return false, fmt.Errorf("update ticket %s: %w", id, err)
		}
		return true, nil
	}
	return false, nil
}

func (r *fileTicketRepository) Get(ctx context.Context, id string) (*domain.Ticket, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.loadForRead()
	for i := range doc.Tickets {
		if doc.Tickets[i].ID == id {
			return &doc.Tickets[i], true, nil
		}
	}
	return nil, false, nil
}

func (r *fileTicketRepository) GetAll(ctx context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loadForRead().Tickets, nil
}

func (r *fileTicketRepository) QueryBy(ctx context.Context, predicate TicketPredicate) ([]domain.Ticket, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterTickets(all, predicate), nil
}

func (r *fileTicketRepository) Find(ctx context.Context, criteria TicketCriteria) ([]domain.Ticket, error) {
	return r.QueryBy(ctx, criteria.Matches)
}

func (r *fileTicketRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.loadForWrite()
	if err != nil {
		return false, err
	}
	kept := make([]domain.Ticket, 0, len(doc.Tickets))
	for _, ticket := range doc.Tickets {
		if ticket.ID != id {
			kept = append(kept, ticket)
		}
	}
	if len(kept) == len(doc.Tickets) {
		return false, nil
	}
	doc.Tickets = kept
	if err := r.file.Write(doc); err != nil {
		return false, fmt.Errorf("delete ticket %s: %w", id, err)
	}
	return true, nil
}

// Ping checks that the backing document is readable.
func (r *fileTicketRepository) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var doc ticketDocument
	return r.file.Read(&doc)
}

// loadForRead degrades to an empty store when the document is missing or
// malformed.
func (r *fileTicketRepository) loadForRead() ticketDocument {
	var doc ticketDocument
	if err := r.file.Read(&doc); err != nil {
		r.logger.Warn("ticket store unreadable; treating as empty",
			zap.String("path", r.file.Path()), zap.Error(err))
		return ticketDocument{Tickets: []domain.Ticket{}}
	}
	if doc.Tickets == nil {
		doc.Tickets = []domain.Ticket{}
	}
	return doc
}

// loadForWrite starts from an empty document when the file is missing but
// refuses to overwrite a malformed one.
func (r *fileTicketRepository) loadForWrite() (ticketDocument, error) {
	var doc ticketDocument
	if err := r.file.Read(&doc); err != nil {
		if errors.Is(err, persistence.ErrCorruptDocument) {
			r.logger.Error("refusing to overwrite corrupt ticket store",
				zap.String("path", r.file.Path()), zap.Error(err))
			return ticketDocument{}, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return ticketDocument{}, err
		}
	}
	if doc.Tickets == nil {
		doc.Tickets = []domain.Ticket{}
	}
	return doc, nil
}

func filterTickets(tickets []domain.Ticket, predicate TicketPredicate) []domain.Ticket {
	result := make([]domain.Ticket, 0, len(tickets))
	for i := range tickets {
		if predicate == nil || predicate(&tickets[i]) {
			result = append(result, tickets[i])
		}
	}
	return result
}
