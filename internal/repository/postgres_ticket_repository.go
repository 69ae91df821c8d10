package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticketflow/internal/domain"
)

// postgresTicketRepository stores each ticket as a JSONB document keyed by
// ID. The seq column fixes insertion order; conflicting upserts keep it. The
// status, priority and assignee columns mirror the document for Find.
type postgresTicketRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketRepository instantiates the PostgreSQL-backed store.
func NewPostgresTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &postgresTicketRepository{pool: pool}
}

func (r *postgresTicketRepository) Upsert(ctx context.Context, ticket *domain.Ticket) error {
	if ticket == nil || ticket.ID == "" {
		return errors.New("upsert: ticket id required")
	}
	document, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode ticket %s: %w", ticket.ID, err)
	}
	const query = `
        INSERT INTO tickets (id, status, priority, assignee, document, updated_at)
        VALUES ($1,$2,$3,$4,$5,NOW())
        ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, priority=EXCLUDED.priority,
            assignee=EXCLUDED.assignee, document=EXCLUDED.document, updated_at=NOW()`
	if _, err := r.pool.Exec(ctx, query,
		ticket.ID,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.Assignee,
		document,
	); err != nil {
		return fmt.Errorf("upsert ticket %s: %w", ticket.ID, err)
	}
	return nil
}

func (r *postgresTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket == nil || ticket.ID == "" {
		return errors.New("create: ticket id required")
	}
	document, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode ticket %s: %w", ticket.ID, err)
	}
	const query = `
        INSERT INTO tickets (id, status, priority, assignee, document, updated_at)
        VALUES ($1,$2,$3,$4,$5,NOW())
        ON CONFLICT (id) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.ID,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.Assignee,
		document,
	)
	if err != nil {
		return fmt.Errorf("create ticket %s: %w", ticket.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrTicketExists
	}
	return nil
}

// Update locks the row for the duration of the transaction so concurrent
// writers, in this process or another, apply their mutations one after the
// other.
func (r *postgresTicketRepository) Update(ctx context.Context, id string, mutate TicketMutator) (bool, error) {
	found := false
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var document []byte
		err := tx.QueryRow(ctx, `SELECT document FROM tickets WHERE id=$1 FOR UPDATE`, id).Scan(&document)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock ticket %s: %w", id, err)
		}
		var ticket domain.Ticket
		if err := json.Unmarshal(document, &ticket); err != nil {
			return fmt.Errorf("decode ticket %s: %w", id, err)
		}
		if err := mutate(&ticket); err != nil {
			return err
		}
		ticket.ID = id
		updated, err := json.Marshal(&ticket)
		if err != nil {
			return fmt.Errorf("encode ticket %s: %w", id, err)
		}
		const query = `
            UPDATE tickets SET status=$2, priority=$3, assignee=$4, document=$5, updated_at=NOW()
            WHERE id=$1`
		if _, err := tx.Exec(ctx, query,
			id,
			string(ticket.Status),
			string(ticket.Priority),
			ticket.Assignee,
			updated,
		); err != nil {
			return fmt.Errorf("update ticket %s: %w", id, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *postgresTicketRepository) Get(ctx context.Context, id string) (*domain.Ticket, bool, error) {
	const query = `SELECT document FROM tickets WHERE id=$1`
	var document []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(&document); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get ticket %s: %w", id, err)
	}
	var ticket domain.Ticket
	if err := json.Unmarshal(document, &ticket); err != nil {
		return nil, false, fmt.Errorf("decode ticket %s: %w", id, err)
	}
	return &ticket, true, nil
}

func (r *postgresTicketRepository) GetAll(ctx context.Context) ([]domain.Ticket, error) {
	const query = `SELECT document FROM tickets ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	return scanTicketDocuments(rows)
}

func (r *postgresTicketRepository) QueryBy(ctx context.Context, predicate TicketPredicate) ([]domain.Ticket, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterTickets(all, predicate), nil
}

func (r *postgresTicketRepository) Find(ctx context.Context, criteria TicketCriteria) ([]domain.Ticket, error) {
	query, args := buildFindQuery(criteria)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find tickets: %w", err)
	}
	defer rows.Close()
	return scanTicketDocuments(rows)
}

func (r *postgresTicketRepository) Delete(ctx context.Context, id string) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete ticket %s: %w", id, err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *postgresTicketRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

func buildFindQuery(criteria TicketCriteria) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if criteria.Status != nil {
		add("status", string(*criteria.Status))
	}
	if criteria.Priority != nil {
		add("priority", string(*criteria.Priority))
	}
	if criteria.Assignee != nil {
		add("assignee", *criteria.Assignee)
	}
	query := "SELECT document FROM tickets"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return query + " ORDER BY seq ASC", args
}

func scanTicketDocuments(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, err
		}
		var ticket domain.Ticket
		if err := json.Unmarshal(document, &ticket); err != nil {
			return nil, fmt.Errorf("decode ticket document: %w", err)
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
