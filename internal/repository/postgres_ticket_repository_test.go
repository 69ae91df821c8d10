package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/ticketflow/internal/config"
	"github.com/spec-kit/ticketflow/internal/domain"
	"github.com/spec-kit/ticketflow/internal/persistence"
)

func TestBuildFindQuery(t *testing.T) {
	open := domain.TicketStatusOpen
	high := domain.TicketPriorityHigh
	bob := "bob"
	cases := []struct {
		name     string
		criteria TicketCriteria
		query    string
		args     []any
	}{
		{"no filter", TicketCriteria{}, "SELECT document FROM tickets ORDER BY seq ASC", nil},
		{"status", TicketCriteria{Status: &open},
			"SELECT document FROM tickets WHERE status=$1 ORDER BY seq ASC", []any{"OPEN"}},
		{"priority and assignee", TicketCriteria{Priority: &high, Assignee: &bob},
			"SELECT document FROM tickets WHERE priority=$1 AND assignee=$2 ORDER BY seq ASC", []any{"HIGH", "bob"}},
		{"all fields", TicketCriteria{Status: &open, Priority: &high, Assignee: &bob},
			"SELECT document FROM tickets WHERE status=$1 AND priority=$2 AND assignee=$3 ORDER BY seq ASC", []any{"OPEN", "HIGH", "bob"}},
	}
	for _, tc := range cases {
		query, args := buildFindQuery(tc.criteria)
		if query != tc.query {
			t.Fatalf("%s: query = %q, want %q", tc.name, query, tc.query)
		}
		if !reflect.DeepEqual(args, tc.args) {
			t.Fatalf("%s: args = %v, want %v", tc.name, args, tc.args)
		}
	}
}

// openPostgresStore connects to POSTGRES_DSN, applies the migrations and
// empties the tickets table. Each call opens its own pool, so two stores
// behave like two separate processes.
func openPostgresStore(t *testing.T) TicketRepository {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, config.PostgresConfig{DSN: dsn, MaxConns: 4}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	t.Cleanup(pg.Close)
	if err := persistence.RunMigrations(ctx, pg.Pool, "../../migrations", zap.NewNop()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return NewPostgresTicketRepository(pg.Pool)
}

func resetPostgresStore(t *testing.T, store TicketRepository) {
	t.Helper()
	repo := store.(*postgresTicketRepository)
	if _, err := repo.pool.Exec(context.Background(), `TRUNCATE tickets RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestPostgresTicketRepository_CRUD(t *testing.T) {
	store := openPostgresStore(t)
	resetPostgresStore(t, store)
	ctx := context.Background()

	for _, id := range []string{"P1", "P2", "P3"} {
		if err := store.Create(ctx, sampleTicket(id, domain.TicketStatusOpen, domain.TicketPriorityLow)); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if err := store.Create(ctx, sampleTicket("P1", domain.TicketStatusClosed, domain.TicketPriorityHigh)); !errors.Is(err, ErrTicketExists) {
		t.Fatalf("expected ErrTicketExists, got %v", err)
	}

	replaced := sampleTicket("P1", domain.TicketStatusResolved, domain.TicketPriorityCritical)
	if err := store.Upsert(ctx, replaced); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if fmt.Sprint(ids(all)) != "[P1 P2 P3]" || all[0].Status != domain.TicketStatusResolved {
		t.Fatalf("upsert should replace in place: %v %s", ids(all), all[0].Status)
	}

	if _, ok, err := store.Get(ctx, "absent"); ok || err != nil {
		t.Fatalf("Get absent: ok=%v err=%v", ok, err)
	}
	got, ok, err := store.Get(ctx, "P2")
	if err != nil || !ok || got.Title != "title P2" || len(got.History) != 2 || len(got.Comments) != 1 {
		t.Fatalf("Get P2: ok=%v err=%v %+v", ok, err, got)
	}

	removed, err := store.Delete(ctx, "P2")
	if err != nil || !removed {
		t.Fatalf("Delete: removed=%v err=%v", removed, err)
	}
	if removed, _ := store.Delete(ctx, "P2"); removed {
		t.Fatalf("second delete should report false")
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPostgresTicketRepository_UpdateAndFind(t *testing.T) {
	store := openPostgresStore(t)
	resetPostgresStore(t, store)
	ctx := context.Background()
	_ = store.Create(ctx, sampleTicket("F1", domain.TicketStatusOpen, domain.TicketPriorityLow))
	_ = store.Create(ctx, sampleTicket("F2", domain.TicketStatusOpen, domain.TicketPriorityHigh))

	found, err := store.Update(ctx, "F1", func(ticket *domain.Ticket) error {
		ticket.Priority = domain.TicketPriorityHigh
		dave := "dave"
		ticket.Assignee = &dave
		return nil
	})
	if err != nil || !found {
		t.Fatalf("Update: found=%v err=%v", found, err)
	}
	if found, err := store.Update(ctx, "absent", func(*domain.Ticket) error { return nil }); err != nil || found {
		t.Fatalf("Update absent: found=%v err=%v", found, err)
	}
	abort := errors.New("rejected")
	if _, err := store.Update(ctx, "F2", func(ticket *domain.Ticket) error {
		ticket.Status = domain.TicketStatusClosed
		return abort
	}); !errors.Is(err, abort) {
		t.Fatalf("aborted Update err = %v", err)
	}

	high := domain.TicketPriorityHigh
	open := domain.TicketStatusOpen
	dave := "dave"
	byPriority, err := store.Find(ctx, TicketCriteria{Priority: &high, Status: &open})
	if err != nil || fmt.Sprint(ids(byPriority)) != "[F1 F2]" {
		t.Fatalf("Find priority: %v err=%v", ids(byPriority), err)
	}
	byAssignee, err := store.Find(ctx, TicketCriteria{Assignee: &dave})
	if err != nil || fmt.Sprint(ids(byAssignee)) != "[F1]" {
		t.Fatalf("Find assignee: %v err=%v", ids(byAssignee), err)
	}
}

func TestPostgresTicketRepository_UpdatesFromSeparatePoolsSerialize(t *testing.T) {
	first := openPostgresStore(t)
	second := openPostgresStore(t)
	resetPostgresStore(t, first)
	ctx := context.Background()
	if err := first.Create(ctx, sampleTicket("HOT", domain.TicketStatusOpen, domain.TicketPriorityLow)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const perStore = 10
	var wg sync.WaitGroup
	for n, store := range []TicketRepository{first, second} {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(store TicketRepository, label string) {
				defer wg.Done()
				_, err := store.Update(ctx, "HOT", func(ticket *domain.Ticket) error {
					ticket.History = append(ticket.History, domain.HistoryEntry{
						Actor: label, Field: domain.FieldComment, NewValue: label, Description: "note",
					})
					return nil
				})
				if err != nil {
					t.Errorf("Update %s: %v", label, err)
				}
			}(store, fmt.Sprintf("s%d-%d", n, i))
		}
	}
	wg.Wait()

	got, _, err := second.Get(ctx, "HOT")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := 2 + 2*perStore; len(got.History) != want {
		t.Fatalf("lost updates: history length %d, want %d", len(got.History), want)
	}
}
