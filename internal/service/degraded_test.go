package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yodabot/support-desk/internal/service"
	"github.com/yodabot/support-desk/internal/store"
	"github.com/yodabot/support-desk/pkg/logger"
)

// contendedCounterStore simulates another writer bumping the counter between
// every write and its confirmation read.
type contendedCounterStore struct {
	*store.Memory
	counterPuts atomic.Int32
}

func (s *contendedCounterStore) Put(ctx context.Context, path string, value any) error {
	if path == service.CounterPath {
		s.counterPuts.Add(1)
	}
	return s.Memory.Put(ctx, path, value)
}

func (s *contendedCounterStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	raw, err := s.Memory.Get(ctx, path)
	if path != service.CounterPath || err != nil {
		return raw, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return json.Marshal(n + 1000)
}

// Degraded mode: the counter can never be confirmed, so allocation must give
// up with ErrCounterExhausted instead of handing out a colliding number.
func TestDegradedModeCounterExhaustion(t *testing.T) {
	ctx := context.Background()
	st := &contendedCounterStore{Memory: store.NewMemory()}
	svc := service.NewTicketService(st, logger.NewNop(), service.Options{
		CounterAttempts: 3,
		CounterBackoff:  -1,
	})

	if _, err := svc.NextTicketNumber(ctx); !errors.Is(err, service.ErrCounterExhausted) {
		t.Fatalf("expected ErrCounterExhausted, got %v", err)
	}
	if got := st.counterPuts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}

	id, err := svc.CreateTicket(ctx, 42, "help")
	if !errors.Is(err, service.ErrCounterExhausted) {
		t.Fatalf("expected create to fail with ErrCounterExhausted, got %q, %v", id, err)
	}
	open, err := svc.ListOpen(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("no ticket may be written on exhaustion, got %d", len(open))
	}
	if _, ok := svc.Index().Get(42); ok {
		t.Fatalf("index must not reference an unwritten ticket")
	}
}

func TestCounterHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := &contendedCounterStore{Memory: store.NewMemory()}
	svc := service.NewTicketService(st, logger.NewNop(), service.Options{CounterAttempts: 3})

	cancel()
	if _, err := svc.NextTicketNumber(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// rendezvous holds the first two callers of wait until both have arrived.
// Later callers pass straight through.
type rendezvous struct {
	mu      sync.Mutex
	arrived int
	done    chan struct{}
}

func newRendezvous() *rendezvous {
	return &rendezvous{done: make(chan struct{})}
}

func (r *rendezvous) wait() {
	r.mu.Lock()
	r.arrived++
	if r.arrived == 2 {
		close(r.done)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
}

// interleavingStore lets two creates read the same counter value before
// either writes it, and holds each ticket record write until both creates
// have written one.
type interleavingStore struct {
	*store.Memory
	counter *rendezvous
	records *rendezvous
}

func isTicketRecord(path string) bool {
	return strings.HasPrefix(path, service.OpenPartition+"/") && strings.Count(path, "/") == 1
}

func (s *interleavingStore) Put(ctx context.Context, path string, value any) error {
	if path == service.CounterPath {
		s.counter.wait()
	}
	err := s.Memory.Put(ctx, path, value)
	if isTicketRecord(path) {
		s.records.wait()
	}
	return err
}

func TestConcurrentCreatesNeverShareTicket(t *testing.T) {
	ctx := context.Background()
	st := &interleavingStore{
		Memory:  store.NewMemory(),
		counter: newRendezvous(),
		records: newRendezvous(),
	}
	svc := newService(t, st)

	chats := []int64{41, 42}
	got := make([]string, len(chats))
	errs := make([]error, len(chats))
	var wg sync.WaitGroup
	for i, chat := range chats {
		wg.Add(1)
		go func(i int, chat int64) {
			defer wg.Done()
			got[i], errs[i] = svc.CreateTicket(ctx, chat, "help")
		}(i, chat)
	}
	wg.Wait()

	seen := map[string]int64{}
	for i, chat := range chats {
		if errs[i] != nil {
			if !errors.Is(errs[i], service.ErrTicketIDTaken) {
				t.Fatalf("chat %d: unexpected error %v", chat, errs[i])
			}
			if id, ok := svc.Index().Get(chat); ok {
				t.Fatalf("chat %d: failed create must not be indexed, got %s", chat, id)
			}
			continue
		}
		if other, dup := seen[got[i]]; dup {
			t.Fatalf("chats %d and %d both got %s", other, chat, got[i])
		}
		seen[got[i]] = chat

		ticket, err := svc.GetTicket(ctx, got[i])
		if err != nil {
			t.Fatalf("get %s: %v", got[i], err)
		}
		if ticket.RequesterChatID != chat {
			t.Fatalf("%s: expected requester %d, got %d", got[i], chat, ticket.RequesterChatID)
		}
		if id, _ := svc.Index().Get(chat); id != got[i] {
			t.Fatalf("chat %d: expected index %s, got %q", chat, got[i], id)
		}
	}
	if len(seen) == 0 {
		t.Fatalf("expected at least one create to succeed, errs=%v", errs)
	}

	open, err := svc.ListOpen(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != len(seen) {
		t.Fatalf("expected %d open tickets, got %v", len(seen), ids(open))
	}
}

func TestCreateSkipsStoredTicketIDs(t *testing.T) {
	tests := []struct {
		name   string
		seeded []string
		want   string
	}{
		{"closed id", []string{"closedTickets/TCK-000001"}, "TCK-000002"},
		{"open id", []string{"openTickets/TCK-000001"}, "TCK-000002"},
		{"both partitions", []string{"openTickets/TCK-000001", "closedTickets/TCK-000002"}, "TCK-000003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := store.NewMemory()
			for _, path := range tt.seeded {
				id := path[strings.Index(path, "/")+1:]
				status := "Open"
				if strings.HasPrefix(path, service.ClosedPartition) {
					status = "Closed"
				}
				rec := `{"TicketId":"` + id + `","Status":"` + status + `","CreatedDate":"2024-03-01T10:00:00Z","ChatId":99}`
				if err := mem.Put(ctx, path, json.RawMessage(rec)); err != nil {
					t.Fatalf("seed: %v", err)
				}
			}
			svc := newService(t, mem)

			id, err := svc.CreateTicket(ctx, 42, "help")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if id != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, id)
			}
			for _, path := range tt.seeded {
				id := path[strings.Index(path, "/")+1:]
				ticket, err := svc.GetTicket(ctx, id)
				if err != nil {
					t.Fatalf("get %s: %v", id, err)
				}
				if ticket.RequesterChatID != 99 {
					t.Fatalf("%s was overwritten: requester %d", id, ticket.RequesterChatID)
				}
			}
		})
	}
}

func TestCreateGivesUpWhenEveryIDIsStored(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	for _, id := range []string{"TCK-000001", "TCK-000002", "TCK-000003"} {
		rec := `{"TicketId":"` + id + `","Status":"Closed","CreatedDate":"2024-03-01T10:00:00Z","ChatId":99}`
		if err := mem.Put(ctx, service.ClosedPartition+"/"+id, json.RawMessage(rec)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	svc := service.NewTicketService(mem, logger.NewNop(), service.Options{CounterAttempts: 3, CounterBackoff: -1})

	if id, err := svc.CreateTicket(ctx, 42, "help"); !errors.Is(err, service.ErrCounterExhausted) {
		t.Fatalf("expected ErrCounterExhausted, got %q, %v", id, err)
	}
	if _, ok := svc.Index().Get(42); ok {
		t.Fatalf("index must not reference an unwritten ticket")
	}
}

// overwritingStore replays a rival create over every ticket record right
// after it is written.
type overwritingStore struct {
	*store.Memory
	rivalChat int64
}

func (s *overwritingStore) Put(ctx context.Context, path string, value any) error {
	if err := s.Memory.Put(ctx, path, value); err != nil {
		return err
	}
	if !isTicketRecord(path) {
		return nil
	}
	id := path[strings.Index(path, "/")+1:]
	rival, err := json.Marshal(map[string]any{
		"TicketId":    id,
		"Status":      "Open",
		"CreatedDate": "2024-03-01T10:00:00Z",
		"ChatId":      s.rivalChat,
	})
	if err != nil {
		return err
	}
	return s.Memory.Put(ctx, path, json.RawMessage(rival))
}

func TestCreateRejectsOverwrittenRecord(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &overwritingStore{Memory: store.NewMemory(), rivalChat: 77})

	id, err := svc.CreateTicket(ctx, 42, "help")
	if !errors.Is(err, service.ErrTicketIDTaken) {
		t.Fatalf("expected ErrTicketIDTaken, got %q, %v", id, err)
	}
	if got, ok := svc.Index().Get(42); ok {
		t.Fatalf("index must not map the caller to %s", got)
	}
}
