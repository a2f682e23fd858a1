package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/yodabot/support-desk/internal/store"
)

func TestMemoryNestedPutAndGet(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	if err := m.Put(ctx, "openTickets/TCK-000001/messages/a", map[string]string{"TextContent": "hi"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.Put(ctx, "openTickets/TCK-000001/ChatId", 42); err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := m.Get(ctx, "openTickets/TCK-000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var rec struct {
		ChatID   int64                        `json:"ChatId"`
		Messages map[string]map[string]string `json:"messages"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.ChatID != 42 {
		t.Fatalf("expected chat 42, got %d", rec.ChatID)
	}
	if rec.Messages["a"]["TextContent"] != "hi" {
		t.Fatalf("expected nested message, got %v", rec.Messages)
	}
}

func TestMemoryGetAbsent(t *testing.T) {
	m := store.NewMemory()
	if _, err := m.Get(context.Background(), "ticketCounter"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryGetAllOrderedByKey(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	for _, id := range []string{"TCK-000003", "TCK-000001", "TCK-000002"} {
		if err := m.Put(ctx, store.Join("openTickets", id), map[string]string{"TicketId": id}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	entries, err := m.GetAll(ctx, "openTickets")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"TCK-000001", "TCK-000002", "TCK-000003"} {
		if entries[i].Key != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, entries[i].Key)
		}
	}

	empty, err := m.GetAll(ctx, "closedTickets")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty listing, got %v, %v", empty, err)
	}
}

func TestMemoryDeletePrunesEmptyParents(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	if err := m.Put(ctx, "closedTickets/TCK-000001", map[string]string{"Status": "Closed"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.Delete(ctx, "closedTickets/TCK-000001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(ctx, "closedTickets"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected parent pruned, got %v", err)
	}
	if err := m.Delete(ctx, "closedTickets/TCK-999999"); err != nil {
		t.Fatalf("deleting absent path should succeed, got %v", err)
	}
}

func TestMemoryPutNilDeletes(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_ = m.Put(ctx, "users/7/Language", "en")
	if err := m.Put(ctx, "users/7/Language", nil); err != nil {
		t.Fatalf("put nil: %v", err)
	}
	if _, err := m.Get(ctx, "users/7"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected user node removed, got %v", err)
	}
}

func TestJoin(t *testing.T) {
	if got := store.Join("openTickets/", "", "/TCK-000001"); got != "openTickets/TCK-000001" {
		t.Fatalf("expected joined path, got %q", got)
	}
}
