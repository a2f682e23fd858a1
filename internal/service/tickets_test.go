package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yodabot/support-desk/internal/model"
	"github.com/yodabot/support-desk/internal/service"
	"github.com/yodabot/support-desk/internal/store"
	"github.com/yodabot/support-desk/pkg/logger"
)

func newService(t *testing.T, st store.Store) *service.TicketService {
	t.Helper()
	return service.NewTicketService(st, logger.NewNop(), service.Options{CounterBackoff: -1})
}

func ids(tickets []*model.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func TestCreateTicketRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	id, err := svc.CreateTicket(ctx, 42, "help")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "TCK-000001" {
		t.Fatalf("expected TCK-000001, got %s", id)
	}

	got, err := svc.GetTicket(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != id || got.RequesterChatID != 42 || got.Status != model.StatusOpen {
		t.Fatalf("unexpected ticket: %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Text != "help" || got.Messages[0].Role != model.RoleUser {
		t.Fatalf("expected initial message, got %+v", got.Messages)
	}

	closed, err := svc.CloseTicket(ctx, id)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != model.StatusClosed {
		t.Fatalf("expected closed status, got %s", closed.Status)
	}
	got, err = svc.GetTicket(ctx, id)
	if err != nil {
		t.Fatalf("get after close: %v", err)
	}
	if got.Status != model.StatusClosed || len(got.Messages) != 1 || got.Messages[0].Text != "help" {
		t.Fatalf("expected closed ticket with same history, got %+v", got)
	}

	if _, err := svc.ReopenTicket(ctx, id); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err = svc.GetTicket(ctx, id)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Status != model.StatusOpen {
		t.Fatalf("expected open after reopen, got %s", got.Status)
	}
}

func TestCreateTicketWithoutInitialText(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	id, err := svc.CreateTicket(ctx, 7, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.GetTicket(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(got.Messages))
	}
}

func TestTicketIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	seen := make(map[string]bool)
	for chat := int64(1); chat <= 25; chat++ {
		id, err := svc.CreateTicket(ctx, chat, "")
		if err != nil {
			t.Fatalf("create for %d: %v", chat, err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true

		// Close some so ids are spread across both partitions.
		if chat%3 == 0 {
			if _, err := svc.CloseTicket(ctx, id); err != nil {
				t.Fatalf("close: %v", err)
			}
		}
	}
	if len(seen) != 25 {
		t.Fatalf("expected 25 ids, got %d", len(seen))
	}
}

func TestDuplicateCreateReturnsAlreadyOpen(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	first, err := svc.CreateTicket(ctx, 42, "help")
	if err != nil || first != "TCK-000001" {
		t.Fatalf("expected TCK-000001, got %s, %v", first, err)
	}

	again, err := svc.CreateTicket(ctx, 42, "again")
	if !errors.Is(err, service.ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}
	if again != first {
		t.Fatalf("expected existing id %s, got %s", first, again)
	}

	open, err := svc.ListOpen(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open ticket, got %d", len(open))
	}

	// A closed ticket does not block a new one.
	if _, err := svc.CloseTicket(ctx, first); err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := svc.CreateTicket(ctx, 42, "new issue")
	if err != nil {
		t.Fatalf("create after close: %v", err)
	}
	if second == first {
		t.Fatalf("expected a new id")
	}
}

func TestFullLifecycleAcrossPartitions(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	id, err := svc.CreateTicket(ctx, 42, "help")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	assertPartitions := func(step string, wantOpen, wantClosed bool) {
		t.Helper()
		open, err := svc.ListOpen(ctx)
		if err != nil {
			t.Fatalf("%s: list open: %v", step, err)
		}
		closed, err := svc.ListClosed(ctx)
		if err != nil {
			t.Fatalf("%s: list closed: %v", step, err)
		}
		if got := contains(ids(open), id); got != wantOpen {
			t.Fatalf("%s: expected open=%v, got %v", step, wantOpen, got)
		}
		if got := contains(ids(closed), id); got != wantClosed {
			t.Fatalf("%s: expected closed=%v, got %v", step, wantClosed, got)
		}
	}

	assertPartitions("created", true, false)

	if _, err := svc.CloseTicket(ctx, id); err != nil {
		t.Fatalf("close: %v", err)
	}
	assertPartitions("closed", false, true)

	if _, err := svc.ReopenTicket(ctx, id); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	assertPartitions("reopened", true, false)

	if _, err := svc.DeleteTicket(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertPartitions("deleted", false, false)

	if _, err := svc.GetTicket(ctx, id); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLifecycleOperationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem)

	id, err := svc.CreateTicket(ctx, 42, "help")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.ReopenTicket(ctx, id); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("reopening an open ticket: expected ErrNotFound, got %v", err)
	}

	if _, err := svc.CloseTicket(ctx, id); err != nil {
		t.Fatalf("close: %v", err)
	}
	before, _ := mem.Get(ctx, "closedTickets/"+id)

	if _, err := svc.CloseTicket(ctx, id); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("closing twice: expected ErrNotFound, got %v", err)
	}
	after, _ := mem.Get(ctx, "closedTickets/"+id)
	if string(before) != string(after) {
		t.Fatalf("second close mutated the record")
	}

	if _, err := svc.DeleteTicket(ctx, "TCK-999999"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("deleting unknown id: expected ErrNotFound, got %v", err)
	}
}

func TestAppendMessagePreservesOrder(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	id, err := svc.CreateTicket(ctx, 42, "first")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sent := []model.ChatMessage{
		{SenderID: "42", Role: model.RoleUser, Kind: model.KindText, Text: "second"},
		{SenderID: "900", Role: model.RoleStaff, Kind: model.KindImage, Text: "look", MediaRef: "photo-1"},
		{SenderID: "42", Role: model.RoleUser, Kind: model.KindVoice, MediaRef: "voice-1"},
		{SenderID: "42", Role: model.RoleUser, Kind: model.KindDocument, MediaRef: "doc-1"},
	}
	for i := 0; i < 20; i++ {
		sent = append(sent, model.ChatMessage{SenderID: "42", Role: model.RoleUser, Kind: model.KindText, Text: fmt.Sprintf("m%02d", i)})
	}
	for _, m := range sent {
		if err := svc.AppendMessage(ctx, id, m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := svc.MessageHistory(ctx, id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != len(sent)+1 {
		t.Fatalf("expected %d messages, got %d", len(sent)+1, len(got))
	}
	if got[0].Text != "first" {
		t.Fatalf("expected initial message first, got %q", got[0].Text)
	}
	for i, want := range sent {
		g := got[i+1]
		if g.Kind != want.Kind || g.Text != want.Text || g.MediaRef != want.MediaRef || g.Role != want.Role {
			t.Fatalf("message %d: expected %+v, got %+v", i, want, g)
		}
	}
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	id, err := svc.CreateTicket(ctx, 42, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := model.NewTextMessage("42", model.RoleUser, fmt.Sprintf("msg-%d", i))
			if err := svc.AppendMessage(ctx, id, msg); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := svc.MessageHistory(ctx, id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != n {
		t.Fatalf("expected %d messages, got %d", n, len(got))
	}
}

func TestAppendToClosedTicketIsRejected(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem)

	id, err := svc.CreateTicket(ctx, 42, "help")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CloseTicket(ctx, id); err != nil {
		t.Fatalf("close: %v", err)
	}

	err = svc.AppendMessage(ctx, id, model.NewTextMessage("42", model.RoleUser, "late"))
	if !errors.Is(err, service.ErrTicketClosed) {
		t.Fatalf("expected ErrTicketClosed, got %v", err)
	}

	got, _ := svc.GetTicket(ctx, id)
	if len(got.Messages) != 1 {
		t.Fatalf("closed history must be unchanged, got %d messages", len(got.Messages))
	}
	if _, err := mem.Get(ctx, "openTickets/"+id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("append must not create an open copy, got %v", err)
	}

	err = svc.AppendMessage(ctx, "TCK-424242", model.NewTextMessage("42", model.RoleUser, "x"))
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReadsLegacyArrayHistory(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem)

	legacy := `{
		"TicketId": "TCK-000010",
		"Status": "Open",
		"CreatedDate": "2024-03-01T10:00:00Z",
		"ChatId": 55,
		"Messages": [` + legacyMessages(12) + `]
	}`
	if err := mem.Put(ctx, "openTickets/TCK-000010", json.RawMessage(legacy)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.AppendMessage(ctx, "TCK-000010", model.NewTextMessage("55", model.RoleUser, "new")); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := svc.MessageHistory(ctx, "TCK-000010")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 13 {
		t.Fatalf("expected 13 messages, got %d", len(got))
	}
	for i := 0; i < 12; i++ {
		if want := fmt.Sprintf("old-%d", i); got[i].Text != want {
			t.Fatalf("message %d: expected %s, got %s", i, want, got[i].Text)
		}
	}
	if got[12].Text != "new" {
		t.Fatalf("expected appended message last, got %s", got[12].Text)
	}
}

func legacyMessages(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"SenderId":"55","SenderType":"User","MessageType":"Text","TextContent":"old-%d","Timestamp":"2024-03-01T10:00:00Z"}`, i)
	}
	return out
}

func TestSearchTickets(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	a, _ := svc.CreateTicket(ctx, 1, "My ABC router is broken")
	b, _ := svc.CreateTicket(ctx, 2, "billing question")
	c, _ := svc.CreateTicket(ctx, 3, "")
	_ = svc.AppendMessage(ctx, c, model.ChatMessage{SenderID: "3", Role: model.RoleUser, Kind: model.KindImage, Text: "abc caption", MediaRef: "f"})
	d, _ := svc.CreateTicket(ctx, 4, "")
	_ = svc.AppendMessage(ctx, d, model.NewTextMessage("900", model.RoleStaff, "see xAbCx"))
	if _, err := svc.CloseTicket(ctx, d); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := svc.SearchTickets(ctx, "abc")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	found := ids(got)
	if len(found) != 2 || !contains(found, a) || !contains(found, d) {
		t.Fatalf("expected [%s %s], got %v", a, d, found)
	}
	if contains(found, b) || contains(found, c) {
		t.Fatalf("unexpected match in %v", found)
	}

	byID, err := svc.SearchTickets(ctx, "tck-000002")
	if err != nil {
		t.Fatalf("search by id: %v", err)
	}
	if len(byID) != 1 || byID[0].ID != b {
		t.Fatalf("expected %s, got %v", b, ids(byID))
	}
}

func TestInitRebuildsActiveIndex(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	first := newService(t, mem)

	open, _ := first.CreateTicket(ctx, 10, "a")
	closed, _ := first.CreateTicket(ctx, 11, "b")
	if _, err := first.CloseTicket(ctx, closed); err != nil {
		t.Fatalf("close: %v", err)
	}

	restarted := newService(t, mem)
	if restarted.Index().Len() != 0 {
		t.Fatalf("expected empty index before Init")
	}
	if err := restarted.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if id, ok := restarted.Index().Get(10); !ok || id != open {
		t.Fatalf("expected chat 10 -> %s, got %s, %v", open, id, ok)
	}
	if _, ok := restarted.Index().Get(11); ok {
		t.Fatalf("closed ticket must not be indexed")
	}
}

func TestIndexFollowsLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	id, _ := svc.CreateTicket(ctx, 42, "help")
	if got, ok := svc.Index().Get(42); !ok || got != id {
		t.Fatalf("expected index entry after create")
	}

	if _, err := svc.CloseTicketForChat(ctx, 42); err != nil {
		t.Fatalf("close for chat: %v", err)
	}
	if _, ok := svc.Index().Get(42); ok {
		t.Fatalf("expected index entry removed on close")
	}
	if _, ok, err := svc.ActiveTicketFor(ctx, 42); ok || err != nil {
		t.Fatalf("expected no active ticket, got %v, %v", ok, err)
	}

	if _, err := svc.ReopenTicket(ctx, id); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, ok := svc.Index().Get(42); !ok || got != id {
		t.Fatalf("expected index entry restored on reopen")
	}

	if _, err := svc.DeleteTicket(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := svc.Index().Get(42); ok {
		t.Fatalf("expected index entry removed on delete")
	}
}

func TestActiveTicketForRepairsIndex(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	id, _ := svc.CreateTicket(ctx, 42, "help")
	svc.Index().Delete(42)

	got, ok, err := svc.ActiveTicketFor(ctx, 42)
	if err != nil || !ok || got != id {
		t.Fatalf("expected %s from partition scan, got %s, %v, %v", id, got, ok, err)
	}
	if cached, ok := svc.Index().Get(42); !ok || cached != id {
		t.Fatalf("expected index repaired")
	}
}

func TestCloseReleasesHandlingStaff(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	id, _ := svc.CreateTicket(ctx, 42, "help")
	svc.Tracker().Assign(900, id, 42)

	if _, err := svc.CloseTicket(ctx, id); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := svc.Tracker().WhoIsHandling(id); ok {
		t.Fatalf("expected no handler after close")
	}
	if _, ok := svc.Tracker().Current(900); ok {
		t.Fatalf("expected staff 900 released")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, store.NewMemory())

	a, _ := svc.CreateTicket(ctx, 1, "")
	b, _ := svc.CreateTicket(ctx, 2, "")
	_, _ = svc.CreateTicket(ctx, 3, "")
	_, _ = svc.CloseTicket(ctx, b)
	svc.Tracker().Assign(900, a, 1)

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := model.Stats{Open: 2, Closed: 1, Total: 3, Handled: 1}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
}

// countingStore counts user record reads.
type countingStore struct {
	*store.Memory
	mu    sync.Mutex
	reads map[string]int
}

func (c *countingStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	c.mu.Lock()
	c.reads[path]++
	c.mu.Unlock()
	return c.Memory.Get(ctx, path)
}

func TestUserLanguageReadThroughCache(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Memory: store.NewMemory(), reads: make(map[string]int)}
	if err := st.Put(ctx, "users/5", map[string]string{"Language": "am"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newService(t, st)

	for i := 0; i < 3; i++ {
		data, ok, err := svc.GetUserData(ctx, 5)
		if err != nil || !ok || data.Language != "am" {
			t.Fatalf("expected am, got %+v, %v, %v", data, ok, err)
		}
	}
	if st.reads["users/5"] != 1 {
		t.Fatalf("expected one store read, got %d", st.reads["users/5"])
	}

	if err := svc.SetUserLanguage(ctx, 5, "en"); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, _, _ := svc.GetUserData(ctx, 5)
	if data.Language != "en" {
		t.Fatalf("expected cache overwritten with en, got %s", data.Language)
	}
	raw, err := st.Memory.Get(ctx, "users/5/Language")
	if err != nil || string(raw) != `"en"` {
		t.Fatalf("expected persisted en, got %s, %v", raw, err)
	}

	if _, ok, err := svc.GetUserData(ctx, 6); ok || err != nil {
		t.Fatalf("expected unknown user, got %v, %v", ok, err)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.EventType
}

func (p *recordingPublisher) PublishTicketEvent(_ context.Context, e *model.TicketEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e.Type)
	return uint64(len(p.events)), nil
}

func TestLifecycleEventsArePublished(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := service.NewTicketService(store.NewMemory(), logger.NewNop(), service.Options{
		CounterBackoff: -1,
		Publisher:      pub,
		Now:            func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})

	id, _ := svc.CreateTicket(ctx, 42, "help")
	_ = svc.AppendMessage(ctx, id, model.NewTextMessage("42", model.RoleUser, "more"))
	_, _ = svc.CloseTicket(ctx, id)
	_, _ = svc.ReopenTicket(ctx, id)
	_, _ = svc.DeleteTicket(ctx, id)

	want := []model.EventType{model.EventCreated, model.EventMessage, model.EventClosed, model.EventReopened, model.EventDeleted}
	if len(pub.events) != len(want) {
		t.Fatalf("expected %v, got %v", want, pub.events)
	}
	for i := range want {
		if pub.events[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], pub.events[i])
		}
	}
}
