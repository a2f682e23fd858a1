package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yodabot/support-desk/internal/i18n"
	"github.com/yodabot/support-desk/internal/model"
	"github.com/yodabot/support-desk/internal/service"
	"github.com/yodabot/support-desk/internal/store"
	"github.com/yodabot/support-desk/pkg/logger"
)

type sentMedia struct {
	ChatID int64
	Media  Media
}

type editedMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  InlineKeyboard
}

type answer struct {
	ID    string
	Text  string
	Alert bool
}

// fakeMessenger records everything a bot sends.
type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []Outgoing
	media   []sentMedia
	edits   []editedMessage
	deleted []int
	answers []answer
	files   map[string][]byte
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 100, files: make(map[string][]byte)}
}

func (f *fakeMessenger) Send(_ context.Context, msg Outgoing) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, msg)
	return f.nextID, nil
}

func (f *fakeMessenger) SendMedia(_ context.Context, chatID int64, m Media) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.media = append(f.media, sentMedia{ChatID: chatID, Media: m})
	return f.nextID, nil
}

func (f *fakeMessenger) Edit(_ context.Context, chatID int64, messageID int, text string, kb InlineKeyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedMessage{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return nil
}

func (f *fakeMessenger) Delete(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ context.Context, id, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer{ID: id, Text: text, Alert: alert})
	return nil
}

func (f *fakeMessenger) Download(_ context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[ref]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

// sentTo returns the texts sent to chatID in order.
func (f *fakeMessenger) sentTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeMessenger) lastSent(t *testing.T, chatID int64) Outgoing {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].ChatID == chatID {
			return f.sent[i]
		}
	}
	t.Fatalf("nothing sent to %d", chatID)
	return Outgoing{}
}

func (f *fakeMessenger) lastEdit(t *testing.T) editedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatalf("no message was edited")
	}
	return f.edits[len(f.edits)-1]
}

type recordingOps struct {
	mu    sync.Mutex
	lines []string
}

func (o *recordingOps) Log(_ context.Context, text string) {
	o.mu.Lock()
	o.lines = append(o.lines, text)
	o.mu.Unlock()
}

func (o *recordingOps) contains(sub string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, l := range o.lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

type stubSummarizer struct {
	calls int
}

func (s *stubSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	s.calls++
	return "customer asked about " + strings.Fields(transcript)[1], nil
}

const (
	staffChat = int64(900)
	adminChat = int64(1)
)

type harness struct {
	t       *testing.T
	svc     *service.TicketService
	catalog *i18n.Catalog
	userM   *fakeMessenger
	staffM  *fakeMessenger
	ops     *recordingOps
	summary *stubSummarizer
	user    *UserBot
	staff   *StaffBot
	updates int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	catalog, err := i18n.Load("../../languages", "en", logger.NewNop())
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	now := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	svc := service.NewTicketService(store.NewMemory(), logger.NewNop(), service.Options{CounterBackoff: -1, Now: now})

	h := &harness{
		t:       t,
		svc:     svc,
		catalog: catalog,
		userM:   newFakeMessenger(),
		staffM:  newFakeMessenger(),
		ops:     &recordingOps{},
		summary: &stubSummarizer{},
	}
	relay := NewStaffRelay(h.staffM, catalog)
	h.user = NewUserBot(UserBotConfig{
		Messenger: h.userM,
		Tickets:   svc,
		Catalog:   catalog,
		Staff:     relay,
		Ops:       h.ops,
		Now:       now,
	})
	h.staff = NewStaffBot(StaffBotConfig{
		Messenger:  h.staffM,
		Tickets:    svc,
		Catalog:    catalog,
		Users:      h.user,
		Ops:        h.ops,
		Summarizer: h.summary,
		IsAdmin:    func(id int64) bool { return id == adminChat },
		PageSize:   2,
		Now:        now,
	})
	relay.OnTicketClosed(h.staff.ForgetTicket)
	return h
}

func (h *harness) nextUpdate() int {
	h.updates++
	return h.updates
}

func (h *harness) withLanguage(chatID int64) {
	h.t.Helper()
	if err := h.svc.SetUserLanguage(context.Background(), chatID, "en"); err != nil {
		h.t.Fatalf("set language: %v", err)
	}
}

func (h *harness) userSays(chatID int64, text string) {
	h.user.HandleUpdate(context.Background(), Update{ID: h.nextUpdate(), Message: &IncomingMessage{
		ChatID: chatID, SenderID: chatID, Text: text, Kind: model.KindText,
	}})
}

func (h *harness) userPresses(chatID int64, data string) {
	h.user.HandleUpdate(context.Background(), Update{ID: h.nextUpdate(), Callback: &Callback{
		ID: "cb", ChatID: chatID, SenderID: chatID, MessageID: 5, Data: data,
	}})
}

func (h *harness) staffSays(chatID int64, text string) {
	h.staff.HandleUpdate(context.Background(), Update{ID: h.nextUpdate(), Message: &IncomingMessage{
		ChatID: chatID, SenderID: chatID, Text: text, Kind: model.KindText,
	}})
}

func (h *harness) staffPresses(chatID int64, messageID int, data string) {
	h.staff.HandleUpdate(context.Background(), Update{ID: h.nextUpdate(), Callback: &Callback{
		ID: "cb", ChatID: chatID, SenderID: chatID, MessageID: messageID, Data: data,
	}})
}

// openTicket creates a ticket for chatID through the user bot.
func (h *harness) openTicket(chatID int64) string {
	h.t.Helper()
	h.withLanguage(chatID)
	h.userSays(chatID, h.catalog.Get("en", i18n.ContactSupport))
	id, ok := h.svc.Index().Get(chatID)
	if !ok {
		h.t.Fatalf("no ticket opened for %d", chatID)
	}
	return id
}

func (h *harness) ticket(id string) *model.Ticket {
	h.t.Helper()
	tk, err := h.svc.GetTicket(context.Background(), id)
	if err != nil {
		h.t.Fatalf("get %s: %v", id, err)
	}
	return tk
}
