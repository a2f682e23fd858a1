package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yodabot/support-desk/internal/cache"
	"github.com/yodabot/support-desk/internal/i18n"
	"github.com/yodabot/support-desk/internal/model"
	"github.com/yodabot/support-desk/internal/service"
	"github.com/yodabot/support-desk/pkg/logger"
	"github.com/yodabot/support-desk/pkg/metrics"
)

const (
	staffBotName = "staff"

	labelViewTickets  = "🎫 View Tickets"
	labelSearch       = "🔍 Search Tickets"
	labelStats        = "📊 Ticket Stats"
	minKeywordRunes   = 3
	defaultPageSize   = 10
	defaultListTTL    = 5 * time.Minute
	defaultDetailsTTL = 10 * time.Minute
)

// Summarizer condenses a plain-text transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// StaffBotConfig holds the collaborators and tunables of a StaffBot.
type StaffBotConfig struct {
	Messenger  Messenger
	Tickets    *service.TicketService
	Catalog    *i18n.Catalog
	Users      UserNotifier
	Ops        OpsLog
	Summarizer Summarizer
	IsAdmin    func(userID int64) bool
	PageSize   int
	ListTTL    time.Duration
	DetailsTTL time.Duration
	Logger     *logger.Logger
	Now        func() time.Time
}

// StaffBot is the agent-facing front-end.
type StaffBot struct {
	messenger  Messenger
	tickets    *service.TicketService
	tracker    *service.AssignmentTracker
	catalog    *i18n.Catalog
	lang       string
	users      UserNotifier
	ops        OpsLog
	summarizer Summarizer
	isAdmin    func(int64) bool
	pageSize   int
	lists      *cache.Cache[ListType, []*model.Ticket]
	details    *cache.Cache[string, *model.Ticket]
	logger     *logger.Logger
	now        func() time.Time
}

// NewStaffBot creates the staff front-end.
func NewStaffBot(cfg StaffBotConfig) *StaffBot {
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IsAdmin == nil {
		cfg.IsAdmin = func(int64) bool { return false }
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.ListTTL == 0 {
		cfg.ListTTL = defaultListTTL
	}
	if cfg.DetailsTTL == 0 {
		cfg.DetailsTTL = defaultDetailsTTL
	}

	return &StaffBot{
		messenger:  cfg.Messenger,
		tickets:    cfg.Tickets,
		tracker:    cfg.Tickets.Tracker(),
		catalog:    cfg.Catalog,
		lang:       cfg.Catalog.Default(),
		users:      cfg.Users,
		ops:        cfg.Ops,
		summarizer: cfg.Summarizer,
		isAdmin:    cfg.IsAdmin,
		pageSize:   cfg.PageSize,
		lists:      cache.New[ListType, []*model.Ticket]("ticket_list", cfg.ListTTL).WithClock(cfg.Now),
		details:    cache.New[string, *model.Ticket]("ticket_details", cfg.DetailsTTL).WithClock(cfg.Now),
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// HandleUpdate implements Handler.
func (b *StaffBot) HandleUpdate(ctx context.Context, u Update) {
	switch {
	case u.Message != nil:
		log := b.logger.WithUpdate(staffBotName, u.Message.ChatID, u.ID)
		status := "ok"
		if err := b.handleMessage(ctx, u.Message); err != nil {
			status = "error"
			log.Error("failed to handle message", zap.Error(err))
		}
		metrics.RecordUpdate(staffBotName, "message", status)
	case u.Callback != nil:
		log := b.logger.WithUpdate(staffBotName, u.Callback.ChatID, u.ID)
		status := "ok"
		if err := b.handleCallback(ctx, u.Callback); err != nil {
			status = "error"
			log.Error("failed to handle callback", zap.String("data", u.Callback.Data), zap.Error(err))
		}
		metrics.RecordUpdate(staffBotName, "callback", status)
	}
}

func (b *StaffBot) send(ctx context.Context, chatID int64, text string, kb InlineKeyboard) error {
	_, err := b.messenger.Send(ctx, Outgoing{ChatID: chatID, Text: text, Inline: kb})
	return err
}

func (b *StaffBot) sendKey(ctx context.Context, chatID int64, key string, args ...any) error {
	return b.send(ctx, chatID, b.catalog.Format(b.lang, key, args...), nil)
}

// show edits messageID in place, or sends a new message when there is none.
func (b *StaffBot) show(ctx context.Context, chatID int64, messageID int, text string, kb InlineKeyboard) error {
	if messageID == 0 {
		return b.send(ctx, chatID, text, kb)
	}
	return b.messenger.Edit(ctx, chatID, messageID, text, kb)
}

// failed tells the staff member the action may not have completed. The
// store mutation, if any, is not rolled back.
func (b *StaffBot) failed(ctx context.Context, chatID int64, cause error) error {
	if err := b.sendKey(ctx, chatID, i18n.ActionFailed); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (b *StaffBot) handleMessage(ctx context.Context, msg *IncomingMessage) error {
	if a, ok := b.tracker.Current(msg.ChatID); ok {
		return b.replyToTicket(ctx, msg, a.TicketID)
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case msg.IsCommand("admin"):
		return b.handleAdmin(ctx, msg)
	case isTicketID(text):
		return b.search(ctx, msg.ChatID, strings.ToUpper(text))
	case msg.IsCommand("delete"):
		fields := strings.Fields(text)
		if len(fields) != 2 || !isTicketID(fields[1]) {
			return b.sendKey(ctx, msg.ChatID, i18n.UsageDelete)
		}
		id := strings.ToUpper(fields[1])
		return b.send(ctx, msg.ChatID, b.catalog.Format(b.lang, i18n.ConfirmDelete, id), confirmDeleteKeyboard(id))
	case msg.IsCommand("start", "menu"):
		_, err := b.messenger.Send(ctx, Outgoing{
			ChatID: msg.ChatID,
			Text:   b.catalog.Get(b.lang, i18n.StaffMenu),
			Reply:  ReplyKeyboard{{labelViewTickets}, {labelSearch}, {labelStats}},
		})
		return err
	case text == labelViewTickets:
		b.tracker.Clear(msg.ChatID)
		return b.send(ctx, msg.ChatID, b.catalog.Get(b.lang, i18n.SelectType), listTypeKeyboard())
	case text == labelSearch:
		return b.sendKey(ctx, msg.ChatID, i18n.SearchPrompt)
	case text == labelStats:
		return b.sendStats(ctx, msg.ChatID)
	case len([]rune(text)) >= minKeywordRunes && !strings.HasPrefix(text, "/"):
		return b.search(ctx, msg.ChatID, text)
	}
	return b.sendKey(ctx, msg.ChatID, i18n.StaffMenu)
}

// replyToTicket relays a staff message to the requester of the handled
// ticket and archives it.
func (b *StaffBot) replyToTicket(ctx context.Context, msg *IncomingMessage, ticketID string) error {
	content := msg.Content()
	if msg.Kind == "" || (content == "" && msg.FileRef == "") {
		return b.sendKey(ctx, msg.ChatID, i18n.ReplyEmpty)
	}

	t, err := b.tickets.GetTicket(ctx, ticketID)
	if errors.Is(err, service.ErrNotFound) {
		b.tracker.Clear(msg.ChatID)
		return b.sendKey(ctx, msg.ChatID, i18n.TicketMissing, ticketID)
	}
	if err != nil {
		return b.failed(ctx, msg.ChatID, err)
	}
	if !t.IsOpen() {
		b.tracker.Clear(msg.ChatID)
		return b.sendKey(ctx, msg.ChatID, i18n.NotOpenForReply, ticketID)
	}

	relay := Relay{Kind: msg.Kind, Text: content}
	if msg.Kind.IsMedia() && msg.FileRef != "" {
		data, err := b.messenger.Download(ctx, msg.FileRef)
		if err != nil {
			return b.failed(ctx, msg.ChatID, fmt.Errorf("download %s: %w", msg.FileRef, err))
		}
		relay.Data = data
	}
	if err := b.users.DeliverStaffReply(ctx, t, relay); err != nil {
		return b.failed(ctx, msg.ChatID, fmt.Errorf("deliver reply for %s: %w", ticketID, err))
	}

	err = b.tickets.AppendMessage(ctx, ticketID, model.ChatMessage{
		SenderID:  strconv.FormatInt(msg.SenderID, 10),
		Role:      model.RoleStaff,
		Kind:      msg.Kind,
		Text:      content,
		MediaRef:  msg.FileRef,
		Timestamp: b.now().UTC(),
	})
	if errors.Is(err, service.ErrTicketClosed) || errors.Is(err, service.ErrNotFound) {
		b.tracker.Clear(msg.ChatID)
		return b.sendKey(ctx, msg.ChatID, i18n.NotOpenForReply, ticketID)
	}
	if err != nil {
		return b.failed(ctx, msg.ChatID, err)
	}
	b.details.Delete(ticketID)

	return b.sendKey(ctx, msg.ChatID, i18n.ReplySent, ticketID)
}

func (b *StaffBot) handleAdmin(ctx context.Context, msg *IncomingMessage) error {
	if !b.isAdmin(msg.SenderID) {
		return b.sendKey(ctx, msg.ChatID, i18n.NotAdmin)
	}

	fields := strings.Fields(msg.Text)
	if len(fields) < 2 {
		return b.sendKey(ctx, msg.ChatID, i18n.AdminUsage)
	}
	if !strings.EqualFold(fields[1], "broadcast") {
		return b.sendKey(ctx, msg.ChatID, i18n.UnknownAdmin)
	}
	if len(fields) < 3 {
		return b.sendKey(ctx, msg.ChatID, i18n.BroadcastUsage)
	}

	text := strings.Join(fields[2:], " ")
	b.ops.Log(ctx, "📢 Broadcast from Admin:\n"+html.EscapeString(text))
	return b.sendKey(ctx, msg.ChatID, i18n.BroadcastSent)
}

func (b *StaffBot) search(ctx context.Context, chatID int64, keyword string) error {
	results, err := b.tickets.SearchTickets(ctx, keyword)
	if err != nil {
		return b.failed(ctx, chatID, err)
	}
	if len(results) == 0 {
		return b.sendKey(ctx, chatID, i18n.NoResults, html.EscapeString(keyword))
	}
	text, kb := renderSearchResults(b.catalog, results)
	return b.send(ctx, chatID, text, kb)
}

func (b *StaffBot) sendStats(ctx context.Context, chatID int64) error {
	st, err := b.tickets.Stats(ctx)
	if err != nil {
		return b.failed(ctx, chatID, err)
	}
	return b.sendKey(ctx, chatID, i18n.StatsMessage, st.Open, st.Closed, st.Total, st.Handled)
}

func (b *StaffBot) handleCallback(ctx context.Context, cb *Callback) error {
	data, ok := ParseCallback(cb.Data)
	if !ok {
		return b.messenger.AnswerCallback(ctx, cb.ID, b.catalog.Get(b.lang, i18n.InvalidChoice), true)
	}

	var err error
	switch data.Action {
	case ActionViewTickets:
		b.tracker.Clear(cb.ChatID)
		err = b.send(ctx, cb.ChatID, b.catalog.Get(b.lang, i18n.SelectType), listTypeKeyboard())
	case ActionViewType:
		b.tracker.Clear(cb.ChatID)
		err = b.showList(ctx, cb.ChatID, cb.MessageID, data.List, data.Page)
	case ActionSearchTickets:
		err = b.sendKey(ctx, cb.ChatID, i18n.SearchPrompt)
	case ActionHandle:
		err = b.handleTicket(ctx, cb.ChatID, data.TicketID)
	case ActionReply:
		err = b.startReply(ctx, cb.ChatID, data.TicketID)
	case ActionSwitch:
		err = b.switchTicket(ctx, cb.ChatID, cb.MessageID, data.TicketID)
	case ActionConfirmClose:
		err = b.show(ctx, cb.ChatID, cb.MessageID,
			b.catalog.Format(b.lang, i18n.ConfirmClose, data.TicketID), confirmCloseKeyboard(data.TicketID))
	case ActionConfirmDelete:
		err = b.show(ctx, cb.ChatID, cb.MessageID,
			b.catalog.Format(b.lang, i18n.ConfirmDelete, data.TicketID), confirmDeleteKeyboard(data.TicketID))
	case ActionConfirmReopen:
		err = b.show(ctx, cb.ChatID, cb.MessageID,
			b.catalog.Format(b.lang, i18n.ConfirmReopen, data.TicketID), confirmReopenKeyboard(data.TicketID))
	case ActionDoClose:
		err = b.closeTicket(ctx, cb.ChatID, cb.MessageID, data.TicketID)
	case ActionCloseNow:
		err = b.closeTicket(ctx, cb.ChatID, 0, data.TicketID)
	case ActionDoReopen:
		err = b.reopenTicket(ctx, cb.ChatID, cb.MessageID, data.TicketID)
	case ActionDeleteWithTx:
		err = b.deleteTicket(ctx, cb.ChatID, cb.MessageID, data.TicketID, true)
	case ActionDeleteOnly:
		err = b.deleteTicket(ctx, cb.ChatID, cb.MessageID, data.TicketID, false)
	case ActionCancel:
		err = b.revertToDetails(ctx, cb.ChatID, cb.MessageID, data.TicketID)
	case ActionTranscript:
		err = b.sendTranscript(ctx, cb.ChatID, cb.MessageID, data.TicketID)
	default:
		return b.messenger.AnswerCallback(ctx, cb.ID, b.catalog.Get(b.lang, i18n.InvalidChoice), true)
	}

	if answerErr := b.messenger.AnswerCallback(ctx, cb.ID, "", false); answerErr != nil {
		return errors.Join(err, answerErr)
	}
	return err
}

func (b *StaffBot) loadList(ctx context.Context, typ ListType) ([]*model.Ticket, error) {
	return b.lists.GetOrLoad(ctx, typ, func(ctx context.Context) ([]*model.Ticket, error) {
		switch typ {
		case ListOpen:
			return b.tickets.ListOpen(ctx)
		case ListClosed:
			return b.tickets.ListClosed(ctx)
		}
		return b.tickets.ListAll(ctx)
	})
}

func (b *StaffBot) showList(ctx context.Context, chatID int64, messageID int, typ ListType, page int) error {
	tickets, err := b.loadList(ctx, typ)
	if err != nil {
		return b.failed(ctx, chatID, err)
	}
	if len(tickets) == 0 {
		return b.sendKey(ctx, chatID, i18n.NoTickets, typ)
	}
	text, kb := renderListPage(b.catalog, typ, paginate(tickets, page, b.pageSize))
	return b.show(ctx, chatID, messageID, text, kb)
}

// invalidate drops cached views that a lifecycle transition made stale.
func (b *StaffBot) invalidate(ticketID string) {
	b.details.Delete(ticketID)
	b.lists.Purge()
}

// ForgetTicket drops cached views of a ticket closed outside the staff bot.
func (b *StaffBot) ForgetTicket(ticketID string) {
	b.invalidate(ticketID)
}

// loadDetails serves ticket details from the details cache.
func (b *StaffBot) loadDetails(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return b.details.GetOrLoad(ctx, ticketID, func(ctx context.Context) (*model.Ticket, error) {
		return b.tickets.GetTicket(ctx, ticketID)
	})
}

// handleTicket shows a ticket and, when it is open, makes the staff member
// its handler.
func (b *StaffBot) handleTicket(ctx context.Context, chatID int64, ticketID string) error {
	t, err := b.loadDetails(ctx, ticketID)
	if err == nil && t.IsOpen() {
		t, err = b.recheckOpen(ctx, t)
	}
	if errors.Is(err, service.ErrNotFound) {
		return b.sendKey(ctx, chatID, i18n.TicketMissing, ticketID)
	}
	if err != nil {
		return b.failed(ctx, chatID, err)
	}

	if err := b.send(ctx, chatID, renderDetails(b.catalog, t), detailsKeyboard(t)); err != nil {
		return err
	}
	if !t.IsOpen() {
		return nil
	}
	b.tracker.Assign(chatID, t.ID, t.RequesterChatID)
	return b.sendKey(ctx, chatID, i18n.NowHandling, t.ID)
}

// recheckOpen reloads a cached open ticket that the store no longer holds
// as open.
func (b *StaffBot) recheckOpen(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	open, err := b.tickets.IsTicketOpen(ctx, t.ID)
	if err != nil || open {
		return t, err
	}
	b.invalidate(t.ID)
	return b.loadDetails(ctx, t.ID)
}

func (b *StaffBot) startReply(ctx context.Context, chatID int64, ticketID string) error {
	t, err := b.tickets.GetTicket(ctx, ticketID)
	if errors.Is(err, service.ErrNotFound) {
		return b.sendKey(ctx, chatID, i18n.TicketMissing, ticketID)
	}
	if err != nil {
		return b.failed(ctx, chatID, err)
	}
	if !t.IsOpen() {
		return b.sendKey(ctx, chatID, i18n.NotOpenForReply, ticketID)
	}

	b.tracker.Assign(chatID, t.ID, t.RequesterChatID)
	if err := b.sendKey(ctx, chatID, i18n.NowHandling, t.ID); err != nil {
		return err
	}
	return b.sendKey(ctx, chatID, i18n.ReplyByID, t.ID, t.RequesterChatID)
}

func (b *StaffBot) switchTicket(ctx context.Context, chatID int64, messageID int, ticketID string) error {
	if _, ok := b.tracker.Clear(chatID); !ok {
		return b.sendKey(ctx, chatID, i18n.NotHandling)
	}
	return b.show(ctx, chatID, messageID, b.catalog.Format(b.lang, i18n.NoLongerHandle, ticketID), nil)
}

// stopHandling clears the staff member's assignment if it is ticketID.
func (b *StaffBot) stopHandling(chatID int64, ticketID string) {
	if a, ok := b.tracker.Current(chatID); ok && a.TicketID == ticketID {
		b.tracker.Clear(chatID)
	}
}

func (b *StaffBot) closeTicket(ctx context.Context, chatID int64, messageID int, ticketID string) error {
	defer b.stopHandling(chatID, ticketID)

	t, err := b.tickets.CloseTicket(ctx, ticketID)
	b.invalidate(ticketID)
	if errors.Is(err, service.ErrNotFound) {
		return b.sendKey(ctx, chatID, i18n.TicketMissing, ticketID)
	}
	if err != nil {
		return b.failed(ctx, chatID, err)
	}

	b.ops.Log(ctx, fmt.Sprintf("🗑️ Ticket with Ticket ID %s closed by staff.", ticketID))
	if err := b.users.NotifyTicketClosed(ctx, t); err != nil {
		b.logger.Warn("failed to notify requester", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	if err := b.show(ctx, chatID, messageID, b.catalog.Format(b.lang, i18n.StaffClosed, ticketID), nil); err != nil {
		return b.failed(ctx, chatID, err)
	}
	return nil
}

func (b *StaffBot) reopenTicket(ctx context.Context, chatID int64, messageID int, ticketID string) error {
	t, err := b.tickets.ReopenTicket(ctx, ticketID)
	b.invalidate(ticketID)
	if errors.Is(err, service.ErrNotFound) {
		return b.sendKey(ctx, chatID, i18n.TicketMissing, ticketID)
	}
	if err != nil {
		return b.failed(ctx, chatID, err)
	}

	b.ops.Log(ctx, fmt.Sprintf("♻️ Ticket with Ticket ID %s reopened by staff.", ticketID))
	if err := b.users.NotifyTicketReopened(ctx, t); err != nil {
		b.logger.Warn("failed to notify requester", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	if err := b.show(ctx, chatID, messageID, b.catalog.Format(b.lang, i18n.StaffReopened, ticketID), nil); err != nil {
		return b.failed(ctx, chatID, err)
	}
	return nil
}

func (b *StaffBot) deleteTicket(ctx context.Context, chatID int64, messageID int, ticketID string, withTranscript bool) error {
	defer b.stopHandling(chatID, ticketID)

	if withTranscript {
		t, err := b.tickets.GetTicket(ctx, ticketID)
		switch {
		case errors.Is(err, service.ErrNotFound):
			return b.sendKey(ctx, chatID, i18n.TicketMissing, ticketID)
		case err != nil:
			return b.failed(ctx, chatID, err)
		}
		b.postTranscript(ctx, t)
	}

	_, err := b.tickets.DeleteTicket(ctx, ticketID)
	b.invalidate(ticketID)
	if errors.Is(err, service.ErrNotFound) {
		return b.sendKey(ctx, chatID, i18n.TicketMissing, ticketID)
	}
	if err != nil {
		return b.failed(ctx, chatID, err)
	}

	key, logLine := i18n.StaffDeleted, fmt.Sprintf("🗑️ Ticket with Ticket ID %s DELETED by staff.", ticketID)
	if withTranscript {
		key, logLine = i18n.StaffDeletedTx, fmt.Sprintf("🗑️ Ticket with Ticket ID %s DELETED by staff (with transcript).", ticketID)
	}
	b.ops.Log(ctx, logLine)
	if err := b.show(ctx, chatID, messageID, b.catalog.Format(b.lang, key, ticketID), nil); err != nil {
		return b.failed(ctx, chatID, err)
	}
	return nil
}

// revertToDetails restores the details view on the confirmation message.
func (b *StaffBot) revertToDetails(ctx context.Context, chatID int64, messageID int, ticketID string) error {
	t, err := b.loadDetails(ctx, ticketID)
	if errors.Is(err, service.ErrNotFound) {
		return b.sendKey(ctx, chatID, i18n.TicketMissing, ticketID)
	}
	if err != nil {
		return b.failed(ctx, chatID, err)
	}
	return b.show(ctx, chatID, messageID, renderDetails(b.catalog, t), detailsKeyboard(t))
}

func (b *StaffBot) sendTranscript(ctx context.Context, chatID int64, messageID int, ticketID string) error {
	t, err := b.tickets.GetTicket(ctx, ticketID)
	if errors.Is(err, service.ErrNotFound) {
		return b.sendKey(ctx, chatID, i18n.TicketMissing, ticketID)
	}
	if err != nil {
		return b.failed(ctx, chatID, err)
	}

	b.postTranscript(ctx, t)
	if err := b.sendKey(ctx, chatID, i18n.TranscriptSent, ticketID); err != nil {
		return err
	}
	if messageID != 0 {
		return b.messenger.Delete(ctx, chatID, messageID)
	}
	return nil
}

// postTranscript sends the transcript, and a summary when a summarizer is
// configured, to the logs channel.
func (b *StaffBot) postTranscript(ctx context.Context, t *model.Ticket) {
	text := fmt.Sprintf("📜 <b>Ticket %s Transcript:</b>\n\n%s", t.ID, renderTranscript(t))
	if b.summarizer != nil && len(t.Messages) > 0 {
		summary, err := b.summarizer.Summarize(ctx, plainTranscript(t))
		if err != nil {
			b.logger.Warn("failed to summarize transcript", zap.String("ticket_id", t.ID), zap.Error(err))
		} else if summary != "" {
			text += "\n<b>🤖 Summary:</b> " + html.EscapeString(summary)
		}
	}
	b.ops.Log(ctx, text)
}
