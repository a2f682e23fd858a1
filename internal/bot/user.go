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

	"github.com/yodabot/support-desk/internal/i18n"
	"github.com/yodabot/support-desk/internal/model"
	"github.com/yodabot/support-desk/internal/service"
	"github.com/yodabot/support-desk/pkg/logger"
	"github.com/yodabot/support-desk/pkg/metrics"
)

const userBotName = "user"

// UserBot is the customer-facing front-end. It also implements UserNotifier
// so the staff side can reach requesters without holding this bot.
type UserBot struct {
	messenger Messenger
	tickets   *service.TicketService
	catalog   *i18n.Catalog
	staff     StaffNotifier
	ops       OpsLog
	logger    *logger.Logger
	now       func() time.Time
}

// UserBotConfig holds the collaborators of a UserBot.
type UserBotConfig struct {
	Messenger Messenger
	Tickets   *service.TicketService
	Catalog   *i18n.Catalog
	Staff     StaffNotifier
	Ops       OpsLog
	Logger    *logger.Logger
	Now       func() time.Time
}

// NewUserBot creates the user front-end.
func NewUserBot(cfg UserBotConfig) *UserBot {
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &UserBot{
		messenger: cfg.Messenger,
		tickets:   cfg.Tickets,
		catalog:   cfg.Catalog,
		staff:     cfg.Staff,
		ops:       cfg.Ops,
		logger:    log,
		now:       now,
	}
}

// HandleUpdate implements Handler. Errors never escape; each failure ends in
// a short message to the chat that triggered it.
func (b *UserBot) HandleUpdate(ctx context.Context, u Update) {
	switch {
	case u.Message != nil:
		log := b.logger.WithUpdate(userBotName, u.Message.ChatID, u.ID)
		status := "ok"
		if err := b.handleMessage(ctx, u.Message); err != nil {
			status = "error"
			log.Error("failed to handle message", zap.Error(err))
		}
		metrics.RecordUpdate(userBotName, "message", status)
	case u.Callback != nil:
		log := b.logger.WithUpdate(userBotName, u.Callback.ChatID, u.ID)
		status := "ok"
		if err := b.handleCallback(ctx, u.Callback); err != nil {
			status = "error"
			log.Error("failed to handle callback", zap.String("data", u.Callback.Data), zap.Error(err))
		}
		metrics.RecordUpdate(userBotName, "callback", status)
	}
}

// language returns the stored preference of userID and whether one is set.
func (b *UserBot) language(ctx context.Context, userID int64) (string, bool, error) {
	data, ok, err := b.tickets.GetUserData(ctx, userID)
	if err != nil {
		return b.catalog.Default(), false, err
	}
	if !ok || data.Language == "" {
		return b.catalog.Default(), false, nil
	}
	return data.Language, true, nil
}

func (b *UserBot) send(ctx context.Context, chatID int64, text string) error {
	_, err := b.messenger.Send(ctx, Outgoing{ChatID: chatID, Text: text})
	return err
}

func (b *UserBot) sendKey(ctx context.Context, chatID int64, lang, key string, args ...any) error {
	return b.send(ctx, chatID, b.catalog.Format(lang, key, args...))
}

// fail reports a generic error to the chat and returns cause.
func (b *UserBot) fail(ctx context.Context, chatID int64, lang string, cause error) error {
	if err := b.sendKey(ctx, chatID, lang, i18n.ErrorOccurred); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (b *UserBot) handleMessage(ctx context.Context, msg *IncomingMessage) error {
	lang, hasLang, err := b.language(ctx, msg.SenderID)
	if err != nil {
		return b.fail(ctx, msg.ChatID, lang, err)
	}
	if !hasLang {
		return b.sendLanguagePicker(ctx, msg.ChatID, lang)
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case msg.IsCommand("start", "menu"):
		return b.sendWelcome(ctx, msg.ChatID, lang)
	case text != "" && text == b.catalog.Get(lang, i18n.MenuButton):
		return b.sendMenu(ctx, msg.ChatID, lang)
	case text != "" && text == b.catalog.Get(lang, i18n.ContactSupport):
		return b.startTicket(ctx, msg.ChatID, lang)
	}

	ticketID, active, err := b.tickets.ActiveTicketFor(ctx, msg.ChatID)
	if err != nil {
		return b.fail(ctx, msg.ChatID, lang, err)
	}
	if active {
		return b.handleTicketMessage(ctx, msg, lang, ticketID)
	}

	if text != "" && text == b.catalog.Get(lang, i18n.LanguageButton) {
		return b.sendLanguagePicker(ctx, msg.ChatID, lang)
	}
	return b.sendKey(ctx, msg.ChatID, lang, i18n.OutsideTicket)
}

// handleTicketMessage archives a message into the requester's open ticket and
// forwards it live when a staff member is handling the ticket.
func (b *UserBot) handleTicketMessage(ctx context.Context, msg *IncomingMessage, lang, ticketID string) error {
	t, err := b.tickets.GetTicket(ctx, ticketID)
	if errors.Is(err, service.ErrNotFound) {
		b.tickets.Index().DeleteIf(msg.ChatID, ticketID)
		b.ops.Log(ctx, fmt.Sprintf("ERROR: no ticket record for active ticket %s. ChatId: %d.", ticketID, msg.ChatID))
		return b.fail(ctx, msg.ChatID, lang, fmt.Errorf("active ticket %s has no record", ticketID))
	}
	if err != nil {
		return b.fail(ctx, msg.ChatID, lang, err)
	}
	if !t.IsOpen() {
		return b.sendKey(ctx, msg.ChatID, lang, i18n.ClosedTicket)
	}
	if msg.Kind == "" {
		return b.sendKey(ctx, msg.ChatID, lang, i18n.Unsupported)
	}

	chatMsg := model.ChatMessage{
		SenderID:  strconv.FormatInt(msg.ChatID, 10),
		Role:      model.RoleUser,
		Kind:      msg.Kind,
		Text:      msg.Content(),
		MediaRef:  msg.FileRef,
		Timestamp: b.now().UTC(),
	}
	err = b.tickets.AppendMessage(ctx, ticketID, chatMsg)
	if errors.Is(err, service.ErrTicketClosed) || errors.Is(err, service.ErrNotFound) {
		return b.sendKey(ctx, msg.ChatID, lang, i18n.ClosedTicket)
	}
	if err != nil {
		return b.fail(ctx, msg.ChatID, lang, err)
	}

	staffChatID, handled := b.tickets.Tracker().WhoIsHandling(ticketID)
	if !handled {
		return nil
	}

	relay := Relay{Kind: msg.Kind, Text: msg.Content()}
	if msg.Kind.IsMedia() && msg.FileRef != "" {
		data, err := b.messenger.Download(ctx, msg.FileRef)
		if err != nil {
			return b.fail(ctx, msg.ChatID, lang, fmt.Errorf("download %s: %w", msg.FileRef, err))
		}
		relay.Data = data
	}
	if err := b.staff.ForwardUserMessage(ctx, staffChatID, t, relay); err != nil {
		return b.fail(ctx, msg.ChatID, lang, fmt.Errorf("forward to staff %d: %w", staffChatID, err))
	}
	return nil
}

func (b *UserBot) handleCallback(ctx context.Context, cb *Callback) error {
	lang, _, err := b.language(ctx, cb.SenderID)
	if err != nil {
		b.logger.Warn("failed to load language", zap.Int64("user_id", cb.SenderID), zap.Error(err))
	}

	data, ok := ParseCallback(cb.Data)
	if !ok {
		return b.messenger.AnswerCallback(ctx, cb.ID, b.catalog.Get(lang, i18n.InvalidChoice), true)
	}

	var actionErr error
	switch data.Action {
	case ActionConsultStaff:
		actionErr = b.startTicket(ctx, cb.ChatID, lang)
	case ActionCheckServices:
		actionErr = b.sendKey(ctx, cb.ChatID, lang, i18n.Services)
	case ActionSocials:
		actionErr = b.sendKey(ctx, cb.ChatID, lang, i18n.Socials)
	case ActionCloseTicket:
		actionErr = b.closeTicket(ctx, cb.ChatID, lang)
	case ActionSetLanguage:
		if !b.catalog.Has(data.Language) {
			return b.messenger.AnswerCallback(ctx, cb.ID, b.catalog.Get(lang, i18n.InvalidChoice), true)
		}
		actionErr = b.setLanguage(ctx, cb, data.Language)
	default:
		return b.messenger.AnswerCallback(ctx, cb.ID, b.catalog.Get(lang, i18n.InvalidChoice), true)
	}

	if err := b.messenger.AnswerCallback(ctx, cb.ID, "", false); err != nil {
		return errors.Join(actionErr, err)
	}
	return actionErr
}

func (b *UserBot) setLanguage(ctx context.Context, cb *Callback, code string) error {
	if err := b.tickets.SetUserLanguage(ctx, cb.SenderID, code); err != nil {
		return b.fail(ctx, cb.ChatID, code, err)
	}
	if err := b.sendKey(ctx, cb.ChatID, code, i18n.LanguageSet); err != nil {
		return err
	}
	return b.sendWelcome(ctx, cb.ChatID, code)
}

func (b *UserBot) startTicket(ctx context.Context, chatID int64, lang string) error {
	id, err := b.tickets.CreateTicket(ctx, chatID, "")
	if errors.Is(err, service.ErrAlreadyOpen) {
		return b.sendKey(ctx, chatID, lang, i18n.AlreadyHave, id)
	}
	if err != nil {
		b.logger.Error("failed to create ticket", zap.Int64("chat_id", chatID), zap.Error(err))
		return b.sendKey(ctx, chatID, lang, i18n.CreateFailed)
	}

	b.ops.Log(ctx, fmt.Sprintf("📩 New ticket created - Ticket ID: %s, User ID: %d.", id, chatID))
	return b.sendKey(ctx, chatID, lang, i18n.TicketCreated, id)
}

func (b *UserBot) closeTicket(ctx context.Context, chatID int64, lang string) error {
	t, err := b.tickets.CloseTicketForChat(ctx, chatID)
	if errors.Is(err, service.ErrNotFound) {
		return b.sendKey(ctx, chatID, lang, i18n.NoActiveTicket)
	}
	if err != nil {
		b.logger.Error("failed to close ticket", zap.Int64("chat_id", chatID), zap.Error(err))
		return b.sendKey(ctx, chatID, lang, i18n.CloseFailed)
	}

	b.staff.TicketClosed(ctx, t.ID)
	b.ops.Log(ctx, fmt.Sprintf("🔒 Ticket with Ticket ID %s closed by user.", t.ID))
	return b.sendKey(ctx, chatID, lang, i18n.UserClosed, t.ID)
}

func (b *UserBot) sendLanguagePicker(ctx context.Context, chatID int64, lang string) error {
	_, err := b.messenger.Send(ctx, Outgoing{
		ChatID: chatID,
		Text:   b.catalog.Get(lang, i18n.SelectLanguage),
		Inline: InlineKeyboard{
			{{Text: b.catalog.Get(lang, i18n.EnglishButton), Data: LanguageCallback("en")}},
			{{Text: b.catalog.Get(lang, i18n.AmharicButton), Data: LanguageCallback("am")}},
		},
	})
	return err
}

func (b *UserBot) sendWelcome(ctx context.Context, chatID int64, lang string) error {
	_, err := b.messenger.Send(ctx, Outgoing{
		ChatID: chatID,
		Text:   b.catalog.Get(lang, i18n.Welcome),
		Reply: ReplyKeyboard{
			{b.catalog.Get(lang, i18n.ContactSupport)},
			{b.catalog.Get(lang, i18n.MenuButton), b.catalog.Get(lang, i18n.LanguageButton)},
		},
	})
	return err
}

func (b *UserBot) sendMenu(ctx context.Context, chatID int64, lang string) error {
	kb := InlineKeyboard{
		{{Text: b.catalog.Get(lang, i18n.ContactSupport), Data: string(ActionConsultStaff)}},
		{
			{Text: b.catalog.Get(lang, i18n.SocialsButton), Data: string(ActionSocials)},
			{Text: b.catalog.Get(lang, i18n.ServicesButton), Data: string(ActionCheckServices)},
		},
	}
	if _, active := b.tickets.Index().Get(chatID); active {
		kb = append(kb, []Button{{Text: b.catalog.Get(lang, i18n.CloseButton), Data: string(ActionCloseTicket)}})
	}

	_, err := b.messenger.Send(ctx, Outgoing{ChatID: chatID, Text: b.catalog.Get(lang, i18n.Menu), Inline: kb})
	return err
}

// DeliverStaffReply implements UserNotifier.
func (b *UserBot) DeliverStaffReply(ctx context.Context, t *model.Ticket, reply Relay) error {
	lang, _, err := b.language(ctx, t.RequesterChatID)
	if err != nil {
		b.logger.Warn("failed to load language", zap.Int64("user_id", t.RequesterChatID), zap.Error(err))
	}

	header := b.catalog.Format(lang, i18n.StaffReplied, t.ID)
	body := header
	if reply.Text != "" {
		body += "\n\n" + html.EscapeString(reply.Text)
	}

	if reply.Kind.IsMedia() && len(reply.Data) > 0 {
		_, err := b.messenger.SendMedia(ctx, t.RequesterChatID, Media{
			Kind:     reply.Kind,
			Data:     reply.Data,
			FileName: mediaFileName(reply.Kind, "staff_reply"),
			Caption:  body,
		})
		return err
	}
	return b.send(ctx, t.RequesterChatID, body)
}

// NotifyTicketClosed implements UserNotifier.
func (b *UserBot) NotifyTicketClosed(ctx context.Context, t *model.Ticket) error {
	lang, _, _ := b.language(ctx, t.RequesterChatID)
	return b.sendKey(ctx, t.RequesterChatID, lang, i18n.ClosedByStaff, t.ID)
}

// NotifyTicketReopened implements UserNotifier.
func (b *UserBot) NotifyTicketReopened(ctx context.Context, t *model.Ticket) error {
	lang, _, _ := b.language(ctx, t.RequesterChatID)
	return b.sendKey(ctx, t.RequesterChatID, lang, i18n.ReopenedUser, t.ID)
}
