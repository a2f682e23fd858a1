package bot

import (
	"context"
	"html"

	"go.uber.org/zap"

	"github.com/yodabot/support-desk/internal/i18n"
	"github.com/yodabot/support-desk/internal/model"
	"github.com/yodabot/support-desk/pkg/logger"
)

// Relay is a message passed from one bot to the other. Media content is
// carried as bytes because file references are scoped to the bot that
// received them.
type Relay struct {
	Kind model.Kind
	Text string
	Data []byte
}

// UserNotifier delivers staff-side events to a ticket's requester.
type UserNotifier interface {
	DeliverStaffReply(ctx context.Context, t *model.Ticket, reply Relay) error
	NotifyTicketClosed(ctx context.Context, t *model.Ticket) error
	NotifyTicketReopened(ctx context.Context, t *model.Ticket) error
}

// StaffNotifier delivers user-side events to the staff side.
type StaffNotifier interface {
	ForwardUserMessage(ctx context.Context, staffChatID int64, t *model.Ticket, msg Relay) error
	// TicketClosed reports a ticket the requester closed.
	TicketClosed(ctx context.Context, ticketID string)
}

// OpsLog posts diagnostics to the operations channel.
type OpsLog interface {
	Log(ctx context.Context, text string)
}

// ChannelLog is an OpsLog backed by a chat channel.
type ChannelLog struct {
	messenger Messenger
	channelID int64
	logger    *logger.Logger
}

// NewChannelLog creates an ops log that posts to channelID.
func NewChannelLog(m Messenger, channelID int64, log *logger.Logger) *ChannelLog {
	return &ChannelLog{messenger: m, channelID: channelID, logger: log}
}

// Log sends text to the channel. Failures are logged and dropped.
func (l *ChannelLog) Log(ctx context.Context, text string) {
	if l.channelID == 0 {
		return
	}
	if _, err := l.messenger.Send(ctx, Outgoing{ChatID: l.channelID, Text: text}); err != nil {
		l.logger.Warn("failed to post to logs channel", zap.Int64("channel_id", l.channelID), zap.Error(err))
	}
}

// StaffRelay forwards user messages through the staff bot.
type StaffRelay struct {
	messenger Messenger
	catalog   *i18n.Catalog
	onClosed  []func(ticketID string)
}

// NewStaffRelay creates a StaffNotifier that sends through m.
func NewStaffRelay(m Messenger, catalog *i18n.Catalog) *StaffRelay {
	return &StaffRelay{messenger: m, catalog: catalog}
}

// OnTicketClosed registers fn to run when a requester closes a ticket.
// Register before the bots start polling.
func (r *StaffRelay) OnTicketClosed(fn func(ticketID string)) {
	r.onClosed = append(r.onClosed, fn)
}

// TicketClosed implements StaffNotifier.
func (r *StaffRelay) TicketClosed(_ context.Context, ticketID string) {
	for _, fn := range r.onClosed {
		fn(ticketID)
	}
}

// ForwardUserMessage implements StaffNotifier.
func (r *StaffRelay) ForwardUserMessage(ctx context.Context, staffChatID int64, t *model.Ticket, msg Relay) error {
	prefix := r.catalog.Format(r.catalog.Default(), i18n.UserSentPrefix, t.ID, t.RequesterChatID)
	body := prefix
	if msg.Text != "" {
		body += " " + html.EscapeString(msg.Text)
	}

	if msg.Kind.IsMedia() && len(msg.Data) > 0 {
		_, err := r.messenger.SendMedia(ctx, staffChatID, Media{
			Kind:     msg.Kind,
			Data:     msg.Data,
			FileName: mediaFileName(msg.Kind, "user"),
			Caption:  body,
		})
		return err
	}
	if msg.Kind.IsMedia() {
		body += " " + msg.Kind.Label()
	}
	_, err := r.messenger.Send(ctx, Outgoing{ChatID: staffChatID, Text: body})
	return err
}
