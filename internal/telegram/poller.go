package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/yodabot/support-desk/internal/bot"
	"github.com/yodabot/support-desk/internal/model"
	"github.com/yodabot/support-desk/pkg/logger"
)

const (
	defaultPollTimeout = 60 * time.Second
	defaultConcurrency = 16
)

// PollerOptions tunes a Poller. Zero values use defaults.
type PollerOptions struct {
	// Timeout is the long-poll wait per getUpdates call.
	Timeout time.Duration
	// Concurrency bounds in-flight updates.
	Concurrency int
}

// Poller long-polls one bot and dispatches each update to a handler on its
// own goroutine.
type Poller struct {
	api     *tgbotapi.BotAPI
	handler bot.Handler
	logger  *logger.Logger
	opts    PollerOptions
}

// NewPoller creates a poller for the bot called name.
func NewPoller(name string, api *tgbotapi.BotAPI, handler bot.Handler, opts PollerOptions, log *logger.Logger) *Poller {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPollTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if log == nil {
		log = logger.Global()
	}
	return &Poller{
		api:     api,
		handler: handler,
		logger:  log.With(zap.String("bot", name)),
		opts:    opts,
	}
}

// Run polls until ctx is cancelled and in-flight updates have finished.
func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(p.opts.Timeout.Seconds())
	updates := p.api.GetUpdatesChan(u)

	p.logger.Info("polling for updates", zap.String("username", p.api.Self.UserName))

	sem := make(chan struct{}, p.opts.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			p.logger.Info("stopped polling")
			return nil
		case raw, ok := <-updates:
			if !ok {
				return nil
			}
			update, ok := convertUpdate(raw)
			if !ok {
				p.logger.Debug("ignoring update", zap.Int("update_id", raw.UpdateID))
				continue
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				p.api.StopReceivingUpdates()
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				defer func() {
					if r := recover(); r != nil {
						p.logger.Error("panic while handling update", zap.Int("update_id", update.ID), zap.Any("panic", r))
					}
				}()
				p.handler.HandleUpdate(context.WithoutCancel(ctx), update)
			}()
		}
	}
}

// convertUpdate maps a Bot API update. Updates other than private or group
// messages and callback queries are dropped.
func convertUpdate(u tgbotapi.Update) (bot.Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
			return bot.Update{}, false
		}
		return bot.Update{ID: u.UpdateID, Callback: &bot.Callback{
			ID:        cq.ID,
			ChatID:    cq.Message.Chat.ID,
			SenderID:  cq.From.ID,
			MessageID: cq.Message.MessageID,
			Data:      cq.Data,
		}}, true
	case u.Message != nil:
		m := u.Message
		if m.Chat == nil || m.From == nil {
			return bot.Update{}, false
		}
		in := &bot.IncomingMessage{
			MessageID:  m.MessageID,
			ChatID:     m.Chat.ID,
			SenderID:   m.From.ID,
			SenderName: strings.TrimSpace(m.From.FirstName + " " + m.From.LastName),
			Text:       m.Text,
			Caption:    m.Caption,
		}
		in.Kind, in.FileRef = classify(m)
		return bot.Update{ID: u.UpdateID, Message: in}, true
	}
	return bot.Update{}, false
}

// classify returns the message kind and file id. Photos use the largest
// size. Unsupported content yields an empty kind.
func classify(m *tgbotapi.Message) (model.Kind, string) {
	switch {
	case len(m.Photo) > 0:
		return model.KindImage, m.Photo[len(m.Photo)-1].FileID
	case m.Voice != nil:
		return model.KindVoice, m.Voice.FileID
	case m.Audio != nil:
		return model.KindAudio, m.Audio.FileID
	case m.Video != nil:
		return model.KindVideo, m.Video.FileID
	case m.Document != nil:
		return model.KindDocument, m.Document.FileID
	case m.Text != "":
		return model.KindText, ""
	}
	return "", ""
}
