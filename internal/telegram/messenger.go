// Package telegram adapts the Telegram Bot API to the transport-neutral
// bot interfaces.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yodabot/support-desk/internal/bot"
	"github.com/yodabot/support-desk/internal/model"
)

// maxMessageRunes is the Bot API limit for one text message.
const maxMessageRunes = 4096

// maxDownloadBytes bounds relayed media.
const maxDownloadBytes = 20 << 20

// Messenger sends through one bot token.
type Messenger struct {
	api    *tgbotapi.BotAPI
	client *http.Client
}

// NewMessenger wraps api.
func NewMessenger(api *tgbotapi.BotAPI) *Messenger {
	return &Messenger{
		api:    api,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Send implements bot.Messenger. Texts over the API limit are split on line
// boundaries; the keyboard goes with the last part.
func (m *Messenger) Send(_ context.Context, out bot.Outgoing) (int, error) {
	parts := splitText(out.Text, maxMessageRunes)
	var id int
	for i, part := range parts {
		msg := tgbotapi.NewMessage(out.ChatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if i == len(parts)-1 {
			switch {
			case out.Inline != nil:
				msg.ReplyMarkup = inlineMarkup(out.Inline)
			case out.Reply != nil:
				msg.ReplyMarkup = replyMarkup(out.Reply)
			}
		}

		sent, err := m.api.Send(msg)
		if err != nil {
			return id, fmt.Errorf("send to %d: %w", out.ChatID, err)
		}
		id = sent.MessageID
	}
	return id, nil
}

// SendMedia implements bot.Messenger.
func (m *Messenger) SendMedia(_ context.Context, chatID int64, media bot.Media) (int, error) {
	file := tgbotapi.FileBytes{Name: media.FileName, Bytes: media.Data}
	caption := truncate(media.Caption, 1024)

	var c tgbotapi.Chattable
	switch media.Kind {
	case model.KindImage:
		p := tgbotapi.NewPhoto(chatID, file)
		p.Caption, p.ParseMode = caption, tgbotapi.ModeHTML
		c = p
	case model.KindAudio:
		a := tgbotapi.NewAudio(chatID, file)
		a.Caption, a.ParseMode = caption, tgbotapi.ModeHTML
		c = a
	case model.KindVoice:
		v := tgbotapi.NewVoice(chatID, file)
		v.Caption, v.ParseMode = caption, tgbotapi.ModeHTML
		c = v
	case model.KindVideo:
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption, v.ParseMode = caption, tgbotapi.ModeHTML
		c = v
	default:
		d := tgbotapi.NewDocument(chatID, file)
		d.Caption, d.ParseMode = caption, tgbotapi.ModeHTML
		c = d
	}

	sent, err := m.api.Send(c)
	if err != nil {
		return 0, fmt.Errorf("send %s to %d: %w", media.Kind, chatID, err)
	}
	return sent.MessageID, nil
}

// Edit implements bot.Messenger.
func (m *Messenger) Edit(_ context.Context, chatID int64, messageID int, text string, kb bot.InlineKeyboard) error {
	text = truncate(text, maxMessageRunes)
	var edit tgbotapi.EditMessageTextConfig
	if kb != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, inlineMarkup(kb))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true

	if _, err := m.api.Request(edit); err != nil {
		return fmt.Errorf("edit %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// Delete implements bot.Messenger.
func (m *Messenger) Delete(_ context.Context, chatID int64, messageID int) error {
	if _, err := m.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// AnswerCallback implements bot.Messenger.
func (m *Messenger) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := m.api.Request(cfg); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// Download implements bot.Messenger. File ids are only valid for the bot
// that received them.
func (m *Messenger) Download(ctx context.Context, fileRef string) ([]byte, error) {
	url, err := m.api.GetFileDirectURL(fileRef)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileRef, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: status %d", fileRef, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func inlineMarkup(kb bot.InlineKeyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func replyMarkup(kb bot.ReplyKeyboard) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}

// splitText cuts s into parts of at most limit runes, preferring to break
// after a newline.
func splitText(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}

	var parts []string
	r := []rune(s)
	for len(r) > limit {
		cut := limit
		if i := lastIndexRune(r[:limit], '\n'); i > 0 {
			cut = i + 1
		}
		parts = append(parts, strings.TrimRight(string(r[:cut]), "\n"))
		r = r[cut:]
	}
	if len(r) > 0 {
		parts = append(parts, string(r))
	}
	return parts
}

func lastIndexRune(r []rune, c rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == c {
			return i
		}
	}
	return -1
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
