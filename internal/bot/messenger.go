// Package bot implements the user-facing and staff-facing front-ends. It
// translates inbound chat updates into ticket service calls and renders the
// replies through a transport-neutral Messenger.
package bot

import (
	"context"
	"strings"

	"github.com/yodabot/support-desk/internal/model"
)

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// InlineKeyboard is a grid of callback buttons attached to a message.
type InlineKeyboard [][]Button

// ReplyKeyboard is a persistent keyboard of text labels.
type ReplyKeyboard [][]string

// Outgoing is a text message. Text is HTML.
type Outgoing struct {
	ChatID int64
	Text   string
	Inline InlineKeyboard
	Reply  ReplyKeyboard
}

// Media is a file relayed as raw bytes.
type Media struct {
	Kind     model.Kind
	Data     []byte
	FileName string
	Caption  string
}

// Messenger is the outbound chat API of one bot.
type Messenger interface {
	Send(ctx context.Context, msg Outgoing) (int, error)
	SendMedia(ctx context.Context, chatID int64, media Media) (int, error)
	// Edit replaces the text of a message. A nil keyboard removes buttons.
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb InlineKeyboard) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	Download(ctx context.Context, fileRef string) ([]byte, error)
}

// Update is one inbound event. Exactly one of Message and Callback is set.
type Update struct {
	ID       int
	Message  *IncomingMessage
	Callback *Callback
}

// IncomingMessage is a chat message received by a bot. Kind is empty for
// content types the bots do not relay (stickers, locations).
type IncomingMessage struct {
	MessageID  int
	ChatID     int64
	SenderID   int64
	SenderName string
	Text       string
	Caption    string
	Kind       model.Kind
	FileRef    string
}

// Content returns the text of a text message or the caption of a media one.
func (m *IncomingMessage) Content() string {
	if m.Kind == model.KindText {
		return m.Text
	}
	return m.Caption
}

// IsCommand reports whether the text is one of the given slash commands,
// ignoring case and a trailing @botname.
func (m *IncomingMessage) IsCommand(names ...string) bool {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return false
	}
	cmd, _, _ := strings.Cut(strings.Fields(text)[0], "@")
	for _, n := range names {
		if strings.EqualFold(cmd, "/"+n) {
			return true
		}
	}
	return false
}

// Callback is an inline button press.
type Callback struct {
	ID        string
	ChatID    int64
	SenderID  int64
	MessageID int
	Data      string
}

// Handler consumes updates for one bot.
type Handler interface {
	HandleUpdate(ctx context.Context, u Update)
}

func mediaFileName(kind model.Kind, prefix string) string {
	switch kind {
	case model.KindImage:
		return prefix + "_image.jpg"
	case model.KindAudio:
		return prefix + "_audio.mp3"
	case model.KindVoice:
		return prefix + "_voice.ogg"
	case model.KindVideo:
		return prefix + "_video.mp4"
	}
	return prefix + "_document"
}
