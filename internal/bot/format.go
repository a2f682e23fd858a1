package bot

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yodabot/support-desk/internal/i18n"
	"github.com/yodabot/support-desk/internal/model"
)

const (
	timeLayout      = "2006-01-02 15:04"
	summaryRunes    = 50
	maxHistoryLines = 30
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// renderDetails renders the ticket header followed by its message history.
func renderDetails(c *i18n.Catalog, t *model.Ticket) string {
	lang := c.Default()
	var b strings.Builder
	b.WriteString(c.Get(lang, i18n.DetailsHeader))
	fmt.Fprintf(&b, "<b>Ticket ID:</b> <code>%s</code>\n", t.ID)
	fmt.Fprintf(&b, "<b>User ID:</b> <code>%d</code>\n", t.RequesterChatID)
	fmt.Fprintf(&b, "<b>Status:</b> <code>%s</code>\n", t.Status)
	fmt.Fprintf(&b, "<b>Created:</b> %s\n\n", formatTime(t.CreatedAt))

	b.WriteString(c.Get(lang, i18n.HistoryHeader))
	if len(t.Messages) == 0 {
		b.WriteString(c.Get(lang, i18n.NoMessagesYet))
		return b.String()
	}

	msgs := t.Messages
	if len(msgs) > maxHistoryLines {
		fmt.Fprintf(&b, "<i>... %d earlier messages</i>\n", len(msgs)-maxHistoryLines)
		msgs = msgs[len(msgs)-maxHistoryLines:]
	}
	for _, m := range msgs {
		if m.Kind.IsMedia() {
			fmt.Fprintf(&b, "<code>%s: %s</code> File ID: <code>%s</code>\n", m.Role, m.Kind.Label(), html.EscapeString(m.MediaRef))
			continue
		}
		if m.Text != "" {
			fmt.Fprintf(&b, "<code>%s: %s</code>\n", m.Role, html.EscapeString(m.Text))
		}
	}
	return b.String()
}

func detailsKeyboard(t *model.Ticket) InlineKeyboard {
	if t.IsOpen() {
		return InlineKeyboard{
			{{Text: "💬 Reply to User", Data: TicketCallback(ActionReply, t.ID)}},
			{
				{Text: "🔄 Done for now", Data: TicketCallback(ActionSwitch, t.ID)},
				{Text: "❌ Close Ticket", Data: TicketCallback(ActionConfirmClose, t.ID)},
			},
		}
	}
	return InlineKeyboard{
		{{Text: "♻️ Reopen Ticket", Data: TicketCallback(ActionConfirmReopen, t.ID)}},
	}
}

// renderTranscript renders the full conversation for the logs channel.
func renderTranscript(t *model.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Ticket ID:</b> <code>%s</code>\n", t.ID)
	fmt.Fprintf(&b, "<b>User ID:</b> <code>%d</code>\n", t.RequesterChatID)
	fmt.Fprintf(&b, "<b>Created Date:</b> %s\n", formatTime(t.CreatedAt))
	fmt.Fprintf(&b, "<b>Status:</b> <code>%s</code>\n\n", t.Status)
	b.WriteString("<b>--- Conversation Transcript ---</b>\n")

	for _, m := range t.Messages {
		sender := "Staff"
		if m.Role == model.RoleUser {
			sender = "User"
		}
		content := html.EscapeString(m.Text)
		if m.Kind.IsMedia() {
			content = m.Kind.Label()
			if m.Text != "" {
				content += " " + html.EscapeString(m.Text)
			}
		}
		fmt.Fprintf(&b, "<b>%s:</b> %s <i>(%s)</i>\n", sender, content, formatTime(m.Timestamp))
	}
	return b.String()
}

// plainTranscript renders the conversation without markup for summarizers.
func plainTranscript(t *model.Ticket) string {
	var b strings.Builder
	for _, m := range t.Messages {
		content := m.Text
		if m.Kind.IsMedia() {
			content = strings.TrimSpace(m.Kind.Label() + " " + m.Text)
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	return b.String()
}

func renderSearchResults(c *i18n.Catalog, tickets []*model.Ticket) (string, InlineKeyboard) {
	var b strings.Builder
	b.WriteString(c.Get(c.Default(), i18n.SearchResults))

	kb := make(InlineKeyboard, 0, len(tickets))
	for i, t := range tickets {
		fmt.Fprintf(&b, "<b>%d. Ticket ID:</b> <code>%s</code>\n", i+1, t.ID)
		fmt.Fprintf(&b, "<b>User ID:</b> <code>%d</code>\n", t.RequesterChatID)
		fmt.Fprintf(&b, "<b>Status:</b> <code>%s</code>\n", t.Status)
		fmt.Fprintf(&b, "<b>Created:</b> %s\n", formatTime(t.CreatedAt))
		if text, ok := t.FirstText(); ok {
			fmt.Fprintf(&b, "<b>Summary:</b> <code>%s...</code>\n", html.EscapeString(truncateRunes(text, summaryRunes)))
		}
		b.WriteString("\n")

		kb = append(kb, []Button{
			{Text: "Handle Ticket " + t.ID, Data: TicketCallback(ActionHandle, t.ID)},
			{Text: "Delete Ticket " + t.ID, Data: TicketCallback(ActionConfirmDelete, t.ID)},
		})
	}
	return b.String(), kb
}

func listTitle(t ListType) string {
	switch t {
	case ListOpen:
		return "Open"
	case ListClosed:
		return "Closed"
	}
	return "All"
}

// listPage is one page of a ticket list. Page is clamped to the valid range.
type listPage struct {
	Tickets []*model.Ticket
	Page    int
	Total   int
}

func paginate(tickets []*model.Ticket, page, size int) listPage {
	if size <= 0 {
		size = 10
	}
	total := (len(tickets) + size - 1) / size
	if total == 0 {
		return listPage{Page: 1, Total: 0}
	}
	page = max(1, min(page, total))
	start := (page - 1) * size
	end := min(start+size, len(tickets))
	return listPage{Tickets: tickets[start:end], Page: page, Total: total}
}

func renderListPage(c *i18n.Catalog, typ ListType, p listPage) (string, InlineKeyboard) {
	text := c.Format(c.Default(), i18n.TicketList, listTitle(typ), p.Page, p.Total) + "\n\n"

	kb := make(InlineKeyboard, 0, len(p.Tickets)+1)
	for _, t := range p.Tickets {
		kb = append(kb, []Button{{Text: "Handle - " + t.ID, Data: TicketCallback(ActionHandle, t.ID)}})
	}

	var nav []Button
	if p.Page > 1 {
		nav = append(nav, Button{Text: "⬅️ Previous Page", Data: ListCallback(typ, p.Page-1)})
	}
	if p.Page < p.Total {
		nav = append(nav, Button{Text: "➡️ Next Page", Data: ListCallback(typ, p.Page+1)})
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}
	return text, kb
}

func listTypeKeyboard() InlineKeyboard {
	return InlineKeyboard{
		{{Text: "🟢 Open Tickets", Data: ListCallback(ListOpen, 0)}},
		{{Text: "🔴 Closed Tickets", Data: ListCallback(ListClosed, 0)}},
		{{Text: "🔵 All Tickets", Data: ListCallback(ListAll, 0)}},
	}
}

func confirmCloseKeyboard(id string) InlineKeyboard {
	return InlineKeyboard{
		{
			{Text: "✅ Close Ticket", Data: TicketCallback(ActionDoClose, id)},
			{Text: "🗑️ Delete Ticket", Data: TicketCallback(ActionConfirmDelete, id)},
		},
		{
			{Text: "📜 Send Transcript", Data: TicketCallback(ActionTranscript, id)},
			{Text: "❌ Cancel", Data: TicketCallback(ActionCancel, id)},
		},
	}
}

func confirmDeleteKeyboard(id string) InlineKeyboard {
	return InlineKeyboard{
		{
			{Text: "📜 Transcript then Delete", Data: TicketCallback(ActionDeleteWithTx, id)},
			{Text: "❌ Delete Only", Data: TicketCallback(ActionDeleteOnly, id)},
		},
		{{Text: "❌ Cancel", Data: TicketCallback(ActionCancel, id)}},
	}
}

func confirmReopenKeyboard(id string) InlineKeyboard {
	return InlineKeyboard{{
		{Text: "✅ Yes, Reopen Ticket", Data: TicketCallback(ActionDoReopen, id)},
		{Text: "❌ Cancel", Data: TicketCallback(ActionCancel, id)},
	}}
}

// isTicketID reports whether s looks like "TCK-" followed by digits.
func isTicketID(s string) bool {
	rest, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(s)), model.IDPrefix)
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
