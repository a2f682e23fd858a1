package bot

import (
	"strconv"
	"strings"
)

// Action is the transition selected by an inline button.
type Action string

// Callback data keeps the wire strings of the existing keyboards: a bare
// action, or "<action>-<ticket id>".
const (
	ActionConsultStaff  Action = "consult_staff"
	ActionCheckServices Action = "check_services"
	ActionSocials       Action = "socials"
	ActionCloseTicket   Action = "close_ticket"
	ActionSetLanguage   Action = "set_language"
	ActionViewTickets   Action = "view_tickets"
	ActionSearchTickets Action = "search_tickets"
	ActionViewType      Action = "view_tickets_type"
	ActionHandle        Action = "handle_ticket_by_id"
	ActionReply         Action = "reply_to_user_by_id"
	ActionSwitch        Action = "staff_switch_ticket"
	ActionConfirmClose  Action = "staff_confirm_close_ticket"
	ActionDoClose       Action = "staff_do_close_ticket"
	ActionCloseNow      Action = "staff_close_ticket"
	ActionConfirmDelete Action = "staff_confirm_delete_ticket"
	ActionDeleteWithTx  Action = "staff_do_delete_with_transcript"
	ActionDeleteOnly    Action = "staff_delete_only"
	ActionCancel        Action = "staff_cancel_close_ticket"
	ActionTranscript    Action = "staff_get_transcript"
	ActionConfirmReopen Action = "staff_reopen_ticket"
	ActionDoReopen      Action = "staff_do_reopen_ticket"
)

const (
	languageActionPrefix = "set_language_"
	pageSeparator        = "-page-"
)

var bareActions = map[Action]bool{
	ActionConsultStaff:  true,
	ActionCheckServices: true,
	ActionSocials:       true,
	ActionCloseTicket:   true,
	ActionViewTickets:   true,
	ActionSearchTickets: true,
}

var targetActions = []Action{
	ActionViewType,
	ActionHandle,
	ActionReply,
	ActionSwitch,
	ActionConfirmClose,
	ActionDoClose,
	ActionCloseNow,
	ActionConfirmDelete,
	ActionDeleteWithTx,
	ActionDeleteOnly,
	ActionCancel,
	ActionTranscript,
	ActionConfirmReopen,
	ActionDoReopen,
}

// ListType selects a ticket partition in the staff list view.
type ListType string

const (
	ListOpen   ListType = "open"
	ListClosed ListType = "closed"
	ListAll    ListType = "all"
)

func (t ListType) valid() bool {
	return t == ListOpen || t == ListClosed || t == ListAll
}

// CallbackData is a decoded inline button payload.
type CallbackData struct {
	Action   Action
	TicketID string
	Language string
	List     ListType
	Page     int
}

// ParseCallback decodes callback data. Unknown data yields ok=false.
func ParseCallback(data string) (CallbackData, bool) {
	if bareActions[Action(data)] {
		return CallbackData{Action: Action(data)}, true
	}
	if lang, ok := strings.CutPrefix(data, languageActionPrefix); ok && lang != "" {
		return CallbackData{Action: ActionSetLanguage, Language: lang}, true
	}

	for _, a := range targetActions {
		arg, ok := strings.CutPrefix(data, string(a)+"-")
		if !ok || arg == "" {
			continue
		}
		if a != ActionViewType {
			return CallbackData{Action: a, TicketID: arg}, true
		}

		list, pageStr, hasPage := strings.Cut(arg, pageSeparator)
		cd := CallbackData{Action: a, List: ListType(list), Page: 1}
		if !cd.List.valid() {
			return CallbackData{}, false
		}
		if hasPage {
			if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
				cd.Page = n
			}
		}
		return cd, true
	}
	return CallbackData{}, false
}

// Encode renders the callback data string.
func (c CallbackData) Encode() string {
	switch {
	case c.Action == ActionSetLanguage:
		return languageActionPrefix + c.Language
	case c.Action == ActionViewType:
		s := string(ActionViewType) + "-" + string(c.List)
		if c.Page > 0 {
			s += pageSeparator + strconv.Itoa(c.Page)
		}
		return s
	case c.TicketID != "":
		return string(c.Action) + "-" + c.TicketID
	}
	return string(c.Action)
}

// TicketCallback encodes an action targeting a ticket.
func TicketCallback(a Action, ticketID string) string {
	return CallbackData{Action: a, TicketID: ticketID}.Encode()
}

// ListCallback encodes a list page selection. Page 0 omits the page suffix.
func ListCallback(t ListType, page int) string {
	return CallbackData{Action: ActionViewType, List: t, Page: page}.Encode()
}

// LanguageCallback encodes a language choice.
func LanguageCallback(code string) string {
	return CallbackData{Action: ActionSetLanguage, Language: code}.Encode()
}
