package i18n

// Template keys.
const (
	SelectLanguage  = "selectLanguageMessage"
	EnglishButton   = "englishButton"
	AmharicButton   = "amharicButton"
	LanguageSet     = "languageSetMessage"
	Welcome         = "welcomeMessage"
	Menu            = "menuMessage"
	MenuButton      = "menuButton"
	ContactSupport  = "contactSupportButton"
	LanguageButton  = "languageButton"
	ServicesButton  = "servicesButton"
	SocialsButton   = "socialsButton"
	CloseButton     = "closeTicketButton"
	Services        = "servicesMessage"
	Socials         = "socialsMessage"
	TicketCreated   = "ticketCreatedMessage"
	AlreadyHave     = "alreadyHaveTicketMessage"
	CreateFailed    = "failedToCreateTicketMessage"
	ClosedTicket    = "closedTicketMessageUser"
	OutsideTicket   = "messagingOutsideActiveTicket"
	ErrorOccurred   = "errorOccurredMessage"
	UserClosed      = "closeTicketMessage"
	NoActiveTicket  = "noActiveTicketMessage"
	CloseFailed     = "failedToCloseTicketMessage"
	StaffReplied    = "staffRepliedToYourTicketMessage"
	ReopenedUser    = "ticketReopenedUserMessage"
	ClosedByStaff   = "ticketClosedByStaffUserMessage"
	InvalidChoice   = "invalidSelectionMessage"
	Unsupported     = "unsupportedMessageTypeMessage"
	StaffMenu       = "staffMenuMessage"
	UserSentPrefix  = "userSentMessagePrefix"
	NowHandling     = "youAreNowHandlingTicketMessage"
	ReplyByID       = "replyToUserByTicketIdMessage"
	NoLongerHandle  = "youAreNoLongerHandlingTicketMessage"
	NotHandling     = "youAreNotCurrentlyHandlingTicketMessage"
	ReplySent       = "replySentToUserMessage"
	ReplyEmpty      = "staffReplyMessageEmptyMessage"
	NotOpenForReply = "ticketNotOpenForReplyMessage"
	TicketMissing   = "errorCouldNotFindTicketDataMessage"
	UsageDelete     = "usageDeleteTicketMessage"
	SearchPrompt    = "searchPromptMessage"
	NoResults       = "noSearchResultsMessage"
	SearchResults   = "searchResultsMessage"
	StatsMessage    = "ticketStatsMessage"
	SelectType      = "selectTicketTypeMessage"
	NoTickets       = "noTicketsMessage"
	TicketList      = "ticketListMessage"
	DetailsHeader   = "ticketDetailsMessage"
	HistoryHeader   = "messageHistoryMessage"
	NoMessagesYet   = "noMessagesYetMessage"
	AdminUsage      = "adminUsageMessage"
	BroadcastUsage  = "adminBroadcastUsageMessage"
	UnknownAdmin    = "unknownAdminCommandMessage"
	NotAdmin        = "notAdminMessage"
	BroadcastSent   = "broadcastSentMessage"
	StaffClosed     = "ticketClosedStaffMessage"
	StaffReopened   = "ticketReopenedStaffMessage"
	StaffDeleted    = "ticketDeletedStaffMessage"
	StaffDeletedTx  = "ticketDeletedWithTranscriptStaffMessage"
	ConfirmClose    = "confirmCloseOrDeleteMessage"
	ConfirmDelete   = "confirmDeleteMessage"
	ConfirmReopen   = "confirmReopenMessage"
	TranscriptSent  = "transcriptSentMessage"
	ActionFailed    = "actionFailedMessage"
)
