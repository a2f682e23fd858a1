// Package service implements the ticket lifecycle shared by the user and
// staff bots.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yodabot/support-desk/internal/cache"
	"github.com/yodabot/support-desk/internal/model"
	"github.com/yodabot/support-desk/internal/store"
	"github.com/yodabot/support-desk/pkg/logger"
	"github.com/yodabot/support-desk/pkg/metrics"
)

// Store paths.
const (
	CounterPath     = "ticketCounter"
	OpenPartition   = "openTickets"
	ClosedPartition = "closedTickets"
	UsersPath       = "users"
)

const (
	messagesField   = "Messages"
	statusField     = "Status"
	languageField   = "Language"
	defaultAttempts = 3
	defaultBackoff  = 100 * time.Millisecond
	tracerName      = "github.com/yodabot/support-desk/internal/service"
)

// EventPublisher receives lifecycle events.
type EventPublisher interface {
	PublishTicketEvent(ctx context.Context, event *model.TicketEvent) (uint64, error)
}

// NopPublisher drops every event.
type NopPublisher struct{}

// PublishTicketEvent implements EventPublisher.
func (NopPublisher) PublishTicketEvent(context.Context, *model.TicketEvent) (uint64, error) {
	return 0, nil
}

// Options tunes a TicketService. A negative CounterBackoff disables the
// wait between counter attempts.
type Options struct {
	CounterAttempts int
	CounterBackoff  time.Duration
	Publisher       EventPublisher
	Now             func() time.Time
}

// TicketService is the only writer of ticket records and the ticket counter.
type TicketService struct {
	store     store.Store
	index     *ActiveIndex
	tracker   *AssignmentTracker
	languages *cache.Cache[int64, string]
	publisher EventPublisher
	attempts  int
	backoff   time.Duration
	now       func() time.Time
	tracer    trace.Tracer
	logger    *logger.Logger
}

// NewTicketService creates a service over st. Call Init before serving.
func NewTicketService(st store.Store, log *logger.Logger, opts Options) *TicketService {
	if opts.CounterAttempts <= 0 {
		opts.CounterAttempts = defaultAttempts
	}
	if opts.CounterBackoff == 0 {
		opts.CounterBackoff = defaultBackoff
	}
	if opts.Publisher == nil {
		opts.Publisher = NopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	index := NewActiveIndex()
	return &TicketService{
		store:     st,
		index:     index,
		tracker:   NewAssignmentTracker(index),
		languages: cache.New[int64, string]("user_language", 0),
		publisher: opts.Publisher,
		attempts:  opts.CounterAttempts,
		backoff:   opts.CounterBackoff,
		now:       opts.Now,
		tracer:    otel.Tracer(tracerName),
		logger:    log,
	}
}

// Index returns the active ticket index.
func (s *TicketService) Index() *ActiveIndex {
	return s.index
}

// Tracker returns the staff assignment tracker.
func (s *TicketService) Tracker() *AssignmentTracker {
	return s.tracker
}

// ticketRecord is the stored shape of a ticket. Messages is either a key
// ordered object (current writes) or an array (older records).
type ticketRecord struct {
	TicketID    string          `json:"TicketId"`
	Status      model.Status    `json:"Status"`
	CreatedDate time.Time       `json:"CreatedDate"`
	ChatID      int64           `json:"ChatId"`
	Messages    json.RawMessage `json:"Messages,omitempty"`
}

func (r *ticketRecord) ticket() (*model.Ticket, error) {
	msgs, err := decodeMessages(r.Messages)
	if err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", r.TicketID, err)
	}
	return &model.Ticket{
		ID:              r.TicketID,
		Status:          r.Status,
		CreatedAt:       r.CreatedDate,
		RequesterChatID: r.ChatID,
		Messages:        msgs,
	}, nil
}

func decodeMessages(raw json.RawMessage) ([]model.ChatMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var list []*model.ChatMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		out := make([]model.ChatMessage, 0, len(list))
		for _, m := range list {
			if m != nil {
				out = append(out, *m)
			}
		}
		return out, nil
	}

	var byKey map[string]model.ChatMessage
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return messageKeyLess(keys[i], keys[j]) })

	out := make([]model.ChatMessage, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out, nil
}

// messageKeyLess orders array-index keys numerically ahead of time ordered
// UUIDv7 keys.
func messageKeyLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

func ticketPath(partition, ticketID string) string {
	return store.Join(partition, ticketID)
}

func (s *TicketService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "TicketService."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !isOutcome(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Init rebuilds the active ticket index from the open partition. It must
// complete before either bot starts receiving updates.
func (s *TicketService) Init(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "Init")
	defer func() { endSpan(span, err) }()

	open, err := s.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("rebuild active index: %w", err)
	}

	byChat := make(map[int64]string, len(open))
	for _, t := range open {
		byChat[t.RequesterChatID] = t.ID
	}
	s.index.Replace(byChat)

	s.logger.Info("active ticket index rebuilt", zap.Int("open_tickets", len(open)), zap.Int("requesters", len(byChat)))
	return nil
}

// NextTicketNumber allocates the next counter value. The store has no atomic
// increment, so each attempt writes current+1 and reads it back; a mismatch
// retries after attempt*backoff. Once the attempts are used up it returns
// ErrCounterExhausted instead of a value that could collide.
func (s *TicketService) NextTicketNumber(ctx context.Context) (n int, err error) {
	ctx, span := s.startSpan(ctx, "NextTicketNumber")
	defer func() { endSpan(span, err) }()

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		next, err := s.tryIncrement(ctx)
		if err == nil {
			span.SetAttributes(attribute.Int("ticket.number", next), attribute.Int("attempts", attempt))
			return next, nil
		}
		lastErr = err

		s.logger.Warn("ticket counter confirmation failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == s.attempts {
			break
		}
		metrics.CounterRetries.Inc()
		if err := sleep(ctx, s.backoff*time.Duration(attempt)); err != nil {
			return 0, err
		}
	}

	metrics.CounterExhausted.Inc()
	return 0, fmt.Errorf("%w after %d attempts: %v", ErrCounterExhausted, s.attempts, lastErr)
}

func (s *TicketService) tryIncrement(ctx context.Context) (int, error) {
	current, err := s.readCounter(ctx)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := s.store.Put(ctx, CounterPath, next); err != nil {
		return 0, fmt.Errorf("write counter: %w", err)
	}
	confirmed, err := s.readCounter(ctx)
	if err != nil {
		return 0, err
	}
	if confirmed != next {
		return 0, fmt.Errorf("counter moved: wrote %d, read back %d", next, confirmed)
	}
	return next, nil
}

func (s *TicketService) readCounter(ctx context.Context) (int, error) {
	raw, err := s.store.Get(ctx, CounterPath)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode counter: %w", err)
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CreateTicket opens a ticket for chatID. If the chat already has an open
// ticket its id is returned together with ErrAlreadyOpen and nothing is
// written. The duplicate check and the write are not atomic.
func (s *TicketService) CreateTicket(ctx context.Context, chatID int64, initialText string) (id string, err error) {
	ctx, span := s.startSpan(ctx, "CreateTicket", attribute.Int64("chat.id", chatID))
	defer func() { endSpan(span, err) }()

	all, err := s.ListAll(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range all {
		if t.RequesterChatID == chatID && t.IsOpen() {
			s.index.Set(chatID, t.ID)
			return t.ID, ErrAlreadyOpen
		}
	}

	id, err = s.allocateTicketID(ctx)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("ticket.id", id))

	rec := ticketRecord{
		TicketID:    id,
		Status:      model.StatusOpen,
		CreatedDate: s.now().UTC(),
		ChatID:      chatID,
	}

	var first *model.ChatMessage
	if initialText != "" {
		m := model.NewTextMessage(strconv.FormatInt(chatID, 10), model.RoleUser, initialText)
		m.Timestamp = rec.CreatedDate
		key, err := messageKey()
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(map[string]model.ChatMessage{key: m})
		if err != nil {
			return "", fmt.Errorf("encode initial message: %w", err)
		}
		rec.Messages = raw
		first = &m
	}

	if err := s.store.Put(ctx, ticketPath(OpenPartition, id), rec); err != nil {
		return "", fmt.Errorf("persist ticket %s: %w", id, err)
	}

	// A racing create that confirmed the same number may have overwritten
	// the record between the existence check and the write.
	stored, err := s.getRecord(ctx, OpenPartition, id)
	if err != nil {
		return "", fmt.Errorf("confirm ticket %s: %w", id, err)
	}
	if stored.ChatID != chatID {
		s.logger.WithTicket(id, chatID).Warn("ticket id taken by another chat",
			zap.Int64("owner_chat_id", stored.ChatID))
		return "", fmt.Errorf("%w: %s belongs to chat %d", ErrTicketIDTaken, id, stored.ChatID)
	}
	s.index.Set(chatID, id)

	metrics.TicketTransitions.WithLabelValues("created").Inc()
	s.logger.WithTicket(id, chatID).Info("ticket created")
	s.publish(ctx, model.EventCreated, id, chatID, first)
	return id, nil
}

// allocateTicketID returns a confirmed ticket number whose id is not already
// stored in either partition. Taken ids are skipped within the counter
// attempt budget.
func (s *TicketService) allocateTicketID(ctx context.Context) (string, error) {
	for attempt := 1; ; attempt++ {
		n, err := s.NextTicketNumber(ctx)
		if err != nil {
			return "", err
		}
		id := model.FormatTicketID(n)

		taken, err := s.ticketExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}

		s.logger.Warn("ticket id already stored, allocating again",
			zap.String("ticket_id", id), zap.Int("attempt", attempt))
		if attempt >= s.attempts {
			metrics.CounterExhausted.Inc()
			return "", fmt.Errorf("%w: %s already stored after %d attempts", ErrCounterExhausted, id, attempt)
		}
	}
}

// ticketExists reports whether anything is stored under id in either
// partition.
func (s *TicketService) ticketExists(ctx context.Context, id string) (bool, error) {
	for _, partition := range []string{OpenPartition, ClosedPartition} {
		_, err := s.store.Get(ctx, ticketPath(partition, id))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("check %s/%s: %w", partition, id, err)
		}
		return true, nil
	}
	return false, nil
}

func messageKey() (string, error) {
	key, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate message key: %w", err)
	}
	return key.String(), nil
}

// AppendMessage adds msg to an open ticket. Only the new message is written,
// under its own time ordered key, so concurrent appends never overwrite each
// other. A closed ticket yields ErrTicketClosed and an unknown one
// ErrNotFound; neither writes anything.
func (s *TicketService) AppendMessage(ctx context.Context, ticketID string, msg model.ChatMessage) (err error) {
	ctx, span := s.startSpan(ctx, "AppendMessage",
		attribute.String("ticket.id", ticketID),
		attribute.String("message.kind", string(msg.Kind)),
	)
	defer func() { endSpan(span, err) }()

	if err := s.requireOpen(ctx, ticketID); err != nil {
		return err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	key, err := messageKey()
	if err != nil {
		return err
	}
	path := store.Join(OpenPartition, ticketID, messagesField, key)
	if err := s.store.Put(ctx, path, msg); err != nil {
		return fmt.Errorf("append to %s: %w", ticketID, err)
	}

	// A close that raced this write would leave a bare message node in the
	// open partition.
	if err := s.requireOpen(ctx, ticketID); err != nil {
		if derr := s.store.Delete(ctx, path); derr != nil {
			s.logger.Error("failed to remove orphaned message", zap.String("path", path), zap.Error(derr))
		}
		return err
	}

	metrics.MessagesTotal.WithLabelValues(string(msg.Role), string(msg.Kind)).Inc()
	s.publish(ctx, model.EventMessage, ticketID, 0, &msg)
	return nil
}

func (s *TicketService) requireOpen(ctx context.Context, ticketID string) error {
	_, err := s.store.Get(ctx, store.Join(OpenPartition, ticketID, statusField))
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup %s: %w", ticketID, err)
	}

	_, err = s.store.Get(ctx, store.Join(ClosedPartition, ticketID, statusField))
	switch {
	case err == nil:
		return ErrTicketClosed
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("lookup %s: %w", ticketID, err)
	}
}

// GetTicket returns the ticket from the open partition, else the closed one.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (t *model.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "GetTicket", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()

	for _, partition := range []string{OpenPartition, ClosedPartition} {
		rec, err := s.getRecord(ctx, partition, ticketID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec.ticket()
	}
	return nil, ErrNotFound
}

// MessageHistory returns the messages of a ticket in append order.
func (s *TicketService) MessageHistory(ctx context.Context, ticketID string) ([]model.ChatMessage, error) {
	t, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return t.Messages, nil
}

// IsTicketOpen reports whether ticketID is in the open partition.
func (s *TicketService) IsTicketOpen(ctx context.Context, ticketID string) (bool, error) {
	err := s.requireOpen(ctx, ticketID)
	switch {
	case err == nil:
		return true, nil
	case isOutcome(err):
		return false, nil
	default:
		return false, err
	}
}

func (s *TicketService) getRecord(ctx context.Context, partition, ticketID string) (*ticketRecord, error) {
	raw, err := s.store.Get(ctx, ticketPath(partition, ticketID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", partition, ticketID, err)
	}

	var rec ticketRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", partition, ticketID, err)
	}
	if rec.TicketID == "" {
		// Bare message node without a record.
		return nil, ErrNotFound
	}
	return &rec, nil
}

// CloseTicket moves an open ticket to the closed partition and returns it.
// A ticket that is not open yields ErrNotFound and nothing changes.
func (s *TicketService) CloseTicket(ctx context.Context, ticketID string) (t *model.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "CloseTicket", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()

	t, err = s.move(ctx, ticketID, OpenPartition, ClosedPartition, model.StatusClosed)
	if err != nil {
		return nil, err
	}

	s.index.DeleteIf(t.RequesterChatID, t.ID)
	released := s.tracker.ReleaseTicket(t.ID)

	metrics.TicketTransitions.WithLabelValues("closed").Inc()
	s.logger.WithTicket(t.ID, t.RequesterChatID).Info("ticket closed", zap.Int64s("released_staff", released))
	s.publish(ctx, model.EventClosed, t.ID, t.RequesterChatID, nil)
	return t, nil
}

// CloseTicketForChat closes the active ticket of a requester.
func (s *TicketService) CloseTicketForChat(ctx context.Context, chatID int64) (*model.Ticket, error) {
	id, ok, err := s.ActiveTicketFor(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.CloseTicket(ctx, id)
}

// ReopenTicket moves a closed ticket back to the open partition and returns
// it. A ticket that is not closed yields ErrNotFound.
func (s *TicketService) ReopenTicket(ctx context.Context, ticketID string) (t *model.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "ReopenTicket", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()

	t, err = s.move(ctx, ticketID, ClosedPartition, OpenPartition, model.StatusOpen)
	if err != nil {
		return nil, err
	}

	s.tracker.ReleaseTicket(t.ID)
	s.index.Set(t.RequesterChatID, t.ID)

	metrics.TicketTransitions.WithLabelValues("reopened").Inc()
	s.logger.WithTicket(t.ID, t.RequesterChatID).Info("ticket reopened")
	s.publish(ctx, model.EventReopened, t.ID, t.RequesterChatID, nil)
	return t, nil
}

// move writes the record to the target partition before deleting the source
// copy. A failure between the two steps leaves the ticket in both
// partitions; the next move or delete converges it.
func (s *TicketService) move(ctx context.Context, ticketID, from, to string, status model.Status) (*model.Ticket, error) {
	rec, err := s.getRecord(ctx, from, ticketID)
	if err != nil {
		return nil, err
	}
	rec.Status = status

	if err := s.store.Put(ctx, ticketPath(to, ticketID), rec); err != nil {
		return nil, fmt.Errorf("write %s/%s: %w", to, ticketID, err)
	}
	if err := s.store.Delete(ctx, ticketPath(from, ticketID)); err != nil {
		return nil, fmt.Errorf("delete %s/%s: %w", from, ticketID, err)
	}
	return rec.ticket()
}

// DeleteTicket removes a ticket from whichever partition holds it and
// returns the removed record. There is no tombstone.
func (s *TicketService) DeleteTicket(ctx context.Context, ticketID string) (t *model.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "DeleteTicket", attribute.String("ticket.id", ticketID))
	defer func() { endSpan(span, err) }()

	for _, partition := range []string{OpenPartition, ClosedPartition} {
		rec, err := s.getRecord(ctx, partition, ticketID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := s.store.Delete(ctx, ticketPath(partition, ticketID)); err != nil {
			return nil, fmt.Errorf("delete %s/%s: %w", partition, ticketID, err)
		}
		if partition == OpenPartition {
			s.index.DeleteIf(rec.ChatID, rec.TicketID)
		}
		s.tracker.ReleaseTicket(ticketID)

		metrics.TicketTransitions.WithLabelValues("deleted").Inc()
		s.logger.WithTicket(rec.TicketID, rec.ChatID).Info("ticket deleted", zap.String("partition", partition))
		s.publish(ctx, model.EventDeleted, rec.TicketID, rec.ChatID, nil)
		return rec.ticket()
	}
	return nil, ErrNotFound
}

// ListOpen returns every open ticket ordered by id.
func (s *TicketService) ListOpen(ctx context.Context) ([]*model.Ticket, error) {
	return s.list(ctx, OpenPartition)
}

// ListClosed returns every closed ticket ordered by id.
func (s *TicketService) ListClosed(ctx context.Context) ([]*model.Ticket, error) {
	return s.list(ctx, ClosedPartition)
}

// ListAll returns open tickets followed by closed ones.
func (s *TicketService) ListAll(ctx context.Context) ([]*model.Ticket, error) {
	open, err := s.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	closed, err := s.ListClosed(ctx)
	if err != nil {
		return nil, err
	}
	return append(open, closed...), nil
}

func (s *TicketService) list(ctx context.Context, partition string) (out []*model.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "List", attribute.String("partition", partition))
	defer func() { endSpan(span, err) }()

	entries, err := s.store.GetAll(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", partition, err)
	}

	out = make([]*model.Ticket, 0, len(entries))
	for _, e := range entries {
		var rec ticketRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			s.logger.Error("skipping undecodable ticket record",
				zap.String("partition", partition),
				zap.String("key", e.Key),
				zap.Error(err),
			)
			continue
		}
		if rec.TicketID == "" {
			continue
		}
		t, err := rec.ticket()
		if err != nil {
			s.logger.Error("skipping ticket with bad history", zap.String("key", e.Key), zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	span.SetAttributes(attribute.Int("tickets", len(out)))
	return out, nil
}

// SearchTickets returns tickets whose id, or any text message, contains
// keyword ignoring case.
func (s *TicketService) SearchTickets(ctx context.Context, keyword string) ([]*model.Ticket, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(keyword)
	var out []*model.Ticket
	for _, t := range all {
		if matches(t, needle) {
			out = append(out, t)
		}
	}
	return out, nil
}

func matches(t *model.Ticket, needle string) bool {
	if strings.Contains(strings.ToLower(t.ID), needle) {
		return true
	}
	for _, m := range t.Messages {
		if m.Kind == model.KindText && strings.Contains(strings.ToLower(m.Text), needle) {
			return true
		}
	}
	return false
}

// ActiveTicketFor returns the open ticket of a requester. The index is
// consulted first; on a miss the open partition is scanned and the index
// repaired.
func (s *TicketService) ActiveTicketFor(ctx context.Context, chatID int64) (string, bool, error) {
	if id, ok := s.index.Get(chatID); ok {
		return id, true, nil
	}

	open, err := s.ListOpen(ctx)
	if err != nil {
		return "", false, err
	}
	for _, t := range open {
		if t.RequesterChatID == chatID {
			s.index.Set(chatID, t.ID)
			return t.ID, true, nil
		}
	}
	return "", false, nil
}

// Stats counts tickets per partition and tickets currently being handled.
func (s *TicketService) Stats(ctx context.Context) (model.Stats, error) {
	open, err := s.ListOpen(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	closed, err := s.ListClosed(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	return model.Stats{
		Open:    len(open),
		Closed:  len(closed),
		Total:   len(open) + len(closed),
		Handled: len(s.tracker.HandledTickets()),
	}, nil
}

// SetUserLanguage stores the language preference and refreshes the cache.
func (s *TicketService) SetUserLanguage(ctx context.Context, userID int64, code string) error {
	path := store.Join(UsersPath, strconv.FormatInt(userID, 10), languageField)
	if err := s.store.Put(ctx, path, code); err != nil {
		return fmt.Errorf("set language for %d: %w", userID, err)
	}
	s.languages.Set(userID, code)
	return nil
}

// GetUserData returns the stored user record. Language preferences are
// served from a cache that is filled on first read and never expires.
func (s *TicketService) GetUserData(ctx context.Context, userID int64) (*model.UserData, bool, error) {
	if code, ok := s.languages.Get(userID); ok {
		return &model.UserData{Language: code}, true, nil
	}

	raw, err := s.store.Get(ctx, store.Join(UsersPath, strconv.FormatInt(userID, 10)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get user %d: %w", userID, err)
	}

	var data model.UserData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false, fmt.Errorf("decode user %d: %w", userID, err)
	}
	if data.Language != "" {
		s.languages.Set(userID, data.Language)
	}
	return &data, true, nil
}

func (s *TicketService) publish(ctx context.Context, typ model.EventType, ticketID string, chatID int64, msg *model.ChatMessage) {
	event := &model.TicketEvent{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		ChatID:    chatID,
		Type:      typ,
		CreatedAt: s.now().UTC(),
	}
	if msg != nil {
		event.Role = msg.Role
		event.Kind = msg.Kind
	}

	status := "ok"
	if _, err := s.publisher.PublishTicketEvent(ctx, event); err != nil {
		status = "error"
		s.logger.Warn("failed to publish ticket event",
			zap.String("ticket_id", ticketID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
	}
	metrics.EventsPublished.WithLabelValues(string(typ), status).Inc()
}
