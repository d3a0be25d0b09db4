package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/aptracker/game/connection"
	"github.com/wricardo/mcp-training/aptracker/game/protocol"
)

// DefaultHistorySize is the number of entries kept when no size is given.
const DefaultHistorySize = 1000

// Events sent to the Broadcaster
const (
	EventMessage    = "message"
	EventParameters = "parameters"
)

// ErrNotReady is returned by Connect before the supervisor handed over its inlet.
var ErrNotReady = errors.New("supervisor is not ready")

// Service defines the tracker operations exposed to the transport layers
type Service interface {
	Connect(ctx context.Context, params connection.Parameters) error
	Status(ctx context.Context) (*Status, error)
	Messages(ctx context.Context, opts HistoryOptions) (*HistoryResponse, error)
	Counts(ctx context.Context) (map[string]int, error)
}

// Broadcaster receives tracker events, typically to push them to WebSocket
// clients.
type Broadcaster interface {
	Broadcast(event string, data interface{})
}

var _ Service = (*Tracker)(nil)

// Tracker consumes the supervisor's events and keeps what it saw.
type Tracker struct {
	mu sync.RWMutex

	inlet      *connection.Inlet
	initial    *connection.Parameters
	params     *connection.Parameters
	generation uint64 // Connect commands accepted by the inlet

	history     []Entry
	historySize int
	received    uint64
	counts      map[string]int
	lastAt      time.Time

	slot    *SlotInfo
	checked map[int64]struct{}
	missing map[int64]struct{}
	refused []string

	broadcaster Broadcaster
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithHistorySize bounds the number of recorded entries.
func WithHistorySize(n int) Option {
	return func(t *Tracker) {
		t.historySize = n
	}
}

// WithBroadcaster sets where recorded entries are published.
func WithBroadcaster(b Broadcaster) Option {
	return func(t *Tracker) {
		t.broadcaster = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithInitialParameters submits params as soon as the supervisor is ready.
func WithInitialParameters(params connection.Parameters) Option {
	return func(t *Tracker) {
		t.initial = &params
	}
}

// NewTracker creates a Tracker. It does nothing until Consume runs.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		historySize: DefaultHistorySize,
		counts:      make(map[string]int),
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.historySize <= 0 {
		t.historySize = DefaultHistorySize
	}
	return t
}

// Consume processes supervisor events until ctx is done or events is closed.
func (t *Tracker) Consume(ctx context.Context, events <-chan connection.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.handleEvent(ctx, ev)
		}
	}
}

func (t *Tracker) handleEvent(ctx context.Context, ev connection.Event) {
	switch ev := ev.(type) {
	case connection.WorkerReady:
		t.mu.Lock()
		t.inlet = ev.Inlet
		initial := t.initial
		t.mu.Unlock()

		t.logger.Info("supervisor ready")
		if initial != nil {
			if err := t.Connect(ctx, *initial); err != nil {
				t.logger.Error("failed to submit startup parameters", zap.Error(err))
			}
		}

	case connection.ApplicationMessage:
		entry := t.record(ev.Message, ev.Generation)
		if t.broadcaster != nil {
			t.broadcaster.Broadcast(EventMessage, entry)
		}
	}
}

// record stores msg and updates the slot facts it carries. Messages from a
// connection older than the last accepted Connect are kept in the history but
// do not touch the slot facts.
func (t *Tracker) record(msg protocol.ServerMessage, generation uint64) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.received++
	t.lastAt = t.now()
	cmd := msg.Command()
	t.counts[cmd]++

	entry := Entry{
		Seq:        t.received,
		Cmd:        cmd,
		ReceivedAt: t.lastAt,
		Message:    msg,
	}

	if pj, ok := msg.(protocol.PrintJSON); ok {
		entry.Text = pj.Text()
		t.logger.Debug("server message", zap.String("text", entry.Text))
	}

	if generation < t.generation {
		t.logger.Debug("message from superseded connection",
			zap.String("cmd", cmd),
			zap.Uint64("generation", generation))
	} else {
		t.applyFacts(msg)
	}

	if len(t.history) >= t.historySize {
		n := copy(t.history, t.history[len(t.history)-t.historySize+1:])
		t.history = t.history[:n]
	}
	t.history = append(t.history, entry)

	return entry
}

func (t *Tracker) applyFacts(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.Connected:
		t.applyConnected(m)
	case protocol.ConnectionRefused:
		t.slot = nil
		t.refused = append([]string(nil), m.Errors...)
		t.logger.Warn("server refused connection", zap.Strings("errors", m.Errors))
	case protocol.RoomUpdate:
		t.applyRoomUpdate(m)
	case protocol.ReceivedItems:
		if t.slot != nil && m.Index+len(m.Items) > t.slot.ItemsReceived {
			t.slot.ItemsReceived = m.Index + len(m.Items)
		}
	}
}

func (t *Tracker) applyConnected(m protocol.Connected) {
	t.refused = nil
	t.checked = make(map[int64]struct{}, len(m.CheckedLocations))
	for _, loc := range m.CheckedLocations {
		t.checked[loc] = struct{}{}
	}
	t.missing = make(map[int64]struct{}, len(m.MissingLocations))
	for _, loc := range m.MissingLocations {
		t.missing[loc] = struct{}{}
	}

	slot := &SlotInfo{
		Team:        m.Team,
		Slot:        m.Slot,
		Players:     len(m.Players),
		HintPoints:  m.HintPoints,
		ConnectedAt: t.lastAt,
	}
	for _, p := range m.Players {
		if p.Team == m.Team && p.Slot == m.Slot {
			slot.Name = p.Name
			break
		}
	}
	t.slot = slot
	t.updateLocationCounts()

	t.logger.Info("slot connected",
		zap.Uint("team", m.Team),
		zap.Uint("slot", m.Slot),
		zap.String("name", slot.Name))
}

func (t *Tracker) applyRoomUpdate(m protocol.RoomUpdate) {
	if t.slot == nil {
		return
	}
	if m.HintPoints != nil {
		t.slot.HintPoints = *m.HintPoints
	}
	for _, loc := range m.CheckedLocations {
		t.checked[loc] = struct{}{}
		delete(t.missing, loc)
	}
	t.updateLocationCounts()
}

func (t *Tracker) updateLocationCounts() {
	t.slot.CheckedLocations = len(t.checked)
	t.slot.MissingLocations = len(t.missing)
}

// Connect validates params and queues them on the supervisor's inlet. Slot
// facts from the previous connection are cleared.
func (t *Tracker) Connect(ctx context.Context, params connection.Parameters) error {
	if err := params.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.inlet == nil {
		t.mu.Unlock()
		return ErrNotReady
	}
	if err := t.inlet.Connect(params); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to queue connection parameters: %w", err)
	}

	t.params = &params
	t.generation++
	t.slot = nil
	t.refused = nil
	t.checked = nil
	t.missing = nil
	t.mu.Unlock()

	redacted := params.Redacted()
	t.logger.Info("connection requested",
		zap.String("address", params.Address()),
		zap.String("slot", params.Slot))
	if t.broadcaster != nil {
		t.broadcaster.Broadcast(EventParameters, redacted)
	}
	return nil
}

// Status returns a snapshot of the tracker.
func (t *Tracker) Status(ctx context.Context) (*Status, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := &Status{
		Ready:            t.inlet != nil,
		MessagesReceived: t.received,
		Counts:           t.copyCounts(),
	}
	if t.params != nil {
		redacted := t.params.Redacted()
		status.Parameters = &redacted
	}
	if t.slot != nil {
		slot := *t.slot
		status.Slot = &slot
	}
	if len(t.refused) > 0 {
		status.RefusedErrors = append([]string(nil), t.refused...)
	}
	if !t.lastAt.IsZero() {
		last := t.lastAt
		status.LastMessageAt = &last
	}

	return status, nil
}

// Counts returns the number of messages received per command.
func (t *Tracker) Counts(ctx context.Context) (map[string]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copyCounts(), nil
}

func (t *Tracker) copyCounts() map[string]int {
	counts := make(map[string]int, len(t.counts))
	for cmd, n := range t.counts {
		counts[cmd] = n
	}
	return counts
}

// Messages returns paginated message history
func (t *Tracker) Messages(ctx context.Context, opts HistoryOptions) (*HistoryResponse, error) {
	t.mu.RLock()
	history := t.history
	if opts.Cmd != "" {
		history = make([]Entry, 0)
		for _, e := range t.history {
			if e.Cmd == opts.Cmd {
				history = append(history, e)
			}
		}
	}
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	// Calculate pagination
	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	messages := []Entry{}
	if opts.Order == "desc" {
		// Most recent first
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			messages = append(messages, history[i])
		}
	} else if start < total {
		messages = append(messages, history[start:end]...)
	}
	t.mu.RUnlock()

	return &HistoryResponse{
		Messages:      messages,
		TotalMessages: total,
		Page:          opts.Page,
		PageSize:      opts.Limit,
		TotalPages:    totalPages,
		HasNext:       opts.Page < totalPages,
		HasPrevious:   opts.Page > 1,
	}, nil
}
