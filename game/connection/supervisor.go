package connection

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/aptracker/game/protocol"
)

const tracerName = "github.com/wricardo/mcp-training/aptracker/game/connection"

// maxLoggedPayload bounds how much of an undecodable frame is logged.
const maxLoggedPayload = 512

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("supervisor is already running")

// Supervisor keeps one connection to an Archipelago server alive. It owns the
// transport, answers RoomInfo with a Connect handshake and forwards every
// other server message to its event outlet.
type Supervisor struct {
	dialer        Dialer
	decoder       *protocol.Decoder
	logger        *zap.Logger
	metrics       *Metrics
	tracer        trace.Tracer
	clientUUID    string
	game          string
	version       protocol.Version
	tags          []string
	itemsHandling uint

	commands chan command
	events   chan Event
	running  atomic.Bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithDialer replaces the default gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Supervisor) {
		s.dialer = d
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithTracer sets the OpenTelemetry tracer used for dial and handshake spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Supervisor) {
		s.tracer = t
	}
}

// WithClientUUID sets the uuid announced in Connect.
func WithClientUUID(id string) Option {
	return func(s *Supervisor) {
		s.clientUUID = id
	}
}

// WithGame sets the game name announced in Connect. Trackers leave it empty.
func WithGame(game string) Option {
	return func(s *Supervisor) {
		s.game = game
	}
}

// WithProtocolVersion sets the version announced in Connect.
func WithProtocolVersion(v protocol.Version) Option {
	return func(s *Supervisor) {
		s.version = v
	}
}

// WithTags sets the tags announced in Connect.
func WithTags(tags ...string) Option {
	return func(s *Supervisor) {
		s.tags = append([]string(nil), tags...)
	}
}

// WithItemsHandling sets the items_handling flags announced in Connect.
func WithItemsHandling(flags uint) Option {
	return func(s *Supervisor) {
		s.itemsHandling = flags
	}
}

// WithDecoder replaces the strict protocol decoder.
func WithDecoder(d *protocol.Decoder) Option {
	return func(s *Supervisor) {
		s.decoder = d
	}
}

// NewSupervisor creates a Supervisor. Call Run to start it.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		dialer:     NewWebsocketDialer(),
		decoder:    protocol.NewDecoder(),
		logger:     zap.NewNop(),
		metrics:    NewMetrics(nil),
		tracer:     otel.Tracer(tracerName),
		clientUUID: uuid.NewString(),
		version:    protocol.DefaultVersion,
		tags:       append([]string(nil), protocol.DefaultTags...),
		commands:   make(chan command, MailboxSize),
		events:     make(chan Event, MailboxSize),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Events returns the outlet. The first event is always WorkerReady.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// frame is one read from the transport.
type frame struct {
	data []byte
	err  error
}

// liveTransport is the Connected state: a transport plus the goroutine
// reading from it.
type liveTransport struct {
	transport Transport
	frames    chan frame
	done      chan struct{}
}

func openTransport(t Transport) *liveTransport {
	lt := &liveTransport{
		transport: t,
		frames:    make(chan frame),
		done:      make(chan struct{}),
	}
	go lt.readLoop()
	return lt
}

// readLoop forwards text frames until the transport fails or is discarded.
func (lt *liveTransport) readLoop() {
	for {
		messageType, data, err := lt.transport.ReadMessage()
		if err != nil {
			select {
			case lt.frames <- frame{err: err}:
			case <-lt.done:
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		select {
		case lt.frames <- frame{data: data}:
		case <-lt.done:
			return
		}
	}
}

// discard closes the transport. Frames still queued by the reader are lost.
func (lt *liveTransport) discard() error {
	close(lt.done)
	return lt.transport.Close()
}

// Run executes the supervisor loop until ctx is cancelled. It emits
// WorkerReady before reading any command, then alternates between dialing
// while disconnected and servicing whichever of the next server frame or the
// next command arrives first while connected. Run may only be called once.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if !s.emit(ctx, WorkerReady{Inlet: &Inlet{commands: s.commands}}) {
		return ctx.Err()
	}

	var (
		params     *Parameters
		generation uint64
		live       *liveTransport
	)
	defer func() {
		if live != nil {
			s.drop(live, reasonShutdown)
		}
	}()

	for {
		if live == nil {
			if params != nil {
				var adopted uint64
				params, adopted = s.latestParameters(params)
				generation += adopted

				t, err := s.connect(ctx, *params)
				if err == nil {
					live = openTransport(t)
					s.metrics.Connected.Set(1)
					s.logger.Info("connected",
						zap.String("address", params.Address()),
						zap.String("slot", params.Slot))
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("failed to connect",
					zap.String("address", params.Address()),
					zap.Error(err))
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case cmd := <-s.commands:
				p := cmd.params
				params = &p
				generation++
			}
			continue
		}

		// Both cases may be ready; select picks one at random so neither
		// source can starve the other.
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f := <-live.frames:
			if reason, ok := s.handleFrame(ctx, live, f, *params, generation); !ok {
				s.drop(live, reason)
				live = nil
			}

		case cmd := <-s.commands:
			p := cmd.params
			params = &p
			generation++
			s.drop(live, reasonSuperseded)
			live = nil
		}
	}
}

// latestParameters adopts any commands already queued so a dial always uses
// the newest parameters. It also returns how many commands it adopted.
func (s *Supervisor) latestParameters(current *Parameters) (*Parameters, uint64) {
	var adopted uint64
	for {
		select {
		case cmd := <-s.commands:
			p := cmd.params
			current = &p
			adopted++
		default:
			return current, adopted
		}
	}
}

// connect dials wss:// first. Only when that fails during TLS negotiation is
// ws:// tried, once.
func (s *Supervisor) connect(ctx context.Context, params Parameters) (Transport, error) {
	ctx, span := s.tracer.Start(ctx, "connection.dial",
		trace.WithAttributes(attribute.String("server.address", params.Address())))
	defer span.End()

	t, err := s.dialer.Dial(ctx, params.URL(SchemeSecure))
	if err == nil {
		s.metrics.Dials.WithLabelValues(SchemeSecure, "ok").Inc()
		span.SetAttributes(attribute.String("url.scheme", SchemeSecure))
		return t, nil
	}
	s.metrics.Dials.WithLabelValues(SchemeSecure, "error").Inc()

	if !IsTLSError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return nil, err
	}

	s.metrics.TLSFallbacks.Inc()
	s.logger.Info("secure dial failed during TLS negotiation, retrying without TLS",
		zap.String("address", params.Address()),
		zap.Error(err))

	t, err = s.dialer.Dial(ctx, params.URL(SchemePlain))
	if err != nil {
		s.metrics.Dials.WithLabelValues(SchemePlain, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return nil, err
	}

	s.metrics.Dials.WithLabelValues(SchemePlain, "ok").Inc()
	span.SetAttributes(attribute.String("url.scheme", SchemePlain))
	return t, nil
}

// handleFrame processes one read. It returns false, with a reason, when the
// transport must be discarded.
func (s *Supervisor) handleFrame(ctx context.Context, live *liveTransport, f frame, params Parameters, generation uint64) (string, bool) {
	if f.err != nil {
		if websocket.IsCloseError(f.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			s.logger.Info("server closed the connection", zap.Error(f.err))
		} else {
			s.logger.Warn("connection lost", zap.Error(f.err))
		}
		return reasonReadError, false
	}

	s.metrics.FramesReceived.Inc()

	messages, err := s.decoder.DecodeServerBatch(f.data)
	if err != nil {
		s.metrics.DecodeErrors.Inc()
		s.logger.Error("failed to decode server batch",
			zap.Error(err),
			zap.Int("size", len(f.data)),
			zap.ByteString("payload", excerpt(f.data)))
		return "", true
	}

	for _, msg := range messages {
		if _, ok := msg.(protocol.RoomInfo); ok {
			if err := s.handshake(ctx, live.transport, params); err != nil {
				s.logger.Error("failed to send handshake", zap.Error(err))
				return reasonSendError, false
			}
			continue
		}

		s.metrics.MessagesForwarded.WithLabelValues(msg.Command()).Inc()
		if !s.emit(ctx, ApplicationMessage{Message: msg, Generation: generation}) {
			return "", true
		}
	}

	return "", true
}

// handshake answers RoomInfo with a single-message Connect batch built from
// the current parameters.
func (s *Supervisor) handshake(ctx context.Context, t Transport, params Parameters) error {
	_, span := s.tracer.Start(ctx, "connection.handshake",
		trace.WithAttributes(attribute.String("ap.slot", params.Slot)))
	defer span.End()

	connect := protocol.Connect{
		Name:          params.Slot,
		Password:      params.Password,
		Game:          s.game,
		UUID:          s.clientUUID,
		Version:       s.version,
		ItemsHandling: s.itemsHandling,
		Tags:          s.tags,
	}

	payload, err := protocol.EncodeClientBatch(connect)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := t.WriteMessage(websocket.TextMessage, payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return err
	}

	s.metrics.HandshakesSent.Inc()
	s.logger.Debug("sent handshake", zap.String("slot", params.Slot))
	return nil
}

// emit delivers an event, waiting while the outlet is full. It returns false
// if ctx ends first.
func (s *Supervisor) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) drop(live *liveTransport, reason string) {
	if err := live.discard(); err != nil {
		s.logger.Debug("error closing transport", zap.Error(err))
	}
	s.metrics.Connected.Set(0)
	s.metrics.Disconnects.WithLabelValues(reason).Inc()
	s.logger.Info("disconnected", zap.String("reason", reason))
}

func excerpt(data []byte) []byte {
	if len(data) <= maxLoggedPayload {
		return data
	}
	return data[:maxLoggedPayload]
}
