// Package engine drives one external chess engine process over a
// line-oriented text protocol: lifecycle state machine, heartbeat
// liveness checks, deferred outbound writes and option handling.
package engine

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the driver-facing lifecycle state of a session.
type State int

const (
	NotStarted State = iota
	Starting
	Idle
	Observing
	Thinking
	FinishingGame
	Disconnected
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Starting:
		return "starting"
	case Idle:
		return "idle"
	case Observing:
		return "observing"
	case Thinking:
		return "thinking"
	case FinishingGame:
		return "finishing_game"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// EventKind tags the inbound events a session consumes.
type EventKind int

const (
	EventLine EventKind = iota
	EventStreamClosed
	EventHeartbeatTimeout
)

// Event is one tagged inbound event. Seq carries the heartbeat
// generation for timeout events so a timer that fired during
// cancellation is ignored.
type Event struct {
	Kind EventKind
	Line string
	Seq  uint64
}

// ForfeitCause classifies game-level failures attributed to a session.
type ForfeitCause string

const CauseStalledConnection ForfeitCause = "stalled connection"

type Forfeit struct {
	SessionID int
	Name      string
	Cause     ForfeitCause
}

// Callbacks are the hooks of the external game-player collaborator. All
// of them are invoked from the session's own dispatch context.
type Callbacks struct {
	Ready          func()
	TurnStart      func()
	GameEnded      func(result string)
	MovePlayed     func(text string)
	OptionDeclared func(o *Option)
	Forfeit        func(f Forfeit)
}

// IDSource hands out process-wide monotonic session ids. The driver owns
// one source and injects it at construction; ids are diagnostic only and
// never reused.
type IDSource struct {
	next atomic.Int64
}

func NewIDSource() *IDSource { return &IDSource{} }

func (g *IDSource) Next() int { return int(g.next.Add(1)) }

const DefaultHeartbeatTimeout = 10 * time.Second

// Session binds one external engine process. It owns the byte stream
// exclusively and confines every state mutation to its own dispatch
// context: the Run loop in production, or direct calls from a single
// test goroutine. No method is safe to call concurrently with Run except
// Post.
type Session struct {
	id     int
	name   string
	stream io.ReadWriteCloser
	proto  Protocol
	log    *zap.Logger
	cb     Callbacks

	state       State
	pinging     bool
	pingState   State // state snapshot at heartbeat send
	pingSeq     uint64
	pingTimer   *time.Timer
	pingTimeout time.Duration

	writeBuffer  []string
	options      *registry
	pendingEdits []pendingOption

	tc TimeControl

	events chan Event
	cmds   chan func()
	done   chan struct{} // closed when Run exits; releases the reader

	streamClosed   bool // stream-closed event already observed
	streamDetached bool // stop reacting to stream-closed
}

type pendingOption struct {
	Name  string
	Value string
}

type SessionOpt func(*Session)

func WithLogger(log *zap.Logger) SessionOpt {
	return func(s *Session) { s.log = log }
}

func WithHeartbeatTimeout(d time.Duration) SessionOpt {
	return func(s *Session) {
		if d > 0 {
			s.pingTimeout = d
		}
	}
}

func NewSession(ids *IDSource, name string, stream io.ReadWriteCloser, proto Protocol, opts ...SessionOpt) *Session {
	s := &Session{
		id:          ids.Next(),
		name:        name,
		stream:      stream,
		proto:       proto,
		log:         zap.NewNop(),
		state:       NotStarted,
		pingTimeout: DefaultHeartbeatTimeout,
		options:     newRegistry(),
		events:      make(chan Event, 64),
		cmds:        make(chan func(), 16),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCallbacks wires the driver hooks. Call before Start.
func (s *Session) SetCallbacks(cb Callbacks) { s.cb = cb }

func (s *Session) ID() int      { return s.id }
func (s *Session) Name() string { return s.name }
func (s *Session) SetName(name string) {
	if name != "" {
		s.name = name
	}
}

func (s *Session) State() State { return s.state }

// SetState is exposed for the game-player collaborator, which owns the
// fine-grained states (Observing, Thinking, ...).
func (s *Session) SetState(st State) { s.setState(st) }

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.log.Debug("engine_state",
		zap.Int("session", s.id),
		zap.String("name", s.name),
		zap.String("from", s.state.String()),
		zap.String("to", st.String()),
	)
	s.state = st
}

// Ready reports whether no heartbeat is outstanding.
func (s *Session) Ready() bool { return !s.pinging }

func (s *Session) TimeControl() TimeControl { return s.tc }

func (s *Session) SetTimeControl(tc TimeControl) { s.tc = tc }

// Run consumes inbound events and posted driver commands until ctx is
// cancelled. It starts the line reader for the session's stream; every
// state transition happens on this goroutine. On exit the stream is
// closed so the reader does not outlive the loop that drains it.
func (s *Session) Run(ctx context.Context) {
	go s.readLines()
	defer func() {
		close(s.done)
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.Dispatch(ev)
		case fn := <-s.cmds:
			fn()
		}
	}
}

// Post schedules fn on the session's dispatch context. This is the only
// way other goroutines may interact with a running session.
func (s *Session) Post(fn func()) { s.cmds <- fn }

func (s *Session) readLines() {
	sc := bufio.NewScanner(s.stream)
	sc.Buffer(make([]byte, 0, 16*1024), 1024*1024)
	for sc.Scan() {
		select {
		case s.events <- Event{Kind: EventLine, Line: sc.Text()}:
		case <-s.done:
			return
		}
	}
	select {
	case s.events <- Event{Kind: EventStreamClosed}:
	case <-s.done:
	}
}

// postEvent delivers an event from outside the dispatch goroutine. The
// send blocks until the loop drains it; a full queue must never cost the
// heartbeat-timeout signal.
func (s *Session) postEvent(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Dispatch is the single state-machine stepping function.
func (s *Session) Dispatch(ev Event) {
	switch ev.Kind {
	case EventLine:
		line := strings.TrimSpace(ev.Line)
		if line == "" {
			return
		}
		s.log.Debug("engine_io",
			zap.Int("session", s.id),
			zap.String("name", s.name),
			zap.String("dir", "<"),
			zap.String("line", line),
		)
		s.proto.ParseLine(s, line)
	case EventStreamClosed:
		s.streamClosed = true
		if s.streamDetached {
			return
		}
		s.CloseConnection()
	case EventHeartbeatTimeout:
		if !s.pinging || ev.Seq != s.pingSeq {
			return
		}
		s.onHeartbeatTimeout()
	}
}

// Start begins protocol negotiation. The session stays not-ready until
// the protocol reports startup completion.
func (s *Session) Start() {
	if s.state != NotStarted {
		return
	}
	s.pinging = false
	s.setState(Starting)
	s.flushWriteBuffer()
	s.proto.Start(s)
	s.pinging = true
}

// OnProtocolStart is the protocol-startup completion signal. It flushes
// deferred writes and applies option edits queued before the engine
// could accept them, in submission order.
func (s *Session) OnProtocolStart() {
	if s.state == Disconnected {
		return
	}
	s.pinging = false
	s.setState(Idle)
	s.flushWriteBuffer()
	pending := s.pendingEdits
	s.pendingEdits = nil
	for _, po := range pending {
		s.SetOption(po.Name, po.Value)
	}
}

// Go hands the turn to the engine. From Observing a heartbeat cycle is
// issued first so liveness is confirmed before the engine starts
// thinking; any commands written meanwhile stay buffered until the ack.
func (s *Session) Go() {
	if s.state == Observing {
		s.Heartbeat()
	}
	s.setState(Thinking)
	if s.cb.TurnStart != nil {
		s.cb.TurnStart()
	}
}

// EndGame reports the result to the engine's player hooks and finishes
// with a liveness check so the process can be safely reused or released.
func (s *Session) EndGame(result string) {
	if s.state == NotStarted || s.state == Disconnected {
		return
	}
	s.setState(FinishingGame)
	if s.cb.GameEnded != nil {
		s.cb.GameEnded(result)
	}
	s.Heartbeat()
}

// Heartbeat sends a liveness probe unless one is already outstanding or
// the session cannot be probed. A single-shot timer turns a missing ack
// into a fatal timeout.
func (s *Session) Heartbeat() {
	if s.pinging || s.state == NotStarted || s.state == Disconnected {
		return
	}
	if !s.proto.Ping(s) {
		return
	}
	s.pinging = true
	s.pingState = s.state
	s.pingSeq++
	seq := s.pingSeq
	s.pingTimer = time.AfterFunc(s.pingTimeout, func() {
		s.postEvent(Event{Kind: EventHeartbeatTimeout, Seq: seq})
	})
}

// OnHeartbeatAck handles the engine's pong. A settled FinishingGame
// session moves to Idle; if the state changed while waiting, another
// heartbeat is issued and the ready signal is deferred until it
// resolves.
func (s *Session) OnHeartbeatAck() {
	if !s.pinging {
		return
	}
	s.stopPingTimer()
	s.pinging = false
	s.flushWriteBuffer()

	if s.state == FinishingGame {
		if s.pingState == FinishingGame {
			s.setState(Idle)
			s.pingState = Idle
		} else {
			s.Heartbeat()
			return
		}
	}
	s.emitReady()
}

// onHeartbeatTimeout is the single fatal error path: the engine is
// considered stalled, the session is torn down and the current game is
// forfeited.
func (s *Session) onHeartbeatTimeout() {
	s.log.Warn("engine_heartbeat_timeout",
		zap.Int("session", s.id),
		zap.String("name", s.name),
	)
	s.pinging = false
	s.writeBuffer = nil
	s.CloseConnection()
	if s.cb.Forfeit != nil {
		s.cb.Forfeit(Forfeit{SessionID: s.id, Name: s.name, Cause: CauseStalledConnection})
	}
}

// CloseConnection tears the session down. Safe to call at any time,
// including mid-heartbeat; closing an already-disconnected session is a
// no-op.
func (s *Session) CloseConnection() {
	if s.state == Disconnected {
		return
	}
	s.setState(Disconnected)
	s.pinging = false
	s.stopPingTimer()
	s.writeBuffer = nil
	s.emitReady()
	s.streamDetached = true
	if s.stream != nil {
		_ = s.stream.Close()
	}
}

// Quit asks the engine to terminate and marks the session disconnected.
// Idempotent on a closed or never-opened stream.
func (s *Session) Quit() {
	if s.state == Disconnected || s.streamClosed {
		return
	}
	s.streamDetached = true
	s.proto.Quit(s)
	s.setState(Disconnected)
}

func (s *Session) stopPingTimer() {
	if s.pingTimer != nil {
		s.pingTimer.Stop()
		s.pingTimer = nil
	}
}

func (s *Session) emitReady() {
	if s.cb.Ready != nil {
		s.cb.Ready()
	}
}

// Write sends one protocol line, buffering it whenever the session is
// not yet sendable. Writing to a disconnected session is a no-op.
func (s *Session) Write(line string) {
	if s.state == Disconnected {
		return
	}
	if s.state == NotStarted || s.pinging {
		s.writeBuffer = append(s.writeBuffer, line)
		return
	}
	s.sendNow(line)
}

// sendNow writes straight to the stream with the single line terminator
// and mirrors the line to the debug sink.
func (s *Session) sendNow(line string) bool {
	if s.stream == nil {
		return false
	}
	s.log.Debug("engine_io",
		zap.Int("session", s.id),
		zap.String("name", s.name),
		zap.String("dir", ">"),
		zap.String("line", line),
	)
	if _, err := io.WriteString(s.stream, line+"\n"); err != nil {
		s.log.Warn("engine_write_failed",
			zap.Int("session", s.id),
			zap.String("name", s.name),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *Session) flushWriteBuffer() {
	if s.pinging || s.state == NotStarted {
		return
	}
	buf := s.writeBuffer
	s.writeBuffer = nil
	for _, line := range buf {
		s.Write(line)
	}
}

// DeclareOption registers an engine-declared tunable; the last
// declaration under a name wins.
func (s *Session) DeclareOption(o *Option) {
	if o == nil || o.Name == "" {
		return
	}
	s.options.declare(o)
	if s.cb.OptionDeclared != nil {
		s.cb.OptionDeclared(o)
	}
}

// Option looks up a declared option by name.
func (s *Session) Option(name string) *Option { return s.options.get(name) }

// SetOption applies a value to a declared option. Before the session
// leaves Starting the edit is queued; unknown names and invalid values
// are dropped with a diagnostic.
func (s *Session) SetOption(name, value string) {
	if s.state == NotStarted || s.state == Starting {
		s.pendingEdits = append(s.pendingEdits, pendingOption{Name: name, Value: value})
		return
	}
	o := s.options.get(name)
	if o == nil {
		s.log.Info("engine_option_unknown",
			zap.Int("session", s.id),
			zap.String("name", s.name),
			zap.String("option", name),
		)
		return
	}
	if !o.Validate(value) {
		s.log.Info("engine_option_invalid",
			zap.Int("session", s.id),
			zap.String("name", s.name),
			zap.String("option", name),
			zap.String("value", value),
		)
		return
	}
	o.Value = value
	s.proto.SetOption(s, name, value)
}

// onMovePlayed is called by the protocol when the engine reports its
// move.
func (s *Session) onMovePlayed(text string) {
	if s.state == Thinking {
		s.setState(Observing)
	}
	if s.cb.MovePlayed != nil {
		s.cb.MovePlayed(text)
	}
}
