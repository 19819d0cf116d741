// Package match referees one game between two engine sessions over a
// variant board: it relays moves, runs the player lifecycle hooks and
// adjudicates the result.
package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/enginearena/internal/board"
	"github.com/kapu/enginearena/internal/engine"
)

const (
	defaultMaxPlies = 512
	settleTimeout   = 15 * time.Second
)

// Record is the finished-game archive entry.
type Record struct {
	ID          string    `json:"id"`
	Variant     string    `json:"variant"`
	White       string    `json:"white"`
	Black       string    `json:"black"`
	MovesUCI    []string  `json:"moves_uci"`
	Result      string    `json:"result"`
	Termination string    `json:"termination"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Plies       int       `json:"plies"`
}

type Config struct {
	MaxPlies    int
	TimeControl engine.TimeControl
}

type moveEvent struct {
	side board.Side
	text string
}

// Driver owns the board and the driver-side channels of both sessions.
// The sessions' Run loops must be started by the caller; the driver
// interacts with them only through Post.
type Driver struct {
	log      *zap.Logger
	board    board.Board
	sessions [2]*engine.Session // indexed by board.Side
	cfg      Config

	moves    chan moveEvent
	forfeits chan engine.Forfeit
	ready    chan board.Side
}

func NewDriver(log *zap.Logger, b board.Board, white, black *engine.Session, cfg Config) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxPlies <= 0 {
		cfg.MaxPlies = defaultMaxPlies
	}
	d := &Driver{
		log:      log,
		board:    b,
		sessions: [2]*engine.Session{white, black},
		cfg:      cfg,
		moves:    make(chan moveEvent, 8),
		forfeits: make(chan engine.Forfeit, 2),
		ready:    make(chan board.Side, 8),
	}
	for _, side := range []board.Side{board.White, board.Black} {
		side := side
		s := d.sessions[side]
		s.SetTimeControl(cfg.TimeControl)
		s.SetCallbacks(engine.Callbacks{
			// Ready fires on every heartbeat ack; only the endgame settle
			// consumes it, so drop rather than block the session goroutine.
			Ready: func() {
				select {
				case d.ready <- side:
				default:
				}
			},
			MovePlayed: func(text string) { d.moves <- moveEvent{side: side, text: text} },
			Forfeit:    func(f engine.Forfeit) { d.forfeits <- f },
		})
	}
	return d
}

// Play runs one full game and returns its record. The context bounds the
// whole game; cancellation adjudicates no result ("*").
func (d *Driver) Play(ctx context.Context) (*Record, error) {
	rec := &Record{
		ID:        uuid.NewString(),
		Variant:   d.board.Variant(),
		White:     d.sessions[board.White].Name(),
		Black:     d.sessions[board.Black].Name(),
		Result:    board.ResultNone,
		StartedAt: time.Now(),
	}
	d.log.Info("game_start",
		zap.String("game_id", rec.ID),
		zap.String("variant", rec.Variant),
		zap.String("white", rec.White),
		zap.String("black", rec.Black),
	)

	for _, side := range []board.Side{board.White, board.Black} {
		s := d.sessions[side]
		s.Post(func() { s.Start() })
	}
	for _, side := range []board.Side{board.White, board.Black} {
		if err := d.awaitIdle(ctx, side); err != nil {
			return rec, err
		}
		s := d.sessions[side]
		s.Post(func() { s.Write("ucinewgame") })
	}

	if err := d.gameLoop(ctx, rec); err != nil {
		return rec, err
	}

	rec.White = d.sessionName(board.White)
	rec.Black = d.sessionName(board.Black)
	rec.EndedAt = time.Now()
	rec.Plies = len(rec.MovesUCI)
	d.endGame(rec)
	d.log.Info("game_end",
		zap.String("game_id", rec.ID),
		zap.String("result", rec.Result),
		zap.String("termination", rec.Termination),
		zap.Int("plies", rec.Plies),
	)
	return rec, nil
}

func (d *Driver) gameLoop(ctx context.Context, rec *Record) error {
	for ply := 0; ply < d.cfg.MaxPlies; ply++ {
		if _, _, over := d.board.Outcome(); over {
			rec.Result, rec.Termination, _ = d.board.Outcome()
			return nil
		}

		mover := d.board.SideToMove()
		s := d.sessions[mover]
		history := append([]string(nil), rec.MovesUCI...)
		tc := d.cfg.TimeControl
		s.Post(func() {
			s.Go()
			s.Write(engine.PositionCommand("", history))
			s.Write(engine.GoCommand(tc))
		})

		select {
		case <-ctx.Done():
			rec.Termination = "cancelled"
			return ctx.Err()
		case f := <-d.forfeits:
			d.applyForfeit(rec, f)
			return nil
		case ev := <-d.moves:
			if ev.side != mover {
				d.log.Warn("move_out_of_turn",
					zap.String("game_id", rec.ID),
					zap.String("side", ev.side.String()),
					zap.String("move", ev.text),
				)
				continue
			}
			if err := d.applyMove(rec, mover, ev.text); err != nil {
				return nil // adjudicated inside applyMove
			}
		}
	}
	rec.Result = board.ResultDraw
	rec.Termination = "move limit"
	return nil
}

func (d *Driver) applyMove(rec *Record, mover board.Side, text string) error {
	m, err := d.board.Decode(text)
	if err != nil {
		d.log.Warn("illegal_engine_move",
			zap.String("game_id", rec.ID),
			zap.String("side", mover.String()),
			zap.String("move", text),
			zap.Error(err),
		)
		rec.Result = winFor(mover.Other())
		rec.Termination = "illegal move"
		return fmt.Errorf("illegal move %q: %w", text, err)
	}
	if err := d.board.MakeMove(m); err != nil {
		rec.Result = winFor(mover.Other())
		rec.Termination = "illegal move"
		return err
	}
	encoded, err := d.board.Encode(m)
	if err != nil {
		encoded = text
	}
	rec.MovesUCI = append(rec.MovesUCI, encoded)
	return nil
}

func (d *Driver) applyForfeit(rec *Record, f engine.Forfeit) {
	loser := board.White
	if f.SessionID == d.sessions[board.Black].ID() {
		loser = board.Black
	}
	rec.Result = winFor(loser.Other())
	rec.Termination = string(f.Cause)
	d.log.Warn("game_forfeit",
		zap.String("game_id", rec.ID),
		zap.String("side", loser.String()),
		zap.String("cause", string(f.Cause)),
	)
}

// endGame runs the finishing heartbeat cycle on both sessions and waits
// for them to settle so processes can be reused or released.
func (d *Driver) endGame(rec *Record) {
	// stale ready signals from mid-game heartbeat acks
	for {
		select {
		case <-d.ready:
			continue
		default:
		}
		break
	}

	pending := 0
	for _, side := range []board.Side{board.White, board.Black} {
		s := d.sessions[side]
		result := rec.Result
		alive := make(chan bool, 1)
		s.Post(func() {
			if s.State() == engine.Disconnected {
				alive <- false
				return
			}
			s.EndGame(result)
			alive <- true
		})
		if <-alive {
			pending++
		}
	}
	deadline := time.After(settleTimeout)
	for pending > 0 {
		select {
		case <-d.ready:
			pending--
		case <-d.forfeits:
			pending--
		case <-deadline:
			d.log.Warn("game_settle_timeout", zap.String("game_id", rec.ID))
			return
		}
	}
}

// sessionName queries a running session for its (possibly
// engine-reported) name on its own dispatch context.
func (d *Driver) sessionName(side board.Side) string {
	s := d.sessions[side]
	name := make(chan string, 1)
	s.Post(func() { name <- s.Name() })
	select {
	case n := <-name:
		return n
	case <-time.After(settleTimeout):
		return s.Name()
	}
}

func (d *Driver) awaitIdle(ctx context.Context, side board.Side) error {
	s := d.sessions[side]
	deadline := time.After(settleTimeout)
	for {
		state := make(chan engine.State, 1)
		s.Post(func() { state <- s.State() })
		select {
		case st := <-state:
			switch st {
			case engine.Idle:
				return nil
			case engine.Disconnected:
				return fmt.Errorf("%s engine disconnected during startup", side)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%s engine did not become ready", side)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func winFor(side board.Side) string {
	if side == board.White {
		return board.ResultWhiteWins
	}
	return board.ResultBlackWins
}
