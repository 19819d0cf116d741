package board

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Standard is the regular-chess board, backed by the corentings/chess
// rules engine for legality and notation.
type Standard struct {
	game  *nchess.Game
	start string   // FEN at construction, empty for the initial position
	moves []string // applied moves in UCI text, for rebuild on undo
}

func NewStandard() *Standard {
	return &Standard{game: nchess.NewGame()}
}

func NewStandardFEN(fen string) (*Standard, error) {
	option, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return &Standard{game: nchess.NewGame(option), start: fen}, nil
}

func (s *Standard) Variant() string { return "standard" }
func (s *Standard) HasDrops() bool  { return false }

func (s *Standard) SideToMove() Side {
	if s.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

func (s *Standard) PieceAt(sq Square) (Piece, bool) {
	if !sq.Valid() {
		return Piece{}, false
	}
	p := s.game.Position().Board().Piece(nchess.Square(sq))
	if p == nchess.NoPiece {
		return Piece{}, false
	}
	side := White
	if p.Color() == nchess.Black {
		side = Black
	}
	return Piece{Side: side, Type: typeFromLib(p.Type())}, true
}

func (s *Standard) LegalMoves() []Move {
	valid := s.game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for _, mv := range valid {
		out = append(out, Move{
			From:      Square(mv.S1()),
			To:        Square(mv.S2()),
			Promotion: typeFromLib(mv.Promo()),
		})
	}
	return out
}

func (s *Standard) IsLegal(m Move) bool {
	for _, legal := range s.LegalMoves() {
		if legal == m {
			return true
		}
	}
	return false
}

func (s *Standard) MakeMove(m Move) error {
	if m.IsDrop() {
		return fmt.Errorf("%w: standard chess has no drops", ErrIllegalMove)
	}
	text, err := s.Encode(m)
	if err != nil {
		return err
	}
	if err := s.game.PushNotationMove(text, nchess.UCINotation{}, nil); err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	s.moves = append(s.moves, text)
	return nil
}

// UndoMove rebuilds the game from the start position minus the last move;
// the underlying library keeps no take-back stack.
func (s *Standard) UndoMove() error {
	if len(s.moves) == 0 {
		return fmt.Errorf("no move to undo")
	}
	moves := s.moves[:len(s.moves)-1]
	game, err := s.rebuild(moves)
	if err != nil {
		return err
	}
	s.game = game
	s.moves = moves
	return nil
}

func (s *Standard) rebuild(moves []string) (*nchess.Game, error) {
	var game *nchess.Game
	if s.start == "" {
		game = nchess.NewGame()
	} else {
		option, err := nchess.FEN(s.start)
		if err != nil {
			return nil, err
		}
		game = nchess.NewGame(option)
	}
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay %s: %w", mv, err)
		}
	}
	return game, nil
}

func (s *Standard) Encode(m Move) (string, error) {
	if m.IsDrop() {
		return "", fmt.Errorf("%w: standard chess has no drops", ErrIllegalMove)
	}
	if !m.From.Valid() || !m.To.Valid() {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, m)
	}
	return m.String(), nil
}

func (s *Standard) Decode(text string) (Move, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Move{}, fmt.Errorf("%w: empty", ErrNotation)
	}
	pos := s.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(raw))
	if err != nil {
		mv, err = nchess.AlgebraicNotation{}.Decode(pos, raw)
		if err != nil {
			return Move{}, fmt.Errorf("%w: %q", ErrNotation, text)
		}
	}
	m := Move{
		From:      Square(mv.S1()),
		To:        Square(mv.S2()),
		Promotion: typeFromLib(mv.Promo()),
	}
	// UCI decoding is purely syntactic; only moves present in the legal
	// set denote anything.
	if !s.IsLegal(m) {
		return Move{}, fmt.Errorf("%w: %q", ErrNotation, text)
	}
	return m, nil
}

func (s *Standard) Outcome() (string, string, bool) {
	switch s.game.Outcome() {
	case nchess.WhiteWon:
		return ResultWhiteWins, s.method(), true
	case nchess.BlackWon:
		return ResultBlackWins, s.method(), true
	case nchess.Draw:
		return ResultDraw, s.method(), true
	}
	return ResultNone, "", false
}

func (s *Standard) method() string {
	switch s.game.Method() {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	default:
		return "rules"
	}
}

// FEN reports the current position for protocol position commands.
func (s *Standard) FEN() string { return s.game.FEN() }

func typeFromLib(t nchess.PieceType) PieceType {
	switch t {
	case nchess.Pawn:
		return Pawn
	case nchess.Knight:
		return Knight
	case nchess.Bishop:
		return Bishop
	case nchess.Rook:
		return Rook
	case nchess.Queen:
		return Queen
	case nchess.King:
		return King
	}
	return NoPieceType
}
