// Package board models one chess position per variant and the notation
// bridge the engine session layer needs: legality queries, move
// enumeration, make/unmake, and long-algebraic encode/decode including
// drop and promotion semantics for hand variants.
package board

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotation is returned by Decode when the text does not correspond to
// exactly one legal move from the current position.
var ErrNotation = errors.New("ambiguous or unknown move notation")

// ErrIllegalMove is returned by MakeMove for a move that is not legal in
// the current position.
var ErrIllegalMove = errors.New("illegal move")

type Side uint8

const (
	White Side = iota
	Black
)

func (s Side) Other() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) String() string {
	if s == White {
		return "white"
	}
	return "black"
}

type PieceType uint8

const (
	NoPieceType PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

var pieceLetters = map[PieceType]string{
	Pawn:   "p",
	Knight: "n",
	Bishop: "b",
	Rook:   "r",
	Queen:  "q",
	King:   "k",
}

func (p PieceType) String() string {
	if s, ok := pieceLetters[p]; ok {
		return s
	}
	return "?"
}

func pieceTypeFromLetter(c byte) PieceType {
	switch c {
	case 'p':
		return Pawn
	case 'n':
		return Knight
	case 'b':
		return Bishop
	case 'r':
		return Rook
	case 'q':
		return Queen
	case 'k':
		return King
	}
	return NoPieceType
}

// Piece is one occupant of a square. PromotedFrom is set on promotion
// products; a captured piece enters the capturing side's hand as that
// base type, never as the promoted type.
type Piece struct {
	Side         Side
	Type         PieceType
	PromotedFrom PieceType
}

func (p Piece) Empty() bool { return p.Type == NoPieceType }

// HandType is the type the piece takes when it is captured into a hand.
func (p Piece) HandType() PieceType {
	if p.PromotedFrom != NoPieceType {
		return p.PromotedFrom
	}
	return p.Type
}

// Square is a board index, a1=0 .. h8=63. SquareNone is the off-board
// sentinel used as the source of drop moves.
type Square int8

const SquareNone Square = -1

func NewSquare(file, rank int) Square {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return SquareNone
	}
	return Square(rank*8 + file)
}

func (sq Square) File() int { return int(sq) % 8 }
func (sq Square) Rank() int { return int(sq) / 8 }

func (sq Square) Valid() bool { return sq >= 0 && sq < 64 }

func (sq Square) String() string {
	if !sq.Valid() {
		return "-"
	}
	return fmt.Sprintf("%c%d", 'a'+sq.File(), sq.Rank()+1)
}

func ParseSquare(s string) (Square, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return SquareNone, fmt.Errorf("bad square %q", s)
	}
	return NewSquare(int(s[0]-'a'), int(s[1]-'1')), nil
}

// Move is the notation-bridge view of a move. A board move uses From/To
// with an optional promotion target. A drop stores the dropped piece type
// in Promotion with From == SquareNone; the two meanings of the Promotion
// slot are mutually exclusive.
type Move struct {
	From      Square
	To        Square
	Promotion PieceType
}

func (m Move) IsDrop() bool { return m.From == SquareNone }

func (m Move) String() string {
	if m.IsDrop() {
		return strings.ToUpper(m.Promotion.String()) + "@" + m.To.String()
	}
	s := m.From.String() + m.To.String()
	if m.Promotion != NoPieceType {
		s += m.Promotion.String()
	}
	return s
}

// Board is the variant-independent capability set the session layer and
// game driver consume. Implementations are not safe for concurrent use.
type Board interface {
	// Variant names the ruleset, e.g. "standard" or "crazyhouse".
	Variant() string
	SideToMove() Side
	// PieceAt reports the occupant of sq; ok is false for empty squares.
	PieceAt(sq Square) (Piece, bool)
	// LegalMoves enumerates every legal move in the current position.
	LegalMoves() []Move
	IsLegal(m Move) bool
	MakeMove(m Move) error
	// UndoMove takes back the most recent move.
	UndoMove() error
	// Encode renders a legal move in the protocol's long algebraic text.
	// Distinct legal moves from one position never encode identically.
	Encode(m Move) (string, error)
	// Decode maps text to the single legal move it denotes, or ErrNotation.
	Decode(text string) (Move, error)
	// Outcome reports the game result ("1-0", "0-1", "1/2-1/2" or "*")
	// and a short termination method once the game is over.
	Outcome() (result string, method string, over bool)
	// HasDrops reports whether this variant keeps captured pieces in hand.
	HasDrops() bool
}

// HandHolder is the extra capability of drop variants.
type HandHolder interface {
	// HandCount reports how many pieces of the given base type the side
	// holds in hand.
	HandCount(side Side, pt PieceType) int
}

const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
	ResultNone      = "*"
)
