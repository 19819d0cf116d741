package board

import (
	"fmt"
	"strings"
)

// Crazyhouse is standard chess plus hands: a captured piece switches
// sides and may later be dropped back onto any empty square. Promoted
// pieces are demoted to the type they were promoted from when captured.
//
// Drop restrictions enforced by this variant:
//   - the target square must be empty
//   - the dropping side must hold the piece in hand
//   - pawns may not be dropped on the first or last rank
//
// There is no mate-by-pawn-drop prohibition in Crazyhouse (that rule is
// Shogi's).
type Crazyhouse struct {
	grid    grid
	hands   [2][7]int // indexed by base PieceType
	stm     Side
	ep      Square
	castle  [2][2]bool // [side][kingside, queenside]
	history []zhRecord
}

type zhRecord struct {
	move     Move
	moved    Piece
	captured Piece
	capSq    Square
	ep       Square
	castle   [2][2]bool
}

func NewCrazyhouse() *Crazyhouse {
	c := &Crazyhouse{
		stm:    White,
		ep:     SquareNone,
		castle: [2][2]bool{{true, true}, {true, true}},
	}
	back := []PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	for file := 0; file < 8; file++ {
		c.grid[NewSquare(file, 0)] = Piece{Side: White, Type: back[file]}
		c.grid[NewSquare(file, 1)] = Piece{Side: White, Type: Pawn}
		c.grid[NewSquare(file, 6)] = Piece{Side: Black, Type: Pawn}
		c.grid[NewSquare(file, 7)] = Piece{Side: Black, Type: back[file]}
	}
	return c
}

// NewCrazyhouseSetup builds an arbitrary position, e.g. for adjudication
// or tests. Castling rights are assumed lost and there is no en passant
// target.
func NewCrazyhouseSetup(pieces map[Square]Piece, hands map[Side]map[PieceType]int, stm Side) (*Crazyhouse, error) {
	c := &Crazyhouse{stm: stm, ep: SquareNone}
	for sq, p := range pieces {
		if !sq.Valid() || p.Empty() {
			return nil, fmt.Errorf("bad setup piece at %s", sq)
		}
		c.grid[sq] = p
	}
	for _, side := range []Side{White, Black} {
		if c.grid.kingSquare(side) == SquareNone {
			return nil, fmt.Errorf("setup is missing the %s king", side)
		}
	}
	for side, counts := range hands {
		for pt, n := range counts {
			if pt == NoPieceType || pt == King || n < 0 {
				return nil, fmt.Errorf("bad hand entry %s x%d", pt, n)
			}
			c.hands[side][pt] = n
		}
	}
	return c, nil
}

func (c *Crazyhouse) Variant() string { return "crazyhouse" }
func (c *Crazyhouse) HasDrops() bool  { return true }

func (c *Crazyhouse) SideToMove() Side { return c.stm }

func (c *Crazyhouse) PieceAt(sq Square) (Piece, bool) {
	if !sq.Valid() || c.grid.at(sq).Empty() {
		return Piece{}, false
	}
	return c.grid.at(sq), true
}

func (c *Crazyhouse) HandCount(side Side, pt PieceType) int {
	if pt == NoPieceType || pt > King {
		return 0
	}
	return c.hands[side][pt]
}

func (c *Crazyhouse) LegalMoves() []Move {
	var out []Move
	for _, m := range c.pseudoMoves() {
		if c.legalAfter(m) {
			out = append(out, m)
		}
	}
	return out
}

func (c *Crazyhouse) pseudoMoves() []Move {
	var out []Move
	lastRank := 7
	if c.stm == Black {
		lastRank = 0
	}
	for sq := Square(0); sq < 64; sq++ {
		p := c.grid.at(sq)
		if p.Empty() || p.Side != c.stm {
			continue
		}
		for _, to := range c.grid.pieceTargets(sq, c.ep) {
			if p.Type == Pawn && to.Rank() == lastRank {
				for _, promo := range []PieceType{Queen, Rook, Bishop, Knight} {
					out = append(out, Move{From: sq, To: to, Promotion: promo})
				}
				continue
			}
			out = append(out, Move{From: sq, To: to})
		}
	}
	out = append(out, c.castleMoves()...)
	out = append(out, c.dropMoves()...)
	return out
}

func (c *Crazyhouse) dropMoves() []Move {
	var out []Move
	for pt := Pawn; pt <= Queen; pt++ {
		if c.hands[c.stm][pt] == 0 {
			continue
		}
		for sq := Square(0); sq < 64; sq++ {
			if !c.grid.at(sq).Empty() {
				continue
			}
			if pt == Pawn && (sq.Rank() == 0 || sq.Rank() == 7) {
				continue
			}
			out = append(out, Move{From: SquareNone, To: sq, Promotion: pt})
		}
	}
	return out
}

func (c *Crazyhouse) castleMoves() []Move {
	homeRank := 0
	if c.stm == Black {
		homeRank = 7
	}
	kingSq := NewSquare(4, homeRank)
	p := c.grid.at(kingSq)
	if p.Type != King || p.Side != c.stm {
		return nil
	}
	if c.grid.attacked(kingSq, c.stm.Other()) {
		return nil
	}
	var out []Move
	// kingside, then queenside
	type wing struct {
		rookFile int
		empty    []int
		through  []int
	}
	for i, w := range []wing{
		{7, []int{5, 6}, []int{5, 6}},
		{0, []int{1, 2, 3}, []int{2, 3}},
	} {
		if !c.castle[c.stm][i] {
			continue
		}
		rook := c.grid.at(NewSquare(w.rookFile, homeRank))
		if rook.Type != Rook || rook.Side != c.stm {
			continue
		}
		ok := true
		for _, f := range w.empty {
			if !c.grid.at(NewSquare(f, homeRank)).Empty() {
				ok = false
				break
			}
		}
		for _, f := range w.through {
			if ok && c.grid.attacked(NewSquare(f, homeRank), c.stm.Other()) {
				ok = false
			}
		}
		if !ok {
			continue
		}
		toFile := 6
		if i == 1 {
			toFile = 2
		}
		out = append(out, Move{From: kingSq, To: NewSquare(toFile, homeRank)})
	}
	return out
}

// legalAfter applies m to a throwaway copy and checks the mover's king.
func (c *Crazyhouse) legalAfter(m Move) bool {
	mover := c.stm
	scratch := *c
	scratch.apply(m)
	king := scratch.grid.kingSquare(mover)
	return king != SquareNone && !scratch.grid.attacked(king, mover.Other())
}

// apply mutates the position without legality checks or history.
// It returns the captured piece (if any) and the square it stood on.
func (c *Crazyhouse) apply(m Move) (Piece, Square) {
	side := c.stm
	c.stm = side.Other()
	if m.IsDrop() {
		c.grid[m.To] = Piece{Side: side, Type: m.Promotion}
		c.hands[side][m.Promotion]--
		c.ep = SquareNone
		return Piece{}, SquareNone
	}

	p := c.grid.at(m.From)
	captured := c.grid.at(m.To)
	capSq := m.To
	if p.Type == Pawn && m.To == c.ep && captured.Empty() {
		capSq = NewSquare(m.To.File(), m.From.Rank())
		captured = c.grid.at(capSq)
		c.grid[capSq] = Piece{}
	}
	if !captured.Empty() {
		c.hands[side][captured.HandType()]++
	}

	moved := p
	if m.Promotion != NoPieceType {
		moved = Piece{Side: side, Type: m.Promotion, PromotedFrom: p.Type}
	}
	c.grid[m.From] = Piece{}
	c.grid[m.To] = moved

	// castling moves the rook as well
	if p.Type == King && abs(m.To.File()-m.From.File()) == 2 {
		rank := m.From.Rank()
		if m.To.File() == 6 {
			c.grid[NewSquare(5, rank)] = c.grid.at(NewSquare(7, rank))
			c.grid[NewSquare(7, rank)] = Piece{}
		} else {
			c.grid[NewSquare(3, rank)] = c.grid.at(NewSquare(0, rank))
			c.grid[NewSquare(0, rank)] = Piece{}
		}
	}

	c.updateRights(m, p, captured, capSq)

	c.ep = SquareNone
	if p.Type == Pawn && abs(m.To.Rank()-m.From.Rank()) == 2 {
		c.ep = NewSquare(m.From.File(), (m.From.Rank()+m.To.Rank())/2)
	}
	return captured, capSq
}

func (c *Crazyhouse) updateRights(m Move, p, captured Piece, capSq Square) {
	clear := func(side Side, sq Square) {
		homeRank := 0
		if side == Black {
			homeRank = 7
		}
		if sq.Rank() != homeRank {
			return
		}
		switch sq.File() {
		case 7:
			c.castle[side][0] = false
		case 0:
			c.castle[side][1] = false
		}
	}
	if p.Type == King {
		c.castle[p.Side][0] = false
		c.castle[p.Side][1] = false
	}
	if p.Type == Rook {
		clear(p.Side, m.From)
	}
	if captured.Type == Rook {
		clear(captured.Side, capSq)
	}
}

func (c *Crazyhouse) IsLegal(m Move) bool {
	for _, legal := range c.LegalMoves() {
		if legal == m {
			return true
		}
	}
	return false
}

func (c *Crazyhouse) MakeMove(m Move) error {
	if !c.IsLegal(m) {
		return fmt.Errorf("%w: %s", ErrIllegalMove, m)
	}
	rec := zhRecord{
		move:   m,
		ep:     c.ep,
		castle: c.castle,
	}
	if !m.IsDrop() {
		rec.moved = c.grid.at(m.From)
	}
	rec.captured, rec.capSq = c.apply(m)
	c.history = append(c.history, rec)
	return nil
}

// UndoMove reverses the last move: a drop returns the piece to hand, a
// capture removes the demoted piece from the capturer's hand and puts
// the original piece back on the board.
func (c *Crazyhouse) UndoMove() error {
	if len(c.history) == 0 {
		return fmt.Errorf("no move to undo")
	}
	rec := c.history[len(c.history)-1]
	c.history = c.history[:len(c.history)-1]
	c.stm = c.stm.Other()
	side := c.stm
	m := rec.move

	if m.IsDrop() {
		c.grid[m.To] = Piece{}
		c.hands[side][m.Promotion]++
	} else {
		c.grid[m.To] = Piece{}
		c.grid[m.From] = rec.moved
		if !rec.captured.Empty() {
			c.grid[rec.capSq] = rec.captured
			c.hands[side][rec.captured.HandType()]--
		}
		if rec.moved.Type == King && abs(m.To.File()-m.From.File()) == 2 {
			rank := m.From.Rank()
			if m.To.File() == 6 {
				c.grid[NewSquare(7, rank)] = c.grid.at(NewSquare(5, rank))
				c.grid[NewSquare(5, rank)] = Piece{}
			} else {
				c.grid[NewSquare(0, rank)] = c.grid.at(NewSquare(3, rank))
				c.grid[NewSquare(3, rank)] = Piece{}
			}
		}
	}

	c.ep = rec.ep
	c.castle = rec.castle
	return nil
}

func (c *Crazyhouse) Encode(m Move) (string, error) {
	if m.IsDrop() {
		if m.Promotion == NoPieceType || m.Promotion >= King || !m.To.Valid() {
			return "", fmt.Errorf("%w: %s", ErrIllegalMove, m)
		}
		return m.String(), nil
	}
	if !m.From.Valid() || !m.To.Valid() {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, m)
	}
	return m.String(), nil
}

func (c *Crazyhouse) Decode(text string) (Move, error) {
	raw := strings.TrimSpace(text)
	m, err := parseLan(raw)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %q", ErrNotation, text)
	}
	for _, legal := range c.LegalMoves() {
		if legal == m {
			return m, nil
		}
	}
	return Move{}, fmt.Errorf("%w: %q", ErrNotation, text)
}

// parseLan reads long algebraic text: "e2e4", "e7e8q" or a drop "N@f3".
func parseLan(raw string) (Move, error) {
	if at := strings.IndexByte(raw, '@'); at == 1 {
		pt := pieceTypeFromLetter(strings.ToLower(raw)[0])
		sq, err := ParseSquare(raw[2:])
		if err != nil || pt == NoPieceType || pt == King {
			return Move{}, fmt.Errorf("bad drop %q", raw)
		}
		return Move{From: SquareNone, To: sq, Promotion: pt}, nil
	}
	low := strings.ToLower(raw)
	if len(low) != 4 && len(low) != 5 {
		return Move{}, fmt.Errorf("bad move %q", raw)
	}
	from, err := ParseSquare(low[:2])
	if err != nil {
		return Move{}, err
	}
	to, err := ParseSquare(low[2:4])
	if err != nil {
		return Move{}, err
	}
	promo := NoPieceType
	if len(low) == 5 {
		promo = pieceTypeFromLetter(low[4])
		if promo == NoPieceType || promo == Pawn || promo == King {
			return Move{}, fmt.Errorf("bad promotion %q", raw)
		}
	}
	return Move{From: from, To: to, Promotion: promo}, nil
}

func (c *Crazyhouse) Outcome() (string, string, bool) {
	if len(c.LegalMoves()) > 0 {
		return ResultNone, "", false
	}
	king := c.grid.kingSquare(c.stm)
	if king != SquareNone && c.grid.attacked(king, c.stm.Other()) {
		if c.stm == White {
			return ResultBlackWins, "checkmate", true
		}
		return ResultWhiteWins, "checkmate", true
	}
	return ResultDraw, "stalemate", true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
