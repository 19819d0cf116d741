package board

// Shared western movement fragment. Drop variants compose this square
// centric move/attack logic with their own overlays instead of
// re-deriving standard piece movement per variant.

type grid [64]Piece

var (
	knightDeltas = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingDeltas   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	bishopDirs   = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	rookDirs     = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
)

func (g *grid) at(sq Square) Piece { return g[sq] }

func pawnDir(side Side) int {
	if side == White {
		return 1
	}
	return -1
}

// pieceTargets returns the pseudo-legal target squares of the piece on
// from. epSquare is the current en passant target or SquareNone.
func (g *grid) pieceTargets(from Square, epSquare Square) []Square {
	p := g.at(from)
	if p.Empty() {
		return nil
	}
	var out []Square
	push := func(file, rank int) bool {
		sq := NewSquare(file, rank)
		if !sq.Valid() {
			return false
		}
		occ := g.at(sq)
		if occ.Empty() {
			out = append(out, sq)
			return true
		}
		if occ.Side != p.Side {
			out = append(out, sq)
		}
		return false
	}
	slide := func(dirs [4][2]int) {
		for _, d := range dirs {
			f, r := from.File()+d[0], from.Rank()+d[1]
			for push(f, r) {
				f += d[0]
				r += d[1]
			}
		}
	}

	switch p.Type {
	case Pawn:
		dir := pawnDir(p.Side)
		one := NewSquare(from.File(), from.Rank()+dir)
		if one.Valid() && g.at(one).Empty() {
			out = append(out, one)
			startRank := 1
			if p.Side == Black {
				startRank = 6
			}
			two := NewSquare(from.File(), from.Rank()+2*dir)
			if from.Rank() == startRank && two.Valid() && g.at(two).Empty() {
				out = append(out, two)
			}
		}
		for _, df := range []int{-1, 1} {
			sq := NewSquare(from.File()+df, from.Rank()+dir)
			if !sq.Valid() {
				continue
			}
			occ := g.at(sq)
			if (!occ.Empty() && occ.Side != p.Side) || sq == epSquare {
				out = append(out, sq)
			}
		}
	case Knight:
		for _, d := range knightDeltas {
			push(from.File()+d[0], from.Rank()+d[1])
		}
	case Bishop:
		slide(bishopDirs)
	case Rook:
		slide(rookDirs)
	case Queen:
		slide(bishopDirs)
		slide(rookDirs)
	case King:
		for _, d := range kingDeltas {
			push(from.File()+d[0], from.Rank()+d[1])
		}
	}
	return out
}

// attacked reports whether sq is attacked by any piece of side by.
func (g *grid) attacked(sq Square, by Side) bool {
	file, rank := sq.File(), sq.Rank()

	probe := func(f, r int) Piece {
		s := NewSquare(f, r)
		if !s.Valid() {
			return Piece{}
		}
		return g.at(s)
	}

	// pawns attack backwards relative to their own push direction
	dir := pawnDir(by)
	for _, df := range []int{-1, 1} {
		if p := probe(file+df, rank-dir); p.Side == by && p.Type == Pawn {
			return true
		}
	}
	for _, d := range knightDeltas {
		if p := probe(file+d[0], rank+d[1]); p.Side == by && p.Type == Knight {
			return true
		}
	}
	for _, d := range kingDeltas {
		if p := probe(file+d[0], rank+d[1]); p.Side == by && p.Type == King {
			return true
		}
	}
	scan := func(dirs [4][2]int, t1, t2 PieceType) bool {
		for _, d := range dirs {
			f, r := file+d[0], rank+d[1]
			for {
				s := NewSquare(f, r)
				if !s.Valid() {
					break
				}
				p := g.at(s)
				if !p.Empty() {
					if p.Side == by && (p.Type == t1 || p.Type == t2) {
						return true
					}
					break
				}
				f += d[0]
				r += d[1]
			}
		}
		return false
	}
	if scan(bishopDirs, Bishop, Queen) {
		return true
	}
	return scan(rookDirs, Rook, Queen)
}

func (g *grid) kingSquare(side Side) Square {
	for sq := Square(0); sq < 64; sq++ {
		p := g.at(sq)
		if p.Type == King && p.Side == side {
			return sq
		}
	}
	return SquareNone
}
