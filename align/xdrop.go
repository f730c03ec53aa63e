package align

import (
	"log"
	"math"

	"github.com/sealkit/seal"
)

// QualityScorer scores a letter pair together with both letters'
// quality codes.
type QualityScorer interface {
	Score(a, b, qa, qb byte) int
}

// GeneralizedQualityScorer adjusts a base score matrix by phred-scaled
// error probabilities of both letters, after Frith et al.'s generalized
// score construction. LetterProb is the background probability of the
// sequence-2 letter.
type GeneralizedQualityScorer struct {
	Matrix      *seal.ScoreMatrix
	Scale       float64
	LetterProbs [seal.ScoreMatrixRowSize]float64
	Offset      byte
}

func probFromPhred(s float64) float64 { return math.Pow(10, -0.1*s) }

// Score implements QualityScorer.
func (g *GeneralizedQualityScorer) Score(a, b, qa, qb byte) int {
	s := g.Matrix.Rows[a][b]
	if s <= -seal.INF {
		return -seal.INF
	}
	r := math.Exp(float64(s) / g.Scale)
	p := probFromPhred(float64(qa-g.Offset) + float64(qb-g.Offset))
	if p >= 1 {
		p = 0.999999
	}
	letterProb := g.LetterProbs[b]
	otherProb := 1 - letterProb
	if otherProb <= 0 {
		log.Panicf("bad letter probability: %g", letterProb)
	}
	u := p / otherProb
	x := (1-u)*r + u
	if x <= 0 {
		return -seal.INF
	}
	return int(math.Floor(g.Scale*math.Log(x) + 0.5))
}

// XdropAligner extends an alignment in one direction from an anchor,
// keeping a diagonal band whose cells are pruned once they fall more
// than maxDrop below the best score so far. The band and all state
// matrices are retained after Align so that chunks can be traced back
// and the probabilistic layer can run over the same cells.
type XdropAligner struct {
	// direction-adjusted access to the two sequences
	seq1, seq2     []byte
	start1, start2 int
	isForward      bool
	max1, max2     int

	scoreOf func(i, j int) int
	gap     *seal.GapCosts
	maxDrop int

	// band: row i has cells j in [rowLo[i], rowHi[i]),
	// cell (i,j) lives at rowOrigin[i]+j in the flat arrays
	rowLo, rowHi, rowOrigin []int
	numRows                 int

	mat  []int
	del  [][]int // one per del piece
	ins  [][]int // one per ins piece
	best int
	bestI, bestJ int

	// traceback cursor
	tbI, tbJ int
	tbDone                     bool
}

// letter accessors: i counts letters outward from the anchor.

func (x *XdropAligner) ch1(i int) byte {
	var p int
	if x.isForward {
		p = x.start1 + i
	} else {
		p = x.start1 - 1 - i
	}
	return x.seq1[p]
}

func (x *XdropAligner) ch2(j int) byte {
	var p int
	if x.isForward {
		p = x.start2 + j
	} else {
		p = x.start2 - 1 - j
	}
	return x.seq2[p]
}

func (x *XdropAligner) pos2(j int) int {
	if x.isForward {
		return x.start2 + j
	}
	return x.start2 - 1 - j
}

func (x *XdropAligner) setLimits() {
	if x.isForward {
		x.max1 = len(x.seq1) - x.start1
		x.max2 = len(x.seq2) - x.start2
	} else {
		x.max1 = x.start1
		x.max2 = x.start2
	}
}

// Align extends with an ordinary score matrix. It returns the best
// extension score; the empty extension scores zero.
func (x *XdropAligner) Align(seq1, seq2 []byte, start1, start2 int,
	isForward bool, globality int, matrix *seal.ScoreMatrix,
	gap *seal.GapCosts, maxDrop int) int {

	x.seq1, x.seq2 = seq1, seq2
	x.start1, x.start2 = start1, start2
	x.isForward = isForward
	x.scoreOf = func(i, j int) int { return matrix.Rows[x.ch1(i)][x.ch2(j)] }
	return x.run(globality, gap, maxDrop)
}

// AlignPssm extends with a position-specific matrix on sequence 2.
func (x *XdropAligner) AlignPssm(seq1 []byte, pssm []seal.ScoreMatrixRow,
	seq2 []byte, start1, start2 int, isForward bool, globality int,
	gap *seal.GapCosts, maxDrop int) int {

	x.seq1, x.seq2 = seq1, seq2
	x.start1, x.start2 = start1, start2
	x.isForward = isForward
	x.scoreOf = func(i, j int) int { return pssm[x.pos2(j)][x.ch1(i)] }
	return x.run(globality, gap, maxDrop)
}

// Align2Qual extends with per-base quality-derived scores.
func (x *XdropAligner) Align2Qual(seq1, qual1, seq2, qual2 []byte,
	start1, start2 int, isForward bool, globality int,
	scorer QualityScorer, gap *seal.GapCosts, maxDrop int) int {

	x.seq1, x.seq2 = seq1, seq2
	x.start1, x.start2 = start1, start2
	x.isForward = isForward
	q1 := func(i int) byte {
		if x.isForward {
			return qual1[x.start1+i]
		}
		return qual1[x.start1-1-i]
	}
	q2 := func(j int) byte {
		if x.isForward {
			return qual2[x.start2+j]
		}
		return qual2[x.start2-1-j]
	}
	x.scoreOf = func(i, j int) int {
		return scorer.Score(x.ch1(i), x.ch2(j), q1(i), q2(j))
	}
	return x.run(globality, gap, maxDrop)
}

func (x *XdropAligner) reset(gap *seal.GapCosts, maxDrop int) {
	x.gap = gap
	x.maxDrop = maxDrop
	x.rowLo = x.rowLo[:0]
	x.rowHi = x.rowHi[:0]
	x.rowOrigin = x.rowOrigin[:0]
	x.mat = x.mat[:0]
	x.del = x.del[:0]
	x.ins = x.ins[:0]
	for range gap.DelPieces {
		x.del = append(x.del, nil)
	}
	for range gap.InsPieces {
		x.ins = append(x.ins, nil)
	}
	x.numRows = 0
	x.best = 0
	x.bestI, x.bestJ = 0, 0
	x.tbDone = true
	x.setLimits()
}

func (x *XdropAligner) addRow(lo, hi int) {
	n := hi - lo
	x.rowLo = append(x.rowLo, lo)
	x.rowHi = append(x.rowHi, hi)
	x.rowOrigin = append(x.rowOrigin, len(x.mat)-lo)
	for k := 0; k < n; k++ {
		x.mat = append(x.mat, -seal.INF)
	}
	for p := range x.del {
		for k := 0; k < n; k++ {
			x.del[p] = append(x.del[p], -seal.INF)
		}
	}
	for p := range x.ins {
		for k := 0; k < n; k++ {
			x.ins[p] = append(x.ins[p], -seal.INF)
		}
	}
	x.numRows++
}

func (x *XdropAligner) cell(i, j int) int { return x.rowOrigin[i] + j }

func (x *XdropAligner) bestAt(i, j int) int {
	if i < 0 || i >= x.numRows || j < x.rowLo[i] || j >= x.rowHi[i] {
		return -seal.INF
	}
	ij := x.cell(i, j)
	b := x.mat[ij]
	for p := range x.del {
		if x.del[p][ij] > b {
			b = x.del[p][ij]
		}
	}
	for p := range x.ins {
		if x.ins[p][ij] > b {
			b = x.ins[p][ij]
		}
	}
	return b
}

func (x *XdropAligner) matAt(i, j int) int {
	if i < 0 || i >= x.numRows || j < x.rowLo[i] || j >= x.rowHi[i] {
		return -seal.INF
	}
	return x.mat[x.cell(i, j)]
}

func (x *XdropAligner) delAt(p, i, j int) int {
	if i < 0 || i >= x.numRows || j < x.rowLo[i] || j >= x.rowHi[i] {
		return -seal.INF
	}
	return x.del[p][x.cell(i, j)]
}

func (x *XdropAligner) insAt(p, i, j int) int {
	if i < 0 || i >= x.numRows || j < x.rowLo[i] || j >= x.rowHi[i] {
		return -seal.INF
	}
	return x.ins[p][x.cell(i, j)]
}

func (x *XdropAligner) maxDelAt(i, j int) int {
	b := -seal.INF
	for p := range x.del {
		if d := x.delAt(p, i, j); d > b {
			b = d
		}
	}
	return b
}

// run fills the band row by row. Cells outside the band, or pruned by
// the X-drop rule, act as -INF.
func (x *XdropAligner) run(globality int, gap *seal.GapCosts, maxDrop int) int {
	x.reset(gap, maxDrop)

	bestGlobal := -seal.INF
	bestGlobalI, bestGlobalJ := 0, 0
	atEdge := func(i, j int) bool {
		return i == x.max1 || j == x.max2 ||
			x.ch1(i) == seal.SequenceEndSentinel ||
			x.ch2(j) == seal.SequenceEndSentinel
	}
	// sentinel-aware per-row width limits
	lim2 := x.max2
	for j := 0; j < lim2; j++ {
		if x.ch2(j) == seal.SequenceEndSentinel {
			lim2 = j
			break
		}
	}

	lo, hi := 0, 1
	for i := 0; ; i++ {
		if i > x.max1 || (i < x.max1 && i > 0 && x.ch1(i-1) == seal.SequenceEndSentinel) {
			break
		}
		// row i may reach one past the previous row, then grow along
		// the insertion chain
		rowHi := hi + 1
		if rowHi > lim2+1 {
			rowHi = lim2 + 1
		}
		if lo >= rowHi {
			break
		}
		x.addRow(lo, rowHi)

		alive := false
		newLo, newHi := -1, -1
		for j := lo; j < rowHi; j++ {
			ij := x.cell(i, j)

			// deletion states (gap in sequence 2)
			for p, piece := range gap.DelPieces {
				open := x.matAt(i-1, j) - piece.Open
				ext := x.delAt(p, i-1, j)
				v := open
				if ext > v {
					v = ext
				}
				if v > -seal.INF {
					x.del[p][ij] = v - piece.Grow
				}
			}
			// insertion states (gap in sequence 1); a both-sides gap
			// region is canonically deletion-first, so the pair cost is
			// charged when an insertion opens from a deletion state
			for p, piece := range gap.InsPieces {
				open := x.matAt(i, j-1) - piece.Open
				if gap.PairCost < seal.INF {
					alt := x.maxDelAt(i, j-1) - piece.Open - gap.PairCost
					if alt > open {
						open = alt
					}
				}
				ext := x.insAt(p, i, j-1)
				v := open
				if ext > v {
					v = ext
				}
				if v > -seal.INF {
					x.ins[p][ij] = v - piece.Grow
				}
			}
			// match state
			if i == 0 && j == 0 {
				x.mat[ij] = 0
			} else if i > 0 && j > 0 {
				prev := x.bestAt(i-1, j-1)
				if prev > -seal.INF {
					s := x.scoreOf(i-1, j-1)
					if s > -seal.INF {
						x.mat[ij] = prev + s
					}
				}
			}

			v := x.bestAt(i, j)
			if v < x.best-maxDrop {
				// X-drop prune
				x.mat[ij] = -seal.INF
				for p := range x.del {
					x.del[p][ij] = -seal.INF
				}
				for p := range x.ins {
					x.ins[p][ij] = -seal.INF
				}
				continue
			}
			alive = true
			if newLo < 0 {
				newLo = j
			}
			newHi = j + 1
			m := x.mat[ij]
			if m > x.best {
				x.best = m
				x.bestI, x.bestJ = i, j
			}
			if globality != 0 && m > bestGlobal && atEdge(i, j) {
				bestGlobal = m
				bestGlobalI, bestGlobalJ = i, j
			}
			// grow the row along a live insertion chain
			if j+1 == rowHi && rowHi < lim2+1 && x.maxInsAt(i, j) > -seal.INF {
				rowHi++
				x.growRow(i)
			}
		}
		if !alive {
			break
		}
		lo, hi = newLo, newHi
	}

	if globality != 0 {
		if bestGlobal <= -seal.INF {
			x.tbDone = true
			return -seal.INF
		}
		x.tbDone = false
		x.tbI, x.tbJ = bestGlobalI, bestGlobalJ
		return bestGlobal
	}
	x.tbDone = false
	x.tbI, x.tbJ = x.bestI, x.bestJ
	return x.best
}

func (x *XdropAligner) maxInsAt(i, j int) int {
	b := -seal.INF
	for p := range x.ins {
		if v := x.insAt(p, i, j); v > b {
			b = v
		}
	}
	return b
}

func (x *XdropAligner) growRow(i int) {
	x.rowHi[i]++
	x.mat = append(x.mat, -seal.INF)
	for p := range x.del {
		x.del[p] = append(x.del[p], -seal.INF)
	}
	for p := range x.ins {
		x.ins[p] = append(x.ins[p], -seal.INF)
	}
}

// NextChunk reports the next ungapped block of the best path, from the
// far end of the extension back toward the anchor. end1 and end2 are the
// chunk's far-end coordinates measured outward from the anchor.
func (x *XdropAligner) NextChunk() (end1, end2, size int, ok bool) {
	if x.tbDone {
		return 0, 0, 0, false
	}
	i, j := x.tbI, x.tbJ
	if i == 0 && j == 0 {
		x.tbDone = true
		return 0, 0, 0, false
	}
	end1, end2 = i, j
	// consume diagonal steps
	for i > 0 && j > 0 {
		here := x.matAt(i, j)
		prevBest := x.bestAt(i-1, j-1)
		if here == -seal.INF || prevBest+x.scoreOf(i-1, j-1) != here {
			break
		}
		i--
		j--
		if x.matAt(i, j) != prevBest {
			// path continues from a gap state at (i, j)
			break
		}
		if i == 0 && j == 0 {
			break
		}
	}
	size = end1 - i
	if size == 0 {
		// should not happen: the best path always ends on a match
		log.Panicf("xdrop traceback stuck at (%d,%d)", i, j)
	}
	if i == 0 && j == 0 {
		x.tbDone = true
		x.tbI, x.tbJ = 0, 0
		return end1, end2, size, true
	}
	// walk the gap states back to the previous match cell
	i, j = x.walkGaps(i, j)
	x.tbI, x.tbJ = i, j
	if i == 0 && j == 0 {
		x.tbDone = true
	}
	return end1, end2, size, true
}

// walkGaps follows deletion/insertion states from a cell whose best
// value is not in the match state, returning the match-state cell where
// the gap run opened.
func (x *XdropAligner) walkGaps(i, j int) (int, int) {
	gap := x.gap
	v := x.bestAt(i, j)
	if x.matAt(i, j) == v {
		return i, j
	}
	// find which gap state holds v, preferring insertions so that the
	// deletion-first canonical order is reproduced in reverse
	for p := range gap.InsPieces {
		if x.insAt(p, i, j) == v {
			return x.walkIns(p, i, j)
		}
	}
	for p := range gap.DelPieces {
		if x.delAt(p, i, j) == v {
			return x.walkDel(p, i, j)
		}
	}
	log.Panicf("xdrop traceback lost at (%d,%d)", i, j)
	return 0, 0
}

func (x *XdropAligner) walkIns(p, i, j int) (int, int) {
	piece := x.gap.InsPieces[p]
	for {
		v := x.insAt(p, i, j)
		if x.insAt(p, i, j-1) == v+piece.Grow {
			j--
			continue
		}
		if x.matAt(i, j-1) == v+piece.Grow+piece.Open {
			return i, j - 1
		}
		if x.gap.PairCost < seal.INF {
			want := v + piece.Grow + piece.Open + x.gap.PairCost
			for q := range x.gap.DelPieces {
				if x.delAt(q, i, j-1) == want {
					return x.walkDel(q, i, j-1)
				}
			}
		}
		log.Panicf("xdrop insertion traceback lost at (%d,%d)", i, j)
	}
}

func (x *XdropAligner) walkDel(p, i, j int) (int, int) {
	piece := x.gap.DelPieces[p]
	for {
		v := x.delAt(p, i, j)
		if x.delAt(p, i-1, j) == v+piece.Grow {
			i--
			continue
		}
		if x.matAt(i-1, j) == v+piece.Grow+piece.Open {
			return i - 1, j
		}
		log.Panicf("xdrop deletion traceback lost at (%d,%d)", i, j)
	}
}
