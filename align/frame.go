package align

import (
	"log"
	"math"

	"github.com/sealkit/seal"
)

// FrameAligner extends a protein-versus-DNA alignment in one direction.
// Sequence 1 is protein. Sequence 2 is the translated DNA laid out
// frame-major (frameSize translated letters per frame); the aligner is
// given the translated positions of DNA offsets 0, 1 and 2 from the
// anchor and addresses codons through them. Rows count protein letters,
// columns count DNA bases consumed outward from the anchor.
//
// Align3 implements the classic model: codon steps of 2 or 4 DNA bases
// cost FrameshiftCost. AlignFrame implements the newer probabilistic
// model with steps of 1, 2, 4 and 5 bases costing FrameshiftCost
// (for +-1) or Frameshift2Cost (for +-2).
type FrameAligner struct {
	seq1, seq2 []byte
	start1     int
	tFrame     [3]int // translated index of DNA offsets 0,1,2
	isForward  bool
	max1, max2 int // protein letters, DNA bases reachable

	matrix  *seal.ScoreMatrix
	gap     *seal.GapCosts
	maxDrop int
	steps   []frameStep

	rowLo, rowHi, rowOrigin []int
	numRows                 int

	mat  []int
	del  []int
	ins  []int
	best int
	bestI, bestD int

	tbI, tbD int
	tbDone   bool

	// probabilistic layer
	lambda           float64
	probMat          [][]float64
	delInit, delNext float64
	insInit, insNext float64
	stepProb         []float64
	fM, fD, fI       []float64
	bM, bD, bI       []float64
	z                float64
}

type frameStep struct {
	dna  int // DNA bases consumed
	cost int // frameshift penalty
}

func (f *FrameAligner) ch1(i int) byte {
	if f.isForward {
		return f.seq1[f.start1+i]
	}
	return f.seq1[f.start1-1-i]
}

// aa2 is the translated letter of the codon whose start lies s DNA
// bases outward from the anchor. tFrame holds the translated positions
// of DNA offsets 0, 1 and 2 in the extension direction.
func (f *FrameAligner) aa2(s int) byte {
	t := f.tFrame[s%3]
	if f.isForward {
		return f.seq2[t+s/3]
	}
	return f.seq2[t-s/3]
}

// codonStart is the outward offset of the codon consumed by a step of
// width dna arriving at column d. Forward extension reads the codon at
// the old frontier; reverse extension reads it at the new frontier.
func (f *FrameAligner) codonStart(d, dna int) int {
	if f.isForward {
		return d - dna
	}
	return d
}

func (f *FrameAligner) setLimits(len1 int) {
	if f.isForward {
		f.max1 = len1 - f.start1
	} else {
		f.max1 = f.start1
	}
	// DNA limit: the shortest frame bounds it
	m := seal.INF
	for k := 0; k < 3; k++ {
		var n int
		if f.isForward {
			n = (len(f.seq2)-f.tFrame[k])*3 + k
		} else {
			n = f.tFrame[k]*3 + k
		}
		if n < m {
			m = n
		}
	}
	f.max2 = m
}

// Align3 extends with the classic frameshift model and returns the best
// extension score.
func (f *FrameAligner) Align3(seq1, seq2 []byte, start1 int, tFrame [3]int,
	isForward bool, matrix *seal.ScoreMatrix, gap *seal.GapCosts,
	maxDrop int) int {

	f.steps = []frameStep{
		{3, 0},
		{2, gap.FrameshiftCost},
		{4, gap.FrameshiftCost},
	}
	return f.align(seq1, seq2, start1, tFrame, isForward, matrix, gap, maxDrop)
}

// AlignFrame extends with the newer frameshift model.
func (f *FrameAligner) AlignFrame(seq1, seq2 []byte, start1 int, tFrame [3]int,
	isForward bool, matrix *seal.ScoreMatrix, gap *seal.GapCosts,
	maxDrop int) int {

	f.steps = []frameStep{
		{3, 0},
		{2, gap.FrameshiftCost},
		{4, gap.FrameshiftCost},
		{1, gap.Frameshift2Cost},
		{5, gap.Frameshift2Cost},
	}
	return f.align(seq1, seq2, start1, tFrame, isForward, matrix, gap, maxDrop)
}

func (f *FrameAligner) align(seq1, seq2 []byte, start1 int, tFrame [3]int,
	isForward bool, matrix *seal.ScoreMatrix, gap *seal.GapCosts,
	maxDrop int) int {

	f.seq1, f.seq2 = seq1, seq2
	f.start1 = start1
	f.tFrame = tFrame
	f.isForward = isForward
	f.matrix = matrix
	f.gap = gap
	f.maxDrop = maxDrop
	f.setLimits(len(seq1))

	f.rowLo = f.rowLo[:0]
	f.rowHi = f.rowHi[:0]
	f.rowOrigin = f.rowOrigin[:0]
	f.mat = f.mat[:0]
	f.del = f.del[:0]
	f.ins = f.ins[:0]
	f.numRows = 0
	f.best = 0
	f.bestI, f.bestD = 0, 0
	f.tbDone = true

	del := gap.DelPieces[0]
	ins := gap.InsPieces[0]
	maxStep := 0
	for _, s := range f.steps {
		if s.dna > maxStep {
			maxStep = s.dna
		}
	}

	lo, hi := 0, 1
	for i := 0; i <= f.max1; i++ {
		if i > 0 && i < f.max1 && f.ch1(i-1) == seal.SequenceEndSentinel {
			break
		}
		rowHi := hi + maxStep
		if rowHi > f.max2+1 {
			rowHi = f.max2 + 1
		}
		if lo >= rowHi {
			break
		}
		f.addRow(lo, rowHi)

		alive := false
		newLo, newHi := -1, -1
		for d := lo; d < rowHi; d++ {
			id := f.cell(i, d)

			open := f.matAt(i-1, d) - del.Open
			ext := f.delAt(i-1, d)
			if ext > open {
				open = ext
			}
			if open > -seal.INF {
				f.del[id] = open - del.Grow
			}

			open = f.matAt(i, d-3) - ins.Open
			ext = f.insAt(i, d-3)
			if ext > open {
				open = ext
			}
			if open > -seal.INF {
				f.ins[id] = open - ins.Grow
			}

			if i == 0 && d == 0 {
				f.mat[id] = 0
			} else if i > 0 {
				v := -seal.INF
				for _, st := range f.steps {
					if d < st.dna {
						continue
					}
					prev := f.bestAt(i-1, d-st.dna)
					if prev <= -seal.INF {
						continue
					}
					a := f.ch1(i - 1)
					b := f.aa2(f.codonStart(d, st.dna))
					s := matrix.Rows[a][b]
					if s <= -seal.INF {
						continue
					}
					if w := prev + s - st.cost; w > v {
						v = w
					}
				}
				if v > -seal.INF {
					f.mat[id] = v
				}
			}

			v := f.bestAt(i, d)
			if v < f.best-maxDrop {
				f.mat[id] = -seal.INF
				f.del[id] = -seal.INF
				f.ins[id] = -seal.INF
				continue
			}
			alive = true
			if newLo < 0 {
				newLo = d
			}
			newHi = d + 1
			if m := f.mat[id]; m > f.best {
				f.best = m
				f.bestI, f.bestD = i, d
			}
			if d+1 == rowHi && rowHi < f.max2+1 && f.ins[id] > -seal.INF {
				rowHi++
				f.growRow(i)
			}
		}
		if !alive {
			break
		}
		lo, hi = newLo, newHi
	}

	f.tbDone = false
	f.tbI, f.tbD = f.bestI, f.bestD
	return f.best
}

func (f *FrameAligner) addRow(lo, hi int) {
	n := hi - lo
	f.rowLo = append(f.rowLo, lo)
	f.rowHi = append(f.rowHi, hi)
	f.rowOrigin = append(f.rowOrigin, len(f.mat)-lo)
	for k := 0; k < n; k++ {
		f.mat = append(f.mat, -seal.INF)
		f.del = append(f.del, -seal.INF)
		f.ins = append(f.ins, -seal.INF)
	}
	f.numRows++
}

func (f *FrameAligner) growRow(i int) {
	f.rowHi[i]++
	f.mat = append(f.mat, -seal.INF)
	f.del = append(f.del, -seal.INF)
	f.ins = append(f.ins, -seal.INF)
}

func (f *FrameAligner) cell(i, d int) int { return f.rowOrigin[i] + d }

func (f *FrameAligner) inBand(i, d int) bool {
	return i >= 0 && i < f.numRows && d >= f.rowLo[i] && d < f.rowHi[i]
}

func (f *FrameAligner) matAt(i, d int) int {
	if !f.inBand(i, d) {
		return -seal.INF
	}
	return f.mat[f.cell(i, d)]
}

func (f *FrameAligner) delAt(i, d int) int {
	if !f.inBand(i, d) {
		return -seal.INF
	}
	return f.del[f.cell(i, d)]
}

func (f *FrameAligner) insAt(i, d int) int {
	if !f.inBand(i, d) {
		return -seal.INF
	}
	return f.ins[f.cell(i, d)]
}

func (f *FrameAligner) bestAt(i, d int) int {
	b := f.matAt(i, d)
	if v := f.delAt(i, d); v > b {
		b = v
	}
	if v := f.insAt(i, d); v > b {
		b = v
	}
	return b
}

// NextChunk reports the next ungapped block of the best path, far end
// first. end2 is in DNA bases outward from the anchor; size counts
// protein letters. gapCost is the cost of the gap following the chunk
// (zero for the final chunk), for the newer frameshift model's block
// bookkeeping.
func (f *FrameAligner) NextChunk() (end1, end2, size, gapCost int, ok bool) {
	if f.tbDone {
		return 0, 0, 0, 0, false
	}
	i, d := f.tbI, f.tbD
	if i == 0 && d == 0 {
		f.tbDone = true
		return 0, 0, 0, 0, false
	}
	end1, end2 = i, d
	for i > 0 && d > 0 {
		here := f.matAt(i, d)
		if here <= -seal.INF {
			break
		}
		prev := f.bestAt(i-1, d-3)
		a := f.ch1(i - 1)
		if d >= 3 && prev > -seal.INF &&
			prev+f.matrix.Rows[a][f.aa2(f.codonStart(d, 3))] == here {
			// plain codon step
			i--
			d -= 3
			if f.matAt(i, d) != prev {
				break
			}
			continue
		}
		break
	}
	size = end1 - i
	if size == 0 {
		log.Panicf("frame traceback stuck at (%d,%d)", i, d)
	}
	if i == 0 && d == 0 {
		f.tbDone = true
		return end1, end2, size, 0, true
	}
	var cost int
	i, d, cost = f.walkJunction(i, d)
	f.tbI, f.tbD = i, d
	if i == 0 && d == 0 {
		f.tbDone = true
	}
	return end1, end2, size, cost, true
}

// walkJunction follows the non-codon-step provenance of a match cell:
// a frameshifted codon step, or a run of gap states.
func (f *FrameAligner) walkJunction(i, d int) (int, int, int) {
	here := f.matAt(i, d)
	if here > -seal.INF && i > 0 {
		a := f.ch1(i - 1)
		for _, st := range f.steps {
			if st.cost == 0 || d < st.dna {
				continue
			}
			prev := f.bestAt(i-1, d-st.dna)
			if prev > -seal.INF &&
				prev+f.matrix.Rows[a][f.aa2(f.codonStart(d, st.dna))]-st.cost == here {
				// shifted codon: report the junction, resume before it
				return f.resolveState(i-1, d-st.dna, st.cost)
			}
		}
	}
	return f.resolveState(i, d, 0)
}

// resolveState walks gap states starting at (i, d) until a match cell,
// accumulating the gap's cost into the junction cost.
func (f *FrameAligner) resolveState(i, d, cost int) (int, int, int) {
	del := f.gap.DelPieces[0]
	ins := f.gap.InsPieces[0]
	v := f.bestAt(i, d)
	if f.matAt(i, d) == v {
		return i, d, cost
	}
	if f.insAt(i, d) == v {
		for {
			cost += ins.Grow
			if f.insAt(i, d-3) == v+ins.Grow {
				d -= 3
				v = f.insAt(i, d)
				continue
			}
			cost += ins.Open
			d -= 3
			break
		}
		if f.matAt(i, d) <= -seal.INF {
			log.Panicf("frame insertion traceback lost at (%d,%d)", i, d)
		}
		return i, d, cost
	}
	if f.delAt(i, d) != v {
		log.Panicf("frame gap traceback lost at (%d,%d)", i, d)
	}
	for {
		cost += del.Grow
		if f.delAt(i-1, d) == v+del.Grow {
			i--
			v = f.delAt(i, d)
			continue
		}
		cost += del.Open
		i--
		break
	}
	if f.matAt(i, d) <= -seal.INF {
		log.Panicf("frame deletion traceback lost at (%d,%d)", i, d)
	}
	return i, d, cost
}

// Forward fills the forward table for the probabilistic frameshift
// model and returns the natural log of the partition function.
// stepProbs are keyed like the Align steps: probMat for codon columns,
// and each frameshift step's penalty folded in via lambda.
func (f *FrameAligner) Forward(probMat [][]float64, lambda float64) float64 {
	f.probMat = probMat
	f.lambda = lambda
	del := f.gap.DelPieces[0]
	ins := f.gap.InsPieces[0]
	f.delInit = math.Exp(-float64(del.Open+del.Grow) * lambda)
	f.delNext = math.Exp(-float64(del.Grow) * lambda)
	f.insInit = math.Exp(-float64(ins.Open+ins.Grow) * lambda)
	f.insNext = math.Exp(-float64(ins.Grow) * lambda)
	f.stepProb = f.stepProb[:0]
	for _, st := range f.steps {
		f.stepProb = append(f.stepProb, math.Exp(-float64(st.cost)*lambda))
	}

	f.fM = resizeFloats(f.fM, len(f.mat))
	f.fD = resizeFloats(f.fD, len(f.mat))
	f.fI = resizeFloats(f.fI, len(f.mat))

	z := 0.0
	for i := 0; i < f.numRows; i++ {
		for d := f.rowLo[i]; d < f.rowHi[i]; d++ {
			id := f.cell(i, d)
			if i == 0 && d == 0 {
				f.fM[id] = 1
			} else if i > 0 {
				sum := 0.0
				for k, st := range f.steps {
					if d < st.dna {
						continue
					}
					prev := f.fAllAt(i-1, d-st.dna)
					if prev <= 0 {
						continue
					}
					sum += prev * f.probMat[f.ch1(i-1)][f.aa2(f.codonStart(d, st.dna))] *
						f.stepProb[k]
				}
				f.fM[id] = sum
			}
			f.fD[id] = f.fAt(f.fM, i-1, d)*f.delInit + f.fAt(f.fD, i-1, d)*f.delNext
			f.fI[id] = f.fAt(f.fM, i, d-3)*f.insInit + f.fAt(f.fI, i, d-3)*f.insNext
			z += f.fM[id]
		}
	}
	f.z = z
	if z <= 0 {
		return -math.MaxFloat64
	}
	return math.Log(z)
}

// Backward fills the backward table; Forward must have run first.
func (f *FrameAligner) Backward() {
	f.bM = resizeFloats(f.bM, len(f.mat))
	f.bD = resizeFloats(f.bD, len(f.mat))
	f.bI = resizeFloats(f.bI, len(f.mat))

	for i := f.numRows - 1; i >= 0; i-- {
		for d := f.rowHi[i] - 1; d >= f.rowLo[i]; d-- {
			id := f.cell(i, d)
			diag := 0.0
			if i < f.max1 && f.ch1(i) != seal.SequenceEndSentinel {
				for k, st := range f.steps {
					if d+st.dna > f.max2 {
						continue
					}
					next := f.fAt(f.bM, i+1, d+st.dna)
					if next <= 0 {
						continue
					}
					b := f.aa2(f.codonStart(d+st.dna, st.dna))
					diag += f.probMat[f.ch1(i)][b] * f.stepProb[k] * next
				}
			}
			f.bM[id] = 1 + diag + f.delInit*f.fAt(f.bD, i+1, d) +
				f.insInit*f.fAt(f.bI, i, d+3)
			f.bD[id] = diag + f.delNext*f.fAt(f.bD, i+1, d)
			f.bI[id] = diag + f.insNext*f.fAt(f.bI, i, d+3)
		}
	}
}

func (f *FrameAligner) fAt(buf []float64, i, d int) float64 {
	if !f.inBand(i, d) {
		return 0
	}
	return buf[f.cell(i, d)]
}

func (f *FrameAligner) fAllAt(i, d int) float64 {
	return f.fAt(f.fM, i, d) + f.fAt(f.fD, i, d) + f.fAt(f.fI, i, d)
}

// MatchProb is the posterior probability that protein letter i aligns
// to the codon at DNA offset d (both outward from the anchor).
func (f *FrameAligner) MatchProb(i, d int) float64 {
	if f.z <= 0 {
		return 0
	}
	p := f.fAt(f.fM, i+1, d+3) * f.fAt(f.bM, i+1, d+3) / f.z
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Count accumulates expected substitution and transition counts. The
// nine transition slots are: codon steps, deletion opens, deletion
// extensions, insertion opens, insertion extensions, then one slot per
// frameshift step in Align order (-1, +1, -2, +2).
func (f *FrameAligner) Count(subsCounts [][]float64, tranCounts []float64) {
	if f.z <= 0 {
		return
	}
	for i := 0; i < f.numRows; i++ {
		for d := f.rowLo[i]; d < f.rowHi[i]; d++ {
			id := f.cell(i, d)
			if i < f.max1 && f.ch1(i) != seal.SequenceEndSentinel {
				a := f.ch1(i)
				from := f.fM[id] + f.fD[id] + f.fI[id]
				if from > 0 {
					for k, st := range f.steps {
						if d+st.dna > f.max2 {
							continue
						}
						next := f.fAt(f.bM, i+1, d+st.dna)
						if next <= 0 {
							continue
						}
						b := f.aa2(f.codonStart(d+st.dna, st.dna))
						p := from * f.probMat[a][b] * f.stepProb[k] * next / f.z
						subsCounts[a][b] += p
						slot := 0
						if k > 0 {
							slot = 4 + k
						}
						tranCounts[slot] += p
					}
				}
			}
			dNext := f.fAt(f.bD, i+1, d)
			if dNext > 0 {
				tranCounts[1] += f.fM[id] * f.delInit * dNext / f.z
				tranCounts[2] += f.fD[id] * f.delNext * dNext / f.z
			}
			iNext := f.fAt(f.bI, i, d+3)
			if iNext > 0 {
				tranCounts[3] += f.fM[id] * f.insInit * iNext / f.z
				tranCounts[4] += f.fI[id] * f.insNext * iNext / f.z
			}
		}
	}
}

func resizeFloats(buf []float64, n int) []float64 {
	if cap(buf) < n {
		buf = make([]float64, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = 0
	}
	return buf
}
