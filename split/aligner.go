package split

import (
	"fmt"
	"math"
	"sort"

	"github.com/sealkit/seal"
)

// Aligner holds the per-query state of the split dynamic program: one
// ragged matrix row per candidate alignment, with row i spanning query
// columns dpBeg(i) to dpEnd(i) inclusive. Cell (i, j) of every matrix
// lives at matrixRowOrigins[i]+j in a flat array. All state is worker-
// local; the Params it runs against are shared and read-only.
type Aligner struct {
	params *Params
	alns   []UnsplitAlignment

	dpBegs, dpEnds   []int
	matrixRowOrigins []int
	minBeg, maxEnd   int

	// per-cell score pairs: Smat[ij*2] scores the transition between
	// columns, Smat[ij*2+1] the column itself; Sexp holds their
	// probability ratios
	Smat []int
	Sexp []float64

	Vmat []int // Viterbi
	Vvec []int // per-column running maxima

	Fmat     []float64
	Bmat     []float64
	rescales []float64

	// second buffer set for the other splice-signal orientation
	VmatRev     []int
	VvecRev     []int
	FmatRev     []float64
	BmatRev     []float64
	rescalesRev []float64

	spliceBegCoords  []int
	spliceEndCoords  []int
	spliceBegSignals []byte
	spliceEndSignals []byte
	spliceSignalOff  int // 0 or 17, swapped by FlipSpliceSignals

	sortedAlnIndices    []int
	oldInplayAlnIndices []int
	newInplayAlnIndices []int

	rBegs, rEnds      []int
	rnameAndStrandIds []int

	maxCellsPerMatrix int
}

func (a *Aligner) numAlns() int    { return len(a.alns) }
func (a *Aligner) dpBeg(i int) int { return a.dpBegs[i] }
func (a *Aligner) dpEnd(i int) int { return a.dpEnds[i] }

func (a *Aligner) cell(i, j int) int { return a.matrixRowOrigins[i] + j }

// cellsPerDpMatrix is the flat size of one ragged matrix.
func (a *Aligner) cellsPerDpMatrix() int {
	n := 0
	for i := range a.dpBegs {
		n += a.dpEnd(i) - a.dpBeg(i) + 1
	}
	return n
}

// mergeInto merges sorted src into the sorted prefix buf[:n1], using
// the room past n1.
func mergeInto(buf []int, n1 int, src []int, less func(a, b int) bool) {
	end3 := n1 + len(src)
	i1 := n1
	i2 := len(src)
	for i2 > 0 {
		if i1 == 0 {
			copy(buf, src[:i2])
			break
		}
		end3--
		if less(src[i2-1], buf[i1-1]) {
			i1--
			buf[end3] = buf[i1]
		} else {
			i2--
			buf[end3] = src[i2]
		}
	}
}

// Candidate orderings, as used by the in-play maintenance.

func (a *Aligner) begLess(x, y int) bool {
	if a.dpBegs[x] != a.dpBegs[y] {
		return a.dpBegs[x] < a.dpBegs[y]
	}
	return a.dpEnds[x] > a.dpEnds[y]
}

func (a *Aligner) begLessStable(x, y int) bool {
	if a.dpBegs[x] != a.dpBegs[y] {
		return a.dpBegs[x] < a.dpBegs[y]
	}
	if a.dpEnds[x] != a.dpEnds[y] {
		return a.dpEnds[x] > a.dpEnds[y]
	}
	return x < y
}

func (a *Aligner) endLess(x, y int) bool {
	if a.dpEnds[x] != a.dpEnds[y] {
		return a.dpEnds[x] > a.dpEnds[y]
	}
	return a.dpBegs[x] < a.dpBegs[y]
}

func (a *Aligner) endLessStable(x, y int) bool {
	if a.dpEnds[x] != a.dpEnds[y] {
		return a.dpEnds[x] > a.dpEnds[y]
	}
	if a.dpBegs[x] != a.dpBegs[y] {
		return a.dpBegs[x] < a.dpBegs[y]
	}
	return x < y
}

// qBegLess orders by increasing DP start, breaking ties by chromosome
// and strand, then by increasing genomic start.
func (a *Aligner) qBegLess(x, y int) bool {
	if a.dpBegs[x] != a.dpBegs[y] {
		return a.dpBegs[x] < a.dpBegs[y]
	}
	if a.rnameAndStrandIds[x] != a.rnameAndStrandIds[y] {
		return a.rnameAndStrandIds[x] < a.rnameAndStrandIds[y]
	}
	return a.rBegs[x] < a.rBegs[y]
}

// qEndLess orders by decreasing DP end, breaking ties by chromosome and
// strand, then by decreasing genomic end.
func (a *Aligner) qEndLess(x, y int) bool {
	if a.dpEnds[x] != a.dpEnds[y] {
		return a.dpEnds[x] > a.dpEnds[y]
	}
	if a.rnameAndStrandIds[x] != a.rnameAndStrandIds[y] {
		return a.rnameAndStrandIds[x] < a.rnameAndStrandIds[y]
	}
	return a.rEnds[x] > a.rEnds[y]
}

func (a *Aligner) rBegLess(x, y int) bool {
	if a.rnameAndStrandIds[x] != a.rnameAndStrandIds[y] {
		return a.rnameAndStrandIds[x] < a.rnameAndStrandIds[y]
	}
	return a.rBegs[x] < a.rBegs[y]
}

func (a *Aligner) rEndLess(x, y int) bool {
	if a.rnameAndStrandIds[x] != a.rnameAndStrandIds[y] {
		return a.rnameAndStrandIds[x] < a.rnameAndStrandIds[y]
	}
	return a.rEnds[x] > a.rEnds[y]
}

func (a *Aligner) initRbegsAndEnds() {
	for i := range a.alns {
		a.rBegs[i] = a.alns[i].Rstart
		a.rEnds[i] = a.alns[i].Rend
	}
}

func (a *Aligner) initRnameAndStrandIds() {
	n := a.numAlns()
	a.rnameAndStrandIds = resizeInts(a.rnameAndStrandIds, n)
	less := func(x, y int) bool {
		if a.alns[x].Qstrand != a.alns[y].Qstrand {
			return a.alns[x].Qstrand < a.alns[y].Qstrand
		}
		return a.alns[x].Rname < a.alns[y].Rname
	}
	sort.SliceStable(a.sortedAlnIndices, func(x, y int) bool {
		return less(a.sortedAlnIndices[x], a.sortedAlnIndices[y])
	})
	c := 0
	for i := 0; i < n; i++ {
		k := a.sortedAlnIndices[i]
		if i > 0 && less(a.sortedAlnIndices[i-1], k) {
			c++
		}
		a.rnameAndStrandIds[k] = c
	}
}

func dpExtension(maxScore, minScore, divisor int) int {
	if maxScore > minScore {
		return (maxScore - minScore) / divisor
	}
	return 0
}

// initDpBounds widens each candidate's DP range past its aligned query
// span, far enough to admit the optimal end-gap and jump scenarios.
// The highest possible score of a length-x extension is
// x*maxMatchScore, and any extension's (negative) score is at most
// maxJumpScore + insOpenScore + insGrowScore*x.
func (a *Aligner) initDpBounds() {
	n := a.numAlns()
	a.minBeg = math.MaxInt
	a.maxEnd = 0
	for i := 0; i < n; i++ {
		if a.alns[i].Qstart < a.minBeg {
			a.minBeg = a.alns[i].Qstart
		}
		if a.alns[i].Qend > a.maxEnd {
			a.maxEnd = a.alns[i].Qend
		}
	}

	a.dpBegs = resizeInts(a.dpBegs, n)
	a.dpEnds = resizeInts(a.dpEnds, n)

	p := a.params
	maxMatchScore := p.MaxMatchScore
	if p.InsGrowScore >= 0 || maxMatchScore < 0 {
		panic("bad insertion-grow or match score")
	}
	oldDiv := -p.InsGrowScore
	newDiv := maxMatchScore - p.InsGrowScore

	minScore1, minScore2 := math.MaxInt, math.MaxInt
	if m1, m2, ok := p.dpExtensionMinScores(); ok {
		minScore1, minScore2 = m1, m2
	}

	for i := 0; i < n; i++ {
		b := a.alns[i].Qstart
		e := a.alns[i].Qend

		bo := dpExtension(maxMatchScore*(e-b), minScore1, oldDiv)
		bj := dpExtension(maxMatchScore*(a.maxEnd-b), minScore2, oldDiv)
		bn := dpExtension(maxMatchScore*(b-a.minBeg), minScore1, newDiv)
		a.dpBegs[i] = b - minInt(maxInt(bo, bj), bn)

		eo := dpExtension(maxMatchScore*(e-b), minScore1, oldDiv)
		ej := dpExtension(maxMatchScore*(e-a.minBeg), minScore2, oldDiv)
		en := dpExtension(maxMatchScore*(a.maxEnd-e), minScore1, newDiv)
		a.dpEnds[i] = e + minInt(maxInt(eo, ej), en)
	}

	// coordinate system of the ragged matrices
	a.matrixRowOrigins = resizeInts(a.matrixRowOrigins, n)
	s := 0
	for i := 0; i < n; i++ {
		s -= a.dpBeg(i)
		a.matrixRowOrigins[i] = s
		s += a.dpEnd(i) + 1
	}
}

// Layout prepares the aligner for one query's candidate alignments.
// It must run before InitMatricesForOneQuery.
func (a *Aligner) Layout(params *Params, alns []UnsplitAlignment) {
	if len(alns) == 0 {
		panic("split aligner needs at least one candidate")
	}
	a.params = params
	a.alns = alns
	n := len(alns)

	a.sortedAlnIndices = resizeInts(a.sortedAlnIndices, n)
	for i := range a.sortedAlnIndices {
		a.sortedAlnIndices[i] = i
	}
	a.newInplayAlnIndices = resizeInts(a.newInplayAlnIndices, n)

	if params.IsSpliced() {
		a.oldInplayAlnIndices = resizeInts(a.oldInplayAlnIndices, n)
		a.rBegs = resizeInts(a.rBegs, n)
		a.rEnds = resizeInts(a.rEnds, n)
		if params.IsSpliceCoords() {
			a.initRbegsAndEnds()
		}
		a.initRnameAndStrandIds()
	}

	a.initDpBounds()

	if params.IsSpliced() {
		sort.SliceStable(a.sortedAlnIndices, func(x, y int) bool {
			return a.qBegLess(a.sortedAlnIndices[x], a.sortedAlnIndices[y])
		})
	} else {
		sort.Slice(a.sortedAlnIndices, func(x, y int) bool {
			return a.begLessStable(a.sortedAlnIndices[x], a.sortedAlnIndices[y])
		})
	}
}

// calcBaseScores fills row i of Smat. Column slots hold scores at query
// bases; every base aligned to a gap gets insOpen+insGrow there, with
// -insOpen in the between slot when consecutive inserts chain, so the
// affine insertion cost comes out right even across a jump between
// candidate alignments. Deletions accumulate into the following between
// slot. Query letters outside the aligned span act as insertions.
func (a *Aligner) calcBaseScores(i int) {
	p := a.params
	delOpenScore := p.DelOpenScore
	delGrowScore := p.DelGrowScore
	insOpenScore := p.InsOpenScore
	insGrowScore := p.InsGrowScore
	firstInsScore := insOpenScore + insGrowScore
	tweenInsScore := -insOpenScore

	aln := &a.alns[i]
	origin := a.matrixRowOrigins[i]
	isRev := aln.IsFlipped()

	k := (origin + a.dpBeg(i)) * 2
	alnBegK := (origin + aln.Qstart) * 2
	endK := (origin + a.dpEnd(i)) * 2

	delScore := 0
	insCompensationScore := 0

	// query letters before the alignment are insertions:
	for k < alnBegK {
		a.Smat[k] = delScore + insCompensationScore
		k++
		a.Smat[k] = firstInsScore
		k++
		delScore = 0
		insCompensationScore = tweenInsScore
	}

	rAlign := aln.Ralign
	qAlign := aln.Qalign
	qQual := aln.QQual

	for c := 0; c < len(qAlign); c++ {
		x := rAlign[c]
		y := qAlign[c]
		q := NumQualCodes - 1
		if p.QualityOffset != 0 && qQual != "" {
			q = int(qQual[c]) - p.QualityOffset
		}
		if x == '-' { // gap in reference sequence: insertion
			a.Smat[k] = delScore + insCompensationScore
			k++
			a.Smat[k] = firstInsScore
			k++
			delScore = 0
			insCompensationScore = tweenInsScore
		} else if y == '-' { // gap in query sequence: deletion
			if delScore == 0 {
				delScore = delOpenScore
			}
			delScore += delGrowScore
			insCompensationScore = 0
		} else {
			a.Smat[k] = delScore
			k++
			a.Smat[k] = p.SubstitutionScore(isRev, x, y, q)
			k++
			delScore = 0
			insCompensationScore = 0
		}
		// amazingly, in ASCII, '.' equals 'n' mod 64,
		// so '.' gets the same scores as 'n'
	}

	// query letters after the alignment are insertions:
	for k < endK {
		a.Smat[k] = delScore + insCompensationScore
		k++
		a.Smat[k] = firstInsScore
		k++
		delScore = 0
		insCompensationScore = tweenInsScore
	}

	a.Smat[k] = delScore
}

func (a *Aligner) initSpliceCoords(i int) {
	aln := &a.alns[i]
	j := a.dpBeg(i)
	k := aln.Rstart

	a.spliceBegCoords[a.cell(i, j)] = k
	for j < aln.Qstart {
		a.spliceEndCoords[a.cell(i, j)] = k
		j++
		a.spliceBegCoords[a.cell(i, j)] = k
	}
	for x := 0; x < len(aln.Ralign); x++ {
		if aln.Qalign[x] != '-' {
			a.spliceEndCoords[a.cell(i, j)] = k
			j++
		}
		if aln.Ralign[x] != '-' {
			k++
		}
		if aln.Qalign[x] != '-' {
			a.spliceBegCoords[a.cell(i, j)] = k
		}
	}
	for j < a.dpEnd(i) {
		a.spliceEndCoords[a.cell(i, j)] = k
		j++
		a.spliceBegCoords[a.cell(i, j)] = k
	}
	a.spliceEndCoords[a.cell(i, j)] = k
}

// Splice signal codes: dinucleotides as n1*4+n2 in 0..15, or 16 when a
// base is not one of ACGT. The reverse strand reads the complement.

func spliceSignalFwd(seq seal.PackedSeq, pos int,
	toUnmasked *[seal.ScoreMatrixRowSize]byte, isBeg bool) byte {

	var n1, n2 byte
	if isBeg {
		n1 = toUnmasked[seq.At(pos)]
		if n1 >= 4 {
			return 16
		}
		n2 = toUnmasked[seq.At(pos+1)]
	} else {
		n2 = toUnmasked[seq.At(pos-1)]
		if n2 >= 4 {
			return 16
		}
		n1 = toUnmasked[seq.At(pos-2)]
	}
	if n1 >= 4 || n2 >= 4 {
		return 16
	}
	return n1*4 + n2
}

func spliceSignalRev(seq seal.PackedSeq, pos int,
	toUnmasked *[seal.ScoreMatrixRowSize]byte, isBeg bool) byte {

	var n1, n2 byte
	if isBeg {
		n1 = toUnmasked[seq.At(pos-1)]
		if n1 >= 4 {
			return 16
		}
		n2 = toUnmasked[seq.At(pos-2)]
	} else {
		n2 = toUnmasked[seq.At(pos)]
		if n2 >= 4 {
			return 16
		}
		n1 = toUnmasked[seq.At(pos+1)]
	}
	if n1 >= 4 || n2 >= 4 {
		return 16
	}
	return 15 - (n1*4 + n2) // reverse-complement
}

func (a *Aligner) initSpliceSignals(i int) error {
	p := a.params
	toUnmasked := &p.Alphabet.ToUnmasked
	aln := &a.alns[i]

	seqBeg, seqEnd, seq, err := p.SeqEnds(aln.Rname)
	if err != nil {
		return err
	}
	if aln.Rend > seqEnd-seqBeg {
		return fmt.Errorf("alignment beyond the end of %s", aln.Rname)
	}

	rowBeg := a.cell(i, a.dpBeg(i))
	dpLen := a.dpEnd(i) - a.dpBeg(i)

	if aln.IsForwardStrand() {
		for j := 0; j <= dpLen; j++ {
			a.spliceBegSignals[rowBeg+j] = spliceSignalFwd(seq,
				seqBeg+a.spliceBegCoords[rowBeg+j], toUnmasked, true)
			a.spliceEndSignals[rowBeg+j] = spliceSignalFwd(seq,
				seqBeg+a.spliceEndCoords[rowBeg+j], toUnmasked, false)
		}
	} else {
		for j := 0; j <= dpLen; j++ {
			a.spliceBegSignals[rowBeg+j] = spliceSignalRev(seq,
				seqEnd-a.spliceBegCoords[rowBeg+j], toUnmasked, true)
			a.spliceEndSignals[rowBeg+j] = spliceSignalRev(seq,
				seqEnd-a.spliceEndCoords[rowBeg+j], toUnmasked, false)
		}
	}
	return nil
}

func (a *Aligner) spliceBegScore(ij int) int {
	if !a.params.IsGenome() {
		return 0
	}
	return a.params.spliceBegScores[a.spliceSignalOff+int(a.spliceBegSignals[ij])]
}

func (a *Aligner) spliceEndScore(ij int) int {
	if !a.params.IsGenome() {
		return 0
	}
	return a.params.spliceEndScores[a.spliceSignalOff+int(a.spliceEndSignals[ij])]
}

func (a *Aligner) spliceBegProb(ij int) float64 {
	if !a.params.IsGenome() {
		return 1
	}
	return a.params.spliceBegProbs[a.spliceSignalOff+int(a.spliceBegSignals[ij])]
}

func (a *Aligner) spliceEndProb(ij int) float64 {
	if !a.params.IsGenome() {
		return 1
	}
	return a.params.spliceEndProbs[a.spliceSignalOff+int(a.spliceEndSignals[ij])]
}

// MemoryPerQuery estimates the bytes the ragged matrices will take for
// the current layout.
func (a *Aligner) MemoryPerQuery(isBothSpliceStrands bool) int {
	numOfStrands := 1
	if isBothSpliceStrands {
		numOfStrands = 2
	}
	x := 2 * 8 // score pair
	if a.params.IsSpliceCoords() {
		x += 2 * 8
	}
	if a.params.IsGenome() {
		x += 2
	}
	x += (8 + 2*8) * numOfStrands
	return x * a.cellsPerDpMatrix()
}

// InitMatricesForOneQuery sizes the ragged matrices (reusing earlier
// allocations when they are big enough), fills the base scores, and
// precomputes splice coordinates and signals.
func (a *Aligner) InitMatricesForOneQuery(isBothSpliceStrands bool) error {
	nCells := a.cellsPerDpMatrix()
	if nCells > a.maxCellsPerMatrix {
		// the final cell per row only uses its between slot
		a.Smat = make([]int, nCells*2)
		a.Sexp = make([]float64, nCells*2)
		a.Vmat = make([]int, nCells)
		a.Fmat = make([]float64, nCells)
		a.Bmat = make([]float64, nCells)
		if isBothSpliceStrands {
			a.VmatRev = make([]int, nCells)
			a.FmatRev = make([]float64, nCells)
			a.BmatRev = make([]float64, nCells)
		}
		a.maxCellsPerMatrix = nCells
	}

	vecLen := a.maxEnd - a.minBeg + 1
	a.Vvec = resizeInts(a.Vvec, vecLen)
	a.rescales = resizeFloats(a.rescales, vecLen)
	if isBothSpliceStrands {
		a.VvecRev = resizeInts(a.VvecRev, vecLen)
		a.rescalesRev = resizeFloats(a.rescalesRev, vecLen)
	}

	// a fresh query must not see values left over from the last one
	for i := 0; i < nCells; i++ {
		a.Vmat[i] = 0
		a.Fmat[i] = 0
		a.Bmat[i] = 0
	}
	if isBothSpliceStrands {
		for i := 0; i < nCells; i++ {
			a.VmatRev[i] = 0
			a.FmatRev[i] = 0
			a.BmatRev[i] = 0
		}
	}
	// alignments may only begin via a restart, jump, splice, or the
	// spliced pass's start clamp, never for free at a row's first cell
	for i := range a.alns {
		a.Vmat[a.cell(i, a.dpBeg(i))] = longMin
		if isBothSpliceStrands {
			a.VmatRev[a.cell(i, a.dpBeg(i))] = longMin
		}
	}

	for i := range a.alns {
		a.calcBaseScores(i)
	}
	for k := 0; k < nCells*2; k++ {
		a.Sexp[k] = a.params.scaledExp(a.Smat[k])
	}

	if a.params.IsSpliceCoords() {
		a.spliceBegCoords = resizeInts(a.spliceBegCoords, nCells)
		a.spliceEndCoords = resizeInts(a.spliceEndCoords, nCells)
		for i := range a.alns {
			a.initSpliceCoords(i)
		}
	}

	if a.params.IsGenome() {
		a.spliceBegSignals = resizeBytes(a.spliceBegSignals, nCells)
		a.spliceEndSignals = resizeBytes(a.spliceEndSignals, nCells)
		for i := range a.alns {
			if err := a.initSpliceSignals(i); err != nil {
				return err
			}
		}
	}
	a.spliceSignalOff = 0
	return nil
}

// FlipSpliceSignals swaps to the matrices and signal tables of the
// other splice-signal orientation.
func (a *Aligner) FlipSpliceSignals() {
	a.Vmat, a.VmatRev = a.VmatRev, a.Vmat
	a.Vvec, a.VvecRev = a.VvecRev, a.Vvec
	a.Fmat, a.FmatRev = a.FmatRev, a.Fmat
	a.Bmat, a.BmatRev = a.BmatRev, a.Bmat
	a.rescales, a.rescalesRev = a.rescalesRev, a.rescales
	a.spliceSignalOff = 17 - a.spliceSignalOff
}

// SpliceSignalStrandLogOdds sums the per-column log odds of the two
// splice-signal orientations. Unreliable if Bmat overflowed to +Inf.
func (a *Aligner) SpliceSignalStrandLogOdds() float64 {
	logOdds := 0.0
	for j := range a.rescales {
		logOdds += math.Log(a.rescalesRev[j] / a.rescales[j])
	}
	return logOdds
}

func resizeInts(v []int, n int) []int {
	if cap(v) < n {
		return make([]int, n)
	}
	return v[:n]
}

func resizeBytes(v []byte, n int) []byte {
	if cap(v) < n {
		return make([]byte, n)
	}
	return v[:n]
}

func resizeFloats(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	return v[:n]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
