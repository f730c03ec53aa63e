package split

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sealkit/seal"
)

// NumQualCodes is the number of distinct quality codes the substitution
// tables are resolved to.
const NumQualCodes = 64

const spliceTableCap = 256 * 256 * 64

// Params is the read-only parameter bundle of the split aligner. Build
// it once with the Set methods, then share it freely between workers.
type Params struct {
	DelOpenScore int
	DelGrowScore int
	InsOpenScore int
	InsGrowScore int
	JumpScore    int
	RestartScore int
	Scale        float64
	QualityOffset int

	JumpProb    float64
	RestartProb float64

	SplicePrior  float64
	MeanLogDist  float64
	SdevLogDist  float64
	MaxSpliceDist int

	spliceTerm1   float64
	spliceTerm2   float64
	maxSpliceScore int
	spliceTableSize int
	spliceScoreTable []int
	spliceProbTable  []float64

	// dinucleotide signal tables; entries 0..16 are the forward splice
	// orientation, 17..33 the reverse
	spliceBegScores [17 * 2]int
	spliceEndScores [17 * 2]int
	spliceBegProbs  [17 * 2]float64
	spliceEndProbs  [17 * 2]float64
	maxSpliceBegEndScore int

	substitutionMatrix *[2][64][64][NumQualCodes]int
	MaxMatchScore      int

	Genome   *seal.Genome
	Alphabet *seal.Alphabet
}

func (p *Params) scaledExp(score int) float64 {
	return math.Exp(float64(score) / p.Scale)
}

// IsSpliced reports whether jumps between candidate alignments are
// allowed at all.
func (p *Params) IsSpliced() bool { return p.JumpProb > 0 || p.SplicePrior > 0 }

// IsSpliceCoords reports whether genomic coordinates take part in
// splice scoring.
func (p *Params) IsSpliceCoords() bool { return p.SplicePrior > 0 }

// IsGenome reports whether dinucleotide splice signals are in use.
func (p *Params) IsGenome() bool { return p.Genome != nil }

// SetParams fixes the gap, jump and restart scores. scale converts
// between scores and probability ratios: prob = exp(score/scale).
func (p *Params) SetParams(delOpen, delGrow, insOpen, insGrow,
	jump, restart int, scale float64, qualityOffset int) {

	p.DelOpenScore = delOpen
	p.DelGrowScore = delGrow
	p.InsOpenScore = insOpen
	p.InsGrowScore = insGrow
	p.JumpScore = jump
	p.RestartScore = restart
	p.Scale = scale
	p.QualityOffset = qualityOffset
	p.JumpProb = p.scaledExp(jump)
	p.RestartProb = p.scaledExp(restart)
}

// SpliceScore is the score for a cis-splice over the given distance.
func (p *Params) SpliceScore(dist int) int {
	if dist < p.spliceTableSize {
		return p.spliceScoreTable[dist]
	}
	return p.calcSpliceScore(float64(dist))
}

// SpliceProb is the probability counterpart of SpliceScore.
func (p *Params) SpliceProb(dist int) float64 {
	if dist < p.spliceTableSize {
		return p.spliceProbTable[dist]
	}
	return p.scaledExp(p.calcSpliceScore(float64(dist)))
}

func (p *Params) calcSpliceScore(dist float64) int {
	logDist := math.Log(dist)
	d := logDist - p.MeanLogDist
	s := p.spliceTerm1 + p.spliceTerm2*d*d - logDist
	return int(math.Floor(p.Scale*s + 0.5))
}

// SetSpliceParams fixes the log-normal intron-length model. The score
// of a splice of length d is scale * ln(splicePrior * lognormal(d)),
// rounded; MaxSpliceDist is set where that score sinks below JumpScore.
func (p *Params) SetSpliceParams(splicePrior, meanLogDist, sdevLogDist float64) {
	p.SplicePrior = splicePrior
	p.MeanLogDist = meanLogDist
	p.SdevLogDist = sdevLogDist

	if splicePrior <= 0 {
		return
	}

	dist := distuv.LogNormal{Mu: meanLogDist, Sigma: sdevLogDist}
	s2 := sdevLogDist * sdevLogDist
	p.spliceTerm1 = -math.Log(sdevLogDist*math.Sqrt(2*math.Pi)/splicePrior)
	p.spliceTerm2 = -0.5 / s2

	// the mode of the distribution gives the best possible score
	mode := math.Exp(meanLogDist - s2)
	best := math.Log(splicePrior * dist.Prob(mode))
	max2 := int(math.Floor(p.Scale*best + 0.5))
	p.maxSpliceScore = max2
	if p.JumpScore > p.maxSpliceScore {
		p.maxSpliceScore = p.JumpScore
	}

	// ignore splices scoring worse than JumpScore, by solving
	// spliceTerm1 + spliceTerm2*(logDist-mean)^2 - logDist = (jump-0.5)/scale:
	// past that root the rounded score is below JumpScore
	r := s2 + 2*(p.spliceTerm1-meanLogDist-(float64(p.JumpScore)-0.5)/p.Scale)
	if r < 0 {
		p.MaxSpliceDist = 0
	} else {
		logMode := meanLogDist - s2
		maxLogDist := logMode + sdevLogDist*math.Sqrt(r)
		maxDist := math.Exp(maxLogDist)
		p.MaxSpliceDist = math.MaxInt
		if maxDist < float64(p.MaxSpliceDist) {
			p.MaxSpliceDist = int(math.Floor(maxDist))
		}
	}

	p.spliceTableSize = spliceTableCap
	if p.MaxSpliceDist < p.spliceTableSize {
		p.spliceTableSize = p.MaxSpliceDist
	}
	p.spliceScoreTable = make([]int, p.spliceTableSize)
	p.spliceProbTable = make([]float64, p.spliceTableSize)
	for i := 1; i < p.spliceTableSize; i++ {
		s := int(math.Floor(p.Scale*math.Log(splicePrior*dist.Prob(float64(i))) + 0.5))
		p.spliceScoreTable[i] = s
		p.spliceProbTable[i] = p.scaledExp(s)
	}
}

func scoreFromProb(prob, scale float64) int {
	return int(math.Floor(scale*math.Log(prob) + 0.5))
}

// SetSpliceSignals fills the donor/acceptor dinucleotide tables. The
// non-GT-AG values are unnaturally high, to allow for various kinds of
// error. Only relative values matter: the overall splice probability is
// set by SplicePrior.
func (p *Params) SetSpliceSignals() {
	dGT := 0.95
	dGC := 0.02
	dAT := 0.004
	dNN := 0.002

	aAG := 0.968
	aAC := 0.004
	aNN := 0.002

	// assume roughly equal 1/16 dinucleotide abundances
	dAvg := (dGT + dGC + dAT + dNN*13) / 16
	aAvg := (aAG + aAC + aNN*14) / 16

	for i := 0; i < 17*2; i++ {
		p.spliceBegScores[i] = scoreFromProb(dNN/dAvg, p.Scale)
		p.spliceEndScores[i] = scoreFromProb(aNN/aAvg, p.Scale)
	}

	p.spliceBegScores[2*4+3] = scoreFromProb(dGT/dAvg, p.Scale)
	p.spliceBegScores[2*4+1] = scoreFromProb(dGC/dAvg, p.Scale)
	p.spliceBegScores[0*4+3] = scoreFromProb(dAT/dAvg, p.Scale)

	p.spliceEndScores[0*4+2] = scoreFromProb(aAG/aAvg, p.Scale)
	p.spliceEndScores[0*4+1] = scoreFromProb(aAC/aAvg, p.Scale)

	for i := 0; i < 16; i++ {
		j := 15 - ((i%4)*4 + i/4) // reverse-complement
		p.spliceBegScores[17+i] = p.spliceEndScores[j]
		p.spliceEndScores[17+i] = p.spliceBegScores[j]
	}

	for i := 0; i < 17*2; i++ {
		p.spliceBegProbs[i] = p.scaledExp(p.spliceBegScores[i])
		p.spliceEndProbs[i] = p.scaledExp(p.spliceEndScores[i])
	}

	p.maxSpliceBegEndScore = maxOf(p.spliceBegScores[:17]) +
		maxOf(p.spliceEndScores[:17])
}

func maxOf(v []int) int {
	m := v[0]
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

func probFromPhred(s float64) float64 { return math.Pow(10, -0.1*s) }

func generalizedScore(score, scale, phredScore, letterProb float64) int {
	r := math.Exp(score / scale)
	p := probFromPhred(phredScore)
	if p >= 1 {
		p = 0.999999 // kludge to avoid numerical instability
	}
	otherProb := 1 - letterProb
	u := p / otherProb
	x := (1-u)*r + u
	return int(math.Floor(scale*math.Log(x) + 0.5))
}

func matrixLookup(sm [][]int, rowNames, colNames string, x, y byte) int {
	r := strings.IndexByte(rowNames, x)
	c := strings.IndexByte(colNames, y)
	if r < 0 || c < 0 {
		return matrixMin(sm)
	}
	return sm[r][c]
}

func matrixMin(sm [][]int) int {
	m := sm[0][0]
	for _, row := range sm {
		for _, v := range row {
			if v < m {
				m = v
			}
		}
	}
	return m
}

func matrixMax(sm [][]int) int {
	m := sm[0][0]
	for _, row := range sm {
		for _, v := range row {
			if v > m {
				m = v
			}
		}
	}
	return m
}

const complementFwd = "ACGTRYKMBDHVacgtrykmbdhv"
const complementRev = "TGCAYRMKVHDBtgcayrmkvhdb"

func complementedMatrixIndex(i int) int {
	k := strings.IndexByte(complementFwd, byte(i+64))
	if k < 0 {
		return i
	}
	return int(complementRev[k]) - 64
}

// letterProbsFromMatrix reverse-engineers the sequence-2 letter
// abundances implied by a score matrix and scale: with
// E[a][b] = exp(score/scale), the abundances solve E * p2 = 1.
func letterProbsFromMatrix(bmat [][]int, scale float64) []float64 {
	n := len(bmat)
	e := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			e.Set(i, j, math.Exp(float64(bmat[i][j])/scale))
		}
	}
	ones := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		ones.SetVec(i, 1)
	}
	var p2 mat.VecDense
	if err := p2.SolveVec(e, ones); err != nil {
		// fall back to uniform abundances for ill-behaved matrices
		out := make([]float64, n)
		for i := range out {
			out[i] = 1 / float64(n)
		}
		return out
	}
	out := make([]float64, n)
	for i := range out {
		v := p2.AtVec(i)
		if v < 0 {
			v = 0
		}
		if v > 0.999 {
			v = 0.999
		}
		out[i] = v
	}
	return out
}

// SetScoreMat resolves a letter-pair score matrix into the full
// quality-aware substitution tables, for both query orientations.
// isQrySeq tells whether sequence 2 keeps its own orientation in
// flipped alignments; otherwise the complemented matrix is used.
func (p *Params) SetScoreMat(sm [][]int, rowNames, colNames string, isQrySeq bool) {
	const bases = seal.DNA

	if p.substitutionMatrix == nil {
		p.substitutionMatrix = new([2][64][64][NumQualCodes]int)
	}

	// reverse-engineer the abundances of ACGT from the score matrix:
	blen := len(bases)
	bmat := make([][]int, blen)
	for i := range bmat {
		bmat[i] = make([]int, blen)
		for j := range bmat[i] {
			bmat[i][j] = matrixLookup(sm, rowNames, colNames, bases[i], bases[j])
		}
	}
	p2 := letterProbsFromMatrix(bmat, p.Scale)

	for i := 64; i < 128; i++ {
		x := upper(byte(i))
		for j := 64; j < 128; j++ {
			y := upper(byte(j))
			score := matrixLookup(sm, rowNames, colNames, x, y)
			xc := strings.IndexByte(bases, x)
			yc := strings.IndexByte(bases, y)
			for q := 0; q < NumQualCodes; q++ {
				v := score
				if xc >= 0 && yc >= 0 {
					v = generalizedScore(float64(score), p.Scale, float64(q), p2[yc])
				}
				p.substitutionMatrix[0][i%64][j%64][q] = v
			}
		}
	}

	for i := 0; i < 64; i++ {
		for j := 0; j < 64; j++ {
			x, y := i, j
			if !isQrySeq {
				x = complementedMatrixIndex(i)
				y = complementedMatrixIndex(j)
			}
			p.substitutionMatrix[1][i][j] = p.substitutionMatrix[0][x][y]
		}
	}

	p.MaxMatchScore = matrixMax(sm)
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 32
	}
	return c
}

// SubstitutionScore scores reference letter x against query letter y
// with quality code q, for the given orientation.
func (p *Params) SubstitutionScore(isFlipped bool, x, y byte, q int) int {
	k := 0
	if isFlipped {
		k = 1
	}
	if q < 0 {
		q = 0
	}
	if q >= NumQualCodes {
		q = NumQualCodes - 1
	}
	return p.substitutionMatrix[k][x%64][y%64][q]
}

// dpExtensionMinScores gives the score thresholds that bound how far
// the DP must extend past each candidate's ends (spec of the jump
// scenarios the extension must be able to pay for).
func (p *Params) dpExtensionMinScores() (minScore1, minScore2 int, ok bool) {
	if p.JumpProb > 0 || p.SplicePrior > 0 {
		maxJumpScore := p.JumpScore
		if p.SplicePrior > 0 {
			maxJumpScore = p.maxSpliceScore
		}
		if p.IsGenome() {
			maxJumpScore += p.maxSpliceBegEndScore
		}
		if maxJumpScore+p.InsOpenScore > 0 {
			panic("bad jump or insertion-open score")
		}
		return 1 - (maxJumpScore + p.InsOpenScore),
			1 - (maxJumpScore + maxJumpScore + p.InsOpenScore), true
	}
	return 0, 0, false
}

// SeqEnds resolves a reference sequence name via the genome.
func (p *Params) SeqEnds(seqName string) (beg, end int, seq seal.PackedSeq, err error) {
	return p.Genome.SeqEnds(seqName)
}

func decodeOneBase(decode *[seal.ScoreMatrixRowSize]byte, x byte) byte {
	if x == seal.SequenceEndSentinel {
		return 'N'
	}
	return decode[x]
}

func (p *Params) decodeSpliceSignal(out []byte, s0, s1 byte, isSameStrand bool) {
	a := p.Alphabet
	if isSameStrand {
		out[0] = decodeOneBase(&a.Decode, s0)
		out[1] = decodeOneBase(&a.Decode, s1)
	} else {
		out[0] = decodeOneBase(&a.Decode, a.Complement[s1])
		out[1] = decodeOneBase(&a.Decode, a.Complement[s0])
	}
}

func getNextSignal(seq seal.PackedSeq, pos int) (byte, byte) {
	b0 := seq.At(pos)
	if b0 == seal.SequenceEndSentinel {
		return b0, seal.SequenceEndSentinel
	}
	return b0, seq.At(pos + 1)
}

func getPrevSignal(seq seal.PackedSeq, pos int) (byte, byte) {
	b1 := seq.At(pos - 1)
	if b1 == seal.SequenceEndSentinel {
		return seal.SequenceEndSentinel, b1
	}
	return seq.At(pos - 2), b1
}

// SpliceBegSignal writes the two letters just downstream of a splice
// donor site into out.
func (p *Params) SpliceBegSignal(out []byte, seqName string,
	isForwardStrand, isSenseStrand bool, coord int) error {

	seqBeg, seqEnd, seq, err := p.SeqEnds(seqName)
	if err != nil {
		return err
	}
	var s0, s1 byte
	if isForwardStrand {
		s0, s1 = getNextSignal(seq, seqBeg+coord)
	} else {
		s0, s1 = getPrevSignal(seq, seqEnd-coord)
	}
	p.decodeSpliceSignal(out, s0, s1, isSenseStrand == isForwardStrand)
	return nil
}

// SpliceEndSignal writes the two letters just upstream of a splice
// acceptor site into out.
func (p *Params) SpliceEndSignal(out []byte, seqName string,
	isForwardStrand, isSenseStrand bool, coord int) error {

	seqBeg, seqEnd, seq, err := p.SeqEnds(seqName)
	if err != nil {
		return err
	}
	var s0, s1 byte
	if isForwardStrand {
		s0, s1 = getPrevSignal(seq, seqBeg+coord)
	} else {
		s0, s1 = getNextSignal(seq, seqEnd-coord)
	}
	p.decodeSpliceSignal(out, s0, s1, isSenseStrand == isForwardStrand)
	return nil
}

// Print writes the parameter summary lines that precede a batch of
// split alignments.
func (p *Params) Print(w io.Writer) {
	if p.JumpProb > 0 {
		fmt.Fprintf(w, "# trans=%d\n", p.JumpScore)
	}
	if p.SplicePrior > 0 && p.JumpProb > 0 {
		fmt.Fprintf(w, "# cismax=%d\n", p.MaxSpliceDist)
	}
	if p.IsGenome() {
		fmt.Fprintf(w, "# GT=%d GC=%d AT=%d NN=%d\n",
			p.spliceBegScores[2*4+3], p.spliceBegScores[2*4+1],
			p.spliceBegScores[0*4+3], p.spliceBegScores[0*4+0])
		fmt.Fprintf(w, "# AG=%d AC=%d NN=%d\n",
			p.spliceEndScores[0*4+2], p.spliceEndScores[0*4+1],
			p.spliceEndScores[0*4+0])
	}
}
