package align

import (
	"log"
	"math"

	"github.com/sealkit/seal"
)

// Output types select what MakeXdrop computes beyond the max-score
// blocks: 4 adds column probabilities, 5 and 6 replace the blocks with
// gamma-centroid / LAMA tracebacks, 7 adds expected counts.
const (
	OutMaxScore      = 3
	OutColumnProbs   = 4
	OutGammaCentroid = 5
	OutLama          = 6
	OutExpectedCounts = 7
)

// Config is the immutable per-batch parameter bundle shared by every
// seed extension of a query batch.
type Config struct {
	Matrix     *seal.ScoreMatrix
	ProbMat    [][]float64 // nil disables the probabilistic pass
	Lambda     float64
	Gap        *seal.GapCosts
	MaxDrop    int
	Globality  int
	FrameSize  int
	Pssm       []seal.ScoreMatrixRow // per sequence-2 position, or nil
	QualScorer QualityScorer
	Qual1      []byte
	Qual2      []byte
	Alphabet   *seal.Alphabet
	Gamma      float64
	OutputType int
	IsFullScore bool
}

// Aligners bundles the per-worker DP scratch reused across seeds.
type Aligners struct {
	Xdrop    XdropAligner
	Centroid Centroid
	Frame    FrameAligner
}

// NewAligners wires the centroid layer to its extension band.
func NewAligners() *Aligners {
	a := &Aligners{}
	a.Centroid.X = &a.Xdrop
	return a
}

// Extras carries the optional outputs of an assembled alignment.
type Extras struct {
	ColumnAmbiguityCodes []byte
	ExpectedCounts       []float64
	FullScore            float64
}

// Alignment is a seed plus its bidirectional gapped extension.
type Alignment struct {
	Seed   seal.SegmentPair
	Blocks []seal.SegmentPair
	Score  int
	Extras Extras
}

func addSeedCounts(seq1, seq2 []byte, beg1, beg2, size int, counts []float64) {
	for i := 0; i < size; i++ {
		counts[int(seq1[beg1+i])*seal.ScoreMatrixRowSize+int(seq2[beg2+i])]++
	}
	counts[seal.ScoreMatrixRowSize*seal.ScoreMatrixRowSize] += float64(size)
}

// MakeXdrop builds the full alignment around the seed: extend left,
// rebase, merge with the seed, extend right, rebase, merge, then put
// the right half into ascending order. A score of -INF afterwards means
// the alignment was abandoned.
func (a *Alignment) MakeXdrop(al *Aligners, seq1, seq2 []byte, cfg *Config) {
	a.Score = a.Seed.Score
	a.Blocks = a.Blocks[:0]
	a.Extras.ColumnAmbiguityCodes = a.Extras.ColumnAmbiguityCodes[:0]
	if cfg.OutputType > OutMaxScore && !cfg.IsFullScore {
		a.Extras.FullScore = float64(a.Seed.Score)
	}

	if cfg.OutputType == OutExpectedCounts {
		numOfTransitions := 5
		if cfg.FrameSize > 0 {
			numOfTransitions = 9
		}
		n := seal.ScoreMatrixRowSize*seal.ScoreMatrixRowSize + numOfTransitions
		if cap(a.Extras.ExpectedCounts) < n {
			a.Extras.ExpectedCounts = make([]float64, n)
		}
		a.Extras.ExpectedCounts = a.Extras.ExpectedCounts[:n]
		for i := range a.Extras.ExpectedCounts {
			a.Extras.ExpectedCounts[i] = 0
		}
		addSeedCounts(seq1, seq2, a.Seed.Beg1(), a.Seed.Beg2(), a.Seed.Size,
			a.Extras.ExpectedCounts)
	}

	// extend in the left/reverse direction from the seed:
	a.extend(al, seq1, seq2, a.Seed.Beg1(), a.Seed.Beg2(), false, cfg)
	if a.Score <= -seal.INF {
		return
	}

	// convert left-extension coordinates to sequence coordinates:
	seedBeg1 := a.Seed.Beg1()
	seedBeg2 := seal.AaToDna(a.Seed.Beg2(), cfg.FrameSize)
	for i := range a.Blocks {
		b := &a.Blocks[i]
		s := b.Size
		b.Start1 = seedBeg1 - b.Start1 - s
		// careful: Start2 can be -1 (reverse frameshift)
		b.Start2 = seal.DnaToAa(seedBeg2-b.Start2, cfg.FrameSize) - s
	}

	isMergeSeedRev := len(a.Blocks) > 0 &&
		seal.IsNext(a.Blocks[len(a.Blocks)-1], a.Seed)
	if isMergeSeedRev {
		a.Blocks[len(a.Blocks)-1].Size += a.Seed.Size
	} else {
		a.Blocks = append(a.Blocks, a.Seed)
	}

	if cfg.OutputType > OutMaxScore {
		// the core is maximally un-ambiguous:
		for i := 0; i < a.Seed.Size; i++ {
			a.Extras.ColumnAmbiguityCodes =
				append(a.Extras.ColumnAmbiguityCodes, 126)
		}
	}

	middle := len(a.Blocks)
	codesMid := len(a.Extras.ColumnAmbiguityCodes)

	// extend in the right/forward direction from the seed:
	a.extend(al, seq1, seq2, a.Seed.End1(), a.Seed.End2(), true, cfg)
	if a.Score <= -seal.INF {
		return
	}

	// convert right-extension coordinates to sequence coordinates:
	seedEnd1 := a.Seed.End1()
	seedEnd2 := seal.AaToDna(a.Seed.End2(), cfg.FrameSize)
	for i := middle; i < len(a.Blocks); i++ {
		b := &a.Blocks[i]
		b.Start1 = seedEnd1 + b.Start1
		b.Start2 = seal.DnaToAa(seedEnd2+b.Start2, cfg.FrameSize)
	}

	isMergeSeedFwd := len(a.Blocks) > middle &&
		seal.IsNext(a.Seed, a.Blocks[len(a.Blocks)-1])
	if isMergeSeedFwd {
		a.Blocks[middle-1].Size += a.Blocks[len(a.Blocks)-1].Size
		a.Blocks = a.Blocks[:len(a.Blocks)-1]
	}

	reverseBlocks(a.Blocks[middle:])
	reverseBytes(a.Extras.ColumnAmbiguityCodes[codesMid:])

	// per-block scores were emitted aligned with the following block;
	// shift them to sit on their own block
	for i := middle; i < len(a.Blocks); i++ {
		a.Blocks[i-1].Score = a.Blocks[i].Score
	}

	if a.Seed.Size == 0 && !isMergeSeedRev && !isMergeSeedFwd {
		// unusual, weird case: give up
		a.Score = -seal.INF
		a.Blocks[0].Score = -1
	}
}

func reverseBlocks(b []seal.SegmentPair) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func (a *Alignment) extend(al *Aligners, seq1, seq2 []byte,
	start1, start2 int, isForward bool, cfg *Config) {

	blocksBeg := len(a.Blocks)

	var subsCounts [][]float64
	var tranCounts []float64
	if cfg.OutputType == OutExpectedCounts {
		ec := a.Extras.ExpectedCounts
		subsCounts = make([][]float64, seal.ScoreMatrixRowSize)
		for i := range subsCounts {
			subsCounts[i] = ec[i*seal.ScoreMatrixRowSize : (i+1)*seal.ScoreMatrixRowSize]
		}
		tranCounts = ec[seal.ScoreMatrixRowSize*seal.ScoreMatrixRowSize:]
	}

	if cfg.FrameSize > 0 {
		if cfg.Globality != 0 || cfg.Pssm != nil || cfg.QualScorer != nil {
			log.Panicf("frameshift alignment is local-only, without PSSM or quality scores")
		}
		dnaStart := seal.AaToDna(start2, cfg.FrameSize)
		var tFrame [3]int
		for k := 0; k < 3; k++ {
			if isForward {
				tFrame[k] = seal.DnaToAa(dnaStart+k, cfg.FrameSize)
			} else {
				tFrame[k] = seal.DnaToAa(dnaStart-k, cfg.FrameSize)
			}
		}

		if cfg.Gap.IsNewFrameshifts {
			if !cfg.IsFullScore {
				log.Panicf("the newer frameshift model needs full scores")
			}
			al.Frame.AlignFrame(seq1, seq2, start1, tFrame, isForward,
				cfg.Matrix, cfg.Gap, cfg.MaxDrop)
			for {
				end1, end2, size, gapCost, ok := al.Frame.NextChunk()
				if !ok {
					break
				}
				a.Blocks = append(a.Blocks, seal.SegmentPair{
					Start1: end1 - size, Start2: end2 - size*3,
					Size: size, Score: gapCost})
			}
			if cfg.ProbMat == nil {
				return
			}
			s := al.Frame.Forward(cfg.ProbMat, cfg.Lambda)
			a.Score += int(math.Floor(s/cfg.Lambda + 0.5))
			if cfg.OutputType < OutColumnProbs {
				return
			}
			al.Frame.Backward()
			a.Extras.ColumnAmbiguityCodes = frameColumnCodes(&al.Frame,
				a.Extras.ColumnAmbiguityCodes, a.Blocks[blocksBeg:])
			if cfg.OutputType == OutExpectedCounts {
				al.Frame.Count(subsCounts, tranCounts)
			}
		} else {
			if cfg.IsFullScore || cfg.OutputType >= OutColumnProbs {
				log.Panicf("the classic frameshift model has max-score output only")
			}
			ext := al.Frame.Align3(seq1, seq2, start1, tFrame, isForward,
				cfg.Matrix, cfg.Gap, cfg.MaxDrop)
			if ext <= -seal.INF {
				a.Score = -seal.INF
				return
			}
			a.Score += ext
			// this is OK even when end2 < size*3:
			for {
				end1, end2, size, _, ok := al.Frame.NextChunk()
				if !ok {
					break
				}
				a.Blocks = append(a.Blocks, seal.SegmentPair{
					Start1: end1 - size, Start2: end2 - size*3, Size: size})
			}
		}
		return
	}

	x := &al.Xdrop
	var ext int
	switch {
	case cfg.QualScorer != nil:
		ext = x.Align2Qual(seq1, cfg.Qual1, seq2, cfg.Qual2, start1, start2,
			isForward, cfg.Globality, cfg.QualScorer, cfg.Gap, cfg.MaxDrop)
	case cfg.Pssm != nil:
		ext = x.AlignPssm(seq1, cfg.Pssm, seq2, start1, start2,
			isForward, cfg.Globality, cfg.Gap, cfg.MaxDrop)
	default:
		ext = x.Align(seq1, seq2, start1, start2,
			isForward, cfg.Globality, cfg.Matrix, cfg.Gap, cfg.MaxDrop)
	}

	if ext <= -seal.INF {
		a.Score = -seal.INF // avoid ill-defined probabilistic alignment
		return
	}

	if cfg.OutputType < OutGammaCentroid || cfg.OutputType > OutLama {
		// ordinary max-score blocks
		for {
			end1, end2, size, ok := x.NextChunk()
			if !ok {
				break
			}
			a.Blocks = append(a.Blocks, seal.SegmentPair{
				Start1: end1 - size, Start2: end2 - size, Size: size})
		}
	}

	if cfg.ProbMat == nil {
		a.Score += ext
		return
	}
	if !cfg.IsFullScore {
		a.Score += ext
	}

	if cfg.OutputType > OutMaxScore || cfg.IsFullScore {
		if cfg.QualScorer != nil {
			log.Panicf("quality scores and probabilistic alignment don't mix")
		}
		c := &al.Centroid
		s := c.Forward(cfg.ProbMat, cfg.Gap, cfg.Globality, cfg.Lambda)
		if cfg.IsFullScore {
			a.Score += int(math.Floor(s/cfg.Lambda + 0.5))
		} else {
			a.Extras.FullScore += s / cfg.Lambda
		}
		if cfg.OutputType < OutColumnProbs {
			return
		}
		c.Backward(cfg.Globality)
		if cfg.OutputType > OutColumnProbs && cfg.OutputType < OutExpectedCounts {
			// gamma-centroid / LAMA alignment
			c.Dp(cfg.OutputType, cfg.Gamma)
			for {
				beg1, beg2, size, ok := c.Traceback(cfg.OutputType, cfg.Gamma)
				if !ok {
					break
				}
				a.Blocks = append(a.Blocks, seal.SegmentPair{
					Start1: beg1, Start2: beg2, Size: size})
			}
		}
		a.Extras.ColumnAmbiguityCodes = centroidColumnCodes(c,
			a.Extras.ColumnAmbiguityCodes, a.Blocks[blocksBeg:], isForward)
		if cfg.OutputType == OutExpectedCounts {
			c.AddExpectedCounts(subsCounts, tranCounts)
		}
	}
}

// centroidColumnCodes emits ambiguity codes in traversal order: match
// codes for each chunk, then codes for the gap that follows it. In a
// reverse extension deletions come before insertions.
func centroidColumnCodes(c *Centroid, codes []byte,
	chunks []seal.SegmentPair, isForward bool) []byte {

	for i := range chunks {
		x := &chunks[i]
		codes = c.GetMatchAmbiguities(codes, x.End1(), x.End2(), x.Size)
		var end1, end2 int
		if i+1 < len(chunks) {
			end1 = chunks[i+1].End1()
			end2 = chunks[i+1].End2()
		}
		// if an insertion is adjacent to a deletion, the deletion is
		// emitted first
		if isForward {
			codes = c.GetInsertAmbiguities(codes, x.Beg2(), end2)
			codes = c.GetDeleteAmbiguities(codes, x.Beg1(), end1)
		} else {
			codes = c.GetDeleteAmbiguities(codes, x.Beg1(), end1)
			codes = c.GetInsertAmbiguities(codes, x.Beg2(), end2)
		}
	}
	return codes
}

// frameColumnCodes emits one code per protein column and pads gaps with
// '-', one byte per unaligned protein letter or codon.
func frameColumnCodes(f *FrameAligner, codes []byte,
	chunks []seal.SegmentPair) []byte {

	for i := range chunks {
		x := &chunks[i]
		for k := x.Size; k > 0; k-- {
			p := f.MatchProb(x.Beg1()+k-1, x.Beg2()+(k-1)*3)
			codes = append(codes, seal.AsciiProbability(p))
		}
		var end1, end2 int
		if i+1 < len(chunks) {
			end1 = chunks[i+1].End1()
			end2 = chunks[i+1].Beg2() + chunks[i+1].Size*3
		}
		n1 := x.Beg1() - end1
		n2 := (x.Beg2() - end2 + 1) / 3
		for k := 0; k < n1+n2; k++ {
			codes = append(codes, '-')
		}
	}
	return codes
}

// gapCostBetween is the cost of the gap between adjacent blocks.
func gapCostBetween(x, y *seal.SegmentPair, gap *seal.GapCosts, frameSize int) int {
	if gap.IsNewFrameshifts {
		return x.Score
	}
	gapSize1 := y.Beg1() - x.End1()
	gapSize2, frameshift := seal.SizeAndFrameshift(x.End2(), y.Beg2(), frameSize)
	cost := gap.Cost(gapSize1, gapSize2)
	if frameshift != 0 {
		cost += gap.FrameshiftCost
	}
	return cost
}

func (a *Alignment) blockScorer(seq1, seq2 []byte, cfg *Config) func(x, y int) int {
	switch {
	case cfg.QualScorer != nil:
		return func(x, y int) int {
			return cfg.QualScorer.Score(seq1[x], seq2[y],
				cfg.Qual1[x], cfg.Qual2[y])
		}
	case cfg.Pssm != nil:
		return func(x, y int) int { return cfg.Pssm[y][seq1[x]] }
	default:
		return func(x, y int) int { return cfg.Matrix.Rows[seq1[x]][seq2[y]] }
	}
}

// IsOptimal replays the alignment's scores and rejects it if a local
// prefix score drops to zero or the running score ever falls more than
// maxDrop below the running maximum, except at the final position.
func (a *Alignment) IsOptimal(seq1, seq2 []byte, cfg *Config) bool {
	isLocal := cfg.Globality == 0
	maxScore := 0
	score := 0
	scoreAt := a.blockScorer(seq1, seq2, cfg)

	for i := range a.Blocks {
		if i > 0 {
			score -= gapCostBetween(&a.Blocks[i-1], &a.Blocks[i],
				cfg.Gap, cfg.FrameSize)
			if (isLocal && score <= 0) || score < maxScore-cfg.MaxDrop {
				return false
			}
		}

		b := &a.Blocks[i]
		theEnd := b.Size - 1
		if i+1 < len(a.Blocks) {
			theEnd = b.Size
		}
		for j := 0; j < b.Size; j++ {
			score += scoreAt(b.Beg1()+j, b.Beg2()+j)
			if score > maxScore {
				maxScore = score
			} else if (isLocal && (score <= 0 || j == theEnd)) ||
				score < maxScore-cfg.MaxDrop {
				return false
			}
		}
	}
	return true
}

// HasGoodSegment reports whether some local run of the alignment
// reaches minScore, with the running score floored at zero.
func (a *Alignment) HasGoodSegment(seq1, seq2 []byte, minScore int, cfg *Config) bool {
	score := 0
	scoreAt := a.blockScorer(seq1, seq2, cfg)

	for i := range a.Blocks {
		if i > 0 {
			score -= gapCostBetween(&a.Blocks[i-1], &a.Blocks[i],
				cfg.Gap, cfg.FrameSize)
			if score < 0 {
				score = 0
			}
		}

		b := &a.Blocks[i]
		for j := 0; j < b.Size; j++ {
			score += scoreAt(b.Beg1()+j, b.Beg2()+j)
			if score >= minScore {
				return true
			}
			if score < 0 {
				score = 0
			}
		}
	}
	return false
}
