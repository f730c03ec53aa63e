package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealkit/seal"
)

func dnaConfig(match, mismatch, gapOpen, gapGrow, maxDrop int) (*Config, *seal.Alphabet) {
	alph := seal.MustAlphabet(seal.DNA)
	gap := seal.NewAffineGapCosts(gapOpen, gapGrow)
	return &Config{
		Matrix:   seal.IdentityMatrix(alph, match, mismatch),
		Gap:      &gap,
		MaxDrop:  maxDrop,
		Alphabet: alph,
	}, alph
}

func seedScore(seq1, seq2 []byte, seed seal.SegmentPair, cfg *Config) int {
	s := 0
	for i := 0; i < seed.Size; i++ {
		s += cfg.Matrix.Rows[seq1[seed.Beg1()+i]][seq2[seed.Beg2()+i]]
	}
	return s
}

func TestExactSeedNoGap(t *testing.T) {
	cfg, alph := dnaConfig(1, -1, 11, 1, 10)
	seq1 := alph.EncodeSeq([]byte("ACGT"))
	seq2 := alph.EncodeSeq([]byte("ACGT"))

	var a Alignment
	a.Seed = seal.SegmentPair{Start1: 0, Start2: 0, Size: 4}
	a.Seed.Score = seedScore(seq1, seq2, a.Seed, cfg)
	a.MakeXdrop(NewAligners(), seq1, seq2, cfg)

	require.Equal(t, 4, a.Score)
	require.Len(t, a.Blocks, 1)
	// the unmerged seed block keeps the seed's score
	assert.Equal(t, seal.SegmentPair{Start1: 0, Start2: 0, Size: 4, Score: 4}, a.Blocks[0])
	assert.True(t, a.IsOptimal(seq1, seq2, cfg))
}

func TestAffineDeletion(t *testing.T) {
	cfg, alph := dnaConfig(1, -1, 1, 1, 10)
	seq1 := alph.EncodeSeq([]byte("ACGTACGT"))
	seq2 := alph.EncodeSeq([]byte("ACGTCGT"))

	var a Alignment
	a.Seed = seal.SegmentPair{Start1: 0, Start2: 0, Size: 4}
	a.Seed.Score = seedScore(seq1, seq2, a.Seed, cfg)
	a.MakeXdrop(NewAligners(), seq1, seq2, cfg)

	// 7 matches minus one deletion costing open+grow = 2
	require.Equal(t, 5, a.Score)
	require.Len(t, a.Blocks, 2)
	assert.Equal(t, seal.SegmentPair{Start1: 0, Start2: 0, Size: 4}, a.Blocks[0])
	assert.Equal(t, 5, a.Blocks[1].Start1)
	assert.Equal(t, 4, a.Blocks[1].Start2)
	assert.Equal(t, 3, a.Blocks[1].Size)
	assert.True(t, a.IsOptimal(seq1, seq2, cfg))
}

func TestLeftwardExtension(t *testing.T) {
	cfg, alph := dnaConfig(1, -1, 11, 1, 10)
	seq1 := alph.EncodeSeq([]byte("TTACGT"))
	seq2 := alph.EncodeSeq([]byte("TTACGT"))

	var a Alignment
	a.Seed = seal.SegmentPair{Start1: 2, Start2: 2, Size: 4}
	a.Seed.Score = seedScore(seq1, seq2, a.Seed, cfg)
	a.MakeXdrop(NewAligners(), seq1, seq2, cfg)

	require.Equal(t, 6, a.Score)
	require.Len(t, a.Blocks, 1)
	assert.Equal(t, seal.SegmentPair{Start1: 0, Start2: 0, Size: 6}, a.Blocks[0])
}

func TestBlocksOrderedAndMerged(t *testing.T) {
	cfg, alph := dnaConfig(2, -3, 4, 1, 30)
	seq1 := alph.EncodeSeq([]byte("TTTTGGACGTACGTAACC"))
	seq2 := alph.EncodeSeq([]byte("TTTTGGACGTCGTAACC"))

	var a Alignment
	a.Seed = seal.SegmentPair{Start1: 4, Start2: 4, Size: 2}
	a.Seed.Score = seedScore(seq1, seq2, a.Seed, cfg)
	a.MakeXdrop(NewAligners(), seq1, seq2, cfg)

	require.Greater(t, a.Score, 0)
	for i := 1; i < len(a.Blocks); i++ {
		prev, cur := &a.Blocks[i-1], &a.Blocks[i]
		assert.Less(t, prev.Start1, cur.Start1)
		assert.LessOrEqual(t, prev.End1(), cur.Beg1())
		assert.LessOrEqual(t, prev.End2(), cur.Beg2())
		// touching blocks must have been merged
		assert.False(t, prev.End1() == cur.Beg1() && prev.End2() == cur.Beg2())
	}
	assert.True(t, a.IsOptimal(seq1, seq2, cfg))
}

func TestZeroSeedNoMergeIsRejected(t *testing.T) {
	cfg, alph := dnaConfig(1, -1, 11, 1, 2)
	// sequences that disagree on both sides of the anchor
	seq1 := alph.EncodeSeq([]byte("AAAA"))
	seq2 := alph.EncodeSeq([]byte("TTTT"))

	var a Alignment
	a.Seed = seal.SegmentPair{Start1: 2, Start2: 2, Size: 0}
	a.MakeXdrop(NewAligners(), seq1, seq2, cfg)

	assert.LessOrEqual(t, a.Score, -seal.INF)
	assert.Equal(t, -1, a.Blocks[0].Score)
}

func TestIsOptimalRejectsNonpositivePrefix(t *testing.T) {
	cfg, alph := dnaConfig(1, -1, 11, 1, 100)
	seq1 := alph.EncodeSeq([]byte("TAAC"))
	seq2 := alph.EncodeSeq([]byte("GAAC"))

	a := Alignment{Blocks: []seal.SegmentPair{{Start1: 0, Start2: 0, Size: 4}}}
	// the first column is a mismatch, so the running score dips to -1
	assert.False(t, a.IsOptimal(seq1, seq2, cfg))
}

func TestHasGoodSegment(t *testing.T) {
	cfg, alph := dnaConfig(1, -1, 11, 1, 100)
	seq1 := alph.EncodeSeq([]byte("TAACCC"))
	seq2 := alph.EncodeSeq([]byte("GAACCC"))
	a := Alignment{Blocks: []seal.SegmentPair{{Start1: 0, Start2: 0, Size: 6}}}

	assert.True(t, a.HasGoodSegment(seq1, seq2, 5, cfg))
	assert.False(t, a.HasGoodSegment(seq1, seq2, 6, cfg))
}

func TestFrameshiftExtension(t *testing.T) {
	alph := seal.MustAlphabet(seal.Protein)
	gap := seal.NewAffineGapCosts(11, 1)
	gap.FrameshiftCost = 15
	cfg := &Config{
		Matrix:    seal.Blosum62(alph),
		Gap:       &gap,
		MaxDrop:   100,
		Alphabet:  alph,
		FrameSize: 3,
	}

	// protein MKT versus DNA ATGAAGACG, translated frame-major:
	// frame 0: M K T / frame 1: * R - / frame 2: E D -
	seq1 := alph.EncodeSeq([]byte("MKT"))
	seq2 := alph.EncodeSeq([]byte("MKT*RED"))
	translated := []byte{
		seq2[0], seq2[1], seq2[2],
		seq2[3], seq2[4], seal.SequenceEndSentinel,
		seq2[5], seq2[6], seal.SequenceEndSentinel,
	}

	var a Alignment
	a.Seed = seal.SegmentPair{Start1: 0, Start2: 0, Size: 1}
	a.Seed.Score = cfg.Matrix.Rows[seq1[0]][translated[0]]
	a.MakeXdrop(NewAligners(), seq1, translated, cfg)

	require.Len(t, a.Blocks, 1)
	b := a.Blocks[0]
	assert.Equal(t, 0, b.Start1)
	assert.Equal(t, 3, b.Size)
	assert.Equal(t, 0, seal.AaToDna(b.Start2, cfg.FrameSize))
	// M, K and T each score 5 in BLOSUM62, with no frameshift penalty
	assert.Equal(t, 15, a.Score)
}

func TestColumnProbsOutput(t *testing.T) {
	cfg, alph := dnaConfig(2, -3, 4, 1, 30)
	cfg.OutputType = OutColumnProbs
	cfg.Lambda = 0.5
	cfg.ProbMat = cfg.Matrix.ProbMatrix(cfg.Lambda)

	seq1 := alph.EncodeSeq([]byte("TTACGTACGTAA"))
	seq2 := alph.EncodeSeq([]byte("TTACGTACGTAA"))

	var a Alignment
	a.Seed = seal.SegmentPair{Start1: 4, Start2: 4, Size: 2}
	a.Seed.Score = seedScore(seq1, seq2, a.Seed, cfg)
	a.MakeXdrop(NewAligners(), seq1, seq2, cfg)

	require.Greater(t, a.Score, 0)
	columns := 0
	for i := range a.Blocks {
		columns += a.Blocks[i].Size
		if i > 0 {
			prev := &a.Blocks[i-1]
			cur := &a.Blocks[i]
			columns += cur.Beg1() - prev.End1()
			columns += cur.Beg2() - prev.End2()
		}
	}
	assert.Len(t, a.Extras.ColumnAmbiguityCodes, columns)
	for _, c := range a.Extras.ColumnAmbiguityCodes {
		assert.GreaterOrEqual(t, c, byte(33))
		assert.LessOrEqual(t, c, byte(126))
	}
	assert.Greater(t, a.Extras.FullScore, 0.0)
}

func TestGammaCentroidTraceback(t *testing.T) {
	cfg, alph := dnaConfig(2, -3, 4, 1, 30)
	cfg.OutputType = OutGammaCentroid
	cfg.Gamma = 10
	cfg.Lambda = 0.5
	cfg.ProbMat = cfg.Matrix.ProbMatrix(cfg.Lambda)

	seq1 := alph.EncodeSeq([]byte("ACGTACGT"))
	seq2 := alph.EncodeSeq([]byte("ACGTACGT"))

	var a Alignment
	a.Seed = seal.SegmentPair{Start1: 3, Start2: 3, Size: 2}
	a.Seed.Score = seedScore(seq1, seq2, a.Seed, cfg)
	a.MakeXdrop(NewAligners(), seq1, seq2, cfg)

	require.Greater(t, a.Score, -seal.INF)
	require.NotEmpty(t, a.Blocks)
	for _, b := range a.Blocks {
		// identical sequences keep the accuracy alignment on the diagonal
		assert.Equal(t, b.Start1, b.Start2)
	}
}

func TestPathAdderMaxSum(t *testing.T) {
	alph := seal.MustAlphabet(seal.DNA)
	m := seal.IdentityMatrix(alph, 2, -3)
	probs := m.ProbMatrix(0.5)

	seq1 := alph.EncodeSeq([]byte("ACGTACGT"))
	same := alph.EncodeSeq([]byte("ACGTACGT"))
	other := alph.EncodeSeq([]byte("TTTTGGGG"))

	var p PathAdder
	del := 0.05
	ins := 0.05
	selfSum := p.MaxSum(seq1, same, probs, del, del, ins, ins, 0)
	otherSum := p.MaxSum(seq1, other, probs, del, del, ins, ins, 0)
	assert.Greater(t, selfSum, otherSum)
	assert.Greater(t, selfSum, 1.0)

	// borders damp the score but keep it positive
	bordered := p.MaxSum(seq1, same, probs, del, del, ins, ins, 2)
	assert.Greater(t, bordered, 0.0)
	assert.LessOrEqual(t, bordered, selfSum)
}
