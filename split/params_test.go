package split

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealkit/seal"
)

func testParams(jump, restart int, splicePrior float64) *Params {
	p := &Params{Alphabet: seal.MustAlphabet(seal.DNA)}
	p.SetParams(-21, -9, -25, -6, jump, restart, 5.8, 0)
	p.SetSpliceParams(splicePrior, 7.0, 1.75)
	sm := [][]int{
		{6, -18, -18, -18},
		{-18, 6, -18, -18},
		{-18, -18, 6, -18},
		{-18, -18, -18, 6},
	}
	p.SetScoreMat(sm, seal.DNA, seal.DNA, true)
	return p
}

func TestSpliceScoreShape(t *testing.T) {
	p := testParams(-100, -180, 0.01)
	require.Greater(t, p.MaxSpliceDist, 1000)

	// monotone decreasing past the mode of the log-normal
	mode := int(math.Exp(7.0 - 1.75*1.75))
	prev := p.SpliceScore(mode)
	for d := mode + 1; d < mode+2000; d += 37 {
		s := p.SpliceScore(d)
		assert.LessOrEqual(t, s, prev)
		prev = s
	}

	// beyond the cutoff distance, splices score worse than a jump
	beyond := p.MaxSpliceDist + 1
	assert.Less(t, p.SpliceScore(beyond), p.JumpScore)
}

func TestSpliceScoreTableMatchesFormula(t *testing.T) {
	p := testParams(-100, -180, 0.01)
	for _, d := range []int{1, 10, 100, 999} {
		logDist := math.Log(float64(d))
		diff := logDist - p.MeanLogDist
		s := p.spliceTerm1 + p.spliceTerm2*diff*diff - logDist
		want := int(math.Floor(p.Scale*s + 0.5))
		assert.Equal(t, want, p.SpliceScore(d), "d=%d", d)
	}
}

func TestSubstitutionScores(t *testing.T) {
	p := testParams(-32, -60, 0)
	// at the top quality code, scores match the raw matrix
	assert.Equal(t, 6, p.SubstitutionScore(false, 'A', 'A', NumQualCodes-1))
	assert.Equal(t, 6, p.SubstitutionScore(false, 'a', 'a', NumQualCodes-1))
	assert.Equal(t, -18, p.SubstitutionScore(false, 'A', 'C', NumQualCodes-1))
	// at quality 0, a match is worth much less
	assert.Less(t, p.SubstitutionScore(false, 'A', 'A', 0), 6)
	assert.Equal(t, 6, p.MaxMatchScore)
}

func TestSpliceSignalTables(t *testing.T) {
	p := testParams(-32, -60, 0.01)
	p.SetSpliceSignals()

	gt := p.spliceBegScores[2*4+3]
	nn := p.spliceBegScores[0]
	ag := p.spliceEndScores[0*4+2]
	assert.Greater(t, gt, nn)
	assert.Greater(t, ag, p.spliceEndScores[0])

	// the reverse-orientation tables are the complemented swap
	for i := 0; i < 16; i++ {
		j := 15 - ((i%4)*4 + i/4)
		assert.Equal(t, p.spliceEndScores[j], p.spliceBegScores[17+i])
		assert.Equal(t, p.spliceBegScores[j], p.spliceEndScores[17+i])
	}
}

func TestSpliceSignalStrandRelation(t *testing.T) {
	alph := seal.MustAlphabet(seal.DNA)
	codes := alph.EncodeSeq([]byte("ACGTGTAGCA"))
	seq := seal.PackedSeq{Data: codes}

	// a reverse-strand signal is 15 minus the code of the same two
	// bases read in the other order: the reverse complement
	for pos := 2; pos < len(codes)-2; pos++ {
		rev := spliceSignalRev(seq, pos+2, &alph.ToUnmasked, true)
		want := 15 - (codes[pos+1]*4 + codes[pos])
		assert.Equal(t, want, rev, "pos=%d", pos)
	}

	// the reverse complement of a GT donor is an AC signal
	gt := seal.PackedSeq{Data: alph.EncodeSeq([]byte("GT"))}
	assert.Equal(t, byte(0*4+1), spliceSignalRev(gt, 2, &alph.ToUnmasked, true))

	// non-ACGT bases give code 16
	withN := seal.PackedSeq{Data: alph.EncodeSeq([]byte("ANGT"))}
	assert.Equal(t, byte(16), spliceSignalFwd(withN, 0, &alph.ToUnmasked, true))
}
