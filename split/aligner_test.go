package split

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealkit/seal"
)

// perfect ungapped candidate: rname:rstart-rend aligned to query
// [qstart,qend) with matching letters.
func candidate(rname string, rstart, qstart, size, qstrand int) UnsplitAlignment {
	text := strings.Repeat("ACGTACGTAC", (size+9)/10)[:size]
	return UnsplitAlignment{
		Qname: "q", Qstart: qstart, Qend: qstart + size, Qstrand: qstrand,
		Rname: rname, Rstart: rstart, Rend: rstart + size,
		Ralign: text, Qalign: text,
		RSeqSize: 100000, QSeqSize: qstart + size,
	}
}

func TestSplitWithJump(t *testing.T) {
	p := testParams(-30, -60, 0)
	alns := []UnsplitAlignment{
		candidate("chr1", 100, 0, 10, 0),
		candidate("chr1", 610, 10, 10, 0), // rBegs[B] - rEnds[A] = 500
	}

	var a Aligner
	a.Layout(p, alns)
	require.NoError(t, a.InitMatricesForOneQuery(false))

	score := a.ViterbiSplice()
	// ten matches, a jump, ten matches
	assert.Equal(t, 10*6-30+10*6, score)

	parts := a.TraceBack(score)
	require.Len(t, parts, 2)
	// last piece first
	assert.Equal(t, AlignmentPart{AlnIndex: 1, QueryBeg: 10, QueryEnd: 20}, parts[0])
	assert.Equal(t, AlignmentPart{AlnIndex: 0, QueryBeg: 0, QueryEnd: 10}, parts[1])

	// the traceback's segments plus the jump reproduce the Viterbi score
	total := a.SegmentScore(0, 0, 10) + a.SegmentScore(1, 10, 20) + p.JumpScore
	assert.Equal(t, score, total)
}

func TestDpBoundsCollapseWithoutJumps(t *testing.T) {
	p := testParams(-30, -60, 0)
	p.JumpProb = 0 // jumps and splices disabled
	alns := []UnsplitAlignment{
		candidate("chr1", 100, 3, 10, 0),
		candidate("chr1", 400, 12, 8, 0),
	}
	var a Aligner
	a.Layout(p, alns)
	for i := range alns {
		assert.Equal(t, alns[i].Qstart, a.dpBeg(i))
		assert.Equal(t, alns[i].Qend, a.dpEnd(i))
	}
}

func TestViterbiSplitMatchesTraceback(t *testing.T) {
	p := testParams(-30, -60, 0)
	p.JumpProb = 0
	alns := []UnsplitAlignment{
		candidate("chr1", 100, 0, 12, 0),
		candidate("chr2", 900, 6, 12, 0),
	}
	var a Aligner
	a.Layout(p, alns)
	require.NoError(t, a.InitMatricesForOneQuery(false))

	score := a.ViterbiSplit()
	// without splicing every segment pays the restart score to begin
	assert.Equal(t, 12*6+p.RestartScore, score)
	parts := a.TraceBack(score)
	require.Len(t, parts, 1)
	got := a.SegmentScore(parts[0].AlnIndex, parts[0].QueryBeg, parts[0].QueryEnd)
	assert.Equal(t, score, got+p.RestartScore)
}

func TestForwardRescales(t *testing.T) {
	p := testParams(-30, -60, 0)
	alns := []UnsplitAlignment{
		candidate("chr1", 100, 0, 10, 0),
		candidate("chr1", 610, 10, 10, 0),
	}
	var a Aligner
	a.Layout(p, alns)
	require.NoError(t, a.InitMatricesForOneQuery(false))
	a.ViterbiSplice()
	a.ForwardSplice()
	a.BackwardSplice()

	for j := a.minBeg; j <= a.maxEnd; j++ {
		r := *a.rescaleCell(j)
		assert.Greater(t, r, 0.0)
		assert.False(t, r > 1e300, "rescale overflow at %d", j)
	}

	probs := a.MarginalProbs(0, 0, 0, 10)
	require.Len(t, probs, 10)
	for i, pr := range probs {
		assert.GreaterOrEqual(t, pr, 0.0, "column %d", i)
		assert.LessOrEqual(t, pr, 1.000001, "column %d", i)
	}
}

func spliceTestGenome(t *testing.T, donorAt, acceptorAt int) *seal.Genome {
	t.Helper()
	n := 4000
	letters := make([]byte, n)
	for i := range letters {
		letters[i] = "ACGTACGTAC"[i%10]
	}
	letters[donorAt] = 'G'
	letters[donorAt+1] = 'T'
	letters[acceptorAt-2] = 'A'
	letters[acceptorAt-1] = 'G'

	base := filepath.Join(t.TempDir(), "g")
	alph := seal.MustAlphabet(seal.DNA)
	var m seal.MultiSequence
	m.InitForAppending(1)
	m.AddName("chr1")
	m.AppendLetters(alph.EncodeSeq(letters))
	m.FinishTheLastSequence()
	require.NoError(t, m.ToFiles(base, false))
	require.NoError(t, seal.WritePrj(base, seal.DNA, 1, 1, false))

	g, err := seal.ReadGenome(base)
	require.NoError(t, err)
	return g
}

func TestSplitWithCisSplice(t *testing.T) {
	p := testParams(-100, -180, 0.01)
	// donor just after candidate A's reference end, acceptor just
	// before candidate B's reference start, 2000 apart
	p.Genome = spliceTestGenome(t, 110, 2110)
	defer p.Genome.Close()
	p.SetSpliceSignals()

	alns := []UnsplitAlignment{
		candidate("chr1", 100, 0, 10, 0),
		candidate("chr1", 2110, 10, 10, 0),
	}

	var a Aligner
	a.Layout(p, alns)
	require.NoError(t, a.InitMatricesForOneQuery(false))

	score := a.ViterbiSplice()
	spliceScore := p.SpliceScore(2000)
	gtScore := p.spliceBegScores[2*4+3]
	agScore := p.spliceEndScores[0*4+2]

	// the GT..AG-signalled splice beats both the raw jump and a restart
	want := 10*6 + spliceScore + gtScore + agScore + 10*6
	assert.Equal(t, want, score)
	assert.Greater(t, want, 10*6+p.JumpScore+10*6)

	parts := a.TraceBack(score)
	require.Len(t, parts, 2)
	assert.Equal(t, 1, parts[0].AlnIndex)
	assert.Equal(t, 0, parts[1].AlnIndex)

	a.ForwardSplice()
	a.BackwardSplice()
	logOddsReady := a.rescales[0] > 0
	assert.True(t, logOddsReady)
}

func TestStrandTieBreak(t *testing.T) {
	p := testParams(-30, -60, 0)
	p.JumpProb = 0
	fwd := candidate("chr1", 100, 0, 20, 0)
	rev := candidate("chr1", 500, 0, 20, 2)
	alns := []UnsplitAlignment{fwd, rev}

	var a Aligner
	a.Layout(p, alns)
	require.NoError(t, a.InitMatricesForOneQuery(false))

	score := a.ViterbiSplit()
	parts := a.TraceBack(score)
	// both candidates score equally; the traceback stays on the
	// forward-strand one, giving a single unfragmented part
	require.Len(t, parts, 1)
	assert.Equal(t, 0, parts[0].AlnIndex)
	assert.Equal(t, 0, parts[0].QueryBeg)
	assert.Equal(t, 20, parts[0].QueryEnd)
}

func TestFlipSpliceSignals(t *testing.T) {
	p := testParams(-100, -180, 0.01)
	p.Genome = spliceTestGenome(t, 110, 2110)
	defer p.Genome.Close()
	p.SetSpliceSignals()

	alns := []UnsplitAlignment{
		candidate("chr1", 100, 0, 10, 0),
		candidate("chr1", 2110, 10, 10, 0),
	}
	var a Aligner
	a.Layout(p, alns)
	require.NoError(t, a.InitMatricesForOneQuery(true))

	fwdScore := a.ViterbiSplice()
	a.FlipSpliceSignals()
	revScore := a.ViterbiSplice()
	a.FlipSpliceSignals()

	// the GT..AG junction only scores well in the forward orientation
	assert.Greater(t, fwdScore, revScore)
	// flipping twice restores the original matrices
	assert.Equal(t, fwdScore, a.Vmat[a.cell(1, alns[1].Qend)]+0)
}
