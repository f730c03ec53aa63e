package split

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mafLines = []string{
	"s chr1 100 8 + 5000 ACGT-ACG",
	"s read    0 7 + 7    ACGTTAC-",
	"q read            !!~~~~~!",
}

func TestNewUnsplitAlignment(t *testing.T) {
	u, err := NewUnsplitAlignment(mafLines, false)
	require.NoError(t, err)

	assert.Equal(t, "read", u.Qname)
	assert.Equal(t, 0, u.Qstart)
	assert.Equal(t, 7, u.Qend)
	assert.Equal(t, 0, u.Qstrand)
	assert.True(t, u.IsForwardStrand())
	assert.False(t, u.IsFlipped())

	assert.Equal(t, "chr1", u.Rname)
	assert.Equal(t, 100, u.Rstart)
	assert.Equal(t, 108, u.Rend)
	assert.Equal(t, "ACGT-ACG", u.Ralign)
	assert.Equal(t, "ACGTTAC-", u.Qalign)
	assert.Equal(t, "!!~~~~~!", u.QQual)
}

func TestUnsplitAlignmentStrands(t *testing.T) {
	lines := []string{
		"s chr1 100 4 + 5000 ACGT",
		"s read 0 4 - 4 ACGT",
	}
	u, err := NewUnsplitAlignment(lines, false)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Qstrand)
	assert.True(t, u.IsFlipped())
	assert.True(t, u.IsForwardStrand())
}

func TestMafSliceFullRangeRoundTrip(t *testing.T) {
	u, err := NewUnsplitAlignment(mafLines, false)
	require.NoError(t, err)

	qSliceBeg, alnBeg := MafSliceBeg(u.Ralign, u.Qalign, u.Qstart, u.Qstart)
	qSliceEnd, alnEnd := MafSliceEnd(u.Ralign, u.Qalign, u.Qend, u.Qend)
	assert.Equal(t, u.Qstart, qSliceBeg)
	assert.Equal(t, u.Qend, qSliceEnd)
	assert.Equal(t, 0, alnBeg)

	out, _ := MafSlice(nil, &u, alnBeg, alnEnd, nil)
	text := string(out)
	assert.Contains(t, text, u.Ralign[alnBeg:alnEnd])
	assert.Contains(t, text, u.Qalign[alnBeg:alnEnd])
	assert.Contains(t, text, "chr1 100")

	// the slice must reproduce the original coordinates
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		f := strings.Fields(line)
		if f[0] == "s" && f[1] == "read" {
			assert.Equal(t, "0", f[2])
			assert.Equal(t, "7", f[3])
			assert.Equal(t, "+", f[4])
		}
	}
}

func TestMafSlicePartial(t *testing.T) {
	u, err := NewUnsplitAlignment(mafLines, false)
	require.NoError(t, err)

	// query range [2, 5): columns 2..5 of the alignment
	_, alnBeg := MafSliceBeg(u.Ralign, u.Qalign, u.Qstart, 2)
	_, alnEnd := MafSliceEnd(u.Ralign, u.Qalign, u.Qend, 5)
	assert.Equal(t, 2, alnBeg)
	require.Greater(t, alnEnd, alnBeg)

	out, _ := MafSlice(nil, &u, alnBeg, alnEnd, []float64{1, 0.5, 0, 1})
	text := string(out)
	assert.Contains(t, text, "p ")
}

func TestPLinesToErrorProb(t *testing.T) {
	// both lines fully confident: near-zero error
	confident := "p x ~~~~"
	assert.InDelta(t, 0.0, PLinesToErrorProb(confident, confident), 1e-9)

	// both lines at minimum: full error
	doubtful := "p x !!!!"
	assert.InDelta(t, 1.0, PLinesToErrorProb(doubtful, doubtful), 1e-9)
}
