package stats

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealkit/seal"
)

func uniformFreqs(n int) []float64 {
	f := make([]float64, seal.ScoreMatrixRowSize)
	for i := 0; i < n; i++ {
		f[i] = 1 / float64(n)
	}
	return f
}

func TestUngappedInit(t *testing.T) {
	alph := seal.MustAlphabet(seal.DNA)
	m := seal.IdentityMatrix(alph, 1, -1)
	freqs := uniformFreqs(4)

	var e Evaluer
	assert.False(t, e.IsGood())
	require.NoError(t, e.Init("+1/-1", m, freqs, freqs, false, 0, 0, 0, 0))
	require.True(t, e.IsGood())

	// for +1/-1 over a uniform 4-letter alphabet, lambda = ln 3
	assert.InDelta(t, 1.0986, e.lambda, 1e-3)

	// E-values decrease with score
	e.SetSearchSpace(1e6, 1e5, 1e4, 1e4, 2)
	prev := e.EvaluePerArea(10)
	for s := 11.0; s < 30; s++ {
		cur := e.EvaluePerArea(s)
		assert.Less(t, cur, prev)
		prev = cur
	}
	assert.Greater(t, e.BitScore(30), e.BitScore(10))
}

func TestUngappedInitFailsOnPositiveExpectation(t *testing.T) {
	alph := seal.MustAlphabet(seal.DNA)
	m := seal.IdentityMatrix(alph, 1, 0) // expected score is positive
	freqs := uniformFreqs(4)

	var e Evaluer
	err := e.Init("bad", m, freqs, freqs, false, 0, 0, 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadEvaluer))
	assert.False(t, e.IsGood())
}

func TestGappedLookup(t *testing.T) {
	var e Evaluer
	require.NoError(t, e.Init("BLOSUM62", nil, nil, nil, true, 11, 1, 11, 1))
	assert.True(t, e.IsGood())

	var unknown Evaluer
	err := unknown.Init("BLOSUM62", nil, nil, nil, true, 3, 3, 3, 3)
	assert.True(t, errors.Is(err, ErrBadEvaluer))
}

func TestMinScore(t *testing.T) {
	var e Evaluer
	require.NoError(t, e.Init("BLOSUM62", nil, nil, nil, true, 11, 1, 11, 1))
	e.SetSearchSpace(1e8, 1e6, 1e6, 1e3, 2)

	area := e.Area(50, 100)
	assert.Greater(t, area, 0.0)

	s := e.MinScore(1e-3, area)
	// the threshold score really has E-value at most 1e-3
	assert.LessOrEqual(t, e.EvaluePerArea(s)*area, 1e-3)
	// a huge allowed E-value floors the threshold at zero
	assert.Equal(t, 0.0, e.MinScore(1e12, 1))
}

func TestWriteCommented(t *testing.T) {
	var bad Evaluer
	var sb strings.Builder
	bad.WriteCommented(&sb)
	assert.Empty(t, sb.String())

	var e Evaluer
	require.NoError(t, e.Init("BLOSUM62", nil, nil, nil, true, 11, 1, 11, 1))
	e.WriteCommented(&sb)
	assert.Contains(t, sb.String(), "lambda")
}
