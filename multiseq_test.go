package seal

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabetRoundTrip(t *testing.T) {
	a := MustAlphabet(DNA)
	in := []byte("ACGTacgtN")
	codes := a.EncodeSeq(in)
	assert.Equal(t, []byte{0, 1, 2, 3, 5, 6, 7, 8, 4}, codes)
	out := a.DecodeSeq(codes)
	assert.Equal(t, "ACGTacgtN", string(out))
}

func TestRevCompTwiceRestores(t *testing.T) {
	a := MustAlphabet(DNA)
	s := a.EncodeSeq([]byte("ACGTTGca"))
	orig := append([]byte(nil), s...)
	a.RevComp(s)
	assert.NotEqual(t, orig, s)
	a.RevComp(s)
	assert.Equal(t, orig, s)
}

func fastaContainer(t *testing.T, text string) *MultiSequence {
	t.Helper()
	alph := MustAlphabet(DNA)
	var m MultiSequence
	m.InitForAppending(1)
	r := bufio.NewReader(strings.NewReader(text))
	for {
		err := m.AppendFromFasta(r, alph)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return &m
}

func TestAppendFromFasta(t *testing.T) {
	m := fastaContainer(t, ">one desc\nACGT\nACG\n>two\nTTTT\n")
	require.Equal(t, 2, m.Count())
	assert.Equal(t, "one", m.Name(0))
	assert.Equal(t, "two", m.Name(1))
	assert.Equal(t, 7, m.SeqLen(0))
	assert.Equal(t, 4, m.SeqLen(1))

	// ends are monotonic and start at the pad size
	assert.Equal(t, m.PadSize, m.Ends[0])
	for i := 1; i < len(m.Ends); i++ {
		assert.Greater(t, m.Ends[i], m.Ends[i-1])
	}

	// sequences are sentinel-separated
	assert.Equal(t, byte(SequenceEndSentinel), m.Seq[m.SeqEnd(0)])
}

func TestAppendFromFastaMissingHeader(t *testing.T) {
	alph := MustAlphabet(DNA)
	var m MultiSequence
	m.InitForAppending(1)
	r := bufio.NewReader(strings.NewReader("ACGT\n"))
	err := m.AppendFromFasta(r, alph)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing '>'")
}

func TestReverseComplementOneSequence(t *testing.T) {
	alph := MustAlphabet(DNA)
	m := fastaContainer(t, ">x\nAACGT\n")

	// attach qualities and a PSSM
	m.QualsPerLetter = 1
	m.Quals = make([]byte, len(m.Seq))
	for i := m.SeqBeg(0); i < m.SeqEnd(0); i++ {
		m.Quals[i] = byte('!' + i)
	}
	m.Pssm = make([]int, len(m.Seq)*ScoreMatrixRowSize)
	for i := range m.Pssm {
		m.Pssm[i] = i
	}

	origSeq := append([]byte(nil), m.Seq...)
	origQuals := append([]byte(nil), m.Quals...)
	origPssm := append([]int(nil), m.Pssm...)
	origStrand := m.StrandChar(0)

	m.ReverseComplementOneSequence(0, &alph.Complement)
	assert.NotEqual(t, origSeq, m.Seq)
	assert.NotEqual(t, origStrand, m.StrandChar(0))

	// complemented letters, reversed
	got := m.Seq[m.SeqBeg(0):m.SeqEnd(0)]
	assert.Equal(t, alph.EncodeSeq([]byte("ACGTT")), got)

	m.ReverseComplementOneSequence(0, &alph.Complement)
	assert.Equal(t, origSeq, m.Seq)
	assert.Equal(t, origQuals, m.Quals)
	assert.Equal(t, origPssm, m.Pssm)
	assert.Equal(t, origStrand, m.StrandChar(0))
}

func TestDuplicateOneSequence(t *testing.T) {
	m := fastaContainer(t, ">x\nACGT\n")
	m.DuplicateOneSequence(0)
	require.Equal(t, 2, m.Count())
	assert.Equal(t, m.Name(0), m.Name(1))
	assert.Equal(t,
		m.Seq[m.SeqBeg(0):m.SeqEnd(0)],
		m.Seq[m.SeqBeg(1):m.SeqEnd(1)])
}

func TestReinitForAppending(t *testing.T) {
	m := fastaContainer(t, ">x\nACGT\n>y\nTT\n")
	m.ReinitForAppending()
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, m.PadSize, len(m.Seq))
}
