package seal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestGenome(t *testing.T, baseName string, seqs map[string]string, is4bit bool) {
	t.Helper()
	alph := MustAlphabet(DNA)
	var m MultiSequence
	m.InitForAppending(1)
	names := make([]string, 0, len(seqs))
	for name := range seqs {
		names = append(names, name)
	}
	// deterministic order
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	for _, name := range names {
		m.AddName(name)
		m.AppendLetters(alph.EncodeSeq([]byte(seqs[name])))
		m.FinishTheLastSequence()
	}
	require.NoError(t, m.ToFiles(baseName, is4bit))
	require.NoError(t, WritePrj(baseName, DNA, m.Count(), 1, is4bit))
}

func TestGenomeRoundTrip(t *testing.T) {
	for _, is4bit := range []bool{false, true} {
		base := filepath.Join(t.TempDir(), "g")
		writeTestGenome(t, base,
			map[string]string{"chr1": "ACGTACGTAA", "chr2": "TTTTGGGG"}, is4bit)

		g, err := ReadGenome(base)
		require.NoError(t, err)
		defer g.Close()

		beg, end, seq, err := g.SeqEnds("chr1")
		require.NoError(t, err)
		assert.Equal(t, 10, end-beg)
		want := MustAlphabet(DNA).EncodeSeq([]byte("ACGTACGTAA"))
		for i := 0; i < 10; i++ {
			assert.Equal(t, want[i], seq.At(beg+i))
		}

		_, _, _, err = g.SeqEnds("chrX")
		assert.Error(t, err)
	}
}

func TestGenomeFileBytesRepeatable(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "g")
	writeTestGenome(t, base, map[string]string{"c": "ACGT"}, false)

	// rewriting the same content gives identical file bytes
	base2 := filepath.Join(dir, "h")
	writeTestGenome(t, base2, map[string]string{"c": "ACGT"}, false)
	for _, suffix := range []string{".tis", ".ssp", ".sds", ".des"} {
		b1, err := os.ReadFile(base + suffix)
		require.NoError(t, err)
		b2, err := os.ReadFile(base2 + suffix)
		require.NoError(t, err)
		assert.Equal(t, b1, b2, suffix)
	}
}

func TestGenomeBadAlphabet(t *testing.T) {
	base := filepath.Join(t.TempDir(), "g")
	require.NoError(t, os.WriteFile(base+".prj",
		[]byte("version=1\nalphabet=ACGU\nnumofsequences=1\nvolumes=1\n"), 0666))
	_, err := ReadGenome(base)
	assert.Error(t, err)
}

func TestPackedSeq4bit(t *testing.T) {
	codes := []byte{0, 1, 2, 3, 4, 0, 3}
	packed := PackedSeq{Data: pack4bit(codes), Is4bit: true}
	for i, c := range codes {
		assert.Equal(t, c, packed.At(i))
	}
}

func TestFrameCoordinates(t *testing.T) {
	const frameSize = 5
	for dna := 0; dna < 15; dna++ {
		aa := DnaToAa(dna, frameSize)
		assert.Equal(t, dna, AaToDna(aa, frameSize))
	}

	// untranslated coordinates pass through
	assert.Equal(t, 7, AaToDna(7, 0))
	assert.Equal(t, 7, DnaToAa(7, 0))

	gap, fs := SizeAndFrameshift(DnaToAa(3, frameSize), DnaToAa(9, frameSize), frameSize)
	assert.Equal(t, 2, gap)
	assert.Equal(t, 0, fs)

	gap, fs = SizeAndFrameshift(DnaToAa(3, frameSize), DnaToAa(10, frameSize), frameSize)
	assert.Equal(t, 2, gap)
	assert.Equal(t, 1, fs)
}

func TestGapCosts(t *testing.T) {
	g := NewAffineGapCosts(11, 1)
	assert.True(t, g.IsAffine())
	assert.Equal(t, 0, g.Cost(0, 0))
	assert.Equal(t, 14, g.Cost(3, 0))
	assert.Equal(t, 12, g.Cost(0, 1))

	pw := GapCosts{
		DelPieces: []GapPiece{{10, 3}, {20, 1}},
		InsPieces: []GapPiece{{10, 3}},
		PairCost:  2,
	}
	assert.False(t, pw.IsAffine())
	assert.Equal(t, 13, pw.Cost(1, 0))    // first piece wins short gaps
	assert.Equal(t, 30, pw.Cost(10, 0))   // second piece wins long gaps
	assert.Equal(t, 13+13+2, pw.Cost(1, 1)) // both sides pay the pair cost
}
