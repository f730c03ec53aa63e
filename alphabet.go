package seal

import (
	"fmt"
	"strings"
)

// ScoreMatrixRowSize is the stride of every score-matrix row and PSSM row.
// 64 covers all letter codes, masked codes and the sentinel.
const ScoreMatrixRowSize = 64

// SequenceEndSentinel terminates a logical sequence inside a packed buffer.
// For DNA it coincides with the alphabet size.
const SequenceEndSentinel = 4

// DNA and Protein are the letters of the two standard alphabets, in
// encoding order.
const (
	DNA     = "ACGT"
	Protein = "ACDEFGHIKLMNPQRSTVWY"
)

// Alphabet converts between sequence letters and the small integer codes
// used everywhere else. Uppercase letters encode to 0..Size-1, the code
// Size is the sentinel / pad value, and lowercase (masked) letters encode
// to Size+1+i. ToUnmasked folds a masked code back to its uppercase code.
type Alphabet struct {
	Letters    string
	Size       int
	Encode     [256]byte
	Decode     [ScoreMatrixRowSize]byte
	Complement [ScoreMatrixRowSize]byte
	ToUnmasked [ScoreMatrixRowSize]byte
}

// NewAlphabet builds an alphabet from its uppercase letters.
func NewAlphabet(letters string) (*Alphabet, error) {
	if len(letters) == 0 || len(letters) >= SequenceEndSentinel+26 {
		return nil, fmt.Errorf("bad alphabet: %q", letters)
	}
	a := &Alphabet{Letters: letters, Size: len(letters)}
	for i := range a.Encode {
		a.Encode[i] = byte(a.Size) // everything unknown acts as a sentinel
	}
	for i := range a.Decode {
		a.Decode[i] = '!'
		a.ToUnmasked[i] = byte(i)
		a.Complement[i] = byte(i)
	}
	masked := byte(a.Size + 1)
	for i := 0; i < len(letters); i++ {
		u := letters[i]
		l := byte(strings.ToLower(string(u))[0])
		a.Encode[u] = byte(i)
		a.Encode[l] = masked + byte(i)
		a.Decode[i] = u
		a.Decode[int(masked)+i] = l
		a.ToUnmasked[int(masked)+i] = byte(i)
	}
	a.Decode[a.Size] = 'N'
	if letters == DNA {
		comp := [4]byte{3, 2, 1, 0} // A<->T, C<->G
		for i := 0; i < 4; i++ {
			a.Complement[i] = comp[i]
			a.Complement[int(masked)+i] = masked + comp[i]
		}
	}
	return a, nil
}

// MustAlphabet is NewAlphabet for the built-in letter sets.
func MustAlphabet(letters string) *Alphabet {
	a, err := NewAlphabet(letters)
	if err != nil {
		panic(err)
	}
	return a
}

// EncodeSeq converts letters to codes in place-compatible fashion,
// returning a fresh slice.
func (a *Alphabet) EncodeSeq(s []byte) []byte {
	out := make([]byte, len(s))
	for i, c := range s {
		out[i] = a.Encode[c]
	}
	return out
}

// DecodeSeq converts codes back to letters.
func (a *Alphabet) DecodeSeq(s []byte) []byte {
	out := make([]byte, len(s))
	for i, c := range s {
		out[i] = a.Decode[c]
	}
	return out
}

// RevComp reverse-complements a coded sequence in place.
func (a *Alphabet) RevComp(s []byte) {
	for i, j := 0, len(s)-1; i <= j; i, j = i+1, j-1 {
		s[i], s[j] = a.Complement[s[j]], a.Complement[s[i]]
	}
}
