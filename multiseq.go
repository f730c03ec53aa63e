package seal

import (
	"bufio"
	"fmt"
	"io"
)

// Forward and reverse strand characters stored at the tail of each
// sequence name. The pair is chosen so that flipping is a fixed xor.
const (
	StrandFwd = '1'
	StrandRev = '2'
)

func flipStrandChar(c byte) byte { return ((c - 1) ^ 1) + 1 }

// MultiSequence holds many sequences packed into one coded byte buffer.
// Sequences are separated by PadSize sentinel bytes and the buffer begins
// with PadSize sentinel bytes, so Ends[0] == PadSize. Sequence i occupies
// [Ends[i], Ends[i+1]-PadSize) and Ends[i+1] is the end of its trailing
// pad. Qualities, when present, hold QualsPerLetter bytes per buffer
// position; the PSSM, when present, holds one ScoreMatrixRow per buffer
// position.
type MultiSequence struct {
	Seq            []byte
	Ends           []int
	Names          []byte
	NameEnds       []int
	Quals          []byte
	QualsPerLetter int
	Pssm           []int
	PadSize        int
}

// InitForAppending prepares an empty container.
func (m *MultiSequence) InitForAppending(padSize int) {
	m.PadSize = padSize
	m.Seq = m.Seq[:0]
	for i := 0; i < padSize; i++ {
		m.Seq = append(m.Seq, SequenceEndSentinel)
	}
	m.Ends = append(m.Ends[:0], padSize)
	m.Names = m.Names[:0]
	m.NameEnds = append(m.NameEnds[:0], 0)
	m.Quals = m.Quals[:0]
	m.Pssm = m.Pssm[:0]
}

// ReinitForAppending drops all finished sequences, keeping any data
// appended after the last finished one.
func (m *MultiSequence) ReinitForAppending() {
	n := m.Count()
	s := m.PadBeg(n)
	m.Seq = append(m.Seq[:0], m.Seq[s:]...)
	m.Names = append(m.Names[:0], m.Names[m.NameEnds[n]:]...)
	m.Ends = m.Ends[:1]
	m.NameEnds = m.NameEnds[:1]
	if len(m.Names) > 0 {
		m.NameEnds = append(m.NameEnds, len(m.Names))
	}
	if m.QualsPerLetter > 0 {
		m.Quals = append(m.Quals[:0], m.Quals[s*m.QualsPerLetter:]...)
	}
	if len(m.Pssm) > 0 {
		m.Pssm = append(m.Pssm[:0], m.Pssm[s*ScoreMatrixRowSize:]...)
	}
}

// Count is the number of finished sequences.
func (m *MultiSequence) Count() int { return len(m.Ends) - 1 }

func (m *MultiSequence) SeqBeg(i int) int { return m.Ends[i] }
func (m *MultiSequence) SeqEnd(i int) int { return m.Ends[i+1] - m.PadSize }
func (m *MultiSequence) SeqLen(i int) int { return m.SeqEnd(i) - m.SeqBeg(i) }
func (m *MultiSequence) PadBeg(i int) int {
	if i == 0 {
		return 0
	}
	return m.Ends[i] - m.PadSize
}
func (m *MultiSequence) PadEnd(i int) int { return m.Ends[i+1] }

// Name returns sequence i's name without its strand character.
func (m *MultiSequence) Name(i int) string {
	b := m.Names[m.NameEnds[i] : m.NameEnds[i+1]-1]
	return string(b)
}

// StrandChar returns the strand character at the tail of name i.
func (m *MultiSequence) StrandChar(i int) byte {
	return m.Names[m.NameEnds[i+1]-1]
}

// AddName records a name for the sequence being appended, with a forward
// strand character tail.
func (m *MultiSequence) AddName(name string) {
	m.Names = append(m.Names, name...)
	m.Names = append(m.Names, StrandFwd)
	m.NameEnds = append(m.NameEnds, len(m.Names))
}

// AppendLetters appends coded letters to the sequence in progress.
func (m *MultiSequence) AppendLetters(codes []byte) {
	m.Seq = append(m.Seq, codes...)
}

// AppendQuals appends quality bytes for the letters appended so far.
func (m *MultiSequence) AppendQuals(quals []byte, qualsPerLetter int) {
	m.QualsPerLetter = qualsPerLetter
	m.Quals = append(m.Quals, quals...)
}

// FinishTheLastSequence terminates the sequence in progress with pad
// bytes and records its end.
func (m *MultiSequence) FinishTheLastSequence() {
	for i := 0; i < m.PadSize; i++ {
		m.Seq = append(m.Seq, SequenceEndSentinel)
	}
	if m.QualsPerLetter > 0 {
		want := len(m.Seq) * m.QualsPerLetter
		for len(m.Quals) < want {
			m.Quals = append(m.Quals, 0)
		}
	}
	m.Ends = append(m.Ends, len(m.Seq))
}

// AppendFromFasta reads one FASTA record from r, encodes it with alph,
// and appends it as a finished sequence. io.EOF is returned once the
// input is exhausted.
func (m *MultiSequence) AppendFromFasta(r *bufio.Reader, alph *Alphabet) error {
	c, err := readNonSpace(r)
	if err != nil {
		return err
	}
	if c != '>' {
		return fmt.Errorf("bad FASTA sequence data: missing '>'")
	}
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	name := firstWord(line)
	m.AddName(name)
	for {
		c, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if c == '>' {
			r.UnreadByte()
			break
		}
		if c > ' ' {
			m.Seq = append(m.Seq, alph.Encode[c])
		}
	}
	m.FinishTheLastSequence()
	return nil
}

func readNonSpace(r *bufio.Reader) (byte, error) {
	for {
		c, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if c > ' ' {
			return c, nil
		}
	}
}

func firstWord(s string) string {
	beg := 0
	for beg < len(s) && s[beg] <= ' ' {
		beg++
	}
	end := beg
	for end < len(s) && s[end] > ' ' {
		end++
	}
	return s[beg:end]
}

// ReverseComplementOneSequence reverses sequence i in place, mapping
// letters through the complement table, reversing the quality run,
// flipping the strand character, and reversing PSSM rows with columns
// permuted by the complement.
func (m *MultiSequence) ReverseComplementOneSequence(i int, complement *[ScoreMatrixRowSize]byte) {
	b := m.SeqBeg(i)
	e := m.SeqEnd(i)
	s := m.Seq
	for x, y := b, e-1; x < y; x, y = x+1, y-1 {
		s[x], s[y] = s[y], s[x]
	}
	q := m.QualsPerLetter
	for x, y := b*q, e*q-1; x < y; x, y = x+1, y-1 {
		m.Quals[x], m.Quals[y] = m.Quals[y], m.Quals[x]
	}

	if complement != nil {
		for x := b; x < e; x++ {
			s[x] = complement[s[x]]
		}
		m.Names[m.NameEnds[i+1]-1] = flipStrandChar(m.Names[m.NameEnds[i+1]-1])
	}

	if len(m.Pssm) > 0 {
		p := m.Pssm
		for b < e {
			e--
			for c := 0; c < ScoreMatrixRowSize; c++ {
				d := c
				if complement != nil {
					d = int(complement[c])
				}
				if b < e || c < d {
					p[b*ScoreMatrixRowSize+c], p[e*ScoreMatrixRowSize+d] =
						p[e*ScoreMatrixRowSize+d], p[b*ScoreMatrixRowSize+c]
				}
			}
			b++
		}
	}
}

// DuplicateOneSequence appends a copy of sequence i, name included.
func (m *MultiSequence) DuplicateOneSequence(i int) {
	nb, ne := m.NameEnds[i], m.NameEnds[i+1]
	m.Names = append(m.Names, m.Names[nb:ne]...)
	m.NameEnds = append(m.NameEnds, len(m.Names))

	b := m.SeqBeg(i)
	e := m.PadEnd(i)
	m.Seq = append(m.Seq, m.Seq[b:e]...)
	m.Ends = append(m.Ends, len(m.Seq))

	q := m.QualsPerLetter
	if q > 0 {
		m.Quals = append(m.Quals, m.Quals[b*q:e*q]...)
	}
	if len(m.Pssm) > 0 {
		panic("cannot duplicate a sequence with a PSSM")
	}
}
