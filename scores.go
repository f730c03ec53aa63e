package seal

import "math"

// INF is the infinite alignment score. Scores at or below -INF mean an
// alignment has been abandoned.
const INF = math.MaxInt32 / 2

// ScoreMatrixRow is one row of a substitution score matrix or a PSSM.
type ScoreMatrixRow [ScoreMatrixRowSize]int

// ScoreMatrix scores letter pairs: Rows[a][b] is the score for aligning
// code a from sequence 1 to code b from sequence 2. Entries involving the
// sentinel are strongly negative so that extensions never cross a
// sequence boundary.
type ScoreMatrix struct {
	Rows []ScoreMatrixRow
	Max  int
	Min  int
}

func newScoreMatrix(size int) *ScoreMatrix {
	m := &ScoreMatrix{Rows: make([]ScoreMatrixRow, ScoreMatrixRowSize)}
	for i := range m.Rows {
		for j := range m.Rows[i] {
			m.Rows[i][j] = -INF
		}
	}
	m.Max, m.Min = -INF, INF
	_ = size
	return m
}

func (m *ScoreMatrix) set(a, b, score int) {
	m.Rows[a][b] = score
	if score > m.Max {
		m.Max = score
	}
	if score < m.Min {
		m.Min = score
	}
}

// Score is a bounds-safe lookup.
func (m *ScoreMatrix) Score(a, b byte) int {
	if int(a) >= len(m.Rows) || int(b) >= ScoreMatrixRowSize {
		return -INF
	}
	return m.Rows[a][b]
}

// IdentityMatrix scores match/mismatch over an alphabet, with masked
// letters folded onto their uppercase codes.
func IdentityMatrix(alph *Alphabet, match, mismatch int) *ScoreMatrix {
	m := newScoreMatrix(alph.Size)
	masked := alph.Size + 1
	codes := make([]int, 0, 2*alph.Size)
	for i := 0; i < alph.Size; i++ {
		codes = append(codes, i, masked+i)
	}
	for _, a := range codes {
		for _, b := range codes {
			s := mismatch
			if alph.ToUnmasked[a] == alph.ToUnmasked[b] {
				s = match
			}
			m.set(a, b, s)
		}
	}
	return m
}

// MatrixFromLetters fills a matrix from per-letter-pair scores, e.g. a
// BLOSUM table. rows and cols name the letters of each axis.
func MatrixFromLetters(alph *Alphabet, rows, cols string, scores [][]int) *ScoreMatrix {
	m := newScoreMatrix(alph.Size)
	masked := byte(alph.Size + 1)
	expand := func(c byte) []byte {
		u := alph.Encode[c]
		if int(u) >= alph.Size {
			return nil
		}
		return []byte{u, masked + u}
	}
	for i := 0; i < len(rows); i++ {
		for j := 0; j < len(cols); j++ {
			for _, a := range expand(rows[i]) {
				for _, b := range expand(cols[j]) {
					m.set(int(a), int(b), scores[i][j])
				}
			}
		}
	}
	return m
}

// ProbMatrix derives the probability-ratio matrix that corresponds to
// the integer scores under lambda: p[a][b] = exp(score[a][b] * lambda).
// Sentinel rows stay zero.
func (m *ScoreMatrix) ProbMatrix(lambda float64) [][]float64 {
	p := make([][]float64, ScoreMatrixRowSize)
	for i := range p {
		p[i] = make([]float64, ScoreMatrixRowSize)
	}
	for a := 0; a < ScoreMatrixRowSize; a++ {
		for b := 0; b < ScoreMatrixRowSize; b++ {
			s := m.Rows[a][b]
			if s <= -INF {
				continue
			}
			p[a][b] = math.Exp(float64(s) * lambda)
		}
	}
	return p
}

// blosum62Scores is the standard BLOSUM62 table over the Protein letters,
// in the same letter order as the Protein constant.
var blosum62Scores = [][]int{
	{4, 0, -2, -1, -2, 0, -2, -1, -1, -1, -1, -2, -1, -1, -1, 1, 0, 0, -3, -2},
	{0, 9, -3, -4, -2, -3, -3, -1, -3, -1, -1, -3, -3, -3, -3, -1, -1, -1, -2, -2},
	{-2, -3, 6, 2, -3, -1, -1, -3, -1, -4, -3, 1, -1, 0, -2, 0, -1, -3, -4, -3},
	{-1, -4, 2, 5, -3, -2, 0, -3, 1, -3, -2, 0, -1, 2, 0, 0, -1, -2, -3, -2},
	{-2, -2, -3, -3, 6, -3, -1, 0, -3, 0, 0, -3, -4, -3, -3, -2, -2, -1, 1, 3},
	{0, -3, -1, -2, -3, 6, -2, -4, -2, -4, -3, 0, -2, -2, -2, 0, -2, -3, -2, -3},
	{-2, -3, -1, 0, -1, -2, 8, -3, -1, -3, -2, 1, -2, 0, 0, -1, -2, -3, -2, 2},
	{-1, -1, -3, -3, 0, -4, -3, 4, -3, 2, 1, -3, -3, -3, -3, -2, -1, 3, -3, -1},
	{-1, -3, -1, 1, -3, -2, -1, -3, 5, -2, -1, 0, -1, 1, 2, 0, -1, -2, -3, -2},
	{-1, -1, -4, -3, 0, -4, -3, 2, -2, 4, 2, -3, -3, -2, -2, -2, -1, 1, -2, -1},
	{-1, -1, -3, -2, 0, -3, -2, 1, -1, 2, 5, -2, -2, 0, -1, -1, -1, 1, -1, -1},
	{-2, -3, 1, 0, -3, 0, 1, -3, 0, -3, -2, 6, -2, 0, 0, 1, 0, -3, -4, -2},
	{-1, -3, -1, -1, -4, -2, -2, -3, -1, -3, -2, -2, 7, -1, -2, -1, -1, -2, -4, -3},
	{-1, -3, 0, 2, -3, -2, 0, -3, 1, -2, 0, 0, -1, 5, 1, 0, -1, -2, -2, -1},
	{-1, -3, -2, 0, -3, -2, 0, -3, 2, -2, -1, 0, -2, 1, 5, -1, -1, -3, -3, -2},
	{1, -1, 0, 0, -2, 0, -1, -2, 0, -2, -1, 1, -1, 0, -1, 4, 1, -2, -3, -2},
	{0, -1, -1, -1, -2, -2, -2, -1, -1, -1, -1, 0, -1, -1, -1, 1, 5, 0, -2, -2},
	{0, -1, -3, -2, -1, -3, -3, 3, -2, 1, 1, -3, -2, -2, -3, -2, 0, 4, -3, -1},
	{-3, -2, -4, -3, 1, -2, -2, -3, -3, -2, -1, -4, -4, -2, -3, -3, -2, -3, 11, 2},
	{-2, -2, -3, -2, 3, -3, 2, -1, -2, -1, -1, -2, -3, -1, -2, -2, -2, -1, 2, 7},
}

// Blosum62 builds the BLOSUM62 score matrix for a protein alphabet.
func Blosum62(alph *Alphabet) *ScoreMatrix {
	return MatrixFromLetters(alph, Protein, Protein, blosum62Scores)
}
