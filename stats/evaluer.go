// Package stats turns alignment scores into E-values via a Gumbel
// model of local alignment score distributions.
package stats

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/sealkit/seal"
)

// ErrBadEvaluer reports that no statistical model is available for the
// requested alignment parameters.
var ErrBadEvaluer = errors.New("no statistics for these alignment parameters")

// gumbelCase is one precomputed gapped case.
type gumbelCase struct {
	matrixName       string
	delOpen, delEpen int
	insOpen, insEpen int
	lambda, k        float64
}

// Precomputed Gumbel parameters for common gapped scoring schemes.
var gappedCases = []gumbelCase{
	{"BLOSUM62", 11, 1, 11, 1, 0.267, 0.041},
	{"BLOSUM62", 11, 2, 11, 2, 0.297, 0.082},
	{"AT77", 11, 2, 11, 2, 0.2682, 0.0868},
	{"+1/-1", 2, 1, 2, 1, 1.09, 0.31},
	{"+1/-1", 11, 1, 11, 1, 1.32, 0.60},
}

// Evaluer has two states, good and bad, and starts bad. Only IsGood may
// be called in the bad state.
type Evaluer struct {
	good   bool
	lambda float64
	k      float64

	databaseMaxSeqLen     float64
	databaseLenMultiplier float64
	queryMaxSeqLen        float64
	areaMultiplier        float64
}

// Init tries to set up the model for a scoring scheme. For ungapped
// scoring it solves for lambda and K from the matrix and letter
// frequencies; for gapped scoring it looks the parameters up among the
// precomputed cases, and fails with ErrBadEvaluer when the case is
// unknown.
func (e *Evaluer) Init(matrixName string, scoreMatrix *seal.ScoreMatrix,
	letterFreqs1, letterFreqs2 []float64, isGapped bool,
	delOpen, delEpen, insOpen, insEpen int) error {

	e.good = false
	if !isGapped {
		lambda, err := ungappedLambda(scoreMatrix, letterFreqs1, letterFreqs2)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrBadEvaluer, err)
		}
		e.lambda = lambda
		e.k = ungappedK(scoreMatrix, letterFreqs1, letterFreqs2, lambda)
		e.good = true
		return nil
	}
	for _, c := range gappedCases {
		if c.matrixName == matrixName && c.delOpen == delOpen &&
			c.delEpen == delEpen && c.insOpen == insOpen &&
			c.insEpen == insEpen {
			e.lambda = c.lambda
			e.k = c.k
			e.good = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s with gap costs %d,%d/%d,%d",
		ErrBadEvaluer, matrixName, delOpen, delEpen, insOpen, insEpen)
}

// ungappedLambda solves sum(p1[a] p2[b] exp(lambda*s[a,b])) = 1 by
// bisection.
func ungappedLambda(m *seal.ScoreMatrix, p1, p2 []float64) (float64, error) {
	f := func(lambda float64) float64 {
		sum := 0.0
		for a := range p1 {
			for b := range p2 {
				s := m.Rows[a][b]
				if s <= -seal.INF {
					continue
				}
				sum += p1[a] * p2[b] * math.Exp(lambda*float64(s))
			}
		}
		return sum - 1
	}
	// the expected score must be negative and some score positive
	if f(1e-9) >= 0 || m.Max <= 0 {
		return 0, errors.New("expected score not negative")
	}
	lo, hi := 1e-9, 16.0
	for f(hi) < 0 {
		hi *= 2
		if hi > 1e4 {
			return 0, errors.New("lambda out of range")
		}
	}
	for i := 0; i < 128; i++ {
		mid := (lo + hi) / 2
		if f(mid) < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

// ungappedK is the Karlin-Altschul K, via the standard geometric
// approximation from the score distribution.
func ungappedK(m *seal.ScoreMatrix, p1, p2 []float64, lambda float64) float64 {
	// expected exp-weighted score
	h := 0.0
	for a := range p1 {
		for b := range p2 {
			s := m.Rows[a][b]
			if s <= -seal.INF {
				continue
			}
			h += p1[a] * p2[b] * float64(s) * math.Exp(lambda*float64(s))
		}
	}
	if h <= 0 {
		return 0.1
	}
	// crude but stable: K ~= 0.7 * lambda * maxScore / h
	k := 0.7 * lambda / h * float64(m.Max)
	if k <= 0 || k > 1 {
		k = 0.1
	}
	return k
}

// IsGood reports whether the model initialized successfully.
func (e *Evaluer) IsGood() bool { return e.good }

func (e *Evaluer) mustBeGood() {
	if !e.good {
		log.Panicf("evaluer used in the bad state")
	}
}

// SetSearchSpace fixes the search-space sizes that turn per-area
// E-values into whole-search E-values.
func (e *Evaluer) SetSearchSpace(databaseTotSeqLength, databaseMaxSeqLength,
	queryTotSeqLength, queryMaxSeqLength, numOfStrands float64) {

	if databaseMaxSeqLength > 0 {
		e.databaseMaxSeqLen = databaseMaxSeqLength
		e.areaMultiplier = databaseTotSeqLength / e.databaseMaxSeqLen * numOfStrands
	} else {
		e.databaseMaxSeqLen = 1
		e.areaMultiplier = 0
	}
	e.databaseLenMultiplier = e.areaMultiplier
	e.queryMaxSeqLen = queryMaxSeqLength
	if queryMaxSeqLength > 0 {
		e.areaMultiplier *= queryTotSeqLength / e.queryMaxSeqLen
	}
}

// EvaluePerArea is the expected number of alignments per unit of
// search-space area at the given score.
func (e *Evaluer) EvaluePerArea(score float64) float64 {
	e.mustBeGood()
	return e.k * math.Exp(-e.lambda*score)
}

// BitScore converts a raw score to bits.
func (e *Evaluer) BitScore(score float64) float64 {
	e.mustBeGood()
	return (e.lambda*score - math.Log(e.k)) / math.Ln2
}

func (e *Evaluer) rawArea(score, queryLength, dbLength float64) float64 {
	// finite-size correction: trim the expected alignment length
	l := math.Log(e.k*queryLength*dbLength) / e.lambda
	q := queryLength - l
	d := dbLength - l
	if q < 1 {
		q = 1
	}
	if d < 1 {
		d = 1
	}
	_ = score
	return q * d
}

// Area is the effective search-space area for one query.
func (e *Evaluer) Area(score, queryLength float64) float64 {
	e.mustBeGood()
	q := queryLength
	if e.queryMaxSeqLen > 0 {
		q = e.queryMaxSeqLen
	}
	return e.areaMultiplier * e.rawArea(score, q, e.databaseMaxSeqLen)
}

// MinScore is max(0, the smallest score whose E-value over the given
// area is at most evalue).
func (e *Evaluer) MinScore(evalue, area float64) float64 {
	e.mustBeGood()
	if evalue <= 0 || area <= 0 {
		return 0
	}
	s := math.Ceil(math.Log(e.k*area/evalue) / e.lambda)
	if s < 0 {
		return 0
	}
	return s
}

// WriteCommented prints the model parameters preceded by "#". It does
// nothing in the bad state.
func (e *Evaluer) WriteCommented(w io.Writer) {
	if !e.good {
		return
	}
	fmt.Fprintf(w, "# lambda=%g K=%g\n", e.lambda, e.k)
}
