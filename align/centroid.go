package align

import (
	"math"

	"github.com/sealkit/seal"
)

// Centroid runs sum-of-paths dynamic programming over the band left
// behind by an XdropAligner, for full scores, per-column posterior
// probabilities, gamma-centroid / LAMA tracebacks, and expected counts.
// It uses only the first del and ins gap pieces, whereas the X-drop
// extension it annotates uses every piece. Individual cells may underflow to zero for very long
// extensions; callers treat such probabilities as zero.
type Centroid struct {
	X *XdropAligner

	lambda  float64
	probMat [][]float64
	delInit, delNext float64
	insInit, insNext float64
	pairInit         float64

	fM, fD, fI []float64
	bM, bD, bI []float64
	z          float64

	dpVal  []float64
	dpI, dpJ int
	dpDone   bool
}

func (c *Centroid) resize(buf []float64) []float64 {
	n := len(c.X.mat)
	if cap(buf) < n {
		buf = make([]float64, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

func (c *Centroid) at(buf []float64, i, j int) float64 {
	x := c.X
	if i < 0 || i >= x.numRows || j < x.rowLo[i] || j >= x.rowHi[i] {
		return 0
	}
	return buf[x.rowOrigin[i]+j]
}

func (c *Centroid) setGapProbs(gap *seal.GapCosts, lambda float64) {
	c.lambda = lambda
	del := gap.DelPieces[0]
	ins := gap.InsPieces[0]
	c.delInit = math.Exp(-float64(del.Open+del.Grow) * lambda)
	c.delNext = math.Exp(-float64(del.Grow) * lambda)
	c.insInit = math.Exp(-float64(ins.Open+ins.Grow) * lambda)
	c.insNext = math.Exp(-float64(ins.Grow) * lambda)
	c.pairInit = 0
	if gap.PairCost < seal.INF {
		c.pairInit = math.Exp(-float64(ins.Open+ins.Grow+gap.PairCost) * lambda)
	}
}

func (c *Centroid) subProb(i, j int) float64 {
	x := c.X
	return c.probMat[x.ch1(i)][x.ch2(j)]
}

// Forward fills the forward table over the band and returns the natural
// log of the partition function. probMat must correspond to the integer
// scores under lambda: probMat[a][b] = exp(score[a][b] * lambda).
func (c *Centroid) Forward(probMat [][]float64, gap *seal.GapCosts,
	globality int, lambda float64) float64 {

	x := c.X
	c.probMat = probMat
	c.setGapProbs(gap, lambda)
	c.fM = c.resize(c.fM)
	c.fD = c.resize(c.fD)
	c.fI = c.resize(c.fI)

	z := 0.0
	for i := 0; i < x.numRows; i++ {
		for j := x.rowLo[i]; j < x.rowHi[i]; j++ {
			ij := x.rowOrigin[i] + j
			if i == 0 && j == 0 {
				c.fM[ij] = 1
			} else if i > 0 && j > 0 {
				prev := c.at(c.fM, i-1, j-1) + c.at(c.fD, i-1, j-1) +
					c.at(c.fI, i-1, j-1)
				if prev > 0 {
					c.fM[ij] = prev * c.subProb(i-1, j-1)
				}
			}
			c.fD[ij] = c.at(c.fM, i-1, j)*c.delInit +
				c.at(c.fD, i-1, j)*c.delNext
			c.fI[ij] = c.at(c.fM, i, j-1)*c.insInit +
				c.at(c.fI, i, j-1)*c.insNext +
				c.at(c.fD, i, j-1)*c.pairInit

			if globality == 0 {
				z += c.fM[ij]
			} else if c.fM[ij] > 0 &&
				(i == x.max1 || j == x.max2 ||
					x.ch1(i) == seal.SequenceEndSentinel ||
					x.ch2(j) == seal.SequenceEndSentinel) {
				z += c.fM[ij]
			}
		}
	}
	c.z = z
	if z <= 0 {
		return -math.MaxFloat64
	}
	return math.Log(z)
}

// Backward fills the backward table. Forward must have run first.
func (c *Centroid) Backward(globality int) {
	x := c.X
	c.bM = c.resize(c.bM)
	c.bD = c.resize(c.bD)
	c.bI = c.resize(c.bI)

	for i := x.numRows - 1; i >= 0; i-- {
		for j := x.rowHi[i] - 1; j >= x.rowLo[i]; j-- {
			ij := x.rowOrigin[i] + j
			sub := 0.0
			if i < x.max1 && j < x.max2 {
				sub = c.subProb(i, j)
			}
			diag := sub * c.at(c.bM, i+1, j+1)
			c.bM[ij] = diag + c.delInit*c.at(c.bD, i+1, j) +
				c.insInit*c.at(c.bI, i, j+1)
			if globality == 0 {
				c.bM[ij]++ // every match cell may end the path
			} else if i == x.max1 || j == x.max2 ||
				x.ch1(i) == seal.SequenceEndSentinel ||
				x.ch2(j) == seal.SequenceEndSentinel {
				c.bM[ij]++
			}
			c.bD[ij] = diag + c.delNext*c.at(c.bD, i+1, j) +
				c.pairInit*c.at(c.bI, i, j+1)
			c.bI[ij] = diag + c.insNext*c.at(c.bI, i, j+1)
		}
	}
}

// MatchProb is the posterior probability that the extension aligns
// letters i-1 of sequence 1 and j-1 of sequence 2 (outward from the
// anchor), i.e. that the path passes through match cell (i, j).
func (c *Centroid) MatchProb(i, j int) float64 {
	if c.z <= 0 {
		return 0
	}
	p := c.at(c.fM, i, j) * c.at(c.bM, i, j) / c.z
	if math.IsNaN(p) {
		return 0
	}
	return p
}

func (c *Centroid) colSum(f, b []float64, j int) float64 {
	x := c.X
	sum := 0.0
	for i := 0; i < x.numRows; i++ {
		if j < x.rowLo[i] || j >= x.rowHi[i] {
			continue
		}
		ij := x.rowOrigin[i] + j
		sum += f[ij] * b[ij]
	}
	if c.z <= 0 {
		return 0
	}
	return sum / c.z
}

// GetMatchAmbiguities appends one code per match column of a chunk,
// walking from the chunk's far end back toward the anchor.
func (c *Centroid) GetMatchAmbiguities(codes []byte, end1, end2, size int) []byte {
	for k := 0; k < size; k++ {
		codes = append(codes, seal.AsciiProbability(c.MatchProb(end1-k, end2-k)))
	}
	return codes
}

// GetInsertAmbiguities appends one code per inserted sequence-2 letter
// between two chunks, walking backward from beg2 (exclusive gap start)
// down to end2.
func (c *Centroid) GetInsertAmbiguities(codes []byte, beg2, end2 int) []byte {
	for j := beg2; j > end2; j-- {
		codes = append(codes, seal.AsciiProbability(c.colSum(c.fI, c.bI, j)))
	}
	return codes
}

// GetDeleteAmbiguities is the sequence-1 counterpart of
// GetInsertAmbiguities.
func (c *Centroid) GetDeleteAmbiguities(codes []byte, beg1, end1 int) []byte {
	x := c.X
	for i := beg1; i > end1; i-- {
		sum := 0.0
		if i >= 0 && i < x.numRows {
			for j := x.rowLo[i]; j < x.rowHi[i]; j++ {
				ij := x.rowOrigin[i] + j
				sum += c.fD[ij] * c.bD[ij]
			}
		}
		p := 0.0
		if c.z > 0 {
			p = sum / c.z
		}
		codes = append(codes, seal.AsciiProbability(p))
	}
	return codes
}

// Dp runs the gamma-centroid (output type 5) or LAMA (output type 6)
// accuracy dynamic program over the band.
func (c *Centroid) Dp(outputType int, gamma float64) {
	x := c.X
	c.dpVal = c.resize(c.dpVal)
	best := 0.0
	c.dpI, c.dpJ = 0, 0
	for i := 0; i < x.numRows; i++ {
		for j := x.rowLo[i]; j < x.rowHi[i]; j++ {
			ij := x.rowOrigin[i] + j
			v := math.Max(c.at(c.dpVal, i-1, j), c.at(c.dpVal, i, j-1))
			if i > 0 && j > 0 {
				p := c.MatchProb(i, j)
				var colScore float64
				if outputType == 5 {
					colScore = (1+gamma)*p - 1
				} else {
					colScore = p - gamma*(1-p)
				}
				d := c.at(c.dpVal, i-1, j-1) + colScore
				if d > v {
					v = d
				}
			}
			if v < 0 {
				v = 0
			}
			c.dpVal[ij] = v
			if v > best {
				best = v
				c.dpI, c.dpJ = i, j
			}
		}
	}
	c.dpDone = false
}

// Traceback reports the next ungapped block of the accuracy alignment,
// far end first. beg1 and beg2 are the block's anchor-ward coordinates.
func (c *Centroid) Traceback(outputType int, gamma float64) (beg1, beg2, size int, ok bool) {
	if c.dpDone {
		return 0, 0, 0, false
	}
	i, j := c.dpI, c.dpJ
	for {
		if i == 0 || j == 0 || c.at(c.dpVal, i, j) <= 0 {
			c.dpDone = true
			return 0, 0, 0, false
		}
		v := c.dpVal[c.X.rowOrigin[i]+j]
		if v == c.at(c.dpVal, i-1, j) {
			i--
			continue
		}
		if v == c.at(c.dpVal, i, j-1) {
			j--
			continue
		}
		break
	}
	end1, _ := i, j
	for i > 0 && j > 0 && c.at(c.dpVal, i, j) > 0 {
		v := c.dpVal[c.X.rowOrigin[i]+j]
		if v == c.at(c.dpVal, i-1, j) || v == c.at(c.dpVal, i, j-1) {
			break
		}
		i--
		j--
	}
	c.dpI, c.dpJ = i, j
	size = end1 - i
	if size == 0 {
		c.dpDone = true
		return 0, 0, 0, false
	}
	return i, j, size, true
}

// AddExpectedCounts accumulates expected substitution counts per letter
// pair and expected transition counts. The five transition slots are:
// match columns, deletion opens, deletion extensions, insertion opens,
// insertion extensions.
func (c *Centroid) AddExpectedCounts(subsCounts [][]float64, tranCounts []float64) {
	x := c.X
	if c.z <= 0 {
		return
	}
	for i := 0; i < x.numRows; i++ {
		for j := x.rowLo[i]; j < x.rowHi[i]; j++ {
			ij := x.rowOrigin[i] + j
			if i > 0 && j > 0 {
				p := c.fM[ij] * c.bM[ij] / c.z
				if p > 0 {
					a := x.ch1(i - 1)
					b := x.ch2(j - 1)
					subsCounts[a][b] += p
					tranCounts[0] += p
				}
			}
			// transitions into the deletion state at (i+1, j)
			dNext := c.at(c.bD, i+1, j)
			if dNext > 0 {
				tranCounts[1] += c.fM[ij] * c.delInit * dNext / c.z
				tranCounts[2] += c.fD[ij] * c.delNext * dNext / c.z
			}
			iNext := c.at(c.bI, i, j+1)
			if iNext > 0 {
				tranCounts[3] += c.fM[ij] * c.insInit * iNext / c.z
				tranCounts[4] += c.fI[ij] * c.insNext * iNext / c.z
			}
		}
	}
}
