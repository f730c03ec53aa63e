package align

// PathAdder calculates a maximum local similarity between two coded
// sequences under an alignment probability model: the maximum, over
// coordinate pairs (i, j), of the summed probability ratios of all
// local alignment paths passing through (i, j).
//
// The first border letters of both sequences are treated as a border:
// paths may pass through them but not start or end there, which damps
// the edge effects of a plain local sum.
type PathAdder struct {
	values []float64
}

// MaxSum runs the forward and backward passes and returns the maximum
// pass-through sum. substitutionProbs[a][b] is the probability ratio of
// aligning letters a and b.
func (p *PathAdder) MaxSum(seq1, seq2 []byte, substitutionProbs [][]float64,
	delInitProb, delNextProb, insInitProb, insNextProb float64,
	border int) float64 {

	len1, len2 := len(seq1), len(seq2)
	w := len2 + 1
	n := (len1 + 1) * w * 3
	if cap(p.values) < n*2 {
		p.values = make([]float64, n*2)
	}
	fwd := p.values[:n]
	bwd := p.values[n : n*2]
	for i := range fwd {
		fwd[i] = 0
		bwd[i] = 0
	}
	// state layout per cell: match, delete, insert
	idx := func(i, j, s int) int { return (i*w+j)*3 + s }

	for i := 0; i <= len1; i++ {
		for j := 0; j <= len2; j++ {
			m := 0.0
			if i >= border && j >= border && i < len1 && j < len2 {
				m = 1 // a path may start here
			}
			if i > 0 && j > 0 {
				prev := fwd[idx(i-1, j-1, 0)] + fwd[idx(i-1, j-1, 1)] +
					fwd[idx(i-1, j-1, 2)]
				m += prev * substitutionProbs[seq1[i-1]][seq2[j-1]]
			}
			fwd[idx(i, j, 0)] = m
			if i > 0 {
				fwd[idx(i, j, 1)] = fwd[idx(i-1, j, 0)]*delInitProb +
					fwd[idx(i-1, j, 1)]*delNextProb
			}
			if j > 0 {
				fwd[idx(i, j, 2)] = fwd[idx(i, j-1, 0)]*insInitProb +
					fwd[idx(i, j-1, 2)]*insNextProb
			}
		}
	}

	for i := len1; i >= 0; i-- {
		for j := len2; j >= 0; j-- {
			m := 0.0
			if i >= border && j >= border {
				m = 1 // a path may end here
			}
			if i < len1 && j < len2 {
				diag := substitutionProbs[seq1[i]][seq2[j]] * bwd[idx(i+1, j+1, 0)]
				m += diag
				bwd[idx(i, j, 1)] = diag + delNextProb*bwd[idx(i+1, j, 1)]
				bwd[idx(i, j, 2)] = diag + insNextProb*bwd[idx(i, j+1, 2)]
			} else {
				if i < len1 {
					bwd[idx(i, j, 1)] = delNextProb * bwd[idx(i+1, j, 1)]
				}
				if j < len2 {
					bwd[idx(i, j, 2)] = insNextProb * bwd[idx(i, j+1, 2)]
				}
			}
			if i < len1 {
				m += delInitProb * bwd[idx(i+1, j, 1)]
			}
			if j < len2 {
				m += insInitProb * bwd[idx(i, j+1, 2)]
			}
			bwd[idx(i, j, 0)] = m
		}
	}

	best := 0.0
	for i := 0; i <= len1; i++ {
		for j := 0; j <= len2; j++ {
			v := fwd[idx(i, j, 0)] * bwd[idx(i, j, 0)]
			if v > best {
				best = v
			}
		}
	}
	return best
}
