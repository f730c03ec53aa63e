package split

import (
	"math"
	"sort"
)

const longMin = math.MinInt / 2

func (a *Aligner) vvecCell(j int) *int      { return &a.Vvec[j-a.minBeg] }
func (a *Aligner) rescaleCell(j int) *float64 { return &a.rescales[j-a.minBeg] }

// updateInplayAlnIndicesF maintains, going forward, the set of rows
// whose DP range covers column j, ordered by chromosome & strand then
// genomic start.
func (a *Aligner) updateInplayAlnIndicesF(sortedAlnPos, oldNumInplay,
	newNumInplay *int, j int) {

	a.oldInplayAlnIndices, a.newInplayAlnIndices =
		a.newInplayAlnIndices, a.oldInplayAlnIndices
	*oldNumInplay = *newNumInplay

	newEnd := 0
	for k := 0; k < *oldNumInplay; k++ {
		i := a.oldInplayAlnIndices[k]
		if a.dpEnd(i) == j {
			continue // it is no longer "in play"
		}
		a.newInplayAlnIndices[newEnd] = i
		newEnd++
	}

	sortedAlnOldPos := *sortedAlnPos
	for *sortedAlnPos < a.numAlns() {
		i := a.sortedAlnIndices[*sortedAlnPos]
		if a.dpBeg(i) > j {
			break // it is not yet "in play"
		}
		*sortedAlnPos++
	}

	mergeInto(a.newInplayAlnIndices, newEnd,
		a.sortedAlnIndices[sortedAlnOldPos:*sortedAlnPos], a.rBegLess)
	*newNumInplay = newEnd + (*sortedAlnPos - sortedAlnOldPos)
}

// updateInplayAlnIndicesB is the backward-pass counterpart, ordered by
// chromosome & strand then decreasing genomic end.
func (a *Aligner) updateInplayAlnIndicesB(sortedAlnPos, oldNumInplay,
	newNumInplay *int, j int) {

	a.oldInplayAlnIndices, a.newInplayAlnIndices =
		a.newInplayAlnIndices, a.oldInplayAlnIndices
	*oldNumInplay = *newNumInplay

	newEnd := 0
	for k := 0; k < *oldNumInplay; k++ {
		i := a.oldInplayAlnIndices[k]
		if a.dpBeg(i) == j {
			continue // it is no longer "in play"
		}
		a.newInplayAlnIndices[newEnd] = i
		newEnd++
	}

	sortedAlnOldPos := *sortedAlnPos
	for *sortedAlnPos < a.numAlns() {
		i := a.sortedAlnIndices[*sortedAlnPos]
		if a.dpEnd(i) < j {
			break // it is not yet "in play"
		}
		*sortedAlnPos++
	}

	mergeInto(a.newInplayAlnIndices, newEnd,
		a.sortedAlnIndices[sortedAlnOldPos:*sortedAlnPos], a.rEndLess)
	*newNumInplay = newEnd + (*sortedAlnPos - sortedAlnOldPos)
}

// scoreFromSplice is the best Viterbi value reachable at (i, j) via a
// cis-splice from an in-play row on the same chromosome & strand.
func (a *Aligner) scoreFromSplice(i, j, oldNumInplay int, oldInplayPos *int) int {
	maxSpliceDist := a.params.MaxSpliceDist
	ij := a.cell(i, j)
	score := longMin
	iSeq := a.rnameAndStrandIds[i]
	iEnd := a.spliceEndCoords[ij]

	for ; *oldInplayPos < oldNumInplay; *oldInplayPos++ {
		k := a.oldInplayAlnIndices[*oldInplayPos]
		if a.rnameAndStrandIds[k] < iSeq {
			continue
		}
		if a.rnameAndStrandIds[k] > iSeq || a.rBegs[k] >= iEnd {
			return score
		}
		kj := a.cell(k, j)
		kBeg := a.spliceBegCoords[kj]
		if kBeg >= a.rBegs[i] || a.rBegs[i]-kBeg <= maxSpliceDist {
			break
		}
	}

	for y := *oldInplayPos; y < oldNumInplay; y++ {
		k := a.oldInplayAlnIndices[y]
		if a.rnameAndStrandIds[k] > iSeq || a.rBegs[k] >= iEnd {
			break
		}
		kj := a.cell(k, j)
		kBeg := a.spliceBegCoords[kj]
		if iEnd <= kBeg {
			continue
		}
		if iEnd-kBeg > maxSpliceDist {
			continue
		}
		s := a.Vmat[kj] + a.spliceBegScore(kj) + a.params.SpliceScore(iEnd-kBeg)
		if s > score {
			score = s
		}
	}

	return score
}

// ViterbiSplit runs the Viterbi pass without splice scoring and returns
// the optimal split-alignment score.
func (a *Aligner) ViterbiSplit() int {
	restartScore := a.params.RestartScore
	inplayEnd := 0
	sortedAlnPos := 0

	maxScore := 0

	for j := a.minBeg; j < a.maxEnd; j++ {
		for inplayEnd > 0 && a.dpEnd(a.newInplayAlnIndices[inplayEnd-1]) == j {
			inplayEnd-- // it is no longer "in play"
		}
		sortedAlnBeg := sortedAlnPos
		for sortedAlnPos < a.numAlns() &&
			a.dpBeg(a.sortedAlnIndices[sortedAlnPos]) == j {
			sortedAlnPos++
		}
		mergeInto(a.newInplayAlnIndices, inplayEnd,
			a.sortedAlnIndices[sortedAlnBeg:sortedAlnPos], a.endLess)
		inplayEnd += sortedAlnPos - sortedAlnBeg

		*a.vvecCell(j) = maxScore
		scoreFromJump := maxScore + restartScore
		for x := 0; x < inplayEnd; x++ {
			ij := a.cell(a.newInplayAlnIndices[x], j)
			s := maxInt(scoreFromJump, a.Vmat[ij]+a.Smat[ij*2]) + a.Smat[ij*2+1]
			a.Vmat[ij+1] = s
			if s > maxScore {
				maxScore = s
			}
		}
	}

	*a.vvecCell(a.maxEnd) = maxScore
	return maxScore
}

// ViterbiSplice runs the Viterbi pass with splice scoring and returns
// the best score over candidate end positions.
func (a *Aligner) ViterbiSplice() int {
	p := a.params
	jumpScore := p.JumpScore
	restartScore := p.RestartScore
	splicePrior := p.SplicePrior
	sortedAlnPos := 0
	oldNumInplay := 0
	newNumInplay := 0

	maxScore := 0
	scoreFromJump := restartScore

	for j := a.minBeg; j < a.maxEnd; j++ {
		a.updateInplayAlnIndicesF(&sortedAlnPos, &oldNumInplay, &newNumInplay, j)
		oldInplayPos := 0
		*a.vvecCell(j) = maxScore
		sMax := longMin
		for x := 0; x < newNumInplay; x++ {
			i := a.newInplayAlnIndices[x]
			ij := a.cell(i, j)

			s := scoreFromJump
			if splicePrior > 0 {
				s = maxInt(s, a.scoreFromSplice(i, j, oldNumInplay, &oldInplayPos))
			}
			s += a.spliceEndScore(ij)
			s = maxInt(s, a.Vmat[ij]+a.Smat[ij*2])
			if a.alns[i].Qstart == j && s < 0 {
				s = 0
			}
			s += a.Smat[ij*2+1]

			a.Vmat[ij+1] = s
			sMax = maxInt(sMax, s+a.spliceBegScore(ij+1))
		}
		maxScore = maxInt(sMax, maxScore)
		scoreFromJump = maxInt(sMax+jumpScore, maxScore+restartScore)
	}

	*a.vvecCell(a.maxEnd) = maxScore
	return a.endScore()
}

func (a *Aligner) endScore() int {
	score := longMin
	for i := 0; i < a.numAlns(); i++ {
		score = maxInt(score, a.Vmat[a.cell(i, a.alns[i].Qend)])
	}
	return score
}

func (a *Aligner) findEndScore(score int) int {
	for i := 0; i < a.numAlns(); i++ {
		if a.Vmat[a.cell(i, a.alns[i].Qend)] == score {
			return i
		}
	}
	return a.numAlns()
}

func (a *Aligner) findScore(j, score int) int {
	for i := 0; i < a.numAlns(); i++ {
		if a.dpBeg(i) >= j || a.dpEnd(i) < j {
			continue
		}
		ij := a.cell(i, j)
		if a.Vmat[ij]+a.spliceBegScore(ij) == score {
			return i
		}
	}
	return a.numAlns()
}

func (a *Aligner) findSpliceScore(i, j, score int) int {
	p := a.params
	ij := a.cell(i, j)
	iSeq := a.rnameAndStrandIds[i]
	iEnd := a.spliceEndCoords[ij]
	iScore := a.spliceEndScore(ij)
	for k := 0; k < a.numAlns(); k++ {
		if a.rnameAndStrandIds[k] != iSeq {
			continue
		}
		if a.dpBeg(k) >= j || a.dpEnd(k) < j {
			continue
		}
		kj := a.cell(k, j)
		kBeg := a.spliceBegCoords[kj]
		if iEnd <= kBeg {
			continue
		}
		s := iScore + a.spliceBegScore(kj) + p.SpliceScore(iEnd-kBeg)
		if a.Vmat[kj]+s == score {
			return k
		}
	}
	return a.numAlns()
}

// AlignmentPart is one piece of a split alignment: queryBeg to queryEnd
// of candidate alnIndex.
type AlignmentPart struct {
	AlnIndex int
	QueryBeg int
	QueryEnd int
}

// TraceBack recovers the pieces of the optimal split alignment, last
// piece first.
func (a *Aligner) TraceBack(viterbiScore int) []AlignmentPart {
	p := a.params
	var alnParts []AlignmentPart
	var i, j int
	if p.IsSpliced() {
		i = a.findEndScore(viterbiScore)
		if i >= a.numAlns() {
			panic("lost the end of the optimal split alignment")
		}
		j = a.alns[i].Qend
	} else {
		j = a.maxEnd
		t := *a.vvecCell(j)
		if t == 0 {
			return nil
		}
		for t == *a.vvecCell(j - 1) {
			j--
		}
		i = a.findScore(j, t)
		if i >= a.numAlns() {
			panic("lost the optimal split alignment")
		}
	}

	queryEnd := j

	for {
		j--
		ij := a.cell(i, j)
		score := a.Vmat[ij+1] - a.Smat[ij*2+1]
		if p.IsSpliced() && a.alns[i].Qstart == j && score == 0 {
			alnParts = append(alnParts, AlignmentPart{i, j, queryEnd})
			return alnParts
		}

		// We either stay in this alignment, or jump to another one. If
		// the scores are equally good, then we stay if the strand is
		// "+", else jump. This gives cleaner inversion boundaries, but
		// it makes some other kinds of boundary less clean. What's the
		// best procedure for tied scores?

		isStay := score == a.Vmat[ij]+a.Smat[ij*2]
		if isStay && a.alns[i].IsForwardStrand() {
			continue
		}

		s := score - a.spliceEndScore(ij)
		t := s - p.RestartScore
		if t == *a.vvecCell(j) {
			alnParts = append(alnParts, AlignmentPart{i, j, queryEnd})
			if t == 0 {
				return alnParts
			}
			for t == *a.vvecCell(j - 1) {
				j--
			}
			i = a.findScore(j, t)
		} else {
			if isStay {
				continue
			}
			alnParts = append(alnParts, AlignmentPart{i, j, queryEnd})
			k := a.findScore(j, s-p.JumpScore)
			if k < a.numAlns() {
				i = k
			} else {
				i = a.findSpliceScore(i, j, score)
			}
		}
		if i >= a.numAlns() {
			panic("lost the optimal split alignment")
		}
		queryEnd = j
	}
}

// SegmentScore is the alignment score of candidate alnNum over query
// range [queryBeg, queryEnd).
func (a *Aligner) SegmentScore(alnNum, queryBeg, queryEnd int) int {
	score := 0
	for j := queryBeg; j < queryEnd; j++ {
		ij := a.cell(alnNum, j)
		score += a.Smat[ij*2+1]
		if j > queryBeg {
			score += a.Smat[ij*2]
		}
	}
	return score
}

// probFromSpliceF sums forward probability reachable at (i, j) via a
// cis-splice.
func (a *Aligner) probFromSpliceF(i, j, oldNumInplay int, oldInplayPos *int) float64 {
	maxSpliceDist := a.params.MaxSpliceDist
	ij := a.cell(i, j)
	sum := 0.0
	iSeq := a.rnameAndStrandIds[i]
	iEnd := a.spliceEndCoords[ij]

	for ; *oldInplayPos < oldNumInplay; *oldInplayPos++ {
		k := a.oldInplayAlnIndices[*oldInplayPos]
		if a.rnameAndStrandIds[k] < iSeq {
			continue
		}
		if a.rnameAndStrandIds[k] > iSeq || a.rBegs[k] >= iEnd {
			return sum
		}
		kj := a.cell(k, j)
		kBeg := a.spliceBegCoords[kj]
		if kBeg >= a.rBegs[i] || a.rBegs[i]-kBeg <= maxSpliceDist {
			break
		}
	}

	for y := *oldInplayPos; y < oldNumInplay; y++ {
		k := a.oldInplayAlnIndices[y]
		if a.rnameAndStrandIds[k] > iSeq || a.rBegs[k] >= iEnd {
			break
		}
		kj := a.cell(k, j)
		kBeg := a.spliceBegCoords[kj]
		if iEnd <= kBeg {
			continue
		}
		if iEnd-kBeg > maxSpliceDist {
			continue
		}
		sum += a.Fmat[kj] * a.spliceBegProb(kj) * a.params.SpliceProb(iEnd-kBeg)
	}

	return sum
}

func (a *Aligner) probFromSpliceB(i, j, oldNumInplay int, oldInplayPos *int) float64 {
	maxSpliceDist := a.params.MaxSpliceDist
	ij := a.cell(i, j)
	sum := 0.0
	iSeq := a.rnameAndStrandIds[i]
	iBeg := a.spliceBegCoords[ij]

	for ; *oldInplayPos < oldNumInplay; *oldInplayPos++ {
		k := a.oldInplayAlnIndices[*oldInplayPos]
		if a.rnameAndStrandIds[k] < iSeq {
			continue
		}
		if a.rnameAndStrandIds[k] > iSeq || a.rEnds[k] <= iBeg {
			return sum
		}
		kj := a.cell(k, j)
		kEnd := a.spliceEndCoords[kj]
		if kEnd <= a.rEnds[i] || kEnd-a.rEnds[i] <= maxSpliceDist {
			break
		}
	}

	for y := *oldInplayPos; y < oldNumInplay; y++ {
		k := a.oldInplayAlnIndices[y]
		if a.rnameAndStrandIds[k] > iSeq || a.rEnds[k] <= iBeg {
			break
		}
		kj := a.cell(k, j)
		kEnd := a.spliceEndCoords[kj]
		if kEnd <= iBeg {
			continue
		}
		if kEnd-iBeg > maxSpliceDist {
			continue
		}
		sum += a.Bmat[kj] * a.spliceEndProb(kj) * a.params.SpliceProb(kEnd-iBeg)
	}

	return sum
}

// ForwardSplit runs the forward pass without splice scoring. The
// rescales it records keep each column's probability mass near one.
func (a *Aligner) ForwardSplit() {
	restartProb := a.params.RestartProb
	inplayEnd := 0
	sortedAlnPos := 0

	sort.Slice(a.sortedAlnIndices, func(x, y int) bool {
		return a.begLessStable(a.sortedAlnIndices[x], a.sortedAlnIndices[y])
	})

	sumOfProbs := 1.0
	rescale := 1.0

	for j := a.minBeg; j < a.maxEnd; j++ {
		for inplayEnd > 0 && a.dpEnd(a.newInplayAlnIndices[inplayEnd-1]) == j {
			inplayEnd-- // it is no longer "in play"
		}
		sortedAlnBeg := sortedAlnPos
		for sortedAlnPos < a.numAlns() &&
			a.dpBeg(a.sortedAlnIndices[sortedAlnPos]) == j {
			sortedAlnPos++
		}
		mergeInto(a.newInplayAlnIndices, inplayEnd,
			a.sortedAlnIndices[sortedAlnBeg:sortedAlnPos], a.endLess)
		inplayEnd += sortedAlnPos - sortedAlnBeg

		*a.rescaleCell(j) = rescale
		probFromJump := sumOfProbs * restartProb
		pSum := 0.0
		for x := 0; x < inplayEnd; x++ {
			ij := a.cell(a.newInplayAlnIndices[x], j)
			p := (probFromJump + a.Fmat[ij]*a.Sexp[ij*2]) * a.Sexp[ij*2+1] * rescale
			a.Fmat[ij+1] = p
			pSum += p
		}
		sumOfProbs = pSum + sumOfProbs*rescale
		rescale = 1 / (pSum + 1)
	}

	*a.rescaleCell(a.maxEnd) = 1 / sumOfProbs // scaled sumOfProbs equals 1
}

// ForwardSplice runs the forward pass with splice scoring.
func (a *Aligner) ForwardSplice() {
	p := a.params
	splicePrior := p.SplicePrior
	jumpProb := p.JumpProb
	sortedAlnPos := 0
	oldNumInplay := 0
	newNumInplay := 0

	sort.SliceStable(a.sortedAlnIndices, func(x, y int) bool {
		return a.qBegLess(a.sortedAlnIndices[x], a.sortedAlnIndices[y])
	})

	probFromJump := 0.0
	begprob := 1.0
	zF := 0.0 // sum of probabilities from the forward algorithm
	rescale := 1.0

	for j := a.minBeg; j < a.maxEnd; j++ {
		a.updateInplayAlnIndicesF(&sortedAlnPos, &oldNumInplay, &newNumInplay, j)
		oldInplayPos := 0
		*a.rescaleCell(j) = rescale
		zF *= rescale
		pSum := 0.0
		rNew := 0.0
		for x := 0; x < newNumInplay; x++ {
			i := a.newInplayAlnIndices[x]
			ij := a.cell(i, j)

			pr := probFromJump
			if splicePrior > 0 {
				pr += a.probFromSpliceF(i, j, oldNumInplay, &oldInplayPos)
			}
			pr *= a.spliceEndProb(ij)
			pr += a.Fmat[ij] * a.Sexp[ij*2]
			if a.alns[i].Qstart == j {
				pr += begprob
			}
			pr = pr * a.Sexp[ij*2+1] * rescale

			a.Fmat[ij+1] = pr
			if a.alns[i].Qend == j+1 {
				zF += pr
			}
			pSum += pr * a.spliceBegProb(ij + 1)
			rNew += pr
		}
		begprob *= rescale
		probFromJump = pSum * jumpProb
		rescale = 1 / (rNew + 1)
	}

	*a.rescaleCell(a.maxEnd) = 1 / zF // scaled zF equals 1
}

// BackwardSplit runs the backward pass without splice scoring, reading
// the forward pass's rescales.
func (a *Aligner) BackwardSplit() {
	restartProb := a.params.RestartProb
	inplayEnd := 0
	sortedAlnPos := 0

	sort.Slice(a.sortedAlnIndices, func(x, y int) bool {
		return a.endLessStable(a.sortedAlnIndices[x], a.sortedAlnIndices[y])
	})

	sumOfProbs := 1.0

	for j := a.maxEnd; j > a.minBeg; j-- {
		for inplayEnd > 0 && a.dpBeg(a.newInplayAlnIndices[inplayEnd-1]) == j {
			inplayEnd-- // it is no longer "in play"
		}
		sortedAlnBeg := sortedAlnPos
		for sortedAlnPos < a.numAlns() &&
			a.dpEnd(a.sortedAlnIndices[sortedAlnPos]) == j {
			sortedAlnPos++
		}
		mergeInto(a.newInplayAlnIndices, inplayEnd,
			a.sortedAlnIndices[sortedAlnBeg:sortedAlnPos], a.begLess)
		inplayEnd += sortedAlnPos - sortedAlnBeg

		rescale := *a.rescaleCell(j)
		pSum := 0.0
		for x := 0; x < inplayEnd; x++ {
			ij := a.cell(a.newInplayAlnIndices[x], j)
			p := (sumOfProbs + a.Bmat[ij]*a.Sexp[ij*2]) * a.Sexp[ij*2-1] * rescale
			a.Bmat[ij-1] = p
			pSum += p
		}
		sumOfProbs = pSum*restartProb + sumOfProbs*rescale
	}
}

// BackwardSplice runs the backward pass with splice scoring.
func (a *Aligner) BackwardSplice() {
	p := a.params
	splicePrior := p.SplicePrior
	jumpProb := p.JumpProb
	sortedAlnPos := 0
	oldNumInplay := 0
	newNumInplay := 0

	sort.SliceStable(a.sortedAlnIndices, func(x, y int) bool {
		return a.qEndLess(a.sortedAlnIndices[x], a.sortedAlnIndices[y])
	})

	probFromJump := 0.0
	endprob := 1.0

	for j := a.maxEnd; j > a.minBeg; j-- {
		a.updateInplayAlnIndicesB(&sortedAlnPos, &oldNumInplay, &newNumInplay, j)
		oldInplayPos := 0
		rescale := *a.rescaleCell(j)
		pSum := 0.0
		for x := 0; x < newNumInplay; x++ {
			i := a.newInplayAlnIndices[x]
			ij := a.cell(i, j)

			pr := probFromJump
			if splicePrior > 0 {
				pr += a.probFromSpliceB(i, j, oldNumInplay, &oldInplayPos)
			}
			pr *= a.spliceBegProb(ij)
			pr += a.Bmat[ij] * a.Sexp[ij*2]
			if a.alns[i].Qend == j {
				pr += endprob
			}
			pr = pr * a.Sexp[ij*2-1] * rescale

			// pr can overflow to +Inf: if a large part of the query is
			// unaligned, Fmat may underflow to 0 in ForwardSplice, so
			// the subsequent rescales are all 1.

			a.Bmat[ij-1] = pr
			pSum += pr * a.spliceEndProb(ij-1)
		}
		endprob *= rescale
		probFromJump = pSum * jumpProb
	}
}

// MarginalProbs gives the posterior alignment probability of each
// column of candidate alnNum between alignment columns alnBeg and
// alnEnd, with the query starting at queryBeg there. Overflowed
// backward cells yield probability zero.
func (a *Aligner) MarginalProbs(queryBeg, alnNum, alnBeg, alnEnd int) []float64 {
	qalign := a.alns[alnNum].Qalign
	ij := a.cell(alnNum, queryBeg)
	rescalesOffset := a.cell(alnNum, a.minBeg)

	output := make([]float64, 0, alnEnd-alnBeg)
	for pos := alnBeg; pos < alnEnd; pos++ {
		var value float64
		if a.Bmat[ij] > math.MaxFloat64 { // can happen for spliced alignment
			value = 0
		} else if qalign[pos] == '-' {
			value = a.Fmat[ij] * a.Bmat[ij] * a.Sexp[ij*2] *
				a.rescales[ij-rescalesOffset]
		} else {
			value = a.Fmat[ij+1] * a.Bmat[ij] / a.Sexp[ij*2+1]
			if math.IsNaN(value) {
				value = 0
			}
			ij++
		}
		output = append(output, value)
	}
	return output
}
