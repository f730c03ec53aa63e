package seal

// GapPiece is one piece of a piecewise-affine gap cost: a gap of length k
// through this piece costs Open + k*Grow.
type GapPiece struct {
	Open int
	Grow int
}

// GapCosts is the full gap model shared by the aligners. DelPieces cost
// gaps in sequence 2 (unaligned letters of sequence 1), InsPieces the
// reverse. PairCost is the extra cost when one gap region has unaligned
// letters on both sides. FrameshiftCost penalizes a +-1 DNA shift in
// translated alignment; Frameshift2Cost a +-2 shift under the newer
// probabilistic frameshift model.
type GapCosts struct {
	DelPieces       []GapPiece
	InsPieces       []GapPiece
	PairCost        int
	FrameshiftCost  int
	Frameshift2Cost int
	IsNewFrameshifts bool
}

// NewAffineGapCosts is the common single-piece case with no pair cost.
func NewAffineGapCosts(open, grow int) GapCosts {
	return GapCosts{
		DelPieces: []GapPiece{{open, grow}},
		InsPieces: []GapPiece{{open, grow}},
		PairCost:  INF,
	}
}

// IsAffine reports whether the model is plain affine: one piece per side
// and no both-sides gap allowed.
func (g *GapCosts) IsAffine() bool {
	return len(g.DelPieces) == 1 && len(g.InsPieces) == 1 && g.PairCost >= INF
}

func pieceCost(pieces []GapPiece, size int) int {
	if size == 0 {
		return 0
	}
	cost := INF
	for _, p := range pieces {
		c := p.Open + p.Grow*size
		if c < cost {
			cost = c
		}
	}
	return cost
}

// Cost is the cost of a gap with gapSize1 unaligned letters in sequence 1
// and gapSize2 in sequence 2.
func (g *GapCosts) Cost(gapSize1, gapSize2 int) int {
	cost := pieceCost(g.DelPieces, gapSize1) + pieceCost(g.InsPieces, gapSize2)
	if gapSize1 > 0 && gapSize2 > 0 {
		cost += g.PairCost
	}
	return cost
}
