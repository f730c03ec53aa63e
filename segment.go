package seal

// SegmentPair is an ungapped alignment block: Size positions of sequence 1
// starting at Start1 aligned to Size positions of sequence 2 starting at
// Start2. For translated alignments Start2 counts protein positions while
// the block covers Size*3 DNA bases. Score is block-specific bookkeeping
// (the gap cost to the following block in frameshift mode).
type SegmentPair struct {
	Start1 int
	Start2 int
	Size   int
	Score  int
}

func (s *SegmentPair) Beg1() int { return s.Start1 }
func (s *SegmentPair) Beg2() int { return s.Start2 }
func (s *SegmentPair) End1() int { return s.Start1 + s.Size }
func (s *SegmentPair) End2() int { return s.Start2 + s.Size }

// IsNext reports whether x precedes and touches y in both sequences.
func IsNext(x, y SegmentPair) bool {
	return x.End1() == y.Beg1() && x.End2() == y.Beg2()
}

// AaToDna converts a protein-frame coordinate to a DNA coordinate.
// frameSize is the length of one reading frame; zero means untranslated,
// and the coordinate passes through unchanged.
func AaToDna(aaCoord, frameSize int) int {
	if frameSize == 0 {
		return aaCoord
	}
	frame := aaCoord / frameSize
	idx := aaCoord - frame*frameSize
	return idx*3 + frame
}

// DnaToAa converts a DNA coordinate to a protein-frame coordinate.
func DnaToAa(dnaCoord, frameSize int) int {
	if frameSize == 0 {
		return dnaCoord
	}
	frame := dnaCoord % 3
	idx := dnaCoord / 3
	return frame*frameSize + idx
}

// SizeAndFrameshift splits the DNA distance between two translated
// coordinates into whole-codon gap length and a frameshift flag.
func SizeAndFrameshift(end2, beg2, frameSize int) (gapSize, frameshift int) {
	if frameSize == 0 {
		return beg2 - end2, 0
	}
	dnaGap := AaToDna(beg2, frameSize) - AaToDna(end2, frameSize)
	gapSize = dnaGap / 3
	if dnaGap%3 != 0 {
		frameshift = 1
		if dnaGap%3 == 2 {
			gapSize++
		}
	}
	return gapSize, frameshift
}
