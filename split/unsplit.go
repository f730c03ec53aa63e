package split

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sealkit/seal"
)

// UnsplitAlignment is one candidate alignment of a query, as read from
// a MAF block. Ralign and Qalign are equal-length aligned strings over
// the sequence letters plus '-'. Qstrand packs both strands: bit 0 is
// set when the query is reverse-complemented, bit 1 when the reference
// is. Lines keeps the original text for reprinting.
type UnsplitAlignment struct {
	Qname   string
	Qstart  int
	Qend    int
	Qstrand int
	Rstart  int
	Rend    int
	Rname   string
	Ralign  string
	Qalign  string
	QQual   string

	RSeqSize int
	QSeqSize int
	Lines    []string
}

func (u *UnsplitAlignment) IsForwardStrand() bool { return u.Qstrand < 2 }
func (u *UnsplitAlignment) IsFlipped() bool       { return u.Qstrand%2 == 1 }

type mafSeqLine struct {
	name    string
	start   int
	alnSize int
	strand  byte
	seqSize int
	text    string
}

func parseMafSeqLine(line string) (mafSeqLine, error) {
	f := strings.Fields(line)
	var s mafSeqLine
	if len(f) != 7 || f[0] != "s" {
		return s, fmt.Errorf("bad MAF line: %q", line)
	}
	var err error
	s.name = f[1]
	if s.start, err = strconv.Atoi(f[2]); err != nil {
		return s, fmt.Errorf("bad MAF start in %q", line)
	}
	if s.alnSize, err = strconv.Atoi(f[3]); err != nil {
		return s, fmt.Errorf("bad MAF size in %q", line)
	}
	s.strand = f[4][0]
	if s.seqSize, err = strconv.Atoi(f[5]); err != nil {
		return s, fmt.Errorf("bad MAF sequence size in %q", line)
	}
	s.text = f[6]
	return s, nil
}

// NewUnsplitAlignment parses one MAF block. By convention the top "s"
// line is the reference and the second the query; isTopSeqQuery swaps
// the roles.
func NewUnsplitAlignment(lines []string, isTopSeqQuery bool) (UnsplitAlignment, error) {
	var u UnsplitAlignment
	u.Lines = lines

	var seqLines []mafSeqLine
	for _, line := range lines {
		if strings.HasPrefix(line, "s") {
			s, err := parseMafSeqLine(line)
			if err != nil {
				return u, err
			}
			seqLines = append(seqLines, s)
		} else if strings.HasPrefix(line, "q") {
			f := strings.Fields(line)
			if len(f) == 3 {
				u.QQual = f[2]
			}
		}
	}
	if len(seqLines) != 2 {
		return u, fmt.Errorf("MAF block needs 2 sequence lines, got %d", len(seqLines))
	}
	r, q := seqLines[0], seqLines[1]
	if isTopSeqQuery {
		r, q = q, r
	}
	if len(r.text) != len(q.text) {
		return u, fmt.Errorf("MAF block with unequal alignment lengths")
	}

	u.Rname = r.name
	u.Rstart = r.start
	u.Rend = r.start + r.alnSize
	u.RSeqSize = r.seqSize
	u.Ralign = r.text

	u.Qname = q.name
	u.Qstart = q.start
	u.Qend = q.start + q.alnSize
	u.QSeqSize = q.seqSize
	u.Qalign = q.text

	u.Qstrand = 0
	if q.strand == '-' {
		u.Qstrand++
	}
	if r.strand == '-' {
		u.Qstrand += 2
	}
	return u, nil
}

// MafSliceBeg maps a query coordinate to its alignment column, scanning
// from the alignment's start. It returns qBeg clamped to the
// alignment's query span, and the first column of the slice, moved past
// any query-gap columns.
func MafSliceBeg(rAln, qAln string, qAlnStart, qBeg int) (qSliceBeg, alnBeg int) {
	q := qAlnStart
	col := 0
	for col < len(qAln) && q < qBeg {
		if qAln[col] != '-' {
			q++
		}
		col++
	}
	// don't start the slice on a query gap column
	for col < len(qAln) && qAln[col] == '-' {
		col++
	}
	return q, col
}

// MafSliceEnd maps a query end coordinate to one past its last
// alignment column, scanning from the alignment's end.
func MafSliceEnd(rAln, qAln string, qAlnEnd, qEnd int) (qSliceEnd, alnEnd int) {
	q := qAlnEnd
	col := len(qAln)
	for col > 0 && q > qEnd {
		if qAln[col-1] != '-' {
			q--
		}
		col--
	}
	for col > 0 && qAln[col-1] == '-' {
		col--
	}
	return q, col
}

func countNonGaps(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			n++
		}
	}
	return n
}

func strandChar(isReverse bool) byte {
	if isReverse {
		return '-'
	}
	return '+'
}

// MafSlice appends the MAF "s", "q" and "p" lines for alignment columns
// [alnBeg, alnEnd) to out. probs, when non-nil, supplies one column
// probability per slice column for an extra "p" line. It returns the
// length of the longest line written, newline included.
func MafSlice(out []byte, aln *UnsplitAlignment, alnBeg, alnEnd int,
	probs []float64) ([]byte, int) {

	rSlice := aln.Ralign[alnBeg:alnEnd]
	qSlice := aln.Qalign[alnBeg:alnEnd]
	rStart := aln.Rstart + countNonGaps(aln.Ralign[:alnBeg])
	qStart := aln.Qstart + countNonGaps(aln.Qalign[:alnBeg])
	rSize := countNonGaps(rSlice)
	qSize := countNonGaps(qSlice)

	nameWidth := len(aln.Rname)
	if len(aln.Qname) > nameWidth {
		nameWidth = len(aln.Qname)
	}

	sLine := func(name string, start, size int, strand byte, seqSize int, text string) string {
		return fmt.Sprintf("s %-*s %d %d %c %d %s\n",
			nameWidth, name, start, size, strand, seqSize, text)
	}

	lineLen := 0
	add := func(s string) {
		out = append(out, s...)
		if len(s) > lineLen {
			lineLen = len(s)
		}
	}

	add(sLine(aln.Rname, rStart, rSize, strandChar(aln.Qstrand >= 2),
		aln.RSeqSize, rSlice))
	add(sLine(aln.Qname, qStart, qSize, strandChar(aln.Qstrand%2 == 1),
		aln.QSeqSize, qSlice))
	if aln.QQual != "" {
		add(fmt.Sprintf("q %-*s %s\n", nameWidth, aln.Qname,
			aln.QQual[alnBeg:alnEnd]))
	}
	if probs != nil {
		p := make([]byte, alnEnd-alnBeg)
		for i := range p {
			p[i] = seal.AsciiProbability(probs[i])
		}
		add(fmt.Sprintf("p %-*s %s\n", nameWidth, "", string(p)))
	}
	return out, lineLen
}

// PLinesToErrorProb combines two probability lines into one error
// probability: one minus the best per-column product of the two
// decoded probabilities.
func PLinesToErrorProb(line1, line2 string) float64 {
	c1 := lastField(line1)
	c2 := lastField(line2)
	n := len(c1)
	if len(c2) < n {
		n = len(c2)
	}
	best := 0.0
	for i := 0; i < n; i++ {
		p := seal.ProbabilityFromAscii(c1[i]) * seal.ProbabilityFromAscii(c2[i])
		if p > best {
			best = p
		}
	}
	return 1 - best
}

func lastField(line string) string {
	f := strings.Fields(line)
	if len(f) == 0 {
		return ""
	}
	return f[len(f)-1]
}
