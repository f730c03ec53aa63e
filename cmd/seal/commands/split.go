package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sealkit/seal"
	"github.com/sealkit/seal/split"
)

var splitOpts struct {
	genome        string
	jumpScore     int
	restartScore  int
	scale         float64
	qualityOffset int
	splicePrior   float64
	meanLogDist   float64
	sdevLogDist   float64
	delOpen       int
	delGrow       int
	insOpen       int
	insGrow       int
	matchScore    int
	mismatchCost  int
	topSeqIsQuery bool
}

var splitCmd = &cobra.Command{
	Use:   "split [maf-file]",
	Short: "stitch candidate alignments of each query into split alignments",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return runSplit(cmd.OutOrStdout(), in)
	},
}

func init() {
	f := splitCmd.Flags()
	f.StringVarP(&splitOpts.genome, "genome", "g", "",
		"packed genome base name, for splice signals")
	f.IntVar(&splitOpts.jumpScore, "trans", -32, "jump score")
	f.IntVar(&splitOpts.restartScore, "restart", -60, "restart score")
	f.Float64Var(&splitOpts.scale, "scale", 5.8, "score scale")
	f.IntVarP(&splitOpts.qualityOffset, "quality-offset", "Q", 0,
		"quality code offset (0 means no qualities)")
	f.Float64Var(&splitOpts.splicePrior, "cis", 0, "splice prior probability")
	f.Float64Var(&splitOpts.meanLogDist, "mean", 7.0, "mean ln(intron length)")
	f.Float64Var(&splitOpts.sdevLogDist, "sdev", 1.75, "sdev of ln(intron length)")
	f.IntVar(&splitOpts.delOpen, "del-open", -21, "deletion open score")
	f.IntVar(&splitOpts.delGrow, "del-grow", -9, "deletion grow score")
	f.IntVar(&splitOpts.insOpen, "ins-open", -25, "insertion open score")
	f.IntVar(&splitOpts.insGrow, "ins-grow", -6, "insertion grow score")
	f.IntVar(&splitOpts.matchScore, "match", 6, "match score")
	f.IntVar(&splitOpts.mismatchCost, "mismatch", 18, "mismatch cost")
	f.BoolVar(&splitOpts.topSeqIsQuery, "top-query", false,
		"treat the top MAF sequence as the query")
	rootCmd.AddCommand(splitCmd)
}

func newSplitParams() (*split.Params, error) {
	p := &split.Params{Alphabet: seal.MustAlphabet(seal.DNA)}
	p.SetParams(splitOpts.delOpen, splitOpts.delGrow,
		splitOpts.insOpen, splitOpts.insGrow,
		splitOpts.jumpScore, splitOpts.restartScore,
		splitOpts.scale, splitOpts.qualityOffset)
	p.SetSpliceParams(splitOpts.splicePrior,
		splitOpts.meanLogDist, splitOpts.sdevLogDist)

	m := splitOpts.matchScore
	x := -splitOpts.mismatchCost
	sm := [][]int{
		{m, x, x, x},
		{x, m, x, x},
		{x, x, m, x},
		{x, x, x, m},
	}
	p.SetScoreMat(sm, seal.DNA, seal.DNA, true)

	if splitOpts.genome != "" {
		g, err := seal.ReadGenome(splitOpts.genome)
		if err != nil {
			return nil, err
		}
		p.Genome = g
		p.SetSpliceSignals()
	}
	return p, nil
}

// readMafBlocks yields the MAF blocks of one query at a time: runs of
// blocks sharing a query name.
func readMafBlocks(r *bufio.Reader, isTopSeqQuery bool) ([][]split.UnsplitAlignment, error) {
	var all []split.UnsplitAlignment
	var lines []string
	flush := func() error {
		if len(lines) == 0 {
			return nil
		}
		u, err := split.NewUnsplitAlignment(lines, isTopSeqQuery)
		if err != nil {
			return err
		}
		all = append(all, u)
		lines = nil
		return nil
	}
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "a"):
				if err := flush(); err != nil {
					return nil, err
				}
			case strings.HasPrefix(line, "s"),
				strings.HasPrefix(line, "q"),
				strings.HasPrefix(line, "p"):
				lines = append(lines, line)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	var groups [][]split.UnsplitAlignment
	beg := 0
	for i := 1; i <= len(all); i++ {
		if i == len(all) || all[i].Qname != all[beg].Qname {
			groups = append(groups, all[beg:i])
			beg = i
		}
	}
	return groups, nil
}

func runSplit(w io.Writer, in *os.File) error {
	params, err := newSplitParams()
	if err != nil {
		return err
	}
	if params.Genome != nil {
		defer params.Genome.Close()
	}
	params.Print(w)

	groups, err := readMafBlocks(bufio.NewReader(in), splitOpts.topSeqIsQuery)
	if err != nil {
		return err
	}

	var aligner split.Aligner
	for _, alns := range groups {
		if err := splitOneQuery(w, params, &aligner, alns); err != nil {
			return err
		}
	}
	return nil
}

func splitOneQuery(w io.Writer, params *split.Params,
	aligner *split.Aligner, alns []split.UnsplitAlignment) error {

	aligner.Layout(params, alns)
	if err := aligner.InitMatricesForOneQuery(false); err != nil {
		return err
	}

	var score int
	if params.IsSpliced() {
		score = aligner.ViterbiSplice()
	} else {
		score = aligner.ViterbiSplit()
	}
	parts := aligner.TraceBack(score)

	if params.IsSpliced() {
		aligner.ForwardSplice()
		aligner.BackwardSplice()
	} else {
		aligner.ForwardSplit()
		aligner.BackwardSplit()
	}

	var out []byte
	for k := len(parts) - 1; k >= 0; k-- {
		part := parts[k]
		aln := &alns[part.AlnIndex]
		qSliceBeg, alnBeg := split.MafSliceBeg(aln.Ralign, aln.Qalign,
			aln.Qstart, part.QueryBeg)
		qSliceEnd, alnEnd := split.MafSliceEnd(aln.Ralign, aln.Qalign,
			aln.Qend, part.QueryEnd)
		if qSliceBeg >= qSliceEnd {
			continue
		}
		probs := aligner.MarginalProbs(qSliceBeg, part.AlnIndex, alnBeg, alnEnd)
		segScore := aligner.SegmentScore(part.AlnIndex, part.QueryBeg, part.QueryEnd)
		out = append(out, fmt.Sprintf("a score=%d\n", segScore)...)
		out, _ = split.MafSlice(out, aln, alnBeg, alnEnd, probs)
		out = append(out, '\n')
	}
	_, err := w.Write(out)
	return err
}
