package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sealkit/seal"
	"github.com/sealkit/seal/align"
)

var extendOpts struct {
	match    int
	mismatch int
	gapOpen  int
	gapGrow  int
	maxDrop  int
	seed1    int
	seed2    int
	seedLen  int
}

var extendCmd = &cobra.Command{
	Use:   "extend <seq1> <seq2>",
	Short: "extend a seed into a gapped local alignment",
	Long: `extend runs bidirectional X-drop extension of a seed between two
DNA sequences given as command-line letters, and prints the aligned
blocks. Mostly useful for trying out scoring parameters.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtend(cmd.OutOrStdout(), args[0], args[1])
	},
}

func init() {
	f := extendCmd.Flags()
	f.IntVar(&extendOpts.match, "match", 1, "match score")
	f.IntVar(&extendOpts.mismatch, "mismatch", -1, "mismatch score")
	f.IntVar(&extendOpts.gapOpen, "gap-open", 7, "gap open cost")
	f.IntVar(&extendOpts.gapGrow, "gap-grow", 1, "gap grow cost")
	f.IntVar(&extendOpts.maxDrop, "max-drop", 20, "X-drop limit")
	f.IntVar(&extendOpts.seed1, "seed1", 0, "seed start in sequence 1")
	f.IntVar(&extendOpts.seed2, "seed2", 0, "seed start in sequence 2")
	f.IntVar(&extendOpts.seedLen, "seed-len", 1, "seed length")
	rootCmd.AddCommand(extendCmd)
}

func runExtend(w io.Writer, s1, s2 string) error {
	alph := seal.MustAlphabet(seal.DNA)
	seq1 := alph.EncodeSeq([]byte(s1))
	seq2 := alph.EncodeSeq([]byte(s2))

	matrix := seal.IdentityMatrix(alph, extendOpts.match, extendOpts.mismatch)
	gap := seal.NewAffineGapCosts(extendOpts.gapOpen, extendOpts.gapGrow)
	cfg := &align.Config{
		Matrix:   matrix,
		Gap:      &gap,
		MaxDrop:  extendOpts.maxDrop,
		Alphabet: alph,
	}

	aligners := align.NewAligners()
	var a align.Alignment
	a.Seed = seal.SegmentPair{
		Start1: extendOpts.seed1,
		Start2: extendOpts.seed2,
		Size:   extendOpts.seedLen,
	}
	if a.Seed.End1() > len(seq1) || a.Seed.End2() > len(seq2) {
		return fmt.Errorf("seed outside the sequences")
	}
	for i := 0; i < a.Seed.Size; i++ {
		a.Seed.Score += matrix.Rows[seq1[a.Seed.Beg1()+i]][seq2[a.Seed.Beg2()+i]]
	}
	a.MakeXdrop(aligners, seq1, seq2, cfg)

	if a.Score <= -seal.INF {
		return fmt.Errorf("no alignment found around the seed")
	}
	fmt.Fprintf(w, "score=%d\n", a.Score)
	for _, b := range a.Blocks {
		fmt.Fprintf(w, "%d\t%d\t%d\n", b.Start1, b.Start2, b.Size)
	}
	return nil
}
