package commands

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/spf13/cobra"

	"github.com/sealkit/seal"
)

var genomePack4bit bool

var genomePackCmd = &cobra.Command{
	Use:   "genome-pack <fasta> <basename>",
	Short: "pack a FASTA genome into an indexed file set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packGenome(args[0], args[1], genomePack4bit)
	},
}

var genomeInfoCmd = &cobra.Command{
	Use:   "genome-info <basename>",
	Short: "list the sequences of a packed genome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := seal.ReadGenome(args[0])
		if err != nil {
			return err
		}
		defer g.Close()
		return printGenome(cmd.OutOrStdout(), g)
	},
}

func init() {
	genomePackCmd.Flags().BoolVar(&genomePack4bit, "4bit", true,
		"pack two bases per byte")
	rootCmd.AddCommand(genomePackCmd, genomeInfoCmd)
}

func packGenome(fastaName, baseName string, is4bit bool) error {
	f, err := os.Open(fastaName)
	if err != nil {
		return err
	}
	defer f.Close()

	alph := seal.MustAlphabet(seal.DNA)
	var m seal.MultiSequence
	m.InitForAppending(1)

	template := linear.NewSeq("", nil, alphabet.DNAredundant)
	reader := fasta.NewReader(f, template)
	count := 0
	for {
		s, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("can't read %s: %w", fastaName, err)
		}
		ls := s.(*linear.Seq)
		m.AddName(s.Name())
		codes := make([]byte, ls.Len())
		for i, l := range ls.Seq {
			codes[i] = alph.Encode[byte(l)]
		}
		m.AppendLetters(codes)
		m.FinishTheLastSequence()
		count++
	}

	if err := m.ToFiles(baseName, is4bit); err != nil {
		return err
	}
	if err := seal.WritePrj(baseName, seal.DNA, count, 1, is4bit); err != nil {
		return err
	}
	log.Printf("packed %d sequences into %s", count, baseName)
	return nil
}

func printGenome(w io.Writer, g *seal.Genome) error {
	for _, name := range g.SeqNames() {
		beg, end, _, err := g.SeqEnds(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", name, end-beg)
	}
	return nil
}
