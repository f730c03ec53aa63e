// Package commands holds the seal command-line tools.
package commands

import (
	"log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "seal",
	Short: "seed-and-extend local alignment with split mapping",
	Long: `seal aligns query sequences to a reference collection by gapped
X-drop extension from seeds, and can stitch candidate alignments of one
query into a split alignment with jump and cis-splice scoring.`,
	SilenceUsage: true,
}

// Execute runs the command tree.
func Execute() {
	log.SetFlags(0)
	log.SetPrefix("seal: ")
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
