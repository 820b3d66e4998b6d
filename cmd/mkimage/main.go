// Command mkimage packs a hex-per-line listing (the output format an
// out-of-scope RV64 assembler would emit) into the flat binary image
// cmd/rvsim loads at RAM base.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rv64sim/rv64pipe/pkg/asm"
)

func main() {
	log.SetFlags(0)

	var outputPath string

	rootCmd := &cobra.Command{
		Use:   "mkimage <listing-file>",
		Short: "Pack a hex-per-line listing into a flat binary image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer fp.Close()

			image, err := asm.Pack(fp)
			if err != nil {
				return err
			}

			if outputPath == "" || outputPath == "-" {
				_, err = os.Stdout.Write(image)
				return err
			}
			return os.WriteFile(outputPath, image, 0o644)
		},
	}
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: stdout)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
