// Command vm32asm assembles vm32 source text into a ROM image.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vm32/asm"
)

func main() {
	var out string
	var debugMode bool
	var verbose bool

	root := &cobra.Command{
		Use:   "vm32asm <source.asm>",
		Short: "Assemble vm32 source into a ROM image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcPath := args[0]
			src, err := os.ReadFile(srcPath)
			if err != nil {
				return fmt.Errorf("vm32asm: %w", err)
			}

			if out == "" {
				out = deriveRomPath(srcPath)
			}

			if verbose {
				fmt.Fprintf(os.Stderr, "vm32asm: assembling %s -> %s (debug=%v)\n", srcPath, out, debugMode)
			}

			rom, err := asm.Assemble(string(src), debugMode)
			if err != nil {
				return fmt.Errorf("vm32asm: %w", err)
			}

			if err := os.WriteFile(out, rom, 0o644); err != nil {
				return fmt.Errorf("vm32asm: %w", err)
			}

			if verbose {
				fmt.Fprintf(os.Stderr, "vm32asm: wrote %d bytes to %s\n", len(rom), out)
			}
			return nil
		},
	}

	root.Flags().StringVar(&out, "out", "", "output ROM path (default: source path with .rom extension)")
	root.Flags().BoolVar(&debugMode, "debug", false, "emit debug metadata frames (label names) into the ROM")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "print progress to stderr")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func deriveRomPath(srcPath string) string {
	for i := len(srcPath) - 1; i >= 0 && srcPath[i] != '/'; i-- {
		if srcPath[i] == '.' {
			return srcPath[:i] + ".rom"
		}
	}
	return srcPath + ".rom"
}
