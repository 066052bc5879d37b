// Command vm32dis disassembles a vm32 ROM image into an annotated listing.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vm32/disasm"
	"vm32/isa"
)

const version = "vm32dis 1.0"

func main() {
	var showHeader, showAddr, showBytes, showInstr bool
	var logAll, nologAll string

	root := &cobra.Command{
		Use:     "vm32dis <rom>",
		Short:   "Disassemble a vm32 ROM image",
		Version: version,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rom, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("vm32dis: %w", err)
			}

			header, err := isa.ParseHeader(rom)
			if err != nil {
				return fmt.Errorf("vm32dis: %w", err)
			}

			cols := disasm.Columns{Header: showHeader, Addr: showAddr, Bytes: showBytes, Instr: showInstr}
			if logAll == "all" {
				cols = disasm.AllColumns()
			}
			if nologAll == "all" {
				cols = disasm.Columns{}
			}

			if cols.Header {
				fmt.Println(disasm.RenderHeader(header))
			}

			lines, err := disasm.Disassemble(rom, header)
			if err != nil {
				return fmt.Errorf("vm32dis: %w", err)
			}

			fmt.Print(disasm.Render(lines, cols))
			return nil
		},
	}

	root.Flags().BoolVar(&showHeader, "header", false, "print the ROM header summary")
	root.Flags().BoolVar(&showAddr, "addr", true, "print the address column")
	root.Flags().BoolVar(&showBytes, "bytes", true, "print the raw byte column")
	root.Flags().BoolVar(&showInstr, "instr", true, "print the decoded instruction column")
	root.Flags().StringVar(&logAll, "log", "", "--log=all: enable every column, including the header")
	root.Flags().StringVar(&nologAll, "nolog", "", "--nolog=all: disable every column")
	root.Flags().BoolP("version", "v", false, "print version and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
