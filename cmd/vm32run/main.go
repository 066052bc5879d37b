// Command vm32run executes a vm32 ROM image at full speed, with no
// runtime logging.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vm32/isa"
	"vm32/vm"
)

func main() {
	root := &cobra.Command{
		Use:   "vm32run <rom>",
		Short: "Run a vm32 ROM image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rom, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("vm32run: %w", err)
			}

			header, err := isa.ParseHeader(rom)
			if err != nil {
				return fmt.Errorf("vm32run: %w", err)
			}

			v := vm.New(rom, header.EntryPoint, vm.DefaultSyscalls{}, os.Stdout, os.Stdin)
			v.OnNop = func() { time.Sleep(200 * time.Millisecond) }

			if err := vm.RunProgram(v); err != nil {
				return fmt.Errorf("vm32run: %w", err)
			}
			return nil
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
