// Command vm32dbg runs a vm32 ROM image under a tracing, breakpoint-aware
// interpreter: a superset of vm32run that emits one line per instruction
// and prints a marker whenever execution reaches an address named with
// --break. Execution does not pause at those addresses.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vm32/disasm"
	"vm32/isa"
	"vm32/vm"
)

func main() {
	var breakAddrs []string

	root := &cobra.Command{
		Use:   "vm32dbg <rom>",
		Short: "Trace a vm32 ROM image instruction by instruction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rom, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("vm32dbg: %w", err)
			}

			header, err := isa.ParseHeader(rom)
			if err != nil {
				return fmt.Errorf("vm32dbg: %w", err)
			}

			breakpoints := vm.Breakpoints{}
			for _, s := range breakAddrs {
				addr, err := vm.ParseBreakpointAddr(s)
				if err != nil {
					return fmt.Errorf("vm32dbg: %w", err)
				}
				breakpoints[addr] = true
			}

			v := vm.New(rom, header.EntryPoint, vm.DefaultSyscalls{}, os.Stdout, os.Stdin)

			// Single-step with an empty breakpoint set so every instruction
			// always executes; breakpoints the user named are checked
			// against the landing PC afterward and only annotate the trace.
			for {
				traceOne(v, rom)

				result := vm.RunProgramDebugMode(v, nil, 1)
				if result.Halted {
					if result.Err != nil {
						return fmt.Errorf("vm32dbg: %w", result.Err)
					}
					return nil
				}
				if breakpoints[result.PC] {
					fmt.Fprintf(os.Stderr, "-- breakpoint at $%04X --\n", result.PC)
				}
			}
		},
	}

	root.Flags().StringArrayVar(&breakAddrs, "break", nil, "mark this ROM address in the trace when execution reaches it (repeatable, accepts decimal or 0x hex)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// traceOne prints a single-instruction disassembly of whatever the VM's PC
// currently points to, followed by the register state after the previous
// step. Debug metadata frames are skipped silently: they carry no
// execution semantics of their own.
func traceOne(v *vm.VM, rom []byte) {
	pc := v.PC
	op := isa.Decode(rom[pc])
	if op == isa.DebugMetadataSignal {
		return
	}

	line, _, err := disasm.DecodeOne(rom, pc, nil)
	text := op.String()
	if err == nil {
		text = line.Text
	}

	fmt.Printf("$%04X  %-24s  A=%08X X=%08X Y=%08X  C=%v Z=%v N=%v V=%v\n",
		pc, text, v.A, v.X, v.Y, v.Carry, v.Zero, v.Negative, v.Overflow)
}
