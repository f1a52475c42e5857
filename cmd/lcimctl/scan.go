package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
	"github.com/Nirab123456/LCIM-BitTheorium/config"
	"github.com/Nirab123456/LCIM-BitTheorium/fabric"
	"github.com/Nirab123456/LCIM-BitTheorium/numa"
)

var scanRelFlag uint8
var scanSeedFlag string

// scanCmd is the self-contained scan_relation demonstration of spec.md §6: a
// cross-process debug protocol against a live `serve` array is out of scope
// (see SPEC_FULL.md §4.12), so this instead builds a fresh in-process array
// from the loaded config, seeds it with the given relation mask at the
// requested indices, and prints the contiguous-run list ScanRelation finds —
// the same (start, len) shape spec.md §8 scenario 5 asserts against.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Seed an array and print its scan_relation(mask) result",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			d := config.Default()
			cfg = &d
		}
		mode, err := cfg.CellMode()
		if err != nil {
			return &cliError{code: exitInvalidArgument, msg: err.Error()}
		}

		indices, err := parseIndexList(scanSeedFlag)
		if err != nil {
			return &cliError{code: exitInvalidArgument, msg: err.Error()}
		}

		n := cfg.Cells
		for _, idx := range indices {
			if idx >= n {
				n = idx + 1
			}
		}

		arr, err := fabric.NewArray(n, mode, cfg.NUMANode, nil)
		if err != nil {
			if errors.Is(err, numa.ErrInvalidArgument) || errors.Is(err, fabric.ErrInvalidArgument) {
				return &cliError{code: exitInvalidArgument, msg: err.Error()}
			}
			var allocErr *numa.AllocError
			if errors.As(err, &allocErr) {
				return &cliError{code: exitAllocFailure, msg: err.Error()}
			}
			return &cliError{code: exitNUMAUnavailable, msg: err.Error()}
		}
		defer arr.Close()

		for _, idx := range indices {
			arr.Store(uint32(idx), cell.PackValue32(0, 0, cell.StateIdle, scanRelFlag))
		}

		for _, r := range arr.ScanRelation(scanRelFlag) {
			fmt.Printf("(%d,%d)\n", r.Start, r.Len)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().Uint8Var(&scanRelFlag, "rel", 0x01, "relation mask to scan for")
	scanCmd.Flags().StringVar(&scanSeedFlag, "seed", "", "comma-separated cell indices to mark with --rel before scanning")
}

func parseIndexList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			var v int
			if _, err := fmt.Sscanf(s[start:i], "%d", &v); err != nil {
				return nil, fmt.Errorf("scan: invalid index in --seed %q: %w", s, err)
			}
			out = append(out, v)
			start = i + 1
		}
	}
	return out, nil
}
