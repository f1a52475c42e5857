package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
	"github.com/Nirab123456/LCIM-BitTheorium/config"
	"github.com/Nirab123456/LCIM-BitTheorium/descriptor"
	"github.com/Nirab123456/LCIM-BitTheorium/fabric"
	"github.com/Nirab123456/LCIM-BitTheorium/worker"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the coalescing/throughput smoke scenario of spec.md's worker tests",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			// bench is a self-contained smoke driver: fall back to defaults
			// rather than requiring a config file on disk.
			d := config.Default()
			cfg = &d
		}
		mode, err := cfg.CellMode()
		if err != nil {
			return &cliError{code: exitInvalidArgument, msg: err.Error()}
		}

		const groupSize = 512
		arr, err := fabric.NewArray(groupSize+16, mode, cfg.NUMANode, nil)
		if err != nil {
			return &cliError{code: exitAllocFailure, msg: err.Error()}
		}
		defer arr.Close()

		grad := make([]int32, groupSize)
		for i := range grad {
			grad[i] = int32(i)
		}
		handle := descriptor.RegisterGradient(grad)
		defer descriptor.ReleaseGradient(handle)

		w := worker.New(arr, cfg.QueueCapacity)
		w.Start()
		defer w.Stop()

		start := time.Now()
		for i := 0; i < groupSize; i++ {
			d := descriptor.Descriptor{
				Op:        descriptor.OpApplyGrad,
				StateHint: uint8(cell.StateComplete),
				Rel:       0x04,
				Idx:       uint32(100 + i),
				Arg:       handle,
			}
			w.SubmitBlocking(d, time.Second)
		}

		deadline := time.Now().Add(5 * time.Second)
		for {
			done := true
			for i := 0; i < groupSize; i++ {
				if cell.UnpackState(arr.Load(uint32(100+i))) != cell.StateComplete {
					done = false
					break
				}
			}
			if done || time.Now().After(deadline) {
				break
			}
			time.Sleep(time.Millisecond)
		}

		fmt.Printf("coalesced %d descriptors in %s\n", groupSize, time.Since(start))
		return nil
	},
}
