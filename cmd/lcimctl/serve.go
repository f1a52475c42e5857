package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Nirab123456/LCIM-BitTheorium/config"
	"github.com/Nirab123456/LCIM-BitTheorium/fabric"
	"github.com/Nirab123456/LCIM-BitTheorium/numa"
	"github.com/Nirab123456/LCIM-BitTheorium/worker"
)

// maintenanceInterval is how often the worker's supervised maintenance
// goroutine recomputes the region relation index (spec.md §9).
const maintenanceInterval = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Allocate the cell array and worker, and run until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return &cliError{code: exitInvalidArgument, msg: err.Error()}
		}

		logger := newLogger(cfg.LogLevel)

		mode, err := cfg.CellMode()
		if err != nil {
			return &cliError{code: exitInvalidArgument, msg: err.Error()}
		}
		layout, err := cfg.WorkerLayout()
		if err != nil {
			return &cliError{code: exitInvalidArgument, msg: err.Error()}
		}

		arr, err := fabric.NewArray(cfg.Cells, mode, cfg.NUMANode, nil)
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
		arr.InitEpoch(cfg.RegionSize)

		// The co-processor sharing commitment of spec.md §4.2 made visible at
		// the process boundary: a driver that maps the same physical pages
		// reads this exact address.
		logger.Info().
			Int("cells", cfg.Cells).
			Str("mode", cfg.Mode).
			Uint64("raw_ptr", uint64(uintptr(arr.RawPointer()))).
			Msg("array allocated")

		w := worker.New(arr, cfg.QueueCapacity,
			worker.WithLayout(layout),
			worker.WithLogger(logger),
			worker.WithMaintenanceInterval(maintenanceInterval),
		)
		w.Start()
		defer w.Stop()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		logger.Info().Msg("serving; waiting for interrupt")
		<-sig
		logger.Info().Msg("shutting down")
		return nil
	},
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(lvl).
		With().Timestamp().Logger()
}
