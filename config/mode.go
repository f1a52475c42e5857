package config

import (
	"fmt"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
	"github.com/Nirab123456/LCIM-BitTheorium/worker"
)

// CellMode resolves the Mode string to the cell package's typed enum.
func (c *Config) CellMode() (cell.Mode, error) {
	switch c.Mode {
	case "value32":
		return cell.ModeValue32, nil
	case "clk48":
		return cell.ModeClk48, nil
	default:
		return 0, fmt.Errorf("config: unknown mode %q", c.Mode)
	}
}

// WorkerLayout resolves the Layout string to the worker package's typed
// enum.
func (c *Config) WorkerLayout() (worker.Layout, error) {
	switch c.Layout {
	case "aos":
		return worker.LayoutAoS, nil
	case "soa":
		return worker.LayoutSoA, nil
	default:
		return 0, fmt.Errorf("config: unknown layout %q", c.Layout)
	}
}
