package worker

import (
	"testing"
	"time"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
	"github.com/Nirab123456/LCIM-BitTheorium/descriptor"
	"github.com/Nirab123456/LCIM-BitTheorium/fabric"
)

func TestCoalescedApplyGradBatch(t *testing.T) {
	const (
		base = 100
		n    = 512
		rel  = 0x04
	)

	arr, err := fabric.NewArray(base+n+16, cell.ModeValue32, 0, nil)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	defer arr.Close()

	grad := make([]int32, n)
	for i := range grad {
		grad[i] = int32(i)
	}
	handle := descriptor.RegisterGradient(grad)
	defer descriptor.ReleaseGradient(handle)

	w := New(arr, 1024)
	w.Start()
	defer w.Stop()

	for i := 0; i < n; i++ {
		d := descriptor.Descriptor{
			Op:        descriptor.OpApplyGrad,
			StateHint: uint8(cell.StateComplete),
			Rel:       rel,
			Idx:       uint32(base + i),
			Count:     1,
			Arg:       handle,
		}
		if !w.SubmitBlocking(d, time.Second) {
			t.Fatalf("submit %d failed", i)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		allDone := true
		for i := 0; i < n; i++ {
			w := arr.Load(uint32(base + i))
			if cell.UnpackState(w) != cell.StateComplete {
				allDone = false
				break
			}
		}
		if allDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for batch completion")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < n; i++ {
		word := arr.Load(uint32(base + i))
		if got := cell.UnpackValue32(word); got != uint32(i) {
			t.Fatalf("cell %d: expected value %d, got %d", base+i, i, got)
		}
		if cell.UnpackState(word) != cell.StateComplete {
			t.Fatalf("cell %d: expected COMPLETE", base+i)
		}
	}
}

func TestEpochBumpGroup(t *testing.T) {
	arr, err := fabric.NewArray(64, cell.ModeValue32, 0, nil)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	defer arr.Close()
	arr.InitEpoch(8)

	w := New(arr, 16)
	w.Start()
	defer w.Stop()

	d := descriptor.Descriptor{Op: descriptor.OpEpochBump, Arg: 0}
	if !w.SubmitBlocking(d, time.Second) {
		t.Fatal("submit failed")
	}

	deadline := time.Now().Add(time.Second)
	for arr.EffectiveTS(0)>>16 == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for epoch bump")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMaintenanceIntervalStartsAndStopsCleanly(t *testing.T) {
	arr, err := fabric.NewArray(32, cell.ModeValue32, 0, nil)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	defer arr.Close()
	arr.InitEpoch(8)

	// A worker configured with WithMaintenanceInterval runs its relation-index
	// maintenance goroutine alongside the main loop; Stop must join both
	// without deadlocking or leaving the maintenance goroutine orphaned.
	w := New(arr, 16, WithMaintenanceInterval(time.Millisecond))
	w.Start()

	d := descriptor.Descriptor{
		Op:        descriptor.OpSet,
		StateHint: uint8(cell.StateComplete),
		Rel:       0x01,
		Idx:       5,
		Arg:       0xAA,
	}
	if !w.SubmitBlocking(d, time.Second) {
		t.Fatal("submit failed")
	}
	time.Sleep(5 * time.Millisecond) // let the maintenance goroutine tick at least once

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return: maintenance goroutine likely orphaned")
	}
}

func TestSoALayoutMatchesAoS(t *testing.T) {
	const n = 16
	arr, err := fabric.NewArray(n+4, cell.ModeValue32, 0, nil)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	defer arr.Close()

	grad := make([]int32, n)
	for i := range grad {
		grad[i] = int32(i * 2)
	}
	handle := descriptor.RegisterGradient(grad)
	defer descriptor.ReleaseGradient(handle)

	w := New(arr, 64, WithLayout(LayoutSoA))
	w.Start()
	defer w.Stop()

	for i := 0; i < n; i++ {
		d := descriptor.Descriptor{
			Op:        descriptor.OpApplyGrad,
			StateHint: uint8(cell.StateComplete),
			Rel:       0x01,
			Idx:       uint32(i),
			Arg:       handle,
		}
		if !w.SubmitBlocking(d, time.Second) {
			t.Fatalf("submit %d failed", i)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		done := true
		for i := 0; i < n; i++ {
			if cell.UnpackState(arr.Load(uint32(i))) != cell.StateComplete {
				done = false
				break
			}
		}
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < n; i++ {
		if got := cell.UnpackValue32(arr.Load(uint32(i))); got != uint32(i*2) {
			t.Fatalf("cell %d: expected %d got %d", i, i*2, got)
		}
	}
}
