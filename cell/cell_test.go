package cell

import (
	"math/rand"
	"testing"
)

func TestRoundTripValue32(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		v := rng.Uint32()
		clk := uint16(rng.Uint32())
		st := State(rng.Intn(256))
		rel := uint8(rng.Intn(256))

		w := PackValue32(v, clk, st, rel)
		if got := UnpackValue32(w); got != v {
			t.Fatalf("value round-trip: got %#x want %#x", got, v)
		}
		if got := UnpackClk16(w); got != clk {
			t.Fatalf("clk16 round-trip: got %#x want %#x", got, clk)
		}
		if got := UnpackState(w); got != st {
			t.Fatalf("state round-trip: got %#x want %#x", got, st)
		}
		if got := UnpackRelation(w); got != rel {
			t.Fatalf("relation round-trip: got %#x want %#x", got, rel)
		}
	}
}

func TestRoundTripClk48(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 10000; i++ {
		clk := rng.Uint64() & clk48Mask
		st := State(rng.Intn(256))
		rel := uint8(rng.Intn(256))

		w := PackClk48(clk, st, rel)
		if got := UnpackClk48(w); got != clk {
			t.Fatalf("clk48 round-trip: got %#x want %#x", got, clk)
		}
		if got := UnpackState(w); got != st {
			t.Fatalf("state round-trip: got %#x want %#x", got, st)
		}
		if got := UnpackRelation(w); got != rel {
			t.Fatalf("relation round-trip: got %#x want %#x", got, rel)
		}
	}
}

func TestStateRelationSingleShift(t *testing.T) {
	w := PackValue32(0xAABBCCDD, 42, StatePublished, 0x02)
	sr := StateRelation(w)
	if State(sr&0xFF) != StatePublished {
		t.Fatalf("expected state Published in low byte, got %#x", sr&0xFF)
	}
	if uint8(sr>>8) != 0x02 {
		t.Fatalf("expected relation 0x02 in high byte, got %#x", sr>>8)
	}
}

func TestWithStateWithRelationPreserveOtherFields(t *testing.T) {
	w := PackValue32(123, 4, StateIdle, 0x01)
	w2 := WithState(w, StatePublished)
	if UnpackValue32(w2) != 123 || UnpackClk16(w2) != 4 || UnpackRelation(w2) != 0x01 {
		t.Fatalf("WithState mutated unrelated fields: %#x", w2)
	}
	if UnpackState(w2) != StatePublished {
		t.Fatalf("WithState did not set state")
	}

	w3 := WithRelation(w, 0x08)
	if UnpackValue32(w3) != 123 || UnpackClk16(w3) != 4 || UnpackState(w3) != StateIdle {
		t.Fatalf("WithRelation mutated unrelated fields: %#x", w3)
	}
	if UnpackRelation(w3) != 0x08 {
		t.Fatalf("WithRelation did not set relation")
	}
}

func TestRelationMatches(t *testing.T) {
	cases := []struct {
		rel, mask uint8
		want      bool
	}{
		{0x02, 0x02, true},
		{0x06, 0x02, true},
		{0x04, 0x02, false},
		{0x00, 0xFF, false},
	}
	for _, c := range cases {
		if got := RelationMatches(c.rel, c.mask); got != c.want {
			t.Errorf("RelationMatches(%#x,%#x) = %v, want %v", c.rel, c.mask, got, c.want)
		}
	}
}

func TestIsCommitted(t *testing.T) {
	if !IsCommittedClk16(0) || IsCommittedClk16(1) {
		t.Fatal("clk16 even/odd parity wrong")
	}
	if !IsCommittedClk48(0) || IsCommittedClk48(1) {
		t.Fatal("clk48 even/odd parity wrong")
	}
}
