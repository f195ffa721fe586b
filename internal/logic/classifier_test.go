package logic

import (
	"testing"

	"pgregory.net/rapid"
)

func TestAverage(t *testing.T) {
	tests := []struct {
		name    string
		samples []int32
		want    float64
	}{
		{"empty", nil, 0},
		{"single", []int32{42}, 42},
		{"five", []int32{1000, 1000, 1000, 1000, 1000}, 1000},
		{"mixed sign", []int32{-10, 10, -20, 20, 5}, 1},
		{"fractional", []int32{1, 2}, 1.5},
		{"24-bit extremes", []int32{8388607, -8388608}, -0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Average(tc.samples); got != tc.want {
				t.Errorf("Average(%v): got %v, want %v", tc.samples, got, tc.want)
			}
		})
	}
}

func TestGramsScenarios(t *testing.T) {
	const offset, scale = 1000.0, 200.0

	// Scenario A: no load.
	if got := Grams(1000, offset, scale); got != 0 {
		t.Errorf("raw 1000: got %v, want 0", got)
	}
	// Scenario B: net 7000.
	if got := Grams(8000, offset, scale); got != 35.0 {
		t.Errorf("raw 8000: got %v, want 35", got)
	}
	// Scenario C: net 5000.
	if got := Grams(6000, offset, scale); got != 25.0 {
		t.Errorf("raw 6000: got %v, want 25", got)
	}
}

func TestGramsPolarity(t *testing.T) {
	if got := Grams(-6000, 1000, 200); got != 35.0 {
		t.Errorf("inverted cell: got %v, want 35", got)
	}
	if got := Grams(8000, 1000, -200); got != 35.0 {
		t.Errorf("negative scale: got %v, want 35", got)
	}
}

func TestGramsZeroFloor(t *testing.T) {
	// 99 raw units is below half of 200.
	if got := Grams(1099, 1000, 200); got != 0 {
		t.Errorf("net 99: got %v, want 0", got)
	}
	// Exactly half is not suppressed.
	if got := Grams(1100, 1000, 200); got != 0.5 {
		t.Errorf("net 100: got %v, want 0.5", got)
	}
}

func TestGramsZeroScale(t *testing.T) {
	if got := Grams(5000, 0, 0); got != 0 {
		t.Errorf("zero scale: got %v, want 0", got)
	}
}

func TestClassifyTransitions(t *testing.T) {
	th := DefaultThresholds
	tests := []struct {
		prev  State
		grams float64
		want  State
	}{
		{StateFree, 0, StateFree},
		{StateFree, 35.0, StateFree}, // boundary exclusive on ">"
		{StateFree, 35.01, StateOccupied},
		{StateFree, 30, StateFree},
		{StateOccupied, 25.0, StateOccupied}, // boundary exclusive on "<"
		{StateOccupied, 24.99, StateFree},
		{StateOccupied, 30, StateOccupied},
		{StateOccupied, 500, StateOccupied},
	}
	for _, tc := range tests {
		if got := Classify(tc.prev, tc.grams, th); got != tc.want {
			t.Errorf("Classify(%s, %.2f): got %s, want %s", tc.prev, tc.grams, got, tc.want)
		}
	}
}

func TestClassifyScenarioSequence(t *testing.T) {
	const offset, scale = 1000.0, 200.0
	state := StateFree

	state = Classify(state, Grams(1000, offset, scale), DefaultThresholds)
	if state != StateFree {
		t.Fatalf("after raw 1000: got %s, want FREE", state)
	}
	// 35.0g does not exceed the occupy threshold.
	state = Classify(state, Grams(8000, offset, scale), DefaultThresholds)
	if state != StateFree {
		t.Fatalf("after raw 8000: got %s, want FREE", state)
	}
	state = Classify(state, Grams(8200, offset, scale), DefaultThresholds)
	if state != StateOccupied {
		t.Fatalf("after raw 8200: got %s, want OCCUPIED", state)
	}
	state = Classify(state, Grams(6000, offset, scale), DefaultThresholds)
	if state != StateOccupied {
		t.Fatalf("after raw 6000: got %s, want OCCUPIED", state)
	}
	state = Classify(state, Grams(5800, offset, scale), DefaultThresholds)
	if state != StateFree {
		t.Fatalf("after raw 5800: got %s, want FREE", state)
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds.Validate(); err != nil {
		t.Errorf("default thresholds: unexpected error %v", err)
	}
	if err := (Thresholds{Occupy: 20, Release: 30}).Validate(); err == nil {
		t.Error("expected error when release > occupy")
	}
	if err := (Thresholds{Occupy: 10, Release: -1}).Validate(); err == nil {
		t.Error("expected error for negative threshold")
	}
	if err := (Thresholds{Occupy: 30, Release: 30}).Validate(); err != nil {
		t.Errorf("equal thresholds: unexpected error %v", err)
	}
}

func TestDecide(t *testing.T) {
	allFree := []State{StateFree, StateFree, StateFree}
	oneFree := []State{StateOccupied, StateFree, StateOccupied}
	full := []State{StateOccupied, StateOccupied, StateOccupied}

	if got := Decide(true, allFree); got != Granted {
		t.Errorf("valid, all free: got %s, want granted", got)
	}
	if got := Decide(true, oneFree); got != Granted {
		t.Errorf("valid, one free: got %s, want granted", got)
	}
	// Scenario E.
	if got := Decide(true, full); got != DeniedFull {
		t.Errorf("valid, full: got %s, want full", got)
	}
	// Scenario D.
	if got := Decide(false, allFree); got != DeniedInvalid {
		t.Errorf("invalid, free: got %s, want invalid", got)
	}
	if got := Decide(false, full); got != DeniedInvalid {
		t.Errorf("invalid, full: got %s, want invalid", got)
	}
	if got := Decide(true, nil); got != DeniedFull {
		t.Errorf("valid, no slots: got %s, want full", got)
	}
}

func TestDecisionString(t *testing.T) {
	want := map[Decision]string{Granted: "granted", DeniedInvalid: "invalid", DeniedFull: "full"}
	for d, s := range want {
		if d.String() != s {
			t.Errorf("Decision(%d).String(): got %q, want %q", int(d), d.String(), s)
		}
	}
}

// --- properties ---

func genState(t *rapid.T, label string) State {
	return rapid.SampledFrom([]State{StateFree, StateOccupied}).Draw(t, label)
}

func TestPropertyTransitionsRespectThresholds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		weights := rapid.SliceOf(rapid.Float64Range(0, 100)).Draw(t, "weights")
		state := genState(t, "initial")
		for i, w := range weights {
			next := Classify(state, w, DefaultThresholds)
			if state == StateFree && next == StateOccupied && !(w > DefaultThresholds.Occupy) {
				t.Fatalf("step %d: FREE->OCCUPIED at %.4fg", i, w)
			}
			if state == StateOccupied && next == StateFree && !(w < DefaultThresholds.Release) {
				t.Fatalf("step %d: OCCUPIED->FREE at %.4fg", i, w)
			}
			state = next
		}
	})
}

func TestPropertyDeadZoneIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		state := genState(t, "initial")
		weights := rapid.SliceOf(rapid.Float64Range(DefaultThresholds.Release, DefaultThresholds.Occupy)).Draw(t, "weights")
		for i, w := range weights {
			if next := Classify(state, w, DefaultThresholds); next != state {
				t.Fatalf("step %d: %s changed to %s at %.4fg inside dead zone", i, state, next, w)
			}
		}
	})
}

func TestPropertyGramsNonNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := float64(rapid.Int32Range(-8388608, 8388607).Draw(t, "raw"))
		offset := float64(rapid.Int32Range(-8388608, 8388607).Draw(t, "offset"))
		scale := rapid.Float64Range(-1000, 1000).Draw(t, "scale")
		if g := Grams(raw, offset, scale); g < 0 {
			t.Fatalf("Grams(%v, %v, %v) = %v", raw, offset, scale, g)
		}
	})
}

func TestPropertyZeroFloor(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scale := rapid.Float64Range(1, 1000).Draw(t, "scale")
		offset := rapid.Float64Range(-1e6, 1e6).Draw(t, "offset")
		frac := rapid.Float64Range(-0.4999, 0.4999).Draw(t, "frac")
		if g := Grams(offset+frac*scale, offset, scale); g != 0 {
			t.Fatalf("net %.4f with scale %.4f: got %v, want 0", frac*scale, scale, g)
		}
	})
}

func TestPropertyDecide(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		valid := rapid.Bool().Draw(t, "valid")
		snap := rapid.SliceOfN(rapid.SampledFrom([]State{StateFree, StateOccupied}), 3, 3).Draw(t, "snapshot")
		free := false
		for _, s := range snap {
			if s == StateFree {
				free = true
			}
		}
		granted := Decide(valid, snap) == Granted
		if granted != (valid && free) {
			t.Fatalf("Decide(%v, %v): granted=%v", valid, snap, granted)
		}
	})
}
