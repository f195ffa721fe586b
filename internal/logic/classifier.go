package logic

import "math"

// Average returns the arithmetic mean of raw samples. An empty slice averages to 0.
func Average(samples []int32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		sum += int64(s)
	}
	return float64(sum) / float64(len(samples))
}

// Grams converts an averaged raw reading into grams.
//
// The sign of the net reading is discarded: a load cell mounted upside down
// reports the same weight as one mounted correctly. This also hides a miswired
// cell, which cannot be told apart without looking at the hardware.
//
// A net reading smaller than half of one gram's worth of raw units is reported
// as exactly zero. A zero scale also yields zero.
func Grams(rawAverage, offset, scale float64) float64 {
	if scale == 0 {
		return 0
	}
	net := rawAverage - offset
	if math.Abs(net) < math.Abs(scale)*0.5 {
		return 0
	}
	return math.Abs(net / scale)
}

// Classify applies the hysteresis band to a filtered weight.
// FREE becomes OCCUPIED only when grams > t.Occupy, OCCUPIED becomes FREE only
// when grams < t.Release; anything else keeps prev.
func Classify(prev State, grams float64, t Thresholds) State {
	switch prev {
	case StateFree:
		if grams > t.Occupy {
			return StateOccupied
		}
	case StateOccupied:
		if grams < t.Release {
			return StateFree
		}
	}
	return prev
}

// HasCapacity reports whether any slot in the snapshot is free.
func HasCapacity(snapshot []State) bool {
	for _, s := range snapshot {
		if s == StateFree {
			return true
		}
	}
	return false
}

// Decide gates the barrier: access is granted only for a valid card while at
// least one slot is free.
func Decide(valid bool, snapshot []State) Decision {
	if !valid {
		return DeniedInvalid
	}
	if !HasCapacity(snapshot) {
		return DeniedFull
	}
	return Granted
}
