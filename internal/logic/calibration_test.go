package logic

import (
	"errors"
	"math"
	"testing"
)

func TestScaleFactor(t *testing.T) {
	tests := []struct {
		name          string
		without, with float64
		grams         float64
		want          float64
		err           error
	}{
		{"reference load", 12, 21536, 100, 215.24, nil},
		{"inverted cell", 12, -21512, 100, 215.24, nil},
		{"no change", 40, 40, 100, 0, ErrNoChange},
		{"zero grams", 0, 1000, 0, 0, ErrBadReference},
		{"negative grams", 0, 1000, -5, 0, ErrBadReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScaleFactor(tt.without, tt.with, tt.grams)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err: got %v, want %v", err, tt.err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("factor: got %v, want %v", got, tt.want)
			}
		})
	}
}
