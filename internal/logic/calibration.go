package logic

import (
	"errors"
	"math"
)

var (
	ErrBadReference = errors.New("reference weight must be positive")
	ErrNoChange     = errors.New("reading did not change under load")
)

// ScaleFactor returns raw units per gram from net readings taken without and
// with a known reference weight on the cell.
func ScaleFactor(without, with, grams float64) (float64, error) {
	if grams <= 0 {
		return 0, ErrBadReference
	}
	if with == without {
		return 0, ErrNoChange
	}
	return math.Abs(with-without) / grams, nil
}
