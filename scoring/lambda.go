package scoring

import (
	"fmt"
	"math"
)

// Lambda estimates the scale parameter of the scoring scheme: the lambda
// with sum_xy p_x p_y exp(lambda*s_xy) = 1, assuming uniform letter
// abundances over the proper letters.  The true letter abundances would
// need a joint solve; the uniform estimate is what the default temperature
// and the quality matrices use.
func Lambda(m *Matrix, alphabetSize int) (float64, error) {
	n := alphabetSize
	if len(m.cells) < n || len(m.cells[0]) < n {
		n = len(m.cells)
	}
	if n == 0 {
		return 0, fmt.Errorf("scoring: empty matrix")
	}
	sum := func(lambda float64) float64 {
		s := 0.0
		p := 1.0 / float64(n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				s += p * p * math.Exp(lambda*float64(m.cells[i][j]))
			}
		}
		return s
	}
	// The expected score must be negative and some score positive for a
	// finite positive root to exist.
	d := 1e-3
	if sum(d) >= 1 {
		return 0, fmt.Errorf("scoring: can't get probabilities for this score matrix")
	}
	lo, hi := d, 1.0
	for sum(hi) < 1 {
		lo = hi
		hi *= 2
		if hi > 1e4 {
			return 0, fmt.Errorf("scoring: can't get probabilities for this score matrix")
		}
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if sum(mid) < 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}
