package coretype

import "fmt"

// Ratio is a rational number. The zero value is not a valid ratio.
type Ratio struct {
	Num int64
	Den int64
}

// NewRatio creates a ratio, rejecting a zero denominator.
func NewRatio(num, den int64) (Ratio, error) {
	if den == 0 {
		return Ratio{}, fmt.Errorf("%w: zero denominator", ErrInvalidRatio)
	}
	if den < 0 {
		num, den = -num, -den
	}
	return Ratio{Num: num, Den: den}, nil
}

// Float returns the ratio as a float64.
func (r Ratio) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Simplify reduces the ratio by the greatest common divisor.
func (r Ratio) Simplify() Ratio {
	if r.Den == 0 {
		return r
	}
	g := gcd(abs64(r.Num), abs64(r.Den))
	if g <= 1 {
		return r
	}
	return Ratio{Num: r.Num / g, Den: r.Den / g}
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
