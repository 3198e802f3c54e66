package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// GCD returns the greatest common divisor of a and b. GCD(0, 0) is 0.
func GCD[T constraints.Unsigned](a, b T) T {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// LCM returns the least common multiple of a and b. A zero operand yields
// the other one, so LCM can fold over a list starting from 0 or 1.
func LCM[T constraints.Unsigned](a, b T) T {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	return a / GCD(a, b) * b
}

// LCMOf folds LCM over values, returning 1 for an empty list.
func LCMOf[T constraints.Unsigned](values ...T) T {
	out := T(1)
	for _, v := range values {
		out = LCM(out, v)
	}
	return out
}
