package math

import (
	"github.com/chewxy/math32"
	"golang.org/x/exp/constraints"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = math32.Pi
	/** @brief An approximate representation of PI multiplied by 2. */
	K_PI_2 float32 = 2.0 * K_PI
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
)

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

// DegToRad converts the provided degrees to radians.
func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}

// float32 helpers backed by math32
func Sin(x float32) float32      { return math32.Sin(x) }
func Cos(x float32) float32      { return math32.Cos(x) }
func Tan(x float32) float32      { return math32.Tan(x) }
func Asin(x float32) float32     { return math32.Asin(x) }
func Atan2(y, x float32) float32 { return math32.Atan2(y, x) }
func Sqrt(x float32) float32     { return math32.Sqrt(x) }
func Abs(x float32) float32      { return math32.Abs(x) }
