package device

import "math"

// Resolution of the delay hardware, in picoseconds
const resolutionPs = 5

// Quantize rounds a delay in seconds to the nearest multiple of 5 ps.
// Ties round half up.
func Quantize(seconds float64) float64 {
	ps := math.Round(seconds * 1e12)
	q := math.Floor(ps/resolutionPs+0.5) * resolutionPs
	return q / 1e12
}
