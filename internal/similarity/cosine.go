// Package similarity holds the pure scoring functions used to rank candidate
// matches between lost and found reports. Nothing here performs I/O or
// mutates its inputs, so every function is safe for concurrent use.
package similarity

import "math"

// Cosine returns the cosine of the angle between a and b in [-1, 1].
//
// Absent, empty, zero-norm or mismatched-length vectors yield 0, so a missing
// channel contributes nothing to a weighted sum.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// clamp float drift
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

// Weighted blends per-channel similarities into one score:
// wText*text + wImage*image.
func Weighted(text, image, wText, wImage float64) float64 {
	return wText*text + wImage*image
}

// MaxChannel returns the larger of the text and image cosine similarities.
func MaxChannel(aText, bText, aImage, bImage []float32) float64 {
	return math.Max(Cosine(aText, bText), Cosine(aImage, bImage))
}
