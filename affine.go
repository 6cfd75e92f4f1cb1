package elevation

import "math"

// An Affine is a 6-coefficient affine transform following the GDAL
// geotransform convention:
//
//	X = a[0] + a[1]*pixel + a[2]*line
//	Y = a[3] + a[4]*pixel + a[5]*line
type Affine [6]float64

// Apply applies a to (x, y).
func (a Affine) Apply(x, y float64) (float64, float64) {
	return a[0] + a[1]*x + a[2]*y, a[3] + a[4]*x + a[5]*y
}

// Invert returns the inverse of a. It returns false if a is not invertible.
func (a Affine) Invert() (Affine, bool) {
	det := a[1]*a[5] - a[2]*a[4]
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Affine{}, false
	}
	idet := 1 / det
	inv := Affine{0, a[5] * idet, -a[2] * idet, 0, -a[4] * idet, a[1] * idet}
	inv[0] = -a[0]*inv[1] - a[3]*inv[2]
	inv[3] = -a[0]*inv[4] - a[3]*inv[5]
	return inv, true
}

// Pixel returns the integer pixel and line containing the point (x, y), where
// a maps geographic coordinates to pixel coordinates.
func (a Affine) Pixel(x, y float64) (int, int, bool) {
	px, py := a.Apply(x, y)
	px, py = math.Floor(px), math.Floor(py)
	if math.IsNaN(px) || math.IsNaN(py) ||
		px < math.MinInt32 || px > math.MaxInt32 ||
		py < math.MinInt32 || py > math.MaxInt32 {
		return 0, 0, false
	}
	return int(px), int(py), true
}
