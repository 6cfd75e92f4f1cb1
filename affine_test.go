package elevation

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestAffine_Invert(t *testing.T) {
	for _, tc := range []struct {
		name   string
		affine Affine
	}{
		{
			name:   "north_up",
			affine: Affine{100, 0.5, 0, 200, 0, -0.5},
		},
		{
			name:   "rotated",
			affine: Affine{-10, math.Cos(0.3), -math.Sin(0.3), 45, math.Sin(0.3), math.Cos(0.3)},
		},
		{
			name:   "skewed",
			affine: Affine{1000, 25, 3, 2000, -2, -25},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			inverse, ok := tc.affine.Invert()
			assert.True(t, ok)
			for _, p := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {123.25, 456.75}} {
				x, y := tc.affine.Apply(p[0], p[1])
				px, py := inverse.Apply(x, y)
				assert.True(t, math.Abs(px-p[0]) < 1e-9)
				assert.True(t, math.Abs(py-p[1]) < 1e-9)
			}
		})
	}
}

func TestAffine_InvertSingular(t *testing.T) {
	for _, a := range []Affine{
		{},
		{0, 1, 2, 0, 2, 4},
		{0, math.NaN(), 0, 0, 0, 1},
	} {
		_, ok := a.Invert()
		assert.False(t, ok)
	}
}

func TestAffine_Pixel(t *testing.T) {
	geoToPixel, ok := Affine{10, 0.25, 0, 50, 0, -0.25}.Invert()
	assert.True(t, ok)
	for _, tc := range []struct {
		x, y          float64
		pixel, line   int
		expectedValid bool
	}{
		{x: 10, y: 50, pixel: 0, line: 0, expectedValid: true},
		{x: 10.24, y: 49.76, pixel: 0, line: 0, expectedValid: true},
		{x: 10.25, y: 49.75, pixel: 1, line: 1, expectedValid: true},
		{x: 9.99, y: 50.01, pixel: -1, line: -1, expectedValid: true},
		{x: math.NaN(), y: 0, expectedValid: false},
		{x: 1e300, y: 0, expectedValid: false},
	} {
		pixel, line, valid := geoToPixel.Pixel(tc.x, tc.y)
		assert.Equal(t, tc.expectedValid, valid)
		if tc.expectedValid {
			assert.Equal(t, tc.pixel, pixel)
			assert.Equal(t, tc.line, line)
		}
	}
}
