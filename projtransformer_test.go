package elevation_test

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-elevation-lookup"
)

func TestProjTransformerFactory_NewTransformer(t *testing.T) {
	factory := elevation.ProjTransformerFactory{}
	transformer, err := factory.NewTransformer("EPSG:4326", "EPSG:3857")
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, transformer.Close())
	}()

	// Longitude first, even though EPSG:4326 is latitude first.
	x, y, err := transformer.Forward(10, 45)
	assert.NoError(t, err)
	assert.True(t, math.Abs(x-1113194.9079327357) < 1e-3)
	assert.True(t, math.Abs(y-5621521.486192066) < 1e-3)

	for _, coord := range [][2]float64{{0, 0}, {-31.216667, 39.466667}, {6.6771972, 45.5052883}} {
		x, y, err := transformer.Forward(coord[0], coord[1])
		assert.NoError(t, err)
		lon, lat, err := transformer.Inverse(x, y)
		assert.NoError(t, err)
		assert.True(t, math.Abs(lon-coord[0]) < 1e-9)
		assert.True(t, math.Abs(lat-coord[1]) < 1e-9)
	}
}

func TestProjTransformerFactory_NewTransformerErrors(t *testing.T) {
	factory := elevation.ProjTransformerFactory{}
	for _, tc := range []struct {
		name      string
		querySRS  string
		nativeSRS string
	}{
		{name: "no_native_projection", querySRS: "EPSG:4326", nativeSRS: ""},
		{name: "unknown_native", querySRS: "EPSG:4326", nativeSRS: "EPSG:999999"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := factory.NewTransformer(tc.querySRS, tc.nativeSRS)
			assert.IsError(t, err, elevation.ErrTransform)
		})
	}
}

func TestProjTransformerFactory_ValidateSRS(t *testing.T) {
	factory := elevation.ProjTransformerFactory{}
	assert.NoError(t, factory.ValidateSRS("EPSG:4326"))
	assert.NoError(t, factory.ValidateSRS("+proj=longlat +datum=WGS84 +type=crs"))
	assert.IsError(t, factory.ValidateSRS("EPSG:999999"), elevation.ErrInvalidSRS)
	assert.IsError(t, factory.ValidateSRS("+proj=merc"), elevation.ErrInvalidSRS)
}
