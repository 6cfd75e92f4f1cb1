package elevation_test

import (
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-elevation-lookup"
)

func TestSanitizeSRS(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected string
	}{
		{input: "WGS84", expected: "EPSG:4326"},
		{input: " wgs84 ", expected: "EPSG:4326"},
		{input: "NAD83", expected: "EPSG:4269"},
		{input: "CRS84", expected: "OGC:CRS84"},
		{input: "EPSG:3035", expected: "EPSG:3035"},
		{input: "epsg:3035", expected: "EPSG:3035"},
		{input: "EPSGA:4326", expected: "EPSG:4326"},
		{input: "ESRI::102100", expected: "ESRI:102100"},
		{input: "3857", expected: "EPSG:3857"},
		{input: "+proj=longlat +datum=WGS84", expected: "+proj=longlat +datum=WGS84 +type=crs"},
		{input: "proj=utm +zone=32 +type=crs", expected: "+proj=utm +zone=32 +type=crs"},
		{input: "urn:ogc:def:crs:EPSG::4326", expected: "urn:ogc:def:crs:EPSG::4326"},
		{input: `GEOGCS["WGS 84",DATUM["WGS_1984"]]`, expected: `GEOGCS["WGS 84",DATUM["WGS_1984"]]`},
		{input: `{"type":"GeographicCRS"}`, expected: `{"type":"GeographicCRS"}`},
	} {
		t.Run(tc.input, func(t *testing.T) {
			actual, err := elevation.SanitizeSRS(tc.input)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestSanitizeSRS_Invalid(t *testing.T) {
	for _, input := range []string{
		"",
		"   ",
		"not a crs",
		"EPSG:",
		"-4326",
		`GEOGCS["unterminated"`,
		"EPSG:43 26",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := elevation.SanitizeSRS(input)
			assert.IsError(t, err, elevation.ErrInvalidSRS)
		})
	}
}
