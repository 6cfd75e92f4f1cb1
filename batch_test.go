package elevation

import (
	"context"
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

// newTestRegistry returns a Registry with a single tile covering [0, 2] x [0,
// 4] where every sample is 42.5.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistryFromTiles(newConstantTile(t, 0, 0, 2, 4, 42.5))
	t.Cleanup(func() {
		assert.NoError(t, registry.Close())
	})
	return registry
}

func TestBatchHandler_Handle(t *testing.T) {
	batchHandler := NewBatchHandler(newTestRegistry(t))

	for _, tc := range []struct {
		name        string
		body        string
		expected    string
		expectedErr error
	}{
		{name: "empty", body: "[]", expected: "[]"},
		{name: "empty_whitespace", body: " [ ]\n", expected: "[]"},
		{name: "single", body: "[[1.0,2.0]]", expected: "[42.5]"},
		{name: "miss", body: "[[1.0,2.0],[999.0,999.0]]", expected: "[42.5,null]"},
		{name: "integers", body: "[[1,2],[0,4],[-1,0]]", expected: "[42.5,42.5,null]"},
		{name: "all_miss", body: "[[10,10],[-10,-10]]", expected: "[null,null]"},
		{name: "wrong_arity_short", body: "[[1.0]]", expectedErr: ErrMalformedInput},
		{name: "wrong_arity_long", body: "[[1.0,2.0],[1.0,2.0,3.0]]", expectedErr: ErrMalformedInput},
		{name: "not_json", body: "not json", expectedErr: ErrMalformedInput},
		{name: "object", body: `{"x":1,"y":2}`, expectedErr: ErrMalformedInput},
		{name: "null", body: "null", expectedErr: ErrMalformedInput},
		{name: "flat_array", body: "[1.0,2.0]", expectedErr: ErrMalformedInput},
		{name: "string_coordinate", body: `[["1.0",2.0]]`, expectedErr: ErrMalformedInput},
		{name: "null_coordinate", body: "[[null,2.0]]", expectedErr: ErrMalformedInput},
		{name: "null_element", body: "[null]", expectedErr: ErrMalformedInput},
		{name: "truncated", body: "[[1.0,2.0]", expectedErr: ErrMalformedInput},
		{name: "trailing_data", body: "[[1.0,2.0]]]", expectedErr: ErrMalformedInput},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := batchHandler.Handle(context.Background(), []byte(tc.body))
			if tc.expectedErr != nil {
				assert.IsError(t, err, tc.expectedErr)
				assert.Zero(t, actual)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, string(actual))
		})
	}
}

func TestDecodePoints(t *testing.T) {
	points, err := DecodePoints([]byte("[[1.5,-2.25],[0,1e3]]"))
	assert.NoError(t, err)
	assert.Equal(t, [][2]float64{{1.5, -2.25}, {0, 1000}}, points)
}

func TestBatchHandler_HandleInfiniteSample(t *testing.T) {
	raster := newFakeRaster(2, 2, Affine{0, 1, 0, 2, 0, -1}, func(pixel, line int) float64 {
		if pixel == 0 && line == 0 {
			return math.Inf(1)
		}
		return 42.5
	})
	registry := NewRegistryFromTiles(newTestTile(t, raster))

	actual, err := NewBatchHandler(registry).Handle(context.Background(), []byte("[[0.5,1.5],[1.5,1.5]]"))
	assert.NoError(t, err)
	assert.Equal(t, "[null,42.5]", string(actual))
}
