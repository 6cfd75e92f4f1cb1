//go:build gdal

// Package gdal provides elevation rasters and coordinate transforms backed by
// GDAL, for formats not supported by the pure Go providers.
package gdal

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/twpayne/go-elevation-lookup"
)

var registerOnce sync.Once

// A Raster is a raster opened with GDAL. GDAL dataset handles are not safe for
// concurrent use so reads are serialized.
type Raster struct {
	mutex   sync.Mutex
	dataset *godal.Dataset
	band    godal.Band
	width   int
	height  int
	nBands  int
	complex bool
}

// Open opens filename with GDAL. It is an elevation.RasterOpener.
func Open(filename string) (elevation.Raster, error) {
	registerOnce.Do(godal.RegisterAll)

	dataset, err := godal.Open(filename)
	if err != nil {
		return nil, err
	}
	structure := dataset.Structure()
	r := &Raster{
		dataset: dataset,
		width:   structure.SizeX,
		height:  structure.SizeY,
		nBands:  structure.NBands,
	}
	if bands := dataset.Bands(); len(bands) > 0 {
		r.band = bands[0]
		switch r.band.Structure().DataType {
		case godal.CInt16, godal.CInt32, godal.CFloat32, godal.CFloat64:
			r.complex = true
		}
	}
	return r, nil
}

func (r *Raster) Size() (int, int) {
	return r.width, r.height
}

func (r *Raster) BandCount() int {
	return r.nBands
}

func (r *Raster) IsComplex() bool {
	return r.complex
}

func (r *Raster) NoData() (float64, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.band.NoData()
}

func (r *Raster) GeoTransform() (elevation.Affine, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	geoTransform, err := r.dataset.GeoTransform()
	if err != nil {
		return elevation.Affine{}, false
	}
	return elevation.Affine(geoTransform), true
}

func (r *Raster) Projection() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.dataset.Projection()
}

func (r *Raster) Sample(ctx context.Context, pixel, line int) (float64, error) {
	if pixel < 0 || r.width <= pixel || line < 0 || r.height <= line {
		return math.NaN(), nil
	}
	buffer := make([]float64, 1)
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.band.Read(pixel, line, buffer, 1, 1); err != nil {
		return 0, err
	}
	return buffer[0], nil
}

func (r *Raster) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.dataset.Close()
}

// Transformers is an elevation.TransformerFactory that uses GDAL's OGR
// coordinate transformations, one in each direction.
type Transformers struct{}

type transformer struct {
	mutex   sync.Mutex
	forward *godal.Transform
	inverse *godal.Transform
}

func (Transformers) NewTransformer(querySRS, nativeSRS string) (elevation.Transformer, error) {
	registerOnce.Do(godal.RegisterAll)

	if nativeSRS == "" {
		return nil, fmt.Errorf("%w: raster has no projection", elevation.ErrTransform)
	}
	querySpatialRef, err := newSpatialRef(querySRS)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", elevation.ErrInvalidSRS, err)
	}
	defer querySpatialRef.Close()
	nativeSpatialRef, err := newSpatialRef(nativeSRS)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", elevation.ErrTransform, err)
	}
	defer nativeSpatialRef.Close()

	forward, err := godal.NewTransform(querySpatialRef, nativeSpatialRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", elevation.ErrTransform, err)
	}
	inverse, err := godal.NewTransform(nativeSpatialRef, querySpatialRef)
	if err != nil {
		forward.Close()
		return nil, fmt.Errorf("%w: %w", elevation.ErrTransform, err)
	}
	return &transformer{
		forward: forward,
		inverse: inverse,
	}, nil
}

func (t *transformer) Forward(x, y float64) (float64, float64, error) {
	return t.transform(t.forward, x, y)
}

func (t *transformer) Inverse(x, y float64) (float64, float64, error) {
	return t.transform(t.inverse, x, y)
}

func (t *transformer) Close() error {
	t.forward.Close()
	t.inverse.Close()
	return nil
}

func (t *transformer) transform(tr *godal.Transform, x, y float64) (float64, float64, error) {
	xs, ys, zs := []float64{x}, []float64{y}, []float64{0}
	t.mutex.Lock()
	err := tr.TransformEx(xs, ys, zs, nil)
	t.mutex.Unlock()
	if err != nil {
		return 0, 0, err
	}
	if math.IsNaN(xs[0]) || math.IsInf(xs[0], 0) || math.IsNaN(ys[0]) || math.IsInf(ys[0], 0) {
		return 0, 0, fmt.Errorf("(%g, %g): not finite", xs[0], ys[0])
	}
	return xs[0], ys[0], nil
}

// newSpatialRef returns a new SpatialRef from a sanitized SRS definition.
func newSpatialRef(srs string) (*godal.SpatialRef, error) {
	if code, ok := strings.CutPrefix(srs, "EPSG:"); ok {
		if epsg, err := strconv.Atoi(code); err == nil {
			return godal.NewSpatialRefFromEPSG(epsg)
		}
	}
	if strings.HasPrefix(srs, "+") {
		return godal.NewSpatialRefFromProj4(srs)
	}
	if strings.HasSuffix(srs, "]") {
		return godal.NewSpatialRefFromWKT(srs)
	}
	return godal.NewSpatialRef(srs)
}
