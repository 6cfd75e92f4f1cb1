package elevation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// A Tile is an open elevation raster together with the transforms needed to
// answer altitude queries in a query SRS. A Tile is immutable once created.
type Tile struct {
	filename    string
	raster      Raster
	width       int
	height      int
	noData      float64
	hasNoData   bool
	pixelToGeo  Affine
	geoToPixel  Affine
	querySRS    string
	nativeSRS   string
	transformer Transformer
	bounds      Bounds
}

type tileOptions struct {
	rasterOpener       RasterOpener
	transformerFactory TransformerFactory
	boundsDensify      int
}

// A TileOption sets an option on a Tile.
type TileOption func(*tileOptions)

// WithRasterOpener sets the function used to open rasters.
func WithRasterOpener(rasterOpener RasterOpener) TileOption {
	return func(o *tileOptions) {
		o.rasterOpener = rasterOpener
	}
}

// WithTransformerFactory sets the factory used to create coordinate
// transforms.
func WithTransformerFactory(transformerFactory TransformerFactory) TileOption {
	return func(o *tileOptions) {
		o.transformerFactory = transformerFactory
	}
}

// WithBoundsDensify sets the number of extra points sampled along each edge
// of the pixel grid when computing bounds. Zero uses only the four corners.
func WithBoundsDensify(boundsDensify int) TileOption {
	return func(o *tileOptions) {
		o.boundsDensify = max(boundsDensify, 0)
	}
}

// NewTile opens filename and prepares it for queries in querySRS.
func NewTile(filename, querySRS string, options ...TileOption) (*Tile, error) {
	o := tileOptions{
		rasterOpener:       OpenRaster,
		transformerFactory: ProjTransformerFactory{},
	}
	for _, option := range options {
		option(&o)
	}

	raster, err := o.rasterOpener(filename)
	if err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			return nil, fmt.Errorf("%s: %w: %w", filename, ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("%s: %w: %w", filename, ErrOpen, err)
	}

	t := &Tile{
		filename: filename,
		raster:   raster,
	}
	ok := false
	defer func() {
		if !ok {
			_ = t.Close()
		}
	}()

	if bandCount := raster.BandCount(); bandCount != 1 {
		return nil, fmt.Errorf("%s: %w: found %d bands, expected 1", filename, ErrUnsupportedFormat, bandCount)
	}
	if raster.IsComplex() {
		return nil, fmt.Errorf("%s: %w: complex sample type", filename, ErrUnsupportedFormat)
	}
	t.width, t.height = raster.Size()
	if t.width <= 0 || t.height <= 0 {
		return nil, fmt.Errorf("%s: %w: empty raster", filename, ErrUnsupportedFormat)
	}

	t.noData, t.hasNoData = raster.NoData()
	var hasGeoTransform bool
	if t.pixelToGeo, hasGeoTransform = raster.GeoTransform(); !hasGeoTransform {
		return nil, fmt.Errorf("%s: %w", filename, ErrGeoreferencing)
	}
	var invertible bool
	if t.geoToPixel, invertible = t.pixelToGeo.Invert(); !invertible {
		return nil, fmt.Errorf("%s: %w: %v", filename, ErrGeoreferencing, t.pixelToGeo)
	}

	if t.querySRS, err = SanitizeSRS(querySRS); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	t.nativeSRS = raster.Projection()
	if t.transformer, err = o.transformerFactory.NewTransformer(t.querySRS, t.nativeSRS); err != nil {
		if !errors.Is(err, ErrTransform) {
			err = fmt.Errorf("%w: %w", ErrTransform, err)
		}
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	if t.bounds, err = t.computeBounds(o.boundsDensify); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", filename, ErrBounds, err)
	}

	ok = true
	return t, nil
}

// Altitude returns the altitude at (x, y) in t's query SRS. It returns false
// if (x, y) is outside t or falls on a nodata pixel.
func (t *Tile) Altitude(ctx context.Context, x, y float64) (float64, bool) {
	if !t.bounds.Contains(x, y) {
		return 0, false
	}
	nativeX, nativeY, err := t.transformer.Forward(x, y)
	if err != nil {
		return 0, false
	}
	pixel, line, ok := t.geoToPixel.Pixel(nativeX, nativeY)
	if !ok || pixel < 0 || t.width <= pixel || line < 0 || t.height <= line {
		return 0, false
	}
	sample, err := t.raster.Sample(ctx, pixel, line)
	switch {
	case err != nil:
		return 0, false
	case t.hasNoData && sample == t.noData:
		return 0, false
	case math.IsNaN(sample) || math.IsInf(sample, 0):
		return 0, false
	default:
		return sample, true
	}
}

// Bounds returns t's bounds in its query SRS.
func (t *Tile) Bounds() Bounds {
	return t.bounds
}

// Filename returns t's filename.
func (t *Tile) Filename() string {
	return t.filename
}

// Size returns t's size in pixels.
func (t *Tile) Size() (int, int) {
	return t.width, t.height
}

// Close releases t's resources.
func (t *Tile) Close() error {
	var err error
	if t.transformer != nil {
		err = multierr.Append(err, t.transformer.Close())
		t.transformer = nil
	}
	if t.raster != nil {
		err = multierr.Append(err, t.raster.Close())
		t.raster = nil
	}
	return err
}

// computeBounds returns the envelope of t's pixel grid edges transformed into
// the query SRS. With no densification only the four corners are used, so the
// result is approximate when the transform rotates the grid.
func (t *Tile) computeBounds(densify int) (Bounds, error) {
	w, h := float64(t.width), float64(t.height)
	corners := [][2]float64{{0, 0}, {0, h}, {w, 0}, {w, h}}
	points := corners
	if densify > 0 {
		edges := [][2][2]float64{
			{corners[0], corners[2]},
			{corners[2], corners[3]},
			{corners[3], corners[1]},
			{corners[1], corners[0]},
		}
		for _, edge := range edges {
			for i := 1; i <= densify; i++ {
				f := float64(i) / float64(densify+1)
				points = append(points, [2]float64{
					edge[0][0] + f*(edge[1][0]-edge[0][0]),
					edge[0][1] + f*(edge[1][1]-edge[0][1]),
				})
			}
		}
	}

	bounds := Bounds{
		Top:    math.Inf(-1),
		Left:   math.Inf(1),
		Bottom: math.Inf(1),
		Right:  math.Inf(-1),
	}
	for _, point := range points {
		geoX, geoY := t.pixelToGeo.Apply(point[0], point[1])
		x, y, err := t.transformer.Inverse(geoX, geoY)
		if err != nil {
			return Bounds{}, fmt.Errorf("corner (%g, %g): %w", geoX, geoY, err)
		}
		bounds.Top = max(bounds.Top, y)
		bounds.Left = min(bounds.Left, x)
		bounds.Bottom = min(bounds.Bottom, y)
		bounds.Right = max(bounds.Right, x)
	}
	return bounds, nil
}
