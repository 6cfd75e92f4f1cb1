package elevation

import (
	"context"
	"errors"
)

var (
	ErrOpen              = errors.New("cannot open raster")
	ErrUnsupportedFormat = errors.New("unsupported raster format")
	ErrGeoreferencing    = errors.New("missing or non-invertible geotransform")
	ErrInvalidSRS        = errors.New("invalid spatial reference")
	ErrTransform         = errors.New("cannot create coordinate transform")
	ErrBounds            = errors.New("cannot compute bounds")
	ErrMalformedInput    = errors.New("malformed input")
)

// A Raster is an open single-band raster file.
//
// Sample must be safe for concurrent use. Implementations backed by handles
// that do not support concurrent reads must serialize access themselves.
type Raster interface {
	Size() (width, height int)
	BandCount() int
	IsComplex() bool
	NoData() (float64, bool)
	GeoTransform() (Affine, bool)
	Projection() string
	Sample(ctx context.Context, pixel, line int) (float64, error)
	Close() error
}

// A RasterOpener opens the raster in filename.
type RasterOpener func(filename string) (Raster, error)

// A Transformer transforms coordinates between a query spatial reference
// system and a raster's native spatial reference system.
type Transformer interface {
	// Forward transforms from the query SRS to the native SRS.
	Forward(x, y float64) (float64, float64, error)
	// Inverse transforms from the native SRS to the query SRS.
	Inverse(x, y float64) (float64, float64, error)
	Close() error
}

// A TransformerFactory creates Transformers.
type TransformerFactory interface {
	NewTransformer(querySRS, nativeSRS string) (Transformer, error)
}

// Bounds is an axis-aligned rectangle in the query SRS.
type Bounds struct {
	Top    float64
	Left   float64
	Bottom float64
	Right  float64
}

// Contains returns whether (x, y) is inside b. Edges are inclusive.
func (b Bounds) Contains(x, y float64) bool {
	return b.Left <= x && x <= b.Right && b.Bottom <= y && y <= b.Top
}
