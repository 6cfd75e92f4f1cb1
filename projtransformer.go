package elevation

import (
	"fmt"
	"math"

	"github.com/twpayne/go-proj/v11"
)

// ProjTransformerFactory creates Transformers using PROJ.
type ProjTransformerFactory struct{}

// A projTransformer transforms coordinates with a single normalized PROJ
// operation, using its forward and inverse directions.
type projTransformer struct {
	pj *proj.PJ
}

// ValidateSRS returns an error if srs is not a coordinate reference system
// known to PROJ.
func (ProjTransformerFactory) ValidateSRS(srs string) error {
	pj, err := proj.New(srs)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidSRS, srs, err)
	}
	if !pj.IsCRS() {
		return fmt.Errorf("%w: %q is not a CRS", ErrInvalidSRS, srs)
	}
	return nil
}

// NewTransformer returns a new Transformer from querySRS to nativeSRS. Both
// directions use longitude/easting as the first axis, whatever the axis order
// defined by the authority.
func (ProjTransformerFactory) NewTransformer(querySRS, nativeSRS string) (Transformer, error) {
	if nativeSRS == "" {
		return nil, fmt.Errorf("%w: raster has no projection", ErrTransform)
	}
	pj, err := proj.NewCRSToCRS(querySRS, nativeSRS, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransform, err)
	}
	normalizedPJ, err := pj.NormalizeForVisualization()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransform, err)
	}
	return &projTransformer{
		pj: normalizedPJ,
	}, nil
}

func (t *projTransformer) Forward(x, y float64) (float64, float64, error) {
	coord, err := t.pj.Forward(proj.NewCoord(x, y, 0, 0))
	if err != nil {
		return 0, 0, err
	}
	return finiteCoord(coord)
}

func (t *projTransformer) Inverse(x, y float64) (float64, float64, error) {
	coord, err := t.pj.Inverse(proj.NewCoord(x, y, 0, 0))
	if err != nil {
		return 0, 0, err
	}
	return finiteCoord(coord)
}

// Close drops the reference to the PROJ object, which is released by the
// garbage collector.
func (t *projTransformer) Close() error {
	t.pj = nil
	return nil
}

func finiteCoord(coord proj.Coord) (float64, float64, error) {
	x, y := coord[0], coord[1]
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, 0, fmt.Errorf("%v: not finite", coord)
	}
	return x, y, nil
}
