package elevation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// rasterSuffixes are the filename suffixes recognized when scanning
// directories.
var rasterSuffixes = []string{
	".tif",
	".tiff",
	".hgt",
	".hgt.zip",
}

// A Registry is an ordered collection of Tiles queried as a single surface.
// Tiles added later take priority over tiles added earlier. A Registry is
// immutable once created.
type Registry struct {
	tiles []*Tile // Most recently added first.
}

type registryOptions struct {
	logger      *zap.Logger
	tileOptions []TileOption
}

// A RegistryOption sets an option on a Registry.
type RegistryOption func(*registryOptions)

// WithLogger sets the logger used to report tile loading.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(o *registryOptions) {
		o.logger = logger
	}
}

// WithTileOptions sets the options used to create each Tile.
func WithTileOptions(tileOptions ...TileOption) RegistryOption {
	return func(o *registryOptions) {
		o.tileOptions = append(o.tileOptions, tileOptions...)
	}
}

// NewRegistry loads every raster in paths, in order, for queries in querySRS.
// Each path is either a raster file or a directory containing raster files.
// Files that cannot be loaded are logged and skipped, so the returned Registry
// may be empty. NewRegistry only returns an error if querySRS is invalid.
func NewRegistry(paths []string, querySRS string, options ...RegistryOption) (*Registry, error) {
	o := registryOptions{
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(&o)
	}

	sanitizedSRS, err := SanitizeSRS(querySRS)
	if err != nil {
		return nil, err
	}

	r := &Registry{}
	for _, path := range paths {
		filenames, err := rasterFilenames(path)
		if err != nil {
			o.logger.Error("cannot read path", zap.String("path", path), zap.Error(err))
			continue
		}
		for _, filename := range filenames {
			tile, err := NewTile(filename, sanitizedSRS, o.tileOptions...)
			if err != nil {
				tileLoadFailures.Inc()
				o.logger.Warn("failed to load tile", zap.String("filename", filename), zap.Error(err))
				continue
			}
			bounds := tile.Bounds()
			o.logger.Info("tile loaded",
				zap.String("filename", filename),
				zap.Float64("top", bounds.Top),
				zap.Float64("left", bounds.Left),
				zap.Float64("bottom", bounds.Bottom),
				zap.Float64("right", bounds.Right),
			)
			r.tiles = append(r.tiles, tile)
		}
	}
	slices.Reverse(r.tiles)
	tilesLoaded.Add(float64(len(r.tiles)))
	return r, nil
}

// NewRegistryFromTiles returns a Registry containing tiles, where later tiles
// take priority over earlier ones. The Registry takes ownership of tiles.
func NewRegistryFromTiles(tiles ...*Tile) *Registry {
	r := &Registry{
		tiles: slices.Clone(tiles),
	}
	slices.Reverse(r.tiles)
	tilesLoaded.Add(float64(len(r.tiles)))
	return r
}

// Altitude returns the altitude at (x, y) from the highest priority tile that
// has data there. It returns false if no tile has data at (x, y).
func (r *Registry) Altitude(ctx context.Context, x, y float64) (float64, bool) {
	for _, tile := range r.tiles {
		if altitude, ok := tile.Altitude(ctx, x, y); ok {
			pointQueryHits.Inc()
			return altitude, true
		}
	}
	pointQueryMisses.Inc()
	return 0, false
}

// IsEmpty returns whether r contains no tiles.
func (r *Registry) IsEmpty() bool {
	return len(r.tiles) == 0
}

// Tiles returns r's tiles in priority order.
func (r *Registry) Tiles() []*Tile {
	return slices.Clone(r.tiles)
}

// Close closes all of r's tiles.
func (r *Registry) Close() error {
	var err error
	for _, tile := range r.tiles {
		err = multierr.Append(err, tile.Close())
	}
	tilesLoaded.Sub(float64(len(r.tiles)))
	r.tiles = nil
	return err
}

// rasterFilenames returns path if it is a file, or the raster files directly
// inside path, in lexical order, if it is a directory.
func rasterFilenames(path string) ([]string, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fileInfo.IsDir() {
		return []string{path}, nil
	}
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var filenames []string
	for _, dirEntry := range dirEntries {
		if !dirEntry.Type().IsRegular() && dirEntry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if hasRasterSuffix(dirEntry.Name()) {
			filenames = append(filenames, filepath.Join(path, dirEntry.Name()))
		}
	}
	return filenames, nil
}

func hasRasterSuffix(name string) bool {
	lowerName := strings.ToLower(name)
	for _, suffix := range rasterSuffixes {
		if strings.HasSuffix(lowerName, suffix) {
			return true
		}
	}
	return false
}

// OpenRaster opens filename with the pure Go provider matching its suffix.
func OpenRaster(filename string) (Raster, error) {
	return openRasterWithFileCache(filename, nil, defaultBlockCacheSize)
}

// NewRasterOpener returns a RasterOpener that shares fileCache between the
// rasters it opens and caches up to blockCacheSize bytes of decoded GeoTIFF
// blocks per raster. fileCache may be nil.
func NewRasterOpener(fileCache *FileCache, blockCacheSize int) RasterOpener {
	return func(filename string) (Raster, error) {
		return openRasterWithFileCache(filename, fileCache, blockCacheSize)
	}
}

func openRasterWithFileCache(filename string, fileCache *FileCache, blockCacheSize int) (Raster, error) {
	lowerFilename := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lowerFilename, ".tif"), strings.HasSuffix(lowerFilename, ".tiff"):
		return OpenGeoTIFFRaster(filename,
			WithGeoTIFFFileCache(fileCache),
			WithBlockCacheSize(blockCacheSize),
		)
	case strings.HasSuffix(lowerFilename, ".hgt"), strings.HasSuffix(lowerFilename, ".hgt.zip"):
		return OpenHGTRaster(filename, WithHGTFileCache(fileCache))
	default:
		return nil, fmt.Errorf("%s: %w", filename, errors.ErrUnsupported)
	}
}
