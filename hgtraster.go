package elevation

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const hgtNoData = -32768

var hgtFilenameRx = regexp.MustCompile(`(?i)\A([NS])(\d{2})([EW])(\d{3})\.hgt(?:\.zip)?\z`)

// An HGTRaster is an SRTM .hgt file. HGT files contain a square grid of
// big-endian int16 samples covering one degree of latitude and longitude,
// with the outermost rows and columns overlapping neighboring files.
type HGTRaster struct {
	file      readerAtCloser
	fileCache *FileCache
	size      int
	lat       int
	lon       int
}

// An HGTRasterOption sets an option on an HGTRaster.
type HGTRasterOption func(*HGTRaster)

// WithHGTFileCache sets the FileCache used to access the file. It is ignored
// for zipped files, which are held in memory.
func WithHGTFileCache(fileCache *FileCache) HGTRasterOption {
	return func(r *HGTRaster) {
		r.fileCache = fileCache
	}
}

// OpenHGTRaster opens the HGT file filename. The location of the file is
// determined by its name, for example N45E006.hgt.
func OpenHGTRaster(filename string, options ...HGTRasterOption) (*HGTRaster, error) {
	r := &HGTRaster{}
	for _, option := range options {
		option(r)
	}

	var err error
	if r.lat, r.lon, err = parseHGTFilename(filepath.Base(filename)); err != nil {
		return nil, err
	}

	var length int64
	if strings.HasSuffix(strings.ToLower(filename), ".zip") {
		data, err := readZippedHGT(filename)
		if err != nil {
			return nil, err
		}
		r.file = nopCloserReaderAt{Reader: bytes.NewReader(data)}
		length = int64(len(data))
	} else {
		file, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		fileInfo, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		length = fileInfo.Size()
		if r.file, err = rasterFile(file, filename, r.fileCache); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	r.size = int(math.Round(math.Sqrt(float64(length / 2))))
	if r.size < 2 || int64(2*r.size*r.size) != length {
		_ = r.file.Close()
		return nil, fmt.Errorf("%s: %d: invalid HGT file length", filename, length)
	}
	return r, nil
}

func (r *HGTRaster) Size() (int, int) {
	return r.size, r.size
}

func (r *HGTRaster) BandCount() int {
	return 1
}

func (r *HGTRaster) IsComplex() bool {
	return false
}

func (r *HGTRaster) NoData() (float64, bool) {
	return hgtNoData, true
}

// GeoTransform returns r's geotransform. HGT samples are located at pixel
// centers on whole multiples of the resolution.
func (r *HGTRaster) GeoTransform() (Affine, bool) {
	res := 1 / float64(r.size-1)
	return Affine{
		float64(r.lon) - res/2, res, 0,
		float64(r.lat+1) + res/2, 0, -res,
	}, true
}

func (r *HGTRaster) Projection() string {
	return "EPSG:4326"
}

func (r *HGTRaster) Sample(ctx context.Context, pixel, line int) (float64, error) {
	if pixel < 0 || r.size <= pixel || line < 0 || r.size <= line {
		return math.NaN(), nil
	}
	var data [2]byte
	n, err := r.file.ReadAt(data[:], 2*(int64(line)*int64(r.size)+int64(pixel)))
	if errors.Is(err, io.EOF) && n == len(data) {
		err = nil
	}
	if err != nil {
		return 0, err
	}
	return float64(int16(binary.BigEndian.Uint16(data[:]))), nil
}

func (r *HGTRaster) Close() error {
	return r.file.Close()
}

// parseHGTFilename returns the latitude and longitude of the south west
// corner of the HGT file name.
func parseHGTFilename(name string) (int, int, error) {
	m := hgtFilenameRx.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, fmt.Errorf("%s: %w: invalid HGT filename", name, errors.ErrUnsupported)
	}
	lat, _ := strconv.Atoi(m[2])
	if strings.EqualFold(m[1], "S") {
		lat = -lat
	}
	lon, _ := strconv.Atoi(m[4])
	if strings.EqualFold(m[3], "W") {
		lon = -lon
	}
	return lat, lon, nil
}

// readZippedHGT returns the contents of the single .hgt file in the zip
// archive filename.
func readZippedHGT(filename string) ([]byte, error) {
	zipReader, err := zip.OpenReader(filename)
	if err != nil {
		return nil, err
	}
	defer zipReader.Close()

	for _, zipFile := range zipReader.File {
		if !strings.HasSuffix(strings.ToLower(zipFile.Name), ".hgt") {
			continue
		}
		rc, err := zipFile.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s: no .hgt file in archive", filename)
}

type nopCloserReaderAt struct {
	*bytes.Reader
}

func (nopCloserReaderAt) Close() error {
	return nil
}
