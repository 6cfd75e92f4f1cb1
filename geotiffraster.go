package elevation

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"github.com/klauspost/compress/zlib"
	"github.com/maypok86/otter/v2"
	"golang.org/x/image/tiff/lzw"
)

const defaultBlockCacheSize = 16 << 20 // 16MB.

const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946

	predictorNone          = 1
	predictorHorizontal    = 2
	predictorFloatingPoint = 3

	sampleFormatUint          = 1
	sampleFormatInt           = 2
	sampleFormatFloat         = 3
	sampleFormatComplexInt    = 5
	sampleFormatComplexFloat  = 6
	planarConfigurationPlanar = 2
)

var errShortRead = errors.New("short read")

// A blockCoord is the coordinate of a tile or strip within a GeoTIFF.
type blockCoord struct {
	C int // Column.
	R int // Row.
}

// A GeoTIFFRaster is an open single-image GeoTIFF file.
type GeoTIFFRaster struct {
	file                   readerAtCloser
	byteOrder              binary.ByteOrder
	tiled                  bool
	imageWidth             int
	imageLength            int
	blockWidth             int
	blockLength            int
	blocksAcross           int
	blocksDown             int
	blockOffsets           []uint64
	blockByteCounts        []uint64
	smallestBlockByteCount uint64
	samplesPerPixel        int
	bitsPerSample          int
	sampleFormat           int
	compression            int
	predictor              int
	blockCacheSizeBytes    int
	blockSamplesCache      *otter.Cache[blockCoord, []float64]
	emptyBlockBytes        atomic.Pointer[[]byte]
	fileCache              *FileCache
	geoTransform           Affine
	hasGeoTransform        bool
	projection             string
	noData                 float64
	hasNoData              bool
}

// A GeoTIFFRasterOption sets an option on a GeoTIFFRaster.
type GeoTIFFRasterOption func(*GeoTIFFRaster)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth             uint32    `tiff:"field,tag=256"`
	ImageLength            uint32    `tiff:"field,tag=257"`
	BitsPerSample          []uint16  `tiff:"field,tag=258"`
	Compression            uint16    `tiff:"field,tag=259"`
	StripOffsets           []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel        uint16    `tiff:"field,tag=277"`
	RowsPerStrip           uint32    `tiff:"field,tag=278"`
	StripByteCounts        []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration    uint16    `tiff:"field,tag=284"`
	Predictor              uint16    `tiff:"field,tag=317"`
	TileWidth              uint32    `tiff:"field,tag=322"`
	TileLength             uint32    `tiff:"field,tag=323"`
	TileOffsets            []uint64  `tiff:"field,tag=324"`
	TileByteCounts         []uint64  `tiff:"field,tag=325"`
	SampleFormat           []uint16  `tiff:"field,tag=339"`
	ModelPixelScaleTag     []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag       []float64 `tiff:"field,tag=33922"`
	ModelTransformationTag []float64 `tiff:"field,tag=34264"`
	GeoKeyDirectoryTag     []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag     []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag      string    `tiff:"field,tag=34737"`
	GDALNoData             string    `tiff:"field,tag=42113"`
}

// WithBlockCacheSize sets the maximum size in bytes of decoded blocks cached
// by a GeoTIFFRaster.
func WithBlockCacheSize(blockCacheSize int) GeoTIFFRasterOption {
	return func(r *GeoTIFFRaster) {
		r.blockCacheSizeBytes = blockCacheSize
	}
}

// WithGeoTIFFFileCache sets the FileCache used to access the file. If
// fileCache is nil then the GeoTIFFRaster keeps its own file open.
func WithGeoTIFFFileCache(fileCache *FileCache) GeoTIFFRasterOption {
	return func(r *GeoTIFFRaster) {
		r.fileCache = fileCache
	}
}

// OpenGeoTIFFRaster opens the GeoTIFF in filename.
func OpenGeoTIFFRaster(filename string, options ...GeoTIFFRasterOption) (*GeoTIFFRaster, error) {
	r := &GeoTIFFRaster{
		blockCacheSizeBytes: defaultBlockCacheSize,
	}
	for _, option := range options {
		option(r)
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = file.Close()
		}
	}()

	if r.byteOrder, err = readByteOrder(file); err != nil {
		return nil, err
	}

	tiffTIFF, err := tiff.Parse(file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}

	// Only the first IFD is used; further IFDs are overviews or masks.
	ifds := tiffTIFF.IFDs()
	if len(ifds) == 0 {
		return nil, errors.New("no IFDs")
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(ifds[0], &ifd); err != nil {
		return nil, err
	}

	if err := r.setLayout(&ifd); err != nil {
		return nil, err
	}
	r.setGeoreferencing(&ifd)
	if noData := strings.Trim(ifd.GDALNoData, " \x00"); noData != "" {
		if r.noData, err = strconv.ParseFloat(noData, 64); err != nil {
			return nil, fmt.Errorf("GDAL_NODATA: %w", err)
		}
		r.hasNoData = true
	}

	blockCacheCount := max(r.blockCacheSizeBytes/(8*r.blockWidth*r.blockLength), 1)
	r.blockSamplesCache, err = otter.New(&otter.Options[blockCoord, []float64]{
		MaximumSize: blockCacheCount,
	})
	if err != nil {
		return nil, err
	}

	if r.file, err = rasterFile(file, filename, r.fileCache); err != nil {
		return nil, err
	}

	ok = true
	return r, nil
}

// setLayout sets r's image structure from ifd.
func (r *GeoTIFFRaster) setLayout(ifd *geoTIFFIFD) error {
	r.imageWidth = int(ifd.ImageWidth)
	r.imageLength = int(ifd.ImageLength)
	if r.imageWidth == 0 || r.imageLength == 0 {
		return errors.New("empty image")
	}

	r.samplesPerPixel = max(int(ifd.SamplesPerPixel), 1)
	if len(ifd.BitsPerSample) > 0 {
		r.bitsPerSample = int(ifd.BitsPerSample[0])
	} else {
		r.bitsPerSample = 1
	}
	r.sampleFormat = sampleFormatUint
	if len(ifd.SampleFormat) > 0 {
		r.sampleFormat = int(ifd.SampleFormat[0])
	}
	r.compression = compressionNone
	if ifd.Compression != 0 {
		r.compression = int(ifd.Compression)
	}
	r.predictor = predictorNone
	if ifd.Predictor != 0 {
		r.predictor = int(ifd.Predictor)
	}

	switch {
	case len(ifd.TileOffsets) > 0:
		r.tiled = true
		r.blockWidth = int(ifd.TileWidth)
		r.blockLength = int(ifd.TileLength)
		r.blockOffsets = ifd.TileOffsets
		r.blockByteCounts = ifd.TileByteCounts
	case len(ifd.StripOffsets) > 0:
		r.blockWidth = r.imageWidth
		r.blockLength = r.imageLength
		if ifd.RowsPerStrip != 0 {
			r.blockLength = min(int(ifd.RowsPerStrip), r.imageLength)
		}
		r.blockOffsets = ifd.StripOffsets
		r.blockByteCounts = ifd.StripByteCounts
	default:
		return errors.ErrUnsupported
	}
	if r.blockWidth == 0 || r.blockLength == 0 {
		return errors.New("invalid block size")
	}
	r.blocksAcross = (r.imageWidth + r.blockWidth - 1) / r.blockWidth
	r.blocksDown = (r.imageLength + r.blockLength - 1) / r.blockLength
	blocksPerImage := r.blocksAcross * r.blocksDown
	if ifd.PlanarConfiguration == planarConfigurationPlanar {
		blocksPerImage *= r.samplesPerPixel
	}
	if len(r.blockByteCounts) != blocksPerImage || len(r.blockOffsets) != blocksPerImage {
		return errors.New("incorrect number of block byte counts or offsets")
	}
	r.smallestBlockByteCount = math.MaxUint64
	for _, blockByteCount := range r.blockByteCounts {
		if blockByteCount != 0 {
			r.smallestBlockByteCount = min(r.smallestBlockByteCount, blockByteCount)
		}
	}

	if r.samplesPerPixel != 1 || r.IsComplex() {
		// Reported through BandCount and IsComplex, never decoded.
		return nil
	}
	switch r.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionAdobeDeflate:
	default:
		return errors.ErrUnsupported
	}
	switch r.predictor {
	case predictorNone:
	case predictorHorizontal:
		if r.sampleFormat == sampleFormatFloat {
			return errors.ErrUnsupported
		}
	case predictorFloatingPoint:
		if r.sampleFormat != sampleFormatFloat {
			return errors.ErrUnsupported
		}
	default:
		return errors.ErrUnsupported
	}
	switch {
	case r.sampleFormat == sampleFormatUint && (r.bitsPerSample == 8 || r.bitsPerSample == 16 || r.bitsPerSample == 32):
	case r.sampleFormat == sampleFormatInt && (r.bitsPerSample == 8 || r.bitsPerSample == 16 || r.bitsPerSample == 32):
	case r.sampleFormat == sampleFormatFloat && (r.bitsPerSample == 32 || r.bitsPerSample == 64):
	default:
		return errors.ErrUnsupported
	}
	return nil
}

// setGeoreferencing sets r's geotransform and projection from ifd.
func (r *GeoTIFFRaster) setGeoreferencing(ifd *geoTIFFIFD) {
	switch {
	case len(ifd.ModelTransformationTag) == 16:
		m := ifd.ModelTransformationTag
		r.geoTransform = Affine{m[3], m[0], m[1], m[7], m[4], m[5]}
		r.hasGeoTransform = true
	case len(ifd.ModelPixelScaleTag) >= 2 && len(ifd.ModelTiepointTag) >= 6:
		scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
		i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
		x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
		r.geoTransform = Affine{x - i*scaleX, scaleX, 0, y + j*scaleY, 0, -scaleY}
		r.hasGeoTransform = true
	}

	if len(ifd.GeoKeyDirectoryTag) == 0 {
		return
	}
	geoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
	if err != nil {
		return
	}
	r.projection = geoKeys.SRS()
	if r.hasGeoTransform && geoKeys.PixelIsPoint() {
		gt := &r.geoTransform
		gt[0] -= 0.5*gt[1] + 0.5*gt[2]
		gt[3] -= 0.5*gt[4] + 0.5*gt[5]
	}
}

func (r *GeoTIFFRaster) Size() (int, int) {
	return r.imageWidth, r.imageLength
}

func (r *GeoTIFFRaster) BandCount() int {
	return r.samplesPerPixel
}

func (r *GeoTIFFRaster) IsComplex() bool {
	return r.sampleFormat == sampleFormatComplexInt || r.sampleFormat == sampleFormatComplexFloat
}

func (r *GeoTIFFRaster) NoData() (float64, bool) {
	return r.noData, r.hasNoData
}

func (r *GeoTIFFRaster) GeoTransform() (Affine, bool) {
	return r.geoTransform, r.hasGeoTransform
}

func (r *GeoTIFFRaster) Projection() string {
	return r.projection
}

func (r *GeoTIFFRaster) Close() error {
	return r.file.Close()
}

// Sample returns the sample at pixel, line. Samples in empty or sparse blocks
// are NaN.
func (r *GeoTIFFRaster) Sample(ctx context.Context, pixel, line int) (float64, error) {
	if pixel < 0 || r.imageWidth <= pixel || line < 0 || r.imageLength <= line {
		return math.NaN(), nil
	}
	if r.samplesPerPixel != 1 || r.IsComplex() {
		return 0, errors.ErrUnsupported
	}
	coord := blockCoord{
		C: pixel / r.blockWidth,
		R: line / r.blockLength,
	}
	switch blockSamples, err := r.getBlockSamplesCached(ctx, coord); {
	case errors.Is(err, otter.ErrNotFound):
		return math.NaN(), nil
	case err != nil:
		return 0, err
	default:
		return blockSamples[pixel%r.blockWidth+(line%r.blockLength)*r.blockWidth], nil
	}
}

// blockLines returns the number of lines stored in the block at coord. The
// last strip of a stripped image may be shorter than the others.
func (r *GeoTIFFRaster) blockLines(coord blockCoord) int {
	if !r.tiled {
		return min(r.blockLength, r.imageLength-coord.R*r.blockLength)
	}
	return r.blockLength
}

// getCompressedBlockData returns the compressed data for the block at coord.
// If the block is known to be empty, it returns the error otter.ErrNotFound.
func (r *GeoTIFFRaster) getCompressedBlockData(coord blockCoord) ([]byte, error) {
	blockIndex := coord.C + r.blocksAcross*coord.R
	blockByteCount := r.blockByteCounts[blockIndex]
	blockOffset := r.blockOffsets[blockIndex]
	if blockByteCount == 0 || blockOffset == 0 {
		return nil, otter.ErrNotFound
	}
	compressedData := make([]byte, blockByteCount)
	n, err := r.file.ReadAt(compressedData, int64(blockOffset))
	if errors.Is(err, io.EOF) && n == len(compressedData) {
		err = nil
	}
	emptyBlockBytes := r.emptyBlockBytes.Load()
	switch {
	case err != nil:
		return nil, err
	case n != int(blockByteCount):
		return nil, errShortRead
	case emptyBlockBytes != nil && bytes.Equal(compressedData, *emptyBlockBytes):
		return nil, otter.ErrNotFound
	default:
		return compressedData, nil
	}
}

// decompressBlockData decompresses compressedData into size bytes.
func (r *GeoTIFFRaster) decompressBlockData(compressedData []byte, size int) ([]byte, error) {
	var rd io.Reader
	switch r.compression {
	case compressionNone:
		if len(compressedData) < size {
			return nil, errShortRead
		}
		// Predictors decode in place, so compressedData must not be aliased.
		return bytes.Clone(compressedData[:size]), nil
	case compressionLZW:
		lzwReader := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		defer lzwReader.Close()
		rd = lzwReader
	case compressionDeflate, compressionAdobeDeflate:
		zlibReader, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer zlibReader.Close()
		rd = zlibReader
	default:
		return nil, errors.ErrUnsupported
	}
	blockData := make([]byte, size)
	if _, err := io.ReadFull(rd, blockData); err != nil {
		return nil, err
	}
	return blockData, nil
}

// decodeBlockData undoes any predictor and decodes blockData into samples.
func (r *GeoTIFFRaster) decodeBlockData(blockData []byte, lines int) []float64 {
	bytesPerSample := r.bitsPerSample / 8
	rowBytes := r.blockWidth * bytesPerSample
	byteOrder := r.byteOrder
	switch r.predictor {
	case predictorHorizontal:
		undoHorizontalDifferencing(blockData, rowBytes, bytesPerSample, byteOrder)
	case predictorFloatingPoint:
		blockData = undoFloatingPointPredictor(blockData, rowBytes, bytesPerSample)
		byteOrder = binary.BigEndian
	}

	blockSamples := make([]float64, r.blockWidth*r.blockLength)
	for i := range r.blockWidth * lines {
		b := blockData[i*bytesPerSample : (i+1)*bytesPerSample]
		switch r.sampleFormat<<8 | r.bitsPerSample {
		case sampleFormatUint<<8 | 8:
			blockSamples[i] = float64(b[0])
		case sampleFormatUint<<8 | 16:
			blockSamples[i] = float64(byteOrder.Uint16(b))
		case sampleFormatUint<<8 | 32:
			blockSamples[i] = float64(byteOrder.Uint32(b))
		case sampleFormatInt<<8 | 8:
			blockSamples[i] = float64(int8(b[0]))
		case sampleFormatInt<<8 | 16:
			blockSamples[i] = float64(int16(byteOrder.Uint16(b)))
		case sampleFormatInt<<8 | 32:
			blockSamples[i] = float64(int32(byteOrder.Uint32(b)))
		case sampleFormatFloat<<8 | 32:
			blockSamples[i] = float64(math.Float32frombits(byteOrder.Uint32(b)))
		case sampleFormatFloat<<8 | 64:
			blockSamples[i] = math.Float64frombits(byteOrder.Uint64(b))
		}
	}
	for i := r.blockWidth * lines; i < len(blockSamples); i++ {
		blockSamples[i] = math.NaN()
	}
	return blockSamples
}

// getBlockSamples returns the decoded samples of the block at coord.
func (r *GeoTIFFRaster) getBlockSamples(ctx context.Context, coord blockCoord) ([]float64, error) {
	blockCacheMisses.Inc()

	// Retrieve the compressed block data.
	compressedBlockData, err := r.getCompressedBlockData(coord)
	if err != nil {
		return nil, err
	}

	// Decompress the block data and decode it.
	lines := r.blockLines(coord)
	blockData, err := r.decompressBlockData(compressedBlockData, lines*r.blockWidth*r.bitsPerSample/8)
	if err != nil {
		return nil, err
	}
	blockSamples := r.decodeBlockData(blockData, lines)

	// If we do not know what an empty block looks like compressed, check to
	// see if this is an empty block, and, if so, use its bytes to detect empty
	// blocks before they are decompressed. We assume that the empty block is
	// the smallest block.
	if r.hasNoData && r.emptyBlockBytes.Load() == nil && len(compressedBlockData) == int(r.smallestBlockByteCount) {
		isEmptyBlock := true
		for _, sample := range blockSamples[:lines*r.blockWidth] {
			if sample != r.noData && !math.IsNaN(sample) {
				isEmptyBlock = false
				break
			}
		}
		if isEmptyBlock {
			r.emptyBlockBytes.Store(&compressedBlockData)
			return nil, otter.ErrNotFound
		}
	}

	return blockSamples, nil
}

// getBlockSamplesCached returns the samples of the block at coord using r's
// cache.
func (r *GeoTIFFRaster) getBlockSamplesCached(ctx context.Context, coord blockCoord) ([]float64, error) {
	loaded := false
	blockSamples, err := r.blockSamplesCache.Get(ctx, coord, otter.LoaderFunc[blockCoord, []float64](func(ctx context.Context, coord blockCoord) ([]float64, error) {
		loaded = true
		return r.getBlockSamples(ctx, coord)
	}))
	if !loaded {
		blockCacheHits.Inc()
	}
	return blockSamples, err
}

// readByteOrder returns the byte order declared in the TIFF header.
func readByteOrder(r io.ReaderAt) (binary.ByteOrder, error) {
	header := make([]byte, 2)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, err
	}
	switch string(header) {
	case "II":
		return binary.LittleEndian, nil
	case "MM":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("%q: invalid TIFF byte order", header)
	}
}

// undoHorizontalDifferencing reverses TIFF predictor 2 in place.
func undoHorizontalDifferencing(data []byte, rowBytes, bytesPerSample int, byteOrder binary.ByteOrder) {
	for start := 0; start+rowBytes <= len(data); start += rowBytes {
		row := data[start : start+rowBytes]
		switch bytesPerSample {
		case 1:
			for i := 1; i < len(row); i++ {
				row[i] += row[i-1]
			}
		case 2:
			for i := 2; i+2 <= len(row); i += 2 {
				byteOrder.PutUint16(row[i:], byteOrder.Uint16(row[i:])+byteOrder.Uint16(row[i-2:]))
			}
		case 4:
			for i := 4; i+4 <= len(row); i += 4 {
				byteOrder.PutUint32(row[i:], byteOrder.Uint32(row[i:])+byteOrder.Uint32(row[i-4:]))
			}
		}
	}
}

// undoFloatingPointPredictor reverses TIFF predictor 3. The result holds
// big-endian samples.
func undoFloatingPointPredictor(data []byte, rowBytes, bytesPerSample int) []byte {
	result := make([]byte, len(data))
	width := rowBytes / bytesPerSample
	for start := 0; start+rowBytes <= len(data); start += rowBytes {
		row := data[start : start+rowBytes]
		for i := 1; i < len(row); i++ {
			row[i] += row[i-1]
		}
		out := result[start : start+rowBytes]
		for i := range width {
			for b := range bytesPerSample {
				out[i*bytesPerSample+b] = row[b*width+i]
			}
		}
	}
	return result
}
