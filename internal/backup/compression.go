package backup

import (
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"sqlite-backup/internal/snapshot"
)

// CompressionType is re-exported so callers of this package rarely need to
// import the snapshot package directly.
type CompressionType = snapshot.CompressionType

const (
	CompressionTypeNone = snapshot.CompressionTypeNone
	CompressionTypeGzip = snapshot.CompressionTypeGzip
	CompressionTypeZstd = snapshot.CompressionTypeZstd
	CompressionTypeLZ4  = snapshot.CompressionTypeLZ4
)

// Compressor wraps a byte stream in one compression format
type Compressor interface {
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	GetAlgorithm() CompressionType
	GetDefaultLevel() int
	GetMaxLevel() int
	GetMinLevel() int
}

// CompressionManager manages compression operations
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a new compression manager
func NewCompressionManager() *CompressionManager {
	cm := &CompressionManager{
		compressors: make(map[CompressionType]Compressor),
	}

	cm.compressors[CompressionTypeGzip] = &GzipCompressor{}
	cm.compressors[CompressionTypeZstd] = &ZstdCompressor{}
	cm.compressors[CompressionTypeLZ4] = &LZ4Compressor{}

	return cm
}

// NewWriter returns a writer that compresses into w. Closing it flushes the
// codec but does not close w. Out-of-range levels use the codec default;
// level 0 always means default.
func (cm *CompressionManager) NewWriter(w io.Writer, algorithm CompressionType, level int) (io.WriteCloser, error) {
	if algorithm == CompressionTypeNone {
		return nopWriteCloser{w}, nil
	}

	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return nil, err
	}

	if level < compressor.GetMinLevel() || level > compressor.GetMaxLevel() {
		level = compressor.GetDefaultLevel()
	}

	writer, err := compressor.NewWriter(w, level)
	if err != nil {
		return nil, NewCompressionError(fmt.Sprintf("failed to create %s writer", algorithm), err)
	}
	return writer, nil
}

// NewReader returns a reader that decompresses r. Closing it does not close r.
func (cm *CompressionManager) NewReader(r io.Reader, algorithm CompressionType) (io.ReadCloser, error) {
	if algorithm == CompressionTypeNone {
		return io.NopCloser(r), nil
	}

	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return nil, err
	}

	reader, err := compressor.NewReader(r)
	if err != nil {
		return nil, NewCompressionError(fmt.Sprintf("failed to create %s reader", algorithm), err)
	}
	return reader, nil
}

// Compress streams src through the codec into dst and returns the number of
// uncompressed bytes read.
func (cm *CompressionManager) Compress(dst io.Writer, src io.Reader, algorithm CompressionType, level int) (int64, error) {
	writer, err := cm.NewWriter(dst, algorithm, level)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(writer, src)
	if err != nil {
		writer.Close()
		return n, NewCompressionError(fmt.Sprintf("failed to write %s stream", algorithm), err)
	}
	if err := writer.Close(); err != nil {
		return n, NewCompressionError(fmt.Sprintf("failed to finish %s stream", algorithm), err)
	}
	return n, nil
}

// Decompress streams a compressed src into dst and returns the number of
// decompressed bytes written.
func (cm *CompressionManager) Decompress(dst io.Writer, src io.Reader, algorithm CompressionType) (int64, error) {
	reader, err := cm.NewReader(src, algorithm)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	n, err := io.Copy(dst, reader)
	if err != nil {
		return n, NewCompressionError(fmt.Sprintf("failed to decompress %s stream", algorithm), err)
	}
	return n, nil
}

// GetCompressor returns a compressor for the specified algorithm
func (cm *CompressionManager) GetCompressor(algorithm CompressionType) (Compressor, error) {
	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm %s, supported: %v",
			algorithm, cm.GetSupportedAlgorithms()), nil)
	}
	return compressor, nil
}

// GetSupportedAlgorithms returns the registered algorithms in name order
func (cm *CompressionManager) GetSupportedAlgorithms() []CompressionType {
	algorithms := make([]CompressionType, 0, len(cm.compressors))
	for algorithm := range cm.compressors {
		algorithms = append(algorithms, algorithm)
	}
	sort.Slice(algorithms, func(i, j int) bool { return algorithms[i] < algorithms[j] })
	return algorithms
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// GzipCompressor implements gzip compression
type GzipCompressor struct{}

func (gc *GzipCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, level)
}

func (gc *GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (gc *GzipCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeGzip
}

func (gc *GzipCompressor) GetDefaultLevel() int {
	return gzip.DefaultCompression
}

func (gc *GzipCompressor) GetMaxLevel() int {
	return gzip.BestCompression
}

func (gc *GzipCompressor) GetMinLevel() int {
	return gzip.BestSpeed
}

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct{}

func (zc *ZstdCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
}

func (zc *ZstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

func (zc *ZstdCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeZstd
}

func (zc *ZstdCompressor) GetDefaultLevel() int {
	return 3
}

func (zc *ZstdCompressor) GetMaxLevel() int {
	return 22
}

func (zc *ZstdCompressor) GetMinLevel() int {
	return 1
}

// LZ4Compressor implements LZ4 frame compression
type LZ4Compressor struct{}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func (lc *LZ4Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)

	// level 0 keeps the library's fast mode
	if level > 0 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4Levels[level-1])); err != nil {
			return nil, err
		}
	}
	// an empty database must still produce a valid frame
	if _, err := writer.Write(nil); err != nil {
		return nil, err
	}
	return writer, nil
}

func (lc *LZ4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lc *LZ4Compressor) GetAlgorithm() CompressionType {
	return CompressionTypeLZ4
}

func (lc *LZ4Compressor) GetDefaultLevel() int {
	return 0
}

func (lc *LZ4Compressor) GetMaxLevel() int {
	return len(lz4Levels)
}

func (lc *LZ4Compressor) GetMinLevel() int {
	return 0
}
