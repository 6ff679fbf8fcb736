package backup

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionManager_NewCompressionManager(t *testing.T) {
	cm := NewCompressionManager()

	assert.NotNil(t, cm)
	assert.Equal(t, []CompressionType{CompressionTypeGzip, CompressionTypeLZ4, CompressionTypeZstd}, cm.GetSupportedAlgorithms())
}

func TestCompressionManager_RoundTrip(t *testing.T) {
	cm := NewCompressionManager()

	random := make([]byte, 8*1024)
	_, err := rand.Read(random)
	require.NoError(t, err)

	inputs := map[string][]byte{
		"empty":      {},
		"repetitive": []byte(strings.Repeat("CREATE TABLE t (id INTEGER); ", 2000)),
		"random":     random,
	}

	tests := []struct {
		algorithm CompressionType
		levels    []int
	}{
		{CompressionTypeNone, []int{0}},
		{CompressionTypeGzip, []int{0, 1, 6, 9, 42}},
		{CompressionTypeZstd, []int{0, 1, 3, 19, 99}},
		{CompressionTypeLZ4, []int{0, 1, 9, 12}},
	}

	for _, tt := range tests {
		for _, level := range tt.levels {
			for name, input := range inputs {
				t.Run(string(tt.algorithm)+"/"+name, func(t *testing.T) {
					var compressed bytes.Buffer
					n, err := cm.Compress(&compressed, bytes.NewReader(input), tt.algorithm, level)
					require.NoError(t, err)
					assert.Equal(t, int64(len(input)), n)

					var out bytes.Buffer
					n, err = cm.Decompress(&out, &compressed, tt.algorithm)
					require.NoError(t, err)
					assert.Equal(t, int64(len(input)), n)
					assert.Equal(t, input, out.Bytes())
				})
			}
		}
	}
}

func TestCompressionManager_CompressesRepetitiveData(t *testing.T) {
	cm := NewCompressionManager()
	input := []byte(strings.Repeat("abcdefgh", 16*1024))

	for _, algorithm := range cm.GetSupportedAlgorithms() {
		t.Run(string(algorithm), func(t *testing.T) {
			var compressed bytes.Buffer
			_, err := cm.Compress(&compressed, bytes.NewReader(input), algorithm, 0)
			require.NoError(t, err)
			assert.Less(t, compressed.Len(), len(input)/10)
		})
	}
}

func TestCompressionManager_StandardFormats(t *testing.T) {
	cm := NewCompressionManager()
	magic := map[CompressionType][]byte{
		CompressionTypeGzip: {0x1f, 0x8b},
		CompressionTypeZstd: {0x28, 0xb5, 0x2f, 0xfd},
		CompressionTypeLZ4:  {0x04, 0x22, 0x4d, 0x18},
	}

	for algorithm, prefix := range magic {
		t.Run(string(algorithm), func(t *testing.T) {
			var compressed bytes.Buffer
			_, err := cm.Compress(&compressed, strings.NewReader("payload"), algorithm, 0)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(compressed.Bytes(), prefix), "unexpected header % x", compressed.Bytes()[:4])
		})
	}
}

func TestCompressionManager_UnsupportedAlgorithm(t *testing.T) {
	cm := NewCompressionManager()

	_, err := cm.Compress(&bytes.Buffer{}, strings.NewReader("x"), CompressionType("BROTLI"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported compression algorithm")
	assert.True(t, IsKind(err, BackupErrorTypeCompression))

	_, err = cm.Decompress(&bytes.Buffer{}, strings.NewReader("x"), CompressionType("BROTLI"))
	assert.Error(t, err)
}

func TestCompressionManager_CorruptInput(t *testing.T) {
	cm := NewCompressionManager()

	for _, algorithm := range cm.GetSupportedAlgorithms() {
		t.Run(string(algorithm), func(t *testing.T) {
			var out bytes.Buffer
			_, err := cm.Decompress(&out, strings.NewReader("definitely not compressed data"), algorithm)
			require.Error(t, err)
			assert.True(t, IsKind(err, BackupErrorTypeCompression), "got %v", err)
		})
	}
}

func TestCompressorLevels(t *testing.T) {
	tests := []struct {
		compressor Compressor
		min, max   int
	}{
		{&GzipCompressor{}, 1, 9},
		{&ZstdCompressor{}, 1, 22},
		{&LZ4Compressor{}, 0, 9},
	}

	for _, tt := range tests {
		t.Run(string(tt.compressor.GetAlgorithm()), func(t *testing.T) {
			assert.Equal(t, tt.min, tt.compressor.GetMinLevel())
			assert.Equal(t, tt.max, tt.compressor.GetMaxLevel())
		})
	}
}

func TestGetCompressor_UnknownListsSupported(t *testing.T) {
	cm := NewCompressionManager()

	_, err := cm.GetCompressor(CompressionType("BROTLI"))
	require.Error(t, err)
	assert.True(t, IsKind(err, BackupErrorTypeCompression))
	assert.Contains(t, err.Error(), "supported: [GZIP LZ4 ZSTD]")
}
