// Package compression provides the record-payload compressors a
// logstore.Log applies before a record hits the data log, and
// decompresses after a ReadAt. The choice of compressor is fixed for
// the lifetime of a store (picked once from config.DagConfig at Open
// time, see cmd/segdag/cmd/compress.go) rather than detected
// per-record, so every record in a given store's data log was
// compressed the same way.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Type identifies which algorithm compressed a store's records. It is
// carried in config.DagConfig.CompressionType (as a string) rather
// than in the on-disk record framing itself: the record layout is a
// bare length prefix plus payload with no per-record tag, so a store
// must always be reopened with the same compressor it was written
// with.
type Type uint8

const (
	// TypeGzip compresses records with gzip.
	TypeGzip Type = 0
	// TypeZstd compresses records with zstd.
	TypeZstd Type = 1
	// TypeNone stores records uncompressed.
	TypeNone Type = 255
)

// Level is a speed/ratio tradeoff, independent of Type.
type Level int

const (
	// LevelFastest prioritizes speed over compression ratio.
	LevelFastest Level = 1
	// LevelDefault balances speed and compression ratio.
	LevelDefault Level = 3
	// LevelBest prioritizes compression ratio over speed.
	LevelBest Level = 9
)

// Compressor compresses and decompresses record payloads for a
// logstore.Log. Compress/Decompress round-trip arbitrary record
// bytes; the logstore package never inspects the compressed form.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() Type
	Name() string
}

// GzipCompressor implements Compressor using gzip.
type GzipCompressor struct {
	level int
}

// NewGzipCompressor creates a new gzip compressor.
func NewGzipCompressor(level Level) *GzipCompressor {
	gzipLevel := gzip.DefaultCompression
	switch level {
	case LevelFastest:
		gzipLevel = gzip.BestSpeed
	case LevelBest:
		gzipLevel = gzip.BestCompression
	default:
		gzipLevel = gzip.DefaultCompression
	}
	return &GzipCompressor{level: gzipLevel}
}

// Compress compresses data using gzip.
func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("write gzip record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress decompresses a gzip record.
func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// Type returns TypeGzip.
func (c *GzipCompressor) Type() Type { return TypeGzip }

// Name returns "gzip".
func (c *GzipCompressor) Name() string { return "gzip" }

// ZstdCompressor implements Compressor using zstd. A single encoder
// and decoder are reused across every record a store writes or reads,
// since segment and idmap records are small and short-lived relative
// to the cost of spinning up a fresh zstd session per call.
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	level   zstd.EncoderLevel
}

// NewZstdCompressor creates a new zstd compressor.
func NewZstdCompressor(level Level) (*ZstdCompressor, error) {
	zstdLevel := zstd.SpeedDefault
	switch level {
	case LevelFastest:
		zstdLevel = zstd.SpeedFastest
	case LevelBest:
		zstdLevel = zstd.SpeedBestCompression
	default:
		zstdLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &ZstdCompressor{encoder: encoder, decoder: decoder, level: zstdLevel}, nil
}

// Compress compresses a record using zstd.
func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress decompresses a zstd record.
func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	return c.decoder.DecodeAll(data, nil)
}

// Type returns TypeZstd.
func (c *ZstdCompressor) Type() Type { return TypeZstd }

// Name returns "zstd".
func (c *ZstdCompressor) Name() string { return "zstd" }

// Close releases the encoder/decoder's background resources. A
// logstore.Log calls this from its own Close so a store opened with
// zstd never leaks the encoder goroutine past the store's lifetime.
func (c *ZstdCompressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}

// NoOpCompressor stores records as-is. It is used when
// dag.compression_type is "" or "none" (the configured default is
// "zstd"), and logstore.Open falls back to it when Options.Compressor
// is nil.
type NoOpCompressor struct{}

// NewNoOpCompressor creates a new no-op compressor.
func NewNoOpCompressor() *NoOpCompressor {
	return &NoOpCompressor{}
}

// Compress returns the data unchanged.
func (c *NoOpCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

// Decompress returns the data unchanged.
func (c *NoOpCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// Type returns TypeNone.
func (c *NoOpCompressor) Type() Type { return TypeNone }

// Name returns "none".
func (c *NoOpCompressor) Name() string { return "none" }

// New builds the Compressor named by cfg.CompressionType (see
// cmd/segdag/cmd/compress.go), erroring on any type it does not
// recognize rather than silently falling back to NoOp.
func New(t Type, level Level) (Compressor, error) {
	switch t {
	case TypeZstd:
		return NewZstdCompressor(level)
	case TypeGzip:
		return NewGzipCompressor(level), nil
	case TypeNone:
		return NewNoOpCompressor(), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", t)
	}
}

// Closeable is implemented by compressors holding resources that must
// be released when a logstore.Log closes.
type Closeable interface {
	Close()
}

// Close closes c if it implements Closeable; otherwise it is a no-op.
// logstore.Log.Close calls this unconditionally on its compressor.
func Close(c Compressor) {
	if closer, ok := c.(Closeable); ok {
		closer.Close()
	}
}
