package cmd

import (
	"fmt"

	"github.com/segdag/segdag/pkg/compression"
	"github.com/segdag/segdag/pkg/config"
)

// compressorFor builds the compressor named by cfg.CompressionType,
// used to open both the idmap and segment logstores for one dag.
func compressorFor(cfg config.DagConfig) (compression.Compressor, error) {
	level := compression.Level(cfg.CompressionLevel)
	if level == 0 {
		level = compression.LevelDefault
	}
	switch cfg.CompressionType {
	case "", "none":
		return compression.NewNoOpCompressor(), nil
	case "gzip":
		return compression.New(compression.TypeGzip, level)
	case "zstd":
		return compression.New(compression.TypeZstd, level)
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", cfg.CompressionType)
	}
}
