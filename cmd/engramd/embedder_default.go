//go:build !onnx

package main

import (
	"log/slog"

	"github.com/engram-labs/engram/internal/config"
	"github.com/engram-labs/engram/internal/embedding"
)

// buildEmbedder returns the hash-based embedder. Binaries compiled
// without the onnx tag have no native runtime to load a real model.
func buildEmbedder(cfg *config.Config, logger *slog.Logger) embedding.Embedder {
	logger.Warn("compiled without onnx support, using hash-based embedder",
		"dimensions", cfg.EmbeddingDim,
	)
	return embedding.NewMock(cfg.EmbeddingDim)
}
