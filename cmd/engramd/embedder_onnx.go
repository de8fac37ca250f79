//go:build onnx

package main

import (
	"log/slog"
	"time"

	"github.com/engram-labs/engram/internal/config"
	"github.com/engram-labs/engram/internal/embedding"
)

// buildEmbedder returns a lazily-initialized ONNX embedder, or the
// hash-based fallback when no model is configured. Lazy construction
// keeps server startup off the critical path of loading the runtime.
func buildEmbedder(cfg *config.Config, logger *slog.Logger) embedding.Embedder {
	if cfg.ONNXModelPath == "" {
		logger.Warn("ONNX_MODEL_PATH not set, using hash-based embedder",
			"dimensions", cfg.EmbeddingDim,
		)
		return embedding.NewMock(cfg.EmbeddingDim)
	}

	onnxCfg := embedding.ONNXConfig{
		ModelPath:         cfg.ONNXModelPath,
		TokenizerPath:     cfg.ONNXTokenizer,
		SharedLibraryPath: cfg.ONNXSharedLib,
		Dimensions:        cfg.EmbeddingDim,
	}
	timeout := time.Duration(cfg.EmbedInitTimeout) * time.Second
	return embedding.NewLazy(cfg.EmbeddingDim, timeout, func() (embedding.Embedder, error) {
		return embedding.NewONNX(onnxCfg)
	})
}
