package config

import (
	"context"
	"log/slog"
)

const masked = "****"

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == TransportSSE {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: corpus.path", "value", s.Corpus.Path)
	logger.InfoContext(ctx, "Config: index.dir", "value", s.Index.Dir)
	logger.InfoContext(ctx, "Config: index.rebuild", "value", s.Index.Rebuild)
	if len(s.Index.RebuildFacets) > 0 {
		logger.InfoContext(ctx, "Config: index.rebuild_facets", "value", s.Index.RebuildFacets)
	}
	logger.InfoContext(ctx, "Config: model.dir", "value", s.Model.Dir)
	logger.InfoContext(ctx, "Config: model.file", "value", s.Model.File)
	logger.InfoContext(ctx, "Config: model.tokenizer_file", "value", s.Model.TokenizerFile)
	if s.Model.RuntimeLibrary != "" {
		logger.InfoContext(ctx, "Config: model.runtime_library", "value", s.Model.RuntimeLibrary)
	}
	logger.InfoContext(ctx, "Config: search.default_top_k", "value", s.Search.DefaultTopK)

	logger.InfoContext(ctx, "Config: explain.enabled", "value", s.Explain.Enabled())
	if s.Explain.Enabled() {
		logger.InfoContext(ctx, "Config: explain.api_key", "value", masked)
		logger.InfoContext(ctx, "Config: explain.base_url", "value", s.Explain.BaseURL)
		logger.InfoContext(ctx, "Config: explain.model", "value", s.Explain.Model)
	}
}

// ExplainSettingsLogValue returns a slog.Value for ExplainSettings with masked data
func ExplainSettingsLogValue(s ExplainSettings) slog.Value {
	key := ""
	if s.APIKey != "" {
		key = masked
	}
	return slog.GroupValue(
		slog.String("api_key", key),
		slog.String("base_url", s.BaseURL),
		slog.String("model", s.Model),
		slog.Duration("timeout", s.Timeout),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.String("corpus", s.Corpus.Path),
		slog.String("index_dir", s.Index.Dir),
		slog.String("model_dir", s.Model.Dir),
		slog.Any("explain", ExplainSettingsLogValue(s.Explain)),
	)
}
