package config

import (
	"context"
	"log/slog"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", "****")
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}

	logSearchSettings(ctx, &s.Search, logger)
}

func logSearchSettings(ctx context.Context, s *SearchSettings, logger *slog.Logger) {
	logger.InfoContext(ctx, "Config: search.base_dir", "value", s.BaseDir)
	logger.InfoContext(ctx, "Config: search.user", "value", s.User)
	logger.InfoContext(ctx, "Config: search.projects", "value", s.Projects)
	logger.InfoContext(ctx, "Config: search.indexing_timeout", "value", s.IndexingTimeout)
	logger.InfoContext(ctx, "Config: search.result_cache_size", "value", s.ResultCacheSize)
	logger.InfoContext(ctx, "Config: search.rebuild_on_startup", "value", s.RebuildOnStartup)
	logger.InfoContext(ctx, "Config: search.watch", "value", s.Watch)
	if s.Watch {
		logger.InfoContext(ctx, "Config: search.watch_debounce", "value", s.WatchDebounce)
	}
	for _, src := range s.Sources {
		logger.InfoContext(ctx, "Config: search.source",
			"name", src.Name,
			"paths", src.Paths,
			"document_types", src.DocumentTypes,
		)
	}
	for _, idx := range s.Indexes {
		logger.InfoContext(ctx, "Config: search.index",
			"name", idx.Name,
			"project", idx.Project,
			"locale", idx.Locale,
			"rebuild_mode", idx.RebuildMode,
			"sources", idx.Sources,
		)
	}
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = "****"
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", "****"),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
		slog.Any("search", SearchSettingsLogValue(s.Search)),
	)
}

// SearchSettingsLogValue returns a slog.Value summarizing SearchSettings
func SearchSettingsLogValue(s SearchSettings) slog.Value {
	return slog.GroupValue(
		slog.String("base_dir", s.BaseDir),
		slog.Any("projects", s.Projects),
		slog.Int("sources", len(s.Sources)),
		slog.Int("indexes", len(s.Indexes)),
		slog.Bool("watch", s.Watch),
	)
}
