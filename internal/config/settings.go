package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Rebuild mode values accepted for an index
const (
	RebuildModeAuto   = "auto"
	RebuildModeManual = "manual"
)

// DefaultSourceName is the source generated when no sources are configured.
const DefaultSourceName = "all"

// DefaultDocumentTypes are the document types of the generated default source.
var DefaultDocumentTypes = []string{"plain", "html", "markdown"}

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// SourceSettings describes a named, reusable set of root paths and document types.
type SourceSettings struct {
	Name          string            `mapstructure:"name" yaml:"name"`
	Paths         []string          `mapstructure:"paths" yaml:"paths"`
	DocumentTypes []string          `mapstructure:"document_types" yaml:"document_types"`
	Indexer       string            `mapstructure:"indexer" yaml:"indexer"`
	Params        map[string]string `mapstructure:"params" yaml:"params"`
}

// IndexSettings describes one named search index.
type IndexSettings struct {
	Name             string   `mapstructure:"name" yaml:"name"`
	Locale           string   `mapstructure:"locale" yaml:"locale"`
	Project          string   `mapstructure:"project" yaml:"project"`
	RebuildMode      string   `mapstructure:"rebuild_mode" yaml:"rebuild_mode"`
	Sources          []string `mapstructure:"sources" yaml:"sources"`
	Excerpt          *bool    `mapstructure:"excerpt" yaml:"excerpt"`
	CheckPermissions *bool    `mapstructure:"check_permissions" yaml:"check_permissions"`
	Priority         int      `mapstructure:"priority" yaml:"priority"`
	MaxExcerptLength int      `mapstructure:"max_excerpt_length" yaml:"max_excerpt_length"`
}

// ExcerptEnabled reports whether excerpts are built for results; defaults to true.
func (s IndexSettings) ExcerptEnabled() bool {
	return s.Excerpt == nil || *s.Excerpt
}

// PermissionsChecked reports whether hits are filtered by read permission; defaults to true.
func (s IndexSettings) PermissionsChecked() bool {
	return s.CheckPermissions == nil || *s.CheckPermissions
}

// SearchSettings configuration for the search engine
type SearchSettings struct {
	BaseDir              string           `mapstructure:"base_dir"`
	User                 string           `mapstructure:"user"`
	IndexUser            string           `mapstructure:"index_user"`
	Projects             []string         `mapstructure:"projects"` // name=dir entries
	ResultCacheSize      int              `mapstructure:"result_cache_size"`
	DocumentCacheMaxCost int64            `mapstructure:"document_cache_max_cost"`
	MaxContentSize       int              `mapstructure:"max_content_size"`
	IndexingTimeout      time.Duration    `mapstructure:"indexing_timeout"`
	SupervisorInterval   time.Duration    `mapstructure:"supervisor_interval"`
	SupervisorMaxChecks  int              `mapstructure:"supervisor_max_checks"`
	LockTimeout          time.Duration    `mapstructure:"lock_timeout"`
	MaxExcerptLength     int              `mapstructure:"max_excerpt_length"`
	MaxCategoryFacets    int              `mapstructure:"max_category_facets"`
	RebuildOnStartup     bool             `mapstructure:"rebuild_on_startup"`
	Watch                bool             `mapstructure:"watch"`
	WatchDebounce        time.Duration    `mapstructure:"watch_debounce"`
	Sources              []SourceSettings `mapstructure:"sources"`
	Indexes              []IndexSettings  `mapstructure:"indexes"`
}

// ProjectDirs parses the name=dir project entries. Later entries win.
func (s *SearchSettings) ProjectDirs() (map[string]string, error) {
	dirs := make(map[string]string, len(s.Projects))
	for _, entry := range s.Projects {
		name, dir, ok := strings.Cut(entry, "=")
		name, dir = strings.TrimSpace(name), strings.TrimSpace(dir)
		if !ok || name == "" || dir == "" {
			return nil, fmt.Errorf("invalid project entry %q, expected name=dir", entry)
		}
		dirs[name] = expandHomeDir(dir)
	}
	return dirs, nil
}

// Settings application settings
type Settings struct {
	Transport string         `mapstructure:"transport"`
	Host      string         `mapstructure:"host"`
	Port      int            `mapstructure:"port"`
	Auth      AuthSettings   `mapstructure:"auth"`
	Search    SearchSettings `mapstructure:"search"`
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > config file (or .env file) > defaults.
// If flags is nil, only env vars, the config file and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	// Search defaults
	v.SetDefault("search.base_dir", defaultBaseDir())
	v.SetDefault("search.user", "guest")
	v.SetDefault("search.index_user", "admin")
	v.SetDefault("search.result_cache_size", 256)
	v.SetDefault("search.document_cache_max_cost", int64(64<<20))
	v.SetDefault("search.max_content_size", 1<<20)
	v.SetDefault("search.indexing_timeout", 2*time.Minute)
	v.SetDefault("search.supervisor_interval", 10*time.Minute)
	v.SetDefault("search.supervisor_max_checks", 10)
	v.SetDefault("search.lock_timeout", time.Minute)
	v.SetDefault("search.max_excerpt_length", 1024)
	v.SetDefault("search.max_category_facets", 1000)
	v.SetDefault("search.rebuild_on_startup", true)
	v.SetDefault("search.watch", false)
	v.SetDefault("search.watch_debounce", 2*time.Second)

	// Environment variables
	v.SetEnvPrefix("LUMEN_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	_ = v.BindEnv("config", "LUMEN_MCP_CONFIG")
	_ = v.BindEnv("auth.type", "LUMEN_MCP_AUTH_TYPE")
	_ = v.BindEnv("auth.basic.username", "LUMEN_MCP_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", "LUMEN_MCP_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", "LUMEN_MCP_AUTH_API_KEYS")

	// Search env var bindings
	for _, key := range searchKeys {
		_ = v.BindEnv("search."+key, "LUMEN_MCP_SEARCH_"+strings.ToUpper(key))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		_ = v.BindPFlag("config", flags.Lookup("config"))
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("port", flags.Lookup("port"))
		_ = v.BindPFlag("auth.type", flags.Lookup("auth-type"))
		_ = v.BindPFlag("auth.basic.username", flags.Lookup("auth-basic-username"))
		_ = v.BindPFlag("auth.basic.password", flags.Lookup("auth-basic-password"))
		_ = v.BindPFlag("auth.api_keys", flags.Lookup("auth-api-keys"))

		// Search CLI flags
		for _, key := range searchKeys {
			if f := flags.Lookup("search-" + strings.ReplaceAll(key, "_", "-")); f != nil {
				_ = v.BindPFlag("search."+key, f)
			}
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(expandHomeDir(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		// Helper to look for .env file
		v.SetConfigName(".env")
		v.SetConfigType("env")
		v.AddConfigPath(".")
		_ = v.ReadInConfig() // Ignore error if .env doesn't exist
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	settings.Auth.APIKeys = splitListEnv("LUMEN_MCP_AUTH_API_KEYS", settings.Auth.APIKeys)
	settings.Search.Projects = filterEmptyStrings(splitListEnv("LUMEN_MCP_SEARCH_PROJECTS", settings.Search.Projects))

	// Expand home directory in base_dir
	settings.Search.BaseDir = expandHomeDir(settings.Search.BaseDir)

	applySearchDefaults(&settings.Search)

	return &settings, nil
}

// searchKeys are the scalar search settings reachable through env vars and flags.
var searchKeys = []string{
	"base_dir",
	"user",
	"index_user",
	"projects",
	"result_cache_size",
	"document_cache_max_cost",
	"max_content_size",
	"indexing_timeout",
	"supervisor_interval",
	"supervisor_max_checks",
	"lock_timeout",
	"max_excerpt_length",
	"max_category_facets",
	"rebuild_on_startup",
	"watch",
	"watch_debounce",
}

// splitListEnv handles explicit parsing of a list provided via env var as a comma-separated string
func splitListEnv(env string, values []string) []string {
	raw := os.Getenv(env)
	if raw != "" {
		if len(values) == 0 || (len(values) == 1 && strings.Contains(values[0], ",")) {
			values = strings.Split(raw, ",")
		}
	}
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}
	return values
}

// applySearchDefaults generates one source covering every path and one auto index per
// project when the configuration names none.
func applySearchDefaults(s *SearchSettings) {
	if len(s.Sources) == 0 {
		s.Sources = []SourceSettings{{
			Name:          DefaultSourceName,
			Paths:         []string{"/"},
			DocumentTypes: append([]string(nil), DefaultDocumentTypes...),
		}}
	}
	if len(s.Indexes) > 0 {
		return
	}
	dirs, err := s.ProjectDirs()
	if err != nil {
		return // reported by ValidateSettings
	}
	names := make([]string, 0, len(s.Sources))
	for _, src := range s.Sources {
		names = append(names, src.Name)
	}
	for _, entry := range s.Projects {
		name, _, _ := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if _, ok := dirs[name]; !ok || hasIndex(s.Indexes, name) {
			continue
		}
		s.Indexes = append(s.Indexes, IndexSettings{
			Name:        name,
			Project:     name,
			RebuildMode: RebuildModeAuto,
			Sources:     names,
		})
	}
}

func hasIndex(indexes []IndexSettings, name string) bool {
	for _, idx := range indexes {
		if idx.Name == name {
			return true
		}
	}
	return false
}

// defaultBaseDir returns the default base directory for index data
func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lumen-mcp"
	}
	return filepath.Join(home, ".lumen-mcp")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// filterEmptyStrings removes empty strings from a slice
func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete auth config,
// or a structurally invalid search configuration.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	// Validate search settings
	if err := validateSearchSettings(&s.Search); err != nil {
		return err
	}

	return nil
}

// validateSearchSettings validates the structure of the search configuration. Semantic
// problems of a single index (unknown locale, document type without a factory) are
// reported when the index is initialized and disable only that index.
func validateSearchSettings(s *SearchSettings) error {
	if s.BaseDir == "" {
		return errors.New("search-base-dir cannot be empty")
	}
	if s.User == "" {
		return errors.New("search-user cannot be empty")
	}
	if s.IndexUser == "" {
		return errors.New("search-index-user cannot be empty")
	}
	if s.ResultCacheSize <= 0 {
		return errors.New("search-result-cache-size must be positive")
	}
	if s.DocumentCacheMaxCost <= 0 {
		return errors.New("search-document-cache-max-cost must be positive")
	}
	if s.MaxContentSize <= 0 {
		return errors.New("search-max-content-size must be positive")
	}
	if s.IndexingTimeout <= 0 {
		return errors.New("search-indexing-timeout must be positive")
	}
	if s.SupervisorInterval <= 0 {
		return errors.New("search-supervisor-interval must be positive")
	}
	if s.SupervisorMaxChecks <= 0 {
		return errors.New("search-supervisor-max-checks must be positive")
	}
	if s.LockTimeout <= 0 {
		return errors.New("search-lock-timeout must be positive")
	}
	if s.MaxExcerptLength <= 0 {
		return errors.New("search-max-excerpt-length must be positive")
	}
	if s.MaxCategoryFacets <= 0 {
		return errors.New("search-max-category-facets must be positive")
	}
	if s.Watch && s.WatchDebounce <= 0 {
		return errors.New("search-watch-debounce must be positive")
	}

	projects, err := s.ProjectDirs()
	if err != nil {
		return err
	}

	sources := make(map[string]struct{}, len(s.Sources))
	for _, src := range s.Sources {
		if src.Name == "" {
			return errors.New("search source name cannot be empty")
		}
		if _, dup := sources[src.Name]; dup {
			return fmt.Errorf("duplicate search source %q", src.Name)
		}
		if len(src.Paths) == 0 {
			return fmt.Errorf("search source %q requires at least one path", src.Name)
		}
		if len(src.DocumentTypes) == 0 {
			return fmt.Errorf("search source %q requires at least one document type", src.Name)
		}
		sources[src.Name] = struct{}{}
	}

	indexes := make(map[string]struct{}, len(s.Indexes))
	for _, idx := range s.Indexes {
		if idx.Name == "" {
			return errors.New("search index name cannot be empty")
		}
		if _, dup := indexes[idx.Name]; dup {
			return fmt.Errorf("duplicate search index %q", idx.Name)
		}
		indexes[idx.Name] = struct{}{}

		if _, ok := projects[idx.Project]; !ok {
			return fmt.Errorf("search index %q refers to unknown project %q", idx.Name, idx.Project)
		}
		switch idx.RebuildMode {
		case "", RebuildModeAuto, RebuildModeManual:
		default:
			return fmt.Errorf("search index %q has unknown rebuild mode %q", idx.Name, idx.RebuildMode)
		}
		if len(idx.Sources) == 0 {
			return fmt.Errorf("search index %q requires at least one source", idx.Name)
		}
		for _, name := range idx.Sources {
			if _, ok := sources[name]; !ok {
				return fmt.Errorf("search index %q refers to unknown source %q", idx.Name, name)
			}
		}
		if idx.MaxExcerptLength < 0 {
			return fmt.Errorf("search index %q has negative max excerpt length", idx.Name)
		}
	}

	return nil
}
