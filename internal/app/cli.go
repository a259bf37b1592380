package app

import (
	"time"

	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Path to a YAML configuration file")
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")

	// Search flags
	flags.String("search-base-dir", "", "Directory holding the search indexes")
	flags.StringSlice("search-projects", nil, "Projects as name=dir (comma-separated)")
	flags.String("search-user", "", "Repository user searches run as")
	flags.String("search-index-user", "", "Repository user indexing reads as")
	flags.Duration("search-indexing-timeout", 0, "Time a resource may take to index before it is abandoned")
	flags.Duration("search-lock-timeout", 0, "Time a requested rebuild waits for another process holding the index")
	flags.Int("search-result-cache-size", 0, "Number of search result pages kept in the cache")
	flags.Int("search-max-content-size", 0, "Largest resource content indexed, in bytes")
	flags.Bool("search-rebuild-on-startup", true, "Rebuild all indexes on startup")
	flags.Bool("search-watch", false, "Watch project directories and update auto indexes on change")
	flags.Duration("search-watch-debounce", 2*time.Second, "Quiet period before watched changes are indexed")
}
