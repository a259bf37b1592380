package testkit

import (
	"fmt"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sha1n/mcp-lumen-server/internal/app"
	"github.com/sha1n/mcp-lumen-server/internal/config"
	"github.com/spf13/pflag"
)

// Service represents a test service that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext provides access to properties collected during environment startup
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv manages the lifecycle of test services
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type testEnvContextImpl struct {
	properties map[string]any
}

func (c *testEnvContextImpl) GetProperties() map[string]any {
	return c.properties
}

func (c *testEnvContextImpl) GetProperty(name string) (any, bool) {
	val, ok := c.properties[name]
	return val, ok
}

type testEnvImpl struct {
	services []Service
	context  *testEnvContextImpl
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) TestEnv {
	return &testEnvImpl{
		services: services,
		context:  &testEnvContextImpl{properties: make(map[string]any)},
	}
}

func (e *testEnvImpl) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, err
		}
		for k, v := range props {
			e.context.properties[k] = v
		}
	}
	return e.context.properties, nil
}

func (e *testEnvImpl) Stop() error {
	var lastErr error
	// Stop in reverse order
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (e *testEnvImpl) GetContext() TestEnvContext {
	return e.context
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port      int    // Uses free port if 0
	Transport string // Defaults to "sse"
	AuthType  string // Defaults to "none"
	Host      string // Defaults to "localhost"

	Projects []string // "name=dir" entries, none if empty
	BaseDir  string   // Uses a temp dir if empty
	Watch    bool
}

// NewTestFlags creates a configured pflag.FlagSet for testing
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	port := 0
	transport := "sse"
	authType := "none"
	host := "localhost"
	baseDir := ""

	if opts != nil {
		if opts.Port != 0 {
			port = opts.Port
		}
		if opts.Transport != "" {
			transport = opts.Transport
		}
		if opts.AuthType != "" {
			authType = opts.AuthType
		}
		if opts.Host != "" {
			host = opts.Host
		}
		baseDir = opts.BaseDir
	}

	if port == 0 {
		port = MustGetFreePort(t)
	}

	_ = flags.Set("port", fmt.Sprintf("%d", port))
	_ = flags.Set("transport", transport)
	_ = flags.Set("auth-type", authType)
	_ = flags.Set("host", host)

	if baseDir == "" {
		baseDir = t.TempDir()
	}
	_ = flags.Set("search-base-dir", baseDir)
	if opts != nil {
		if len(opts.Projects) > 0 {
			_ = flags.Set("search-projects", strings.Join(opts.Projects, ","))
		}
		if opts.Watch {
			_ = flags.Set("search-watch", "true")
			_ = flags.Set("search-watch-debounce", "100ms")
		}
	}

	return flags
}

// WriteFiles writes files relative to dir, creating parent directories.
func WriteFiles(dir string, files map[string]string) error {
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// ProjectService provides a project directory populated with Files.
// Properties: "<name>_dir" and "<name>_project" ("name=dir").
type ProjectService struct {
	Name  string
	Files map[string]string

	dir string
}

func (p *ProjectService) Start() (map[string]any, error) {
	dir, err := os.MkdirTemp("", "lumen-project-")
	if err != nil {
		return nil, err
	}
	p.dir = dir
	if err := WriteFiles(dir, p.Files); err != nil {
		return nil, err
	}
	return map[string]any{
		p.Name + "_dir":     dir,
		p.Name + "_project": p.Name + "=" + dir,
	}, nil
}

func (p *ProjectService) Stop() error {
	if p.dir == "" {
		return nil
	}
	return os.RemoveAll(p.dir)
}

func (p *ProjectService) GetName() string {
	return "project-" + p.Name
}

// ServerService runs the full HTTP server built from Flags on a test listener.
// Properties: "server_url".
type ServerService struct {
	Flags *pflag.FlagSet

	server  *httptest.Server
	cleanup func()
}

func (s *ServerService) Start() (map[string]any, error) {
	settings, err := config.LoadSettingsWithFlags(s.Flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := config.ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mcpServer, cleanup, err := app.CreateMCPServer(settings)
	if err != nil {
		return nil, err
	}
	s.cleanup = cleanup

	srv, err := app.NewSSEServer(mcpServer, settings)
	if err != nil {
		return nil, err
	}
	s.server = httptest.NewServer(srv.Handler)

	return map[string]any{"server_url": s.server.URL}, nil
}

func (s *ServerService) Stop() error {
	if s.server != nil {
		s.server.CloseClientConnections()
		s.server.Close()
	}
	if s.cleanup != nil {
		s.cleanup()
	}
	return nil
}

func (s *ServerService) GetName() string {
	return "lumen-server"
}
