// Package fsrepo implements repository.Repository on top of plain directories.
// Every project maps to one directory; resource root paths are slash separated
// paths relative to that directory.
package fsrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/sha1n/mcp-lumen-server/internal/repository"
	"gopkg.in/yaml.v3"
)

const (
	// PropertiesSuffix is the suffix of resource property sidecar files.
	PropertiesSuffix = ".properties.yaml"

	// TypeFolder is the resource type of directories.
	TypeFolder = "folder"

	// TypeBinary is the resource type of files with no known text type.
	TypeBinary = "binary"
)

// DefaultTypesByExtension maps file extensions to resource type names.
var DefaultTypesByExtension = map[string]string{
	"txt":      "plain",
	"text":     "plain",
	"log":      "plain",
	"csv":      "plain",
	"json":     "plain",
	"html":     "html",
	"htm":      "html",
	"xhtml":    "html",
	"md":       "markdown",
	"markdown": "markdown",
}

// Properties are the resource properties read from a sidecar file.
type Properties struct {
	Title      string   `yaml:"title"`
	Categories []string `yaml:"categories"`
	Deny       []string `yaml:"deny"`
}

// Repository is a filesystem backed, read-only repository.
type Repository struct {
	projects map[string]string
	types    map[string]string
}

// New creates a repository for the given project directories.
func New(projects map[string]string) (*Repository, error) {
	if len(projects) == 0 {
		return nil, fmt.Errorf("at least one project directory is required")
	}

	resolved := make(map[string]string, len(projects))
	for name, dir := range projects {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", name, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", name, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("project %s: %s is not a directory", name, abs)
		}
		resolved[name] = abs
	}

	return &Repository{
		projects: resolved,
		types:    DefaultTypesByExtension,
	}, nil
}

// ProjectDir returns the directory of a project.
func (r *Repository) ProjectDir(project string) (string, bool) {
	dir, ok := r.projects[project]
	return dir, ok
}

// Projects returns the configured project names, sorted.
func (r *Repository) Projects() []string {
	names := make([]string, 0, len(r.projects))
	for name := range r.projects {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ResourceID returns the stable id of a root path.
func ResourceID(rootPath string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(rootPath))
}

// TypeName returns the resource type of a file name.
func (r *Repository) TypeName(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if t, ok := r.types[ext]; ok {
		return t
	}
	return TypeBinary
}

// MimeType returns the mimetype of a file name, without parameters.
func MimeType(name string) string {
	mt := mime.TypeByExtension(filepath.Ext(name))
	if mt == "" {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".md", ".markdown":
			return "text/markdown"
		}
		return "application/octet-stream"
	}
	if base, _, found := strings.Cut(mt, ";"); found {
		return strings.TrimSpace(base)
	}
	return mt
}

// resolve maps a root path of the current project to a filesystem path.
func (r *Repository) resolve(rc *repository.Context, rootPath string) (string, string, error) {
	project := rc.CurrentProject()
	dir, ok := r.projects[project]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", repository.ErrUnknownProject, project)
	}

	cleaned := path.Clean("/" + strings.TrimSpace(rootPath))
	full := filepath.Join(dir, filepath.FromSlash(cleaned))

	// Security check: ensure the path is within the project directory
	if full != dir && !strings.HasPrefix(full, dir+string(filepath.Separator)) {
		return "", "", fmt.Errorf("path traversal is not allowed: %s", rootPath)
	}
	return full, cleaned, nil
}

// rootPathOf maps a filesystem path below dir back to a root path.
func rootPathOf(dir, full string) string {
	rel, err := filepath.Rel(dir, full)
	if err != nil || rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

// isHidden reports whether a file name is excluded from the repository view.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, PropertiesSuffix)
}

func (r *Repository) newResource(rootPath, full string, info fs.FileInfo) *repository.Resource {
	res := &repository.Resource{
		ID:           ResourceID(rootPath),
		RootPath:     rootPath,
		Name:         info.Name(),
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}
	if rootPath == "/" {
		res.Name = "/"
	}

	if info.IsDir() {
		res.IsFolder = true
		res.TypeName = TypeFolder
		return res
	}

	res.TypeName = r.TypeName(info.Name())
	res.MimeType = MimeType(info.Name())
	if props, err := readProperties(full); err == nil {
		res.Title = props.Title
		res.Categories = props.Categories
	}
	return res
}

// readProperties loads the sidecar properties of a file. A missing sidecar
// yields empty properties.
func readProperties(full string) (*Properties, error) {
	data, err := os.ReadFile(full + PropertiesSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Properties{}, nil
		}
		return nil, err
	}

	var props Properties
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("failed to parse properties of %s: %w", full, err)
	}
	return &props, nil
}

// ReadResources returns rootPath and everything below it in depth-first,
// lexical order.
func (r *Repository) ReadResources(ctx context.Context, rc *repository.Context, rootPath string) ([]*repository.Resource, error) {
	full, cleaned, err := r.resolve(rc, rootPath)
	if err != nil {
		return nil, err
	}
	dir := r.projects[rc.CurrentProject()]

	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, cleaned)
		}
		return nil, err
	}

	var resources []*repository.Resource
	err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries with errors
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p != full && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		resources = append(resources, r.newResource(rootPathOf(dir, p), p, info))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resources, nil
}

// ReadResource returns the resource at rootPath.
func (r *Repository) ReadResource(_ context.Context, rc *repository.Context, rootPath string) (*repository.Resource, error) {
	full, cleaned, err := r.resolve(rc, rootPath)
	if err != nil {
		return nil, err
	}
	if isHidden(path.Base(cleaned)) && cleaned != "/" {
		return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, cleaned)
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, cleaned)
		}
		return nil, err
	}
	return r.newResource(cleaned, full, info), nil
}

// ReadContent returns the bytes of a file resource, checking read permission.
func (r *Repository) ReadContent(ctx context.Context, rc *repository.Context, rootPath string) ([]byte, error) {
	full, cleaned, err := r.resolve(rc, rootPath)
	if err != nil {
		return nil, err
	}
	if !r.HasReadPermission(ctx, rc, cleaned) {
		return nil, fmt.Errorf("%w: %s", repository.ErrPermissionDenied, cleaned)
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot read content of folder %s", cleaned)
	}
	return os.ReadFile(full)
}

// HasReadPermission reports whether rootPath exists, is visible and readable,
// and the context user is not denied by the resource properties.
func (r *Repository) HasReadPermission(_ context.Context, rc *repository.Context, rootPath string) bool {
	full, cleaned, err := r.resolve(rc, rootPath)
	if err != nil {
		return false
	}
	if cleaned != "/" && isHidden(path.Base(cleaned)) {
		return false
	}

	f, err := os.Open(full)
	if err != nil {
		return false
	}
	_ = f.Close()

	props, err := readProperties(full)
	if err != nil {
		return false
	}
	return !slices.Contains(props.Deny, rc.User)
}
