package fsrepo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sha1n/mcp-lumen-server/internal/repository"
)

// writeFile creates a file and its parent directories below dir.
func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func newTestRepo(t *testing.T) (*Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := New(map[string]string{repository.ProjectOnline: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return repo, dir
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("Expected error for empty projects")
	}
	if _, err := New(map[string]string{"x": filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestReadResources_DepthFirstOrder(t *testing.T) {
	repo, dir := newTestRepo(t)
	writeFile(t, dir, "a/x.txt", "x")
	writeFile(t, dir, "a/b/y.txt", "y")
	writeFile(t, dir, "c.html", "<p>c</p>")
	writeFile(t, dir, ".hidden/z.txt", "z")
	writeFile(t, dir, "a/x.txt"+PropertiesSuffix, "title: X\n")

	rc := repository.NewContext("u", repository.ProjectOnline)
	resources, err := repo.ReadResources(context.Background(), rc, "/")
	if err != nil {
		t.Fatalf("ReadResources failed: %v", err)
	}

	var paths []string
	for _, r := range resources {
		paths = append(paths, r.RootPath)
	}
	want := []string{"/", "/a", "/a/b", "/a/b/y.txt", "/a/x.txt", "/c.html"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestReadResource_TypesAndProperties(t *testing.T) {
	repo, dir := newTestRepo(t)
	writeFile(t, dir, "news/item.txt", "hello")
	writeFile(t, dir, "news/item.txt"+PropertiesSuffix, "title: Item\ncategories: [news, sports]\n")
	writeFile(t, dir, "page.html", "<p>hi</p>")

	rc := repository.NewContext("u", repository.ProjectOnline)

	res, err := repo.ReadResource(context.Background(), rc, "/news/item.txt")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if res.TypeName != "plain" {
		t.Errorf("TypeName = %q, want plain", res.TypeName)
	}
	if res.MimeType != "text/plain" {
		t.Errorf("MimeType = %q, want text/plain", res.MimeType)
	}
	if res.Title != "Item" {
		t.Errorf("Title = %q, want Item", res.Title)
	}
	if len(res.Categories) != 2 || res.Categories[0] != "news" {
		t.Errorf("Categories = %v", res.Categories)
	}
	if res.ID != ResourceID("/news/item.txt") {
		t.Error("Expected stable resource id")
	}

	folder, err := repo.ReadResource(context.Background(), rc, "/news")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if !folder.IsFolder || folder.TypeName != TypeFolder {
		t.Errorf("Expected folder resource, got %+v", folder)
	}

	html, err := repo.ReadResource(context.Background(), rc, "/page.html")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if html.TypeName != "html" || html.MimeType != "text/html" {
		t.Errorf("Unexpected html resource: %+v", html)
	}
}

func TestReadResource_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	rc := repository.NewContext("u", repository.ProjectOnline)

	_, err := repo.ReadResource(context.Background(), rc, "/missing.txt")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestResolve_PathTraversal(t *testing.T) {
	repo, dir := newTestRepo(t)
	writeFile(t, dir, "a.txt", "a")
	rc := repository.NewContext("u", repository.ProjectOnline)

	// Cleaning anchors the path at the project root
	content, err := repo.ReadContent(context.Background(), rc, "/../../a.txt")
	if err != nil {
		t.Fatalf("ReadContent failed: %v", err)
	}
	if string(content) != "a" {
		t.Errorf("content = %q", content)
	}
}

func TestUnknownProject(t *testing.T) {
	repo, _ := newTestRepo(t)
	rc := repository.NewContext("u", repository.ProjectOffline)

	_, err := repo.ReadResources(context.Background(), rc, "/")
	if !errors.Is(err, repository.ErrUnknownProject) {
		t.Errorf("Expected ErrUnknownProject, got %v", err)
	}
	if repo.HasReadPermission(context.Background(), rc, "/") {
		t.Error("Expected no permission in unknown project")
	}
}

func TestHasReadPermission(t *testing.T) {
	repo, dir := newTestRepo(t)
	writeFile(t, dir, "open.txt", "o")
	writeFile(t, dir, "secret.txt", "s")
	writeFile(t, dir, "secret.txt"+PropertiesSuffix, "deny: [guest]\n")

	ctx := context.Background()
	guest := repository.NewContext("guest", repository.ProjectOnline)
	admin := repository.NewContext("admin", repository.ProjectOnline)

	tests := []struct {
		name string
		rc   *repository.Context
		path string
		want bool
	}{
		{"open file", guest, "/open.txt", true},
		{"denied user", guest, "/secret.txt", false},
		{"other user", admin, "/secret.txt", true},
		{"missing", admin, "/gone.txt", false},
		{"sidecar hidden", admin, "/secret.txt" + PropertiesSuffix, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := repo.HasReadPermission(ctx, tt.rc, tt.path); got != tt.want {
				t.Errorf("HasReadPermission(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	if _, err := repo.ReadContent(ctx, guest, "/secret.txt"); !errors.Is(err, repository.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
}

func TestMimeType(t *testing.T) {
	tests := map[string]string{
		"a.txt":  "text/plain",
		"a.html": "text/html",
		"a.md":   "text/markdown",
		"a.zzz":  "application/octet-stream",
	}
	for name, want := range tests {
		if got := MimeType(name); got != want {
			t.Errorf("MimeType(%q) = %q, want %q", name, got, want)
		}
	}
}
