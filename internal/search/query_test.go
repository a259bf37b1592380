package search

import (
	"errors"
	"slices"
	"testing"
)

func TestRootPathSplit(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/", []string{"root"}},
		{"", []string{"root"}},
		{"/a", []string{"root", "a@p"}},
		{"/a/b/", []string{"root", "a@p", "b@p"}},
		{"/sites/default/index.html", []string{"root", "sites@p", "default@p", "index.html@p"}},
		{"/root/x", []string{"root", "root@p", "x@p"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := RootPathSplit(tt.path)
			if !slices.Equal(got, tt.want) {
				t.Errorf("RootPathSplit(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestRootPathSegments_RoundTrip(t *testing.T) {
	for _, segments := range [][]string{
		{},
		{"a"},
		{"a", "b", "c"},
		{"root", "x@p"},
		{"Über", "файл.txt"},
	} {
		p := "/"
		for i, s := range segments {
			if i > 0 {
				p += "/"
			}
			p += s
		}
		got := RootPathSegments(RootPathSplit(p))
		if !slices.Equal(got, segments) {
			t.Errorf("RootPathSegments(RootPathSplit(%q)) = %v, want %v", p, got, segments)
		}
	}
}

func TestRootPathValue(t *testing.T) {
	if got, want := RootPathValue("/a/b"), "root/a@p/b@p"; got != want {
		t.Errorf("RootPathValue = %q, want %q", got, want)
	}
}

func TestParseQueryText(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantPhrases []string
		wantWords   string
		wantErr     error
	}{
		{name: "words", text: "alpha  beta", wantWords: "alpha beta"},
		{name: "phrase", text: `"alpha beta"`, wantPhrases: []string{"alpha beta"}},
		{name: "mixed", text: `gamma "alpha beta" delta`, wantPhrases: []string{"alpha beta"}, wantWords: "gamma delta"},
		{name: "two phrases", text: `"a b" "c d"`, wantPhrases: []string{"a b", "c d"}},
		{name: "empty", text: "   ", wantErr: ErrEmptyQuery},
		{name: "empty quotes", text: `""`, wantErr: ErrEmptyQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phrases, words, err := parseQueryText(tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseQueryText failed: %v", err)
			}
			if !slices.Equal(phrases, tt.wantPhrases) {
				t.Errorf("phrases = %v, want %v", phrases, tt.wantPhrases)
			}
			if words != tt.wantWords {
				t.Errorf("words = %q, want %q", words, tt.wantWords)
			}
		})
	}
}

func TestParseQueryText_UnbalancedQuotes(t *testing.T) {
	if _, _, err := parseQueryText(`"alpha beta`); err == nil {
		t.Error("Expected error for unbalanced quotes")
	}
}

func TestBuildQuery_InvalidText(t *testing.T) {
	if _, err := buildQuery(Parameters{Query: ""}, "standard", false); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}
