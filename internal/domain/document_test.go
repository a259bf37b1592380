package domain

import (
	"encoding/json"
	"testing"
)

func TestDocument_JSONFieldNames(t *testing.T) {
	doc := Document{
		ID:         "/a/x.txt",
		Path:       "/a/x.txt",
		RootPath:   "root/a@p/x.txt@p",
		Type:       "plain",
		Title:      "x",
		Content:    "hello",
		Categories: []string{"news"},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, field := range []string{FieldID, FieldPath, FieldRootPath, FieldType, FieldTitle, FieldContent, FieldCategory} {
		if _, ok := m[field]; !ok {
			t.Errorf("Expected JSON field %q to be present", field)
		}
	}
}

func TestDocument_Size(t *testing.T) {
	small := &Document{Content: "a"}
	large := &Document{Content: "a much longer piece of content", Categories: []string{"one", "two"}}

	if small.Size() <= 0 {
		t.Errorf("Size() = %d, want > 0", small.Size())
	}
	if large.Size() <= small.Size() {
		t.Errorf("Expected larger document to report larger size: %d <= %d", large.Size(), small.Size())
	}
}

func TestDisplayFields_ExcludeContent(t *testing.T) {
	for _, f := range DisplayFields {
		if f == FieldContent {
			t.Error("DisplayFields must not load the content field")
		}
	}
}
