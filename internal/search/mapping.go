package search

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/es"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/analysis/lang/it"
	regexptokenizer "github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/sha1n/mcp-lumen-server/internal/domain"
)

const (
	rootPathTokenizer = "rootpath_segments"
	rootPathAnalyzer  = "rootpath"
)

// localeAnalyzers maps index locales to bleve analyzers.
var localeAnalyzers = map[string]string{
	"":        standard.Name,
	"default": standard.Name,
	"en":      en.AnalyzerName,
	"de":      de.AnalyzerName,
	"fr":      fr.AnalyzerName,
	"es":      es.AnalyzerName,
	"it":      it.AnalyzerName,
}

// AnalyzerForLocale returns the analyzer name for a locale.
func AnalyzerForLocale(locale string) (string, bool) {
	a, ok := localeAnalyzers[locale]
	return a, ok
}

// NewIndexMapping creates the document mapping of an index whose text
// fields use the given analyzer.
func NewIndexMapping(analyzer string) (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	// Root paths are indexed as one token per segment, so that a phrase
	// over the split path matches exactly the documents below it.
	if err := indexMapping.AddCustomTokenizer(rootPathTokenizer, map[string]any{
		"type":   regexptokenizer.Name,
		"regexp": `[^/]+`,
	}); err != nil {
		return nil, fmt.Errorf("failed to register root path tokenizer: %w", err)
	}
	if err := indexMapping.AddCustomAnalyzer(rootPathAnalyzer, map[string]any{
		"type":      custom.Name,
		"tokenizer": rootPathTokenizer,
	}); err != nil {
		return nil, fmt.Errorf("failed to register root path analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = analyzer
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.FieldContent, contentField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = analyzer
	titleField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldTitle, titleField)

	rootPathField := bleve.NewTextFieldMapping()
	rootPathField.Analyzer = rootPathAnalyzer
	rootPathField.Store = false
	rootPathField.IncludeTermVectors = true
	rootPathField.IncludeInAll = false
	docMapping.AddFieldMappingsAt(domain.FieldRootPath, rootPathField)

	for _, name := range []string{
		domain.FieldID,
		domain.FieldPath,
		domain.FieldType,
		domain.FieldResourceType,
		domain.FieldMimeType,
		domain.FieldCategory,
		domain.FieldLocale,
	} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		f.IncludeInAll = false
		docMapping.AddFieldMappingsAt(name, f)
	}

	modified := bleve.NewDateTimeFieldMapping()
	modified.Store = true
	modified.IncludeInAll = false
	docMapping.AddFieldMappingsAt(domain.FieldLastModified, modified)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = analyzer

	return indexMapping, nil
}
