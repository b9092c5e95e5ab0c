package metrics

import (
	"context"
	"path/filepath"
	"strings"
)

// Language names a source language known to the registry.
type Language string

// Known languages.
const (
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageCPP        Language = "cpp"
	LanguageJavaScript Language = "javascript"
	LanguageUnknown    Language = "unknown"
)

var languageByExtension = map[string]Language{
	".py":   LanguagePython,
	".pyw":  LanguagePython,
	".java": LanguageJava,
	".c":    LanguageCPP,
	".cc":   LanguageCPP,
	".cpp":  LanguageCPP,
	".cxx":  LanguageCPP,
	".h":    LanguageCPP,
	".hpp":  LanguageCPP,
	".hxx":  LanguageCPP,
	".js":   LanguageJavaScript,
	".jsx":  LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".cjs":  LanguageJavaScript,
	".ts":   LanguageJavaScript,
	".tsx":  LanguageJavaScript,
}

// LanguageForPath detects the language of a file from its extension.
func LanguageForPath(path string) Language {
	if lang, ok := languageByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LanguageUnknown
}

// Analyzable reports whether units at path can be structurally analyzed.
func Analyzable(path string) bool {
	return LanguageForPath(path) == LanguagePython
}

// lineFacts stands in for languages without a structural extractor; the
// analyzer then reports line metrics and pattern findings only.
type lineFacts struct{}

func (lineFacts) Extract(_ context.Context, _ []byte) (*Facts, error) {
	return &Facts{}, nil
}

// NewAnalyzerFor creates an analyzer for lang. Python gets the tree-sitter
// extractor; other languages degrade to line metrics and pattern rules.
func NewAnalyzerFor(lang Language, opts ...Option) *Analyzer {
	if lang != LanguagePython {
		opts = append([]Option{WithExtractor(lang, lineFacts{})}, opts...)
	}
	return NewAnalyzer(opts...)
}
