package codegen

import (
	"regexp"
	"strings"
)

// DefaultLanguage is the fence tag preferred by Extract.
const DefaultLanguage = "lua"

const fence = "```"

var genericFence = regexp.MustCompile(fence + `([\s\S]*?)` + fence)

// Extractor pulls source code out of fenced markdown. It is pure and safe
// for concurrent use.
type Extractor struct {
	lang   string
	tagged *regexp.Regexp
}

// NewExtractor returns an Extractor that prefers fences tagged with lang.
// An empty lang only looks for generic fences.
func NewExtractor(lang string) *Extractor {
	e := &Extractor{lang: lang}
	if lang != "" {
		e.tagged = regexp.MustCompile(fence + regexp.QuoteMeta(lang) + `([\s\S]*?)` + fence)
	}
	return e
}

// Language returns the preferred fence tag.
func (e *Extractor) Language() string { return e.lang }

// Extract returns the trimmed body of the first fence tagged with the
// extractor's language, else the trimmed body of the first fence of any
// kind, else text unchanged.
func (e *Extractor) Extract(text string) string {
	if e.tagged != nil {
		if m := e.tagged.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	if m := genericFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

var defaultExtractor = NewExtractor(DefaultLanguage)

// Extract extracts code with the default language.
func Extract(text string) string {
	return defaultExtractor.Extract(text)
}
