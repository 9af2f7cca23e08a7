package extract

import (
	"path/filepath"
	"strings"
)

// DocType is the closed set of document formats the extractor understands.
type DocType int

const (
	// Unknown is the zero value; it never maps to a strategy.
	Unknown DocType = iota
	// Text is UTF-8 plain text or markdown.
	Text
	// PDF is a Portable Document Format file.
	PDF
	// Spreadsheet is an Office Open XML workbook (.xlsx).
	Spreadsheet
	// CSV is comma-separated values.
	CSV
	// WordDocument is an Office Open XML word-processing document (.docx).
	WordDocument
	// JSON is a JSON document.
	JSON
)

// tagTypes maps normalised extension tags to their DocType.
var tagTypes = map[string]DocType{
	".txt":  Text,
	".md":   Text,
	".pdf":  PDF,
	".xlsx": Spreadsheet,
	".csv":  CSV,
	".docx": WordDocument,
	".json": JSON,
}

// String returns a short lowercase name for the type.
func (t DocType) String() string {
	switch t {
	case Text:
		return "text"
	case PDF:
		return "pdf"
	case Spreadsheet:
		return "spreadsheet"
	case CSV:
		return "csv"
	case WordDocument:
		return "docx"
	case JSON:
		return "json"
	default:
		return "unknown"
	}
}

// NormaliseTag lowercases tag and ensures it starts with a dot.
// "PDF", ".pdf" and "pdf" all become ".pdf".
func NormaliseTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || strings.HasPrefix(tag, ".") {
		return tag
	}
	return "." + tag
}

// ParseDocType resolves a type tag to a DocType. The second return value is
// false when the tag is not supported.
func ParseDocType(tag string) (DocType, bool) {
	t, ok := tagTypes[NormaliseTag(tag)]
	return t, ok
}

// TagFromName derives the type tag from a filename-like document identifier.
func TagFromName(name string) string {
	return NormaliseTag(filepath.Ext(name))
}

// Supported reports whether the document name carries a supported type tag.
func Supported(name string) bool {
	_, ok := ParseDocType(TagFromName(name))
	return ok
}
