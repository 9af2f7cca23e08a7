// Package extract converts raw document bytes into plain text.
//
// Dispatch is driven purely by the type tag. Each DocType maps to one
// strategy in a lookup table; tags outside the table fail with
// ErrUnsupportedFormat. Decoder failures are reported as ErrExtractionFailed
// and never collapsed into empty text. Whether empty text is acceptable is
// the caller's decision.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat is returned for type tags with no extraction strategy.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrExtractionFailed is returned when the bytes cannot be decoded for
	// their declared type.
	ErrExtractionFailed = errors.New("extraction failed")
)

// UnsupportedFormatError carries the rejected type tag.
type UnsupportedFormatError struct {
	Tag string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("extract: unsupported format %q", e.Tag)
}

// Unwrap lets errors.Is match ErrUnsupportedFormat.
func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// ExtractionError carries the type tag and the decoder's underlying cause.
type ExtractionError struct {
	Tag string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %s: %v", e.Tag, e.Err)
}

// Is matches ErrExtractionFailed.
func (e *ExtractionError) Is(target error) bool { return target == ErrExtractionFailed }

// Unwrap exposes the underlying decoder error.
func (e *ExtractionError) Unwrap() error { return e.Err }

// strategy turns document bytes into plain text.
type strategy func(data []byte) (string, error)

var strategies = map[DocType]strategy{
	Text:         extractText,
	PDF:          extractPDF,
	Spreadsheet:  extractSpreadsheet,
	CSV:          extractCSV,
	WordDocument: extractDocx,
	JSON:         extractJSON,
}

// Extract decodes data according to tag (".pdf", "PDF", "csv", ...).
func Extract(data []byte, tag string) (string, error) {
	t, ok := ParseDocType(tag)
	if !ok {
		return "", &UnsupportedFormatError{Tag: tag}
	}
	return ExtractType(data, t)
}

// ExtractType decodes data with the strategy registered for t.
func ExtractType(data []byte, t DocType) (text string, err error) {
	fn, ok := strategies[t]
	if !ok {
		return "", &UnsupportedFormatError{Tag: t.String()}
	}

	// Third-party decoders occasionally panic on hostile input.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Tag: t.String(), Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()

	text, err = fn(data)
	if err != nil {
		return "", &ExtractionError{Tag: t.String(), Err: err}
	}
	return text, nil
}

func extractText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("content is not valid UTF-8")
	}
	return string(data), nil
}

func extractJSON(data []byte) (string, error) {
	if !json.Valid(data) {
		return "", errors.New("content is not valid JSON")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
