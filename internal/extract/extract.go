// Package extract turns uploaded answer sheets and question papers into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat is returned for file extensions no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Extractor returns the text of a document as one block, one line per
// paragraph or row, pages joined with newlines.
type Extractor interface {
	Extract(ctx context.Context, content []byte, filename string) (string, error)
}

// FormatFunc extracts text from one file format.
type FormatFunc func(content []byte) (string, error)

// Registry dispatches on the lower-cased filename extension.
type Registry struct {
	formats map[string]FormatFunc
}

// New returns a Registry handling pdf, docx, doc and txt files.
func New() *Registry {
	r := &Registry{formats: make(map[string]FormatFunc)}
	r.Register("pdf", PDF)
	r.Register("docx", DOCX)
	r.Register("doc", DOCX)
	r.Register("txt", Plain)
	return r
}

// Register installs fn for the given extension, replacing any previous one.
func (r *Registry) Register(ext string, fn FormatFunc) {
	r.formats[strings.ToLower(strings.TrimPrefix(ext, "."))] = fn
}

// Supported reports whether filename has an extension the registry handles.
func (r *Registry) Supported(filename string) bool {
	_, ok := r.formats[Extension(filename)]
	return ok
}

// Extract implements Extractor.
func (r *Registry) Extract(ctx context.Context, content []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := Extension(filename)
	fn, ok := r.formats[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	return text, nil
}

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

// Plain treats content as UTF-8 text.
func Plain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), ""), nil
	}
	return string(content), nil
}
