// Package extract converts uploaded files into plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when a file's extension has no extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// SupportedExtensions lists the extensions Extract can handle, lower-cased.
var SupportedExtensions = []string{".pdf", ".docx", ".txt"}

// Error wraps an underlying parse or decode failure with the filename.
type Error struct {
	Filename string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extracting text from %s: %v", e.Filename, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Supported reports whether the filename carries a supported extension.
func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Extract converts raw file content into plain text, dispatching on the
// filename's extension. Per-unit text (pages for PDF, paragraphs for DOCX)
// is joined by newlines. The result may be empty; callers decide whether an
// empty document is an error.
func Extract(content []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".txt":
		text, err = extractTXT(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", &Error{Filename: filename, Err: err}
	}
	return text, nil
}
