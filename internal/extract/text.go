package extract

import (
	"errors"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("file is not valid UTF-8")

// extractTXT decodes the content as UTF-8 text.
func extractTXT(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", errInvalidUTF8
	}
	return string(content), nil
}
