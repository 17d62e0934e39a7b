package common

import (
	"errors"
	"html"
	"mime"
	"path/filepath"
)

// MaxTextLength is the storage limit for short text columns.
const MaxTextLength = 100

var (
	// ErrUnsafeText is returned when a text field contains markup characters.
	ErrUnsafeText = errors.New("field contains disallowed characters")

	// ErrTooLong is returned when a text field exceeds MaxTextLength.
	ErrTooLong = errors.New("field is too long")
)

// CheckSafeText rejects values containing characters that would need HTML
// escaping, and values longer than MaxTextLength.
func CheckSafeText(v string) error {
	if len(v) > MaxTextLength {
		return ErrTooLong
	}
	if len(v) != len(html.EscapeString(v)) {
		return ErrUnsafeText
	}
	return nil
}

// GuessContentType infers a MIME type from the filename extension. Unknown
// extensions fall back to application/octet-stream.
func GuessContentType(filename string) string {
	t := mime.TypeByExtension(filepath.Ext(filename))
	if t == "" {
		return "application/octet-stream"
	}
	return t
}
