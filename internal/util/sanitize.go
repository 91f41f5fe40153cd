package util

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"presentation-api/pkg/apierror"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFilename normalizes a client-supplied filename so it is safe to use
// as the final path segment of a stored upload. The directory part of the
// stored path is always server-chosen; this only defends the basename.
func SanitizeFilename(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", apierror.New("BAD_REQUEST", "filename cannot be empty", "", http.StatusBadRequest)
	}

	if strings.Contains(trimmed, "\x00") {
		return "", apierror.New("BAD_REQUEST", "filename contains null bytes", trimmed, http.StatusBadRequest)
	}

	builder := strings.Builder{}
	builder.Grow(len(trimmed))
	for _, char := range trimmed {
		if unicode.IsControl(char) || unicode.Is(unicode.Cf, char) {
			continue
		}
		builder.WriteRune(char)
	}

	cleaned := strings.TrimSpace(invalidFilenameChars.ReplaceAllString(builder.String(), "_"))
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "", apierror.New("BAD_REQUEST", "filename is invalid after sanitization", trimmed, http.StatusBadRequest)
	}

	// Truncate by runes (not bytes) to avoid splitting multi-byte characters.
	runes := []rune(cleaned)
	if len(runes) > 200 {
		runes = runes[:200]
	}

	return string(runes), nil
}
