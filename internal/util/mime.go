package util

import (
	"bufio"
	"net/http"
	"strings"
)

const sniffLen = 512

// DetectMIME sniffs the content type from the first bytes of the reader
// without consuming them. KML and KMZ cannot be told apart from generic
// XML/ZIP by content sniffing alone, so the filename extension is used to
// refine those two cases the way browsers and upload clients declare them.
func DetectMIME(r *bufio.Reader, filename string) (string, error) {
	head, err := r.Peek(sniffLen)
	if err != nil && len(head) == 0 {
		return "", err
	}

	detected := http.DetectContentType(head)
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(detected, ";", 2)[0]))

	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".kml") && (base == "text/xml" || base == "application/xml" || base == "text/plain"):
		return "application/vnd.google-earth.kml+xml", nil
	case strings.HasSuffix(lower, ".kmz") && base == "application/zip":
		return "application/vnd.google-earth.kmz", nil
	}

	return base, nil
}

// MIMECategory maps a MIME type to the per-user storage subdirectory.
func MIMECategory(mimeType string) string {
	cleaned := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(cleaned, "image/"):
		return "images"
	case cleaned == "application/pdf":
		return "pdfs"
	case cleaned == "application/vnd.google-earth.kml+xml":
		return "kmls"
	case cleaned == "application/vnd.google-earth.kmz":
		return "kmzs"
	default:
		return "others"
	}
}

// MIMEAllowed reports whether the detected type is on the configured
// allow-list. image/* entries on the list match by exact type.
func MIMEAllowed(mimeType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	cleaned := strings.ToLower(strings.TrimSpace(mimeType))
	for _, entry := range allowed {
		if strings.EqualFold(strings.TrimSpace(entry), cleaned) {
			return true
		}
	}

	return false
}

func IsImageMIME(mimeType string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasPrefix(cleaned, "image/")
}
