package crawler

import (
	"mime"
	"strings"
)

// IsTextual reports whether a page body should be stored and parsed for links.
// A missing content type counts as textual. Stylesheets and scripts do not.
func IsTextual(contentType string) bool {
	mediaType := parseMediaType(contentType)
	return mediaType == "" || mediaType == "text/plain" || isMarkup(mediaType)
}

// IsMarkup reports whether a content type names an HTML or XML document.
func IsMarkup(contentType string) bool {
	return isMarkup(parseMediaType(contentType))
}

func isMarkup(mediaType string) bool {
	switch {
	case mediaType == "text/html", mediaType == "text/xml":
		return true
	case mediaType == "application/xml", mediaType == "application/xhtml+xml":
		return true
	default:
		return strings.HasSuffix(mediaType, "+xml") && !strings.HasPrefix(mediaType, "image/")
	}
}

// IsIndexableResource reports whether a resource HEAD response is worth an existence record.
func IsIndexableResource(contentType string) bool {
	mediaType := parseMediaType(contentType)
	for _, prefix := range []string{"image/", "text/", "application/", "font/"} {
		if strings.HasPrefix(mediaType, prefix) {
			return true
		}
	}
	return false
}

// ArchiveKey names the blob that holds a page body: sites/<site>/pages/<page><ext>.
func ArchiveKey(siteID, pageID, contentType string) string {
	ext := ".html"
	switch mediaType := parseMediaType(contentType); {
	case mediaType == "text/plain":
		ext = ".txt"
	case mediaType != "" && mediaType != "text/html" && mediaType != "application/xhtml+xml":
		ext = ".xml"
	}
	return "sites/" + siteID + "/pages/" + pageID + ext
}

func parseMediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
