package constants

import (
	"path/filepath"
	"strings"
)

// DocumentKind is the canonical classification for an inbound document.
type DocumentKind string

const (
	PDF         DocumentKind = "PDF"
	SPREADSHEET DocumentKind = "SPREADSHEET"
	IMAGE       DocumentKind = "IMAGE"
	WORD        DocumentKind = "WORD"
	UNKNOWN     DocumentKind = "UNKNOWN"
)

// AllowedMimeTypes holds the document MIME types accepted from mail attachments.
// Images are deliberately excluded here: signature logos and inline pictures
// drown the real documents in noise.
var AllowedMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/vnd.oasis.opendocument.text":                           {},
	"application/vnd.oasis.opendocument.spreadsheet":                    {},
}

// AllowedExtensions is the fallback check when the MIME type is missing or generic.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"doc":  {},
	"docx": {},
	"xls":  {},
	"xlsx": {},
	"odt":  {},
	"ods":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedAttachment reports whether an attachment passes the document
// allowlist, by MIME type first and extension as fallback.
func IsAllowedAttachment(filename, mimeType string) bool {
	if _, ok := AllowedMimeTypes[strings.ToLower(mimeType)]; ok {
		return true
	}
	ext := NormalizeExt(filepath.Ext(filename))
	_, ok := AllowedExtensions[ext]
	return ok
}

// ClassifyDocument maps a filename and MIME type to a DocumentKind.
// MIME type is authoritative; the extension decides when the MIME type
// is absent or generic (application/octet-stream from some mailers).
func ClassifyDocument(filename, mimeType string) DocumentKind {
	mt := strings.ToLower(mimeType)
	name := strings.ToLower(filename)

	if mt == "application/pdf" || strings.HasSuffix(name, ".pdf") {
		return PDF
	}
	if mt == "application/vnd.ms-excel" ||
		mt == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" ||
		mt == "application/vnd.oasis.opendocument.spreadsheet" ||
		strings.HasSuffix(name, ".xls") || strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".ods") {
		return SPREADSHEET
	}
	if mt == "application/msword" ||
		mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" ||
		mt == "application/vnd.oasis.opendocument.text" ||
		strings.HasSuffix(name, ".doc") || strings.HasSuffix(name, ".docx") || strings.HasSuffix(name, ".odt") {
		return WORD
	}
	if strings.HasPrefix(mt, "image/") ||
		strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") ||
		strings.HasSuffix(name, ".png") || strings.HasSuffix(name, ".gif") {
		return IMAGE
	}
	return UNKNOWN
}
