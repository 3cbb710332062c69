package gmail

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/entity"
)

// BodyTextLimit caps how much body text a candidate message snapshot carries.
const BodyTextLimit = 5000

var (
	htmlTagRE    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// ExtractAttachments walks a message part tree depth-first and collects
// references to allow-listed document attachments. A part counts only when it
// has both a filename and a provider attachment id.
func ExtractAttachments(part *entity.MessagePart) []entity.AttachmentRef {
	var out []entity.AttachmentRef
	collectAttachments(part, &out)
	return out
}

func collectAttachments(part *entity.MessagePart, out *[]entity.AttachmentRef) {
	if part == nil {
		return
	}
	for _, child := range part.Children {
		collectAttachments(child, out)
	}
	if part.Filename == "" || part.AttachmentID == "" {
		return
	}
	if !constants.IsAllowedAttachment(part.Filename, part.MimeType) {
		return
	}
	*out = append(*out, entity.AttachmentRef{
		Filename:     part.Filename,
		MimeType:     part.MimeType,
		SizeBytes:    part.SizeBytes,
		AttachmentID: part.AttachmentID,
	})
}

// ExtractBodyText returns up to BodyTextLimit characters of message body,
// preferring text/plain parts; text/html is the fallback with tags stripped
// and whitespace collapsed. Returns "" when no textual part exists.
func ExtractBodyText(part *entity.MessagePart) string {
	var b strings.Builder
	collectBodyText(part, &b)
	text := b.String()
	if len(text) > BodyTextLimit {
		cut := BodyTextLimit
		// never split a multibyte rune at the cap
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func collectBodyText(part *entity.MessagePart, b *strings.Builder) {
	if part == nil {
		return
	}
	if part.MimeType == "text/plain" && part.Body != "" {
		b.WriteString(part.Body)
	}
	if part.MimeType == "text/html" && part.Body != "" && b.Len() == 0 {
		b.WriteString(StripHTML(part.Body))
	}
	for _, child := range part.Children {
		collectBodyText(child, b)
	}
}

// StripHTML removes tags and collapses runs of whitespace.
func StripHTML(s string) string {
	s = htmlTagRE.ReplaceAllString(s, " ")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
