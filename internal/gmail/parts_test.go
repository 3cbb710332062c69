package gmail

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/thevitaly/payme-smart/internal/entity"
)

func TestExtractAttachments(t *testing.T) {
	root := &entity.MessagePart{
		MimeType: "multipart/mixed",
		Children: []*entity.MessagePart{
			{MimeType: "text/plain", Body: "hello"},
			{
				MimeType: "multipart/alternative",
				Children: []*entity.MessagePart{
					{MimeType: "application/pdf", Filename: "nested.pdf", AttachmentID: "att-1", SizeBytes: 100},
				},
			},
			{MimeType: "application/pdf", Filename: "top.pdf", AttachmentID: "att-2"},
			{MimeType: "image/png", Filename: "logo.png", AttachmentID: "att-3"},
			{MimeType: "application/pdf", Filename: "no-id.pdf"},
			{MimeType: "application/pdf", AttachmentID: "att-4"},
		},
	}

	got := ExtractAttachments(root)
	if len(got) != 2 {
		t.Fatalf("got %d attachments, want 2: %+v", len(got), got)
	}
	// children walk before the parent's own leaves
	if got[0].Filename != "nested.pdf" || got[1].Filename != "top.pdf" {
		t.Errorf("unexpected order: %q, %q", got[0].Filename, got[1].Filename)
	}
	if got[0].AttachmentID != "att-1" {
		t.Errorf("AttachmentID = %q, want att-1", got[0].AttachmentID)
	}
}

func TestExtractBodyText(t *testing.T) {
	tests := []struct {
		name string
		root *entity.MessagePart
		want string
	}{
		{
			name: "plain preferred over html",
			root: &entity.MessagePart{Children: []*entity.MessagePart{
				{MimeType: "text/plain", Body: "plain body"},
				{MimeType: "text/html", Body: "<p>html body</p>"},
			}},
			want: "plain body",
		},
		{
			name: "html fallback strips tags",
			root: &entity.MessagePart{Children: []*entity.MessagePart{
				{MimeType: "text/html", Body: "<div>Invoice   <b>attached</b></div>"},
			}},
			want: "Invoice attached",
		},
		{
			name: "no textual part",
			root: &entity.MessagePart{Children: []*entity.MessagePart{
				{MimeType: "application/pdf", Filename: "a.pdf", AttachmentID: "x"},
			}},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractBodyText(tt.root); got != tt.want {
				t.Errorf("ExtractBodyText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBodyTextTruncates(t *testing.T) {
	root := &entity.MessagePart{Children: []*entity.MessagePart{
		{MimeType: "text/plain", Body: strings.Repeat("a", BodyTextLimit+500)},
	}}
	if got := ExtractBodyText(root); len(got) != BodyTextLimit {
		t.Errorf("len = %d, want %d", len(got), BodyTextLimit)
	}
}

func TestExtractBodyTextTruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes so the byte cap lands mid-rune
	root := &entity.MessagePart{Children: []*entity.MessagePart{
		{MimeType: "text/plain", Body: strings.Repeat("€", BodyTextLimit)},
	}}
	got := ExtractBodyText(root)
	if len(got) > BodyTextLimit {
		t.Errorf("len = %d, want at most %d", len(got), BodyTextLimit)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation produced invalid UTF-8")
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<html><body>Total:\n\n  <b>42.00</b> EUR</body></html>")
	if got != "Total: 42.00 EUR" {
		t.Errorf("StripHTML = %q", got)
	}
}
