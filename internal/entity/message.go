package entity

import "time"

// AttachmentRef points at an attachment without holding its bytes;
// content is fetched lazily through the mailbox connector.
type AttachmentRef struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	SizeBytes    int64  `json:"size"`
	AttachmentID string `json:"attachmentId"`
}

// CandidateMessage is an immutable snapshot of a mailbox message at discovery
// time. ID is the provider-native message id.
type CandidateMessage struct {
	ID             string          `json:"id"`
	Subject        string          `json:"subject"`
	From           string          `json:"from"`
	Date           time.Time       `json:"date"`
	BodyText       string          `json:"bodyText"` // at most 5000 chars
	Attachments    []AttachmentRef `json:"attachments"`
	HasDocuments   bool            `json:"hasDocuments"`
	IsKeywordMatch bool            `json:"isKeywordMatch"`
}

// MessagePart is a provider-independent view of one node in a message's MIME
// tree. Body carries decoded textual content for leaf text parts.
type MessagePart struct {
	MimeType     string
	Filename     string
	AttachmentID string
	Body         string
	SizeBytes    int64
	Children     []*MessagePart
}
