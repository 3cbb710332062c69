package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Truncation limits for model input.
const (
	MaxDocumentChars = 6000
	MaxEmailChars    = 4000
)

const schemaInstructions = `Return ONLY a valid JSON object with these fields (use null if not found):

{
  "sender": "Company or person name who issued the invoice",
  "amount": 123.45,
  "currency": "EUR",
  "date": "2024-12-20",
  "description": "Brief description of what the invoice is for",
  "invoiceNumber": "Invoice number if visible",
  "isInvoice": true
}

Important:
- "sender" is the company/person who SENT the invoice (vendor/supplier), NOT the recipient
- "amount" must be a number (not string), representing the total amount to pay
- "date" must be in YYYY-MM-DD format
- "currency" should be 3-letter code (EUR, USD, etc.)
- "isInvoice" should be true if this looks like an invoice/receipt, false otherwise
- If you can't determine a value, use null`

// BuildDocumentPrompt is the instruction for text extracted from a document.
// sourceLabel distinguishes plain documents from spreadsheet-derived tables.
func BuildDocumentPrompt(text, sourceLabel string) string {
	var b strings.Builder
	b.WriteString("Analyze this invoice/receipt document ")
	b.WriteString(sourceLabel)
	b.WriteString(" and extract the following information.\n")
	b.WriteString(schemaInstructions)
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(Truncate(text, MaxDocumentChars))
	return b.String()
}

// BuildImagePrompt is the instruction that rides alongside image bytes on the
// vision call.
func BuildImagePrompt() string {
	return "Analyze this invoice/receipt document and extract the following information.\n" +
		schemaInstructions +
		"\n\nAnalyze the document now:"
}

// BuildEmailPrompt is the instruction for messages with no attachment; the
// vendor hint comes from the From header.
func BuildEmailPrompt(body, subject, from string) string {
	var b strings.Builder
	b.WriteString("Analyze this email text and extract payment/invoice information.\n")
	b.WriteString(schemaInstructions)
	fmt.Fprintf(&b, "\n- \"sender\" is the company/person requesting payment (from email header: %s)", from)
	fmt.Fprintf(&b, "\n\nEmail subject: %s\nEmail from: %s\nEmail text:\n%s",
		subject, from, Truncate(body, MaxEmailChars))
	return b.String()
}

// Truncate caps s at max bytes, backing off to a rune boundary so a
// multibyte character is never split at the cut.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
