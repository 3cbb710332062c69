package llm

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ParseErrMsg is the uniform failure message for unparseable model replies.
const ParseErrMsg = "could not parse JSON response"

// ParseModelResponse locates the first top-level JSON object in the model's
// textual reply and coerces it into InvoiceFields. Malformed output yields
// the Failure variant; this function never returns an error.
func ParseModelResponse(content, filename string) ExtractionResult {
	raw, ok := firstJSONObject(content)
	if !ok {
		return Failure(filename, ParseErrMsg)
	}
	if err := ValidateJSONAgainstSchema(BuildInvoiceJSONSchema(), []byte(raw)); err != nil {
		return Failure(filename, ParseErrMsg)
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Failure(filename, ParseErrMsg)
	}

	fields := &InvoiceFields{
		Sender:        stringOrNil(m["sender"]),
		Amount:        amountOrNil(m["amount"]),
		Currency:      currencyOrDefault(m["currency"]),
		Date:          stringOrNil(m["date"]),
		Description:   stringOrNil(m["description"]),
		InvoiceNumber: stringOrNil(m["invoiceNumber"]),
		IsInvoice:     m["isInvoice"] != false,
	}
	return SuccessResult(filename, fields)
}

// firstJSONObject scans for the first balanced top-level {...}, respecting
// string literals and escapes.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func stringOrNil(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// amountOrNil coerces the amount to a number: native numbers pass through,
// numeric strings are parsed, anything else becomes null.
func amountOrNil(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}

func currencyOrDefault(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return strings.ToUpper(strings.TrimSpace(s))
	}
	return "EUR"
}
