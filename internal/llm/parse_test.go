package llm

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseModelResponse(t *testing.T) {
	full := `{"sender":"Acme GmbH","amount":123.45,"currency":"eur","date":"2025-01-15","description":"Hosting Jan","invoiceNumber":"INV-7","isInvoice":true}`

	t.Run("clean object", func(t *testing.T) {
		res := ParseModelResponse(full, "a.pdf")
		if !res.Success {
			t.Fatalf("failed: %s", res.Error)
		}
		d := res.Data
		if d.Sender == nil || *d.Sender != "Acme GmbH" {
			t.Errorf("sender = %v", d.Sender)
		}
		if d.Amount == nil || *d.Amount != 123.45 {
			t.Errorf("amount = %v", d.Amount)
		}
		if d.Currency != "EUR" {
			t.Errorf("currency = %q, want uppercased EUR", d.Currency)
		}
		if d.InvoiceNumber == nil || *d.InvoiceNumber != "INV-7" {
			t.Errorf("invoiceNumber = %v", d.InvoiceNumber)
		}
		if !d.IsInvoice {
			t.Error("isInvoice should be true")
		}
		if res.Filename != "a.pdf" {
			t.Errorf("filename = %q", res.Filename)
		}
	})

	t.Run("object wrapped in prose and fences", func(t *testing.T) {
		res := ParseModelResponse("Here is the result:\n```json\n"+full+"\n```\nDone.", "a.pdf")
		if !res.Success {
			t.Fatalf("failed: %s", res.Error)
		}
	})

	t.Run("braces inside string literals", func(t *testing.T) {
		res := ParseModelResponse(`{"sender":"Brace {Corp}","amount":1,"currency":"EUR","date":null,"description":null,"invoiceNumber":null,"isInvoice":true}`, "x")
		if !res.Success {
			t.Fatalf("failed: %s", res.Error)
		}
		if *res.Data.Sender != "Brace {Corp}" {
			t.Errorf("sender = %q", *res.Data.Sender)
		}
	})
}

func TestParseModelResponseCoercions(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantAmount *float64
		wantCurr   string
		wantIsInv  bool
	}{
		{"amount as numeric string", `{"amount":"99.90","currency":"USD","isInvoice":true}`, f64(99.90), "USD", true},
		{"amount as garbage string", `{"amount":"N/A","currency":"USD","isInvoice":true}`, nil, "USD", true},
		{"amount null", `{"amount":null,"isInvoice":true}`, nil, "EUR", true},
		{"missing currency defaults EUR", `{"amount":5,"isInvoice":true}`, f64(5), "EUR", true},
		{"isInvoice false stays false", `{"amount":5,"isInvoice":false}`, f64(5), "EUR", false},
		{"isInvoice null counts as invoice", `{"amount":5,"isInvoice":null}`, f64(5), "EUR", true},
		{"isInvoice missing counts as invoice", `{"amount":5}`, f64(5), "EUR", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseModelResponse(tt.payload, "x")
			if !res.Success {
				t.Fatalf("failed: %s", res.Error)
			}
			d := res.Data
			switch {
			case tt.wantAmount == nil && d.Amount != nil:
				t.Errorf("amount = %v, want nil", *d.Amount)
			case tt.wantAmount != nil && (d.Amount == nil || *d.Amount != *tt.wantAmount):
				t.Errorf("amount = %v, want %v", d.Amount, *tt.wantAmount)
			}
			if d.Currency != tt.wantCurr {
				t.Errorf("currency = %q, want %q", d.Currency, tt.wantCurr)
			}
			if d.IsInvoice != tt.wantIsInv {
				t.Errorf("isInvoice = %v, want %v", d.IsInvoice, tt.wantIsInv)
			}
		})
	}
}

func TestParseModelResponseFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"no json at all", "I could not find any invoice data."},
		{"unbalanced braces", `{"amount": 5`},
		{"schema violation", `{"amount":[1,2],"isInvoice":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseModelResponse(tt.payload, "bad.pdf")
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Error != ParseErrMsg {
				t.Errorf("error = %q, want %q", res.Error, ParseErrMsg)
			}
			if res.Data != nil {
				t.Error("failure result must not carry data")
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", MaxDocumentChars+100)
	if got := Truncate(long, MaxDocumentChars); len(got) != MaxDocumentChars {
		t.Errorf("len = %d", len(got))
	}
	if got := Truncate("short", MaxDocumentChars); got != "short" {
		t.Errorf("got %q", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// Cyrillic runes are 2 bytes; an odd byte cap lands mid-rune
	long := strings.Repeat("счёт", 100)
	got := Truncate(long, 33)
	if len(got) > 33 {
		t.Errorf("len = %d, want at most 33", len(got))
	}
	if !utf8.ValidString(got) {
		t.Error("truncation produced invalid UTF-8")
	}
	if !strings.HasPrefix(long, got) {
		t.Error("result must be a prefix of the input")
	}
}

func TestBuildEmailPromptIncludesHeaders(t *testing.T) {
	p := BuildEmailPrompt("please pay 100 EUR", "Invoice 7", "billing@acme.test")
	for _, want := range []string{"Invoice 7", "billing@acme.test", "please pay 100 EUR"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func f64(v float64) *float64 { return &v }
