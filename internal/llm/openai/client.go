package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thevitaly/payme-smart/internal/llm"
)

// ExtractFromText implements llm.Extractor for text-bearing documents.
func (c *Client) ExtractFromText(ctx context.Context, text, filename string) llm.ExtractionResult {
	prompt := llm.BuildDocumentPrompt(text, "text")
	return c.extract(ctx, filename, []map[string]any{
		{"role": "user", "content": prompt},
	})
}

// ExtractFromImage sends the raw bytes as a high-detail image input alongside
// the same instruction text.
func (c *Client) ExtractFromImage(ctx context.Context, data []byte, mimeType, filename string) llm.ExtractionResult {
	imageURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	content := []map[string]any{
		{
			"type": "image_url",
			"image_url": map[string]any{
				"url":    imageURL,
				"detail": "high",
			},
		},
		{
			"type": "text",
			"text": llm.BuildImagePrompt(),
		},
	}
	return c.extract(ctx, filename, []map[string]any{
		{"role": "user", "content": content},
	})
}

// ExtractFromEmail handles messages with no attachment; the vendor hint is
// the From header.
func (c *Client) ExtractFromEmail(ctx context.Context, body, subject, from string) llm.ExtractionResult {
	prompt := llm.BuildEmailPrompt(body, subject, from)
	return c.extract(ctx, "email_text", []map[string]any{
		{"role": "user", "content": prompt},
	})
}

// extract issues one chat/completions call and parses the reply. Transport
// and model failures become the Failure variant; nothing escapes as an error.
func (c *Client) extract(ctx context.Context, filename string, messages []map[string]any) llm.ExtractionResult {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"filename", filename,
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
		"messages":    messages,
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Failure(filename, err.Error())
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Failure(filename, llm.ParseErrMsg)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.extract.no_choices", "req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds())
		return llm.Failure(filename, llm.ParseErrMsg)
	}

	result := llm.ParseModelResponse(cc.Choices[0].Message.Content, filename)
	if result.Success {
		c.log.Info("llm.extract.ok",
			"req_id", rid,
			"filename", filename,
			"is_invoice", result.Data.IsInvoice,
			"currency", result.Data.Currency,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	} else {
		c.log.Warn("llm.extract.unparseable",
			"req_id", rid, "filename", filename, "error", result.Error,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return result
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
