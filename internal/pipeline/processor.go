// Package pipeline runs the end-to-end attachment flow: download, blob
// upload, text/vision extraction, review registration.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/docext"
	"github.com/thevitaly/payme-smart/internal/dropbox"
	"github.com/thevitaly/payme-smart/internal/entity"
	"github.com/thevitaly/payme-smart/internal/gmail"
	"github.com/thevitaly/payme-smart/internal/llm"
	"github.com/thevitaly/payme-smart/internal/review"
)

// AttachmentResult is the outcome of processing one attachment: where its
// bytes went and what the model made of them.
type AttachmentResult struct {
	Filename   string               `json:"filename"`
	BlobPath   string               `json:"dropboxPath,omitempty"`
	BlobURL    string               `json:"dropboxUrl,omitempty"`
	Extraction llm.ExtractionResult `json:"extraction"`
	ItemID     string               `json:"reviewItemId,omitempty"`
}

// BatchResult summarizes a date-range run.
type BatchResult struct {
	Candidates int                `json:"candidates"`
	Processed  int                `json:"processed"`
	Failed     int                `json:"failed"`
	Results    []AttachmentResult `json:"results"`
}

// Processor wires the mailbox, blob store, text adapters and model together.
// Batch runs are strictly sequential; one slow or broken item never hides the
// rest, because every failure is captured in that item's result.
type Processor struct {
	mail      *gmail.Connector
	blobs     *dropbox.Client
	docs      *docext.Extractor
	extractor llm.Extractor
	items     *review.Store
	logger    *slog.Logger
}

func NewProcessor(mail *gmail.Connector, blobs *dropbox.Client, docs *docext.Extractor, extractor llm.Extractor, items *review.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		mail:      mail,
		blobs:     blobs,
		docs:      docs,
		extractor: extractor,
		items:     items,
		logger:    logger,
	}
}

// ProcessAttachment runs the full flow for one attachment and registers a
// pending review item. Extraction failures still produce a review item so the
// operator can see what happened; only download failures abort.
func (p *Processor) ProcessAttachment(ctx context.Context, msg *entity.CandidateMessage, att *entity.AttachmentRef) (*AttachmentResult, error) {
	data, err := p.mail.DownloadAttachment(ctx, msg.ID, att.AttachmentID)
	if err != nil {
		p.logger.Error("pipeline.download.failed", "message_id", msg.ID, "filename", att.Filename, "error", err)
		return nil, err
	}

	upload := p.blobs.Upload(ctx, data, att.Filename)
	extraction := p.extract(ctx, data, att)

	item := &entity.ReviewItem{
		SourceMessageID: msg.ID,
		Subject:         msg.Subject,
		From:            msg.From,
		MessageDate:     msg.Date,
		Filename:        att.Filename,
		Status:          constants.ReviewPending,
		CreatedAt:       time.Now(),
	}
	if upload.Success {
		item.Stored = &entity.StoredDocument{
			BlobPath:     upload.Path,
			ShareableURL: upload.URL,
			Filename:     att.Filename,
		}
	}
	if extraction.Success {
		if raw, err := json.Marshal(extraction.Data); err == nil {
			item.ExtractionJSON = raw
		}
	} else {
		item.ExtractionError = extraction.Error
	}
	p.items.Add(item)

	p.logger.Info("pipeline.attachment.done",
		"message_id", msg.ID, "filename", att.Filename,
		"uploaded", upload.Success, "extracted", extraction.Success,
		"item_id", item.ID)

	return &AttachmentResult{
		Filename:   att.Filename,
		BlobPath:   upload.Path,
		BlobURL:    upload.URL,
		Extraction: extraction,
		ItemID:     item.ID.String(),
	}, nil
}

// ProcessEmailText extracts invoice fields from the message body alone, for
// keyword-matched messages with no document attached.
func (p *Processor) ProcessEmailText(ctx context.Context, msg *entity.CandidateMessage) *AttachmentResult {
	extraction := p.extractor.ExtractFromEmail(ctx, msg.BodyText, msg.Subject, msg.From)

	item := &entity.ReviewItem{
		SourceMessageID: msg.ID,
		Subject:         msg.Subject,
		From:            msg.From,
		MessageDate:     msg.Date,
		Status:          constants.ReviewPending,
		CreatedAt:       time.Now(),
	}
	if extraction.Success {
		if raw, err := json.Marshal(extraction.Data); err == nil {
			item.ExtractionJSON = raw
		}
	} else {
		item.ExtractionError = extraction.Error
	}
	p.items.Add(item)

	return &AttachmentResult{
		Filename:   "email_text",
		Extraction: extraction,
		ItemID:     item.ID.String(),
	}
}

// RunBatch discovers candidates over the date range and processes every
// document attachment sequentially; keyword-only messages go through the
// email-text path. Per-item failures increment Failed and the run continues.
func (p *Processor) RunBatch(ctx context.Context, start, end time.Time, maxResults int) (*BatchResult, error) {
	candidates, err := p.mail.FindCandidates(ctx, start, end, maxResults)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{Candidates: len(candidates)}
	for i := range candidates {
		msg := &candidates[i]
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !msg.HasDocuments {
			r := p.ProcessEmailText(ctx, msg)
			res.Results = append(res.Results, *r)
			if r.Extraction.Success {
				res.Processed++
			} else {
				res.Failed++
			}
			continue
		}
		for j := range msg.Attachments {
			att := &msg.Attachments[j]
			r, err := p.ProcessAttachment(ctx, msg, att)
			if err != nil {
				res.Failed++
				res.Results = append(res.Results, AttachmentResult{
					Filename:   att.Filename,
					Extraction: llm.Failure(att.Filename, err.Error()),
				})
				continue
			}
			res.Results = append(res.Results, *r)
			if r.Extraction.Success {
				res.Processed++
			} else {
				res.Failed++
			}
		}
	}
	p.logger.Info("pipeline.batch.done",
		"candidates", res.Candidates, "processed", res.Processed, "failed", res.Failed)
	return res, nil
}

// extract routes by document kind: images go to the vision call, text-bearing
// kinds run through the local adapters first. Adapter failures become Failure
// results without touching the model.
func (p *Processor) extract(ctx context.Context, data []byte, att *entity.AttachmentRef) llm.ExtractionResult {
	kind := constants.ClassifyDocument(att.Filename, att.MimeType)
	if kind == constants.IMAGE {
		return p.extractor.ExtractFromImage(ctx, data, att.MimeType, att.Filename)
	}

	text, err := p.docs.Text(ctx, data, kind, att.Filename, att.MimeType)
	if err != nil {
		return llm.Failure(att.Filename, err.Error())
	}
	return p.extractor.ExtractFromText(ctx, text, att.Filename)
}
