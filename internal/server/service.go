// Package server exposes the HTTP API: OAuth flows for the two providers,
// mailbox discovery, attachment processing and the review endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/auth"
	"github.com/thevitaly/payme-smart/internal/common"
	"github.com/thevitaly/payme-smart/internal/dropbox"
	"github.com/thevitaly/payme-smart/internal/entity"
	"github.com/thevitaly/payme-smart/internal/gmail"
	"github.com/thevitaly/payme-smart/internal/llm"
	"github.com/thevitaly/payme-smart/internal/pipeline"
	"github.com/thevitaly/payme-smart/internal/repository"
	"github.com/thevitaly/payme-smart/internal/review"
)

// Deps are the collaborators the HTTP layer dispatches into.
type Deps struct {
	Tokens      *auth.Store
	Mail        *gmail.Connector
	Processor   *pipeline.Processor
	Workflow    *review.Workflow
	Audit       repository.AuditRepository
	Blobs       *dropbox.Client
	FrontendURL string

	// Identity resolves the account email after a Gmail code exchange.
	// Defaults to the live userinfo call; tests inject a stub.
	Identity auth.IdentityFunc
}

// Server is the gin application.
type Server struct {
	deps   Deps
	engine *gin.Engine
	log    *zap.Logger
}

func New(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Identity == nil {
		deps.Identity = func(ctx context.Context, tok *oauth2.Token) (string, error) {
			return gmail.Identity(ctx, tok)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestLogger(logger), gin.Recovery())

	s := &Server{deps: deps, engine: engine, log: logger}
	s.routes()
	return s
}

// Router exposes the engine for httptest.
func (s *Server) Router() http.Handler { return s.engine }

func (s *Server) routes() {
	g := s.engine.Group("/api/gmail")
	{
		g.GET("/auth-url", s.gmailAuthURL)
		g.GET("/callback", s.gmailCallback)
		g.GET("/status", s.gmailStatus)
		g.POST("/disconnect", s.gmailDisconnect)
		g.POST("/fetch-emails", s.fetchEmails)
		g.POST("/process-attachment", s.processAttachment)
		g.POST("/process-email-text", s.processEmailText)
		g.POST("/accept-invoice", s.acceptInvoice)
		g.POST("/reject-invoice", s.rejectInvoice)
		g.GET("/audit", s.auditTrail)
	}
	d := s.engine.Group("/api/dropbox")
	{
		d.GET("/auth-url", s.dropboxAuthURL)
		d.GET("/callback", s.dropboxCallback)
		d.GET("/status", s.dropboxStatus)
	}
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// fail maps application errors onto HTTP statuses with a uniform {error} body.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	case errors.Is(err, common.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound), errors.Is(err, review.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, review.ErrAlreadyDecided):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// --- OAuth: Gmail ---

func (s *Server) gmailAuthURL(c *gin.Context) {
	url, err := s.deps.Tokens.AuthCodeURL(constants.ProviderGmail)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authUrl": url})
}

func (s *Server) gmailCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		fail(c, common.WrapError(common.ErrInvalidInput, "missing code parameter"))
		return
	}
	tok, err := s.deps.Tokens.Exchange(c.Request.Context(), constants.ProviderGmail, code, s.deps.Identity)
	if err != nil {
		s.log.Error("gmail callback exchange failed", zap.Error(err))
		c.Redirect(http.StatusFound, s.deps.FrontendURL+"?gmail=error")
		return
	}
	s.log.Info("gmail connected", zap.String("identity", tok.Identity))
	c.Redirect(http.StatusFound, s.deps.FrontendURL+"?gmail=connected")
}

func (s *Server) gmailStatus(c *gin.Context) {
	tok, err := s.deps.Tokens.Load(c.Request.Context(), constants.ProviderGmail)
	if err != nil {
		fail(c, err)
		return
	}
	if tok == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "email": tok.Identity})
}

func (s *Server) gmailDisconnect(c *gin.Context) {
	if err := s.deps.Tokens.Disconnect(c.Request.Context(), constants.ProviderGmail); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}

// --- OAuth: Dropbox ---

func (s *Server) dropboxAuthURL(c *gin.Context) {
	url, err := s.deps.Tokens.AuthCodeURL(constants.ProviderDropbox)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authUrl": url})
}

func (s *Server) dropboxCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		fail(c, common.WrapError(common.ErrInvalidInput, "missing code parameter"))
		return
	}
	_, err := s.deps.Tokens.Exchange(c.Request.Context(), constants.ProviderDropbox, code, nil)
	if err != nil {
		s.log.Error("dropbox callback exchange failed", zap.Error(err))
		c.Redirect(http.StatusFound, s.deps.FrontendURL+"?dropbox=error")
		return
	}
	c.Redirect(http.StatusFound, s.deps.FrontendURL+"?dropbox=connected")
}

func (s *Server) dropboxStatus(c *gin.Context) {
	status := s.deps.Blobs.Status(c.Request.Context())
	c.JSON(http.StatusOK, status)
}

// --- Mailbox ---

type fetchEmailsRequest struct {
	StartDate  string `json:"startDate" binding:"required"`
	EndDate    string `json:"endDate" binding:"required"`
	MaxResults int    `json:"maxResults"`
}

func (s *Server) fetchEmails(c *gin.Context) {
	var req fetchEmailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, common.WrapError(common.ErrInvalidInput, err.Error()))
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		fail(c, common.WrapError(common.ErrInvalidInput, "startDate must be YYYY-MM-DD"))
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		fail(c, common.WrapError(common.ErrInvalidInput, "endDate must be YYYY-MM-DD"))
		return
	}

	emails, err := s.deps.Mail.FindCandidates(c.Request.Context(), start, end, req.MaxResults)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(emails), "emails": emails})
}

// --- Processing ---

type attachmentRequest struct {
	Filename     string `json:"filename" binding:"required"`
	MimeType     string `json:"mimeType"`
	AttachmentID string `json:"attachmentId" binding:"required"`
}

type processAttachmentRequest struct {
	MessageID  string            `json:"messageId" binding:"required"`
	Subject    string            `json:"subject"`
	From       string            `json:"from"`
	Date       string            `json:"date"`
	Attachment attachmentRequest `json:"attachment" binding:"required"`
}

func (s *Server) processAttachment(c *gin.Context) {
	var req processAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, common.WrapError(common.ErrInvalidInput, err.Error()))
		return
	}
	msgDate, _ := time.Parse(time.RFC3339, req.Date)
	msg := &entity.CandidateMessage{
		ID:      req.MessageID,
		Subject: req.Subject,
		From:    req.From,
		Date:    msgDate,
	}
	att := &entity.AttachmentRef{
		Filename:     req.Attachment.Filename,
		MimeType:     req.Attachment.MimeType,
		AttachmentID: req.Attachment.AttachmentID,
	}

	result, err := s.deps.Processor.ProcessAttachment(c.Request.Context(), msg, att)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"dropboxUrl":   result.BlobURL,
		"dropboxPath":  result.BlobPath,
		"extraction":   result.Extraction,
		"reviewItemId": result.ItemID,
	})
}

type processEmailTextRequest struct {
	MessageID string `json:"messageId" binding:"required"`
	Subject   string `json:"subject"`
	From      string `json:"from"`
	BodyText  string `json:"bodyText" binding:"required"`
	Date      string `json:"date"`
}

func (s *Server) processEmailText(c *gin.Context) {
	var req processEmailTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, common.WrapError(common.ErrInvalidInput, err.Error()))
		return
	}
	msgDate, _ := time.Parse(time.RFC3339, req.Date)
	msg := &entity.CandidateMessage{
		ID:       req.MessageID,
		Subject:  req.Subject,
		From:     req.From,
		Date:     msgDate,
		BodyText: req.BodyText,
	}

	result := s.deps.Processor.ProcessEmailText(c.Request.Context(), msg)

	preview := llm.Truncate(req.BodyText, 500)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"extraction":   result.Extraction,
		"emailText":    preview,
		"reviewItemId": result.ItemID,
	})
}

// --- Review ---

type acceptInvoiceRequest struct {
	ItemID        string   `json:"itemId" binding:"required"`
	Amount        *float64 `json:"amount"`
	Currency      string   `json:"currency"`
	Description   string   `json:"description"`
	CategoryID    *int64   `json:"categoryId"`
	SubcategoryID *int64   `json:"subcategoryId"`
	BodyText      string   `json:"bodyText"`
}

func (s *Server) acceptInvoice(c *gin.Context) {
	var req acceptInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, common.WrapError(common.ErrInvalidInput, err.Error()))
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		fail(c, common.WrapError(common.ErrInvalidInput, "itemId must be a UUID"))
		return
	}

	expense, err := s.deps.Workflow.Accept(c.Request.Context(), &review.AcceptRequest{
		ItemID:        itemID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		BodyText:      req.BodyText,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "expenseId": expense.ID})
}

type rejectInvoiceRequest struct {
	ItemID string `json:"itemId" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) rejectInvoice(c *gin.Context) {
	var req rejectInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, common.WrapError(common.ErrInvalidInput, err.Error()))
		return
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		fail(c, common.WrapError(common.ErrInvalidInput, "itemId must be a UUID"))
		return
	}
	if err := s.deps.Workflow.Reject(c.Request.Context(), &review.RejectRequest{
		ItemID: itemID,
		Reason: req.Reason,
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) auditTrail(c *gin.Context) {
	records, err := s.deps.Audit.ListRecent(c.Request.Context(), 100)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
}
