package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/auth"
	"github.com/thevitaly/payme-smart/internal/common"
	"github.com/thevitaly/payme-smart/internal/docext"
	"github.com/thevitaly/payme-smart/internal/dropbox"
	"github.com/thevitaly/payme-smart/internal/gmail"
	"github.com/thevitaly/payme-smart/internal/llm/openai"
	"github.com/thevitaly/payme-smart/internal/pipeline"
	"github.com/thevitaly/payme-smart/internal/repository"
	"github.com/thevitaly/payme-smart/internal/review"
	"github.com/thevitaly/payme-smart/internal/server"
)

func main() {
	// Logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()
	slogger := slog.Default()

	// Config
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// DB pool
	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, slogger)
	if err != nil {
		log.Fatalf("creating DB pool: %v", err)
	}
	defer repository.Close(pool, slogger)

	if err := repository.HealthCheck(ctx, pool, 3*time.Second, slogger); err != nil {
		log.Fatalf("DB health failed: %v", err)
	}
	log.Infow("DB health OK")

	if err := repository.Migrate(ctx, pool, slogger); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Repositories
	tokenRepo := repository.NewTokenRepository(pool, slogger)
	expenseRepo := repository.NewExpenseRepository(pool, slogger)
	auditRepo := repository.NewAuditRepository(pool, slogger)

	// OAuth token store
	tokens := auth.NewStore(tokenRepo,
		auth.GoogleOAuthConfig(cfg.Google),
		auth.DropboxOAuthConfig(cfg.Dropbox),
		cfg.Dropbox.AccessToken,
		slogger,
	)

	// Mailbox connector
	mail := gmail.NewConnector(gmail.NewAPIFactory(tokens.TokenSourceFunc(constants.ProviderGmail)), slogger)

	// Blob store
	blobs := dropbox.NewClient(tokens, dropbox.Config{Folder: cfg.Dropbox.UploadFolder}, nil, slogger)

	// Extraction model
	extractor, err := openai.NewClient(openai.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, nil, slogger)
	if err != nil {
		log.Fatalf("llm client: %v", err)
	}

	// Local text adapters
	docs := docext.NewExtractor(docext.Config{Pdftotext: cfg.Extract.Pdftotext}, nil, slogger)

	// Review workflow
	items := review.NewStore()
	workflow := review.NewWorkflow(items, expenseRepo, auditRepo, slogger)

	// Pipeline
	proc := pipeline.NewProcessor(mail, blobs, docs, extractor, items, slogger)

	// HTTP server
	app := server.New(server.Deps{
		Tokens:      tokens,
		Mail:        mail,
		Processor:   proc,
		Workflow:    workflow,
		Audit:       auditRepo,
		Blobs:       blobs,
		FrontendURL: cfg.Server.FrontendURL,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("HTTP serving on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	fmt.Println("stopped.")
}
