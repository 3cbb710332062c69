package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/thevitaly/payme-smart/constants"
	"github.com/thevitaly/payme-smart/internal/auth"
	"github.com/thevitaly/payme-smart/internal/common"
	"github.com/thevitaly/payme-smart/internal/docext"
	"github.com/thevitaly/payme-smart/internal/dropbox"
	"github.com/thevitaly/payme-smart/internal/export"
	"github.com/thevitaly/payme-smart/internal/gmail"
	"github.com/thevitaly/payme-smart/internal/llm/openai"
	"github.com/thevitaly/payme-smart/internal/pipeline"
	"github.com/thevitaly/payme-smart/internal/repository"
	"github.com/thevitaly/payme-smart/internal/review"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		fromStr = flag.String("from", "", "from date YYYY-MM-DD (required)")
		toStr   = flag.String("to", "", "to date YYYY-MM-DD (required)")
		max     = flag.Int("max", 50, "maximum candidate messages")
		out     = flag.String("out", "", "write results to this XLSX file (optional)")
	)
	flag.Parse()

	if *fromStr == "" || *toStr == "" {
		printError("Error: --from and --to are required\n")
		os.Exit(1)
	}
	from, err := time.Parse("2006-01-02", *fromStr)
	if err != nil {
		printError("Error: invalid --from date format, use YYYY-MM-DD: %v\n", err)
		os.Exit(1)
	}
	to, err := time.Parse("2006-01-02", *toStr)
	if err != nil {
		printError("Error: invalid --to date format, use YYYY-MM-DD: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.Migrate(ctx, pool, logger); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	tokenRepo := repository.NewTokenRepository(pool, logger)
	tokens := auth.NewStore(tokenRepo,
		auth.GoogleOAuthConfig(cfg.Google),
		auth.DropboxOAuthConfig(cfg.Dropbox),
		cfg.Dropbox.AccessToken,
		logger,
	)

	mail := gmail.NewConnector(gmail.NewAPIFactory(tokens.TokenSourceFunc(constants.ProviderGmail)), logger)
	blobs := dropbox.NewClient(tokens, dropbox.Config{Folder: cfg.Dropbox.UploadFolder}, nil, logger)
	docs := docext.NewExtractor(docext.Config{Pdftotext: cfg.Extract.Pdftotext}, nil, logger)

	extractor, err := openai.NewClient(openai.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, nil, logger)
	if err != nil {
		logger.Error("llm client", "error", err)
		os.Exit(1)
	}

	items := review.NewStore()
	proc := pipeline.NewProcessor(mail, blobs, docs, extractor, items, logger)

	res, err := proc.RunBatch(ctx, from, to, *max)
	if err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Candidates: %d  Processed: %d  Failed: %d\n", res.Candidates, res.Processed, res.Failed)
	for _, r := range res.Results {
		if r.Extraction.Success && r.Extraction.Data != nil {
			d := r.Extraction.Data
			amount := "?"
			if d.Amount != nil {
				amount = fmt.Sprintf("%.2f", *d.Amount)
			}
			sender := "?"
			if d.Sender != nil {
				sender = *d.Sender
			}
			fmt.Printf("  OK   %-40s %s %s from %s\n", r.Filename, amount, d.Currency, sender)
		} else {
			fmt.Printf("  FAIL %-40s %s\n", r.Filename, r.Extraction.Error)
		}
	}

	if *out != "" {
		data, err := export.BatchXLSX(res, logger)
		if err != nil {
			logger.Error("xlsx export failed", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			logger.Error("write xlsx", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Results written to %s\n", *out)
	}
}
