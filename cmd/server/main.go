package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"

	"race-crew-network/internal/api"
	"race-crew-network/internal/config"
	"race-crew-network/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("failed to load AWS config: %v", err)
	}
	store := services.NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), cfg.RegattasTable, cfg.DocumentsTable)

	ai, err := services.NewExtractionClient(cfg.OpenAIKey, cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	guard := services.NewSSRFGuard()
	fetcher := services.NewPageFetcher(guard, cfg.FetchTimeout, cfg.ContentMaxChars)
	held := services.NewMemoryHeldResults(cfg.HeldResultTTL)
	importer := services.NewImporter(fetcher, ai, store, held, services.NewClubspotResolver())

	r := chi.NewRouter()
	r.Mount("/", api.NewServer(importer).Routes())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout stays zero: import runs stream SSE for their
		// whole duration.
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("shutting down on %s", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	case err := <-errCh:
		log.Fatalf("server error: %v", err)
	}
}
