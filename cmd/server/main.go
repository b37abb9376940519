package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stitchbook/api/internal/config"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/media"
	"github.com/stitchbook/api/internal/otp"
	"github.com/stitchbook/api/internal/router"
	"github.com/stitchbook/api/internal/wizard"
	"github.com/stitchbook/api/internal/ws"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	var mediaStore media.Store
	if cfg.MediaEnabled() {
		mediaStore, err = media.NewS3Store(ctx, media.S3Config{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.AWSS3Bucket,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Unable to configure media storage: %v", err)
		}
	} else {
		log.Println("WARN: AWS_S3_BUCKET not set, keeping media in memory")
		mediaStore = media.NewMemoryStore(fmt.Sprintf("http://localhost:%s/media", cfg.Port))
	}

	var sender otp.Sender
	if cfg.OTPEnabled() {
		sender = otp.NewHTTPClient(cfg.OTPBaseURL, cfg.OTPAPIKey)
	} else {
		log.Println("WARN: OTP_BASE_URL not set, OTP codes will be logged")
		sender = otp.NewDevSender()
	}

	r := router.New(router.Deps{
		Config:   cfg,
		Queries:  database.New(pool),
		Pool:     pool,
		Hub:      hub,
		Media:    mediaStore,
		OTP:      sender,
		Sessions: wizard.NewSessions(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(r, "stitchbook-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (%s)", cfg.Port, cfg.Profile)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
}
