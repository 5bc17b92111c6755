package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/shadderzzz/UmmahHub/internal/app"
	"github.com/shadderzzz/UmmahHub/internal/category"
	"github.com/shadderzzz/UmmahHub/internal/config"
	"github.com/shadderzzz/UmmahHub/internal/email"
	"github.com/shadderzzz/UmmahHub/internal/export"
	"github.com/shadderzzz/UmmahHub/internal/logging"
	"github.com/shadderzzz/UmmahHub/internal/search"
	"github.com/shadderzzz/UmmahHub/internal/session"
	"github.com/shadderzzz/UmmahHub/internal/store"
)

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations and exit",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ctx := c.Context
			db, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()

			applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
			if err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			log.Info().Strs("applied", applied).Msg("migrations complete")
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides the configured addr",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if addr := c.String("addr"); addr != "" {
				cfg.Addr = addr
			}
			return serve(c.Context, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if _, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	registry := category.Default()
	dataStore := store.NewPostgresStore(db, registry)

	sessions, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer sessions.Close()

	pgfts := search.NewPgFTS(db, registry)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.ReindexAllFromPG(context.Background())

	deps := app.Deps{
		Registry:      registry,
		Store:         dataStore,
		Sessions:      sessions,
		SessionCookie: cfg.SessionCookie,
		SessionTTL:    sessions.TTL(),
		Search:        searchService,
	}

	if strings.TrimSpace(cfg.ArchiveEndpoint) != "" {
		archiver, err := export.NewArchiver(export.ArchiveConfig{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			UseSSL:    cfg.ArchiveUseSSL,
		}, export.NewService())
		if err != nil {
			return fmt.Errorf("archive storage: %w", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = archiver.EnsureBucket(bucketCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("bucket", cfg.ArchiveBucket).Msg("archive bucket unavailable, threads will not be archived")
		} else {
			deps.Archiver = archiver
		}
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Mailer = mailer
	} else {
		log.Info().Msg("SMTP not configured, e-mail notifications disabled")
	}

	service := app.New(deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.WriteRate, cfg.WriteBurst)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("UmmahHub API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	return nil
}
