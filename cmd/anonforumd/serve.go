package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/anonforum/internal/api"
	"github.com/persistorai/anonforum/internal/config"
	"github.com/persistorai/anonforum/internal/service"
	"github.com/persistorai/anonforum/internal/storage"
	"github.com/persistorai/anonforum/internal/store"
	"github.com/persistorai/anonforum/internal/ws"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func runServe(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()

	database, err := openDatabase(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.RunMigrations {
		if err := database.migrate(startCtx, log); err != nil {
			return err
		}
	}

	sink, err := storage.New(startCtx, cfg.BackupDestination, log)
	if err != nil {
		return fmt.Errorf("opening backup destination: %w", err)
	}

	// The worker outlives the listener so queued backups still finish.
	bgCtx, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()

	hub := ws.NewHub(log)

	backups := service.NewBackupService(service.BackupDeps{
		Records:    database,
		Activities: store.NewActivityStore(database),
		Runs:       store.NewRunStore(database),
		Sink:       sink,
		Events:     hub,
		Log:        log,
		WWWRoot:    cfg.WWWRoot,
		Workers:    cfg.BackupWorkers,
	})
	worker := service.NewBackupWorker(backups, log, cfg.BackupQueueSize)

	var g errgroup.Group
	g.Go(func() error { hub.Run(bgCtx); return nil })
	g.Go(func() error { worker.Run(bgCtx); return nil })
	g.Go(func() error { database.reportPoolStats(bgCtx); return nil })

	router := api.NewRouter(bgCtx, &api.RouterDeps{
		Log:          log,
		DB:           database,
		Hub:          hub,
		Backups:      backups,
		Queue:        worker,
		Posts:        service.NewPostService(store.NewPostStore(database)),
		ClientLookup: store.NewClientStore(database),
		CORSOrigins:  cfg.CORSOrigins,
		Version:      config.Version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":        srv.Addr,
			"version":     config.Version,
			"driver":      cfg.DBDriver,
			"destination": sink.String(),
		}).Info("anonforumd listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown incomplete")
	}

	cancelBG()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}

	log.WithField("pending_backups", worker.Pending()).Info("anonforumd stopped")

	return runErr
}

func runMigrate(cfg *config.Config, log *logrus.Logger) error {
	if cfg.TablePrefix != "" {
		return fmt.Errorf("migrate requires an empty TABLE_PREFIX")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	database, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	return database.migrate(ctx, log)
}

func runCreateClient(ctx context.Context, cfg *config.Config, log *logrus.Logger, name string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	database, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	key, err := generateAPIKey()
	if err != nil {
		return err
	}

	id, err := store.NewClientStore(database).CreateClient(ctx, name, key)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"client_id": id, "name": name}).Info("api client created")
	fmt.Fprintf(out, "client_id: %s\napi_key:   %s\n", id, key)

	return nil
}

// generateAPIKey returns 32 random bytes, hex encoded.
func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}

	return hex.EncodeToString(b), nil
}
