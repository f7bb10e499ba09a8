package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pubclass/config"
	"pubclass/db"
	phttp "pubclass/http"
	"pubclass/logger"
	"pubclass/monitoring"
	"pubclass/pipeline"
	"pubclass/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the classification API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return runServe(cmd.Context(), a)
	},
}

func runServe(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log := a.cfg, a.log

	catalog, err := pipeline.NewCatalog(cfg.Categories)
	if err != nil {
		return err
	}

	var opts []service.Option
	var journal phttp.Journal
	if cfg.Database.Path != "" {
		if err := ensureDir(cfg.Database.Path); err != nil {
			return err
		}
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info("database initialized", zap.String("path", cfg.Database.Path))
		opts = append(opts, service.WithJournal(store))
		journal = store
	}

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics()
		opts = append(opts, service.WithObserver(metrics))
	}

	hub := monitoring.NewHub(log.Named("ws"), cfg.Server.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()
	opts = append(opts, service.WithNotifier(hub))

	encoder := newEncoder(cfg, log)
	if encoder != nil {
		defer encoder.Close()
	}

	svc := service.New(serviceConfig(cfg), catalog, newSource(cfg, log), encoder, log.Named("service"), opts...)

	server := phttp.NewServer(serverConfig(cfg), phttp.Deps{
		Service: svc,
		Journal: journal,
		Metrics: metrics,
		Hub:     hub,
		Logger:  log.Named("http"),
	})

	if _, err := os.Stat(a.configPath); err == nil {
		go func() {
			err := config.Watch(ctx, a.configPath, log, func(next *config.Config) {
				a.level.SetLevel(logger.ParseLevel(next.Log.Level))
				log.Info("log level updated", zap.String("level", next.Log.Level))
			})
			if err != nil {
				log.Warn("config watch stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Training.AutoInitialize {
		svc.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Info("exiting")
	return nil
}
