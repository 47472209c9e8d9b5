package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/devmail/webapp/pkg/account"
	"github.com/devmail/webapp/pkg/api"
	"github.com/devmail/webapp/pkg/audit"
	"github.com/devmail/webapp/pkg/cli"
	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/mail"
	"github.com/devmail/webapp/pkg/metrics"
	"github.com/devmail/webapp/pkg/storage"
	"github.com/devmail/webapp/pkg/system"
	"github.com/devmail/webapp/pkg/telemetry"
	"github.com/devmail/webapp/pkg/version"
)

const closeTimeout = 10 * time.Second

func main() {
	cliConfig := cli.Parse()

	zl, err := system.NewLogger(cliConfig.Debug)
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()
	log.With("version", version.Version, "commit", version.GitCommit).Info("Starting webapp")
	cliConfig.Print(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cliConfig, zl); err != nil {
		log.Errorw("webapp stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
	log.Info("webapp stopped")
}

func loadConfig(cliConfig *cli.Config) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if cliConfig.ConfigPath == "" || cliConfig.ConfigPath == config.DefaultConfigPath {
		cfg, err = config.Load()
	} else {
		cfg, err = config.Load(cliConfig.ConfigPath)
	}
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	cliConfig.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// run wires the application and blocks until ctx is cancelled.
func run(ctx context.Context, cliConfig *cli.Config, zl *zap.Logger) error {
	log := zl.Sugar()

	cfg, err := loadConfig(cliConfig)
	if err != nil {
		return err
	}
	if cliConfig.Debug {
		log.Debugf("%#v", cfg)
	}

	_, shutdownTracing, err := telemetry.Init(ctx, telemetry.OptionsFromConfig(cfg.Telemetry, version.Version, log))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warnw("Failed to flush traces", "error", err)
		}
	}()

	db, err := storage.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warnw("Failed to close database", "error", err)
		}
	}()

	sender, err := mail.NewSenderFromConfig(cfg, clock.RealClock{}, log)
	if err != nil {
		return fmt.Errorf("build email sender: %w", err)
	}
	if closer, ok := sender.(mail.Closer); ok {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := closer.Close(closeCtx); err != nil {
				log.Warnw("Email sender did not drain before shutdown", "error", err)
			}
		}()
	}

	auditSvc, err := audit.NewFromConfig(cfg.Audit, zl)
	if err != nil {
		return fmt.Errorf("build audit service: %w", err)
	}
	var notifierOpts []account.Option
	if auditSvc != nil {
		notifierOpts = append(notifierOpts, account.WithAuditor(auditSvc))
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := auditSvc.Close(closeCtx); err != nil {
				log.Warnw("Audit events were not flushed before shutdown", "error", err)
			}
		}()
	}

	notifier, err := account.NewNotifier(sender, cfg.Identity, log, notifierOpts...)
	if err != nil {
		return fmt.Errorf("build account notifier: %w", err)
	}
	log.Infow("Account workflow configured",
		"environment", cfg.Environment,
		"mailMode", cfg.Mail.Mode,
		"requireConfirmedAccount", notifier.ConfirmationRequired(),
		"audit", auditSvc != nil)

	server, err := api.NewServer(zl, cfg, cliConfig.Debug, db)
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}
	if cfg.IsDevelopment() {
		err = server.RegisterAll([]api.APIController{
			api.NewMailLogController(log, sender),
			api.NewAccountMailController(log, notifier),
		})
		if err != nil {
			return err
		}
	}

	if cliConfig.MetricsAddr != "" {
		go serveMetrics(ctx, cliConfig.MetricsAddr, log)
	}

	return server.Run(ctx)
}

func serveMetrics(ctx context.Context, addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infow("Serving metrics", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorw("Metrics server failed", "error", err)
	}
}
