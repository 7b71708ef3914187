// chatd is the real-time chat relay node. It serves the socket-key mint
// endpoint and the chat websocket, persists messages to MongoDB, and falls
// back to FCM pushes for offline receivers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/clicktochat/chatd/internal/auth"
	"github.com/clicktochat/chatd/internal/chat"
	"github.com/clicktochat/chatd/internal/config"
	"github.com/clicktochat/chatd/internal/logging"
	"github.com/clicktochat/chatd/internal/notify"
	"github.com/clicktochat/chatd/internal/server"
	"github.com/clicktochat/chatd/internal/session"
	"github.com/clicktochat/chatd/internal/socketkey"
	"github.com/clicktochat/chatd/internal/storage/mongostore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("chatd exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secret, err := cfg.Secret()
	if err != nil {
		return err
	}
	verifier := auth.NewJWTVerifier(secret, cfg.Auth.Issuer, cfg.Auth.Audience)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
	store, err := mongostore.Dial(dialCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("dial mongo: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.ConnectTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("close mongo", zap.Error(err))
		}
	}()
	logger.Info("connected to mongo", zap.String("database", cfg.Mongo.Database))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := chat.NewMetrics(promReg)

	issuer := socketkey.NewIssuer(cfg.Keys.TTL, logger)
	issuer.StartSweeper(ctx, cfg.Keys.SweepInterval)
	sessions := session.NewRegistry(issuer, logger)

	opts := chat.Options{Metrics: metrics}
	if cfg.FCM.CredentialsFile != "" {
		notifier, err := notify.NewFCMSender(ctx, cfg.FCM.CredentialsFile, logger)
		if err != nil {
			return fmt.Errorf("init fcm: %w", err)
		}
		opts.Notifier = notifier
		logger.Info("push notifications enabled")
	} else {
		logger.Info("push notifications disabled; no fcm credentials configured")
	}

	svc := chat.NewService(logger, sessions, store.Messages, store.Users, opts)

	srv := server.New(cfg, logger, server.Deps{
		Issuer:   issuer,
		Sessions: sessions,
		Service:  svc,
		Verifier: verifier,
		Metrics:  metrics,
		PromReg:  promReg,
	})
	return srv.Start(ctx)
}
