package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-hub/auth"
	"chat-hub/authz"
	"chat-hub/blob"
	"chat-hub/moderation"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/runtime/workers"
	"chat-hub/services"
	"chat-hub/transport"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

// Exit codes surfaced to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper: run() owns the lifecycle so that every
	// defer fires before the process exits.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := config.CharacterRune()
	if err != nil {
		return exitConfig, err
	}

	logger := newLogger(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Repositories
	searchIndex := repositories.NewSearchIndex(blugeWriter, logger)
	messageRepository := repositories.NewMessageRepository(db, searchIndex, logger, config.StoreTimeout, config.LimitMessages)
	conversationRepository := repositories.NewConversationRepository(db, searchIndex, logger, config.StoreTimeout)
	membershipRepository := repositories.NewMembershipRepository(db, logger, config.StoreTimeout)
	reactionRepository := repositories.NewReactionRepository(db, logger, config.StoreTimeout)
	readRepository := repositories.NewReadRepository(db, logger, config.StoreTimeout)
	userRepository := repositories.NewUserRepository(db, logger, config.StoreTimeout)
	notificationRepository := repositories.NewNotificationRepository(db, logger, config.StoreTimeout)

	// 4. Core services
	censor, err := moderation.NewCensor(moderation.DefaultWords(), charReplacement)
	if err != nil {
		return exitConfig, fmt.Errorf("censor init failed: %w", err)
	}
	tokens := auth.NewTokenService([]byte(config.AuthSecret), config.AuthTokenDuration)
	authorizer := authz.NewAuthorizer(conversationRepository, membershipRepository)
	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(logger, config.BufferSize)

	operations := services.NewOperations(
		logger,
		conversationRepository,
		membershipRepository,
		messageRepository,
		reactionRepository,
		readRepository,
		userRepository,
		notificationRepository,
		authorizer,
		dispatcher,
		censor,
	)
	presence := services.NewPresenceService(logger, userRepository, membershipRepository, dispatcher)
	accounts := services.NewAccountService(logger, userRepository, tokens)

	blobs, err := blob.NewDiskStore(config.BlobDir, config.PublicBaseURL+"/files", logger)
	if err != nil {
		return exitRuntime, err
	}

	// 5. Supervision
	sup := workers.NewSupervisor(logger).
		Add(runtime.NewFanoutWorker(logger, dispatcher, registry, config.DeliveryTimeout)).
		Add(workers.NewTelemetryWorker(logger, config.MetricInterval))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 6. HTTP server (REST + websocket gateway)
	gateway := transport.NewGateway(logger, registry, operations, presence,
		membershipRepository, config.ConnectionBufferSize)
	api := transport.NewAPI(logger, accounts, operations, tokens, blobs, gateway, config.BlobDir)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:    address,
		Handler: api.Router(),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for stop or crash
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Graceful shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func buildBadgerOpts(config Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
