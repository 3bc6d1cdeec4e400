package main

import (
	"chat-pubsub/contract"
	"chat-pubsub/domain"
	infraredis "chat-pubsub/infrastructure/redis"
	"chat-pubsub/internal"
	"chat-pubsub/moderation"
	"chat-pubsub/repositories"
	"chat-pubsub/runtime"
	"chat-pubsub/services"
	"chat-pubsub/storage"
	"chat-pubsub/ui"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	goredis "github.com/redis/go-redis/v9"
)

// Exit codes for the chat client.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the stores, the broker and the menu loop, and owns their
// cleanup so deferred closes happen before os.Exit.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. SIGTERM ends the process; Ctrl+C is left to the console so that
	// it can stop a read without quitting.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	var client *goredis.Client
	if config.UsesRedis() {
		client = goredis.NewClient(&goredis.Options{Addr: config.RedisAddr(), DB: config.RedisDB})
		defer func() {
			log.Info("Closing Redis client...")
			_ = client.Close()
		}()
	}

	// 3. Key/value store
	store, closeStore, err := openStore(ctx, config, client, log)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	users := repositories.NewUserRepository(store)
	weather := repositories.NewWeatherRepository(store)
	if config.SeedWeather {
		if err = weather.Seed(ctx, repositories.DefaultWeather); err != nil {
			return exitRuntime, err
		}
		log.Info("Mock weather data added")
	}

	// 4. Broker & subscription session
	session, err := runtime.NewSession(ctx, log, openBroker(config, client, log), config.ReceiveWait)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to broker at %s: %w", config.RedisAddr(), err)
	}
	defer func() {
		log.Info("Closing session...")
		_ = session.Close()
	}()

	moderator, err := newModerator(config)
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	// 5. Menu loop
	state := services.NewSessionState()
	chat := services.NewChatService(log, session, users, weather, state, moderator)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	console := ui.NewConsole(os.Stdin, os.Stdout, interrupts, config.Colours)
	router := services.NewRouter(log, chat, state, console, console)
	if err = router.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return exitOK, nil
		}
		return exitRuntime, fmt.Errorf("session terminated: %w", err)
	}
	return exitOK, nil
}

func openStore(ctx context.Context, config internal.Config, client *goredis.Client, log *slog.Logger) (contract.KeyValueStore, func(), error) {
	if config.StoreBackend == internal.BackendRedis {
		return infraredis.NewStore(client), func() {}, nil
	}

	db, err := storage.OpenBadger(config.BadgerFilepath)
	if err != nil {
		return nil, nil, fmt.Errorf("database opening failed: %w", err)
	}

	if log.Enabled(ctx, slog.LevelDebug) && config.DebugPort > 0 {
		endpoint := "/inspect"
		url := fmt.Sprintf("http://localhost:%d%s?prefix=%s", config.DebugPort, endpoint, domain.UserKey(""))
		log.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, config.DebugPort, endpoint, storage.HashMapper)
	}
	closeDB := func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}
	return storage.NewBadgerStore(db, log), closeDB, nil
}

func openBroker(config internal.Config, client *goredis.Client, log *slog.Logger) contract.Broker {
	if config.BrokerBackend == internal.BackendRedis {
		return infraredis.NewBroker(client, log)
	}
	return runtime.NewRegistry(log, config.InboxSize)
}

func newModerator(config internal.Config) (*moderation.Moderator, error) {
	words := moderation.ParseWords(config.CensoredWords)
	if len(words) == 0 {
		return nil, nil
	}
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	return moderation.NewModerator(words, replacement)
}
