package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relay/internal/bus"
	"relay/internal/chat"
	"relay/internal/commands"
	"relay/internal/config"
	"relay/internal/directory"
	"relay/internal/friends"
	"relay/internal/http"
	"relay/internal/presence"
	"relay/internal/registry"
	"relay/internal/signaling"
	"relay/internal/storage"
	"relay/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("relay", flag.ContinueOnError)
	addUser := flags.String("add-user", "", "Name of the user to create (prints its id)")
	addGroup := flags.String("add-group", "", "Name of the group to create (requires -admin)")
	groupAdmin := flags.String("admin", "", "User id of the new group's admin")
	groupMembers := flags.String("members", "", "Comma separated user ids to add to the new group")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cliMode := *addUser != "" || *addGroup != ""
	cfg, err := config.Load(cliMode)
	if err != nil {
		return err
	}

	switch {
	case *addUser != "":
		return commands.AddUser(*addUser, cfg)
	case *addGroup != "":
		return commands.AddGroup(*addGroup, *groupAdmin, splitIDs(*groupMembers), cfg)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	topics, closeTopics, err := newBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTopics()

	dir := directory.New(ctx, bbStorage, cfg.UserCacheTTL)
	sessions := registry.New(cfg.OutboxSize)

	hub := ws.NewHub(ws.HubConfig{
		Registry:   sessions,
		Presence:   presence.NewAggregator(),
		Directory:  dir,
		Dispatcher: chat.NewDispatcher(bbStorage, dir, sessions),
		Receipts:   chat.NewReceipts(bbStorage, dir, sessions, topics),
		Friends:    friends.NewSynchronizer(bbStorage, bbStorage, sessions),
		Signals:    signaling.NewRelay(sessions),
		Topics:     topics,
	})

	adminServer := http.NewAdminServer(bbStorage, hub, dir, cfg.AdminAddr)
	apiServer := http.NewAPIServer(hub, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Pump frames published by other nodes
	g.Go(func() error {
		return topics.Run(gCtx)
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func newBus(ctx context.Context, cfg *config.Config) (bus.Bus, func(), error) {
	if cfg.BusDriver != config.BusDriverRedis {
		return bus.NewLocal(), func() {}, nil
	}

	r, err := bus.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using redis bus", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
	return r, func() { _ = r.Close() }, nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
