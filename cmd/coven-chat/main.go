// ABOUTME: Entry point for coven-chat, a terminal client for the conversation backend
// ABOUTME: Loads config, opens the identity database, and runs the interactive loop

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/identity"
	"github.com/2389/coven-chat/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ___ _____   _____ _ __         ___| |__   __ _| |_
 / __/ _ \ \ / / _ \ '_ \ _____ / __| '_ \ / _' | __|
| (_| (_) \ V /  __/ | | |_____| (__| | | | (_| | |_
 \___\___/ \_/ \___|_| |_|      \___|_| |_|\__,_|\__|
`

func main() {
	configPath := flag.String("config", "", "path to config file (default: $COVEN_CHAT_CONFIG or XDG config dir)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coven-chat %s\n", version)
		return
	}

	if err := run(*configPath, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, in io.Reader, out, errOut io.Writer) error {
	if configPath == "" {
		configPath = config.Path()
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, errOut)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := store.NewSQLiteStore(cfg.Identity.Path)
	if err != nil {
		return fmt.Errorf("opening identity store: %w", err)
	}
	defer kv.Close()

	if n, err := kv.PurgeExpired(ctx); err != nil {
		logger.Warn("purging expired entries failed", "error", err)
	} else if n > 0 {
		logger.Debug("purged expired entries", "count", n)
	}

	ids, err := identity.New(kv,
		identity.WithTTL(cfg.Identity.RememberFor),
		identity.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	defer ids.Close()

	api := client.New(cfg.API.BaseURL, client.WithLogger(logger))

	convs := conversation.NewStore(api, ids,
		conversation.WithModel(cfg.API.Model),
		conversation.WithLogger(logger),
		conversation.WithTombstoneTTL(cfg.Conversations.TombstoneTTL),
	)
	defer convs.Close()

	a := &app{
		out:    out,
		ids:    ids,
		convs:  convs,
		api:    api,
		logger: logger.With("component", "app"),
	}

	go a.watchIdentity(ctx, ids.Subscribe(ctx))
	go a.watchStore(convs.Subscribe(ctx))

	color.New(color.FgMagenta).Fprint(out, banner)
	fmt.Fprintf(out, "coven-chat %s  backend %s\n", version, api.BaseURL())

	if id, ok := ids.Get(); ok {
		fmt.Fprintf(out, "Welcome back, %s\n", id)
		if err := convs.LoadConversations(ctx); err != nil {
			a.printError(err)
		} else {
			a.printConversations()
		}
	} else {
		fmt.Fprintln(out, "Not logged in. Use /login <id> to start, /help for commands.")
	}

	logger.Info("coven-chat started", "config", configPath, "identity_db", cfg.Identity.Path)
	return a.run(ctx, in)
}
