// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/markusbegerow/local-llm-chat/internal/bridge"
	"github.com/markusbegerow/local-llm-chat/internal/config"
	"github.com/markusbegerow/local-llm-chat/internal/session"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	transport string
	addr      string
	origins   []string
	noWatch   bool
}

func newServeCmd(a *app) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat bridge to an editor host",
		Long: `Serve the chat to an editor host.

With --transport stdio (the default) events are JSON objects, one per line,
on stdin and stdout; logs go to stderr and the log file. With --transport ws
every websocket connection to /ws gets its own session.

Edits to the config file are picked up without a restart.`,
		Example: `  llmchat serve
  llmchat serve --transport ws --addr 127.0.0.1:7878`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			switch opts.transport {
			case "stdio":
				return a.serveStdio(ctx, cmd, opts)
			case "ws", "websocket":
				return a.serveWebsocket(ctx, opts)
			default:
				return fmt.Errorf("unknown transport %q (want stdio or ws)", opts.transport)
			}
		},
	}
	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "stdio", "bridge transport: stdio or ws")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "websocket listen address (default from config server.addr)")
	cmd.Flags().StringSliceVar(&opts.origins, "origin", nil, "allowed websocket origins (default from config server.allowedOrigins)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

func (a *app) serveStdio(ctx context.Context, cmd *cobra.Command, opts *serveOptions) error {
	conn := bridge.NewStdioConn(cmd.InOrStdin(), cmd.OutOrStdout())
	b := bridge.New(conn, Version, a.logger)
	sess := a.newSession(b, b, b)
	b.Attach(sess)

	if !opts.noWatch {
		a.watchConfig(ctx, func(s session.Settings) {
			sess.UpdateSettings(s)
		})
	}

	a.logger.Info("stdio bridge started", "session", sess.ID(), "workspace", a.ws.Root())
	return b.Run(ctx)
}

func (a *app) serveWebsocket(ctx context.Context, opts *serveOptions) error {
	cfg, _ := a.current()
	addr := opts.addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	origins := opts.origins
	if len(origins) == 0 {
		origins = cfg.Server.AllowedOrigins
	}

	srv := bridge.NewServer(bridge.ServerConfig{
		Addr:           addr,
		AllowedOrigins: origins,
		Version:        Version,
	}, func(b *bridge.Bridge) *session.Session {
		return a.newSession(b, b, b)
	}, a.logger)

	if !opts.noWatch {
		a.watchConfig(ctx, func(s session.Settings) {
			srv.EachSession(func(sess *session.Session) {
				sess.UpdateSettings(s)
			})
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down websocket bridge", "sessions", srv.SessionCount())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// watchConfig reloads the active config file on change and passes the new
// session settings to apply. Without a config file there is nothing to
// watch.
func (a *app) watchConfig(ctx context.Context, apply func(session.Settings)) {
	_, path := a.current()
	if path == "" {
		return
	}
	w, err := config.NewWatcher(path, config.DefaultWatchDebounce, a.logger, func(cfg *config.Config) {
		a.setConfig(cfg, path)
		apply(session.SettingsFromConfig(cfg))
		a.logger.Info("configuration reloaded", "path", path)
	})
	if err != nil {
		a.logger.Warn("config watch disabled", "error", err)
		return
	}
	go func() {
		defer w.Close()
		w.Run(ctx)
	}()
}
