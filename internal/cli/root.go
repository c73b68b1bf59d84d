// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/markusbegerow/local-llm-chat/internal/config"
	"github.com/markusbegerow/local-llm-chat/internal/filegate"
	"github.com/markusbegerow/local-llm-chat/internal/llm"
	"github.com/markusbegerow/local-llm-chat/internal/secrets"
	"github.com/markusbegerow/local-llm-chat/internal/session"
	"github.com/markusbegerow/local-llm-chat/internal/workspace"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// PassphraseEnv names the variable holding the secret store passphrase.
const PassphraseEnv = "LLMCHAT_SECRET_PASSPHRASE"

// Command annotations read by setup.
const (
	annotationSkipSetup = "llmchat/skip-setup"
	annotationQuietLogs = "llmchat/quiet-logs"
)

// errReported is returned by commands whose failure was already printed.
var errReported = errors.New("reported")

// Options are the global flags.
type Options struct {
	ConfigPath string
	Workspace  string
	LogLevel   string
}

// app holds what setup prepared for the running command.
type app struct {
	opts Options

	mu         sync.RWMutex
	cfg        *config.Config
	configPath string // file the config came from; "" means defaults

	logger       *slog.Logger
	closeLog     func() error
	ws           *workspace.Workspace
	secrets      secrets.Store
	secretsErr   error // why the persistent store is unavailable
	closeSecrets func() error
	client       *llm.Client
}

// NewRootCmd builds the llmchat command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "llmchat",
		Short: "Chat with a local language model about your workspace",
		Long: `llmchat relays your messages to a locally hosted language model
(OpenAI-compatible or Ollama) and shows the replies.

Slash commands inspect the workspace (/read, /list, /search, /workspace) and
files the model proposes in fenced blocks are written only after you confirm.

Run without a subcommand to start the terminal chat. Editor plugins start
"llmchat serve" and talk to it over stdio or a websocket.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   map[string]string{annotationQuietLogs: "true"},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd)
		},
	}
	root.SetVersionTemplate(versionString() + "\n")

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.ConfigPath, "config", "c", "", "config file (default: ./.llmchat.toml or ~/.llmchat/config.toml)")
	flags.StringVarP(&a.opts.Workspace, "workspace", "w", "", "workspace directory (default: current directory)")
	flags.StringVar(&a.opts.LogLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newChatCmd(a),
		newServeCmd(a),
		newAskCmd(a),
		newModelsCmd(a),
		newDoctorCmd(a),
		newConfigCmd(a),
		newSecretCmd(a),
		newVersionCmd(),
	)
	return root, a
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root, a := newRoot()
	err := root.Execute()
	// PersistentPostRun is skipped when a command fails.
	a.teardown()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, RenderError(err.Error()))
		}
		return 1
	}
	return 0
}

// =============================================================================
// SETUP
// =============================================================================

func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	return cmd.Annotations[annotationSkipSetup] == "true"
}

// workspaceDir returns the --workspace flag or the current directory.
func (a *app) workspaceDir() string {
	if a.opts.Workspace != "" {
		return a.opts.Workspace
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// setup loads configuration, starts logging and opens the workspace and the
// secret store.
func (a *app) setup(cmd *cobra.Command) error {
	if skipSetup(cmd) {
		return nil
	}
	dir := a.workspaceDir()

	dotenv, err := config.LoadDotEnv(dir)
	if err != nil {
		return err
	}

	path := config.FindConfigFile(a.opts.ConfigPath, dir)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.opts.LogLevel != "" {
		cfg.Log.Level = a.opts.LogLevel
	}
	level, err := config.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.setConfig(cfg, path)

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = config.DefaultLogFile()
	}
	var console io.Writer = cmd.ErrOrStderr()
	if cmd.Annotations[annotationQuietLogs] == "true" && logFile != "-" && logFile != "" {
		console = io.Discard
	}
	a.logger, a.closeLog = config.SetupLoggerTo(console, logFile, level)
	slog.SetDefault(a.logger)
	a.logger.Debug("configuration loaded", "path", path, "dotenv", dotenv, "command", cmd.Name())
	for _, w := range cfg.Warnings() {
		a.logger.Warn("config", "warning", w)
	}

	a.ws, err = workspace.Open(dir, workspace.WithMaxFileSize(cfg.MaxFileSize))
	if err != nil {
		return err
	}

	a.openSecrets()
	a.client = llm.NewClient(a.logger)
	return nil
}

// openSecrets opens the encrypted store, falling back to memory so chat
// keeps working without a persistent token.
func (a *app) openSecrets() {
	dir, err := config.ConfigDir()
	if err == nil {
		var store *secrets.SQLiteStore
		store, err = secrets.OpenDefault(dir, os.Getenv(PassphraseEnv))
		if err == nil {
			a.secrets = store
			a.closeSecrets = store.Close
			return
		}
	}
	a.secretsErr = err
	a.logger.Warn("secret store unavailable, auth token kept in memory", "error", err)
	a.secrets = secrets.NewMemoryStore()
	a.closeSecrets = func() error { return nil }
}

// teardown releases what setup opened. It is safe to call twice.
func (a *app) teardown() {
	if a.closeSecrets != nil {
		if err := a.closeSecrets(); err != nil && a.logger != nil {
			a.logger.Warn("failed to close secret store", "error", err)
		}
		a.closeSecrets = nil
	}
	if a.closeLog != nil {
		_ = a.closeLog()
		a.closeLog = nil
	}
}

func (a *app) current() (*config.Config, string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg, a.configPath
}

func (a *app) setConfig(cfg *config.Config, path string) {
	a.mu.Lock()
	a.cfg = cfg
	a.configPath = path
	a.mu.Unlock()
}

// newSession wires a chat session to a host surface.
func (a *app) newSession(display session.Display, prompter filegate.Prompter, opener filegate.Opener) *session.Session {
	cfg, _ := a.current()
	return session.New(session.Options{
		Client:    a.client,
		Workspace: a.ws,
		Gate:      filegate.New(a.ws, prompter, opener, a.logger),
		Display:   display,
		Secrets:   a.secrets,
		Settings:  session.SettingsFromConfig(cfg),
		Logger:    a.logger,
	})
}

// endpoint returns the endpoint settings with the stored auth token.
func (a *app) endpoint(cmd *cobra.Command) (llm.EndpointConfig, error) {
	cfg, _ := a.current()
	token, _, err := a.secrets.Get(cmd.Context(), secrets.AuthTokenKey)
	if err != nil {
		return llm.EndpointConfig{}, fmt.Errorf("failed to read auth token: %w", err)
	}
	return cfg.Endpoint(token), nil
}
