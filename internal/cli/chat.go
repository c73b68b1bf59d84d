// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markusbegerow/local-llm-chat/internal/commands"
	"github.com/markusbegerow/local-llm-chat/internal/config"
	"github.com/markusbegerow/local-llm-chat/internal/session"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the terminal chat (default)",
		Long: `Start an interactive chat with the configured model.

Lines starting with / are commands; /help lists them. Files the model
proposes are previewed and written only after you confirm. Ctrl+C cancels a
pending request, Ctrl+C at the prompt or Ctrl+D exits.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationQuietLogs: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd)
		},
	}
}

// exitWords end the terminal chat.
var exitWords = map[string]bool{
	"exit": true, "quit": true, "/exit": true, "/quit": true, "/q": true,
}

// runChat is the REPL: read a line, submit it, then offer any proposed
// files for writing.
func (a *app) runChat(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	interactive := isTerminal(cmd.InOrStdin()) && isTerminal(out)

	host := newTerminalHost(hostOptions{
		Out:       out,
		ErrOut:    cmd.ErrOrStderr(),
		Workspace: a.ws,
		Rich:      interactive && ColorsEnabled(),
		Profile:   GetColorProfile(),
		Width:     GetTerminalWidth(),
	})
	sess := a.newSession(host, host, host)

	if interactive {
		completer := commands.NewCompleter(sess.Registry(), a.ws)
		lr := newLinerReader(historyPath(), completer.CompleteLine)
		defer func() {
			if err := lr.Close(); err != nil {
				a.logger.Warn("failed to save history", "error", err)
			}
		}()
		host.reader = lr
		printWelcome(out, a, sess)
	} else {
		host.reader = newScanReader(cmd.InOrStdin())
	}

	prompt := ""
	if interactive {
		prompt = PromptStyle.Render("llmchat> ")
	}
	for {
		input, err := host.reader.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, errInputAborted) {
				if interactive {
					fmt.Fprintln(out)
				}
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if exitWords[strings.ToLower(input)] {
			return nil
		}
		host.reader.AppendHistory(input)
		a.submit(cmd.Context(), sess, host, input)
	}
}

// submit runs one turn. Ctrl+C cancels the model call in flight; errors
// are already shown by the host.
func (a *app) submit(parent context.Context, sess *session.Session, host *TerminalHost, input string) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	_ = sess.Submit(ctx, input)
	for _, p := range host.TakeProposals() {
		if ctx.Err() != nil {
			return
		}
		_, _ = sess.ConfirmWrite(ctx, p.Path, p.Content)
	}
}

func historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chat_history")
}

func printWelcome(w io.Writer, a *app, sess *session.Session) {
	settings := sess.Settings()
	info := a.ws.Metadata()
	fmt.Fprintln(w, TitleStyle.Render("llmchat "+Version))
	fmt.Fprintln(w, RenderKeyValue("Model:", settings.Endpoint.Model))
	fmt.Fprintln(w, RenderKeyValue("Endpoint:", endpointLabel(settings)))
	fmt.Fprintln(w, RenderKeyValue("Workspace:", info.AbsolutePath))
	fmt.Fprintln(w, DimStyle.Render("Type /help for commands, exit to quit."))
	fmt.Fprintln(w)
}

func endpointLabel(s session.Settings) string {
	if s.Endpoint.CustomEndpoint != "" {
		return s.Endpoint.CustomEndpoint + " (custom)"
	}
	return fmt.Sprintf("%s (%s)", s.Endpoint.BaseURL, s.Endpoint.Provider)
}
