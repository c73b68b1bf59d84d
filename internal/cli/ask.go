// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(a *app) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send one message and print the reply",
		Long: `Send one message to the model and print the reply.

Slash commands work too. Proposed files are previewed; with --write each one
goes through the usual confirmation before it is written. Use "-" to read the
prompt from stdin.`,
		Example: `  llmchat ask "Explain the build setup in this repo"
  llmchat ask /workspace
  git diff | llmchat ask -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			in := cmd.InOrStdin()
			if prompt == "-" {
				data, err := io.ReadAll(in)
				if err != nil {
					return fmt.Errorf("failed to read prompt: %w", err)
				}
				prompt = string(data)
				in = strings.NewReader("")
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt is empty")
			}

			out := cmd.OutOrStdout()
			rich := isTerminal(out) && ColorsEnabled()
			host := newTerminalHost(hostOptions{
				Out:       out,
				ErrOut:    cmd.ErrOrStderr(),
				Workspace: a.ws,
				Rich:      rich,
				Profile:   GetColorProfile(),
				Width:     GetTerminalWidth(),
			})
			if write {
				host.reader = newScanReader(in)
			}
			sess := a.newSession(host, host, host)

			if err := sess.Submit(cmd.Context(), prompt); err != nil {
				return errReported
			}

			proposals := host.TakeProposals()
			if !write {
				if len(proposals) > 0 {
					fmt.Fprintln(out, DimStyle.Render("Run with --write to create the proposed files."))
				}
				return nil
			}
			failed := false
			for _, p := range proposals {
				if _, err := sess.ConfirmWrite(cmd.Context(), p.Path, p.Content); err != nil {
					failed = true
				}
			}
			if failed {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "offer to write the files the reply proposes")
	return cmd
}
