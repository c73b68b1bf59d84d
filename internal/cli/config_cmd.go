// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/markusbegerow/local-llm-chat/internal/config"
	"github.com/markusbegerow/local-llm-chat/internal/util"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: `Show or change configuration.

Keys use the option names of the config file, for example apiUrl, model,
maxHistoryMessages or log.level. Environment variables (LLMCHAT_*) override
the file for the running process but are never written back.`,
	}
	cmd.AddCommand(
		newConfigShowCmd(a),
		newConfigGetCmd(a),
		newConfigSetCmd(a),
		newConfigPathCmd(a),
		newConfigKeysCmd(),
	)
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := a.current()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			return toml.NewEncoder(out).Encode(cfg)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of TOML")
	return cmd
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := a.current()
			v, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatValue(v))
			return nil
		},
	}
}

func newConfigSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one configuration value in the config file",
		Example: `  llmchat config set model qwen2.5-coder
  llmchat config set apiCompat ollama
  llmchat config set server.allowedOrigins "http://localhost,vscode-webview://*"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, path := a.current()
			if path == "" {
				var err error
				if path, err = config.ConfigPathTOML(); err != nil {
					return err
				}
			}

			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			v, _ := cfg.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s (%s)\n",
				SuccessStyle.Render("Saved"), args[0], formatValue(v), path)
			return nil
		},
	}
}

// config path works even when the config file does not load.
func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print which config file is used",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if path := config.FindConfigFile(a.opts.ConfigPath, a.workspaceDir()); path != "" {
				fmt.Fprintln(out, path)
				return nil
			}
			path, err := config.ConfigPathTOML()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, path)
			fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render("(not created yet; llmchat config set writes it)"))
			return nil
		},
	}
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "keys",
		Short:       "List the configuration keys and their environment overrides",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.Keys()
			width := 0
			for _, k := range keys {
				width = max(width, util.StringWidth(k))
			}
			for _, k := range keys {
				if env, ok := config.EnvVar(k); ok {
					fmt.Fprintln(cmd.OutOrStdout(), util.PadRight(k, width+2)+env)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case []string:
		return strings.Join(t, ",")
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
