// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - health checks for the endpoint, configuration, workspace and
// secret store.
//
// Status Symbols:
//   [OK]    Pass  - Check successful
//   [!!]    Warn  - Non-critical issue detected
//   [FAIL]  Fail  - Critical issue detected
//
// Exit Codes:
//   0   No check failed
//   1   One or more checks failed

package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/markusbegerow/local-llm-chat/internal/config"
	"github.com/markusbegerow/local-llm-chat/internal/llm"
	"github.com/markusbegerow/local-llm-chat/internal/secrets"
)

// doctorTimeout bounds each network check.
const doctorTimeout = 10 * time.Second

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed successfully.
	CheckPass CheckStatus = iota
	// CheckWarn indicates the check passed with warnings.
	CheckWarn
	// CheckFail indicates the check failed.
	CheckFail
)

// String returns the string representation of the check status.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "Pass"
	case CheckWarn:
		return "Warn"
	case CheckFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

// Symbol returns the marker for the check status.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return SuccessStyle.Render("[OK]")
	case CheckWarn:
		return WarningStyle.Render("[!!]")
	case CheckFail:
		return ErrorStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // what to do about a warning or failure
}

// Render returns a formatted string representation of the health check.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + DimStyle.Render("    -> "+c.Fix)
	}
	return result
}

// =============================================================================
// CHECKS
// =============================================================================

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag"},
		Short:   "Check the endpoint, configuration and workspace",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := a.runChecks(cmd)
			if failed := printChecks(cmd.OutOrStdout(), checks); failed > 0 {
				return errReported
			}
			return nil
		},
	}
}

func (a *app) runChecks(cmd *cobra.Command) []HealthCheck {
	cfg, path := a.current()
	checks := []HealthCheck{checkConfig(cfg, path)}

	endpoint, err := a.endpoint(cmd)
	if err != nil {
		checks = append(checks, HealthCheck{Name: "endpoint", Status: CheckFail, Message: err.Error()})
	} else {
		checks = append(checks, a.checkEndpoint(cmd.Context(), endpoint)...)
	}

	info := a.ws.Metadata()
	ws := HealthCheck{
		Name:    "workspace",
		Status:  CheckPass,
		Message: fmt.Sprintf("Workspace %s (%s)", info.Name, info.AbsolutePath),
	}
	if !info.HasGit && !info.HasPackageManifest {
		ws.Status = CheckWarn
		ws.Message += ": no git repository or package manifest"
		ws.Fix = "Run llmchat from your project directory or pass --workspace"
	}
	checks = append(checks, ws)

	return append(checks, a.checkSecrets(cmd.Context()))
}

func checkConfig(cfg *config.Config, path string) HealthCheck {
	c := HealthCheck{Name: "config", Status: CheckPass}
	if path == "" {
		c.Message = "Configuration: built-in defaults"
	} else {
		c.Message = "Configuration: " + path
	}
	if warnings := cfg.Warnings(); len(warnings) > 0 {
		c.Status = CheckWarn
		c.Message += " (" + strings.Join(warnings, "; ") + ")"
		c.Fix = "llmchat config set <key> <value>"
	}
	return c
}

func (a *app) checkEndpoint(ctx context.Context, endpoint llm.EndpointConfig) []HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	target := endpoint.BaseURL
	if endpoint.CustomEndpoint != "" {
		target = endpoint.CustomEndpoint
	}
	reach := HealthCheck{Name: "endpoint", Status: CheckPass, Message: "Endpoint reachable: " + target}
	if err := a.client.Ping(ctx, endpoint); err != nil {
		reach.Status = CheckFail
		reach.Message = "Endpoint unreachable: " + err.Error()
		reach.Fix = "Start your model server (for example: ollama serve) or set apiUrl"
		return []HealthCheck{reach}
	}

	model := HealthCheck{Name: "model", Status: CheckPass, Message: "Model available: " + endpoint.Model}
	models, err := a.client.ListModels(ctx, endpoint)
	switch {
	case err != nil:
		model.Status = CheckWarn
		model.Message = "Could not list models: " + err.Error()
	case endpoint.Model == "":
		model.Status = CheckFail
		model.Message = "No model configured"
		model.Fix = "llmchat config set model <name>"
	case !slices.Contains(models, endpoint.Model):
		model.Status = CheckWarn
		model.Message = fmt.Sprintf("Model %s not reported by the endpoint (%d available)", endpoint.Model, len(models))
		if endpoint.Provider == llm.ProviderOllama {
			model.Fix = "ollama pull " + endpoint.Model
		} else {
			model.Fix = "llmchat models"
		}
	}
	return []HealthCheck{reach, model}
}

func (a *app) checkSecrets(ctx context.Context) HealthCheck {
	c := HealthCheck{Name: "secrets", Status: CheckPass}
	if a.secretsErr != nil {
		c.Status = CheckWarn
		c.Message = "Secret store unavailable, tokens are not persisted: " + a.secretsErr.Error()
		c.Fix = "Check permissions of the llmchat config directory or set " + PassphraseEnv
		return c
	}
	_, ok, err := a.secrets.Get(ctx, secrets.AuthTokenKey)
	switch {
	case err != nil:
		c.Status = CheckFail
		c.Message = "Secret store unreadable: " + err.Error()
		c.Fix = "Check " + PassphraseEnv + " matches the passphrase the token was saved with"
	case ok:
		c.Message = "Auth token: stored encrypted"
	default:
		c.Message = "Auth token: not set (only needed for endpoints that require one)"
	}
	return c
}

// printChecks writes the report and returns the number of failures.
func printChecks(w io.Writer, checks []HealthCheck) int {
	fmt.Fprintln(w, TitleStyle.Render("llmchat doctor"))
	fmt.Fprintln(w)

	var passed, warned, failed int
	for i := range checks {
		fmt.Fprintln(w, checks[i].Render())
		switch checks[i].Status {
		case CheckPass:
			passed++
		case CheckWarn:
			warned++
		case CheckFail:
			failed++
		}
	}

	fmt.Fprintln(w)
	parts := []string{fmt.Sprintf("%d passed", passed)}
	if warned > 0 {
		parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d warning", warned)))
	}
	if failed > 0 {
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintln(w, DimStyle.Render(strings.Join(parts, ", ")))
	return failed
}
