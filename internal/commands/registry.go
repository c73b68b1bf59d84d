// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/markusbegerow/local-llm-chat/internal/workspace"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/read <path>")
	Usage string

	// Args defines the expected arguments, used for completion
	Args []ArgDef

	// Handler is the function that executes the command
	Handler Handler

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name     string
	Required bool
	Type     ArgType
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString ArgType = iota // Free-form string
	ArgTypeFile                  // Workspace file path
	ArgTypeDir                   // Workspace directory path
	ArgTypeModel                 // Model name from the endpoint
)

// Handler executes a command. Errors are reported to the user and never
// change the conversation.
type Handler func(ctx context.Context, env *Env, args []string) (Result, error)

// ModelLister lists the models the configured endpoint offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Env is what handlers may touch. Commands are read-only against it.
type Env struct {
	Workspace    *workspace.Workspace
	Models       ModelLister
	CurrentModel string
	Registry     *Registry
}

// Result is the outcome of one command.
type Result struct {
	// Report is posted to the display as an assistant-role message.
	Report string

	// ContextMessage, when set, is appended to the conversation as a
	// user-role message.
	ContextMessage string

	// Clear asks the session to reset the conversation.
	Clear bool

	// Unknown is set when no command matched.
	Unknown bool
}

// UnknownCommandMessage is posted for an unrecognized command token.
func UnknownCommandMessage(token string) string {
	return fmt.Sprintf("Unknown command: %s. Type /help for available commands.", token)
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry. Names are matched without case.
func (r *Registry) Register(cmd *Command) {
	r.commands[strings.ToLower(cmd.Name)] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[strings.ToLower(alias)] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool {
		return cmds[i].Name < cmds[j].Name
	})
	return cmds
}

// ByCategory returns commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Dispatch parses input and runs the matching command. Input that is not a
// command is a programming error for the caller and is reported as one.
func (r *Registry) Dispatch(ctx context.Context, env *Env, input string) (Result, error) {
	parsed := r.Parse(input)
	if !parsed.IsCommand {
		return Result{}, fmt.Errorf("not a command: %q", input)
	}
	if parsed.Command == nil {
		return Result{Report: UnknownCommandMessage(parsed.CommandName), Unknown: true}, nil
	}

	if env == nil {
		env = &Env{}
	}
	if env.Registry == nil {
		scoped := *env
		scoped.Registry = r
		env = &scoped
	}
	return parsed.Command.Handler(ctx, env, parsed.Args)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/read",
		Aliases:     []string{"/r", "/open"},
		Description: "Read a workspace file into the conversation",
		Usage:       "/read <path>",
		Args:        []ArgDef{{Name: "path", Required: true, Type: ArgTypeFile}},
		Category:    "Workspace",
		Handler:     HandleRead,
	})

	r.Register(&Command{
		Name:        "/list",
		Aliases:     []string{"/ls"},
		Description: "List files and directories",
		Usage:       listUsage,
		Args:        []ArgDef{{Name: "path", Type: ArgTypeDir}},
		Category:    "Workspace",
		Handler:     HandleList,
	})

	r.Register(&Command{
		Name:        "/search",
		Aliases:     []string{"/find", "/glob"},
		Description: "Find files matching a glob pattern",
		Usage:       "/search <pattern> [max]",
		Args:        []ArgDef{{Name: "pattern", Required: true, Type: ArgTypeString}},
		Category:    "Workspace",
		Handler:     HandleSearch,
	})

	r.Register(&Command{
		Name:        "/workspace",
		Aliases:     []string{"/info", "/ws"},
		Description: "Show workspace information",
		Category:    "Workspace",
		Handler:     HandleWorkspace,
	})

	r.Register(&Command{
		Name:        "/models",
		Description: "List models available at the endpoint",
		Category:    "Model",
		Handler:     HandleModels,
	})

	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/new"},
		Description: "Start a new conversation",
		Category:    "Conversation",
		Handler:     HandleClear,
	})

	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Category:    "Conversation",
		Handler:     HandleHelp,
	})
}
