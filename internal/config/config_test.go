// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markusbegerow/local-llm-chat/internal/llm"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("LLMCHAT_HOME", home)
	for _, e := range envKeys {
		t.Setenv(e.env, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:11434", cfg.APIURL)
	assert.Equal(t, "llama3.2", cfg.Model)
	assert.Equal(t, "openai", cfg.APICompat)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, 50, cfg.MaxHistoryMessages)
	assert.Equal(t, 120000, cfg.RequestTimeout)
	assert.Equal(t, int64(1048576), cfg.MaxFileSize)
	assert.False(t, cfg.AllowWriteWithoutPrompt)
	assert.Contains(t, cfg.SystemPrompt, "```file path=")
	assert.NoError(t, cfg.Validate())
}

func TestDerivedSettings(t *testing.T) {
	cfg := Default()
	cfg.APICompat = "ollama"
	cfg.RequestTimeout = 1500
	cfg.CustomEndpoint = "http://gateway/v1/chat/completions"

	ep := cfg.Endpoint("tok")
	assert.Equal(t, llm.ProviderOllama, ep.Provider)
	assert.Equal(t, 1500*time.Millisecond, ep.Timeout)
	assert.Equal(t, "tok", ep.AuthToken)
	assert.Equal(t, cfg.CustomEndpoint, ep.CustomEndpoint)
	assert.Equal(t, "llama3.2", ep.Model)

	cfg.MaxFileSize = 10
	cfg.AllowWriteWithoutPrompt = true
	opts := cfg.WriteOptions()
	assert.Equal(t, int64(10), opts.MaxFileSize)
	assert.True(t, opts.AllowWithoutPrompt)
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoadTOMLKeepsExplicitZero(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
model = "qwen2.5-coder"
apiCompat = "ollama"
temperature = 0.0

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-coder", cfg.Model)
	assert.Equal(t, "ollama", cfg.APICompat)
	assert.Equal(t, 0.0, cfg.Temperature)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, "127.0.0.1:7878", cfg.Server.Addr)
}

func TestLoadJSONAndYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	writeFile(t, jsonPath, `{"model": "mistral", "maxTokens": 512, "allowWriteWithoutPrompt": true}`)
	cfg, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.Model)
	assert.Equal(t, 512, cfg.MaxTokens)
	assert.True(t, cfg.AllowWriteWithoutPrompt)

	yamlPath := filepath.Join(dir, "config.yaml")
	writeFile(t, yamlPath, "model: phi3\nmaxHistoryMessages: 8\nserver:\n  allowedOrigins:\n    - vscode-webview://abc\n")
	cfg, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "phi3", cfg.Model)
	assert.Equal(t, 8, cfg.MaxHistoryMessages)
	assert.Equal(t, []string{"vscode-webview://abc"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.toml")
	writeFile(t, unknown, `modle = "typo"`)
	_, err := Load(unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")

	invalid := filepath.Join(dir, "invalid.toml")
	writeFile(t, invalid, "temperature = 3.5\nmaxTokens = 0\n")
	_, err = Load(invalid)
	require.Error(t, err)
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Model, cfg.Model)
}

func TestLoadFileIgnoresEnvironment(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "config.toml")
	writeFile(t, path, "model = \"from-file\"\n")
	t.Setenv("LLMCHAT_MODEL", "from-env")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Model)

	missing, err := LoadFile(filepath.Join(home, "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Model, missing.Model)
}

func TestFindConfigFile(t *testing.T) {
	home := isolate(t)
	ws := t.TempDir()

	assert.Equal(t, "", FindConfigFile("", ws))
	assert.Equal(t, "/explicit.toml", FindConfigFile("/explicit.toml", ws))

	userJSON := filepath.Join(home, "config.json")
	writeFile(t, userJSON, `{}`)
	assert.Equal(t, userJSON, FindConfigFile("", ws))

	userTOML := filepath.Join(home, "config.toml")
	writeFile(t, userTOML, ``)
	assert.Equal(t, userTOML, FindConfigFile("", ws))

	local := filepath.Join(ws, LocalConfigName)
	writeFile(t, local, ``)
	assert.Equal(t, local, FindConfigFile("", ws))
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad compat", func(c *Config) { c.APICompat = "anthropic" }, "apiCompat"},
		{"bad url", func(c *Config) { c.APIURL = "ftp://host" }, "apiUrl"},
		{"temperature low", func(c *Config) { c.Temperature = -0.1 }, "temperature"},
		{"temperature high", func(c *Config) { c.Temperature = 2.1 }, "temperature"},
		{"max tokens", func(c *Config) { c.MaxTokens = 0 }, "maxTokens"},
		{"timeout", func(c *Config) { c.RequestTimeout = -1 }, "requestTimeout"},
		{"history", func(c *Config) { c.MaxHistoryMessages = 0 }, "maxHistoryMessages"},
		{"file size", func(c *Config) { c.MaxFileSize = 0 }, "maxFileSize"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidateAllowsEmptyModelAndURL(t *testing.T) {
	cfg := Default()
	cfg.Model = ""
	cfg.APIURL = ""
	assert.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Warnings(), 2)
}

func TestWarningsInvalidCustomEndpoint(t *testing.T) {
	cfg := Default()
	cfg.CustomEndpoint = "not a url"
	require.Len(t, cfg.Warnings(), 1)
	assert.Contains(t, cfg.Warnings()[0], "customEndpoint")
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{APICompat: " Ollama "}
	cfg.SetDefaults()
	assert.Equal(t, "ollama", cfg.APICompat)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:7878", cfg.Server.Addr)
	// Only fields with an obvious fallback are filled.
	assert.Equal(t, 0, cfg.MaxTokens)
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LLMCHAT_MODEL", "codellama")
	t.Setenv("LLMCHAT_TEMPERATURE", "0.1")
	t.Setenv("LLMCHAT_ALLOW_WRITE_WITHOUT_PROMPT", "yes")
	t.Setenv("LLMCHAT_LOG_LEVEL", "warn")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnvOverrides())
	assert.Equal(t, "codellama", cfg.Model)
	assert.Equal(t, 0.1, cfg.Temperature)
	assert.True(t, cfg.AllowWriteWithoutPrompt)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnvOverridesBadValue(t *testing.T) {
	isolate(t)
	t.Setenv("LLMCHAT_MAX_TOKENS", "lots")

	err := Default().ApplyEnvOverrides()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLMCHAT_MAX_TOKENS")
}

func TestEnvVar(t *testing.T) {
	env, ok := EnvVar("log.level")
	assert.True(t, ok)
	assert.Equal(t, "LLMCHAT_LOG_LEVEL", env)

	_, ok = EnvVar("server.allowedOrigins")
	assert.False(t, ok)

	keys := Keys()
	for _, e := range envKeys {
		assert.Contains(t, keys, e.key, "%s overrides an unknown key", e.env)
	}
}

func TestLoadDotEnv(t *testing.T) {
	isolate(t)
	ws := t.TempDir()

	loaded, err := LoadDotEnv(ws)
	require.NoError(t, err)
	assert.False(t, loaded)

	writeFile(t, filepath.Join(ws, ".env"), "LLMCHAT_MODEL=from-dotenv\n")
	// isolate set LLMCHAT_MODEL to "", which godotenv treats as already set.
	require.NoError(t, os.Unsetenv("LLMCHAT_MODEL"))

	loaded, err = LoadDotEnv(ws)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "from-dotenv", os.Getenv("LLMCHAT_MODEL"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Model)
}

// =============================================================================
// GET/SET
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("model", "deepseek-coder"))
	require.NoError(t, cfg.Set("maxTokens", "1024"))
	require.NoError(t, cfg.Set("max_history_messages", "12"))
	require.NoError(t, cfg.Set("TEMPERATURE", "1.5"))
	require.NoError(t, cfg.Set("log.level", "error"))
	require.NoError(t, cfg.Set("server.allowedOrigins", "a, b"))
	require.NoError(t, cfg.Set("maxFileSize", int64(4096)))

	v, err := cfg.Get("model")
	require.NoError(t, err)
	assert.Equal(t, "deepseek-coder", v)

	v, err = cfg.Get("maxHistoryMessages")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	assert.Equal(t, 1024, cfg.MaxTokens)
	assert.Equal(t, 1.5, cfg.Temperature)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, []string{"a", "b"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxFileSize)
}

func TestGetSetErrors(t *testing.T) {
	cfg := Default()

	_, err := cfg.Get("nope")
	assert.ErrorContains(t, err, "unknown setting")
	_, err = cfg.Get("log")
	assert.ErrorContains(t, err, "section")
	_, err = cfg.Get("model.name")
	assert.ErrorContains(t, err, "not a section")
	_, err = cfg.Get("")
	assert.Error(t, err)

	assert.Error(t, cfg.Set("maxTokens", "many"))
	assert.Error(t, cfg.Set("allowWriteWithoutPrompt", "maybe"))
	assert.Error(t, cfg.Set("maxTokens", []int{1}))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "apiUrl")
	assert.Contains(t, keys, "allowWriteWithoutPrompt")
	assert.Contains(t, keys, "log.level")
	assert.Contains(t, keys, "server.allowedOrigins")
	assert.NotContains(t, keys, "log")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

// =============================================================================
// SAVE
// =============================================================================

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	dir := filepath.Join(t.TempDir(), "nested")

	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			cfg := Default()
			cfg.Model = "saved-model"
			cfg.Temperature = 0
			cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

			require.NoError(t, Save(cfg, path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)

			if runtime.GOOS != "windows" {
				info, err := os.Stat(path)
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			}
		})
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# llmchat configuration file"))
}

// =============================================================================
// LOGGING
// =============================================================================

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("trace")
	assert.Error(t, err)
}

func TestSetupLoggerToFanout(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "llmchat.log")
	logger, cleanup := SetupLoggerTo(&console, path, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("request done", "model", "llama3.2")
	require.NoError(t, cleanup())

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "msg=\"request done\"")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"request done"`)
	assert.Contains(t, string(data), `"model":"llama3.2"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestSetupLoggerToConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, cleanup := SetupLoggerTo(&console, "-", slog.LevelInfo)
	logger.Info("hello")
	assert.NoError(t, cleanup())
	assert.Contains(t, console.String(), "msg=hello")
}

// =============================================================================
// WATCHER
// =============================================================================

func TestWatcherReloadsOnChange(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "model = \"first\"\n")

	var mu sync.Mutex
	var got []string
	w, err := NewWatcher(path, 20*time.Millisecond, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), func(cfg *Config) {
		mu.Lock()
		got = append(got, cfg.Model)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// A broken edit is skipped.
	writeFile(t, path, "temperature = 9.0\n")
	time.Sleep(150 * time.Millisecond)

	cfg := Default()
	cfg.Model = "second"
	require.NoError(t, Save(cfg, path))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1] == "second"
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.NotContains(t, got, "first")
	mu.Unlock()
}

func TestNewWatcherRequiresPath(t *testing.T) {
	_, err := NewWatcher("", 0, nil, nil)
	assert.Error(t, err)
}
