// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/markusbegerow/local-llm-chat/internal/filegate"
	"github.com/markusbegerow/local-llm-chat/internal/llm"
	"github.com/markusbegerow/local-llm-chat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete llmchat configuration.
type Config struct {
	// Endpoint
	APIURL         string  `toml:"apiUrl" json:"apiUrl" yaml:"apiUrl"`
	Model          string  `toml:"model" json:"model" yaml:"model"`
	APICompat      string  `toml:"apiCompat" json:"apiCompat" yaml:"apiCompat"` // "openai" or "ollama"
	CustomEndpoint string  `toml:"customEndpoint" json:"customEndpoint" yaml:"customEndpoint"`
	Temperature    float64 `toml:"temperature" json:"temperature" yaml:"temperature"`
	MaxTokens      int     `toml:"maxTokens" json:"maxTokens" yaml:"maxTokens"`
	// RequestTimeout is in milliseconds.
	RequestTimeout int `toml:"requestTimeout" json:"requestTimeout" yaml:"requestTimeout"`

	// Conversation
	SystemPrompt       string `toml:"systemPrompt" json:"systemPrompt" yaml:"systemPrompt"`
	MaxHistoryMessages int    `toml:"maxHistoryMessages" json:"maxHistoryMessages" yaml:"maxHistoryMessages"`

	// File writes; MaxFileSize is in bytes.
	MaxFileSize             int64 `toml:"maxFileSize" json:"maxFileSize" yaml:"maxFileSize"`
	AllowWriteWithoutPrompt bool  `toml:"allowWriteWithoutPrompt" json:"allowWriteWithoutPrompt" yaml:"allowWriteWithoutPrompt"`

	Log    LogConfig    `toml:"log" json:"log" yaml:"log"`
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`
	// File receives JSON logs; empty means ~/.llmchat/llmchat.log, "-" disables it.
	File string `toml:"file" json:"file" yaml:"file"`
}

// ServerConfig configures the websocket bridge.
type ServerConfig struct {
	Addr           string   `toml:"addr" json:"addr" yaml:"addr"`
	AllowedOrigins []string `toml:"allowedOrigins" json:"allowedOrigins" yaml:"allowedOrigins"`
}

// DefaultSystemPrompt documents the file block convention to the model.
const DefaultSystemPrompt = "You are a helpful coding assistant working inside the user's project. " +
	"Answer concisely and use Markdown. When you want to create or replace a file, put its complete " +
	"content in a fenced block that opens with ```file path=\"relative/path.ext\" and closes with ```. " +
	"Paths are relative to the workspace root. The user confirms every file before it is written."

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIURL:                  "http://localhost:11434",
		Model:                   "llama3.2",
		APICompat:               "openai",
		Temperature:             0.7,
		MaxTokens:               2048,
		RequestTimeout:          120000,
		SystemPrompt:            DefaultSystemPrompt,
		MaxHistoryMessages:      50,
		MaxFileSize:             1 << 20,
		AllowWriteWithoutPrompt: false,
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7878",
		},
	}
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// Timeout returns RequestTimeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// Endpoint builds the per-call endpoint configuration. The auth token lives
// in the secret store, so it is passed in.
func (c *Config) Endpoint(authToken string) llm.EndpointConfig {
	provider, err := llm.ParseProvider(c.APICompat)
	if err != nil {
		provider = llm.ProviderOpenAI
	}
	return llm.EndpointConfig{
		BaseURL:        c.APIURL,
		Provider:       provider,
		Model:          c.Model,
		AuthToken:      authToken,
		Temperature:    c.Temperature,
		MaxTokens:      c.MaxTokens,
		Timeout:        c.Timeout(),
		CustomEndpoint: c.CustomEndpoint,
	}
}

// WriteOptions returns the file gate settings.
func (c *Config) WriteOptions() filegate.Options {
	return filegate.Options{
		MaxFileSize:        c.MaxFileSize,
		AllowWithoutPrompt: c.AllowWriteWithoutPrompt,
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// LocalConfigName is the per-workspace config file.
const LocalConfigName = ".llmchat.toml"

// ConfigDir returns the llmchat configuration directory, honoring
// LLMCHAT_HOME.
func ConfigDir() (string, error) {
	if dir := os.Getenv("LLMCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".llmchat"), nil
}

// ConfigPathTOML returns the path to the user TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// FindConfigFile returns the config file to load: explicit if set, otherwise
// the first existing candidate. It returns "" when only defaults apply.
func FindConfigFile(explicit, workspaceDir string) string {
	if explicit != "" {
		return explicit
	}
	var candidates []string
	if workspaceDir != "" {
		candidates = append(candidates, filepath.Join(workspaceDir, LocalConfigName))
	}
	if dir, err := ConfigDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(dir, "config.toml"),
			filepath.Join(dir, "config.json"),
			filepath.Join(dir, "config.yaml"),
			filepath.Join(dir, "config.yml"),
		)
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads path (or defaults when path is empty), applies environment
// overrides, fills defaults and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads path onto the defaults without environment overrides or
// validation. A missing file yields the defaults. config set uses it so that
// LLMCHAT_* values are never written back to disk.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(cfg, path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}
	cfg.SetDefaults()
	return cfg, nil
}

// decodeFile decodes path onto cfg by extension. Keys absent from the file
// keep their current value, so zero is a valid explicit setting.
func decodeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("failed to decode TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys: %v", undecoded)
		}
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to path in the format implied by its extension. Files are
// written atomically with 0600 permissions.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		enc.Close()
	default:
		fmt.Fprintln(&buf, "# llmchat configuration file")
		fmt.Fprintln(&buf, "# Generated by llmchat - edit with care")
		fmt.Fprintln(&buf, "")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}

	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks value ranges. An empty model or api url is not rejected
// here; the endpoint reports it as a configuration error on the first
// request so the user can still start the program and fix settings.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if _, err := llm.ParseProvider(c.APICompat); err != nil {
		errs = append(errs, ValidationError{Field: "apiCompat", Message: "must be one of: openai, ollama"})
	}
	if c.APIURL != "" {
		if err := llm.CheckURL(c.APIURL); err != nil {
			errs = append(errs, ValidationError{Field: "apiUrl", Message: err.Error()})
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "temperature", Message: fmt.Sprintf("%.2f is outside [0, 2]", c.Temperature)})
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, ValidationError{Field: "maxTokens", Message: "must be positive"})
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "requestTimeout", Message: "must be a positive number of milliseconds"})
	}
	if c.MaxHistoryMessages < 1 {
		errs = append(errs, ValidationError{Field: "maxHistoryMessages", Message: "must be at least 1"})
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, ValidationError{Field: "maxFileSize", Message: "must be positive"})
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Warnings reports settings that are accepted but will be ignored.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.CustomEndpoint != "" {
		if err := llm.CheckURL(c.CustomEndpoint); err != nil {
			warnings = append(warnings, fmt.Sprintf("customEndpoint is ignored: %v", err))
		}
	}
	if c.Model == "" {
		warnings = append(warnings, "model is not set; requests will fail until it is")
	}
	if c.APIURL == "" && c.CustomEndpoint == "" {
		warnings = append(warnings, "apiUrl is not set; requests will fail until it is")
	}
	return warnings
}

// SetDefaults fills settings that have an obvious fallback.
func (c *Config) SetDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.APICompat) == "" {
		c.APICompat = defaults.APICompat
	}
	c.APICompat = strings.ToLower(strings.TrimSpace(c.APICompat))
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// envKeys maps environment variables onto option keys.
var envKeys = []struct {
	env string
	key string
}{
	{"LLMCHAT_API_URL", "apiUrl"},
	{"LLMCHAT_MODEL", "model"},
	{"LLMCHAT_API_COMPAT", "apiCompat"},
	{"LLMCHAT_CUSTOM_ENDPOINT", "customEndpoint"},
	{"LLMCHAT_TEMPERATURE", "temperature"},
	{"LLMCHAT_MAX_TOKENS", "maxTokens"},
	{"LLMCHAT_REQUEST_TIMEOUT", "requestTimeout"},
	{"LLMCHAT_SYSTEM_PROMPT", "systemPrompt"},
	{"LLMCHAT_MAX_HISTORY_MESSAGES", "maxHistoryMessages"},
	{"LLMCHAT_MAX_FILE_SIZE", "maxFileSize"},
	{"LLMCHAT_ALLOW_WRITE_WITHOUT_PROMPT", "allowWriteWithoutPrompt"},
	{"LLMCHAT_LOG_LEVEL", "log.level"},
	{"LLMCHAT_LOG_FILE", "log.file"},
	{"LLMCHAT_SERVER_ADDR", "server.addr"},
}

// EnvVar returns the environment variable that overrides key, if any.
func EnvVar(key string) (string, bool) {
	for _, e := range envKeys {
		if e.key == key {
			return e.env, true
		}
	}
	return "", false
}

// ApplyEnvOverrides applies LLMCHAT_* environment variables.
func (c *Config) ApplyEnvOverrides() error {
	var errs ValidateErrors
	for _, e := range envKeys {
		val, ok := os.LookupEnv(e.env)
		if !ok || val == "" {
			continue
		}
		if err := c.Set(e.key, val); err != nil {
			errs = append(errs, ValidationError{Field: e.env, Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by key, e.g. "maxTokens" or "log.level".
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by key. String input is converted to the field type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByKey(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown setting: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("%s is a section, not a setting", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("'%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// fieldByKey matches part against the toml tag or, after normalization, the
// Go field name, ignoring case.
func fieldByKey(v reflect.Value, part string) (reflect.Value, bool) {
	t := v.Type()
	normalized := normalizeFieldName(part)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("toml"), ",")[0]
		if strings.EqualFold(tag, part) || strings.EqualFold(f.Name, normalized) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(part[1:])
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		strVal = strings.TrimSpace(strVal)
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value %q", strVal)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", strVal)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				switch strings.ToLower(strVal) {
				case "yes", "on":
					boolVal = true
				case "no", "off":
					boolVal = false
				default:
					return fmt.Errorf("invalid boolean %q", strVal)
				}
			}
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("cannot assign nil")
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Keys returns every setting key in dot notation, in declaration order.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + strings.Split(f.Tag.Get("toml"), ",")[0]
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}
