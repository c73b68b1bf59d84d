// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for llmchat.
//
// TOML is the primary format; JSON and YAML files are accepted by extension.
// Values are applied in this order, later sources winning:
//
//  1. Built-in defaults (Default)
//  2. The first config file found: --config flag, ./.llmchat.toml in the
//     workspace, ~/.llmchat/config.toml, ~/.llmchat/config.json,
//     ~/.llmchat/config.yaml
//  3. LLMCHAT_* environment variables, including ones loaded from a
//     workspace .env file
//
// Option names follow the editor setting names (apiUrl, maxTokens, ...) and
// are addressable with Get and Set:
//
//	cfg.Set("temperature", "0.2")
//	v, _ := cfg.Get("log.level")
//
// The package also sets up structured logging (SetupLoggerTo) and can watch
// a config file for changes (NewWatcher).
package config
