// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for grealth.
//
// Supports TOML, JSON and YAML configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Assistant service address and request pacing
//   - AuthConfig: Bearer credential, user identity and session expiry
//   - ExchangeConfig: Reply language, stream limits and inactivity timeout
//   - RelayConfig: Development relay server backed by Ollama
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GREALTH_*)
//   - ~/.grealth/config.toml
//   - ~/.grealth/config.json
//   - ~/.grealth/config.yaml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Reload on edit:
//
//	config.Watch(ctx, path, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        config.SetGlobal(cfg)
//	    }
//	})
package config
