// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Anthonyvijay10/GrealthAI/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete grealth configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	Server   ServerConfig   `toml:"server" json:"server" yaml:"server"`
	Auth     AuthConfig     `toml:"auth" json:"auth" yaml:"auth"`
	Exchange ExchangeConfig `toml:"exchange" json:"exchange" yaml:"exchange"`
	Playback PlaybackConfig `toml:"playback" json:"playback" yaml:"playback"`
	Storage  StorageConfig  `toml:"storage" json:"storage" yaml:"storage"`
	UI       UIConfig       `toml:"ui" json:"ui" yaml:"ui"`
	Relay    RelayConfig    `toml:"relay" json:"relay" yaml:"relay"`
}

// ServerConfig contains settings for the assistant service connection.
type ServerConfig struct {
	// BaseURL is the root of the assistant service API
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`

	// RequestTimeoutSecs bounds non-streaming requests
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs" yaml:"request_timeout_secs"`

	// ConnectTimeoutSecs bounds connection setup for streaming requests
	ConnectTimeoutSecs int `toml:"connect_timeout_secs" json:"connect_timeout_secs" yaml:"connect_timeout_secs"`

	// RequestsPerSecond paces outgoing requests (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"`
}

// AuthConfig contains the identity used for exchanges.
type AuthConfig struct {
	// Token is the bearer credential issued by the identity provider
	Token string `toml:"token" json:"token" yaml:"token"`

	// UserIdentity is the user's email address
	UserIdentity string `toml:"user_identity" json:"user_identity" yaml:"user_identity"`

	// SessionMaxAgeHours matches the service's own session expiry
	SessionMaxAgeHours int `toml:"session_max_age_hours" json:"session_max_age_hours" yaml:"session_max_age_hours"`

	// SessionIdleMinutes drops an unused session (0 = never)
	SessionIdleMinutes int `toml:"session_idle_minutes" json:"session_idle_minutes" yaml:"session_idle_minutes"`
}

// ExchangeConfig contains settings for a single request/response exchange.
type ExchangeConfig struct {
	// TargetLanguage is the language replies should be written in
	TargetLanguage string `toml:"target_language" json:"target_language" yaml:"target_language"`

	// InactivityTimeoutSecs fails a stream that stops producing data (0 = never)
	InactivityTimeoutSecs int `toml:"inactivity_timeout_secs" json:"inactivity_timeout_secs" yaml:"inactivity_timeout_secs"`

	// MaxLineBytes is the largest stream line accepted
	MaxLineBytes int `toml:"max_line_bytes" json:"max_line_bytes" yaml:"max_line_bytes"`

	// LanguageHint appends "explain only in <language> language" to messages
	LanguageHint bool `toml:"language_hint" json:"language_hint" yaml:"language_hint"`
}

// PlaybackConfig contains settings for spoken playback of replies.
type PlaybackConfig struct {
	CacheEntries int    `toml:"cache_entries" json:"cache_entries" yaml:"cache_entries"`
	AudioDir     string `toml:"audio_dir" json:"audio_dir" yaml:"audio_dir"`

	// Command plays an audio file; the file path is appended as last argument
	Command string `toml:"command" json:"command" yaml:"command"`
}

// StorageConfig contains settings for transcript persistence.
type StorageConfig struct {
	// Backend is "json" or "sqlite"
	Backend string `toml:"backend" json:"backend" yaml:"backend"`
	Dir     string `toml:"dir" json:"dir" yaml:"dir"`

	// AutoSave persists the transcript when a chat ends
	AutoSave bool `toml:"auto_save" json:"auto_save" yaml:"auto_save"`
}

// UIConfig contains terminal output settings.
type UIConfig struct {
	Markdown bool `toml:"markdown" json:"markdown" yaml:"markdown"`

	// Color is "auto", "always" or "never"
	Color string `toml:"color" json:"color" yaml:"color"`

	// Width wraps rendered output (0 = terminal width)
	Width int `toml:"width" json:"width" yaml:"width"`
}

// RelayConfig contains settings for the development relay server.
type RelayConfig struct {
	Listen    string `toml:"listen" json:"listen" yaml:"listen"`
	OllamaURL string `toml:"ollama_url" json:"ollama_url" yaml:"ollama_url"`
	Model     string `toml:"model" json:"model" yaml:"model"`

	// Tokens are the bearer credentials the relay accepts (empty = any)
	Tokens []string `toml:"tokens" json:"tokens" yaml:"tokens"`

	// RequestsPerMinute limits each client (0 = unlimited)
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute"`

	SessionHours int `toml:"session_hours" json:"session_hours" yaml:"session_hours"`
}

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			BaseURL:            "http://127.0.0.1:4000",
			RequestTimeoutSecs: 30,
			ConnectTimeoutSecs: 15,
			RequestsPerSecond:  5,
		},
		Auth: AuthConfig{
			SessionMaxAgeHours: 24,
			SessionIdleMinutes: 30,
		},
		Exchange: ExchangeConfig{
			TargetLanguage:        "English",
			InactivityTimeoutSecs: 120,
			MaxLineBytes:          1 << 20,
			LanguageHint:          true,
		},
		Playback: PlaybackConfig{
			CacheEntries: 32,
		},
		Storage: StorageConfig{
			Backend:  "json",
			AutoSave: true,
		},
		UI: UIConfig{
			Markdown: true,
			Color:    "auto",
		},
		Relay: RelayConfig{
			Listen:            "127.0.0.1:4000",
			OllamaURL:         "http://127.0.0.1:11434",
			Model:             "gemma3:1b",
			RequestsPerMinute: 60,
			SessionHours:      24,
		},
	}
}

// =============================================================================
// DURATION ACCESSORS
// =============================================================================

// RequestTimeout returns the request timeout as a duration.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// ConnectTimeout returns the connect timeout as a duration.
func (s ServerConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSecs) * time.Second
}

// SessionMaxAge returns the session lifetime.
func (a AuthConfig) SessionMaxAge() time.Duration {
	return time.Duration(a.SessionMaxAgeHours) * time.Hour
}

// SessionIdle returns the session idle timeout.
func (a AuthConfig) SessionIdle() time.Duration {
	return time.Duration(a.SessionIdleMinutes) * time.Minute
}

// InactivityTimeout returns the stream inactivity timeout.
func (e ExchangeConfig) InactivityTimeout() time.Duration {
	return time.Duration(e.InactivityTimeoutSecs) * time.Second
}

// SessionTTL returns how long relay sessions stay valid.
func (r RelayConfig) SessionTTL() time.Duration {
	return time.Duration(r.SessionHours) * time.Hour
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the grealth configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("GREALTH_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".grealth"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	return inConfigDir("config.toml")
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	return inConfigDir("config.json")
}

// ConfigPathYAML returns the path to the YAML config file.
func ConfigPathYAML() (string, error) {
	return inConfigDir("config.yaml")
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// StorageDir returns the transcript directory, defaulting to
// ~/.grealth/transcripts.
func (c *Config) StorageDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	return inConfigDir("transcripts")
}

// AudioDir returns the playback audio directory, defaulting to
// ~/.grealth/audio.
func (c *Config) AudioDir() (string, error) {
	if c.Playback.AudioDir != "" {
		return c.Playback.AudioDir, nil
	}
	return inConfigDir("audio")
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens config files to 0600; they may hold a
// bearer token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config directory.
// Tries TOML, then JSON, then YAML, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	var loadErr error
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON, ConfigPathYAML} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err != nil {
			if loadErr == nil {
				loadErr = err
			}
			continue
		}
		return cfg, nil
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	// Defaults, with the first load error for informational purposes
	return cfg, loadErr
}

// LoadTOML decodes a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	warnPermissions(path)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	warnPermissions(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadYAML decodes a YAML file into cfg.
func LoadYAML(cfg *Config, path string) error {
	warnPermissions(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	return fillDefaults(cfg)
}

func warnPermissions(path string) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The format is chosen by extension; anything unrecognized is
// read as TOML. Keys missing from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if lang, err := NormalizeLanguage(c.Exchange.TargetLanguage); err == nil {
		c.Exchange.TargetLanguage = lang
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}
	if cfg.Exchange.TargetLanguage == "" {
		cfg.Exchange.TargetLanguage = defaults.Exchange.TargetLanguage
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.UI.Color == "" {
		cfg.UI.Color = defaults.UI.Color
	}
	if cfg.Relay.Listen == "" {
		cfg.Relay.Listen = defaults.Relay.Listen
	}
	if cfg.Relay.OllamaURL == "" {
		cfg.Relay.OllamaURL = defaults.Relay.OllamaURL
	}
	if cfg.Relay.Model == "" {
		cfg.Relay.Model = defaults.Relay.Model
	}
	return nil
}

// SetDefaults replaces zero values that have no meaning as zero.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Server.RequestTimeoutSecs <= 0 {
		c.Server.RequestTimeoutSecs = defaults.Server.RequestTimeoutSecs
	}
	if c.Server.ConnectTimeoutSecs <= 0 {
		c.Server.ConnectTimeoutSecs = defaults.Server.ConnectTimeoutSecs
	}
	if c.Auth.SessionMaxAgeHours <= 0 {
		c.Auth.SessionMaxAgeHours = defaults.Auth.SessionMaxAgeHours
	}
	if c.Exchange.MaxLineBytes == 0 {
		c.Exchange.MaxLineBytes = defaults.Exchange.MaxLineBytes
	}
	if c.Relay.SessionHours <= 0 {
		c.Relay.SessionHours = defaults.Relay.SessionHours
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	c.UI.Color = strings.ToLower(c.UI.Color)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo saves the configuration in the format implied by the path's
// extension.
func SaveTo(cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SaveJSON(cfg, path)
	case ".yaml", ".yml":
		return SaveYAML(cfg, path)
	default:
		return SaveTOML(cfg, path)
	}
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# grealth configuration file\n")
	b.WriteString("# Generated by grealth - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeConfig(path, []byte(b.String()))
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeConfig(path, data)
}

// SaveYAML saves the configuration to a YAML file with 0600 permissions.
func SaveYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeConfig(path, data)
}

func writeConfig(path string, data []byte) error {
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
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

// ValidateErrors collects every validation failure.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors listing
// every invalid field, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if msg := checkHTTPURL(c.Server.BaseURL); msg != "" {
		add("server.base_url", "%s", msg)
	}
	if c.Server.RequestTimeoutSecs < 0 {
		add("server.request_timeout_secs", "must not be negative")
	}
	if c.Server.ConnectTimeoutSecs < 0 {
		add("server.connect_timeout_secs", "must not be negative")
	}
	if c.Server.RequestsPerSecond < 0 {
		add("server.requests_per_second", "must not be negative")
	}

	if c.Auth.SessionIdleMinutes < 0 {
		add("auth.session_idle_minutes", "must not be negative")
	}

	if _, err := NormalizeLanguage(c.Exchange.TargetLanguage); err != nil {
		add("exchange.target_language", "%v", err)
	}
	if c.Exchange.InactivityTimeoutSecs < 0 {
		add("exchange.inactivity_timeout_secs", "must not be negative")
	}
	if c.Exchange.MaxLineBytes < 1024 {
		add("exchange.max_line_bytes", "must be at least 1024 (got %d)", c.Exchange.MaxLineBytes)
	}

	if c.Playback.CacheEntries < 0 {
		add("playback.cache_entries", "must not be negative")
	}

	switch c.Storage.Backend {
	case "json", "sqlite":
	default:
		add("storage.backend", "must be json or sqlite (got %q)", c.Storage.Backend)
	}

	switch c.UI.Color {
	case "auto", "always", "never":
	default:
		add("ui.color", "must be auto, always or never (got %q)", c.UI.Color)
	}
	if c.UI.Width < 0 {
		add("ui.width", "must not be negative")
	}

	if c.Relay.Listen == "" {
		add("relay.listen", "must not be empty")
	}
	if msg := checkHTTPURL(c.Relay.OllamaURL); msg != "" {
		add("relay.ollama_url", "%s", msg)
	}
	if c.Relay.RequestsPerMinute < 0 {
		add("relay.requests_per_minute", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func checkHTTPURL(raw string) string {
	if raw == "" {
		return "must not be empty"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("scheme must be http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return "missing host"
	}
	return ""
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - GREALTH_BASE_URL: overrides server.base_url
//   - GREALTH_TOKEN: overrides auth.token
//   - GREALTH_USER: overrides auth.user_identity
//   - GREALTH_LANGUAGE: overrides exchange.target_language
//   - GREALTH_LANGUAGE_HINT: "1"/"true" or "0"/"false"
//   - GREALTH_STORAGE_BACKEND: overrides storage.backend
//   - GREALTH_STORAGE_DIR: overrides storage.dir
//   - GREALTH_NO_COLOR / NO_COLOR: forces ui.color = never
//   - GREALTH_RELAY_LISTEN: overrides relay.listen
//   - GREALTH_OLLAMA_URL: overrides relay.ollama_url
//   - GREALTH_MODEL: overrides relay.model
//   - GREALTH_RELAY_TOKENS: comma-separated relay.tokens
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("GREALTH_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("GREALTH_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv("GREALTH_USER"); v != "" {
		c.Auth.UserIdentity = v
	}
	if v := os.Getenv("GREALTH_LANGUAGE"); v != "" {
		c.Exchange.TargetLanguage = v
	}
	if v := os.Getenv("GREALTH_LANGUAGE_HINT"); v != "" {
		c.Exchange.LanguageHint = parseBool(v)
	}
	if v := os.Getenv("GREALTH_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("GREALTH_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if os.Getenv("GREALTH_NO_COLOR") != "" || os.Getenv("NO_COLOR") != "" {
		c.UI.Color = "never"
	}
	if v := os.Getenv("GREALTH_RELAY_LISTEN"); v != "" {
		c.Relay.Listen = v
	}
	if v := os.Getenv("GREALTH_OLLAMA_URL"); v != "" {
		c.Relay.OllamaURL = v
	}
	if v := os.Getenv("GREALTH_MODEL"); v != "" {
		c.Relay.Model = v
	}
	if v := os.Getenv("GREALTH_RELAY_TOKENS"); v != "" {
		c.Relay.Tokens = splitList(v)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation
// (e.g., "exchange.target_language").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
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
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type
// conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				field.Set(reflect.ValueOf(splitList(strVal)))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
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

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"server.base_url",
		"server.request_timeout_secs",
		"server.connect_timeout_secs",
		"server.requests_per_second",
		"auth.token",
		"auth.user_identity",
		"auth.session_max_age_hours",
		"auth.session_idle_minutes",
		"exchange.target_language",
		"exchange.inactivity_timeout_secs",
		"exchange.max_line_bytes",
		"exchange.language_hint",
		"playback.cache_entries",
		"playback.audio_dir",
		"playback.command",
		"storage.backend",
		"storage.dir",
		"storage.auto_save",
		"ui.markdown",
		"ui.color",
		"ui.width",
		"relay.listen",
		"relay.ollama_url",
		"relay.model",
		"relay.tokens",
		"relay.requests_per_minute",
		"relay.session_hours",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Relay.Tokens != nil {
		clone.Relay.Tokens = append([]string(nil), c.Relay.Tokens...)
	}
	return &clone
}

// String returns a JSON rendering of the config with credentials redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Auth.Token != "" {
		safe.Auth.Token = "[REDACTED]"
	}
	for i := range safe.Relay.Tokens {
		safe.Relay.Tokens[i] = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
