/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted as YAML in the user scope.
// Environment variables are read-only overrides applied at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Backend       BackendConfig `yaml:"backend"`
	Editor        EditorConfig  `yaml:"editor"`
	Server        ServerConfig  `yaml:"server"`
	Logging       LoggingConfig `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	TelemetryURL   string `yaml:"telemetry_url"`
	CrashURL       string `yaml:"crash_url"`
}

// BackendConfig points the CLI at a slidecraftd instance.
// The bearer token is not stored on disk; it lives in the OS keychain.
type BackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// EditorConfig controls the local mirror and the save pipeline.
type EditorConfig struct {
	MirrorDir         string `yaml:"mirror_dir"`
	StaleMinutes      int    `yaml:"stale_minutes"`
	MaxMirrorBytes    int64  `yaml:"max_mirror_bytes"`
	SequentialUploads bool   `yaml:"sequential_uploads"`
	HistoryKeep       int    `yaml:"history_keep"`
	DropFailedUploads bool   `yaml:"drop_failed_uploads"`
}

// ServerConfig is read by slidecraftd only.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	AssetDir    string `yaml:"asset_dir"`
	AuthSecret  string `yaml:"auth_secret"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Backend:       BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Editor: EditorConfig{
			MirrorDir:      defaultMirrorDir(),
			StaleMinutes:   60,
			MaxMirrorBytes: 5 << 20,
			HistoryKeep:    20,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			DatabaseURL: "sqlite://slidecraft.db",
			AssetDir:    "assets",
		},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
	}
}

// Env var names used as overrides.
const (
	EnvBackendURL       = "SLC_BACKEND_URL"
	EnvBackendTimeoutMs = "SLC_BACKEND_TIMEOUT_MS"
	EnvBackendToken     = "SLC_BACKEND_TOKEN"
	EnvMirrorDir        = "SLC_MIRROR_DIR"
	EnvMirrorStaleMin   = "SLC_MIRROR_STALE_MINUTES"
	EnvMirrorMaxBytes   = "SLC_MIRROR_MAX_BYTES"
	EnvUploadSequential = "SLC_UPLOAD_SEQUENTIAL"
	EnvDatabaseURL      = "SLC_DATABASE_URL"
	EnvAssetDir         = "SLC_ASSET_DIR"
	EnvAddr             = "SLC_ADDR"
	EnvAuthSecret       = "SLC_AUTH_SECRET"
	EnvTelemetryOptIn   = "SLC_TELEMETRY_OPT_IN"
	EnvTelemetryURL     = "SLC_TELEMETRY_URL"
	EnvCrashURL         = "SLC_CRASH_UPLOAD_URL"
	EnvLogLevel         = "SLC_LOG_LEVEL"
	EnvLogFormat        = "SLC_LOG_FORMAT"
	EnvLogSource        = "SLC_LOG_SOURCE"
	EnvLogFile          = "SLC_LOG_FILE"
)

// Service/keys for the OS keyring.
const (
	keyringService = "slidecraft"
	keyringToken   = "backend_token"
)

// TokenStore abstracts the keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// SetTokenStore swaps the token backend and returns a restore func.
func SetTokenStore(ts TokenStore) func() {
	prev := tokenStore
	tokenStore = ts
	return func() { tokenStore = prev }
}

type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	base, err := userDir("config")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

func defaultMirrorDir() string {
	d, err := userDir("data")
	if err != nil {
		return ".slidecraft"
	}
	return d
}

func userDir(kind string) (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "slidecraft")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "slidecraft")
	default:
		if kind == "data" {
			if x := os.Getenv("XDG_DATA_HOME"); x != "" {
				base = filepath.Join(x, "slidecraft")
				break
			}
			base = filepath.Join(os.Getenv("HOME"), ".local", "share", "slidecraft")
			break
		}
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "slidecraft")
			break
		}
		base = filepath.Join(os.Getenv("HOME"), ".config", "slidecraft")
	}
	if base == "" || base == "slidecraft" {
		return "", errors.New("cannot resolve user directory")
	}
	return base, nil
}

// Load reads the user config file (if present), applies defaults and env overrides.
// The backend token is returned separately; SLC_BACKEND_TOKEN wins over the keyring.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, os.Getenv(EnvBackendToken), err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path.
func LoadFrom(path string) (AppConfig, string, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse config %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)

	tok := strings.TrimSpace(os.Getenv(EnvBackendToken))
	if tok == "" {
		tok, _ = tokenStore.Get(keyringService, keyringToken)
	}
	return cfg, tok, nil
}

// Save writes the user config YAML and stores the token in the OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg, token)
}

// SaveTo is Save with an explicit file path.
func SaveTo(path string, cfg AppConfig, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// ClearToken removes the backend token from the keyring.
func ClearToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans are copied directly so file preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	setStr(&dst.General.TelemetryURL, src.General.TelemetryURL)
	setStr(&dst.General.CrashURL, src.General.CrashURL)

	setStr(&dst.Backend.BaseURL, src.Backend.BaseURL)
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}

	setStr(&dst.Editor.MirrorDir, src.Editor.MirrorDir)
	if src.Editor.StaleMinutes > 0 {
		dst.Editor.StaleMinutes = src.Editor.StaleMinutes
	}
	if src.Editor.MaxMirrorBytes > 0 {
		dst.Editor.MaxMirrorBytes = src.Editor.MaxMirrorBytes
	}
	if src.Editor.HistoryKeep > 0 {
		dst.Editor.HistoryKeep = src.Editor.HistoryKeep
	}
	dst.Editor.SequentialUploads = src.Editor.SequentialUploads
	dst.Editor.DropFailedUploads = src.Editor.DropFailedUploads

	setStr(&dst.Server.Addr, src.Server.Addr)
	setStr(&dst.Server.DatabaseURL, src.Server.DatabaseURL)
	setStr(&dst.Server.AssetDir, src.Server.AssetDir)
	setStr(&dst.Server.AuthSecret, src.Server.AuthSecret)

	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	setStr(&dst.Logging.File, src.Logging.File)
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	env := func(k string) string { return strings.TrimSpace(os.Getenv(k)) }

	if v := env(EnvBackendURL); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := env(EnvBackendTimeoutMs); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := env(EnvMirrorDir); v != "" {
		cfg.Editor.MirrorDir = v
	}
	if v := env(EnvMirrorStaleMin); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Editor.StaleMinutes = n
		}
	}
	if v := env(EnvMirrorMaxBytes); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Editor.MaxMirrorBytes = n
		}
	}
	if v := env(EnvUploadSequential); v != "" {
		cfg.Editor.SequentialUploads = envBool(v)
	}
	if v := env(EnvDatabaseURL); v != "" {
		cfg.Server.DatabaseURL = v
	}
	if v := env(EnvAssetDir); v != "" {
		cfg.Server.AssetDir = v
	}
	if v := env(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := env(EnvAuthSecret); v != "" {
		cfg.Server.AuthSecret = v
	}
	if v := env(EnvTelemetryOptIn); v != "" {
		cfg.General.TelemetryOptIn = envBool(v)
	}
	if v := env(EnvTelemetryURL); v != "" {
		cfg.General.TelemetryURL = v
	}
	if v := env(EnvCrashURL); v != "" {
		cfg.General.CrashURL = v
	}
	if v := env(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := env(EnvLogFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := env(EnvLogSource); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	if v := env(EnvLogFile); v != "" {
		cfg.Logging.File = v
	}
}

var envByKey = map[string]string{
	"backend.base_url":          EnvBackendURL,
	"backend.timeout_ms":        EnvBackendTimeoutMs,
	"editor.mirror_dir":         EnvMirrorDir,
	"editor.stale_minutes":      EnvMirrorStaleMin,
	"editor.max_mirror_bytes":   EnvMirrorMaxBytes,
	"editor.sequential_uploads": EnvUploadSequential,
	"server.addr":               EnvAddr,
	"server.database_url":       EnvDatabaseURL,
	"server.asset_dir":          EnvAssetDir,
	"server.auth_secret":        EnvAuthSecret,
	"general.telemetry_opt_in":  EnvTelemetryOptIn,
	"general.telemetry_url":     EnvTelemetryURL,
	"general.crash_url":         EnvCrashURL,
	"logging.level":             EnvLogLevel,
	"logging.format":            EnvLogFormat,
	"logging.source":            EnvLogSource,
	"logging.file":              EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is currently overridden by the environment.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envByKey[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Timeout returns the backend HTTP timeout, falling back to the default for non-positive values.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// StaleAfter returns the mirror staleness window.
func (e EditorConfig) StaleAfter() time.Duration {
	if e.StaleMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(e.StaleMinutes) * time.Minute
}
