package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/digitalmarketplace/trybuy-front/internal/log"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, "v1") {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// Parse directly into the typed Config struct; the custom
	// UnmarshalJSON methods resolve env vars immediately.
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment
// resolution. Secrets must arrive as env references so they never sit in
// the config file itself.
func validateRawConfig(rawConfig map[string]any) error {
	front, ok := rawConfig["front"].(map[string]any)
	if !ok {
		return nil
	}

	secrets := []string{"stateSigningSecret"}
	for _, name := range secrets {
		value, exists := front[name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
			}
		}
	}

	if admin, ok := front["admin"].(map[string]any); ok {
		if value, exists := admin["password"]; exists {
			if _, isString := value.(string); isString {
				return fmt.Errorf("admin password must use environment variable reference for security")
			}
		}
	}

	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Front.BaseURL == "" {
		return fmt.Errorf("front.baseURL is required")
	}
	if config.Front.Addr == "" {
		return fmt.Errorf("front.addr is required")
	}
	if config.Front.DefaultPath == "" {
		return fmt.Errorf("front.defaultPath is required")
	}
	if !strings.HasPrefix(config.Front.DefaultPath, "/") {
		return fmt.Errorf("front.defaultPath must be a relative path")
	}
	if config.Front.CallbackPath == "" {
		return fmt.Errorf("front.callbackPath is required")
	}
	if len(config.Front.StateSigningSecret) < 32 {
		return fmt.Errorf("front.stateSigningSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(config.Front.StateSigningSecret))
	}

	if sessions := config.Front.Sessions; sessions != nil {
		if sessions.Timeout < 0 {
			return fmt.Errorf("front.sessions.timeout cannot be negative")
		}
		if sessions.CleanupInterval < 0 {
			return fmt.Errorf("front.sessions.cleanupInterval cannot be negative")
		}
		if sessions.Timeout > 0 && sessions.CleanupInterval > sessions.Timeout {
			log.LogWarn("Session cleanup interval is greater than session timeout")
		}
		switch sessions.Storage {
		case "", StorageMemory:
		case StorageFirestore:
			if sessions.GCPProject == "" {
				return fmt.Errorf("front.sessions.gcpProject is required when using firestore storage")
			}
		default:
			return fmt.Errorf("front.sessions.storage must be memory or firestore, got %q", sessions.Storage)
		}
	}

	if admin := config.Front.Admin; admin != nil && admin.Enabled {
		if admin.Username == "" {
			return fmt.Errorf("front.admin.username is required when admin is enabled")
		}
		if admin.HashedPassword == "" {
			return fmt.Errorf("front.admin.password is required when admin is enabled")
		}
	}

	if config.IdP.AuthorizationURL == "" {
		return fmt.Errorf("idp.authorizationUrl is required")
	}
	if config.IdP.ClientID == "" {
		return fmt.Errorf("idp.clientId is required")
	}
	if config.IdP.RedirectURL == "" {
		return fmt.Errorf("idp.redirectUrl is required")
	}

	if config.API.BaseURL == "" {
		return fmt.Errorf("api.baseURL is required")
	}

	return nil
}
