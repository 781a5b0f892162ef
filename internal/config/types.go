package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the session store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
)

// SessionsConfig configures server-side session storage and expiry
type SessionsConfig struct {
	Storage             StorageKind   `json:"storage"`
	Timeout             time.Duration `json:"-"`
	CleanupInterval     time.Duration `json:"-"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
}

// AdminConfig guards the runtime admin endpoints
type AdminConfig struct {
	Enabled     bool            `json:"enabled"`
	Username    string          `json:"username"`
	PasswordRaw json.RawMessage `json:"password,omitempty"`

	// Computed: bcrypt hash of the configured password
	HashedPassword Secret `json:"-"`
}

// FrontConfig is the service's own surface: addresses, paths, signing
type FrontConfig struct {
	BaseURL            string          `json:"baseURL"`
	Addr               string          `json:"addr"`
	Name               string          `json:"name"`
	DefaultPath        string          `json:"defaultPath"`
	CallbackPath       string          `json:"callbackPath"`
	BlockedReturnPaths []string        `json:"blockedReturnPaths,omitempty"`
	AllowedOrigins     []string        `json:"allowedOrigins,omitempty"`
	StateSigningSecret Secret          `json:"-"`
	Sessions           *SessionsConfig `json:"sessions,omitempty"`
	Admin              *AdminConfig    `json:"admin,omitempty"`
}

// IdPConfig describes the trial identity provider
type IdPConfig struct {
	AuthorizationURL string   `json:"authorizationUrl"`
	ClientID         string   `json:"clientId"`
	RedirectURL      string   `json:"redirectUrl"`
	Scopes           []string `json:"scopes,omitempty"`
}

// APIConfig describes the backing trial API
type APIConfig struct {
	BaseURL     string        `json:"baseURL"`
	Timeout     time.Duration `json:"-"`
	StatusPath  string        `json:"statusPath"`
	ProfilePath string        `json:"profilePath"`
}

// TokenValidationConfig enables local expiry checking of stored tokens
type TokenValidationConfig struct {
	Enabled bool          `json:"enabled"`
	Grace   time.Duration `json:"-"`
}

// Config represents the config structure with resolved values
type Config struct {
	Front           FrontConfig            `json:"front"`
	IdP             IdPConfig              `json:"idp"`
	API             APIConfig              `json:"api"`
	TokenValidation *TokenValidationConfig `json:"tokenValidation,omitempty"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR_NAME"} reference resolved at load time. The explicit JSON
// syntax avoids accidental shell expansion of $VAR in startup scripts and
// makes the reference unambiguous.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}
