package config

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// UnmarshalJSON implements custom unmarshaling for FrontConfig
func (f *FrontConfig) UnmarshalJSON(data []byte) error {
	// Use a raw type to avoid recursion
	type rawFront struct {
		BaseURL            json.RawMessage `json:"baseURL"`
		Addr               json.RawMessage `json:"addr"`
		Name               string          `json:"name"`
		DefaultPath        string          `json:"defaultPath"`
		CallbackPath       string          `json:"callbackPath"`
		BlockedReturnPaths []string        `json:"blockedReturnPaths,omitempty"`
		AllowedOrigins     []string        `json:"allowedOrigins,omitempty"`
		StateSigningSecret json.RawMessage `json:"stateSigningSecret"`
		Sessions           *SessionsConfig `json:"sessions,omitempty"`
		Admin              *AdminConfig    `json:"admin,omitempty"`
	}

	var raw rawFront
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Name = raw.Name
	f.DefaultPath = raw.DefaultPath
	f.CallbackPath = raw.CallbackPath
	f.BlockedReturnPaths = raw.BlockedReturnPaths
	f.AllowedOrigins = raw.AllowedOrigins
	f.Sessions = raw.Sessions
	f.Admin = raw.Admin

	if raw.BaseURL != nil {
		value, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseURL: %w", err)
		}
		f.BaseURL = value
	}

	if raw.Addr != nil {
		value, err := ParseConfigValue(raw.Addr)
		if err != nil {
			return fmt.Errorf("parsing addr: %w", err)
		}
		f.Addr = value
	}

	if raw.StateSigningSecret != nil {
		value, err := ParseConfigValue(raw.StateSigningSecret)
		if err != nil {
			return fmt.Errorf("parsing stateSigningSecret: %w", err)
		}
		f.StateSigningSecret = Secret(value)
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for SessionsConfig, parsing
// duration strings
func (s *SessionsConfig) UnmarshalJSON(data []byte) error {
	type rawSessions struct {
		Storage             StorageKind `json:"storage"`
		Timeout             string      `json:"timeout,omitempty"`
		CleanupInterval     string      `json:"cleanupInterval,omitempty"`
		GCPProject          string      `json:"gcpProject,omitempty"`
		FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
		FirestoreCollection string      `json:"firestoreCollection,omitempty"`
	}

	var raw rawSessions
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Storage = raw.Storage
	s.GCPProject = raw.GCPProject
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parsing sessions timeout: %w", err)
		}
		s.Timeout = d
	}
	if raw.CleanupInterval != "" {
		d, err := time.ParseDuration(raw.CleanupInterval)
		if err != nil {
			return fmt.Errorf("parsing sessions cleanupInterval: %w", err)
		}
		s.CleanupInterval = d
	}

	// Apply defaults for Firestore configuration
	if s.Storage == StorageFirestore {
		if s.FirestoreDatabase == "" {
			s.FirestoreDatabase = "(default)"
		}
		if s.FirestoreCollection == "" {
			s.FirestoreCollection = "trybuy_sessions"
		}
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for AdminConfig. The
// configured password is hashed immediately so the plaintext never lives
// in the resolved config.
func (a *AdminConfig) UnmarshalJSON(data []byte) error {
	type rawAdmin struct {
		Enabled  bool            `json:"enabled"`
		Username string          `json:"username"`
		Password json.RawMessage `json:"password,omitempty"`
	}

	var raw rawAdmin
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Enabled = raw.Enabled
	a.Username = raw.Username

	if raw.Password != nil {
		value, err := ParseConfigValue(raw.Password)
		if err != nil {
			return fmt.Errorf("parsing admin password: %w", err)
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing admin password: %w", err)
		}
		a.HashedPassword = Secret(hashed)
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for IdPConfig
func (c *IdPConfig) UnmarshalJSON(data []byte) error {
	type rawIdP struct {
		AuthorizationURL json.RawMessage `json:"authorizationUrl"`
		ClientID         json.RawMessage `json:"clientId"`
		RedirectURL      json.RawMessage `json:"redirectUrl"`
		Scopes           []string        `json:"scopes,omitempty"`
	}

	var raw rawIdP
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Scopes = raw.Scopes

	if raw.AuthorizationURL != nil {
		value, err := ParseConfigValue(raw.AuthorizationURL)
		if err != nil {
			return fmt.Errorf("parsing authorizationUrl: %w", err)
		}
		c.AuthorizationURL = value
	}
	if raw.ClientID != nil {
		value, err := ParseConfigValue(raw.ClientID)
		if err != nil {
			return fmt.Errorf("parsing clientId: %w", err)
		}
		c.ClientID = value
	}
	if raw.RedirectURL != nil {
		value, err := ParseConfigValue(raw.RedirectURL)
		if err != nil {
			return fmt.Errorf("parsing redirectUrl: %w", err)
		}
		c.RedirectURL = value
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for APIConfig
func (c *APIConfig) UnmarshalJSON(data []byte) error {
	type rawAPI struct {
		BaseURL     json.RawMessage `json:"baseURL"`
		Timeout     string          `json:"timeout,omitempty"`
		StatusPath  string          `json:"statusPath"`
		ProfilePath string          `json:"profilePath"`
	}

	var raw rawAPI
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.StatusPath = raw.StatusPath
	c.ProfilePath = raw.ProfilePath

	if raw.BaseURL != nil {
		value, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing api baseURL: %w", err)
		}
		c.BaseURL = value
	}

	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parsing api timeout: %w", err)
		}
		c.Timeout = d
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for TokenValidationConfig
func (c *TokenValidationConfig) UnmarshalJSON(data []byte) error {
	type rawValidation struct {
		Enabled bool   `json:"enabled"`
		Grace   string `json:"grace,omitempty"`
	}

	var raw rawValidation
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Enabled = raw.Enabled

	if raw.Grace != "" {
		d, err := time.ParseDuration(raw.Grace)
		if err != nil {
			return fmt.Errorf("parsing tokenValidation grace: %w", err)
		}
		c.Grace = d
	}

	return nil
}
