package config

import "os"

// AuthType enumerates supported authentication methods (stringly for YAML compatibility)
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

// AuthConfig represents git authentication for a project.
// Secret fields may hold ${VAR} references which are expanded at use time.
type AuthConfig struct {
	Type     AuthType `yaml:"type" json:"type"`
	Username string   `yaml:"username,omitempty" json:"username,omitempty"`
	Password string   `yaml:"password,omitempty" json:"password,omitempty"`
	Token    string   `yaml:"token,omitempty" json:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty" json:"key_path,omitempty"`
}

// IsZero reports whether no auth method specified.
func (a *AuthConfig) IsZero() bool { return a == nil || a.Type == "" || a.Type == AuthTypeNone }

// Expanded returns a copy with environment references resolved.
func (a *AuthConfig) Expanded() *AuthConfig {
	if a == nil {
		return nil
	}
	return &AuthConfig{
		Type:     a.Type,
		Username: os.ExpandEnv(a.Username),
		Password: os.ExpandEnv(a.Password),
		Token:    os.ExpandEnv(a.Token),
		KeyPath:  os.ExpandEnv(a.KeyPath),
	}
}

// Redacted returns a copy safe to serialize into API responses.
func (a *AuthConfig) Redacted() *AuthConfig {
	if a == nil {
		return nil
	}
	cp := *a
	if cp.Password != "" {
		cp.Password = "***"
	}
	if cp.Token != "" {
		cp.Token = "***"
	}
	return &cp
}
