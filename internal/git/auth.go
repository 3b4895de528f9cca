package git

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

// authProvider turns an expanded AuthConfig into a go-git auth method.
type authProvider func(*config.AuthConfig) (transport.AuthMethod, error)

var authProviders = map[config.AuthType]authProvider{
	config.AuthTypeNone:  noAuth,
	"":                   noAuth,
	config.AuthTypeSSH:   sshAuth,
	config.AuthTypeToken: tokenAuth,
	config.AuthTypeBasic: basicAuth,
}

// authMethod resolves ${VAR} references and builds the transport auth.
func authMethod(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg == nil {
		return nil, nil
	}
	provider, ok := authProviders[cfg.Type]
	if !ok {
		return nil, ferrors.AuthError("unsupported authentication type").
			WithContext("type", string(cfg.Type)).Build()
	}
	return provider(cfg.Expanded())
}

func noAuth(*config.AuthConfig) (transport.AuthMethod, error) { return nil, nil }

func sshAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	keyPath := cfg.KeyPath
	if keyPath == "" {
		keyPath = filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
	}
	user := cfg.Username
	if user == "" {
		user = "git"
	}
	keys, err := ssh.NewPublicKeysFromFile(user, keyPath, cfg.Password)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryAuth, fmt.Sprintf("failed to load SSH key from %s", keyPath)).
			UserAction().Build()
	}
	return keys, nil
}

func tokenAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg.Token == "" {
		return nil, ferrors.AuthError("token authentication requires a token").Build()
	}
	user := cfg.Username
	if user == "" {
		user = "token"
	}
	return &http.BasicAuth{Username: user, Password: cfg.Token}, nil
}

func basicAuth(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, ferrors.AuthError("basic authentication requires username and password").Build()
	}
	return &http.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
}
