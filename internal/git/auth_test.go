package git

import (
	"errors"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

func TestAuthMethod(t *testing.T) {
	t.Setenv("PB_GIT_TOKEN", "tok")

	m, err := authMethod(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = authMethod(&config.AuthConfig{Type: config.AuthTypeNone})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = authMethod(&config.AuthConfig{Type: config.AuthTypeToken, Token: "${PB_GIT_TOKEN}"})
	require.NoError(t, err)
	assert.Equal(t, &http.BasicAuth{Username: "token", Password: "tok"}, m)

	m, err = authMethod(&config.AuthConfig{Type: config.AuthTypeBasic, Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, &http.BasicAuth{Username: "u", Password: "p"}, m)
}

func TestAuthMethodErrors(t *testing.T) {
	cases := []*config.AuthConfig{
		{Type: config.AuthTypeToken},
		{Type: config.AuthTypeBasic, Username: "u"},
		{Type: config.AuthTypeSSH, KeyPath: "/nonexistent/id_rsa"},
		{Type: "kerberos"},
	}
	for _, c := range cases {
		_, err := authMethod(c)
		require.Error(t, err, c.Type)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryAuth), "%s: %v", c.Type, err)
	}
}

func TestClassifyGitError(t *testing.T) {
	tests := []struct {
		err       error
		category  ferrors.ErrorCategory
		transient bool
	}{
		{transport.ErrRepositoryNotFound, ferrors.CategoryNotFound, false},
		{transport.ErrAuthenticationRequired, ferrors.CategoryAuth, false},
		{errors.New("read: connection reset by peer"), ferrors.CategoryNetwork, true},
		{errors.New("dial tcp: i/o timeout"), ferrors.CategoryNetwork, true},
		{errors.New("something odd"), ferrors.CategoryGit, false},
	}
	for _, tt := range tests {
		err := classifyGitError(tt.err, "fetch", "https://example.com/r.git")
		assert.True(t, ferrors.HasCategory(err, tt.category), "%v -> %v", tt.err, err)
		assert.Equal(t, tt.transient, isTransient(err), tt.err.Error())
		assert.ErrorIs(t, err, tt.err)
	}
	assert.NoError(t, classifyGitError(nil, "fetch", ""))
}
