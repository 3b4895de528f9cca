package git

import (
	"context"
	"errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

// ErrInvalidRef is returned when a ref names no branch, tag or commit.
var ErrInvalidRef = ferrors.GitError("ref does not resolve to a commit").WithRetry(ferrors.RetryNever).Build()

// classifyGitError translates go-git errors into classified errors. Typed
// transport errors are checked first; message matching covers the rest.
func classifyGitError(err error, op, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := ferrors.AsClassified(err); ok {
		return err
	}

	builder := ferrors.GitError("git operation failed").
		WithCause(err).
		WithContext("op", op).
		WithContext("url", url)

	l := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		builder.WithCategory(ferrors.CategoryRuntime).WithRetry(ferrors.RetryNever)
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed),
		strings.Contains(l, "authentication failed"), strings.Contains(l, "not authorized"),
		strings.Contains(l, "could not read username"), strings.Contains(l, "invalid credentials"):
		builder.WithCategory(ferrors.CategoryAuth).UserAction()
	case errors.Is(err, transport.ErrRepositoryNotFound), errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		strings.Contains(l, "not found"), strings.Contains(l, "does not exist"):
		builder.WithCategory(ferrors.CategoryNotFound).WithRetry(ferrors.RetryNever)
	case strings.Contains(l, "rate limit"), strings.Contains(l, "too many requests"):
		builder.WithCategory(ferrors.CategoryNetwork).RateLimit()
	case strings.Contains(l, "remote hung up"), strings.Contains(l, "connection reset"),
		strings.Contains(l, "connection refused"), strings.Contains(l, "timeout"),
		strings.Contains(l, "no route to host"), strings.Contains(l, "temporary failure"),
		strings.Contains(l, "eof"):
		builder.WithCategory(ferrors.CategoryNetwork).Retryable()
	case errors.Is(err, transport.ErrInvalidAuthMethod), strings.Contains(l, "unsupported protocol"),
		strings.Contains(l, "protocol not supported"):
		builder.WithCategory(ferrors.CategoryConfig).WithRetry(ferrors.RetryNever)
	default:
		builder.WithRetry(ferrors.RetryNever)
	}
	return builder.Build()
}

// isTransient reports whether a fetch attempt is worth repeating.
func isTransient(err error) bool {
	ce, ok := ferrors.AsClassified(err)
	return ok && ce.IsTransient()
}
