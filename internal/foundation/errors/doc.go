// Package errors provides the classified error primitives used across projectbuilder.
//
// Every error that crosses a component boundary (orchestrator, store, request layer) is a
// ClassifiedError so that adapters can map it onto a transport response without string parsing:
//   - ErrorCategory: broad classification (not_found, conflict, git, build, ...)
//   - ErrorSeverity: impact level
//   - RetryStrategy: whether the caller may retry
//   - ErrorBuilder: fluent construction with context and cause
//   - HTTP and CLI adapters for presentation
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryGit, "fetch failed").
//		WithContext("url", repoURL).
//		WithCause(originalErr).
//		Retryable().
//		Build()
package errors
