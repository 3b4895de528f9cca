// Package handlers contains the HTTP handlers of the project build API.
//
// Handlers decode requests, call the build service and encode responses. All
// failures are written through foundation/errors.HTTPErrorAdapter so the status
// code follows the error category.
package handlers
