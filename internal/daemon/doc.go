// Package daemon composes the projectbuilder services and runs them as a
// long-lived process: the REST server, periodic rebuilds and configuration
// hot reload.
package daemon
