// Package orchestrator coordinates project builds: it loads the project,
// takes the per-project lock, fetches the source, runs the detected build tool
// and records the terminal run. It also serves the artifact listing and the
// project management operations used by the request layer and the CLI.
//
// Every operation returns classified errors from internal/project so callers
// can map them onto transport responses with errors.Is.
package orchestrator
