// Package git materializes project working copies with go-git.
//
// A working copy is cloned on first use and afterwards fetched and hard reset
// to the project's ref. Any failure part way through marks the working copy
// invalid so the next fetch starts from a fresh clone.
package git
