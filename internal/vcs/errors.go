package vcs

import "errors"

// Common errors returned by engine operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, vcs.ErrNotARepo) {
//	    // shadow repo was never initialized
//	}
var (
	// ErrNotARepo is returned when an operation requires a repository
	// but the directory is not one.
	ErrNotARepo = errors.New("not a repository")

	// ErrEngineNotAvailable is returned when the git binary is not
	// installed or not in PATH.
	ErrEngineNotAvailable = errors.New("version-control binary not available")

	// ErrCommandFailed is returned when the engine exits non-zero.
	// The wrapping error carries the command and trimmed stderr.
	ErrCommandFailed = errors.New("version-control command failed")

	// ErrTimeout is returned when an engine operation exceeds its
	// execution timeout.
	ErrTimeout = errors.New("operation timed out")

	// ErrOutputTruncated is returned when command output exceeds the
	// bounded capture buffer.
	ErrOutputTruncated = errors.New("command output exceeded buffer limit")
)
