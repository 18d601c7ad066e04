// Package vcs defines the version-control engine interface consumed by the
// shadow repository manager.
//
// The engine is treated as an opaque content-addressable store with
// commit/checkout/diff/notes primitives. Only a git implementation exists
// (internal/vcs/git); the shadow manager depends on this interface so tests
// can substitute a mock engine.
package vcs

import "context"

// Engine is the set of version-control operations the checkpoint system
// needs. Every method that shells out takes a context; implementations
// apply their own execution timeout and output bound on top of it.
type Engine interface {
	// IsRepo reports whether dir is the root of (or inside) a repository.
	IsRepo(dir string) bool

	// Init initializes a fresh repository in dir.
	Init(ctx context.Context, dir string) error

	// CloneLocal clones the repository at src into dst. Used to seed a
	// shadow worktree from a project's existing history.
	CloneLocal(ctx context.Context, src, dst string) error

	// AddAll stages every change in the working tree, including deletions.
	AddAll(ctx context.Context, dir string) error

	// Commit records the staged tree with the given message. When
	// allowEmpty is true a commit is created even if nothing changed.
	Commit(ctx context.Context, dir, message string, allowEmpty bool) error

	// RevParse resolves rev (e.g. "HEAD") to a full commit hash.
	RevParse(ctx context.Context, dir, rev string) (string, error)

	// ResolveCommit reports whether hash names a commit that still exists
	// in the repository's history.
	ResolveCommit(ctx context.Context, dir, hash string) bool

	// Checkout checks out the given revision into the working tree.
	Checkout(ctx context.Context, dir, rev string) error

	// CheckoutBranch switches the working tree back to the named branch.
	CheckoutBranch(ctx context.Context, dir, branch string) error

	// CurrentBranch returns the branch the working tree is on, or an
	// empty string in detached state.
	CurrentBranch(ctx context.Context, dir string) (string, error)

	// AddNote attaches an annotation payload to the given commit,
	// overwriting any existing note.
	AddNote(ctx context.Context, dir, hash, payload string) error

	// ShowNote returns the annotation attached to the given commit, or an
	// empty string if none exists.
	ShowNote(ctx context.Context, dir, hash string) (string, error)

	// CommitMessage returns the full commit message of hash.
	CommitMessage(ctx context.Context, dir, hash string) (string, error)

	// DiffStat returns a per-file change summary between the working tree
	// and rev. An empty rev diffs against HEAD.
	DiffStat(ctx context.Context, dir, rev string) (string, error)
}
