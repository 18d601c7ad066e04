// Package git provides the git implementation of the vcs.Engine interface.
//
// Every operation shells out to the git binary with a bounded timeout and
// output buffer. Shadow repositories are plain git repositories, so no
// plumbing beyond init/add/commit/checkout/notes/diff is needed.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/ckptd/ckpt/internal/vcs"
)

// Engine implements vcs.Engine by invoking the git binary.
type Engine struct{}

// New returns a git-backed engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) run(ctx context.Context, dir string, args ...string) (vcs.Result, error) {
	return vcs.ExecContext(ctx, vcs.DefaultTimeout, dir, "git", args...)
}

// IsRepo reports whether dir is inside a git work tree.
func (e *Engine) IsRepo(dir string) bool {
	res, err := e.run(context.Background(), dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(res.Stdout) == "true"
}

// Init initializes a repository with "main" as the primary branch.
func (e *Engine) Init(ctx context.Context, dir string) error {
	_, err := e.run(ctx, dir, "init", "--initial-branch", "main")
	return err
}

// CloneLocal clones src into dst without hardlinks, so the shadow worktree
// never shares object storage with the project's own repository.
func (e *Engine) CloneLocal(ctx context.Context, src, dst string) error {
	_, err := vcs.ExecContext(ctx, vcs.DefaultTimeout, "", "git", "clone", "--no-hardlinks", src, dst)
	return err
}

// AddAll stages all changes including deletions.
func (e *Engine) AddAll(ctx context.Context, dir string) error {
	_, err := e.run(ctx, dir, "add", "-A")
	return err
}

// Commit records the staged tree. Identity is pinned per-invocation so
// checkpoints work on machines without global git config.
func (e *Engine) Commit(ctx context.Context, dir, message string, allowEmpty bool) error {
	if message == "" {
		return fmt.Errorf("commit message is required")
	}
	args := []string{
		"-c", "user.name=ckpt",
		"-c", "user.email=ckpt@localhost",
		"commit", "-m", message, "--no-gpg-sign", "--no-verify",
	}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	_, err := e.run(ctx, dir, args...)
	return err
}

// RevParse resolves rev to a full commit hash.
func (e *Engine) RevParse(ctx context.Context, dir, rev string) (string, error) {
	res, err := e.run(ctx, dir, "rev-parse", rev)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ResolveCommit reports whether hash still names a commit object.
func (e *Engine) ResolveCommit(ctx context.Context, dir, hash string) bool {
	res, err := e.run(ctx, dir, "cat-file", "-t", hash)
	return err == nil && strings.TrimSpace(res.Stdout) == "commit"
}

// Checkout checks out rev into the working tree.
func (e *Engine) Checkout(ctx context.Context, dir, rev string) error {
	_, err := e.run(ctx, dir, "checkout", rev, "--")
	return err
}

// CheckoutBranch switches back to branch, discarding detached state.
func (e *Engine) CheckoutBranch(ctx context.Context, dir, branch string) error {
	_, err := e.run(ctx, dir, "checkout", "-f", branch)
	return err
}

// CurrentBranch returns the checked-out branch, or "" when detached.
func (e *Engine) CurrentBranch(ctx context.Context, dir string) (string, error) {
	res, err := e.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(res.Stdout)
	if name == "HEAD" {
		return "", nil
	}
	return name, nil
}

// AddNote attaches payload to hash, replacing any existing note.
func (e *Engine) AddNote(ctx context.Context, dir, hash, payload string) error {
	_, err := e.run(ctx, dir,
		"-c", "user.name=ckpt",
		"-c", "user.email=ckpt@localhost",
		"notes", "add", "-f", "-m", payload, hash)
	return err
}

// ShowNote returns the note attached to hash, or "" if none exists.
// A missing note is not an error; git exits non-zero for it.
func (e *Engine) ShowNote(ctx context.Context, dir, hash string) (string, error) {
	res, err := e.run(ctx, dir, "notes", "show", hash)
	if err != nil {
		if strings.Contains(res.Stderr, "no note found") {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CommitMessage returns the full message body of hash.
func (e *Engine) CommitMessage(ctx context.Context, dir, hash string) (string, error) {
	res, err := e.run(ctx, dir, "log", "-1", "--format=%B", hash)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// DiffStat returns the per-file change summary between the working tree
// and rev (HEAD when rev is empty).
func (e *Engine) DiffStat(ctx context.Context, dir, rev string) (string, error) {
	args := []string{"diff", "--stat"}
	if rev != "" {
		args = append(args, rev)
	}
	res, err := e.run(ctx, dir, args...)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}
