// Package shadow owns the per-project shadow repository: an isolated
// content-addressable history plus a working-tree mirror of the live
// project, used as the staging area for creating and restoring snapshots.
//
// Every operation here is a safety net around someone else's mutation, so
// failures degrade to "checkpoint not available" instead of raising: the
// create/restore/diff entry points return absent/false rather than errors.
package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ckptd/ckpt/internal/metastore"
	"github.com/ckptd/ckpt/internal/project"
	"github.com/ckptd/ckpt/internal/vcs"
)

// maxNoteBytes caps the serialized annotation payload attached to a
// checkpoint commit. Oversized metadata is truncated, never rejected.
const maxNoteBytes = 1 << 20 // 1 MiB

// truncatedFileLimit is how many affected files survive truncation.
const truncatedFileLimit = 10

// hashPattern is the only shape of checkpoint identifier ever handed to
// the underlying engine. Anything else is rejected before a subprocess is
// involved.
var hashPattern = regexp.MustCompile(`^[a-f0-9]{4,40}$`)

// envelopePattern strips the internal commit message envelope down to its
// free-text portion for display.
var envelopePattern = regexp.MustCompile(`^CHECKPOINT:\s*(.*?)\s*\[[^\[\]]*\]$`)

// NoteMetadata is the compact metadata attached to each checkpoint commit,
// redundant with the external metadata document so the shadow history is
// self-describing even if that document is lost.
type NoteMetadata struct {
	ToolName      string   `json:"tool_name"`
	SessionID     string   `json:"session_id"`
	FilesAffected []string `json:"files_affected,omitempty"`
	Truncated     bool     `json:"truncated,omitempty"`
}

// Entry is one checkpoint as presented to users: the metadata record plus
// the human-readable message recovered from the commit.
type Entry struct {
	Hash      string
	Timestamp time.Time
	Message   string
	Record    metastore.Record
}

// Manager owns one project's shadow repository and working tree.
type Manager struct {
	projectDir string
	projectID  string
	shadowDir  string
	worktree   string
	engine     vcs.Engine
	meta       *metastore.Store
	log        zerolog.Logger
}

// NewManager builds the manager for the project rooted at projectDir, with
// shadow state under shadowsBase/<project identity>.
func NewManager(projectDir, shadowsBase string, engine vcs.Engine, meta *metastore.Store, log zerolog.Logger) (*Manager, error) {
	id, err := project.ID(projectDir)
	if err != nil {
		return nil, err
	}
	shadowDir := filepath.Join(shadowsBase, id)
	return &Manager{
		projectDir: projectDir,
		projectID:  id,
		shadowDir:  shadowDir,
		worktree:   filepath.Join(shadowDir, "worktree"),
		engine:     engine,
		meta:       meta,
		log:        log,
	}, nil
}

// ProjectID returns the identity partitioning this project's data.
func (m *Manager) ProjectID() string { return m.projectID }

// Worktree returns the shadow working tree path.
func (m *Manager) Worktree() string { return m.worktree }

// IsProjectRepo reports whether the project directory already participates
// in version control.
func (m *Manager) IsProjectRepo() bool {
	return m.engine.IsRepo(m.projectDir)
}

// InitProjectRepo initializes the project's own repository with a baseline
// commit covering the current tree. Idempotent; returns true immediately
// if already a repo. Failure returns false and must not block
// checkpointing, so callers treat it as non-fatal.
func (m *Manager) InitProjectRepo(ctx context.Context) bool {
	if m.IsProjectRepo() {
		return true
	}
	if err := m.engine.Init(ctx, m.projectDir); err != nil {
		m.log.Warn().Err(err).Str("project", m.projectID).Msg("project repo init failed")
		return false
	}
	if err := m.engine.AddAll(ctx, m.projectDir); err != nil {
		m.log.Warn().Err(err).Msg("project baseline staging failed")
		return false
	}
	if err := m.engine.Commit(ctx, m.projectDir, "Initial commit", true); err != nil {
		m.log.Warn().Err(err).Msg("project baseline commit failed")
		return false
	}
	return true
}

// InitShadowRepo creates the shadow repository if it does not exist. When
// the project is already version-controlled the worktree is seeded by
// cloning its history; otherwise a fresh history is initialized with a
// baseline commit. Returns false only on unrecoverable failure.
func (m *Manager) InitShadowRepo(ctx context.Context) bool {
	if m.engine.IsRepo(m.worktree) {
		return true
	}
	if err := os.MkdirAll(m.shadowDir, 0o755); err != nil {
		m.log.Warn().Err(err).Str("dir", m.shadowDir).Msg("shadow dir create failed")
		return false
	}

	if m.IsProjectRepo() {
		if err := m.engine.CloneLocal(ctx, m.projectDir, m.worktree); err != nil {
			m.log.Warn().Err(err).Str("project", m.projectID).Msg("shadow clone failed")
			return false
		}
		return true
	}

	if err := os.MkdirAll(m.worktree, 0o755); err != nil {
		m.log.Warn().Err(err).Msg("shadow worktree create failed")
		return false
	}
	if err := m.engine.Init(ctx, m.worktree); err != nil {
		m.log.Warn().Err(err).Str("project", m.projectID).Msg("shadow init failed")
		return false
	}
	if err := syncTree(m.projectDir, m.worktree); err != nil {
		m.log.Warn().Err(err).Msg("shadow baseline sync failed")
		return false
	}
	if err := m.engine.AddAll(ctx, m.worktree); err != nil {
		m.log.Warn().Err(err).Msg("shadow baseline staging failed")
		return false
	}
	if err := m.engine.Commit(ctx, m.worktree, "Initialize shadow repository", true); err != nil {
		m.log.Warn().Err(err).Msg("shadow baseline commit failed")
		return false
	}
	return true
}

// CreateCheckpoint snapshots the live project tree: sync into the
// worktree, stage everything, commit (empty allowed, since a checkpoint
// may capture no net change), annotate, and return the commit hash. Any
// step failure returns an empty hash; callers treat it as "checkpoint
// skipped".
func (m *Manager) CreateCheckpoint(ctx context.Context, message string, meta NoteMetadata) string {
	if !m.engine.IsRepo(m.worktree) {
		m.log.Warn().Str("project", m.projectID).Msg("shadow repo not initialized, skipping checkpoint")
		return ""
	}
	// A crash during a previous restore can leave the worktree detached;
	// committing there would orphan the new checkpoint.
	m.returnToPrimaryBranch(ctx)
	if err := syncTree(m.projectDir, m.worktree); err != nil {
		m.log.Warn().Err(err).Msg("checkpoint sync failed")
		return ""
	}
	if err := m.engine.AddAll(ctx, m.worktree); err != nil {
		m.log.Warn().Err(err).Msg("checkpoint staging failed")
		return ""
	}

	envelope := fmt.Sprintf("CHECKPOINT: %s [%s]", message, time.Now().UTC().Format(time.RFC3339))
	if err := m.engine.Commit(ctx, m.worktree, envelope, true); err != nil {
		m.log.Warn().Err(err).Msg("checkpoint commit failed")
		return ""
	}
	hash, err := m.engine.RevParse(ctx, m.worktree, "HEAD")
	if err != nil || hash == "" {
		m.log.Warn().Err(err).Msg("checkpoint hash retrieval failed")
		return ""
	}

	if err := m.engine.AddNote(ctx, m.worktree, hash, encodeNote(meta)); err != nil {
		// The external metadata document still carries the full record.
		m.log.Warn().Err(err).Str("hash", hash).Msg("checkpoint annotation failed")
	}
	m.returnToPrimaryBranch(ctx)

	m.log.Info().Str("project", m.projectID).Str("hash", hash).Str("tool", meta.ToolName).Msg("checkpoint created")
	return hash
}

// encodeNote serializes the annotation, truncating oversized payloads to a
// minimal subset rather than blocking the commit.
func encodeNote(meta NoteMetadata) string {
	data, err := json.Marshal(meta)
	if err == nil && len(data) <= maxNoteBytes {
		return string(data)
	}
	files := meta.FilesAffected
	if len(files) > truncatedFileLimit {
		files = files[:truncatedFileLimit]
	}
	small, _ := json.Marshal(NoteMetadata{
		ToolName:      meta.ToolName,
		SessionID:     meta.SessionID,
		FilesAffected: files,
		Truncated:     true,
	})
	return string(small)
}

// ListCheckpoints cross-references the metadata store with the shadow
// history, keeping only records whose hash still resolves to a commit.
// Metadata entries surviving history pruning or corruption are dropped
// from the listing, not from the store.
func (m *Manager) ListCheckpoints(ctx context.Context) []Entry {
	if !m.engine.IsRepo(m.worktree) {
		return nil
	}
	var entries []Entry
	for _, cp := range m.meta.ListProject(m.projectID) {
		if !m.engine.ResolveCommit(ctx, m.worktree, cp.Hash) {
			continue
		}
		message := ""
		if raw, err := m.engine.CommitMessage(ctx, m.worktree, cp.Hash); err == nil {
			message = StripEnvelope(raw)
		}
		entries = append(entries, Entry{
			Hash:      cp.Hash,
			Timestamp: cp.Timestamp,
			Message:   message,
			Record:    cp.Record,
		})
	}
	return entries
}

// StripEnvelope reduces "CHECKPOINT: <text> [<timestamp>]" to <text>.
// Messages without the envelope pass through unchanged.
func StripEnvelope(message string) string {
	first := message
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		first = message[:i]
	}
	first = strings.TrimSpace(first)
	if sub := envelopePattern.FindStringSubmatch(first); sub != nil {
		return sub[1]
	}
	return strings.TrimSpace(strings.TrimPrefix(first, "CHECKPOINT:"))
}

// ValidHash reports whether s is a syntactically plausible checkpoint
// identifier. Anything else never reaches the engine.
func ValidHash(s string) bool {
	return hashPattern.MatchString(s)
}

// RestoreCheckpoint checks the checkpoint out into the shadow worktree and
// mirrors its content back onto the live project tree. With dryRun the
// target is resolved and reported but the project tree is untouched.
func (m *Manager) RestoreCheckpoint(ctx context.Context, hash string, dryRun bool) bool {
	if !ValidHash(hash) {
		m.log.Error().Str("hash", hash).Msg("invalid checkpoint hash")
		return false
	}
	if !m.engine.IsRepo(m.worktree) {
		m.log.Error().Str("project", m.projectID).Msg("shadow repo does not exist")
		return false
	}
	if err := m.engine.Checkout(ctx, m.worktree, hash); err != nil {
		m.log.Error().Err(err).Str("hash", hash).Msg("checkpoint checkout failed")
		return false
	}
	if dryRun {
		m.log.Info().Str("hash", hash).Msg("dry run, project tree untouched")
		m.returnToPrimaryBranch(ctx)
		return true
	}
	if err := syncTree(m.worktree, m.projectDir); err != nil {
		m.log.Error().Err(err).Str("hash", hash).Msg("restore sync failed")
		m.returnToPrimaryBranch(ctx)
		return false
	}
	m.returnToPrimaryBranch(ctx)
	m.log.Info().Str("project", m.projectID).Str("hash", hash).Msg("checkpoint restored")
	return true
}

// GetCheckpointDiff refreshes the worktree from the live project tree and
// returns a per-file change summary against hash, or against the most
// recent checkpoint when hash is empty. Returns empty text if the shadow
// repo does not exist.
func (m *Manager) GetCheckpointDiff(ctx context.Context, hash string) string {
	if !m.engine.IsRepo(m.worktree) {
		return ""
	}
	if hash != "" && !ValidHash(hash) {
		m.log.Error().Str("hash", hash).Msg("invalid checkpoint hash")
		return ""
	}
	// Refresh first so the diff reflects the current uncommitted state,
	// not a stale mirror. Staging makes new files visible to the diff.
	if err := syncTree(m.projectDir, m.worktree); err != nil {
		m.log.Warn().Err(err).Msg("diff sync failed")
		return ""
	}
	if err := m.engine.AddAll(ctx, m.worktree); err != nil {
		m.log.Warn().Err(err).Msg("diff staging failed")
		return ""
	}

	target := hash
	if target == "" {
		if latest := m.latestResolvableHash(ctx); latest != "" {
			target = latest
		} else {
			target = "HEAD"
		}
	}
	out, err := m.engine.DiffStat(ctx, m.worktree, target)
	if err != nil {
		m.log.Warn().Err(err).Str("hash", target).Msg("diff failed")
		return ""
	}
	return out
}

// latestResolvableHash returns the newest metadata hash that still names a
// commit in the shadow history.
func (m *Manager) latestResolvableHash(ctx context.Context) string {
	for _, cp := range m.meta.ListProject(m.projectID) {
		if m.engine.ResolveCommit(ctx, m.worktree, cp.Hash) {
			return cp.Hash
		}
	}
	return ""
}

// returnToPrimaryBranch puts the worktree back on its branch so the next
// checkpoint commits on top of the same linear history instead of a
// detached head. Best effort.
func (m *Manager) returnToPrimaryBranch(ctx context.Context) {
	branch, err := m.engine.CurrentBranch(ctx, m.worktree)
	if err == nil && branch != "" {
		return // already on a branch
	}
	for _, candidate := range []string{"main", "master"} {
		if _, err := m.engine.RevParse(ctx, m.worktree, candidate); err != nil {
			continue
		}
		if err := m.engine.CheckoutBranch(ctx, m.worktree, candidate); err == nil {
			return
		}
	}
	m.log.Warn().Str("project", m.projectID).Msg("could not return shadow worktree to primary branch")
}
