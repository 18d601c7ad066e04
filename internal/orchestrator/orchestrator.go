// Package orchestrator sequences exclusion checks, shadow-repository
// initialization, checkpoint creation, and metadata recording into the two
// hook entry points: before a risky mutation and after its outcome is
// known.
//
// Checkpointing is a safety net around the mutation it guards, so every
// failure in these handlers degrades to a logged no-op. The wrapped
// mutation must never be blocked because its checkpoint could not be
// taken.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ckptd/ckpt/internal/config"
	"github.com/ckptd/ckpt/internal/metastore"
	"github.com/ckptd/ckpt/internal/shadow"
	"github.com/ckptd/ckpt/internal/vcs"
)

// Event is the structured payload delivered on hook invocations.
type Event struct {
	HookEventName string         `json:"hook_event_name,omitempty"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input,omitempty"`
	ToolResponse  map[string]any `json:"tool_response,omitempty"`
	SessionID     string         `json:"session_id"`
	Cwd           string         `json:"cwd,omitempty"`
}

// checkpointWorthy are the mutation kinds that warrant a snapshot.
var checkpointWorthy = map[string]bool{
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
	"Manual":       true,
}

// minCleanupKeep is the floor on how many records auto-cleanup retains.
const minCleanupKeep = 20

// checkpointsPerDay sizes the retention window in records.
const checkpointsPerDay = 10

// Orchestrator wires the collaborators together. Construct one per
// process entry point; there is no shared mutable state beyond what the
// lock file and metadata document represent on disk.
type Orchestrator struct {
	cfg    *config.Config
	meta   *metastore.Store
	engine vcs.Engine
	log    zerolog.Logger
}

// New builds an orchestrator over explicit collaborator instances.
func New(cfg *config.Config, meta *metastore.Store, engine vcs.Engine, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, meta: meta, engine: engine, log: log}
}

// Manager returns the shadow manager for the project containing dir.
func (o *Orchestrator) Manager(dir string) (*shadow.Manager, error) {
	return shadow.NewManager(dir, o.cfg.ShadowsDir(), o.engine, o.meta, o.log)
}

// projectDir resolves the project directory from the event, falling back
// to the working directory.
func (o *Orchestrator) projectDir(ev Event) string {
	if ev.Cwd != "" {
		return ev.Cwd
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// HandleBeforeMutation snapshots the project tree ahead of a risky
// mutation and records a pending checkpoint. Always returns nil on soft
// failure; the guarded mutation proceeds regardless.
func (o *Orchestrator) HandleBeforeMutation(ctx context.Context, ev Event) error {
	o.beforeMutation(ctx, ev)
	return nil
}

// beforeMutation does the before-mutation work and returns the hash of
// the checkpoint it created, or "" when the checkpoint was skipped or
// failed.
func (o *Orchestrator) beforeMutation(ctx context.Context, ev Event) string {
	if !o.cfg.Enabled {
		return ""
	}
	if !checkpointWorthy[ev.ToolName] {
		return ""
	}

	files := metastore.FilesAffected(ev.ToolInput)
	if len(files) > 0 && o.cfg.ShouldExcludeFile(files[0]) {
		o.log.Info().Str("file", files[0]).Str("tool", ev.ToolName).Msg("target excluded, skipping checkpoint")
		return ""
	}

	dir := o.projectDir(ev)
	mgr, err := o.Manager(dir)
	if err != nil {
		o.log.Warn().Err(err).Str("dir", dir).Msg("cannot resolve project, skipping checkpoint")
		return ""
	}

	// Both initializations are lazy and non-fatal.
	if !mgr.InitProjectRepo(ctx) {
		o.log.Warn().Str("project", mgr.ProjectID()).Msg("project repo unavailable, continuing")
	}
	if !mgr.InitShadowRepo(ctx) {
		o.log.Warn().Str("project", mgr.ProjectID()).Msg("shadow repo unavailable, skipping checkpoint")
		return ""
	}

	message := composeMessage(ev, files)
	hash := mgr.CreateCheckpoint(ctx, message, shadow.NoteMetadata{
		ToolName:      ev.ToolName,
		SessionID:     ev.SessionID,
		FilesAffected: files,
	})
	if hash == "" {
		o.log.Warn().Str("tool", ev.ToolName).Msg("checkpoint creation failed, mutation proceeds")
		return ""
	}

	if _, err := o.meta.AddCheckpoint(mgr.ProjectID(), hash, ev.ToolName, ev.ToolInput, ev.SessionID); err != nil {
		// The shadow commit survives as a self-describing orphan.
		o.log.Warn().Err(err).Str("hash", hash).Msg("metadata record failed")
		return hash
	}

	if o.cfg.AutoCleanup {
		keep := o.cfg.RetentionDays * checkpointsPerDay
		if keep < minCleanupKeep {
			keep = minCleanupKeep
		}
		if err := o.meta.CleanupOld(mgr.ProjectID(), keep); err != nil {
			o.log.Warn().Err(err).Msg("metadata cleanup failed")
		}
	}
	return hash
}

// HandleAfterMutation resolves the most recent checkpoint record for the
// project and transitions it to its terminal status based on the reported
// outcome.
func (o *Orchestrator) HandleAfterMutation(ctx context.Context, ev Event) error {
	if !o.cfg.Enabled {
		return nil
	}
	if !checkpointWorthy[ev.ToolName] {
		return nil
	}

	mgr, err := o.Manager(o.projectDir(ev))
	if err != nil {
		o.log.Warn().Err(err).Msg("cannot resolve project, skipping status update")
		return nil
	}

	latest := o.meta.ListProject(mgr.ProjectID())
	if len(latest) == 0 {
		return nil
	}

	status := metastore.StatusSuccess
	if outcomeFailed(ev.ToolResponse) {
		status = metastore.StatusFailed
	}
	if err := o.meta.UpdateStatus(mgr.ProjectID(), latest[0].Hash, status, ev.ToolResponse); err != nil {
		o.log.Warn().Err(err).Str("hash", latest[0].Hash).Msg("status update failed")
	}
	return nil
}

// HandleStop takes a session-stop checkpoint when configured to.
func (o *Orchestrator) HandleStop(ctx context.Context, ev Event) error {
	if !o.cfg.Enabled || !o.cfg.CheckpointOnStop {
		return nil
	}
	manual := Event{
		ToolName:  "Manual",
		ToolInput: map[string]any{"message": "Session stop"},
		SessionID: ev.SessionID,
		Cwd:       ev.Cwd,
	}
	return o.HandleBeforeMutation(ctx, manual)
}

// CreateManualCheckpoint takes an on-demand checkpoint of dir with a
// caller-supplied message. Used by the CLI; unlike the hook handlers it
// reports failure to the operator.
func (o *Orchestrator) CreateManualCheckpoint(ctx context.Context, dir, message string) (string, error) {
	if message == "" {
		message = "Manual checkpoint"
	}
	ev := Event{
		ToolName:  "Manual",
		ToolInput: map[string]any{"message": message},
		SessionID: uuid.NewString(),
		Cwd:       dir,
	}
	hash := o.beforeMutation(ctx, ev)
	if hash == "" {
		return "", fmt.Errorf("checkpoint was not created")
	}
	return hash, nil
}

// composeMessage builds the human-readable free-text portion of the
// commit envelope from the operation kind and its target.
func composeMessage(ev Event, files []string) string {
	if ev.ToolName == "Manual" {
		if msg, ok := ev.ToolInput["message"].(string); ok && msg != "" {
			return msg
		}
		return "Manual checkpoint"
	}

	target := ""
	if len(files) > 0 {
		target = filepath.Base(files[0])
	}
	switch ev.ToolName {
	case "Write":
		if target != "" {
			return fmt.Sprintf("Before writing %s", target)
		}
	case "MultiEdit":
		if edits, ok := ev.ToolInput["edits"].([]any); ok && target != "" {
			return fmt.Sprintf("Before %d edits to %s", len(edits), target)
		}
	default:
		if target != "" {
			return fmt.Sprintf("Before editing %s", target)
		}
	}
	return fmt.Sprintf("Before %s", ev.ToolName)
}

// outcomeFailed inspects a tool response payload for a failure signal.
func outcomeFailed(resp map[string]any) bool {
	if resp == nil {
		return false
	}
	if v, ok := resp["success"].(bool); ok && !v {
		return true
	}
	if v, ok := resp["error"]; ok && v != nil {
		if s, isStr := v.(string); !isStr || s != "" {
			return true
		}
	}
	return false
}
