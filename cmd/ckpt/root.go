package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ckptd/ckpt/internal/config"
	"github.com/ckptd/ckpt/internal/logging"
	"github.com/ckptd/ckpt/internal/metastore"
	"github.com/ckptd/ckpt/internal/orchestrator"
	"github.com/ckptd/ckpt/internal/shadow"
	"github.com/ckptd/ckpt/internal/vcs/git"
)

var rootCmd = &cobra.Command{
	Use:   "ckpt",
	Short: "Automatic checkpoints for agent-driven file mutations",
	Long: `ckpt snapshots a project into a per-project shadow repository before
risky file mutations, so any change can be inspected and rolled back.

Checkpoints are created automatically from hook events (see "ckpt hook")
or on demand with "ckpt checkpoint". State lives under ~/.ckpt.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// app bundles the collaborators every command needs. Built fresh per
// invocation; the process is short-lived.
type app struct {
	cfg  *config.Config
	log  zerolog.Logger
	meta *metastore.Store
	orch *orchestrator.Orchestrator
}

func newApp() *app {
	cfg := config.Load(os.Getenv("CKPT_BASE_DIR"))
	log := logging.New(cfg.LogPath(), cfg.LogLevel)
	meta := metastore.New(cfg.MetadataPath(), log)
	orch := orchestrator.New(cfg, meta, git.New(), log)
	return &app{cfg: cfg, log: log, meta: meta, orch: orch}
}

// manager resolves the shadow manager for the current working directory.
func (a *app) manager() (*shadow.Manager, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return a.orch.Manager(wd)
}
