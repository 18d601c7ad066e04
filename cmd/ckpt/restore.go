package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ckptd/ckpt/internal/shadow"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <hash>",
	Short: "Restore the project tree to a checkpoint",
	Long: `Check the checkpoint out in the shadow repository and mirror its
content back onto the project tree. Files created after the checkpoint
are not deleted; restore only overwrites what the checkpoint contains.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash := args[0]
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if !shadow.ValidHash(hash) {
			return fmt.Errorf("invalid checkpoint hash %q", hash)
		}

		a := newApp()
		mgr, err := a.manager()
		if err != nil {
			return fmt.Errorf("resolve project: %w", err)
		}

		if !mgr.RestoreCheckpoint(cmd.Context(), hash, dryRun) {
			return fmt.Errorf("restore of %s failed; see %s", shortHash(hash), a.cfg.LogPath())
		}
		if dryRun {
			fmt.Printf("Checkpoint %s is restorable (dry run, project tree untouched).\n", shortHash(hash))
			return nil
		}
		fmt.Printf("Restored project to checkpoint %s.\n", shortHash(hash))
		return nil
	},
}

func init() {
	restoreCmd.Flags().Bool("dry-run", false, "verify the checkpoint without touching the project tree")
	rootCmd.AddCommand(restoreCmd)
}
