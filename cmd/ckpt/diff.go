package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ckptd/ckpt/internal/shadow"
)

var diffCmd = &cobra.Command{
	Use:   "diff [hash]",
	Short: "Show changes since a checkpoint",
	Long: `Show a per-file change summary between the current project tree and
a checkpoint. Without an argument the most recent checkpoint is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash := ""
		if len(args) == 1 {
			hash = args[0]
			if !shadow.ValidHash(hash) {
				return fmt.Errorf("invalid checkpoint hash %q", hash)
			}
		}

		a := newApp()
		mgr, err := a.manager()
		if err != nil {
			return fmt.Errorf("resolve project: %w", err)
		}

		out := mgr.GetCheckpointDiff(cmd.Context(), hash)
		if out == "" {
			fmt.Println("No changes since the checkpoint.")
			return nil
		}
		fmt.Println(indentLines(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
