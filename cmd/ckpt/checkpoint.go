package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Create a checkpoint of the current project now",
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")

		a := newApp()
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		hash, err := a.orch.CreateManualCheckpoint(cmd.Context(), wd, message)
		if err != nil {
			return fmt.Errorf("checkpoint failed: %w (see %s)", err, a.cfg.LogPath())
		}
		fmt.Printf("Created checkpoint %s.\n", shortHash(hash))
		return nil
	},
}

func init() {
	checkpointCmd.Flags().StringP("message", "m", "", "checkpoint message")
	rootCmd.AddCommand(checkpointCmd)
}
