package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize checkpoint activity for the current project",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		mgr, err := a.manager()
		if err != nil {
			return fmt.Errorf("resolve project: %w", err)
		}

		st := a.meta.Stats(mgr.ProjectID())
		fmt.Printf("Project:     %s\n", mgr.ProjectID())
		fmt.Printf("Checkpoints: %d (%d successful, %d failed, %d pending)\n",
			st.Total, st.Successful, st.Failed, st.Pending)
		if st.LatestTimestamp != nil {
			fmt.Printf("Latest:      %s\n", st.LatestTimestamp.Local().Format("2006-01-02 15:04:05"))
		}
		if len(st.MostModifiedFiles) > 0 {
			fmt.Println("Most modified files:")
			for _, fc := range st.MostModifiedFiles {
				fmt.Printf("  %4d  %s\n", fc.Count, fc.Path)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
