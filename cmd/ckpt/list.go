package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints for the current project",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a := newApp()
		mgr, err := a.manager()
		if err != nil {
			return fmt.Errorf("resolve project: %w", err)
		}

		entries := mgr.ListCheckpoints(cmd.Context())
		if len(entries) == 0 {
			fmt.Println("No checkpoints found for this project.")
			return nil
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}

		fmt.Printf("%-10s %-20s %-8s %-12s %s\n", "HASH", "CREATED", "STATUS", "TOOL", "MESSAGE")
		for _, e := range entries {
			msg := e.Message
			if msg == "" {
				msg = "(no message)"
			}
			if n := len(e.Record.FilesAffected); n > 1 {
				msg = fmt.Sprintf("%s (+%d files)", msg, n-1)
			}
			fmt.Printf("%-10s %-20s %-8s %-12s %s\n",
				shortHash(e.Hash),
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.Record.Status,
				e.Record.ToolName,
				msg)
		}
		return nil
	},
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// indentLines is shared by commands that echo multi-line engine output.
func indentLines(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

func init() {
	listCmd.Flags().IntP("limit", "n", 0, "show at most this many checkpoints (0 = all)")
	rootCmd.AddCommand(listCmd)
}
