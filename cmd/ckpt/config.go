package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the effective configuration after merging the config file
(~/.ckpt/config.yaml), CKPT_-prefixed environment variables, and built-in
defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		data, err := json.MarshalIndent(a.cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		fmt.Printf("\nbase dir:  %s\n", a.cfg.BaseDir)
		fmt.Printf("metadata:  %s\n", a.cfg.MetadataPath())
		fmt.Printf("shadows:   %s\n", a.cfg.ShadowsDir())
		fmt.Printf("log file:  %s\n", a.cfg.LogPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
