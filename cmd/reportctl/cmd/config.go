package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finreports/reportd/pkg/config"
)

var configPath string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default server configuration file",
	Long:  `Write a reportd configuration file populated with the default values, ready to edit.`,
	RunE:  runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringVar(&configPath, "path", "reportd.yaml", "where to write the configuration file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefault(configPath); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", configPath)
	return nil
}
