package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage entity configuration",
	GroupID: "entities",
}

var configGetCmd = &cobra.Command{
	Use:   "get <entity>",
	Short: "Show an entity's effective configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loomClient.GetConfig(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printConfig(cfg)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <entity> <key=value>...",
	Short: "Patch entity settings (key= deletes the setting)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := make(map[string]string, len(args)-1)
		for _, arg := range args[1:] {
			key, value, ok := strings.Cut(arg, "=")
			if !ok || key == "" {
				fmt.Fprintf(os.Stderr, "Error: %q is not key=value\n", arg)
				os.Exit(1)
			}
			settings[key] = value
		}

		cfg, err := loomClient.PatchConfig(context.Background(), args[0], settings)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printConfig(cfg)
		return nil
	},
}

var configInvalidateCmd = &cobra.Command{
	Use:   "invalidate <entity>",
	Short: "Drop the entity's cached configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loomClient.InvalidateConfig(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("invalidated")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInvalidateCmd)
}
