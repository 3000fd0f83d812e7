package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var draftDeviceID string

var draftCmd = &cobra.Command{
	Use:     "draft",
	Short:   "Manage entity drafts",
	GroupID: "entities",
}

var draftShowCmd = &cobra.Command{
	Use:   "show <entity>",
	Short: "Show the entity's authoritative draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loomClient.GetDraft(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printDraft(d)
		return nil
	},
}

var draftPutCmd = &cobra.Command{
	Use:   "put <entity>",
	Short: "Write a draft from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
			os.Exit(1)
		}

		d, err := loomClient.PutDraft(context.Background(), args[0], content, draftDeviceID, time.Now().UTC())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printDraft(d)
		return nil
	},
}

var draftClearCmd = &cobra.Command{
	Use:   "clear <entity>",
	Short: "Delete the entity's draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loomClient.DeleteDraft(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("cleared")
		return nil
	},
}

func init() {
	hostname, _ := os.Hostname()
	draftPutCmd.Flags().StringVar(&draftDeviceID, "device", hostname, "device id for the write")

	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftPutCmd)
	draftCmd.AddCommand(draftClearCmd)
}
