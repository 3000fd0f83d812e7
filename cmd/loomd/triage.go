package main

import (
	"context"
	"fmt"
	"os"

	"github.com/loomworks/loom/internal/client"
	"github.com/spf13/cobra"
)

var (
	itemSender  string
	itemSubject string
	itemSnippet string
)

var itemCmd = &cobra.Command{
	Use:     "item",
	Short:   "Manage triage inbox items",
	GroupID: "triage",
}

var itemAddCmd = &cobra.Command{
	Use:   "add <entity>",
	Short: "Ingest an inbox item for the entity's next episode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := loomClient.IngestItem(context.Background(), args[0], &client.IngestItemRequest{
			Sender:  itemSender,
			Subject: itemSubject,
			Snippet: itemSnippet,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(item)
		} else {
			fmt.Printf("ingested %s\n", item.ID)
		}
		return nil
	},
}

var alarmCmd = &cobra.Command{
	Use:     "alarm <entity>",
	Short:   "Run a processing episode for the entity now",
	GroupID: "triage",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loomClient.FireAlarm(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("episode completed")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status <entity>",
	Short:   "Show the entity's processing state and next alarm",
	GroupID: "entities",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := loomClient.EntityStatus(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printStatus(status)
		return nil
	},
}

var evictCmd = &cobra.Command{
	Use:     "evict <entity>",
	Short:   "Flush and drop the entity's resident actor",
	GroupID: "entities",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loomClient.EvictEntity(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("evicted")
		return nil
	},
}

func init() {
	itemAddCmd.Flags().StringVar(&itemSender, "sender", "", "item sender address")
	itemAddCmd.Flags().StringVar(&itemSubject, "subject", "", "item subject")
	itemAddCmd.Flags().StringVar(&itemSnippet, "snippet", "", "item snippet")
	_ = itemAddCmd.MarkFlagRequired("sender")

	itemCmd.AddCommand(itemAddCmd)
}
