package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/loomworks/loom/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch [entity]",
	Short:   "Tail coordination events from the bus",
	GroupID: "system",
	Args:    cobra.MaximumNArgs(1),
	// Override PersistentPreRunE: watch talks to NATS, not the HTTP server.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL := os.Getenv("LOOM_NATS_URL")
		if natsURL == "" {
			return fmt.Errorf("LOOM_NATS_URL is required for watch")
		}

		var entityFilter string
		if len(args) == 1 {
			entityFilter = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats: disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe("loom.>")
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return nil
			case data, ok := <-ch:
				if !ok {
					return nil
				}
				printEvent(data, entityFilter)
			}
		}
	},
}

// printEvent prints a single bus event, skipping entities that don't
// match the filter.
func printEvent(data []byte, entityFilter string) {
	var evt struct {
		Entity string `json:"entity"`
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		return
	}
	if entityFilter != "" && evt.Entity != entityFilter {
		return
	}
	if jsonOutput {
		fmt.Println(string(data))
		return
	}
	compact := strings.Join(strings.Fields(string(data)), " ")
	fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), compact)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
