package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/loomworks/loom/internal/client"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printConfig(cfg *model.Config) {
	if jsonOutput {
		printJSON(cfg)
		return
	}
	fmt.Printf("%s %d\n", ui.Label("Version"), cfg.Version)
	if !cfg.UpdatedAt.IsZero() {
		fmt.Printf("%s %s\n", ui.Label("Updated At"), cfg.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	keys := make([]string, 0, len(cfg.Settings))
	for k := range cfg.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %s\n", ui.RenderAccent(k), cfg.Settings[k])
	}
}

func printDraft(d *model.Draft) {
	if jsonOutput {
		printJSON(d)
		return
	}
	fmt.Printf("%s %s\n", ui.Label("Device"), d.Meta.DeviceID)
	fmt.Printf("%s %s\n", ui.Label("Updated At"), d.Meta.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("%s %s\n", ui.Label("Hash"), d.Meta.ContentHash)
	fmt.Printf("\n%s\n", d.Content)
}

func printStatus(status *client.EntityStatus) {
	if jsonOutput {
		printJSON(status)
		return
	}
	fmt.Printf("%s %s\n", ui.Label("Entity"), ui.RenderAccent(status.Entity.String()))
	fmt.Printf("%s %s\n", ui.Label("State"), ui.RenderState(string(status.State)))
	if !status.NextAlarm.IsZero() {
		fmt.Printf("%s %s\n", ui.Label("Next Alarm"), status.NextAlarm.Format("2006-01-02 15:04:05 MST"))
	}
}
