package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var challengeCmd = &cobra.Command{
	Use:     "challenge",
	Short:   "Issue and validate device auth challenges",
	GroupID: "system",
}

var challengeNewCmd = &cobra.Command{
	Use:   "new <agent-id>",
	Short: "Issue a single-use nonce for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := loomClient.Challenge(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(resp)
		} else {
			fmt.Printf("%s (expires in %ds)\n", resp.Nonce, resp.ExpiresIn)
		}
		return nil
	},
}

var challengeValidateCmd = &cobra.Command{
	Use:   "validate <agent-id> <nonce>",
	Short: "Consume a nonce; succeeds at most once per nonce",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		valid, err := loomClient.Validate(context.Background(), args[0], args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !valid {
			fmt.Println("invalid")
			os.Exit(1)
		}
		fmt.Println("valid")
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := loomClient.Health(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(status)
		return nil
	},
}

func init() {
	challengeCmd.AddCommand(challengeNewCmd)
	challengeCmd.AddCommand(challengeValidateCmd)
}
