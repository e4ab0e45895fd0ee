// Package main is the entry point for the supportchat terminal client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "supportchat",
		Short: "Talk to the order support assistant from a terminal",
		Long: `supportchat runs the food-delivery support conversation locally,
using the same catalog, generator and transcript settings as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newCategoriesCmd())
	root.AddCommand(newRunCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
