package main

import (
	"fmt"

	"github.com/ashureev/orderdesk/internal/domain"
	"github.com/spf13/cobra"
)

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the issue categories offered on the help screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, c := range domain.Categories() {
				fmt.Fprintf(out, "%d. %s\n", i+1, c)
			}
			return nil
		},
	}
}
