package main

import (
	"fmt"
	"os"

	"github.com/pi-agent/pi-exthost/internal/conform"
	"github.com/spf13/cobra"
)

func conformCmd() *cobra.Command {
	var cwd string

	cmd := &cobra.Command{
		Use:   "conform <expected.jsonl> <actual.jsonl>",
		Short: "Diff two normalized JSONL event traces",
		Long:  "Normalizes both traces (folding dynamic correlation IDs, sorting map keys) and reports a unified diff per dedup-key group that does not match exactly.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := conform.CompareFiles(cwd, args[0], args[1])
			if err != nil {
				return err
			}
			if result.Clean {
				fmt.Println("traces match")
				return nil
			}
			for _, d := range result.Diffs {
				fmt.Printf("--- %s ---\n%s\n", d.Key, d.Diff)
			}
			os.Exit(1)
			return nil
		},
	}

	cmd.Flags().StringVar(&cwd, "cwd", "", "Working directory to fold out of path-bearing fields")
	return cmd
}
