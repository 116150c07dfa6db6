// Package main is the newsdex server and operator CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/newsdex/internal/version"
)

var (
	// configPath overrides the ENV-based config lookup.
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "newsdex",
	Short: "Entity-indexed news archive with semantic query caching",
	Long: `newsdex ingests news articles, extracts and weights their named entities,
and answers natural-language queries ranked by entity relevance.

Configuration is read from config/<ENV>.yaml (ENV defaults to "local")
unless --config is given.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: config/$ENV.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reindexCmd)
}
