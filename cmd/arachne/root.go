package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for arachne.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arachne",
		Short: "Breadth-first web crawler driving a headless browser",
		Long: `Arachne crawls websites breadth-first through a headless browser.
It follows links matching configurable patterns up to a depth limit,
deduplicates pages by normalized URL, rotates browser session
identities, and appends one record per visited page to a local dataset.

A crawl is configured with CLI flags, a crawl-spec YAML file, or both;
flags win over the file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
