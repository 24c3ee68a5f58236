package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sha1n/snipsearch/internal/app"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "snipsearch"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "Semantic code snippet search server",
		Long:    "Serves semantic search over a code snippet corpus through MCP (stdio or SSE) and a JSON API",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunWithDeps(cmd.Context(), app.DefaultRunParams(), cmd.Flags(), version)
		},
	}

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build the facet indexes and exit",
		Long:  "Embeds the corpus and writes the question, code and tags indexes. Use --rebuild to discard existing indexes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunIndexWithDeps(cmd.Context(), app.DefaultRunParams(), cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	app.RegisterFlags(rootCmd.Flags())
	app.RegisterFlags(indexCmd.Flags())
	rootCmd.AddCommand(indexCmd)
	rootCmd.SetArgs(args)

	return rootCmd.ExecuteContext(context.Background())
}
