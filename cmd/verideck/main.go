// Package main provides the verideck CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/verideck/verideck/cli"
)

var (
	// Global flags
	configPath string
	provider   string
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "verideck",
		Short: "Equivalence-class corpus builder for Verilog designs",
		Long: `A CLI tool for building and maintaining a deduplicated corpus of Verilog
designs grouped into formally-verified equivalence classes.

Designs are content-addressed, mutated via an LLM to grow candidate classes,
and merged only when a formal oracle proves two classes equivalent. Verified
natural-language questions certify class membership.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	// Add commands
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(selfCheckCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(searchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		ConfigPath: configPath,
		Provider:   provider,
		Verbose:    verbose,
	}
}

func ingestCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Ingest Verilog designs from a directory",
		Long: `Ingest every .v file from a directory into the corpus.

Each file is self-checked against the formal oracle before insertion, so a
design that the oracle cannot even prove equivalent to itself never enters
the corpus. Exact duplicates are deduplicated by content hash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ingest(context.Background(), args[0], replace, options())
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite existing corpus files instead of failing")

	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the mutation and merge pipeline over the stored corpus",
		Long: `Run the full pipeline: mutate each stored design, generate and verify
questions for the mutants, batch-check candidate pairs with the oracle, and
merge the classes the oracle proved equivalent.

The run summary is recorded in the SQLite run store for later aggregation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(context.Background(), options())
		},
	}
}

func verifyCmd() *cobra.Command {
	var candidates int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-verify stored questions against their classes",
		Long: `Re-verify every stored question: generate candidate answers from the
question text alone and check each against a representative design of every
class the question certifies. A question passes when at least one candidate
is proven equivalent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Verify(context.Background(), candidates, options())
		},
	}

	cmd.Flags().IntVarP(&candidates, "candidates", "n", 0, "Candidate answers per question (default from config)")

	return cmd
}

func selfCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Run the oracle self-check over every stored class",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.SelfCheck(context.Background(), options())
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate statistics across recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Stats(context.Background(), options())
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [pattern]",
		Short: "Find stored designs containing a substring",
		Long: `Search every stored design for a substring, such as a signal or module
name. Matches are found via a suffix array over the whole corpus, so the
search cost does not grow with design size once the index is built.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Search(args[0], options())
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [class-id-prefix]",
		Short: "Show a class's members and questions by id prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Show(args[0], options())
		},
	}
}
