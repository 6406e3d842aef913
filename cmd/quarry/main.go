package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-dev/quarry"
	"github.com/quarry-dev/quarry/internal/logging"
)

var (
	flagDB      string
	flagFormat  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "quarry",
	Short:         "SQLite knowledge base of structural facts about C# code",
	Long:          "Quarry parses C# source with tree-sitter and writes type, implementation, variable, line, and reference facts to a SQLite database queryable through stable views.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .quarry/facts.db relative to the scan root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "log scan progress to stderr")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(schemaCmd)
}

var (
	flagFull    bool
	flagWorkers int
)

var scanCmd = &cobra.Command{
	Use:   "scan [root]",
	Short: "Scan a file, directory, or quarry.toml manifest into the database",
	Long:  "Discovers source files under the root, extracts facts from new and changed files on a worker pool, and persists them in one transaction. Default is incremental; --full replaces the database contents.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&flagFull, "full", false, "replace database contents instead of scanning incrementally")
	scanCmd.Flags().IntVar(&flagWorkers, "workers", 0, "extraction worker count (default: number of CPUs)")
}

func runScan(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving path %q: %w", root, err)
	}

	dbPath, err := resolveDBPath(abs)
	if err != nil {
		return err
	}

	engine, err := newEngine(dbPath, quarry.WithParallel(flagWorkers))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer engine.Close()

	res, err := engine.Scan(context.Background(), abs, !flagFull)
	if err != nil {
		return outputError("scan", err)
	}

	fmt.Fprintf(os.Stderr, "Scanned %s in %s (%d files, %d unchanged, %d removed, %d entities)\n",
		abs,
		res.Elapsed.Round(time.Millisecond),
		res.Scanned, res.Unchanged, res.Removed, res.IndexedEntities,
	)
	for _, fe := range res.FileErrors {
		fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", fe.Path, fe.Err)
	}
	fmt.Fprintf(os.Stderr, "Database: %s\n", res.StorePath)

	return outputResult(CLIResult{Command: "scan", Results: newCLIScan(res)})
}

func newEngine(dbPath string, opts ...quarry.Option) (*quarry.Engine, error) {
	if flagVerbose {
		opts = append(opts, quarry.WithLogger(
			logging.New(os.Stderr, logging.DebugLevel, logging.HumanFormat)))
	}
	return quarry.New(dbPath, opts...)
}

// resolveDBPath returns the database path from the --db flag or the
// default .quarry/facts.db next to the scan root, creating the directory.
func resolveDBPath(root string) (string, error) {
	path := flagDB
	if path == "" {
		dir := root
		if info, err := os.Stat(root); err == nil && !info.IsDir() {
			dir = filepath.Dir(root)
		}
		path = filepath.Join(dir, ".quarry", "facts.db")
	} else if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolving --db %q: %w", path, err)
		}
		path = abs
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return path, nil
}

// requireDBPath is for read commands: the database must already exist.
func requireDBPath() (string, error) {
	path := flagDB
	if path == "" {
		path = filepath.Join(".quarry", "facts.db")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving database path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("database not found at %s (run 'quarry scan' first, or pass --db)", abs)
	}
	return abs, nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
