package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagMaxRows int
	flagTimeout time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run one read-only SQL statement against the fact views",
	Long:  "Executes a single SELECT (or WITH/VALUES/EXPLAIN) statement against the v_ views. Statements that could mutate the database are rejected. Results are row-capped and time-bounded.",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&flagMaxRows, "max-rows", 1000, "row cap; capped results are marked truncated")
	queryCmd.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "wall-clock query budget")
}

func runQuery(cmd *cobra.Command, args []string) error {
	dbPath, err := requireDBPath()
	if err != nil {
		return err
	}
	engine, err := newEngine(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer engine.Close()

	res, err := engine.Query(context.Background(), args[0], flagMaxRows, flagTimeout)
	if err != nil {
		return outputError("query", err)
	}
	return outputResult(CLIResult{Command: "query", Results: newCLIQuery(res)})
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Describe the queryable views and their columns",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	dbPath, err := requireDBPath()
	if err != nil {
		return err
	}
	engine, err := newEngine(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer engine.Close()

	desc, err := engine.DescribeSchema(context.Background())
	if err != nil {
		return outputError("schema", err)
	}
	return outputResult(CLIResult{Command: "schema", Results: newCLISchema(desc)})
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as
// a CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{Command: command, Error: err.Error()}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}
