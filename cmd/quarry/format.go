package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// formatScanText renders a scan summary as readable text.
func formatScanText(w io.Writer, s CLIScan) {
	fmt.Fprintf(w, "Discovered: %d\n", s.Discovered)
	fmt.Fprintf(w, "Scanned:    %d\n", s.Scanned)
	fmt.Fprintf(w, "Unchanged:  %d\n", s.Unchanged)
	fmt.Fprintf(w, "Removed:    %d\n", s.Removed)
	fmt.Fprintf(w, "Entities:   %d\n", s.IndexedEntities)
	fmt.Fprintf(w, "Elapsed:    %dms\n", s.ElapsedMS)
	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s: %s\n", e.Path, e.Error)
		}
	}
}

// formatQueryText renders query rows as aligned columns.
func formatQueryText(w io.Writer, q CLIQuery) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, col := range q.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, col)
	}
	fmt.Fprintln(tw)
	for _, row := range q.Rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			if cell == nil {
				fmt.Fprint(tw, "NULL")
			} else {
				fmt.Fprintf(tw, "%v", cell)
			}
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
	if q.Truncated {
		fmt.Fprintf(w, "\nTruncated at %d rows\n", q.RowCount)
	}
}

// formatSchemaText renders the view catalog.
func formatSchemaText(w io.Writer, s CLISchema) {
	fmt.Fprintf(w, "Schema version %d\n\n", s.SchemaVersion)
	for _, view := range s.Views {
		fmt.Fprintf(w, "%s\n", view.Name)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, col := range view.Columns {
			fmt.Fprintf(tw, "  %s\t%s\n", col.Name, col.Type)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}
}

// outputResultText dispatches to the text formatter for the result type.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)
	switch v := result.Results.(type) {
	case CLIScan:
		formatScanText(w, v)
	case CLIQuery:
		formatQueryText(w, v)
	case CLISchema:
		formatSchemaText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}
