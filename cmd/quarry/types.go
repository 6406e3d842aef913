package main

import "github.com/quarry-dev/quarry"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CLIScan is the JSON-friendly scan summary.
type CLIScan struct {
	Discovered      int            `json:"discovered"`
	Scanned         int            `json:"scanned"`
	Unchanged       int            `json:"unchanged"`
	Removed         int            `json:"removed"`
	IndexedEntities int            `json:"indexed_entities"`
	Errors          []CLIFileError `json:"errors,omitempty"`
	ElapsedMS       int64          `json:"elapsed_ms"`
	Database        string         `json:"database"`
}

// CLIFileError is one localized extraction failure.
type CLIFileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func newCLIScan(res *quarry.ScanResult) CLIScan {
	s := CLIScan{
		Discovered:      res.Discovered,
		Scanned:         res.Scanned,
		Unchanged:       res.Unchanged,
		Removed:         res.Removed,
		IndexedEntities: res.IndexedEntities,
		ElapsedMS:       res.Elapsed.Milliseconds(),
		Database:        res.StorePath,
	}
	for _, fe := range res.FileErrors {
		s.Errors = append(s.Errors, CLIFileError{Path: fe.Path, Error: fe.Err.Error()})
	}
	return s
}

// CLIQuery is the JSON-friendly query result.
type CLIQuery struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
	ElapsedMS int64    `json:"elapsed_ms"`
}

func newCLIQuery(res *quarry.QueryResult) CLIQuery {
	rows := res.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return CLIQuery{
		Columns:   res.Columns,
		Rows:      rows,
		RowCount:  len(res.Rows),
		Truncated: res.Truncated,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
}

// CLISchema is the JSON-friendly schema description.
type CLISchema struct {
	SchemaVersion int       `json:"schema_version"`
	Views         []CLIView `json:"views"`
}

// CLIView is one queryable view.
type CLIView struct {
	Name    string      `json:"name"`
	Kind    string      `json:"kind"`
	Columns []CLIColumn `json:"columns"`
}

// CLIColumn is one view column.
type CLIColumn struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

func newCLISchema(desc *quarry.SchemaDescription) CLISchema {
	s := CLISchema{SchemaVersion: desc.SchemaVersion}
	for _, v := range desc.Views {
		view := CLIView{Name: v.Name, Kind: v.Kind}
		for _, c := range v.Columns {
			view.Columns = append(view.Columns, CLIColumn{Name: c.Name, Type: c.Type})
		}
		s.Views = append(s.Views, view)
	}
	return s
}
