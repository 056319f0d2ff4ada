package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nickyhof/AdOrchDB/db"
	"github.com/spf13/cobra"
)

type QueryOptions struct {
	*RootOptions
	File string
}

func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [statement] [params...]",
		Short: "Run one statement, or every statement in a file",
		Long: `Run one statement against the record store. Parameters fill ? placeholders
in order: integers, floats, true, false and null are typed, anything else is text.

Example:
  adorch query "SELECT * FROM approvals WHERE status = ?" pending
  adorch query --file seed.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.close()

			if opts.File != "" {
				return importFile(cmd.OutOrStdout(), s.db, opts.File)
			}
			if len(args) == 0 {
				return fmt.Errorf("a statement or --file is required")
			}

			result, err := s.db.Execute(args[0], parseParams(args[1:])...)
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts.Format, result, result.Display)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "file of ;-separated statements")

	return cmd
}

func parseParams(args []string) []any {
	params := make([]any, len(args))
	for i, arg := range args {
		params[i] = parseParam(arg)
	}
	return params
}

func parseParam(arg string) any {
	switch strings.ToLower(arg) {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f
	}
	if len(arg) >= 2 && arg[0] == '\'' && arg[len(arg)-1] == '\'' {
		return arg[1 : len(arg)-1]
	}
	return arg
}

// importFile reads and executes statements from a file
func importFile(w io.Writer, engine *db.Engine, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	successCount := 0
	errorCount := 0

	for i, stmt := range splitStatements(string(data)) {
		result, err := engine.Execute(stmt)
		if err != nil {
			fmt.Fprintf(w, "%s[%d] ✗ %s%s\n", ErrorColor, i+1, truncate(stmt, 50), ResetColor)
			fmt.Fprintf(w, "      Error: %v\n", err)
			errorCount++
			continue
		}

		successCount++
		switch r := result.(type) {
		case db.MutationResult:
			detail := fmt.Sprintf(" (%d affected)", r.AffectedCount)
			if r.InsertedID != nil {
				detail = fmt.Sprintf(" (id %d)", *r.InsertedID)
			}
			fmt.Fprintf(w, "%s[%d] ✓ %s%s%s\n", SuccessColor, i+1, truncate(stmt, 50), detail, ResetColor)
		case db.QueryResult:
			fmt.Fprintf(w, "%s[%d] ✓ %s (%d rows)%s\n", SuccessColor, i+1, truncate(stmt, 50), len(r.Records), ResetColor)
		default:
			fmt.Fprintf(w, "%s[%d] ✓ %s%s\n", SuccessColor, i+1, truncate(stmt, 50), ResetColor)
		}
	}

	fmt.Fprintf(w, "\n%s✓ Import complete: %d succeeded, %d failed%s\n",
		SuccessColor, successCount, errorCount, ResetColor)

	return nil
}

// splitStatements splits content into statements on semicolons outside
// quotes, dropping -- comments.
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if (ch == '\'' || ch == '"') && (i == 0 || content[i-1] != '\\') {
			if !inString {
				inString = true
				stringChar = ch
			} else if ch == stringChar {
				inString = false
			}
		}

		if !inString && ch == '-' && i+1 < len(content) && content[i+1] == '-' {
			for i < len(content) && content[i] != '\n' {
				i++
			}
			continue
		}

		if !inString && ch == ';' {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}

		current.WriteByte(ch)
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}

	return statements
}

// truncate shortens a string to max length with ellipsis
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
