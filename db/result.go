package db

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/ps"
)

type ResultType int

const (
	QueryResultType ResultType = iota
	MutationResultType
)

type Result interface {
	Type() ResultType
	Display(w io.Writer)
}

type QueryResult struct {
	Transaction      ps.Transaction
	Columns          []string
	Records          []core.Record
	ExecutionTimeSec float64
}

// MutationResult reports the outcome of an insert, update or delete.
// Transaction is set when the mutation was saved on its own.
type MutationResult struct {
	Transaction      ps.Transaction
	AffectedCount    int
	InsertedID       *int64
	ExecutionTimeSec float64
}

// NewQueryResult collects the columns of records: id first, then the rest
// in name order.
func NewQueryResult(records []core.Record) QueryResult {
	seen := make(map[string]bool)
	var columns []string
	for _, record := range records {
		for column := range record {
			if !seen[column] && column != core.FieldID {
				seen[column] = true
				columns = append(columns, column)
			}
		}
	}
	sort.Strings(columns)

	for _, record := range records {
		if _, ok := record[core.FieldID]; ok {
			columns = append([]string{core.FieldID}, columns...)
			break
		}
	}

	return QueryResult{Columns: columns, Records: records}
}

func (result QueryResult) Type() ResultType {
	return QueryResultType
}

func (result MutationResult) Type() ResultType {
	return MutationResultType
}

// Data renders the records as rows of Columns.
func (result QueryResult) Data() [][]string {
	data := make([][]string, len(result.Records))
	for i, record := range result.Records {
		data[i] = make([]string, len(result.Columns))
		for j, column := range result.Columns {
			data[i][j] = FormatValue(record[column])
		}
	}
	return data
}

// FormatValue renders a stored value for display.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.RawMessage:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatDuration formats a duration in human-readable form
func formatDuration(secs float64) string {
	if secs < 0.001 {
		return "<1ms"
	} else if secs < 1 {
		return fmt.Sprintf("%dms", int(secs*1000))
	} else if secs < 60 {
		if secs < 10 {
			return fmt.Sprintf("%.1fs", secs)
		}
		return fmt.Sprintf("%ds", int(secs))
	}
	mins := int(secs / 60)
	remainSecs := int(secs) % 60
	if remainSecs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, remainSecs)
}

func (result QueryResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result MutationResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result QueryResult) Display(w io.Writer) {
	if len(result.Records) > 0 {
		data := NewTable(w)
		data.Header(result.Columns)
		data.Bulk(result.Data())
		data.Render()
	}

	fmt.Fprintf(w, "%d rows (%s)\n", len(result.Records), result.ExecutionTime())
}

func (result MutationResult) Display(w io.Writer) {
	summary := fmt.Sprintf("%d record(s) affected", result.AffectedCount)
	if result.InsertedID != nil {
		summary += fmt.Sprintf(", id %d", *result.InsertedID)
	}
	if result.Transaction.Id != "" {
		summary += fmt.Sprintf(", commit %.8s", result.Transaction.Id)
	}

	fmt.Fprintf(w, "%s (%s)\n", summary, result.ExecutionTime())
}
