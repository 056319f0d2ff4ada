package db

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// maxCellWidth bounds a rendered cell; longer values (blobs, comments) are cut.
const maxCellWidth = 48

// SimpleTable renders rows as a plain-text grid
type SimpleTable struct {
	writer  io.Writer
	headers []string
	rows    [][]string
}

func NewTable(w io.Writer) *SimpleTable {
	return &SimpleTable{writer: w}
}

func (t *SimpleTable) Header(headers []string) {
	t.headers = headers
}

func (t *SimpleTable) Row(row []string) {
	t.rows = append(t.rows, row)
}

func (t *SimpleTable) Bulk(rows [][]string) {
	t.rows = append(t.rows, rows...)
}

// Render writes the grid. Nothing is written for an empty table.
func (t *SimpleTable) Render() {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return
	}

	header := clip(t.headers)
	body := make([][]string, len(t.rows))
	for i, row := range t.rows {
		body[i] = clip(row)
	}

	widths := columnWidths(append([][]string{header}, body...))
	rule := ruleLine(widths)

	var out strings.Builder
	out.WriteString(rule)
	if len(header) > 0 {
		writeCells(&out, header, widths)
		out.WriteString(rule)
	}
	for _, row := range body {
		writeCells(&out, row, widths)
	}
	out.WriteString(rule)

	io.WriteString(t.writer, out.String())
}

func clip(row []string) []string {
	cells := make([]string, len(row))
	for i, cell := range row {
		cells[i] = truncate(cell)
	}
	return cells
}

func columnWidths(rows [][]string) []int {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i == len(widths) {
				widths = append(widths, 1)
			}
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}
	return widths
}

func ruleLine(widths []int) string {
	var line strings.Builder
	for _, w := range widths {
		line.WriteString("+" + strings.Repeat("-", w+2))
	}
	line.WriteString("+\n")
	return line.String()
}

func writeCells(out *strings.Builder, row []string, widths []int) {
	for i, w := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		fmt.Fprintf(out, "| %-*s ", w, cell)
	}
	out.WriteString("|\n")
}

// truncate flattens newlines and cuts cells longer than maxCellWidth.
func truncate(cell string) string {
	cell = strings.ReplaceAll(cell, "\n", " ")
	if utf8.RuneCountInString(cell) <= maxCellWidth {
		return cell
	}
	return string([]rune(cell)[:maxCellWidth-1]) + "…"
}
