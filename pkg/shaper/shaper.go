// Package shaper implements the Result Shaper (component C4): turning a
// types.TriplestoreResponse into the compact textual block the language
// model consumes as context (spec.md §4.4).
package shaper

import (
	"fmt"
	"strings"

	"github.com/chainlens/nlquery/pkg/types"
)

// DefaultMaxItems is the row cap applied when Shape is called without an
// explicit override (spec.md §4.4 "default 10,000 rows").
const DefaultMaxItems = 10000

// Shape converts resp into a line-oriented textual block, applying
// DefaultMaxItems as the row cap.
func Shape(resp types.TriplestoreResponse) string {
	return ShapeWithLimit(resp, DefaultMaxItems)
}

// ShapeWithLimit converts resp into a textual block, capping at maxItems
// rows and annotating the block when rows were dropped.
func ShapeWithLimit(resp types.TriplestoreResponse, maxItems int) string {
	if resp.IsBoolean {
		return shapeBoolean(resp.Boolean)
	}
	return shapeTabular(resp, maxItems)
}

func shapeBoolean(b bool) string {
	return fmt.Sprintf("result: %t", b)
}

// shapeTabular renders one line per row, preserving the column order of
// resp.Columns (spec.md §4.4 "preserves column order from the first
// response row"), and appends a truncation annotation when the row count
// exceeds maxItems.
func shapeTabular(resp types.TriplestoreResponse, maxItems int) string {
	total := len(resp.Rows)
	if total == 0 {
		return "no results"
	}

	limit := total
	truncated := false
	if maxItems > 0 && total > maxItems {
		limit = maxItems
		truncated = true
	}

	var b strings.Builder
	for i := 0; i < limit; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(renderRow(resp.Columns, resp.Rows[i]))
	}

	if truncated {
		fmt.Fprintf(&b, "\n... (truncated, showing %d of %d rows)", limit, total)
	}

	return b.String()
}

// renderRow writes one row as "col1: v1, col2: v2, ...", walking columns
// in the order the first response row established and decoding literal
// values while keeping URI cells verbatim.
func renderRow(columns []string, row types.Row) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		cell, ok := row[col]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", col, renderCell(cell)))
	}
	return strings.Join(parts, ", ")
}

func renderCell(cell types.Cell) string {
	switch cell.Kind {
	case types.CellURI:
		return cell.Value
	case types.CellBlank:
		return "_:" + cell.Value
	default:
		return cell.Value
	}
}
