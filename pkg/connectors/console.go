package connectors

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/stream"
)

// Console prints batches to stdout as formatted tables, going through the
// Arrow interop schema so key and payload render uniformly.
type Console[K comparable, P any] struct {
	maxRows int32
	writer  io.Writer
	alloc   memory.Allocator
	count   int64
}

// NewConsole creates a Console sink. maxRows of 0 prints every row.
func NewConsole[K comparable, P any](maxRows int32) *Console[K, P] {
	return &Console[K, P]{maxRows: maxRows, writer: os.Stdout}
}

// SetWriter overrides the output writer (default: os.Stdout).
func (c *Console[K, P]) SetWriter(w io.Writer) { c.writer = w }

func (c *Console[K, P]) Open(ctx *operator.Context) error {
	c.alloc = ctx.Alloc
	return nil
}

func (c *Console[K, P]) WriteBatch(batch *stream.Batch[K, P]) error {
	rec, err := stream.ToArrowRecord(c.alloc, batch)
	if err != nil {
		return fmt.Errorf("console: export batch: %w", err)
	}
	defer rec.Release()

	schema := rec.Schema()
	numCols := schema.NumFields()
	numRows := int(rec.NumRows())

	if c.maxRows > 0 && numRows > int(c.maxRows) {
		numRows = int(c.maxRows)
	}

	// Calculate column widths.
	widths := make([]int, numCols)
	for i := 0; i < numCols; i++ {
		widths[i] = len(schema.Field(i).Name)
	}
	for row := 0; row < numRows; row++ {
		for col := 0; col < numCols; col++ {
			val := formatValue(rec.Column(col), row)
			if len(val) > widths[col] {
				widths[col] = len(val)
			}
		}
	}

	// Print header.
	c.printHeader(schema, widths)
	c.printSeparator(widths)

	// Print rows.
	for row := 0; row < numRows; row++ {
		c.printDataRow(rec, widths, row)
	}

	if int(rec.NumRows()) > numRows {
		fmt.Fprintf(c.writer, "... (%d more rows)\n", int(rec.NumRows())-numRows)
	}
	fmt.Fprintln(c.writer)

	c.count += rec.NumRows()
	return nil
}

func (c *Console[K, P]) Close() error { return nil }

func (c *Console[K, P]) printHeader(schema *arrow.Schema, widths []int) {
	var sb strings.Builder
	sb.WriteString("| ")
	for i := 0; i < schema.NumFields(); i++ {
		if i > 0 {
			sb.WriteString(" | ")
		}
		sb.WriteString(pad(schema.Field(i).Name, widths[i]))
	}
	sb.WriteString(" |")
	fmt.Fprintln(c.writer, sb.String())
}

func (c *Console[K, P]) printSeparator(widths []int) {
	var sb strings.Builder
	sb.WriteString("|-")
	for i, w := range widths {
		if i > 0 {
			sb.WriteString("-|-")
		}
		sb.WriteString(strings.Repeat("-", w))
	}
	sb.WriteString("-|")
	fmt.Fprintln(c.writer, sb.String())
}

func (c *Console[K, P]) printDataRow(rec arrow.Record, widths []int, row int) {
	var sb strings.Builder
	sb.WriteString("| ")
	for col := 0; col < int(rec.NumCols()); col++ {
		if col > 0 {
			sb.WriteString(" | ")
		}
		sb.WriteString(pad(formatValue(rec.Column(col), row), widths[col]))
	}
	sb.WriteString(" |")
	fmt.Fprintln(c.writer, sb.String())
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatValue renders one cell of the interop schema.
func formatValue(arr arrow.Array, row int) string {
	if arr.IsNull(row) {
		return "null"
	}
	switch a := arr.(type) {
	case *array.Int64:
		return fmt.Sprintf("%d", a.Value(row))
	case *array.Uint64:
		return fmt.Sprintf("%d", a.Value(row))
	case *array.String:
		return a.Value(row)
	case *array.Boolean:
		return fmt.Sprintf("%t", a.Value(row))
	default:
		return fmt.Sprintf("%v", arr)
	}
}
