package ingest

// csvgrid.go implements the tabular parser: comma-separated, double-quote
// delimited text in, rectangular grid of string cells out.
//
// This is a permissive parser, not a validator. Dashboards receive CSV
// exports from dozens of tools with inconsistent quoting, so malformed
// input is absorbed best-effort instead of rejected: an unterminated quote
// runs to end of input, and stray characters after a closing quote are
// folded into the field.

import "strings"

// ParseGrid splits raw text into rows of string cells.
//
// Fields are separated by commas. A field may be wrapped in double quotes,
// in which case commas and newlines inside the quotes are literal and an
// embedded quote is written as two consecutive quotes. Carriage returns are
// stripped before parsing. Empty input yields zero rows, and a trailing
// blank line produces no spurious row.
//
// A row consisting of a single empty cell is suppressed only while it would
// be the first accumulated row; this drops the artifact of a leading blank
// line while keeping later sparse rows as legitimate data.
func ParseGrid(text string) [][]string {
	text = strings.ReplaceAll(text, "\r", "")

	var rows [][]string
	var row []string
	var field strings.Builder

	endField := func() {
		row = append(row, field.String())
		field.Reset()
	}
	endRow := func() {
		endField()
		if len(rows) == 0 && len(row) == 1 && row[0] == "" {
			row = nil
			return
		}
		rows = append(rows, row)
		row = nil
	}

	i := 0
	for i < len(text) {
		switch c := text[i]; c {
		case '"':
			i++
			for i < len(text) {
				if text[i] != '"' {
					field.WriteByte(text[i])
					i++
					continue
				}
				if i+1 < len(text) && text[i+1] == '"' {
					field.WriteByte('"')
					i += 2
					continue
				}
				i++ // closing quote
				break
			}
		case ',':
			endField()
			i++
		case '\n':
			endRow()
			i++
		default:
			field.WriteByte(c)
			i++
		}
	}

	// Flush the final row unless the input ended cleanly on a newline.
	if field.Len() > 0 || len(row) > 0 {
		endRow()
	}

	return rows
}

// WriteGrid renders a grid back to CSV text, quoting cells that contain
// commas, quotes, or newlines. Inverse of [ParseGrid] for well-formed
// grids; used by tests and exports.
func WriteGrid(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			if strings.ContainsAny(cell, ",\"\n") {
				b.WriteByte('"')
				b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
				b.WriteByte('"')
			} else {
				b.WriteString(cell)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
