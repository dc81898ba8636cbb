package engine

// tokenize.go turns raw delimited text into a header row and data rows.
//
// The scanner is deliberately best-effort: user exports arrive with CRLF,
// CR-only and LF line endings, quoted fields containing commas and raw
// newlines, and doubled-quote escapes. Malformed quoting never produces an
// error here; the scanner always terminates with some table and schema
// validation catches the fallout downstream.

import "strings"

// Tokenize scans the full file text into a RawTable. The first logical row
// becomes Headers; rows whose every cell is empty after trimming are
// dropped. It must receive the whole text at once because a quoted field
// may span physical lines.
func Tokenize(text string) RawTable {
	var (
		rows     [][]string
		row      []string
		field    strings.Builder
		inQuotes bool
	)

	closeField := func() {
		row = append(row, strings.TrimSpace(field.String()))
		field.Reset()
	}
	closeRow := func() {
		closeField()
		for _, cell := range row {
			if cell != "" {
				rows = append(rows, row)
				break
			}
		}
		row = nil
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(text) && text[i+1] == '"' {
				field.WriteByte('"')
				i++ // skip the escape's second quote
			} else {
				inQuotes = !inQuotes
			}
		case ch == ',' && !inQuotes:
			closeField()
		case (ch == '\n' || ch == '\r') && !inQuotes:
			closeRow()
			if ch == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
		default:
			field.WriteByte(ch)
		}
	}

	// Final row may lack a trailing newline.
	if field.Len() > 0 || len(row) > 0 {
		closeRow()
	}

	if len(rows) == 0 {
		return RawTable{}
	}
	return RawTable{Headers: rows[0], Rows: rows[1:]}
}

// Serialize renders a table back to comma-separated text, quoting cells
// that contain commas, quotes or newlines. Used by template download and
// failed-row export.
func Serialize(t RawTable) string {
	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteByte(',')
			}
			if strings.ContainsAny(cell, ",\"\n\r") {
				b.WriteByte('"')
				b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
				b.WriteByte('"')
			} else {
				b.WriteString(cell)
			}
		}
		b.WriteByte('\n')
	}
	writeRow(t.Headers)
	for _, row := range t.Rows {
		writeRow(row)
	}
	return b.String()
}
