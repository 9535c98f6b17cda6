package resultset

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/dracory/insightpilot/shared/types"
)

// ExportOptions controls delimited-text rendering.
type ExportOptions struct {
	// Delimiter separates fields; zero means comma.
	Delimiter rune
	// CRLF terminates lines with \r\n instead of \n.
	CRLF bool
}

// ToDelimitedText renders rs with a header line followed by one line per
// row, every value double quoted. A result without rows cannot be exported.
func ToDelimitedText(rs *ResultSet, delimiter rune) (string, error) {
	var b strings.Builder
	if err := WriteDelimited(&b, rs, ExportOptions{Delimiter: delimiter}); err != nil {
		return "", err
	}
	return b.String(), nil
}

// WriteDelimited streams the export of rs to w.
func WriteDelimited(w io.Writer, rs *ResultSet, opts ExportOptions) error {
	if rs.IsEmpty() {
		return types.ErrNothingToExport("no rows to export")
	}
	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	eol := "\n"
	if opts.CRLF {
		eol = "\r\n"
	}
	sep := string(delim)

	header := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		if strings.ContainsAny(c, sep+"\"\r\n") {
			header[i] = quote(c)
		} else {
			header[i] = c
		}
	}
	if _, err := io.WriteString(w, strings.Join(header, sep)+eol); err != nil {
		return err
	}

	fields := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i, v := range row {
			fields[i] = quote(v.String())
		}
		if _, err := io.WriteString(w, strings.Join(fields, sep)+eol); err != nil {
			return err
		}
	}
	return nil
}

// ParseDelimited reads exported text back into a header and string rows.
func ParseDelimited(text string, delimiter rune) ([]string, [][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	if delimiter != 0 {
		r.Comma = delimiter
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
