package manifest

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
)

// A tab separated table held in memory. Every row has exactly as many
// fields as the header; short rows are padded with empty strings.
type Table struct {
	// The name used in error messages, usually the file path.
	Source string

	Header []string
	Rows   [][]string

	// Column name to index. When a header repeats a name only the first
	// occurrence is indexed.
	index map[string]int
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return cr
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

// Reads a tab separated table with a header row. An empty input is an
// error since every manifest must at least carry its header.
func ReadTable(source string, r io.Reader) (*Table, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Errorf("%s is empty.", source)
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading %s", source)
	}
	if len(header) > 0 {
		// Strip a UTF-8 byte order mark from spreadsheet exports.
		header[0] = trimBOM(header[0])
	}
	t := &Table{
		Source: source,
		Header: header,
	}
	t.reindex()
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "reading %s", source)
		}
		if len(row) == 1 && row[0] == "" {
			continue
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		t.Rows = append(t.Rows, row[:len(header)])
	}
	return t, nil
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xef && s[1] == 0xbb && s[2] == 0xbf {
		return s[3:]
	}
	return s
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, name := range t.Header {
		if _, ok := t.index[name]; !ok {
			t.index[name] = i
		}
	}
}

// Returns the index of a column, or -1.
func (t *Table) Column(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Renames columns in place. A rename onto a name that is already present
// leaves both columns in the header and the earlier one is the one that
// Column returns.
func (t *Table) Rename(renames map[string]string) {
	for i, name := range t.Header {
		if to, ok := renames[name]; ok {
			t.Header[i] = to
		}
	}
	t.reindex()
}

// Returns the named field of a row, or "" if the column does not exist.
func (t *Table) Get(row []string, name string) string {
	if i := t.Column(name); i >= 0 {
		return row[i]
	}
	return ""
}

// Returns ErrMissingColumn for the first of names not in the header.
func (t *Table) Require(names ...string) error {
	for _, name := range names {
		if !t.Has(name) {
			return ErrMissingColumn{Source: t.Source, Column: name}
		}
	}
	return nil
}

// Appends a column. values must hold one entry per row.
func (t *Table) AddColumn(name string, values []string) {
	t.Header = append(t.Header, name)
	for i, row := range t.Rows {
		t.Rows[i] = append(row, values[i])
	}
	t.reindex()
}

// Stacks tables into one. The header is the union of every table's
// columns in first-seen order and rows missing a column get "".
func Concat(source string, tables ...*Table) *Table {
	out := &Table{Source: source}
	out.index = make(map[string]int)
	for _, t := range tables {
		for _, name := range t.Header {
			if _, ok := out.index[name]; !ok {
				out.index[name] = len(out.Header)
				out.Header = append(out.Header, name)
			}
		}
	}
	for _, t := range tables {
		cols := make([]int, len(out.Header))
		for i, name := range out.Header {
			cols[i] = t.Column(name)
		}
		for _, row := range t.Rows {
			dst := make([]string, len(out.Header))
			for i, c := range cols {
				if c >= 0 {
					dst[i] = row[c]
				}
			}
			out.Rows = append(out.Rows, dst)
		}
	}
	return out
}
