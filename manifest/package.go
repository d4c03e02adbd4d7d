package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// The fixed header of every package record file.
var PackageColumns = []string{
	"record_type",
	"guid",
	"md5",
	"size",
	"authz",
	"url",
	"file_name",
	"package_contents",
}

// The record_type of every package record.
const PackageRecordType = "package"

// One file inside a package.
type Content struct {
	Hashes   Hashes `json:"hashes"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

type Hashes struct {
	MD5Sum string `json:"md5sum"`
}

// Older records carry sizes as strings (including locale formatted ones),
// so both strings and numbers are accepted.
func (c *Content) UnmarshalJSON(data []byte) error {
	var aux struct {
		Hashes   Hashes          `json:"hashes"`
		FileName string          `json:"file_name"`
		Size     json.RawMessage `json:"size"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Hashes = aux.Hashes
	c.FileName = aux.FileName
	c.Size = 0
	raw := strings.TrimSpace(string(aux.Size))
	if raw == "" || raw == "null" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(aux.Size, &s); err != nil {
			return err
		}
		raw = s
	}
	n, err := ParseSize(raw)
	if err != nil {
		return err
	}
	c.Size = n
	return nil
}

// One archived series.
type PackageRecord struct {
	RecordType string
	GUID       string
	MD5        string
	Size       int64
	Authz      string
	URL        string
	FileName   string
	Contents   []Content
}

// Returns the series named by FileName.
func (p *PackageRecord) Series() (Series, error) {
	return ParseArchiveName(p.FileName)
}

func (p *PackageRecord) row() []string {
	return []string{
		p.RecordType,
		p.GUID,
		p.MD5,
		strconv.FormatInt(p.Size, 10),
		p.Authz,
		p.URL,
		p.FileName,
		FormatContents(p.Contents),
	}
}

// Renders package_contents. The layout uses ", " and ": " separators and
// escapes non-ASCII so that output matches the records already in the
// index byte for byte.
func FormatContents(contents []Content) string {
	b := bytes.Buffer{}
	b.WriteByte('[')
	for i := range contents {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(`{"hashes": {"md5sum": `)
		b.WriteString(quote(contents[i].Hashes.MD5Sum))
		b.WriteString(`}, "file_name": `)
		b.WriteString(quote(contents[i].FileName))
		b.WriteString(`, "size": `)
		b.WriteString(strconv.FormatInt(contents[i].Size, 10))
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return b.String()
}

// JSON string quoting with every non-ASCII rune written as a \uXXXX
// escape, using a surrogate pair outside the basic plane.
func quote(s string) string {
	b := bytes.Buffer{}
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.Encode(s)
	encoded := strings.TrimSuffix(b.String(), "\n")

	out := strings.Builder{}
	out.Grow(len(encoded))
	for _, r := range encoded {
		switch {
		case r < utf8.RuneSelf:
			out.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&out, "\\u%04x\\u%04x", hi, lo)
		default:
			fmt.Fprintf(&out, "\\u%04x", r)
		}
	}
	return out.String()
}

// Parses package_contents. Records written by older tooling used single
// quotes instead of double quotes; those are accepted too.
func ParseContents(s string) ([]Content, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var contents []Content
	err := json.Unmarshal([]byte(s), &contents)
	if err != nil && strings.ContainsRune(s, '\'') {
		err = json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &contents)
	}
	if err != nil {
		return nil, errors.Wrap(err, "package_contents")
	}
	return contents, nil
}

// Reads a package record file. Every canonical column must be present.
func ReadPackages(source string, r io.Reader) ([]PackageRecord, error) {
	t, err := ReadTable(source, r)
	if err != nil {
		return nil, err
	}
	if err := t.Require(PackageColumns...); err != nil {
		return nil, err
	}
	out := make([]PackageRecord, 0, len(t.Rows))
	for n, row := range t.Rows {
		p := PackageRecord{
			RecordType: t.Get(row, "record_type"),
			GUID:       t.Get(row, "guid"),
			MD5:        t.Get(row, "md5"),
			Authz:      t.Get(row, "authz"),
			URL:        t.Get(row, "url"),
			FileName:   t.Get(row, "file_name"),
		}
		if p.Size, err = ParseSize(t.Get(row, "size")); err != nil {
			return nil, ErrBadRow{Source: source, Row: n + 1, Err: err}
		}
		p.Contents, err = ParseContents(t.Get(row, "package_contents"))
		if err != nil {
			return nil, ErrBadRow{Source: source, Row: n + 1, Err: err}
		}
		out = append(out, p)
	}
	return out, nil
}

// Writes the fixed header followed by one row per record.
func WritePackages(w io.Writer, records []PackageRecord) error {
	cw := newWriter(w)
	if err := cw.Write(PackageColumns); err != nil {
		return err
	}
	for i := range records {
		if err := cw.Write(records[i].row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
