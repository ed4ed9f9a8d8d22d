// Package spreadsheet turns uploaded xlsx and csv files into rows.
package spreadsheet

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/gamesync/modules/catalog/domain/gamerow"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrMissingHeader     = errors.New("missing header")
	ErrMissingColumn     = errors.New("missing required column")
	ErrDuplicateColumn   = errors.New("duplicate column")
	ErrSheetNotFound     = errors.New("sheet not found")
)

type Options struct {
	// Sheet selects a worksheet by name; the first sheet is used when empty.
	Sheet string
	// Required lists columns that must be present in the header.
	Required []string
}

// Sheet is the parsed content of one worksheet. Lines[i] is the 1-based
// source line of Rows[i].
type Sheet struct {
	Name   string
	Header []string
	Rows   []gamerow.Row
	Lines  []int
}

const (
	mimeZip       = "application/zip"
	mimePlainText = "text/plain"
)

// ReadFile accepts .csv, .xlsx and .xlsm files. The content decides which
// reader runs, so a workbook saved under a .csv name still parses; content
// that is neither a zip container nor text is rejected.
func ReadFile(path string, opts Options) (*Sheet, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm", ".csv":
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", filepath.Ext(path))
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch {
	case descendsFrom(mime, mimeZip):
		return ReadXLSX(f, opts)
	case descendsFrom(mime, mimePlainText):
		s, err := ReadCSV(f, opts)
		if err != nil {
			return nil, err
		}
		s.Name = filepath.Base(path)
		return s, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s content", mime.String())
	}
}

func descendsFrom(m *mimetype.MIME, root string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(root) {
			return true
		}
	}
	return false
}

func ReadXLSX(r io.Reader, opts Options) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer func() { _ = f.Close() }()

	name := opts.Sheet
	if name == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrSheetNotFound
		}
		name = sheets[0]
	} else if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
		return nil, errors.Wrapf(ErrSheetNotFound, "%q", name)
	}

	records, err := f.GetRows(name)
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q", name)
	}
	s, err := build(records, opts)
	if err != nil {
		return nil, err
	}
	s.Name = name
	return s, nil
}

func ReadCSV(r io.Reader, opts Options) (*Sheet, error) {
	cr := csv.NewReader(stripUTF8BOM(bufio.NewReader(r)))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	return build(records, opts)
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func build(records [][]string, opts Options) (*Sheet, error) {
	headerAt := -1
	for i, rec := range records {
		if !blank(rec) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrMissingHeader
	}

	header, err := readHeader(records[headerAt])
	if err != nil {
		return nil, err
	}
	if err := requireHeader(header, opts.Required); err != nil {
		return nil, err
	}

	s := &Sheet{Header: compact(header)}
	for i := headerAt + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		row := make(gamerow.Row, len(header))
		for col, name := range header {
			if name == "" {
				continue
			}
			if col < len(rec) {
				row[name] = rec[col]
			}
		}
		s.Rows = append(s.Rows, row)
		s.Lines = append(s.Lines, i+1)
	}
	return s, nil
}

func readHeader(rec []string) ([]string, error) {
	header := make([]string, len(rec))
	seen := make(map[string]struct{}, len(rec))
	for i, h := range rec {
		h = strings.Join(strings.Fields(h), " ")
		if !utf8.ValidString(h) {
			return nil, errors.New("invalid header encoding")
		}
		header[i] = h
		if h == "" {
			continue
		}
		key := strings.ToLower(h)
		if _, dup := seen[key]; dup {
			return nil, errors.Wrapf(ErrDuplicateColumn, "%q", h)
		}
		seen[key] = struct{}{}
	}
	return header, nil
}

func requireHeader(header, required []string) error {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[strings.ToLower(h)] = struct{}{}
	}
	for _, req := range required {
		if _, ok := have[strings.ToLower(strings.Join(strings.Fields(req), " "))]; !ok {
			return errors.Wrapf(ErrMissingColumn, "%q", req)
		}
	}
	return nil
}

func compact(header []string) []string {
	out := make([]string, 0, len(header))
	for _, h := range header {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
