// Package table reads and writes the CSV tables exchanged by the release
// bundle: distance rows, metric weights, dimension scores, key numbers and
// the derived summaries. Files ending in .gz are transparently gzipped.
package table

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
	gzExt    = ".gz"
)

// ErrMissingInput is returned when a required input file does not exist.
var ErrMissingInput = errors.New("missing required file")

// Rows is a parsed CSV table with its header index.
type Rows struct {
	Path    string
	columns map[string]int
	Records [][]string
}

// Has reports whether the table carries the named column.
func (r *Rows) Has(col string) bool {
	_, ok := r.columns[col]
	return ok
}

// Require returns an error naming the first absent column.
func (r *Rows) Require(cols ...string) error {
	for _, c := range cols {
		if !r.Has(c) {
			return errors.Errorf("%s: missing column %q", r.Path, c)
		}
	}
	return nil
}

// Get returns the cell of column col in record i, empty when the column
// is absent or the record is short.
func (r *Rows) Get(i int, col string) string {
	idx, ok := r.columns[col]
	if !ok || idx >= len(r.Records[i]) {
		return ""
	}
	return r.Records[i][idx]
}

// Float parses the cell of column col in record i.
func (r *Rows) Float(i int, col string) (float64, error) {
	v, err := ParseFloat(r.Get(i, col))
	if err != nil {
		return 0, errors.Wrapf(err, "%s: row %d column %s", r.Path, i+2, col)
	}
	return v, nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Read parses the CSV file at path. A missing file yields ErrMissingInput.
func Read(path string) (*Rows, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(ErrMissingInput, path)
		}
		return nil, errors.Wrapf(err, "failed to open table: %s", path)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), gzExt) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open gzip stream: %s", path)
		}
		defer zr.Close()
		src = zr
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse csv: %s", path)
	}
	if len(all) == 0 {
		return nil, errors.Errorf("%s: empty table", path)
	}

	r := &Rows{Path: path, columns: make(map[string]int, len(all[0]))}
	for i, h := range all[0] {
		r.columns[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	r.Records = all[1:]
	return r, nil
}

// Write creates path with the header and rows.
func Write(path string, header []string, rows [][]string) error {
	return replace(path, func(w io.Writer) error {
		return writeCSV(w, path, header, rows)
	})
}

// replace streams content into a temp file in the destination directory
// and renames it into place once fill and close succeed. A failed write
// leaves any existing file at path untouched.
func replace(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return errors.Wrapf(err, "failed to create dir: %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file in: %s", dir)
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close temp file: %s", tmp.Name())
	}
	if err := os.Chmod(tmp.Name(), fileMode); err != nil {
		return errors.Wrapf(err, "failed to set mode on: %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to move into place: %s", path)
	}
	return nil
}

func writeCSV(w io.Writer, path string, header []string, rows [][]string) error {
	var zw *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), gzExt) {
		zw = gzip.NewWriter(w)
		w = zw
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrapf(err, "failed to write header: %s", path)
	}
	if err := cw.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "failed to write rows: %s", path)
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			return errors.Wrapf(err, "failed to finish gzip stream: %s", path)
		}
	}
	return nil
}

// WriteJSON writes v as indented JSON through the same temp-then-rename path.
func WriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal json")
	}
	return writeFile(path, append(b, '\n'))
}

// WriteText writes the lines, newline terminated.
func WriteText(path string, lines ...string) error {
	return writeFile(path, []byte(strings.Join(lines, "\n")+"\n"))
}

// Copy duplicates src into dst byte for byte.
func Copy(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.Wrap(ErrMissingInput, src)
		}
		return errors.Wrapf(err, "failed to read: %s", src)
	}
	return writeFile(dst, b)
}

func writeFile(path string, b []byte) error {
	return replace(path, func(w io.Writer) error {
		_, err := w.Write(b)
		return errors.Wrapf(err, "failed to write: %s", path)
	})
}

// FormatFloat renders v in its shortest round-trip form, NaN as empty.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatInt renders an integer cell.
func FormatInt(v int) string {
	return strconv.Itoa(v)
}

// ParseFloat reads a numeric cell. Empty and "nan" cells are NaN.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid number %q", s)
	}
	return v, nil
}
