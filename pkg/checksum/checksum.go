// Package checksum verifies and produces SHA-256 manifests of release files.
package checksum

import (
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultManifest is the manifest file name at a release root.
const DefaultManifest = "checksums_sha256.txt"

// Status of one manifest entry after verification.
type Status string

const (
	StatusOK       Status = "OK"
	StatusMissing  Status = "MISSING"
	StatusMismatch Status = "MISMATCH"
)

var (
	// ErrChecksumFailed is returned when a verification does not pass.
	ErrChecksumFailed = errors.New("checksum verification failed")

	errNoEntries = errors.New("no checksum entries found")
)

// Entry is one expected file digest.
type Entry struct {
	Digest string `json:"sha256" yaml:"sha256"`
	Path   string `json:"path" yaml:"path"`
}

// Result is the verification outcome of one entry.
type Result struct {
	Path     string `json:"path" yaml:"path"`
	Status   Status `json:"status" yaml:"status"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Got      string `json:"got,omitempty" yaml:"got,omitempty"`
}

// Report aggregates verification results.
type Report struct {
	Manifest string   `json:"manifest" yaml:"manifest"`
	Results  []Result `json:"results" yaml:"results"`
	OK       int      `json:"ok" yaml:"ok"`
	Missing  int      `json:"missing" yaml:"missing"`
	Mismatch int      `json:"mismatch" yaml:"mismatch"`
}

// Passed reports whether the verification succeeded. Mismatches always
// fail; missing files fail only in strict mode.
func (r *Report) Passed(strict bool) bool {
	if r.Mismatch > 0 {
		return false
	}
	return !strict || r.Missing == 0
}

// File returns the lowercase hex SHA-256 digest of the file at p.
func File(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open: %s", p)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "failed to hash: %s", p)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ParseText reads a `<sha256>  <relpath>` manifest. Blank lines, comments
// and lines without a path are skipped. Paths may contain spaces.
func ParseText(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		out = append(out, Entry{
			Digest: strings.ToLower(parts[0]),
			Path:   strings.TrimPrefix(strings.Join(parts[1:], " "), "*"),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}
	return out, nil
}

// ParseCSV reads a manifest with relative_path and sha256 columns.
func ParseCSV(r io.Reader) ([]Entry, error) {
	all, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse manifest csv")
	}
	if len(all) == 0 {
		return nil, nil
	}

	pathIdx, sumIdx := -1, -1
	for i, h := range all[0] {
		switch strings.TrimSpace(h) {
		case "relative_path":
			pathIdx = i
		case "sha256":
			sumIdx = i
		}
	}
	if pathIdx < 0 || sumIdx < 0 {
		return nil, errors.New("manifest csv requires relative_path and sha256 columns")
	}

	out := make([]Entry, 0, len(all)-1)
	for _, rec := range all[1:] {
		if pathIdx >= len(rec) || sumIdx >= len(rec) {
			continue
		}
		out = append(out, Entry{
			Digest: strings.ToLower(strings.TrimSpace(rec[sumIdx])),
			Path:   strings.TrimSpace(rec[pathIdx]),
		})
	}
	return out, nil
}

// Load reads the manifest at p, choosing the CSV parser by extension.
func Load(p string) ([]Entry, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.Wrapf(err, "checksum file not found: %s", p)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(p), ".csv") {
		return ParseCSV(f)
	}
	return ParseText(f)
}

// Verify checks every manifest entry against the files under root. The
// manifest path is relative to root; its own entry is skipped.
func Verify(root, manifest string) (*Report, error) {
	if manifest == "" {
		manifest = DefaultManifest
	}
	mp := manifest
	if !filepath.IsAbs(mp) {
		mp = filepath.Join(root, manifest)
	}

	entries, err := Load(mp)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.Wrap(errNoEntries, mp)
	}

	self := cleanRel(manifest)
	rep := &Report{Manifest: mp, Results: make([]Result, 0, len(entries))}
	for _, e := range entries {
		rel := cleanRel(e.Path)
		if rel == self {
			continue
		}

		res := Result{Path: e.Path, Expected: e.Digest}
		got, err := File(filepath.Join(root, filepath.FromSlash(rel)))
		switch {
		case err != nil && errors.Is(err, os.ErrNotExist):
			res.Status = StatusMissing
			rep.Missing++
		case err != nil:
			return nil, err
		case got != e.Digest:
			res.Status = StatusMismatch
			res.Got = got
			rep.Mismatch++
		default:
			res.Status = StatusOK
			rep.OK++
		}
		slog.Debug("checksum", "status", res.Status, "path", e.Path)
		rep.Results = append(rep.Results, res)
	}
	return rep, nil
}

func cleanRel(p string) string {
	return path.Clean(filepath.ToSlash(strings.TrimPrefix(p, "./")))
}

// Make hashes the files under root into manifest entries sorted by path.
// Paths are stored relative to root with forward slashes.
func Make(root string, files []string) ([]Entry, error) {
	out := make([]Entry, 0, len(files))
	for _, f := range files {
		full := f
		if !filepath.IsAbs(full) {
			full = filepath.Join(root, f)
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return nil, errors.Wrapf(err, "file outside of root: %s", f)
		}
		sum, err := File(full)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Digest: sum, Path: filepath.ToSlash(rel)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// WriteText renders entries as `<sha256>  <relpath>` lines.
func WriteText(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := bw.WriteString(e.Digest + "  " + e.Path + "\n"); err != nil {
			return errors.Wrap(err, "failed to write manifest")
		}
	}
	return errors.Wrap(bw.Flush(), "failed to flush manifest")
}

// WriteCSV renders entries with relative_path and sha256 columns.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"relative_path", "sha256"}); err != nil {
		return errors.Wrap(err, "failed to write manifest header")
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.Path, e.Digest}); err != nil {
			return errors.Wrap(err, "failed to write manifest row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush manifest")
}
