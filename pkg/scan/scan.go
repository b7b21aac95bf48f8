// Package scan discovers evaluation images and prototype pools on disk.
package scan

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mchmarny/sfi/pkg/config"
	"github.com/mchmarny/sfi/pkg/imaging"
	"github.com/pkg/errors"
)

// EvalItem is one evaluation image with its style labels.
type EvalItem struct {
	Path        string `json:"image_path" yaml:"imagePath"`
	Style       string `json:"style" yaml:"style"`
	StyleAbbrev string `json:"style_abbrev" yaml:"styleAbbrev"`
	UID         string `json:"image_uid" yaml:"imageUID"`
}

// Images lists the image files under root recursively, sorted by path.
func Images(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && imaging.IsImage(p) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk: %s", root)
	}
	sort.Strings(out)
	return out, nil
}

func subdirs(root string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dir: %s", root)
	}
	out := entries[:0]
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e)
		}
	}
	return out, nil
}

// EvalItems lists the images of every known style folder directly under
// evalDir. Unknown folders are skipped. The uid is the configured prefix
// joined with the image path relative to evalDir.
func EvalItems(evalDir string, cfg *config.Config) ([]EvalItem, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	dirs, err := subdirs(evalDir)
	if err != nil {
		return nil, err
	}

	var items []EvalItem
	for _, d := range dirs {
		style, ok := cfg.Styles[d.Name()]
		if !ok {
			slog.Debug("skipping unknown style folder", "folder", d.Name())
			continue
		}
		paths, err := Images(filepath.Join(evalDir, d.Name()))
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			rel, err := filepath.Rel(evalDir, p)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to relativize: %s", p)
			}
			items = append(items, EvalItem{
				Path:        p,
				Style:       style.Name,
				StyleAbbrev: style.Abbrev,
				UID:         cfg.UIDPrefix + "/" + filepath.ToSlash(rel),
			})
		}
	}
	return items, nil
}

// StylePools lists the images of every known style folder directly under
// root, keyed by style abbreviation. Folders mapping to the same style are
// merged.
func StylePools(root string, cfg *config.Config) (map[string][]string, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	dirs, err := subdirs(root)
	if err != nil {
		return nil, err
	}

	pools := make(map[string][]string)
	for _, d := range dirs {
		style, ok := cfg.Styles[d.Name()]
		if !ok {
			slog.Debug("skipping unknown prototype folder", "folder", d.Name())
			continue
		}
		paths, err := Images(filepath.Join(root, d.Name()))
		if err != nil {
			return nil, err
		}
		pools[style.Abbrev] = append(pools[style.Abbrev], paths...)
	}
	for k := range pools {
		sort.Strings(pools[k])
	}
	return pools, nil
}
