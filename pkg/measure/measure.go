// Package measure turns evaluation images and prototype folders into the
// long-form directional distance table.
package measure

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/mchmarny/sfi/pkg/config"
	"github.com/mchmarny/sfi/pkg/fusion"
	"github.com/mchmarny/sfi/pkg/imaging"
	"github.com/mchmarny/sfi/pkg/metric"
	"github.com/mchmarny/sfi/pkg/pool"
	"github.com/mchmarny/sfi/pkg/scan"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	originPoolName = "C"
	defaultNotes   = "Reference measurement; prototype pools are pooled by median distance."
)

// Options configures a measurement run.
type Options struct {
	EvalDir string
	RefC    string
	// RefW is optional; without it every dw is NaN.
	RefW    string
	Metrics []string
	Config  *config.Config
}

// RunLog records the inputs and shape of a measurement run.
type RunLog struct {
	EvalSet    string    `json:"eva_set" yaml:"evaSet"`
	RefC       string    `json:"ref_c" yaml:"refC"`
	RefW       *string   `json:"ref_w" yaml:"refW"`
	NEval      int       `json:"n_eval" yaml:"nEval"`
	NRefC      int       `json:"n_ref_c" yaml:"nRefC"`
	NRefWTotal int       `json:"n_ref_w_total" yaml:"nRefWTotal"`
	Metrics    []string  `json:"metrics" yaml:"metrics"`
	ImageSize  int       `json:"image_size" yaml:"imageSize"`
	Notes      string    `json:"notes" yaml:"notes"`
	Started    time.Time `json:"started" yaml:"started"`
	Duration   string    `json:"duration" yaml:"duration"`
}

// Result is the output of Run.
type Result struct {
	Records []fusion.DistanceRecord
	Log     RunLog
}

// Run measures every (image, metric) pair. Prototype representations are
// computed once; evaluation images are spread over cfg.Workers goroutines.
func Run(ctx context.Context, opt Options) (*Result, error) {
	start := time.Now()
	cfg := opt.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	metrics, err := metric.Resolve(opt.Metrics)
	if err != nil {
		return nil, err
	}

	items, err := scan.EvalItems(opt.EvalDir, cfg)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.Errorf("no eval images found under %s with known style folders", opt.EvalDir)
	}

	originPaths, err := scan.Images(opt.RefC)
	if err != nil {
		return nil, err
	}
	if len(originPaths) == 0 {
		return nil, errors.Wrapf(pool.ErrEmptyOriginPool, "no prototypes under %s", opt.RefC)
	}

	stylePaths := map[string][]string{}
	if opt.RefW != "" {
		if stylePaths, err = scan.StylePools(opt.RefW, cfg); err != nil {
			return nil, err
		}
	}

	slog.Info("building prototype pools",
		"origin", len(originPaths), "styles", len(stylePaths), "metrics", len(metrics))
	sets, err := buildSets(ctx, metrics, originPaths, stylePaths, cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("measuring", "images", len(items), "workers", cfg.Workers)
	records, err := measureItems(ctx, items, sets, cfg)
	if err != nil {
		return nil, err
	}

	log := RunLog{
		EvalSet:   opt.EvalDir,
		RefC:      opt.RefC,
		NEval:     len(items),
		NRefC:     len(originPaths),
		Metrics:   make([]string, len(metrics)),
		ImageSize: cfg.ImageSize,
		Notes:     defaultNotes,
		Started:   start.UTC(),
		Duration:  time.Since(start).Round(time.Millisecond).String(),
	}
	if opt.RefW != "" {
		refW := opt.RefW
		log.RefW = &refW
		for _, p := range stylePaths {
			log.NRefWTotal += len(p)
		}
	}
	for i, m := range metrics {
		log.Metrics[i] = m.Name()
	}
	sort.Strings(log.Metrics)

	return &Result{Records: records, Log: log}, nil
}

// loadAll decodes every path and extracts one representation per metric.
func loadAll(ctx context.Context, paths []string, metrics []metric.Metric, cfg *config.Config) ([][]metric.Representation, error) {
	out := make([][]metric.Representation, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := imaging.Load(p, cfg.ImageSize)
			if err != nil {
				return err
			}
			reps, err := extract(img, metrics)
			if err != nil {
				return errors.Wrapf(err, "prototype %s", p)
			}
			out[i] = reps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func extract(img *imaging.Frame, metrics []metric.Metric) ([]metric.Representation, error) {
	reps := make([]metric.Representation, len(metrics))
	for j, m := range metrics {
		r, err := m.Extract(img)
		if err != nil {
			return nil, errors.Wrapf(err, "extracting %s", m.Name())
		}
		reps[j] = r
	}
	return reps, nil
}

func prototypes(paths []string, reps [][]metric.Representation, j int) []pool.Prototype {
	list := make([]pool.Prototype, len(paths))
	for i, p := range paths {
		list[i] = pool.Prototype{ID: filepath.Base(p), Rep: reps[i][j]}
	}
	return list
}

func buildSets(ctx context.Context, metrics []metric.Metric, originPaths []string, stylePaths map[string][]string, cfg *config.Config) ([]*pool.Set, error) {
	originReps, err := loadAll(ctx, originPaths, metrics, cfg)
	if err != nil {
		return nil, err
	}

	styles := make([]string, 0, len(stylePaths))
	for s := range stylePaths {
		styles = append(styles, s)
	}
	sort.Strings(styles)

	styleReps := make(map[string][][]metric.Representation, len(styles))
	for _, s := range styles {
		if styleReps[s], err = loadAll(ctx, stylePaths[s], metrics, cfg); err != nil {
			return nil, err
		}
	}

	sets := make([]*pool.Set, len(metrics))
	for j, m := range metrics {
		origin, err := pool.New(originPoolName, m, prototypes(originPaths, originReps, j))
		if err != nil {
			return nil, err
		}
		comparison := make(map[string]*pool.Pool, len(styles))
		for _, s := range styles {
			if comparison[s], err = pool.New(s, m, prototypes(stylePaths[s], styleReps[s], j)); err != nil {
				return nil, err
			}
		}
		if sets[j], err = pool.NewSet(origin, comparison); err != nil {
			return nil, errors.Wrapf(err, "metric %s", m.Name())
		}
	}
	return sets, nil
}

func measureItems(ctx context.Context, items []scan.EvalItem, sets []*pool.Set, cfg *config.Config) ([]fusion.DistanceRecord, error) {
	records := make([]fusion.DistanceRecord, len(items)*len(sets))
	metrics := make([]metric.Metric, len(sets))
	for j, s := range sets {
		metrics[j] = s.Metric()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := imaging.Load(item.Path, cfg.ImageSize)
			if err != nil {
				return err
			}
			reps, err := extract(img, metrics)
			if err != nil {
				return errors.Wrapf(err, "image %s", item.Path)
			}
			for j, s := range sets {
				dc, dw, err := s.Directional(reps[j], item.StyleAbbrev)
				if err != nil {
					return errors.Wrapf(err, "image %s metric %s", item.Path, metrics[j].Name())
				}
				records[i*len(sets)+j] = fusion.DistanceRecord{
					ImageUID:    item.UID,
					ImagePath:   filepath.ToSlash(item.Path),
					Style:       item.Style,
					StyleAbbrev: item.StyleAbbrev,
					Metric:      metrics[j].Name(),
					DC:          dc,
					DW:          dw,
				}
			}
			slog.Debug("measured", "image", item.UID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(a, b int) bool {
		if records[a].ImageUID != records[b].ImageUID {
			return records[a].ImageUID < records[b].ImageUID
		}
		return records[a].Metric < records[b].Metric
	})
	return records, nil
}
