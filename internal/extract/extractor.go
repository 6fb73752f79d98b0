package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/nwp-forecast-service/internal/cellindex"
	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

const fileExt = ".grib2"

// ErrNoFiles is returned when a run directory holds no grid files.
var ErrNoFiles = errors.New("no grid files")

// ParseFileName splits a local grid file name of the form {variable}_{FFF}.grib2.
func ParseFileName(name string) (variable string, step int, err error) {
	base, ok := strings.CutSuffix(filepath.Base(name), fileExt)
	if !ok {
		return "", 0, fmt.Errorf("%q: not a %s file", name, fileExt)
	}
	i := strings.LastIndexByte(base, '_')
	if i <= 0 || i == len(base)-1 {
		return "", 0, fmt.Errorf("%q: missing step suffix", name)
	}
	step, err = strconv.Atoi(base[i+1:])
	if err != nil || step < 0 {
		return "", 0, fmt.Errorf("%q: invalid step %q", name, base[i+1:])
	}
	return base[:i], step, nil
}

// Options configures an Extractor.
type Options struct {
	Region  domain.BBox
	Workers int
}

// Extractor decodes the files of a run and folds every grid point of the
// region into the record of its cell.
type Extractor struct {
	decoder  Decoder
	resolver cellindex.Resolver
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates an Extractor. A non-positive worker count uses one worker per CPU.
func New(decoder Decoder, resolver cellindex.Resolver, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Extractor{decoder: decoder, resolver: resolver, opts: opts, logger: logger, metrics: metrics}
}

type gridFile struct {
	path     string
	variable string
	step     int
}

func listFiles(dir string) ([]gridFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list run directory: %w", err)
	}
	var files []gridFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		variable, step, err := ParseFileName(e.Name())
		if err != nil {
			continue
		}
		files = append(files, gridFile{path: filepath.Join(dir, e.Name()), variable: variable, step: step})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

// ExtractRun processes every grid file in dir. Files that cannot be decoded
// are skipped with a warning; lookup failures other than misses abort the run.
func (e *Extractor) ExtractRun(ctx context.Context, run domain.Run, dir string) (*Accumulator, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoFiles)
	}

	acc := NewAccumulator()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := e.extractFile(gctx, run, f)
			switch {
			case errors.Is(err, errDecode):
				e.metrics.ExtractErrors.Inc()
				e.logger.Warn("skipping grid file", "run", run.String(), "file", filepath.Base(f.path), "error", err)
				return nil
			case err != nil:
				return err
			}
			acc.merge(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract run %s: %w", run, err)
	}

	e.logger.Info("extraction complete",
		"run", run.String(),
		"files", acc.Files(),
		"skipped", len(files)-acc.Files(),
		"records", acc.Len(),
		"cells", acc.Cells(),
	)
	return acc, nil
}

var errDecode = errors.New("decode grid file")

func (e *Extractor) extractFile(ctx context.Context, run domain.Run, f gridFile) (partial, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errDecode, err)
	}
	defer fh.Close()

	grids, err := e.decoder.Decode(bufio.NewReader(fh))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errDecode, err)
	}

	key := Key{ValidTime: run.ValidTime(f.step)}
	p := make(partial)
	for _, g := range grids {
		for k := range g.Len() {
			v := g.Values[k]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lat, lon := g.Point(k)
			if !e.opts.Region.Contains(lat, lon) {
				continue
			}
			m, err := e.resolver.Resolve(ctx, lat, lon)
			if cellindex.IsMiss(err) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("resolve %.4f,%.4f: %w", lat, lon, err)
			}
			key.CellID = m.CellID
			p.add(key, f.variable, v)
		}
	}
	return p, nil
}
