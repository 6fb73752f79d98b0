package fetch

import (
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	"github.com/hashicorp/go-multierror"
)

// Options configures a Fetcher.
type Options struct {
	BaseURL   string
	DataDir   string
	Variables []string
	Steps     []int
	Workers   int
	// Timeout bounds a whole Fetch call; tasks not started by then are abandoned.
	Timeout time.Duration
}

// Summary reports the outcome of one Fetch call.
type Summary struct {
	Run        domain.Run
	Planned    int
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	// Errors aggregates task failures; nil when every task succeeded.
	Errors error
}

// Available is the number of files present after the fetch.
func (s Summary) Available() int {
	return s.Downloaded + s.Skipped
}

// Fetcher downloads and decompresses the grid files of a run with a bounded
// worker pool. Failed tasks are logged and abandoned.
type Fetcher struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Fetcher.
func New(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Fetcher{
		opts:       opts,
		httpClient: &http.Client{},
		logger:     logger,
		metrics:    metrics,
	}
}

type taskResult struct {
	task    Task
	skipped bool
	bytes   int64
	err     error
}

// Fetch downloads every planned file of run that is not already on disk. It
// only returns an error when the run directory cannot be created or the
// caller's context is done; individual task failures are reported in the
// summary.
func (f *Fetcher) Fetch(ctx context.Context, run domain.Run) (Summary, error) {
	tasks := Plan(f.opts.BaseURL, f.opts.DataDir, run, f.opts.Variables, f.opts.Steps)
	summary := Summary{Run: run, Planned: len(tasks)}

	if err := os.MkdirAll(RunDir(f.opts.DataDir, run), 0o755); err != nil {
		return summary, fmt.Errorf("create run directory: %w", err)
	}

	fetchCtx := ctx
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	f.logger.Info("fetching run", "run", run.String(), "tasks", len(tasks), "workers", f.opts.Workers)

	queue := make(chan Task, len(tasks))
	results := make(chan taskResult, len(tasks))

	var wg sync.WaitGroup
	for range f.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				if err := fetchCtx.Err(); err != nil {
					results <- taskResult{task: t, err: err}
					continue
				}
				results <- f.runTask(fetchCtx, t)
			}
		}()
	}
	for _, t := range tasks {
		queue <- t
	}
	close(queue)
	wg.Wait()
	close(results)

	var errs *multierror.Error
	abandoned := 0
	for r := range results {
		switch {
		case errors.Is(r.err, context.DeadlineExceeded), errors.Is(r.err, context.Canceled):
			summary.Failed++
			abandoned++
			f.metrics.FilesFetched.WithLabelValues("failed").Inc()
		case r.err != nil:
			summary.Failed++
			errs = multierror.Append(errs, fmt.Errorf("%s step %d: %w", r.task.Variable, r.task.Step, r.err))
			f.metrics.FilesFetched.WithLabelValues("failed").Inc()
			f.logger.Warn("download failed",
				"run", run.String(), "variable", r.task.Variable, "step", r.task.Step, "error", r.err)
		case r.skipped:
			summary.Skipped++
			f.metrics.FilesFetched.WithLabelValues("skipped").Inc()
		default:
			summary.Downloaded++
			summary.Bytes += r.bytes
			f.metrics.FilesFetched.WithLabelValues("downloaded").Inc()
		}
	}
	if abandoned > 0 {
		errs = multierror.Append(errs, fmt.Errorf("%d tasks abandoned: %w", abandoned, fetchCtx.Err()))
	}
	summary.Errors = errs.ErrorOrNil()

	f.logger.Info("fetch complete",
		"run", run.String(),
		"downloaded", summary.Downloaded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"bytes", summary.Bytes,
	)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (f *Fetcher) runTask(ctx context.Context, t Task) taskResult {
	if _, err := os.Stat(t.Dest); err == nil {
		return taskResult{task: t, skipped: true}
	}
	start := time.Now()
	n, err := f.download(ctx, t)
	if err != nil {
		return taskResult{task: t, err: err}
	}
	f.metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	f.metrics.DownloadBytes.Add(float64(n))
	f.logger.Debug("downloaded", "variable", t.Variable, "step", t.Step, "bytes", n)
	return taskResult{task: t, bytes: n}
}

// download streams the compressed body through a bzip2 reader into Dest.tmp
// and renames it into place once complete.
func (f *Fetcher) download(ctx context.Context, t Task) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", t.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("upstream status %d for %s", resp.StatusCode, t.URL)
	}

	tmp := t.Dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(out, bzip2.NewReader(resp.Body))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("decompress %s: %w", t.URL, err)
	}
	if err := os.Rename(tmp, t.Dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	return n, nil
}
