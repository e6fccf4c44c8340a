// Package transfer measures download and upload throughput against a list of
// servers, driving each server's batch through a fixed pool of workers.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"speedtester/pkg/fetch"
	"speedtester/pkg/models"
	"speedtester/pkg/speed"
	"speedtester/pkg/target"
)

const (
	DefaultConcurrency = 2
	DefaultRetryCount  = 3
)

type Direction string

const (
	Download Direction = "download"
	Upload   Direction = "upload"
)

// Options configures one measurement. Zero values select the defaults.
type Options struct {
	// Maximum number of requests in flight at once (default: 2)
	Concurrency int
	// Number of jobs generated per size or payload tier (default: 3)
	RetryCount int
	// Download image sizes (default: models.DefaultDownloadSizes). Ignored for uploads.
	Sizes []models.FileSize
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = DefaultConcurrency
	}
	if o.RetryCount < 1 {
		o.RetryCount = DefaultRetryCount
	}
	if o.Sizes == nil {
		o.Sizes = models.DefaultDownloadSizes
	}
	return o
}

// Report is the outcome of a download or upload measurement.
// Completed is false when no server finished its batch; the figures are zero then.
type Report struct {
	Direction  Direction     `json:"direction"`
	Completed  bool          `json:"completed"`
	Server     models.Server `json:"server"`
	Jobs       int           `json:"jobs"`
	Bytes      int64         `json:"bytes"`
	Elapsed    time.Duration `json:"elapsed"`
	Throughput float64       `json:"throughput"`
	Mbps       float64       `json:"mbps"`
	// Servers tried, including the one that completed
	Attempts int `json:"attempts"`
}

// job is a single transfer: a GET of url, or a POST of payload to url.
type job struct {
	url     string
	payload string
}

type Engine struct {
	client fetch.Doer
	rnd    target.Rand
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an engine sharing client across all batches. rnd feeds the
// upload payload generator.
func NewEngine(client fetch.Doer, rnd target.Rand, logger *slog.Logger) *Engine {
	return &Engine{
		client: client,
		rnd:    rnd,
		logger: logger,
		now:    time.Now,
	}
}

// MeasureDownload returns the download throughput, in the legacy unit of
// speed.Throughput, of the first server whose batch completes. It is 0 when every
// server fails.
func (e *Engine) MeasureDownload(ctx context.Context, servers []models.Server, opts Options) float64 {
	report, _ := e.Download(ctx, servers, opts)
	return report.Throughput
}

// MeasureUpload is MeasureDownload for uploads.
func (e *Engine) MeasureUpload(ctx context.Context, servers []models.Server, opts Options) float64 {
	report, _ := e.Upload(ctx, servers, opts)
	return report.Throughput
}

// Download fetches len(opts.Sizes)*opts.RetryCount random images from each server in
// turn until one batch completes. Failing servers are skipped; the only error
// returned is the cancellation of ctx.
func (e *Engine) Download(ctx context.Context, servers []models.Server, opts Options) (Report, error) {
	opts = opts.withDefaults()
	return e.measure(ctx, Download, servers, opts.Concurrency, func(server models.Server) ([]job, error) {
		urls, err := target.DownloadURLs(server, opts.RetryCount, opts.Sizes)
		if err != nil {
			return nil, err
		}
		jobs := make([]job, 0, len(urls))
		for _, u := range urls {
			jobs = append(jobs, job{url: u.String()})
		}
		return jobs, nil
	})
}

// Upload posts MaxUploadTier*opts.RetryCount generated payloads to each server's
// upload URL in turn until one batch completes. The payloads are generated once and
// reused for every server.
func (e *Engine) Upload(ctx context.Context, servers []models.Server, opts Options) (Report, error) {
	opts = opts.withDefaults()
	var payloads []string
	return e.measure(ctx, Upload, servers, opts.Concurrency, func(server models.Server) ([]job, error) {
		if payloads == nil {
			payloads = target.UploadPayloads(e.rnd, opts.RetryCount)
		}
		jobs := make([]job, 0, len(payloads))
		for _, p := range payloads {
			jobs = append(jobs, job{url: server.URL, payload: p})
		}
		return jobs, nil
	})
}

func (e *Engine) measure(ctx context.Context, dir Direction, servers []models.Server, concurrency int, batch func(models.Server) ([]job, error)) (Report, error) {
	report := Report{Direction: dir}
	for _, server := range servers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempts++

		jobs, err := batch(server)
		if err != nil {
			e.logger.Warn("Skipping server with unusable URL", "direction", dir, "server", server.ID, "error", err)
			continue
		}

		start := e.now()
		total, err := e.runBatch(ctx, jobs, concurrency)
		elapsed := e.now().Sub(start)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			e.logger.Warn("Batch failed, trying next server", "direction", dir, "server", server.ID, "host", server.Host, "error", err)
			continue
		}

		report.Completed = true
		report.Server = server
		report.Jobs = len(jobs)
		report.Bytes = total
		report.Elapsed = elapsed
		if len(jobs) > 0 {
			report.Throughput, err = speed.Throughput(total, elapsed)
			if err != nil && !errors.Is(err, speed.ErrZeroDuration) {
				return report, err
			}
			report.Mbps = speed.Mbps(total, elapsed)
		}
		e.logger.Debug("Batch completed",
			"direction", dir,
			"server", server.ID,
			"jobs", len(jobs),
			"bytes", total,
			"elapsed", elapsed,
			"throughput", report.Throughput)
		return report, nil
	}

	e.logger.Warn("No server completed a batch", "direction", dir, "servers", len(servers))
	return report, nil
}

// runBatch feeds jobs, in order, to min(concurrency, len(jobs)) workers and returns the
// summed byte count. The first failing job cancels the rest of the batch.
func (e *Engine) runBatch(ctx context.Context, jobs []job, concurrency int) (int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan job)
	var total atomic.Int64

	for range min(concurrency, len(jobs)) {
		g.Go(func() error {
			for j := range queue {
				n, err := e.do(gctx, j)
				if err != nil {
					return err
				}
				total.Add(n)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(queue)
		for _, j := range jobs {
			select {
			case queue <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	err := g.Wait()
	return total.Load(), err
}

// do runs one job and returns the bytes it moved: the response body length for a
// download, the payload length for an upload.
func (e *Engine) do(ctx context.Context, j job) (int64, error) {
	method := http.MethodGet
	var body io.Reader
	if j.payload != "" {
		method = http.MethodPost
		body = strings.NewReader(j.payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, j.url, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := fetch.CheckStatus(resp); err != nil {
		return 0, err
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response from %s: %w", j.url, err)
	}

	if j.payload != "" {
		return int64(len(j.payload)), nil
	}
	return n, nil
}
