package measurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"speedtester/pkg/config"
	"speedtester/pkg/directory"
	"speedtester/pkg/fetch"
	"speedtester/pkg/latency"
	"speedtester/pkg/models"
	"speedtester/pkg/target"
	"speedtester/pkg/transfer"
)

// Cache stores the last resolved server list.
type Cache interface {
	UpsertServers(ctx context.Context, servers []models.Server) error
	GetCachedServers(ctx context.Context) ([]models.Server, error)
}

const (
	SourceNetwork = "network"
	SourceCache   = "cache"
)

// Selection is the outcome of server selection.
type Selection struct {
	Client models.Client `json:"client"`
	// Where the server list came from, SourceNetwork or SourceCache
	Source string `json:"source"`
	// Servers probed, nearest first
	Candidates []models.Server `json:"candidates"`
	// Servers that answered in time, fastest first
	Ranked []models.Server `json:"ranked"`
	// The first BestCount ranked servers handed to the transfer engine
	Best []models.Server `json:"best"`
}

// Result is the outcome of a full measurement run.
type Result struct {
	RunID     string           `json:"run_id"`
	StartedAt time.Time        `json:"started_at"`
	Selection Selection        `json:"selection"`
	Latency   *latency.Summary `json:"latency,omitempty"`
	// Latency of the best server in ms, 0 when no server answered
	Ping     float64          `json:"ping_ms"`
	Download *transfer.Report `json:"download,omitempty"`
	Upload   *transfer.Report `json:"upload,omitempty"`
}

type RunOptions struct {
	SkipDownload bool
	SkipUpload   bool
}

type MeasurementService struct {
	settings config.Settings
	client   fetch.Doer
	cache    Cache
	rnd      target.Rand
	logger   *slog.Logger
}

// NewMeasurementService creates the service. cache may be nil, in which case the cached
// server list is never consulted.
func NewMeasurementService(settings config.Settings, client fetch.Doer, cache Cache, rnd target.Rand, logger *slog.Logger) *MeasurementService {
	return &MeasurementService{
		settings: settings,
		client:   client,
		cache:    cache,
		rnd:      rnd,
		logger:   logger,
	}
}

// runLogger tags every log line of one run with a fresh run id.
func (s *MeasurementService) runLogger() (string, *slog.Logger) {
	id := uuid.NewString()
	return id, s.logger.With("run_id", id)
}

func (s *MeasurementService) resolver(logger *slog.Logger) *directory.Resolver {
	return directory.NewResolver(s.client, s.settings.Speedtest.ConfigURL, s.settings.Speedtest.ServerURLs, logger)
}

// Servers resolves the directory, probes the nearest candidates and ranks them by latency.
func (s *MeasurementService) Servers(ctx context.Context) (Selection, error) {
	_, logger := s.runLogger()
	return s.selectServers(ctx, logger)
}

func (s *MeasurementService) selectServers(ctx context.Context, logger *slog.Logger) (Selection, error) {
	dir, err := s.resolver(logger).Resolve(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("failed to resolve server directory: %w", err)
	}

	sel := Selection{Client: dir.Client, Source: SourceNetwork}
	servers := dir.Servers
	if len(servers) == 0 && s.cache != nil {
		cached, err := s.cache.GetCachedServers(ctx)
		if err != nil {
			logger.Warn("Failed to read cached servers", "error", err)
		} else {
			servers = directory.Rank(dir.Client, cached)
			sel.Source = SourceCache
			logger.Info("Using cached server list", "servers", len(servers))
		}
	}

	sel.Candidates = servers[:min(len(servers), s.settings.Speedtest.ProbeCount)]
	logger.Debug("Probing candidates", "candidates", len(sel.Candidates), "source", sel.Source)

	prober := latency.NewProber(s.client, logger)
	sel.Ranked = prober.ProbeBest(ctx, sel.Candidates, s.settings.Latency.RetryCount, s.settings.Latency.Timeout)
	sel.Best = sel.Ranked[:min(len(sel.Ranked), s.settings.Speedtest.BestCount)]

	if len(sel.Ranked) == 0 {
		logger.Warn("No server answered the latency probe", "candidates", len(sel.Candidates))
	}
	return sel, nil
}

// Download selects servers and measures download throughput against the best of them.
func (s *MeasurementService) Download(ctx context.Context) (transfer.Report, error) {
	return s.measureOne(ctx, transfer.Download)
}

// Upload selects servers and measures upload throughput against the best of them.
func (s *MeasurementService) Upload(ctx context.Context) (transfer.Report, error) {
	return s.measureOne(ctx, transfer.Upload)
}

func (s *MeasurementService) measureOne(ctx context.Context, dir transfer.Direction) (transfer.Report, error) {
	_, logger := s.runLogger()
	sel, err := s.selectServers(ctx, logger)
	if err != nil {
		return transfer.Report{Direction: dir}, err
	}

	engine := transfer.NewEngine(s.client, s.rnd, logger)
	if dir == transfer.Upload {
		return engine.Upload(ctx, sel.Best, s.settings.Upload.Options())
	}
	return engine.Download(ctx, sel.Best, s.settings.Download.Options())
}

// Run performs the whole pipeline: server selection, then download, then upload.
func (s *MeasurementService) Run(ctx context.Context, opts RunOptions) (Result, error) {
	id, logger := s.runLogger()
	result := Result{RunID: id, StartedAt: time.Now().UTC()}

	logger.Info("Starting measurement run")
	sel, err := s.selectServers(ctx, logger)
	if err != nil {
		return result, err
	}
	result.Selection = sel

	if summary, err := latency.Summarize(sel.Ranked); err == nil {
		result.Latency = &summary
	}
	if len(sel.Ranked) > 0 {
		result.Ping = sel.Ranked[0].Latency
	}

	engine := transfer.NewEngine(s.client, s.rnd, logger)
	if !opts.SkipDownload {
		report, err := engine.Download(ctx, sel.Best, s.settings.Download.Options())
		if err != nil {
			return result, fmt.Errorf("download measurement interrupted: %w", err)
		}
		result.Download = &report
	}
	if !opts.SkipUpload {
		report, err := engine.Upload(ctx, sel.Best, s.settings.Upload.Options())
		if err != nil {
			return result, fmt.Errorf("upload measurement interrupted: %w", err)
		}
		result.Upload = &report
	}

	logger.Info("Measurement run finished",
		"ping", result.Ping,
		"download", throughputOf(result.Download),
		"upload", throughputOf(result.Upload))
	return result, nil
}

func throughputOf(r *transfer.Report) float64 {
	if r == nil {
		return 0
	}
	return r.Throughput
}

// SyncCache resolves the directory from the network and stores its servers.
// It returns the number of servers written.
func (s *MeasurementService) SyncCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, fmt.Errorf("server cache is not configured")
	}

	_, logger := s.runLogger()
	dir, err := s.resolver(logger).Resolve(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve server directory: %w", err)
	}
	if len(dir.Servers) == 0 {
		logger.Warn("Directory is empty, cache left untouched")
		return 0, nil
	}

	if err := s.cache.UpsertServers(ctx, dir.Servers); err != nil {
		return 0, fmt.Errorf("failed to update server cache: %w", err)
	}
	logger.Info("Server cache updated", "servers", len(dir.Servers))
	return len(dir.Servers), nil
}

// CachedServers returns the cached server list as stored.
func (s *MeasurementService) CachedServers(ctx context.Context) ([]models.Server, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("server cache is not configured")
	}
	return s.cache.GetCachedServers(ctx)
}
