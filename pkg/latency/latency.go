// Package latency probes measurement servers and ranks them by round-trip time.
package latency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"speedtester/pkg/fetch"
	"speedtester/pkg/models"
	"speedtester/pkg/target"
)

const (
	DefaultRetryCount = 2
	DefaultTimeout    = 2 * time.Second

	// MaxLatency is the exclusive upper bound, in milliseconds, for a usable server.
	MaxLatency = 500.0
)

type Prober struct {
	client fetch.Doer
	logger *slog.Logger
	now    func() time.Time
}

func NewProber(client fetch.Doer, logger *slog.Logger) *Prober {
	return &Prober{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// ProbeBest probes every candidate once, in order, and returns copies of the servers
// that answered with latency below MaxLatency, fastest first. Ties keep input order.
//
// The latency of a server is the probe round trip divided by retryCount. A probe
// that hits the timeout is not an error: the elapsed time up to the deadline is used.
// Any other failure drops the candidate. candidates is never modified.
func (p *Prober) ProbeBest(ctx context.Context, candidates []models.Server, retryCount int, timeout time.Duration) []models.Server {
	if retryCount < 1 {
		retryCount = DefaultRetryCount
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ranked := make([]models.Server, 0, len(candidates))
	for _, server := range candidates {
		elapsed, err := p.probe(ctx, server, timeout)
		if err != nil {
			p.logger.Debug("Latency probe failed", "server", server.ID, "host", server.Host, "error", err)
			continue
		}

		ms := float64(elapsed) / float64(time.Millisecond) / float64(retryCount)
		p.logger.Debug("Latency probed", "server", server.ID, "host", server.Host, "latencyMs", ms)
		if ms >= MaxLatency {
			continue
		}
		ranked = append(ranked, server.WithLatency(ms))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Latency < ranked[j].Latency
	})
	return ranked
}

// probe times one GET of the latency file. It returns the elapsed time and a nil
// error when the request completes or when it runs into the probe deadline.
func (p *Prober) probe(ctx context.Context, server models.Server, timeout time.Duration) (time.Duration, error) {
	u, err := target.BuildTestURL(server, target.LatencyFile)
	if err != nil {
		return 0, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	start := p.now()
	err = p.roundTrip(req)
	elapsed := p.now().Sub(start)

	if err != nil {
		// only our own deadline counts as a timeout; a cancelled parent is a failure
		if probeCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			p.logger.Debug("Latency probe timed out", "server", server.ID, "timeout", timeout)
			return elapsed, nil
		}
		return 0, err
	}
	return elapsed, nil
}

func (p *Prober) roundTrip(req *http.Request) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := fetch.CheckStatus(resp); err != nil {
		return err
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}
