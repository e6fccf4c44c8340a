// Package directory acquires the list of measurement servers and ranks it by distance.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"speedtester/pkg/fetch"
	"speedtester/pkg/geo"
	"speedtester/pkg/models"
)

// ErrDirectoryUnavailable is returned when the primary configuration document
// cannot be fetched or parsed. Without it there is no client coordinate to rank by.
var ErrDirectoryUnavailable = errors.New("server directory unavailable")

// Directory is the client profile and its candidate servers, nearest first.
type Directory struct {
	Client  models.Client
	Servers []models.Server
}

type Resolver struct {
	client     fetch.Doer
	configURL  string
	mirrorURLs []string
	logger     *slog.Logger
}

func NewResolver(client fetch.Doer, configURL string, mirrorURLs []string, logger *slog.Logger) *Resolver {
	return &Resolver{
		client:     client,
		configURL:  configURL,
		mirrorURLs: mirrorURLs,
		logger:     logger,
	}
}

// Resolve fetches the primary document, falls back to the mirrors in order when it
// lists no servers, and returns the servers ranked by distance with ignored ids removed.
// Mirror failures are not errors; when every mirror is empty the directory is empty.
func (r *Resolver) Resolve(ctx context.Context) (Directory, error) {
	data, err := fetch.GetRaw(ctx, r.client, r.configURL)
	if err != nil {
		return Directory{}, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	doc, err := parseSettings(data)
	if err != nil {
		return Directory{}, fmt.Errorf("%w: failed to parse %s: %w", ErrDirectoryUnavailable, r.configURL, err)
	}

	client := doc.client()
	servers := doc.servers()
	r.logger.Debug("Fetched primary directory document",
		"url", r.configURL,
		"clientIP", client.IP,
		"ignored", len(client.IgnoreIDs),
		"servers", len(servers))

	if len(servers) == 0 {
		servers = r.fromMirrors(ctx)
	}
	if len(servers) == 0 {
		r.logger.Warn("No directory source listed any server", "mirrors", len(r.mirrorURLs))
	}

	return Directory{Client: client, Servers: Rank(client, servers)}, nil
}

func (r *Resolver) fromMirrors(ctx context.Context) []models.Server {
	for _, url := range r.mirrorURLs {
		data, err := fetch.GetRaw(ctx, r.client, url)
		if err != nil {
			r.logger.Debug("Mirror unavailable", "url", url, "error", err)
			continue
		}
		doc, err := parseSettings(data)
		if err != nil {
			r.logger.Debug("Mirror returned a malformed document", "url", url, "error", err)
			continue
		}
		if servers := doc.servers(); len(servers) > 0 {
			r.logger.Debug("Using mirror server list", "url", url, "servers", len(servers))
			return servers
		}
	}
	return nil
}

// Rank computes each server's distance from the client, drops ignored ids and
// stable-sorts the rest by ascending distance. The input slice is not modified.
func Rank(client models.Client, servers []models.Server) []models.Server {
	origin := geo.Coordinate{Lat: client.Lat, Lon: client.Lon}

	ranked := make([]models.Server, 0, len(servers))
	for _, s := range servers {
		if client.Ignores(s.ID) {
			continue
		}
		ranked = append(ranked, s.WithDistance(geo.Distance(origin, geo.Coordinate{Lat: s.Lat, Lon: s.Lon})))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})
	return ranked
}
