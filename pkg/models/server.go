package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LatencyUnset marks a server that has not been probed yet.
const LatencyUnset = -1.0

type Server struct {
	bun.BaseModel `bun:"table:servers,alias:s"`

	ID          string    `bun:",pk" json:"id"`
	URL         string    `bun:",notnull" json:"url"`
	Lat         float64   `bun:",notnull" json:"lat"`
	Lon         float64   `bun:",notnull" json:"lon"`
	Name        string    `json:"name,omitempty"`
	Country     string    `json:"country,omitempty"`
	CountryCode string    `json:"country_code,omitempty"`
	Sponsor     string    `json:"sponsor,omitempty"`
	Host        string    `json:"host,omitempty"`
	Distance    float64   `bun:"-" json:"distance_km"`
	Latency     float64   `bun:"-" json:"latency_ms"`
	UpdatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"-"`
}

// WithDistance returns a copy of s carrying the given distance in kilometers.
func (s Server) WithDistance(km float64) Server {
	s.Distance = km
	return s
}

// WithLatency returns a copy of s carrying the given latency in milliseconds.
func (s Server) WithLatency(ms float64) Server {
	s.Latency = ms
	return s
}

// Probed reports whether a latency value has been recorded.
func (s Server) Probed() bool {
	return s.Latency >= 0
}
