package latency

import (
	"errors"

	"github.com/montanaflynn/stats"

	"speedtester/pkg/models"
)

// Summary describes the latency spread of a set of probed servers, in milliseconds.
type Summary struct {
	Min    float64 `json:"min_ms"`
	Median float64 `json:"median_ms"`
	Max    float64 `json:"max_ms"`
}

var errNoProbedServers = errors.New("no probed servers")

// Summarize computes min, median and max latency over servers that have been probed.
func Summarize(servers []models.Server) (Summary, error) {
	var data stats.Float64Data
	for _, s := range servers {
		if s.Probed() {
			data = append(data, s.Latency)
		}
	}
	if len(data) == 0 {
		return Summary{}, errNoProbedServers
	}

	minimum, err := data.Min()
	if err != nil {
		return Summary{}, err
	}
	median, err := data.Median()
	if err != nil {
		return Summary{}, err
	}
	maximum, err := data.Max()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Min: minimum, Median: median, Max: maximum}, nil
}
