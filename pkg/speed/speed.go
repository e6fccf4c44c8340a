// Package speed turns byte counts and elapsed times into throughput figures.
package speed

import (
	"errors"
	"time"
)

// ErrZeroDuration is returned when a rate is requested for a zero-length interval.
var ErrZeroDuration = errors.New("speed: elapsed time is zero")

// Throughput computes the transfer rate using the legacy unit convention of the
// speedtest directory clients:
//
//	(totalBytes * 8 / 1024) / (elapsedMs / 1000) / 1000
//
// Bytes become bits, bits become kilobits (1024), the result is divided by elapsed
// seconds and finally by 1000. The unit is therefore "kibibits per second / 1000",
// close to but not exactly Mbit/s. Use Mbps for the SI figure.
func Throughput(totalBytes int64, elapsed time.Duration) (float64, error) {
	if elapsed <= 0 {
		return 0, ErrZeroDuration
	}
	elapsedMs := float64(elapsed) / float64(time.Millisecond)
	kilobits := float64(totalBytes) * 8 / 1024
	return kilobits / (elapsedMs / 1000) / 1000, nil
}

// Mbps returns the SI megabits per second for totalBytes moved in elapsed.
// A non-positive duration yields zero.
func Mbps(totalBytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	bits := float64(totalBytes) * 8
	return bits / elapsed.Seconds() / 1_000_000
}
