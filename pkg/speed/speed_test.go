package speed

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestThroughput(t *testing.T) {
	tests := []struct {
		name    string
		bytes   int64
		elapsed time.Duration
	}{
		{name: "One thousand KiB in one second", bytes: 1024 * 1000, elapsed: time.Second},
		{name: "Fractional milliseconds", bytes: 3_500_000, elapsed: 1234567 * time.Microsecond},
		{name: "No bytes", bytes: 0, elapsed: 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Throughput(tt.bytes, tt.elapsed)
			if err != nil {
				t.Fatalf("Throughput() error = %v", err)
			}
			ms := float64(tt.elapsed) / float64(time.Millisecond)
			want := (float64(tt.bytes) * 8 / 1024) / (ms / 1000) / 1000
			if math.Abs(got-want) > 1e-9 {
				t.Errorf("Throughput() = %v, want %v", got, want)
			}
		})
	}

	got, _ := Throughput(1024*1000, time.Second)
	if math.Abs(got-8) > 1e-9 {
		t.Errorf("Throughput(1024000, 1s) = %v, want 8", got)
	}
}

func TestThroughputZeroDuration(t *testing.T) {
	if _, err := Throughput(1, 0); !errors.Is(err, ErrZeroDuration) {
		t.Fatalf("Throughput() error = %v, want %v", err, ErrZeroDuration)
	}
}

func TestMbps(t *testing.T) {
	if got := Mbps(1_000_000, time.Second); math.Abs(got-8) > 1e-9 {
		t.Errorf("Mbps() = %v, want 8", got)
	}
	if got := Mbps(1_000_000, 0); got != 0 {
		t.Errorf("Mbps() with zero duration = %v, want 0", got)
	}
}
