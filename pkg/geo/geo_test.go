package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Coordinate
		want float64
		tol  float64
	}{
		{
			name: "Same point",
			a:    Coordinate{Lat: 52.52, Lon: 13.405},
			b:    Coordinate{Lat: 52.52, Lon: 13.405},
			want: 0,
			tol:  1e-9,
		},
		{
			name: "Berlin to Paris",
			a:    Coordinate{Lat: 52.5200, Lon: 13.4050},
			b:    Coordinate{Lat: 48.8566, Lon: 2.3522},
			want: 878,
			tol:  5,
		},
		{
			name: "Quarter meridian",
			a:    Coordinate{Lat: 0, Lon: 0},
			b:    Coordinate{Lat: 90, Lon: 0},
			want: math.Pi / 2 * EarthRadiusKm,
			tol:  1e-6,
		},
		{
			name: "Antipodes",
			a:    Coordinate{Lat: 0, Lon: 0},
			b:    Coordinate{Lat: 0, Lon: 180},
			want: math.Pi * EarthRadiusKm,
			tol:  1e-6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if got < 0 {
				t.Fatalf("Distance() = %v, want non-negative", got)
			}
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("Distance() = %v, want %v ± %v", got, tt.want, tt.tol)
			}
			if back := Distance(tt.b, tt.a); math.Abs(back-got) > 1e-9 {
				t.Errorf("Distance() is not symmetric: %v vs %v", got, back)
			}
		})
	}
}
