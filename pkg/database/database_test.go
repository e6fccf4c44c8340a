package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"speedtester/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// every connection to :memory: is a separate database
	sqldb.SetMaxOpenConns(1)

	db := Open(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return db
}

func TestUpsertAndGetServers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := []models.Server{
		{ID: "20", URL: "http://b.example.net/speedtest/upload.php", Lat: 48.85, Lon: 2.35, Name: "Paris", CountryCode: "FR", Host: "b.example.net:8080", Distance: 12, Latency: 33},
		{ID: "10", URL: "http://a.example.net/speedtest/upload.php", Lat: 52.52, Lon: 13.40, Name: "Berlin", CountryCode: "DE", Host: "a.example.net:8080"},
	}
	if err := db.UpsertServers(ctx, first); err != nil {
		t.Fatalf("UpsertServers() error = %v", err)
	}

	moved := first[0]
	moved.URL = "http://c.example.net/speedtest/upload.php"
	moved.Host = "c.example.net:8080"
	if err := db.UpsertServers(ctx, []models.Server{moved}); err != nil {
		t.Fatalf("UpsertServers() error = %v", err)
	}

	got, err := db.GetCachedServers(ctx)
	if err != nil {
		t.Fatalf("GetCachedServers() error = %v", err)
	}

	want := []models.Server{
		{ID: "10", URL: "http://a.example.net/speedtest/upload.php", Lat: 52.52, Lon: 13.40, Name: "Berlin", CountryCode: "DE", Host: "a.example.net:8080", Latency: models.LatencyUnset},
		{ID: "20", URL: "http://c.example.net/speedtest/upload.php", Lat: 48.85, Lon: 2.35, Name: "Paris", CountryCode: "FR", Host: "c.example.net:8080", Latency: models.LatencyUnset},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(models.Server{}, "BaseModel", "UpdatedAt")); diff != "" {
		t.Errorf("GetCachedServers() mismatch (-want +got):\n%s", diff)
	}
	for _, s := range got {
		if s.UpdatedAt.IsZero() {
			t.Errorf("server %s has no update time", s.ID)
		}
	}
}

func TestUpsertServersEmpty(t *testing.T) {
	db := newTestDB(t)

	if err := db.UpsertServers(context.Background(), nil); err != nil {
		t.Fatalf("UpsertServers(nil) error = %v", err)
	}
	got, err := db.GetCachedServers(context.Background())
	if err != nil {
		t.Fatalf("GetCachedServers() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetCachedServers() = %d servers, want 0", len(got))
	}
}
