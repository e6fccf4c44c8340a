package config

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"

	"speedtester/pkg/models"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
			t.Fatalf("ReadConfig() error = %v", err)
		}
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load(newViper(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.Speedtest.ConfigURL != DefaultConfigURL {
		t.Errorf("ConfigURL = %q, want %q", s.Speedtest.ConfigURL, DefaultConfigURL)
	}
	if diff := cmp.Diff(DefaultServerURLs, s.Speedtest.ServerURLs); diff != "" {
		t.Errorf("ServerURLs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(models.DefaultDownloadSizes, s.Download.Sizes); diff != "" {
		t.Errorf("download sizes mismatch (-want +got):\n%s", diff)
	}
	if s.Latency.RetryCount != 2 || s.Latency.Timeout != 2*time.Second {
		t.Errorf("unexpected latency settings: %+v", s.Latency)
	}
	if s.Download.Concurrency != 2 || s.Download.RetryCount != 3 {
		t.Errorf("unexpected download settings: %+v", s.Download)
	}
	if s.Speedtest.BestCount != 1 || s.Speedtest.ProbeCount != 10 {
		t.Errorf("unexpected server counts: best %d, probe %d", s.Speedtest.BestCount, s.Speedtest.ProbeCount)
	}
	if s.Cache.Enabled {
		t.Error("cache should be disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	s, err := Load(newViper(t, `
speedtest:
  best_count: 3
  request_timeout: 5s
  shadowsocks:
    server: ss.example.net
    server_port: 8388
    method: chacha20-ietf-poly1305
    password: secret
latency:
  timeout: 750ms
download:
  concurrency: 4
  sizes: [huge, small]
upload:
  retry_count: 1
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff([]models.FileSize{models.Huge, models.Small}, s.Download.Sizes); diff != "" {
		t.Errorf("download sizes mismatch (-want +got):\n%s", diff)
	}
	opts := s.Download.Options()
	if opts.Concurrency != 4 || opts.RetryCount != 3 {
		t.Errorf("unexpected download options: %+v", opts)
	}
	if s.Upload.RetryCount != 1 || s.Upload.Concurrency != 2 {
		t.Errorf("unexpected upload settings: %+v", s.Upload)
	}
	if s.Latency.Timeout != 750*time.Millisecond || s.Speedtest.RequestTimeout != 5*time.Second {
		t.Errorf("durations not decoded: latency %v, request %v", s.Latency.Timeout, s.Speedtest.RequestTimeout)
	}
	if !strings.HasPrefix(s.Speedtest.Transport, "ss://") || !strings.HasSuffix(s.Speedtest.Transport, "@ss.example.net:8388") {
		t.Errorf("Transport = %q, want an ss:// URL for the configured server", s.Speedtest.Transport)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "Unknown size", yaml: "download:\n  sizes: [tiny]\n"},
		{name: "No sizes", yaml: "download:\n  sizes: []\n"},
		{name: "Zero best count", yaml: "speedtest:\n  best_count: 0\n"},
		{name: "Zero concurrency", yaml: "upload:\n  concurrency: 0\n"},
		{name: "Zero latency timeout", yaml: "latency:\n  timeout: 0s\n"},
		{name: "Incomplete shadowsocks", yaml: "speedtest:\n  shadowsocks:\n    server: ss.example.net\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(newViper(t, tt.yaml)); err == nil {
				t.Fatal("Load() expected an error")
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	testCases := []struct {
		name     string
		config   Shadowsocks
		expected string
	}{
		{
			name: "Full config with prefix",
			config: Shadowsocks{
				Server:     "ss.example.net",
				ServerPort: 443,
				Method:     "chacha20-ietf-poly1305",
				Password:   "secret",
				Prefix:     "POST%20x2a8a1eO",
			},
			expected: "ss://Y2hhY2hhMjAtaWV0Zi1wb2x5MTMwNTpzZWNyZXQ=@ss.example.net:443?prefix=POST%2520x2a8a1eO",
		},
		{
			name: "No prefix",
			config: Shadowsocks{
				Server:     "ss.example.net",
				ServerPort: 8388,
				Method:     "aes-128-gcm",
				Password:   "pw",
			},
			expected: "ss://YWVzLTEyOC1nY206cHc=@ss.example.net:8388",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.config.BuildURL()
			if err != nil {
				t.Fatalf("BuildURL() error = %v", err)
			}
			if got != tc.expected {
				t.Errorf("BuildURL() = %v, want %v", got, tc.expected)
			}
		})
	}
}

type staticDoer struct {
	body string
	urls []string
}

func (d *staticDoer) Do(req *http.Request) (*http.Response, error) {
	d.urls = append(d.urls, req.URL.String())
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader(d.body)),
	}, nil
}

func TestResolveTransport(t *testing.T) {
	ctx := context.Background()

	direct, err := ResolveTransport(ctx, &staticDoer{}, "socks5://127.0.0.1:1080")
	if err != nil || direct != "socks5://127.0.0.1:1080" {
		t.Errorf("ResolveTransport() = %q, %v, want the input unchanged", direct, err)
	}

	doer := &staticDoer{body: `{"server": "ss.example.net", "server_port": 8388, "method": "aes-128-gcm", "password": "pw"}`}
	got, err := ResolveTransport(ctx, doer, "ssconfig://keys.example.net/key.json")
	if err != nil {
		t.Fatalf("ResolveTransport() error = %v", err)
	}
	if got != "ss://YWVzLTEyOC1nY206cHc=@ss.example.net:8388" {
		t.Errorf("ResolveTransport() = %q", got)
	}
	if diff := cmp.Diff([]string{"https://keys.example.net/key.json"}, doer.urls); diff != "" {
		t.Errorf("fetched URLs mismatch (-want +got):\n%s", diff)
	}

	raw := &staticDoer{body: "ss://YWVzLTEyOC1nY206cHc=@ss.example.net:8388\n"}
	if got, err := ResolveTransport(ctx, raw, "ssconfig://keys.example.net/key"); err != nil || got != "ss://YWVzLTEyOC1nY206cHc=@ss.example.net:8388" {
		t.Errorf("ResolveTransport() = %q, %v", got, err)
	}

	if _, err := ResolveTransport(ctx, &staticDoer{body: "not json"}, "ssconfig://keys.example.net/key"); err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("ResolveTransport() error = %v, want a parse error", err)
	}
}
