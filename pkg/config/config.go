// Package config loads the speedtester settings from viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"speedtester/pkg/database"
	"speedtester/pkg/latency"
	"speedtester/pkg/models"
	"speedtester/pkg/transfer"
)

const (
	DefaultConfigURL = "https://www.speedtest.net/speedtest-config.php"

	defaultBestCount  = 1
	defaultProbeCount = 10
)

var DefaultServerURLs = []string{
	"https://www.speedtest.net/speedtest-servers-static.php",
	"https://c.speedtest.net/speedtest-servers-static.php",
	"https://www.speedtest.net/speedtest-servers.php",
	"https://c.speedtest.net/speedtest-servers.php",
}

type Settings struct {
	Speedtest Speedtest `mapstructure:"speedtest"`
	Latency   Latency   `mapstructure:"latency"`
	Download  Transfer  `mapstructure:"download"`
	Upload    Transfer  `mapstructure:"upload"`
	Cache     Cache     `mapstructure:"cache"`
	Database  Database  `mapstructure:"database"`
}

type Speedtest struct {
	ConfigURL      string        `mapstructure:"config_url"`
	ServerURLs     []string      `mapstructure:"server_urls"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Transport is an outline-sdk config string; empty dials directly.
	// An ssconfig:// URL is fetched and turned into a shadowsocks transport.
	Transport   string      `mapstructure:"transport"`
	Shadowsocks Shadowsocks `mapstructure:"shadowsocks"`
	// Number of lowest-latency servers handed to the transfer engine
	BestCount int `mapstructure:"best_count"`
	// Number of nearest servers probed for latency
	ProbeCount int `mapstructure:"probe_count"`
}

type Latency struct {
	RetryCount int           `mapstructure:"retry_count"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Transfer struct {
	Concurrency int      `mapstructure:"concurrency"`
	RetryCount  int      `mapstructure:"retry_count"`
	SizeNames   []string `mapstructure:"sizes"`

	Sizes []models.FileSize `mapstructure:"-"`
}

// Options converts the settings into transfer engine options.
func (t Transfer) Options() transfer.Options {
	return transfer.Options{
		Concurrency: t.Concurrency,
		RetryCount:  t.RetryCount,
		Sizes:       t.Sizes,
	}
}

type Cache struct {
	Enabled bool `mapstructure:"enabled"`
}

type Database struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d Database) Options() database.Options {
	return database.Options{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		DBName:   d.DBName,
		SSLMode:  d.SSLMode,
	}
}

// SetDefaults registers a default for every key so that a missing config file is not fatal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("speedtest.config_url", DefaultConfigURL)
	v.SetDefault("speedtest.server_urls", DefaultServerURLs)
	v.SetDefault("speedtest.user_agent", "")
	v.SetDefault("speedtest.request_timeout", 30*time.Second)
	v.SetDefault("speedtest.transport", "")
	v.SetDefault("speedtest.best_count", defaultBestCount)
	v.SetDefault("speedtest.probe_count", defaultProbeCount)

	v.SetDefault("latency.retry_count", latency.DefaultRetryCount)
	v.SetDefault("latency.timeout", latency.DefaultTimeout)

	v.SetDefault("download.concurrency", transfer.DefaultConcurrency)
	v.SetDefault("download.retry_count", transfer.DefaultRetryCount)
	v.SetDefault("download.sizes", []string{"small", "medium", "large"})
	v.SetDefault("upload.concurrency", transfer.DefaultConcurrency)
	v.SetDefault("upload.retry_count", transfer.DefaultRetryCount)

	v.SetDefault("cache.enabled", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "speedtester")
	v.SetDefault("database.sslmode", "disable")
}

// Load decodes the settings held by v and validates them.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode config: %w", err)
	}

	sizes, err := models.ParseFileSizes(s.Download.SizeNames)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid download.sizes: %w", err)
	}
	s.Download.Sizes = sizes

	if s.Speedtest.Transport == "" && s.Speedtest.Shadowsocks.Server != "" {
		s.Speedtest.Transport, err = s.Speedtest.Shadowsocks.BuildURL()
		if err != nil {
			return Settings{}, fmt.Errorf("invalid speedtest.shadowsocks: %w", err)
		}
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the measurement pipeline cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if s.Speedtest.ConfigURL == "" {
		errs = append(errs, errors.New("speedtest.config_url must be set"))
	}
	if s.Speedtest.BestCount < 1 {
		errs = append(errs, fmt.Errorf("speedtest.best_count must be positive, got %d", s.Speedtest.BestCount))
	}
	if s.Speedtest.ProbeCount < 1 {
		errs = append(errs, fmt.Errorf("speedtest.probe_count must be positive, got %d", s.Speedtest.ProbeCount))
	}
	if s.Speedtest.RequestTimeout < 0 {
		errs = append(errs, errors.New("speedtest.request_timeout must not be negative"))
	}
	if s.Latency.RetryCount < 1 {
		errs = append(errs, fmt.Errorf("latency.retry_count must be positive, got %d", s.Latency.RetryCount))
	}
	if s.Latency.Timeout <= 0 {
		errs = append(errs, errors.New("latency.timeout must be positive"))
	}
	for _, t := range []struct {
		name string
		Transfer
	}{{"download", s.Download}, {"upload", s.Upload}} {
		if t.Concurrency < 1 {
			errs = append(errs, fmt.Errorf("%s.concurrency must be positive, got %d", t.name, t.Concurrency))
		}
		if t.RetryCount < 1 {
			errs = append(errs, fmt.Errorf("%s.retry_count must be positive, got %d", t.name, t.RetryCount))
		}
	}
	if len(s.Download.Sizes) == 0 {
		errs = append(errs, errors.New("download.sizes must name at least one size"))
	}
	return errors.Join(errs...)
}
