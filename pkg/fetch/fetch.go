// Package fetch builds the HTTP client shared by every speedtester component and
// provides small helpers for plain document downloads.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
)

// DefaultUserAgent mimics a desktop browser; some directory mirrors reject unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 speedtester"

// ErrBadStatus is returned when a server answers with a non-2xx status code.
var ErrBadStatus = errors.New("unexpected HTTP status")

// Doer is the subset of *http.Client used by the measurement packages.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options contains all the configuration options for the shared client
type Options struct {
	// Transport config string understood by outline-sdk configurl. Empty means direct TCP.
	Transport string
	// User-Agent header added to every request that does not set one
	UserAgent string
	// Timeout for a whole request including the body (default: 30s)
	Timeout time.Duration
	// Maximum idle connections kept per host (default: 16)
	MaxIdleConnsPerHost int
}

// NewClient creates the HTTP client used for directory downloads, probes and transfers.
// The client is safe for concurrent use.
func NewClient(opts Options) (*http.Client, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 16
	}

	dialer, err := configurl.NewDefaultConfigToDialer().NewStreamDialer(opts.Transport)
	if err != nil {
		return nil, fmt.Errorf("could not create dialer: %w", err)
	}

	base := &http.Transport{
		DialContext:         dialContext(dialer),
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Transport: &userAgentTransport{base: base, userAgent: opts.UserAgent},
		Timeout:   opts.Timeout,
	}, nil
}

func dialContext(dialer transport.StreamDialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return dialer.DialStream(ctx, addr)
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	// RoundTrip must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}

// GetRaw sends a GET request and returns the whole response body.
// Non-2xx responses fail with an error wrapping ErrBadStatus.
func GetRaw(ctx context.Context, client Doer, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read of page body failed: %w", err)
	}
	return body, nil
}

// CheckStatus returns an error wrapping ErrBadStatus for non-2xx responses.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}
	return nil
}
