// Package target builds the URLs and payloads used to probe and load a measurement server.
package target

import (
	"fmt"
	"net/url"

	"speedtester/pkg/models"
)

const (
	// LatencyFile is the tiny fixed resource fetched to time a round trip.
	LatencyFile = "latency.txt"

	downloadFileFormat = "random%dx%d.jpg?r=%d"
)

// BuildTestURL replaces the last path segment of the server's upload URL
// (upload.php and friends) with fileName. fileName may carry a query string,
// which replaces the query of the upload URL.
func BuildTestURL(server models.Server, fileName string) (*url.URL, error) {
	base, err := url.Parse(server.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server URL %q: %w", server.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server URL %q is not absolute", server.URL)
	}
	if base.Path == "" {
		base.Path = "/"
	}

	u, err := base.Parse(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q against %q: %w", fileName, server.URL, err)
	}
	return u, nil
}

// DownloadURLs returns retryCount image URLs per size, grouped by size in the
// given order. The r parameter counts 0..retryCount-1 within each size.
func DownloadURLs(server models.Server, retryCount int, sizes []models.FileSize) ([]*url.URL, error) {
	urls := make([]*url.URL, 0, len(sizes)*max(retryCount, 0))
	for _, size := range sizes {
		for i := 0; i < retryCount; i++ {
			u, err := BuildTestURL(server, fmt.Sprintf(downloadFileFormat, size, size, i))
			if err != nil {
				return nil, err
			}
			urls = append(urls, u)
		}
	}
	return urls, nil
}
