package models

import (
	"fmt"
	"strings"
)

// FileSize is the pixel dimension of a generated download image.
type FileSize int

const (
	Small  FileSize = 350
	Medium FileSize = 750
	Large  FileSize = 1500
	Huge   FileSize = 3000
)

// DefaultDownloadSizes is the size set used when none is configured.
var DefaultDownloadSizes = []FileSize{Small, Medium, Large}

var fileSizeNames = map[string]FileSize{
	"small":  Small,
	"medium": Medium,
	"large":  Large,
	"huge":   Huge,
}

func (f FileSize) String() string {
	for name, size := range fileSizeNames {
		if size == f {
			return name
		}
	}
	return fmt.Sprintf("%dx%d", f, f)
}

// ParseFileSize accepts a size name (small, medium, large, huge).
func ParseFileSize(name string) (FileSize, error) {
	size, ok := fileSizeNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown file size %q", name)
	}
	return size, nil
}

// ParseFileSizes parses every name in order.
func ParseFileSizes(names []string) ([]FileSize, error) {
	sizes := make([]FileSize, 0, len(names))
	for _, name := range names {
		size, err := ParseFileSize(name)
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}
