// Package export renders discussion threads to standalone HTML and archives
// them to S3-compatible object storage.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ArchiveConfig configures the object storage target.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// ArchivedObject is one object written by Archive.
type ArchivedObject struct {
	Key  string
	Size int64
}

var (
	// ErrUnsupportedFormat is returned for formats other than html and json.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrArchiveNotConfigured is returned when no archive endpoint is set.
	ErrArchiveNotConfigured = errors.New("archive storage not configured")
)

func timestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
