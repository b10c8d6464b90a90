package archive

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// Factory creates archive backends from parsed location URIs and aggregates
// them into multi-backends for redundant deployments.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a new factory instance.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// BackendFor creates an archive backend for a single location.
func (f *Factory) BackendFor(location interfaces.ArchiveLocation) (interfaces.ArchiveBackend, error) {
	switch {
	case location.IsFile():
		return f.createFileBackend(location)
	case location.IsS3():
		return f.createS3Backend(location)
	case location.IsIPFS():
		return f.createIPFSBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend aggregates all valid backends from the given locations,
// providing redundancy for snapshot storage. Locations that fail to produce a
// backend are skipped with a warning. Returns an error if no backend could be
// created at all.
func (f *Factory) CreateMultiBackend(locations []interfaces.ArchiveLocation) (interfaces.ArchiveBackend, error) {
	backends := make([]interfaces.ArchiveBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := f.BackendFor(location)
		if err != nil {
			f.log.Warn("Failed to create archive backend",
				"err", err,
				slog.String("location", location.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid archive backends created")
	}

	return NewMultiBackend(backends, f.log), nil
}

// createFileBackend creates a filesystem backend.
// URI format: file:///var/lib/recoveryd/snapshots/
func (f *Factory) createFileBackend(location interfaces.ArchiveLocation) (interfaces.ArchiveBackend, error) {
	f.log.Debug("Creating file archive backend", slog.String("location", location.String()))

	// Relative URIs like file://./snapshots parse the leading segment as
	// the host.
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %q", interfaces.ErrInvalidLocationURI, location.String())
	}

	return NewFileBackend(path, f.log)
}

// createS3Backend creates an S3 or S3-compatible backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=minio.local:9000
func (f *Factory) createS3Backend(location interfaces.ArchiveLocation) (interfaces.ArchiveBackend, error) {
	f.log.Debug("Creating S3 archive backend", slog.String("bucket", location.Host))

	bucketName := location.Host
	if bucketName == "" {
		return nil, fmt.Errorf("%w: missing bucket name in %q", interfaces.ErrInvalidLocationURI, location.String())
	}

	prefix := strings.TrimPrefix(location.Path, "/")

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := location.GetParam("endpoint")

	var accessKey, secretKey string
	if location.Auth != "" {
		accessKey, secretKey = splitAuth(location.Auth)
		f.log.Debug("Using embedded credentials for S3 write access")
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, f.log)
}

// createIPFSBackend creates an IPFS backend.
// URI format: ipfs://host:port/
func (f *Factory) createIPFSBackend(location interfaces.ArchiveLocation) (interfaces.ArchiveBackend, error) {
	f.log.Debug("Creating IPFS archive backend", slog.String("location", location.String()))

	host, port := splitHostPort(location.Host)
	if host == "" {
		return nil, fmt.Errorf("%w: missing host in IPFS URI %q", interfaces.ErrInvalidLocationURI, location.String())
	}
	if port == "" {
		// Default IPFS API port.
		port = "5001"
	}

	return NewIPFSBackend(host, port, f.log)
}

// splitAuth splits "user:pass" userinfo into its parts.
func splitAuth(auth string) (string, string) {
	user, pass, _ := strings.Cut(auth, ":")
	return user, pass
}

// splitHostPort splits host:port, tolerating a missing port.
func splitHostPort(hostport string) (string, string) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, ""
	}
	return host, port
}
