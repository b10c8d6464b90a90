package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

func mustLocation(t *testing.T, uri string) interfaces.ArchiveLocation {
	t.Helper()
	location, err := interfaces.NewArchiveLocation(uri)
	require.NoError(t, err, "parsing %q must succeed", uri)
	return location
}

func TestFactoryCreatesFileBackend(t *testing.T) {
	dir := t.TempDir()
	factory := NewFactory(discardLogger())

	backend, err := factory.BackendFor(mustLocation(t, "file://"+dir))
	require.NoError(t, err)
	require.IsType(t, &FileBackend{}, backend)

	data := []byte("factory built blob")
	id, err := backend.Store(context.Background(), data)
	require.NoError(t, err)

	fetched, err := backend.Fetch(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, data, fetched, "a factory-built file backend must round-trip blobs")
}

func TestFactoryCreatesS3Backend(t *testing.T) {
	factory := NewFactory(discardLogger())

	backend, err := factory.BackendFor(mustLocation(t, "s3://snapshots/wallet/?region=eu-west-1"))
	require.NoError(t, err)
	require.IsType(t, &S3Backend{}, backend)
	require.Equal(t, "s3-snapshots", backend.Name())
	require.Contains(t, backend.LocationURI(), "region=eu-west-1")
}

func TestFactoryMasksS3Credentials(t *testing.T) {
	factory := NewFactory(discardLogger())

	backend, err := factory.BackendFor(mustLocation(t, "s3://AKID:sekrit@snapshots/?region=us-east-1"))
	require.NoError(t, err)
	require.Contains(t, backend.LocationURI(), "AKID:***", "access key stays visible for tracking")
	require.NotContains(t, backend.LocationURI(), "sekrit", "secret key must never leak into the URI")
}

func TestFactoryCreatesIPFSBackend(t *testing.T) {
	factory := NewFactory(discardLogger())

	backend, err := factory.BackendFor(mustLocation(t, "ipfs://127.0.0.1:5001/"))
	require.NoError(t, err)
	require.IsType(t, &IPFSBackend{}, backend)
	require.Equal(t, "ipfs-127.0.0.1-5001", backend.Name())

	// Port defaults when omitted.
	backend, err = factory.BackendFor(mustLocation(t, "ipfs://ipfs.example.com/"))
	require.NoError(t, err)
	require.Equal(t, "ipfs-ipfs.example.com-5001", backend.Name())
}

func TestFactoryRejectsUnsupportedScheme(t *testing.T) {
	factory := NewFactory(discardLogger())

	// NewArchiveLocation rejects unknown schemes at parse time, so exercise
	// the factory's own guard with a hand-built location.
	_, err := factory.BackendFor(interfaces.ArchiveLocation{Raw: "ftp://host/", Scheme: "ftp"})
	require.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestFactoryRejectsEmptyFilePath(t *testing.T) {
	factory := NewFactory(discardLogger())

	_, err := factory.BackendFor(interfaces.ArchiveLocation{Raw: "file://", Scheme: "file"})
	require.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestFactoryCreateMultiBackend(t *testing.T) {
	factory := NewFactory(discardLogger())

	locations := []interfaces.ArchiveLocation{
		mustLocation(t, "file://"+t.TempDir()),
		mustLocation(t, "file://"+t.TempDir()),
	}

	backend, err := factory.CreateMultiBackend(locations)
	require.NoError(t, err)
	require.Equal(t, "multi-archive", backend.Name())

	data := []byte("fanned out blob")
	id, err := backend.Store(context.Background(), data)
	require.NoError(t, err)

	fetched, err := backend.Fetch(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, data, fetched)
}

func TestFactoryCreateMultiBackendSkipsInvalid(t *testing.T) {
	factory := NewFactory(discardLogger())

	locations := []interfaces.ArchiveLocation{
		{Raw: "file://", Scheme: "file"},
		mustLocation(t, "file://" + t.TempDir()),
	}

	backend, err := factory.CreateMultiBackend(locations)
	require.NoError(t, err, "one valid location is enough for a multi-backend")
	require.NotNil(t, backend)
}

func TestFactoryCreateMultiBackendAllInvalid(t *testing.T) {
	factory := NewFactory(discardLogger())

	_, err := factory.CreateMultiBackend([]interfaces.ArchiveLocation{
		{Raw: "file://", Scheme: "file"},
		{Raw: "ftp://host/", Scheme: "ftp"},
	})
	require.Error(t, err, "a multi-backend with zero members is refused")
}
