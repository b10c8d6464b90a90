package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// FileBackend archives snapshots on the local filesystem. Blobs are sharded
// into subdirectories by the first byte of the snapshot ID to keep directory
// listings manageable.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file archive rooted at baseDir, creating the
// directory if it does not exist. Snapshots hold sealed key material, so the
// tree is created owner-only.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch retrieves a snapshot blob by its ID.
// Returns ErrSnapshotNotFound if no blob with that ID is archived here.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.SnapshotID) ([]byte, error) {
	path := b.snapshotPath(id)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		b.log.Debug("Snapshot not found in file archive",
			slog.String("snapshot_id", id.String()),
			slog.String("path", path))
		return nil, interfaces.ErrSnapshotNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		b.log.Error("Failed to read snapshot file",
			slog.String("snapshot_id", id.String()),
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	b.log.Debug("Fetched snapshot from file archive",
		slog.String("snapshot_id", id.String()),
		slog.Int("size", len(data)))

	return data, nil
}

// Store writes a snapshot blob under its content address. Snapshots are
// immutable, so storing bytes that are already archived is a no-op.
func (b *FileBackend) Store(ctx context.Context, data []byte) (interfaces.SnapshotID, error) {
	id := interfaces.ComputeSnapshotID(data)
	path := b.snapshotPath(id)

	if _, err := os.Stat(path); err == nil {
		b.log.Debug("Snapshot already archived", slog.String("snapshot_id", id.String()))
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return id, fmt.Errorf("failed to create shard directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return id, fmt.Errorf("failed to write snapshot file: %w", err)
	}

	b.log.Debug("Stored snapshot in file archive",
		slog.String("snapshot_id", id.String()),
		slog.Int("size", len(data)))

	return id, nil
}

// Available checks if the archive directory is accessible.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	return err == nil
}

// Name returns a unique identifier for this backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) snapshotPath(id interfaces.SnapshotID) string {
	hexID := id.String()
	return filepath.Join(b.baseDir, hexID[:2], hexID)
}
