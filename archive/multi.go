package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// MultiBackend aggregates several archive backends. Reads fall through the
// backends in order until one has the snapshot; writes fan out to every
// available backend so losing a single backend does not lose snapshots.
type MultiBackend struct {
	backends []interfaces.ArchiveBackend
	log      *slog.Logger
}

// NewMultiBackend creates a multi-archive backend with fallback.
func NewMultiBackend(backends []interfaces.ArchiveBackend, log *slog.Logger) *MultiBackend {
	if log == nil {
		log = slog.Default()
	}

	return &MultiBackend{
		backends: backends,
		log:      log,
	}
}

// Fetch returns the snapshot from the first backend that has it. Unavailable
// backends are skipped. Returns ErrSnapshotNotFound when every reachable
// backend misses and ErrBackendUnavailable when none is reachable.
func (m *MultiBackend) Fetch(ctx context.Context, id interfaces.SnapshotID) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Archive backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("snapshot_id", id.String()))
			continue
		}

		data, err := backend.Fetch(ctx, id)
		if err == nil {
			m.log.Debug("Fetched snapshot",
				slog.String("backend_name", backend.Name()),
				slog.String("snapshot_id", id.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from archive backend",
			slog.String("backend_name", backend.Name()),
			slog.String("snapshot_id", id.String()),
			"err", err)
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no archive backend reachable", interfaces.ErrBackendUnavailable)
	}

	onlyMisses := true
	for _, err := range errs {
		if !errors.Is(err, interfaces.ErrSnapshotNotFound) {
			onlyMisses = false
			break
		}
	}
	if onlyMisses {
		return nil, fmt.Errorf("%w: checked %d backends", interfaces.ErrSnapshotNotFound, len(errs))
	}

	m.log.Error("All archive backends failed to fetch snapshot",
		slog.String("snapshot_id", id.String()),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all archive backends failed to fetch %s: %v", id.String(), errs)
}

// Store writes the snapshot to every available backend. The write succeeds if
// at least one backend accepts it.
func (m *MultiBackend) Store(ctx context.Context, data []byte) (interfaces.SnapshotID, error) {
	start := time.Now()
	var result interfaces.SnapshotID
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Archive backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		id, err := backend.Store(ctx, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to archive backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}

		if !success {
			result = id
			success = true
			m.log.Debug("Stored snapshot",
				slog.String("backend_name", backend.Name()),
				slog.String("snapshot_id", id.String()),
				slog.Duration("duration", time.Since(start)))
		} else if !result.Equal(id) {
			// Same bytes must hash to the same address on every backend.
			m.log.Warn("Inconsistent snapshot IDs from archive backends",
				slog.String("backend_name", backend.Name()),
				slog.String("expected_id", result.String()),
				slog.String("actual_id", id.String()))
		}
	}

	if !success {
		m.log.Error("All archive backends failed to store snapshot",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return result, fmt.Errorf("all archive backends failed to store snapshot: %v", errs)
	}

	return result, nil
}

// Available checks if any backend is available.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiBackend) Name() string {
	return "multi-archive"
}

// LocationURI returns the combined URI of all aggregated backends.
func (m *MultiBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
