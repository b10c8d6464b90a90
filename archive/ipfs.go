package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	cid "github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"
	mh "github.com/multiformats/go-multihash"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// IPFSBackend archives snapshots as raw IPFS blocks. A raw block keyed by
// sha2-256 has a CID that is a pure function of the snapshot ID, so any node
// holding the block can serve a fetch without a separate index.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates an IPFS archive backend connected to the node API at
// host:port.
func NewIPFSBackend(host, port string, log *slog.Logger) (*IPFSBackend, error) {
	apiAddr := fmt.Sprintf("%s:%s", host, port)

	return &IPFSBackend{
		shell:       shell.NewShell(apiAddr),
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/", apiAddr),
	}, nil
}

// Fetch retrieves a snapshot block from IPFS by its derived CID.
// Returns ErrSnapshotNotFound if the block doesn't exist or
// ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.SnapshotID) ([]byte, error) {
	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	blockCID := blockPath(id)

	data, err := b.shell.BlockGet(blockCID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			b.log.Debug("Snapshot not found in IPFS",
				slog.String("snapshot_id", id.String()),
				slog.String("block_cid", blockCID))
			return nil, interfaces.ErrSnapshotNotFound
		}

		b.log.Error("Failed to fetch block from IPFS",
			slog.String("snapshot_id", id.String()),
			slog.String("block_cid", blockCID),
			"err", err)
		return nil, fmt.Errorf("failed to fetch block from IPFS: %w", err)
	}

	b.log.Debug("Fetched snapshot from IPFS",
		slog.String("snapshot_id", id.String()),
		slog.Int("size", len(data)))

	return data, nil
}

// Store adds a snapshot to IPFS as a raw sha2-256 block.
// Returns ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) Store(ctx context.Context, data []byte) (interfaces.SnapshotID, error) {
	id := interfaces.ComputeSnapshotID(data)

	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	blockCID, err := b.shell.BlockPut(data, "raw", "sha2-256", -1)
	if err != nil {
		return id, fmt.Errorf("failed to put block to IPFS: %w", err)
	}

	b.log.Debug("Stored snapshot in IPFS",
		slog.String("block_cid", blockCID),
		slog.String("snapshot_id", id.String()))

	return id, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

// blockPath derives the CID of the raw block holding a snapshot.
func blockPath(id interfaces.SnapshotID) string {
	encoded, err := mh.Encode(id.Bytes(), mh.SHA2_256)
	if err != nil {
		// A 32-byte sha2-256 digest always encodes.
		panic(err)
	}

	return cid.NewCidV1(cid.Raw, encoded).String()
}
