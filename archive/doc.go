// Package archive provides content-addressed storage for serialized recovery
// token snapshots, with pluggable backends.
//
// Snapshots are immutable blobs addressed by the SHA-256 hash of their
// contents. Rotating a token archives a fresh snapshot under a new ID; old
// snapshots stay retrievable until pruned out of band.
//
// # Location URI Format
//
// Backends are specified by URI:
//
//   - file:///var/lib/recoveryd/snapshots/
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=minio.local:9000
//   - ipfs://ipfs.example.com:5001/
//
// # Redundancy
//
// A multi-backend aggregates several locations: writes fan out to every
// available backend, reads fall through in order until one of them has the
// snapshot. Because addressing is pure content hashing, the same blob stored
// through different backends always resolves to the same snapshot ID.
//
//	factory := archive.NewFactory(logger)
//	backend, err := factory.CreateMultiBackend(locations)
//	if err != nil {
//	    return err
//	}
//	id, err := backend.Store(ctx, snapshot)
package archive
