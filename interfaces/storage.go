package interfaces

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// UserRecord is the custody-side account row. One user holds at most one
// share; deleting the user cascades to the share and access log rows.
type UserRecord struct {
	ID        uint64    `json:"id"`
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShareRecord is the persisted encrypted share. Nonce and Tag are hex encoded
// per the storage layout: 24 hex characters (12 bytes) and 32 hex characters
// (16 bytes) respectively. Version starts at 1 and increments by exactly 1 on
// each rotation.
type ShareRecord struct {
	UserID     uint64    `json:"user_id"`
	Ciphertext []byte    `json:"ciphertext"`
	Nonce      string    `json:"nonce"`
	Tag        string    `json:"tag"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AccessLogEntry is one append-only audit row. Entries are never mutated and
// never deleted except by cascading user deletion; the rate limiter derives
// lockout state purely from these rows.
type AccessLogEntry struct {
	ID       uint64       `json:"id"`
	Identity string       `json:"identity"`
	Origin   string       `json:"origin"`
	Action   AccessAction `json:"action"`
	Success  bool         `json:"success"`
	// Reason is nil on success and carries a short failure cause otherwise.
	Reason    *string   `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenRecord is the persisted threshold token: the serialized token blob
// indexed by both lookup hashes, plus the opaque locator of its archived
// snapshot. The blob is the token package's binary encoding; stores never
// interpret it.
type TokenRecord struct {
	ID               uint64    `json:"id"`
	PresentationHash string    `json:"presentation_hash"`
	RecoveryHash     string    `json:"recovery_hash"`
	Blob             []byte    `json:"blob"`
	Locator          string    `json:"locator"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UserStore persists custody user records.
type UserStore interface {
	// Create inserts a user; ErrDuplicateShare-class uniqueness is enforced
	// on identity by the database.
	Create(ctx context.Context, user *UserRecord) error

	// ByIdentity returns the user for an identity, or ErrUserNotFound.
	ByIdentity(ctx context.Context, identity string) (*UserRecord, error)

	// Delete removes a user and cascades to its share and access log rows.
	// Idempotent.
	Delete(ctx context.Context, id uint64) error
}

// ShareStore persists encrypted share records. The user_id unique constraint
// is the source of truth for the single-share invariant: a second concurrent
// Create for the same user must fail with ErrDuplicateShare.
type ShareStore interface {
	// Create inserts a share record; ErrDuplicateShare if one exists.
	Create(ctx context.Context, record *ShareRecord) error

	// ByUserID returns the share for a user, or ErrShareNotFound.
	ByUserID(ctx context.Context, userID uint64) (*ShareRecord, error)

	// Update overwrites the existing record (ciphertext, nonce, tag, version).
	// ErrShareNotFound if none exists.
	Update(ctx context.Context, record *ShareRecord) error

	// DeleteByUserID removes the user's share. Idempotent.
	DeleteByUserID(ctx context.Context, userID uint64) error
}

// AccessLogStore persists audit entries and answers the failure-window
// queries the rate limiter needs.
type AccessLogStore interface {
	// Append inserts one entry. Entries are immutable once appended.
	Append(ctx context.Context, entry *AccessLogEntry) error

	// FailuresByIdentity returns timestamps of failed entries for an identity
	// and action since the given time, oldest first.
	FailuresByIdentity(ctx context.Context, identity string, action AccessAction, since time.Time) ([]time.Time, error)

	// FailuresByOrigin returns timestamps of failed entries for an origin
	// address and action since the given time, oldest first.
	FailuresByOrigin(ctx context.Context, origin string, action AccessAction, since time.Time) ([]time.Time, error)

	// RecentByIdentity returns the newest entries for an identity, newest
	// first, capped at limit. Serves audit inspection.
	RecentByIdentity(ctx context.Context, identity string, limit int) ([]*AccessLogEntry, error)
}

// TokenStore persists threshold tokens indexed by lookup hash.
type TokenStore interface {
	// Create inserts a token record; ErrDuplicateToken if either lookup hash
	// is already registered.
	Create(ctx context.Context, record *TokenRecord) error

	// ByLookupHash returns the token matching either the presentation or the
	// recovery lookup hash, or ErrTokenNotFound.
	ByLookupHash(ctx context.Context, hash LookupHash) (*TokenRecord, error)

	// Update overwrites the blob, hashes, and locator of an existing record.
	// Token rotation persists through here and must be atomic relative to
	// concurrent reads.
	Update(ctx context.Context, record *TokenRecord) error

	// Delete removes a token record. Idempotent.
	Delete(ctx context.Context, id uint64) error
}

// SnapshotID is a 32-byte SHA-256 hash uniquely identifying an archived token
// snapshot. Archives are content addressed: the ID is recomputable from the
// blob and doubles as the token's opaque persistence locator.
type SnapshotID [32]byte

// NewSnapshotIDFromBytes creates a snapshot ID from raw bytes.
func NewSnapshotIDFromBytes(source []byte) (SnapshotID, error) {
	if len(source) != 32 {
		return SnapshotID{}, errors.New("invalid SnapshotID conversion from bytes: incorrect length")
	}

	var id SnapshotID
	copy(id[:], source)
	return id, nil
}

// NewSnapshotIDFromHex creates a snapshot ID from a 64-character hex string.
func NewSnapshotIDFromHex(source string) (SnapshotID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return SnapshotID{}, errors.New("invalid snapshot ID length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return SnapshotID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var id SnapshotID
	copy(id[:], raw)
	return id, nil
}

// ComputeSnapshotID calculates the content address of a snapshot blob.
func ComputeSnapshotID(data []byte) SnapshotID {
	return SnapshotID(sha256.Sum256(data))
}

// String returns the hex representation.
func (id SnapshotID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte hash.
func (id SnapshotID) Bytes() []byte {
	return id[:]
}

// Equal compares two snapshot IDs.
func (id SnapshotID) Equal(other SnapshotID) bool {
	return bytes.Equal(id[:], other[:])
}

// ArchiveLocation is the parsed URI of an archive backend.
type ArchiveLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewArchiveLocation parses and validates an archive backend URI.
// Supported schemes: file://, s3://, ipfs://.
func NewArchiveLocation(uri string) (ArchiveLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ArchiveLocation{}, fmt.Errorf("%w: %w", ErrInvalidLocationURI, err)
	}

	scheme := parsed.Scheme
	switch scheme {
	case "file", "s3", "ipfs":
		// Valid scheme
	default:
		return ArchiveLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return ArchiveLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc ArchiveLocation) String() string {
	return loc.Raw
}

// IsFile checks if this is a file system archive location.
func (loc ArchiveLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// IsS3 checks if this is an S3 archive location.
func (loc ArchiveLocation) IsS3() bool {
	return loc.Scheme == "s3"
}

// IsIPFS checks if this is an IPFS archive location.
func (loc ArchiveLocation) IsIPFS() bool {
	return loc.Scheme == "ipfs"
}

// GetParam returns a query parameter value.
func (loc ArchiveLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc ArchiveLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// ArchiveBackend provides content-addressed storage for serialized token
// snapshots. Snapshots are write-once; rotation archives a new snapshot under
// a new ID rather than overwriting.
type ArchiveBackend interface {
	// Fetch retrieves a snapshot blob by ID.
	Fetch(ctx context.Context, id SnapshotID) ([]byte, error)

	// Store saves a snapshot blob and returns its content address.
	Store(ctx context.Context, data []byte) (SnapshotID, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// ArchiveFactory creates archive backends from location URIs.
type ArchiveFactory interface {
	// BackendFor creates a backend from a parsed URI.
	BackendFor(location ArchiveLocation) (ArchiveBackend, error)

	// CreateMultiBackend aggregates several backends behind one interface:
	// reads fall through in order, writes fan out.
	CreateMultiBackend(locations []ArchiveLocation) (ArchiveBackend, error)
}

// Verifier is the consumer-side contract of the identity verification
// subsystem: the custody API completes a challenge and, on success, learns
// the verified identity it gates operations on.
type Verifier interface {
	// Complete checks a proof against the outstanding challenge for the
	// identity. ErrVerificationFailed on mismatch, ErrChallengeExpired when
	// the challenge TTL has passed.
	Complete(ctx context.Context, identity, proof string) error
}
