// Package sharebackup splits root key material into threshold shares for
// offline custody and reassembles it from any quorum of them.
//
// Each share travels as a printable four-part string:
//
//	index.hexdata.threshold.checksum
//
// where index is the 1-based share position, hexdata is the hex-encoded
// Shamir share, threshold is the quorum size, and checksum is the first four
// bytes of SHA-256 over the raw share, hex encoded. The checksum guards
// against transcription mistakes on the transport; it carries no
// cryptographic weight, correctness of reassembled key material is proven by
// the authenticated decryptions it is used for.
package sharebackup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/vault/shamir"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// checksumBytes is the SHA-256 prefix length of the transcription checksum.
const checksumBytes = 4

// Split divides a secret into parts shares, any threshold of which
// reconstruct it.
func Split(secret []byte, parts, threshold int) ([]string, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("cannot split an empty secret")
	}
	if threshold < 2 {
		return nil, fmt.Errorf("threshold must be at least 2, got %d", threshold)
	}
	if parts < threshold {
		return nil, fmt.Errorf("parts (%d) must be at least the threshold (%d)", parts, threshold)
	}

	raw, err := shamir.Split(secret, parts, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split secret: %w", err)
	}

	encoded := make([]string, len(raw))
	for i, share := range raw {
		encoded[i] = fmt.Sprintf("%d.%s.%d.%s", i+1, hex.EncodeToString(share), threshold, checksum(share))
		wipeBytes(share)
	}
	return encoded, nil
}

// Combine reassembles a secret from encoded shares. Every share is checksum
// verified before the Shamir combination runs, so a mistyped share is
// reported by index instead of silently producing a wrong secret.
func Combine(encoded []string) ([]byte, error) {
	if len(encoded) < 2 {
		return nil, fmt.Errorf("%w: at least 2 shares are required, got %d", interfaces.ErrInvalidShareEncoding, len(encoded))
	}

	shares := make([][]byte, 0, len(encoded))
	seen := make(map[int]bool, len(encoded))
	threshold := 0

	for _, enc := range encoded {
		share, err := parseShare(enc)
		if err != nil {
			return nil, err
		}

		if seen[share.index] {
			return nil, fmt.Errorf("%w: share %d supplied twice", interfaces.ErrInvalidShareEncoding, share.index)
		}
		seen[share.index] = true

		if threshold == 0 {
			threshold = share.threshold
		} else if share.threshold != threshold {
			return nil, fmt.Errorf("%w: shares disagree on the threshold (%d vs %d)", interfaces.ErrInvalidShareEncoding, threshold, share.threshold)
		}

		shares = append(shares, share.data)
	}

	if len(shares) < threshold {
		return nil, fmt.Errorf("%w: %d shares supplied, threshold is %d", interfaces.ErrInvalidShareEncoding, len(shares), threshold)
	}

	secret, err := shamir.Combine(shares)
	for _, share := range shares {
		wipeBytes(share)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	return secret, nil
}

// ValidateEncoded checks the four-part shape of an encoded share without
// decoding it: numeric index and threshold, hex-alphabet data and checksum.
// Custody treats payloads as opaque, so this is the only validation applied
// before a share is accepted for storage.
func ValidateEncoded(encoded string) error {
	parts := strings.Split(encoded, ".")
	if len(parts) != 4 {
		return fmt.Errorf("%w: expected 4 dot-separated parts, got %d", interfaces.ErrInvalidShareEncoding, len(parts))
	}

	index, err := strconv.Atoi(parts[0])
	if err != nil || index < 1 {
		return fmt.Errorf("%w: share index %q must be a positive integer", interfaces.ErrInvalidShareEncoding, parts[0])
	}

	if !isHexString(parts[1]) {
		return fmt.Errorf("%w: share data must be hex", interfaces.ErrInvalidShareEncoding)
	}

	threshold, err := strconv.Atoi(parts[2])
	if err != nil || threshold < 2 {
		return fmt.Errorf("%w: threshold %q must be an integer of at least 2", interfaces.ErrInvalidShareEncoding, parts[2])
	}

	if !isHexString(parts[3]) {
		return fmt.Errorf("%w: checksum must be hex", interfaces.ErrInvalidShareEncoding)
	}

	return nil
}

type parsedShare struct {
	index     int
	data      []byte
	threshold int
}

// parseShare fully decodes one share and verifies its checksum.
func parseShare(encoded string) (parsedShare, error) {
	if err := ValidateEncoded(encoded); err != nil {
		return parsedShare{}, err
	}

	parts := strings.Split(encoded, ".")
	index, _ := strconv.Atoi(parts[0])
	threshold, _ := strconv.Atoi(parts[2])

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return parsedShare{}, fmt.Errorf("%w: share %d data does not decode: %w", interfaces.ErrInvalidShareEncoding, index, err)
	}

	if checksum(data) != parts[3] {
		return parsedShare{}, fmt.Errorf("%w: share %d failed its checksum, likely mistyped", interfaces.ErrInvalidShareEncoding, index)
	}

	return parsedShare{index: index, data: data, threshold: threshold}, nil
}

// checksum returns the hex transcription checksum of raw share data.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:checksumBytes])
}

func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

// wipeBytes zeroes raw share material after use.
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
