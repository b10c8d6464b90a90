package cryptoutils

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// SealedSecret is one authenticated-encryption result with its nonce and tag
// kept alongside the ciphertext. Token fields and share records are stored in
// this split form rather than as a single concatenated blob.
type SealedSecret struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Tag        []byte `json:"tag"`
}

// Seal encrypts plaintext under key with a fresh random nonce.
func Seal(plaintext, key []byte) (SealedSecret, error) {
	ciphertext, nonce, tag, err := Encrypt(plaintext, key)
	if err != nil {
		return SealedSecret{}, err
	}
	return SealedSecret{Ciphertext: ciphertext, Nonce: nonce, Tag: tag}, nil
}

// Open decrypts the sealed secret under key. ErrAuthenticationFailure when
// the key is wrong or any component was tampered with.
func (s SealedSecret) Open(key []byte) ([]byte, error) {
	return Decrypt(s.Ciphertext, s.Nonce, s.Tag, key)
}

// IsZero reports whether the secret holds no ciphertext.
func (s SealedSecret) IsZero() bool {
	return len(s.Ciphertext) == 0 && len(s.Nonce) == 0 && len(s.Tag) == 0
}

// Equal compares two sealed secrets byte for byte. Used by rotation logic to
// assert untouched fields stay identical, never as a correctness check.
func (s SealedSecret) Equal(other SealedSecret) bool {
	return bytes.Equal(s.Ciphertext, other.Ciphertext) &&
		bytes.Equal(s.Nonce, other.Nonce) &&
		bytes.Equal(s.Tag, other.Tag)
}

// MarshalBinary encodes the secret as length-prefixed fields:
// [2-byte nonce len][nonce][2-byte tag len][tag][4-byte ciphertext len][ciphertext].
func (s SealedSecret) MarshalBinary() ([]byte, error) {
	if len(s.Nonce) > 0xffff || len(s.Tag) > 0xffff {
		return nil, fmt.Errorf("%w: nonce or tag too long to encode", interfaces.ErrCryptoFailure)
	}

	out := make([]byte, 0, 2+len(s.Nonce)+2+len(s.Tag)+4+len(s.Ciphertext))
	out = binary.BigEndian.AppendUint16(out, uint16(len(s.Nonce)))
	out = append(out, s.Nonce...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(s.Tag)))
	out = append(out, s.Tag...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(s.Ciphertext)))
	out = append(out, s.Ciphertext...)
	return out, nil
}

// UnmarshalBinary decodes the MarshalBinary layout.
func (s *SealedSecret) UnmarshalBinary(data []byte) error {
	rest := data

	read := func(n int) ([]byte, error) {
		if len(rest) < n {
			return nil, fmt.Errorf("%w: truncated sealed secret encoding", interfaces.ErrCryptoFailure)
		}
		out := rest[:n]
		rest = rest[n:]
		return out, nil
	}

	lenBytes, err := read(2)
	if err != nil {
		return err
	}
	nonce, err := read(int(binary.BigEndian.Uint16(lenBytes)))
	if err != nil {
		return err
	}

	lenBytes, err = read(2)
	if err != nil {
		return err
	}
	tag, err := read(int(binary.BigEndian.Uint16(lenBytes)))
	if err != nil {
		return err
	}

	lenBytes, err = read(4)
	if err != nil {
		return err
	}
	ciphertext, err := read(int(binary.BigEndian.Uint32(lenBytes)))
	if err != nil {
		return err
	}

	if len(rest) != 0 {
		return fmt.Errorf("%w: trailing bytes in sealed secret encoding", interfaces.ErrCryptoFailure)
	}

	s.Nonce = append([]byte(nil), nonce...)
	s.Tag = append([]byte(nil), tag...)
	s.Ciphertext = append([]byte(nil), ciphertext...)
	return nil
}
