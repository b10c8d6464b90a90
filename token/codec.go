package token

import (
	"encoding/binary"
	"fmt"

	"github.com/keyquorum/wallet-recovery-backend/cryptoutils"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// codecVersion is the first byte of every encoded token.
const codecVersion = 0x01

// MarshalBinary encodes the token for archival and store persistence.
//
// Layout, all length prefixes big-endian:
//
//	[version (1 byte)]
//	[5 x framed sealed secret]   pair pp, pr, rp, privileged-by-password, privileged-by-pr
//	[32 bytes presentation hash][32 bytes recovery hash]
//	[3 x framed sealed secret]   presentation, password, recovery backups
//	[salt length (2 bytes)][salt]
//	[profile flag (1 byte)][framed sealed secret when flag is 1]
//	[locator length (2 bytes)][locator]
//
// A framed sealed secret is [length (4 bytes)][SealedSecret binary encoding].
func (t *Token) MarshalBinary() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	out := []byte{codecVersion}

	appendFramed := func(secret cryptoutils.SealedSecret) error {
		encoded, err := secret.MarshalBinary()
		if err != nil {
			return err
		}
		out = binary.BigEndian.AppendUint32(out, uint32(len(encoded)))
		out = append(out, encoded...)
		return nil
	}

	for _, secret := range []cryptoutils.SealedSecret{
		t.PairPresentationPassword,
		t.PairPresentationRecovery,
		t.PairRecoveryPassword,
		t.PrivilegedByPassword,
		t.PrivilegedByPresentationRecovery,
	} {
		if err := appendFramed(secret); err != nil {
			return nil, err
		}
	}

	out = append(out, t.PresentationHash.Bytes()...)
	out = append(out, t.RecoveryHash.Bytes()...)

	for _, secret := range []cryptoutils.SealedSecret{
		t.PresentationBackup,
		t.PasswordBackup,
		t.RecoveryBackup,
	} {
		if err := appendFramed(secret); err != nil {
			return nil, err
		}
	}

	if len(t.PasswordSalt) > 0xffff {
		return nil, fmt.Errorf("%w: salt too long to encode", interfaces.ErrCryptoFailure)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(t.PasswordSalt)))
	out = append(out, t.PasswordSalt...)

	if t.Profile != nil {
		out = append(out, 1)
		if err := appendFramed(*t.Profile); err != nil {
			return nil, err
		}
	} else {
		out = append(out, 0)
	}

	if len(t.Locator) > 0xffff {
		return nil, fmt.Errorf("%w: locator too long to encode", interfaces.ErrCryptoFailure)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(t.Locator)))
	out = append(out, t.Locator...)

	return out, nil
}

// UnmarshalBinary decodes the MarshalBinary layout.
func (t *Token) UnmarshalBinary(data []byte) error {
	rest := data

	read := func(n int) ([]byte, error) {
		if len(rest) < n {
			return nil, fmt.Errorf("%w: truncated token encoding", interfaces.ErrCryptoFailure)
		}
		out := rest[:n]
		rest = rest[n:]
		return out, nil
	}

	readFramed := func() (cryptoutils.SealedSecret, error) {
		lenBytes, err := read(4)
		if err != nil {
			return cryptoutils.SealedSecret{}, err
		}
		encoded, err := read(int(binary.BigEndian.Uint32(lenBytes)))
		if err != nil {
			return cryptoutils.SealedSecret{}, err
		}
		var secret cryptoutils.SealedSecret
		if err := secret.UnmarshalBinary(encoded); err != nil {
			return cryptoutils.SealedSecret{}, err
		}
		return secret, nil
	}

	version, err := read(1)
	if err != nil {
		return err
	}
	if version[0] != codecVersion {
		return fmt.Errorf("%w: unsupported token encoding version %d", interfaces.ErrCryptoFailure, version[0])
	}

	var decoded Token
	for _, target := range []*cryptoutils.SealedSecret{
		&decoded.PairPresentationPassword,
		&decoded.PairPresentationRecovery,
		&decoded.PairRecoveryPassword,
		&decoded.PrivilegedByPassword,
		&decoded.PrivilegedByPresentationRecovery,
	} {
		if *target, err = readFramed(); err != nil {
			return err
		}
	}

	hashBytes, err := read(32)
	if err != nil {
		return err
	}
	if decoded.PresentationHash, err = interfaces.NewLookupHashFromBytes(hashBytes); err != nil {
		return err
	}
	hashBytes, err = read(32)
	if err != nil {
		return err
	}
	if decoded.RecoveryHash, err = interfaces.NewLookupHashFromBytes(hashBytes); err != nil {
		return err
	}

	for _, target := range []*cryptoutils.SealedSecret{
		&decoded.PresentationBackup,
		&decoded.PasswordBackup,
		&decoded.RecoveryBackup,
	} {
		if *target, err = readFramed(); err != nil {
			return err
		}
	}

	lenBytes, err := read(2)
	if err != nil {
		return err
	}
	salt, err := read(int(binary.BigEndian.Uint16(lenBytes)))
	if err != nil {
		return err
	}
	decoded.PasswordSalt = append([]byte(nil), salt...)

	flag, err := read(1)
	if err != nil {
		return err
	}
	if flag[0] == 1 {
		profile, err := readFramed()
		if err != nil {
			return err
		}
		decoded.Profile = &profile
	}

	lenBytes, err = read(2)
	if err != nil {
		return err
	}
	locator, err := read(int(binary.BigEndian.Uint16(lenBytes)))
	if err != nil {
		return err
	}
	decoded.Locator = string(locator)

	if len(rest) != 0 {
		return fmt.Errorf("%w: trailing bytes in token encoding", interfaces.ErrCryptoFailure)
	}

	*t = decoded
	return nil
}
