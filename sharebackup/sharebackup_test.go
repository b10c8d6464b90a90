package sharebackup

import (
	"crypto/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

func randomSecret(t *testing.T) []byte {
	t.Helper()

	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	return secret
}

func TestSplitCombineRoundTrip(t *testing.T) {
	secret := randomSecret(t)

	shares, err := Split(secret, 5, 3)
	require.NoError(t, err, "splitting should succeed")
	require.Len(t, shares, 5)

	subsets := [][]string{
		{shares[0], shares[1], shares[2]},
		{shares[4], shares[2], shares[0]},
		{shares[3], shares[1], shares[4], shares[0]},
		shares,
	}
	for _, subset := range subsets {
		combined, err := Combine(subset)
		require.NoError(t, err, "any quorum of shares should reconstruct the secret")
		require.Equal(t, secret, combined)
	}
}

func TestSplitEncodedShape(t *testing.T) {
	shares, err := Split(randomSecret(t), 4, 2)
	require.NoError(t, err)

	for i, share := range shares {
		require.NoError(t, ValidateEncoded(share), "emitted shares must pass shape validation")

		parts := strings.Split(share, ".")
		require.Len(t, parts, 4)
		require.Equal(t, strconv.Itoa(i+1), parts[0], "index field is the 1-based share position")
		require.Equal(t, "2", parts[2], "threshold field carries the quorum size")
		require.Len(t, parts[3], 8, "checksum is four bytes hex encoded")
	}
}

func TestSplitInputValidation(t *testing.T) {
	secret := randomSecret(t)

	_, err := Split(nil, 3, 2)
	require.Error(t, err, "empty secrets cannot be split")

	_, err = Split(secret, 3, 1)
	require.Error(t, err, "threshold below 2 defeats the scheme")

	_, err = Split(secret, 2, 3)
	require.Error(t, err, "fewer parts than threshold can never reconstruct")
}

func TestCombineBelowThreshold(t *testing.T) {
	shares, err := Split(randomSecret(t), 5, 3)
	require.NoError(t, err)

	_, err = Combine(shares[:2])
	require.ErrorIs(t, err, interfaces.ErrInvalidShareEncoding, "two shares of a 3-threshold split must be refused")
}

func TestCombineMistypedShare(t *testing.T) {
	secret := randomSecret(t)
	shares, err := Split(secret, 3, 2)
	require.NoError(t, err)

	parts := strings.Split(shares[0], ".")
	data := []byte(parts[1])
	if data[0] == 'a' {
		data[0] = 'b'
	} else {
		data[0] = 'a'
	}
	parts[1] = string(data)
	corrupted := strings.Join(parts, ".")

	_, err = Combine([]string{corrupted, shares[1]})
	require.ErrorIs(t, err, interfaces.ErrInvalidShareEncoding, "a flipped data character must fail the checksum")
}

func TestCombineDuplicateShare(t *testing.T) {
	shares, err := Split(randomSecret(t), 3, 2)
	require.NoError(t, err)

	_, err = Combine([]string{shares[0], shares[0]})
	require.ErrorIs(t, err, interfaces.ErrInvalidShareEncoding)
}

func TestCombineMixedThresholds(t *testing.T) {
	first, err := Split(randomSecret(t), 3, 2)
	require.NoError(t, err)
	second, err := Split(randomSecret(t), 4, 3)
	require.NoError(t, err)

	_, err = Combine([]string{first[0], second[0]})
	require.ErrorIs(t, err, interfaces.ErrInvalidShareEncoding, "shares from different splits disagree on the threshold")
}

func TestValidateEncoded(t *testing.T) {
	cases := []struct {
		name    string
		encoded string
		valid   bool
	}{
		{"canonical example", "1.abc.2.def", true},
		{"long data", "12.00ff00ff.3.cafe", true},
		{"empty", "", false},
		{"not delimited", "abc", false},
		{"three parts", "1.abc.2", false},
		{"five parts", "1.abc.2.def.9", false},
		{"empty data", "1..2.def", false},
		{"index not numeric", "x.abc.2.def", false},
		{"index zero", "0.abc.2.def", false},
		{"threshold not numeric", "1.abc.y.def", false},
		{"threshold below two", "1.abc.1.def", false},
		{"data not hex", "1.xyz.2.def", false},
		{"checksum not hex", "1.abc.2.ghi", false},
		{"uppercase hex rejected", "1.ABC.2.def", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEncoded(tc.encoded)
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, interfaces.ErrInvalidShareEncoding)
			}
		})
	}
}
