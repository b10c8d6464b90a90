package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyquorum/wallet-recovery-backend/common"
	"github.com/keyquorum/wallet-recovery-backend/cryptoutils"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
	"github.com/keyquorum/wallet-recovery-backend/token"
)

type testWallet struct {
	factors        token.Factors
	rootPrimary    interfaces.RootKey
	rootPrivileged interfaces.RootKey
	tok            *token.Token
}

func buildTestWallet(t *testing.T) *testWallet {
	t.Helper()

	presentation, err := cryptoutils.RandomFactor()
	require.NoError(t, err, "presentation factor generation should succeed")
	recovery, err := cryptoutils.RandomFactor()
	require.NoError(t, err, "recovery factor generation should succeed")

	salt, err := cryptoutils.NewSalt()
	require.NoError(t, err, "salt generation should succeed")
	password, err := token.DerivePasswordFactor([]byte("correct horse battery staple"), salt)
	require.NoError(t, err, "password factor derivation should succeed")

	rootPrimary, err := cryptoutils.RandomRootKey()
	require.NoError(t, err, "primary root key generation should succeed")
	rootPrivileged, err := cryptoutils.RandomRootKey()
	require.NoError(t, err, "privileged root key generation should succeed")

	factors := token.Factors{
		Presentation: presentation,
		Password:     password,
		Recovery:     recovery,
	}

	tok, err := token.Build(factors, rootPrimary, rootPrivileged, salt)
	require.NoError(t, err, "token build should succeed")

	return &testWallet{
		factors:        factors,
		rootPrimary:    rootPrimary,
		rootPrivileged: rootPrivileged,
		tok:            tok,
	}
}

// modePairs enumerates every mode with the factors it accepts.
func (w *testWallet) modePairs() map[interfaces.RecoveryMode][2]interfaces.Factor {
	return map[interfaces.RecoveryMode][2]interfaces.Factor{
		interfaces.ModePresentationPassword: {w.factors.Presentation, w.factors.Password},
		interfaces.ModePresentationRecovery: {w.factors.Presentation, w.factors.Recovery},
		interfaces.ModeRecoveryPassword:     {w.factors.Recovery, w.factors.Password},
	}
}

func TestRecoverAllModesAgree(t *testing.T) {
	w := buildTestWallet(t)

	for mode, pair := range w.modePairs() {
		result, err := Recover(mode, pair[0], pair[1], w.tok)
		require.NoError(t, err, "recovery via %s should succeed", mode)
		require.True(t, w.rootPrimary.Equal(result.RootPrimary), "every mode should yield the same primary root key")
		require.True(t, result.PrivilegedDerivable, "privileged key should be derivable via %s", mode)
		require.NotNil(t, result.RootPrivileged)
		require.True(t, w.rootPrivileged.Equal(*result.RootPrivileged), "every mode should yield the same privileged root key")
	}
}

func TestRecoverFactorOrderIrrelevant(t *testing.T) {
	w := buildTestWallet(t)

	for mode, pair := range w.modePairs() {
		swapped, err := Recover(mode, pair[1], pair[0], w.tok)
		require.NoError(t, err, "recovery via %s with swapped factors should succeed", mode)
		require.True(t, w.rootPrimary.Equal(swapped.RootPrimary))
		require.True(t, swapped.PrivilegedDerivable)
		require.True(t, w.rootPrivileged.Equal(*swapped.RootPrivileged))
	}
}

func TestRecoverWrongFactorFails(t *testing.T) {
	w := buildTestWallet(t)

	wrong, err := cryptoutils.RandomFactor()
	require.NoError(t, err)

	for mode, pair := range w.modePairs() {
		result, err := Recover(mode, wrong, pair[1], w.tok)
		require.ErrorIs(t, err, interfaces.ErrAuthenticationFailure, "wrong first factor must fail authentication for %s", mode)
		require.Nil(t, result, "no partial key material may leak on failure")

		result, err = Recover(mode, pair[0], wrong, w.tok)
		require.ErrorIs(t, err, interfaces.ErrAuthenticationFailure, "wrong second factor must fail authentication for %s", mode)
		require.Nil(t, result)
	}
}

func TestRecoverZeroFactorRejected(t *testing.T) {
	w := buildTestWallet(t)

	_, err := Recover(interfaces.ModePresentationPassword, interfaces.Factor{}, w.factors.Password, w.tok)
	require.ErrorIs(t, err, interfaces.ErrAuthenticationFailure)
}

func TestRecoverUnsupportedMode(t *testing.T) {
	w := buildTestWallet(t)

	_, err := Recover(interfaces.RecoveryMode(42), w.factors.Presentation, w.factors.Password, w.tok)
	require.ErrorIs(t, err, interfaces.ErrUnsupportedMode)
}

func TestRecoverNilToken(t *testing.T) {
	w := buildTestWallet(t)

	_, err := Recover(interfaces.ModePresentationPassword, w.factors.Presentation, w.factors.Password, nil)
	require.ErrorIs(t, err, interfaces.ErrCryptoFailure)
}

func TestRecoverPartialPrivilegedResult(t *testing.T) {
	t.Run("missing presentation+recovery ciphertext", func(t *testing.T) {
		w := buildTestWallet(t)
		w.tok.PrivilegedByPresentationRecovery = cryptoutils.SealedSecret{}

		result, err := Recover(interfaces.ModePresentationRecovery, w.factors.Presentation, w.factors.Recovery, w.tok)
		require.NoError(t, err, "a missing privileged ciphertext is a partial result, not a failure")
		require.True(t, w.rootPrimary.Equal(result.RootPrimary))
		require.False(t, result.PrivilegedDerivable)
		require.Nil(t, result.RootPrivileged)
	})

	t.Run("missing password-path ciphertext", func(t *testing.T) {
		w := buildTestWallet(t)
		w.tok.PrivilegedByPassword = cryptoutils.SealedSecret{}

		result, err := Recover(interfaces.ModeRecoveryPassword, w.factors.Recovery, w.factors.Password, w.tok)
		require.NoError(t, err)
		require.True(t, w.rootPrimary.Equal(result.RootPrimary))
		require.False(t, result.PrivilegedDerivable)
		require.Nil(t, result.RootPrivileged)
	})
}

func TestRecoverTamperedPrivilegedCiphertext(t *testing.T) {
	w := buildTestWallet(t)
	w.tok.PrivilegedByPassword.Ciphertext[0] ^= 0x01

	_, err := Recover(interfaces.ModePresentationPassword, w.factors.Presentation, w.factors.Password, w.tok)
	require.ErrorIs(t, err, interfaces.ErrAuthenticationFailure, "a present but undecryptable privileged ciphertext is an inconsistency")
}

type fakeTokenStore struct {
	records map[uint64]*interfaces.TokenRecord
	nextID  uint64
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{records: make(map[uint64]*interfaces.TokenRecord), nextID: 1}
}

func (s *fakeTokenStore) Create(_ context.Context, record *interfaces.TokenRecord) error {
	for _, existing := range s.records {
		if existing.PresentationHash == record.PresentationHash || existing.RecoveryHash == record.RecoveryHash {
			return interfaces.ErrDuplicateToken
		}
	}
	record.ID = s.nextID
	s.nextID++
	s.records[record.ID] = record
	return nil
}

func (s *fakeTokenStore) ByLookupHash(_ context.Context, hash interfaces.LookupHash) (*interfaces.TokenRecord, error) {
	for _, record := range s.records {
		if record.PresentationHash == hash.String() || record.RecoveryHash == hash.String() {
			return record, nil
		}
	}
	return nil, interfaces.ErrTokenNotFound
}

func (s *fakeTokenStore) Update(_ context.Context, record *interfaces.TokenRecord) error {
	if _, ok := s.records[record.ID]; !ok {
		return interfaces.ErrTokenNotFound
	}
	s.records[record.ID] = record
	return nil
}

func (s *fakeTokenStore) Delete(_ context.Context, id uint64) error {
	delete(s.records, id)
	return nil
}

func storeTestWallet(t *testing.T, store interfaces.TokenStore, w *testWallet) {
	t.Helper()

	blob, err := w.tok.MarshalBinary()
	require.NoError(t, err, "token serialization should succeed")

	err = store.Create(context.Background(), &interfaces.TokenRecord{
		PresentationHash: w.tok.PresentationHash.String(),
		RecoveryHash:     w.tok.RecoveryHash.String(),
		Blob:             blob,
	})
	require.NoError(t, err, "token record creation should succeed")
}

func TestEngineRecoverByLookup(t *testing.T) {
	w := buildTestWallet(t)
	store := newFakeTokenStore()
	storeTestWallet(t, store, w)

	engine := NewEngine(store, common.SetupLogger(&common.LoggingOpts{Debug: true}))

	result, tok, err := engine.RecoverByLookup(context.Background(), interfaces.ModePresentationPassword, w.factors.Presentation, w.factors.Password)
	require.NoError(t, err, "lookup by presentation hash should find the token")
	require.True(t, w.rootPrimary.Equal(result.RootPrimary))
	require.True(t, result.PrivilegedDerivable)
	require.NotNil(t, tok, "the decoded token should be returned for profile access")
	require.True(t, w.tok.PresentationHash.Equal(tok.PresentationHash))
}

func TestEngineRecoverByLookupFallsBackToSecondFactor(t *testing.T) {
	w := buildTestWallet(t)
	store := newFakeTokenStore()
	storeTestWallet(t, store, w)

	engine := NewEngine(store, common.SetupLogger(&common.LoggingOpts{}))

	// The password factor is not hash indexed, so the first lookup misses and
	// the recovery factor's hash must resolve the token.
	result, _, err := engine.RecoverByLookup(context.Background(), interfaces.ModeRecoveryPassword, w.factors.Password, w.factors.Recovery)
	require.NoError(t, err, "lookup should fall back to the recovery factor's hash")
	require.True(t, w.rootPrimary.Equal(result.RootPrimary))
}

func TestEngineRecoverByLookupUnknownToken(t *testing.T) {
	store := newFakeTokenStore()
	engine := NewEngine(store, common.SetupLogger(&common.LoggingOpts{}))

	a, err := cryptoutils.RandomFactor()
	require.NoError(t, err)
	b, err := cryptoutils.RandomFactor()
	require.NoError(t, err)

	_, _, err = engine.RecoverByLookup(context.Background(), interfaces.ModePresentationRecovery, a, b)
	require.ErrorIs(t, err, interfaces.ErrTokenNotFound)
}

func TestEngineRecoverByLookupCorruptBlob(t *testing.T) {
	w := buildTestWallet(t)
	store := newFakeTokenStore()

	err := store.Create(context.Background(), &interfaces.TokenRecord{
		PresentationHash: w.tok.PresentationHash.String(),
		RecoveryHash:     w.tok.RecoveryHash.String(),
		Blob:             []byte("not a token"),
	})
	require.NoError(t, err)

	engine := NewEngine(store, common.SetupLogger(&common.LoggingOpts{}))

	_, _, err = engine.RecoverByLookup(context.Background(), interfaces.ModePresentationPassword, w.factors.Presentation, w.factors.Password)
	require.ErrorIs(t, err, interfaces.ErrCryptoFailure, "an undecodable stored blob should surface as a crypto failure")
}
