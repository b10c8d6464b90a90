package custody

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyquorum/wallet-recovery-backend/common"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

const testCustodyKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fakeShareStore struct {
	records map[uint64]*interfaces.ShareRecord
}

func newFakeShareStore() *fakeShareStore {
	return &fakeShareStore{records: make(map[uint64]*interfaces.ShareRecord)}
}

func (s *fakeShareStore) Create(_ context.Context, record *interfaces.ShareRecord) error {
	if _, ok := s.records[record.UserID]; ok {
		return interfaces.ErrDuplicateShare
	}
	clone := *record
	s.records[record.UserID] = &clone
	return nil
}

func (s *fakeShareStore) ByUserID(_ context.Context, userID uint64) (*interfaces.ShareRecord, error) {
	record, ok := s.records[userID]
	if !ok {
		return nil, interfaces.ErrShareNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *fakeShareStore) Update(_ context.Context, record *interfaces.ShareRecord) error {
	if _, ok := s.records[record.UserID]; !ok {
		return interfaces.ErrShareNotFound
	}
	clone := *record
	s.records[record.UserID] = &clone
	return nil
}

func (s *fakeShareStore) DeleteByUserID(_ context.Context, userID uint64) error {
	delete(s.records, userID)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeShareStore) {
	t.Helper()

	store := newFakeShareStore()
	engine, err := NewEngine(store, testCustodyKey, common.SetupLogger(&common.LoggingOpts{Debug: true}))
	require.NoError(t, err, "engine construction with a valid key should succeed")
	return engine, store
}

func TestNewEngineKeyValidation(t *testing.T) {
	store := newFakeShareStore()
	log := common.SetupLogger(&common.LoggingOpts{})

	cases := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"missing key", "", interfaces.ErrMissingEncryptionKey},
		{"not hex", strings.Repeat("zz", 32), interfaces.ErrInvalidKeyLength},
		{"too short", strings.Repeat("ab", 31), interfaces.ErrInvalidKeyLength},
		{"too long", strings.Repeat("ab", 33), interfaces.ErrInvalidKeyLength},
		{"odd length", strings.Repeat("a", 63), interfaces.ErrInvalidKeyLength},
		{"valid", testCustodyKey, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewEngine(store, tc.key, log)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Nil(t, engine)
			} else {
				require.NoError(t, err)
				require.NotNil(t, engine)
			}
		})
	}
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	record, err := engine.StoreShare(ctx, 7, "1.abc.2.def")
	require.NoError(t, err, "storing a share should succeed")
	require.Equal(t, 1, record.Version, "first version should be 1")
	require.Len(t, record.Nonce, 24, "nonce column holds 12 bytes hex encoded")
	require.Len(t, record.Tag, 32, "tag column holds 16 bytes hex encoded")
	require.NotContains(t, string(record.Ciphertext), "1.abc", "plaintext must not appear in the ciphertext")

	share, found, err := engine.RetrieveShare(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1.abc.2.def", share, "retrieved share should match the stored payload exactly")
}

func TestStoreShareDuplicate(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.StoreShare(ctx, 3, "first")
	require.NoError(t, err)

	_, err = engine.StoreShare(ctx, 3, "second")
	require.ErrorIs(t, err, interfaces.ErrDuplicateShare, "a second store for the same user must be rejected")

	share, found, err := engine.RetrieveShare(ctx, 3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "first", share, "the original share must remain untouched")
}

func TestRetrieveMissingShareIsSentinel(t *testing.T) {
	engine, _ := newTestEngine(t)

	share, found, err := engine.RetrieveShare(context.Background(), 99)
	require.NoError(t, err, "a missing share is not an error")
	require.False(t, found)
	require.Empty(t, share)
}

func TestUpdateShareVersioning(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.StoreShare(ctx, 11, "original payload")
	require.NoError(t, err)

	second, err := engine.UpdateShare(ctx, 11, "rotated payload")
	require.NoError(t, err)
	require.Equal(t, first.Version+1, second.Version, "version must increment by exactly one")
	require.NotEqual(t, first.Nonce, second.Nonce, "updates must use a fresh nonce")
	require.NotEqual(t, first.Ciphertext, second.Ciphertext)

	third, err := engine.UpdateShare(ctx, 11, "rotated again")
	require.NoError(t, err)
	require.Equal(t, 3, third.Version)

	share, found, err := engine.RetrieveShare(ctx, 11)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "rotated again", share)

	stored, err := store.ByUserID(ctx, 11)
	require.NoError(t, err)
	require.Equal(t, 3, stored.Version, "only the latest record is persisted")
}

func TestUpdateShareWithoutExisting(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.UpdateShare(context.Background(), 42, "payload")
	require.ErrorIs(t, err, interfaces.ErrNoExistingShare)
}

func TestDeleteShareIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.StoreShare(ctx, 5, "payload")
	require.NoError(t, err)

	require.NoError(t, engine.DeleteShare(ctx, 5))
	require.NoError(t, engine.DeleteShare(ctx, 5), "deleting an absent share is a no-op")

	_, found, err := engine.RetrieveShare(ctx, 5)
	require.NoError(t, err)
	require.False(t, found, "retrieve after delete reports not found")
}

func TestRetrieveCorruptedRecordFails(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.StoreShare(ctx, 8, "payload")
	require.NoError(t, err)

	store.records[8].Ciphertext[0] ^= 0x01

	_, _, err = engine.RetrieveShare(ctx, 8)
	require.ErrorIs(t, err, interfaces.ErrAuthenticationFailure, "tampered at-rest data must not decrypt")
}

func TestRetrieveMalformedColumnsFail(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.StoreShare(ctx, 9, "payload")
	require.NoError(t, err)

	store.records[9].Nonce = "not hex at all!"

	_, _, err = engine.RetrieveShare(ctx, 9)
	require.ErrorIs(t, err, interfaces.ErrCryptoFailure)
}

func TestStoredNonceAndTagAreHex(t *testing.T) {
	engine, store := newTestEngine(t)

	_, err := engine.StoreShare(context.Background(), 12, "payload")
	require.NoError(t, err)

	record := store.records[12]
	_, err = hex.DecodeString(record.Nonce)
	require.NoError(t, err, "nonce column must be hex")
	_, err = hex.DecodeString(record.Tag)
	require.NoError(t, err, "tag column must be hex")
}
