package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keyquorum/wallet-recovery-backend/common"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

func newTestOTP(t *testing.T, opts *DevOTPOpts) *DevOTPMethod {
	t.Helper()

	method := NewDevOTPMethod(opts, common.SetupLogger(&common.LoggingOpts{Debug: true}))
	t.Cleanup(method.Close)
	return method
}

func TestDevOTPStartComplete(t *testing.T) {
	method := newTestOTP(t, nil)
	ctx := context.Background()

	challenge, err := method.Start(ctx, "alice@example.com")
	require.NoError(t, err, "issuing a challenge should succeed")
	require.Equal(t, MethodDevOTP, challenge.Method)
	require.Len(t, challenge.Hint, 6, "dev method exposes the code as the hint")
	require.True(t, challenge.ExpiresAt.After(time.Now()))

	outcome, err := method.Complete(ctx, "alice@example.com", challenge.Hint)
	require.NoError(t, err)
	require.True(t, outcome.Verified)
	require.Equal(t, "alice@example.com", outcome.Identity)
}

func TestDevOTPCodeIsSingleUse(t *testing.T) {
	method := newTestOTP(t, nil)
	ctx := context.Background()

	challenge, err := method.Start(ctx, "alice@example.com")
	require.NoError(t, err)

	_, err = method.Complete(ctx, "alice@example.com", challenge.Hint)
	require.NoError(t, err)

	_, err = method.Complete(ctx, "alice@example.com", challenge.Hint)
	require.ErrorIs(t, err, interfaces.ErrVerificationFailed, "a consumed code must not verify again")
}

func TestDevOTPWrongProof(t *testing.T) {
	method := newTestOTP(t, &DevOTPOpts{FixedCode: "123456"})
	ctx := context.Background()

	_, err := method.Start(ctx, "bob@example.com")
	require.NoError(t, err)

	_, err = method.Complete(ctx, "bob@example.com", "654321")
	require.ErrorIs(t, err, interfaces.ErrVerificationFailed)

	// A wrong proof does not consume the challenge.
	outcome, err := method.Complete(ctx, "bob@example.com", "123456")
	require.NoError(t, err)
	require.True(t, outcome.Verified)
}

func TestDevOTPNoChallenge(t *testing.T) {
	method := newTestOTP(t, nil)

	_, err := method.Complete(context.Background(), "nobody@example.com", "000000")
	require.ErrorIs(t, err, interfaces.ErrVerificationFailed)
}

func TestDevOTPExpiry(t *testing.T) {
	method := newTestOTP(t, &DevOTPOpts{TTL: time.Minute})

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	method.now = func() time.Time { return clock }

	challenge, err := method.Start(context.Background(), "carol@example.com")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)

	_, err = method.Complete(context.Background(), "carol@example.com", challenge.Hint)
	require.ErrorIs(t, err, interfaces.ErrChallengeExpired)
}

func TestDevOTPSweepPurgesExpired(t *testing.T) {
	method := newTestOTP(t, &DevOTPOpts{TTL: time.Minute})

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	method.now = func() time.Time { return clock }

	_, err := method.Start(context.Background(), "dave@example.com")
	require.NoError(t, err)

	clock = clock.Add(5 * time.Minute)
	method.sweep()

	method.mu.Lock()
	remaining := len(method.challenges)
	method.mu.Unlock()
	require.Zero(t, remaining, "the sweep should drop expired challenges")
}

func TestDevOTPRestartReplacesChallenge(t *testing.T) {
	method := newTestOTP(t, nil)
	ctx := context.Background()

	first, err := method.Start(ctx, "erin@example.com")
	require.NoError(t, err)
	second, err := method.Start(ctx, "erin@example.com")
	require.NoError(t, err)

	if first.Hint != second.Hint {
		_, err = method.Complete(ctx, "erin@example.com", first.Hint)
		require.ErrorIs(t, err, interfaces.ErrVerificationFailed, "a replaced code must not verify")
	}

	outcome, err := method.Complete(ctx, "erin@example.com", second.Hint)
	require.NoError(t, err)
	require.True(t, outcome.Verified)
}

func TestRegistryDispatch(t *testing.T) {
	log := common.SetupLogger(&common.LoggingOpts{})
	registry := NewRegistry(log)

	method := newTestOTP(t, &DevOTPOpts{FixedCode: "424242"})
	require.NoError(t, registry.Register(method))
	require.Error(t, registry.Register(method), "duplicate registration must be rejected")

	challenge, err := registry.Start(context.Background(), MethodDevOTP, "frank@example.com")
	require.NoError(t, err)
	require.Equal(t, "424242", challenge.Hint)

	_, err = registry.Start(context.Background(), "sms", "frank@example.com")
	require.Error(t, err, "unregistered methods must not dispatch")
}

func TestRegistryVerifierFor(t *testing.T) {
	log := common.SetupLogger(&common.LoggingOpts{})
	registry := NewRegistry(log)

	method := newTestOTP(t, &DevOTPOpts{FixedCode: "999000"})
	require.NoError(t, registry.Register(method))

	verifier, err := registry.VerifierFor(MethodDevOTP)
	require.NoError(t, err)

	_, err = registry.Start(context.Background(), MethodDevOTP, "grace@example.com")
	require.NoError(t, err)

	require.NoError(t, verifier.Complete(context.Background(), "grace@example.com", "999000"))
	require.ErrorIs(t, verifier.Complete(context.Background(), "grace@example.com", "999000"), interfaces.ErrVerificationFailed)

	_, err = registry.VerifierFor("unknown")
	require.Error(t, err)
}
