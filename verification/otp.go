package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// MethodDevOTP is the registry tag of the development OTP method.
const MethodDevOTP = "dev-otp"

const (
	defaultOTPTTL        = 5 * time.Minute
	defaultOTPLength     = 6
	defaultSweepInterval = time.Minute
)

// DevOTPOpts configures the development OTP method. Zero values select the
// defaults.
type DevOTPOpts struct {
	// TTL is how long an issued code stays valid.
	TTL time.Duration

	// CodeLength is the number of decimal digits per code.
	CodeLength int

	// FixedCode, when set, is issued for every challenge instead of a random
	// code. Local integration setups use this to script flows.
	FixedCode string

	// SweepInterval is how often expired challenges are purged.
	SweepInterval time.Duration
}

func (o *DevOTPOpts) withDefaults() DevOTPOpts {
	out := DevOTPOpts{}
	if o != nil {
		out = *o
	}
	if out.TTL <= 0 {
		out.TTL = defaultOTPTTL
	}
	if out.CodeLength <= 0 {
		out.CodeLength = defaultOTPLength
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = defaultSweepInterval
	}
	return out
}

type otpChallenge struct {
	code      string
	expiresAt time.Time
}

// DevOTPMethod keeps outstanding codes in process memory, which restricts it
// to single-instance development deployments. Production verification needs a
// durable challenge store so replicas can complete challenges they did not
// issue.
type DevOTPMethod struct {
	opts DevOTPOpts
	log  *slog.Logger

	mu         sync.Mutex
	challenges map[string]otpChallenge

	done      chan struct{}
	closeOnce sync.Once

	// now is injectable for tests.
	now func() time.Time
}

// NewDevOTPMethod creates the method and starts its expiry sweep goroutine.
// Callers must Close it to stop the sweeper.
func NewDevOTPMethod(opts *DevOTPOpts, log *slog.Logger) *DevOTPMethod {
	m := &DevOTPMethod{
		opts:       opts.withDefaults(),
		log:        log,
		challenges: make(map[string]otpChallenge),
		done:       make(chan struct{}),
		now:        time.Now,
	}

	go m.sweepLoop()
	return m
}

// Name returns the registry tag.
func (m *DevOTPMethod) Name() string {
	return MethodDevOTP
}

// Start issues a fresh code for the identity, replacing any outstanding one.
// The code is returned in the challenge hint and logged; a real delivery
// channel is exactly what this method does not have.
func (m *DevOTPMethod) Start(_ context.Context, identity string) (*Challenge, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", interfaces.ErrVerificationFailed)
	}

	code := m.opts.FixedCode
	if code == "" {
		generated, err := randomDigits(m.opts.CodeLength)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	expiresAt := m.now().Add(m.opts.TTL)

	m.mu.Lock()
	m.challenges[identity] = otpChallenge{code: code, expiresAt: expiresAt}
	m.mu.Unlock()

	m.log.Info("Issued dev OTP",
		slog.String("identity", identity),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt))

	return &Challenge{
		Identity:  identity,
		Method:    MethodDevOTP,
		ExpiresAt: expiresAt,
		Hint:      code,
	}, nil
}

// Complete consumes the outstanding code on success. A wrong proof leaves the
// challenge in place until its TTL; issuing a new challenge replaces it.
func (m *DevOTPMethod) Complete(_ context.Context, identity, proof string) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	challenge, ok := m.challenges[identity]
	if !ok {
		return nil, fmt.Errorf("%w: no outstanding challenge", interfaces.ErrVerificationFailed)
	}

	if m.now().After(challenge.expiresAt) {
		delete(m.challenges, identity)
		return nil, interfaces.ErrChallengeExpired
	}

	if subtle.ConstantTimeCompare([]byte(challenge.code), []byte(proof)) != 1 {
		return nil, interfaces.ErrVerificationFailed
	}

	delete(m.challenges, identity)
	return &Outcome{Verified: true, Identity: identity, Method: MethodDevOTP}, nil
}

// Close stops the expiry sweeper. Safe to call more than once.
func (m *DevOTPMethod) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *DevOTPMethod) sweepLoop() {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *DevOTPMethod) sweep() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for identity, challenge := range m.challenges {
		if now.After(challenge.expiresAt) {
			delete(m.challenges, identity)
		}
	}
}

// randomDigits draws n decimal digits from crypto/rand.
func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("%w: otp generation: %w", interfaces.ErrCryptoFailure, err)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}
