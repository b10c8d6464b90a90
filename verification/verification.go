// Package verification gates custody operations behind pluggable identity
// checks. A Method issues a challenge for an identity and later judges a
// proof against it; the Registry dispatches between registered methods and
// adapts them to the Verifier contract the custody API consumes.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// Challenge is an outstanding verification challenge for one identity.
type Challenge struct {
	Identity  string    `json:"identity"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`

	// Hint is populated only by development methods and carries the expected
	// proof so local clients can complete the flow without an out-of-band
	// channel. Production methods leave it empty.
	Hint string `json:"hint,omitempty"`
}

// Outcome is a successful verification.
type Outcome struct {
	Verified bool   `json:"verified"`
	Identity string `json:"identity"`
	Method   string `json:"method"`
}

// Method is one verification mechanism.
type Method interface {
	// Start issues a fresh challenge for an identity, replacing any
	// outstanding one.
	Start(ctx context.Context, identity string) (*Challenge, error)

	// Complete judges a proof. ErrVerificationFailed on mismatch or when no
	// challenge is outstanding, ErrChallengeExpired when the TTL has passed.
	Complete(ctx context.Context, identity, proof string) (*Outcome, error)

	// Name returns the method tag used for registry dispatch.
	Name() string
}

// Registry holds the registered verification methods.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
	log     *slog.Logger
}

// NewRegistry creates an empty method registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{methods: make(map[string]Method), log: log}
}

// Register adds a method under its name tag.
func (r *Registry) Register(method Method) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := method.Name()
	if _, exists := r.methods[name]; exists {
		return fmt.Errorf("verification method %q already registered", name)
	}

	r.methods[name] = method
	r.log.Info("Registered verification method", slog.String("method", name))
	return nil
}

// Method returns the registered method for a tag.
func (r *Registry) Method(name string) (Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	method, ok := r.methods[name]
	if !ok {
		return nil, fmt.Errorf("unknown verification method %q", name)
	}
	return method, nil
}

// Start dispatches a challenge request to the named method.
func (r *Registry) Start(ctx context.Context, methodName, identity string) (*Challenge, error) {
	method, err := r.Method(methodName)
	if err != nil {
		return nil, err
	}
	return method.Start(ctx, identity)
}

// VerifierFor binds one registered method to the Verifier contract.
func (r *Registry) VerifierFor(name string) (interfaces.Verifier, error) {
	method, err := r.Method(name)
	if err != nil {
		return nil, err
	}
	return methodVerifier{method: method}, nil
}

type methodVerifier struct {
	method Method
}

func (v methodVerifier) Complete(ctx context.Context, identity, proof string) error {
	outcome, err := v.method.Complete(ctx, identity, proof)
	if err != nil {
		return err
	}
	if outcome == nil || !outcome.Verified {
		return interfaces.ErrVerificationFailed
	}
	return nil
}
