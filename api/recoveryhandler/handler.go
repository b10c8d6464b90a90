package recoveryhandler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyquorum/wallet-recovery-backend/api"
	"github.com/keyquorum/wallet-recovery-backend/cryptoutils"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
	"github.com/keyquorum/wallet-recovery-backend/metrics"
	"github.com/keyquorum/wallet-recovery-backend/recovery"
	"github.com/keyquorum/wallet-recovery-backend/token"
)

// Handler processes HTTP requests for threshold tokens. Every build and
// rotation archives the encoded token as a content-addressed snapshot before
// the indexed record is written, so the store can always be rebuilt from the
// archive.
type Handler struct {
	engine  *recovery.Engine
	tokens  interfaces.TokenStore
	archive interfaces.ArchiveBackend
	log     *slog.Logger
}

// NewHandler creates an HTTP request handler for the token endpoints.
func NewHandler(engine *recovery.Engine, tokens interfaces.TokenStore, archive interfaces.ArchiveBackend, log *slog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		tokens:  tokens,
		archive: archive,
		log:     log,
	}
}

// RegisterRoutes configures the router with the token endpoints:
//   - POST /api/v1/tokens - build and store a fresh token
//   - GET /api/v1/tokens/{lookup_hash} - public token metadata
//   - POST /api/v1/tokens/rotate - replace one factor
//   - POST /api/v1/recover - recover root keys from a factor pair
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/tokens", h.HandleBuildToken)
	r.Get("/api/v1/tokens/{lookup_hash}", h.HandleTokenInfo)
	r.Post("/api/v1/tokens/rotate", h.HandleRotateFactor)
	r.Post("/api/v1/recover", h.HandleRecover)
}

// HandleBuildToken builds a threshold token from the supplied factors and
// root keys, archives it, and registers it under both lookup hashes.
//
// URL format: POST /api/v1/tokens
//
// Status codes:
//   - 200 OK: token stored, response carries its public coordinates
//   - 400 Bad Request: malformed factor, key, or password material
//   - 409 Conflict: a token already exists for one of the lookup hashes
//   - 500 Internal Server Error: archive or store failure
func (h *Handler) HandleBuildToken(w http.ResponseWriter, r *http.Request) {
	var req api.BuildTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid request body: %w", err).Error(), http.StatusBadRequest)
		return
	}

	presentation, err := interfaces.NewFactorFromHex(req.PresentationFactor)
	if err != nil {
		http.Error(w, "invalid presentation factor encoding", http.StatusBadRequest)
		return
	}
	recoveryFactor, err := interfaces.NewFactorFromHex(req.RecoveryFactor)
	if err != nil {
		http.Error(w, "invalid recovery factor encoding", http.StatusBadRequest)
		return
	}
	rootPrimary, err := interfaces.NewRootKeyFromHex(req.RootPrimary)
	if err != nil {
		http.Error(w, "invalid primary root key encoding", http.StatusBadRequest)
		return
	}
	rootPrivileged, err := interfaces.NewRootKeyFromHex(req.RootPrivileged)
	if err != nil {
		http.Error(w, "invalid privileged root key encoding", http.StatusBadRequest)
		return
	}

	passwordFactor, salt, err := passwordFromRequest(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	factors := token.Factors{
		Presentation: presentation,
		Password:     passwordFactor,
		Recovery:     recoveryFactor,
	}
	tok, err := token.Build(factors, rootPrimary, rootPrivileged, salt)
	if err != nil {
		metrics.RecordTokenOp("build", metrics.OutcomeFailure)
		http.Error(w, "invalid token material", http.StatusBadRequest)
		return
	}

	if len(req.Profile) > 0 {
		if err := tok.SealProfile(req.Profile, rootPrivileged); err != nil {
			metrics.RecordTokenOp("build", metrics.OutcomeError)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	record, err := h.persistToken(r.Context(), tok, nil)
	if errors.Is(err, interfaces.ErrDuplicateToken) {
		metrics.RecordTokenOp("build", metrics.OutcomeFailure)
		http.Error(w, "token already registered for these factors", http.StatusConflict)
		return
	}
	if err != nil {
		metrics.RecordTokenOp("build", metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.RecordTokenOp("build", metrics.OutcomeSuccess)
	response := api.BuildTokenResponse{
		PresentationHash: record.PresentationHash,
		RecoveryHash:     record.RecoveryHash,
		Locator:          record.Locator,
		PasswordSalt:     hex.EncodeToString(tok.PasswordSalt),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleTokenInfo returns the public metadata of the token matching a lookup
// hash: both hashes, the password salt, and the archive locator. Nothing in
// the response helps a caller who does not hold the factors.
//
// URL format: GET /api/v1/tokens/{lookup_hash}
func (h *Handler) HandleTokenInfo(w http.ResponseWriter, r *http.Request) {
	hash, err := interfaces.NewLookupHashFromHex(r.PathValue("lookup_hash"))
	if err != nil {
		http.Error(w, fmt.Errorf("invalid lookup hash: %w", err).Error(), http.StatusBadRequest)
		return
	}

	record, err := h.tokens.ByLookupHash(r.Context(), hash)
	if errors.Is(err, interfaces.ErrTokenNotFound) {
		http.Error(w, "token not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var tok token.Token
	if err := tok.UnmarshalBinary(record.Blob); err != nil {
		h.log.Error("Stored token failed to decode", "err", err, slog.Uint64("token_id", record.ID))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	response := api.TokenInfoResponse{
		PresentationHash: record.PresentationHash,
		RecoveryHash:     record.RecoveryHash,
		PasswordSalt:     hex.EncodeToString(tok.PasswordSalt),
		Locator:          record.Locator,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleRecover reconstructs root keys from a factor pair. A missing token
// and wrong factors produce the same generic 401, so the endpoint cannot
// confirm which lookup hashes exist.
//
// URL format: POST /api/v1/recover
//
// Status codes:
//   - 200 OK: root keys recovered
//   - 400 Bad Request: unknown mode or malformed factor encoding
//   - 401 Unauthorized: recovery failed
//   - 500 Internal Server Error: storage or decoding failure
func (h *Handler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	var req api.RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid request body: %w", err).Error(), http.StatusBadRequest)
		return
	}

	mode, err := interfaces.ParseRecoveryMode(req.Mode)
	if err != nil {
		http.Error(w, fmt.Errorf("invalid recovery mode: %w", err).Error(), http.StatusBadRequest)
		return
	}
	factorA, err := interfaces.NewFactorFromHex(req.FactorA)
	if err != nil {
		http.Error(w, "invalid factor encoding", http.StatusBadRequest)
		return
	}
	factorB, err := interfaces.NewFactorFromHex(req.FactorB)
	if err != nil {
		http.Error(w, "invalid factor encoding", http.StatusBadRequest)
		return
	}

	result, tok, err := h.engine.RecoverByLookup(r.Context(), mode, factorA, factorB)
	if errors.Is(err, interfaces.ErrTokenNotFound) || errors.Is(err, interfaces.ErrAuthenticationFailure) {
		metrics.RecordRecoveryAttempt(metrics.OutcomeFailure)
		http.Error(w, "recovery failed", http.StatusUnauthorized)
		return
	}
	if err != nil {
		metrics.RecordRecoveryAttempt(metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	response := api.RecoverResponse{
		RootPrimary:         hex.EncodeToString(result.RootPrimary.Bytes()),
		PrivilegedDerivable: result.PrivilegedDerivable,
		PasswordSalt:        hex.EncodeToString(tok.PasswordSalt),
	}
	if result.PrivilegedDerivable {
		response.RootPrivileged = hex.EncodeToString(result.RootPrivileged.Bytes())

		// The primary decryption already proved the factors, so a profile
		// that fails to open is stored-data corruption, not a bad request.
		profile, err := tok.OpenProfile(*result.RootPrivileged)
		if err != nil {
			h.log.Error("Stored profile failed decryption", "err", err)
			metrics.RecordRecoveryAttempt(metrics.OutcomeError)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		response.Profile = profile
	}

	metrics.RecordRecoveryAttempt(metrics.OutcomeSuccess)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleRotateFactor replaces one factor of a stored token. The caller must
// hold both root keys from a prior recovery; the old factor is verified
// against its sealed backup before anything changes. Failures collapse into
// the same generic 401 as recovery.
//
// URL format: POST /api/v1/tokens/rotate
func (h *Handler) HandleRotateFactor(w http.ResponseWriter, r *http.Request) {
	var req api.RotateFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid request body: %w", err).Error(), http.StatusBadRequest)
		return
	}

	hash, err := interfaces.NewLookupHashFromHex(req.LookupHash)
	if err != nil {
		http.Error(w, fmt.Errorf("invalid lookup hash: %w", err).Error(), http.StatusBadRequest)
		return
	}
	kind, err := interfaces.ParseFactorKind(req.Kind)
	if err != nil {
		http.Error(w, fmt.Errorf("invalid factor kind: %w", err).Error(), http.StatusBadRequest)
		return
	}
	oldFactor, err := interfaces.NewFactorFromHex(req.OldFactor)
	if err != nil {
		http.Error(w, "invalid old factor encoding", http.StatusBadRequest)
		return
	}
	rootPrimary, err := interfaces.NewRootKeyFromHex(req.RootPrimary)
	if err != nil {
		http.Error(w, "invalid primary root key encoding", http.StatusBadRequest)
		return
	}
	rootPrivileged, err := interfaces.NewRootKeyFromHex(req.RootPrivileged)
	if err != nil {
		http.Error(w, "invalid privileged root key encoding", http.StatusBadRequest)
		return
	}

	record, err := h.tokens.ByLookupHash(r.Context(), hash)
	if errors.Is(err, interfaces.ErrTokenNotFound) {
		metrics.RecordTokenOp("rotate", metrics.OutcomeFailure)
		http.Error(w, "rotation failed", http.StatusUnauthorized)
		return
	}
	if err != nil {
		metrics.RecordTokenOp("rotate", metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var tok token.Token
	if err := tok.UnmarshalBinary(record.Blob); err != nil {
		h.log.Error("Stored token failed to decode", "err", err, slog.Uint64("token_id", record.ID))
		metrics.RecordTokenOp("rotate", metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	next, err := rotateToken(&tok, &req, oldFactor, kind, rootPrimary, rootPrivileged)
	if errors.Is(err, interfaces.ErrAuthenticationFailure) {
		metrics.RecordTokenOp("rotate", metrics.OutcomeFailure)
		http.Error(w, "rotation failed", http.StatusUnauthorized)
		return
	}
	if errors.Is(err, interfaces.ErrCryptoFailure) || errors.Is(err, interfaces.ErrInvalidFactorKind) {
		metrics.RecordTokenOp("rotate", metrics.OutcomeFailure)
		http.Error(w, "invalid rotation material", http.StatusBadRequest)
		return
	}
	if err != nil {
		metrics.RecordTokenOp("rotate", metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	updated, err := h.persistToken(r.Context(), next, record)
	if errors.Is(err, interfaces.ErrDuplicateToken) {
		metrics.RecordTokenOp("rotate", metrics.OutcomeFailure)
		http.Error(w, "token already registered for these factors", http.StatusConflict)
		return
	}
	if errors.Is(err, interfaces.ErrTokenNotFound) {
		// Deleted between the fetch and the update; indistinguishable from
		// never having existed.
		metrics.RecordTokenOp("rotate", metrics.OutcomeFailure)
		http.Error(w, "rotation failed", http.StatusUnauthorized)
		return
	}
	if err != nil {
		metrics.RecordTokenOp("rotate", metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.RecordTokenOp("rotate", metrics.OutcomeSuccess)
	response := api.RotateFactorResponse{
		PresentationHash: updated.PresentationHash,
		RecoveryHash:     updated.RecoveryHash,
		Locator:          updated.Locator,
		PasswordSalt:     hex.EncodeToString(next.PasswordSalt),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// persistToken archives the encoded token and writes its indexed record. The
// blob is archived before the locator is known, so the stored blob and the
// archived snapshot stay byte-identical and the locator remains recomputable
// from the content; the locator lives only in the record column.
func (h *Handler) persistToken(ctx context.Context, tok *token.Token, existing *interfaces.TokenRecord) (*interfaces.TokenRecord, error) {
	blob, err := tok.MarshalBinary()
	if err != nil {
		return nil, err
	}

	snapshotID, err := h.archive.Store(ctx, blob)
	if err != nil {
		h.log.Error("Failed to archive token snapshot", "err", err, slog.String("backend", h.archive.Name()))
		return nil, err
	}

	record := existing
	if record == nil {
		record = &interfaces.TokenRecord{}
	}
	record.PresentationHash = tok.PresentationHash.String()
	record.RecoveryHash = tok.RecoveryHash.String()
	record.Blob = blob
	record.Locator = snapshotID.String()

	if existing == nil {
		err = h.tokens.Create(ctx, record)
	} else {
		err = h.tokens.Update(ctx, record)
	}
	if err != nil {
		return nil, err
	}

	h.log.Debug("Persisted token snapshot",
		slog.Uint64("token_id", record.ID),
		slog.String("locator", record.Locator))
	return record, nil
}

// passwordFromRequest resolves the password factor and its salt: pre-derived
// factor and salt when supplied, otherwise derived from the raw password
// under a fresh salt.
func passwordFromRequest(req *api.BuildTokenRequest) (interfaces.Factor, []byte, error) {
	if req.Password != "" {
		salt, err := cryptoutils.NewSalt()
		if err != nil {
			return interfaces.Factor{}, nil, err
		}
		factor, err := token.DerivePasswordFactor([]byte(req.Password), salt)
		if err != nil {
			return interfaces.Factor{}, nil, err
		}
		return factor, salt, nil
	}

	factor, err := interfaces.NewFactorFromHex(req.PasswordFactor)
	if err != nil {
		return interfaces.Factor{}, nil, errors.New("invalid password factor encoding")
	}
	salt, err := hex.DecodeString(req.PasswordSalt)
	if err != nil || len(salt) == 0 {
		return interfaces.Factor{}, nil, errors.New("invalid password salt encoding")
	}
	return factor, salt, nil
}

// rotateToken dispatches between raw-password rotation, which draws a fresh
// salt server-side, and rotation with a pre-derived factor. The derived
// password factor is never echoed; clients re-derive it from the returned
// salt.
func rotateToken(tok *token.Token, req *api.RotateFactorRequest, oldFactor interfaces.Factor, kind interfaces.FactorKind, rootPrimary, rootPrivileged interfaces.RootKey) (*token.Token, error) {
	if kind == interfaces.KindPassword && req.NewPassword != "" {
		next, _, err := token.RotatePassword(tok, oldFactor, []byte(req.NewPassword), rootPrimary, rootPrivileged)
		return next, err
	}

	newFactor, err := interfaces.NewFactorFromHex(req.NewFactor)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed replacement factor", interfaces.ErrCryptoFailure)
	}
	return token.RotateFactor(tok, oldFactor, newFactor, kind, rootPrimary, rootPrivileged)
}
