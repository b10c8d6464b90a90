package custodyhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keyquorum/wallet-recovery-backend/api"
	"github.com/keyquorum/wallet-recovery-backend/custody"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
	"github.com/keyquorum/wallet-recovery-backend/metrics"
	"github.com/keyquorum/wallet-recovery-backend/ratelimit"
	"github.com/keyquorum/wallet-recovery-backend/sharebackup"
	"github.com/keyquorum/wallet-recovery-backend/verification"
)

// auditPageSize caps how many access log entries the audit endpoint returns.
const auditPageSize = 50

// errMalformedVerification marks requests whose verification parameters are
// missing or name no registered method. Distinguished from rejected proofs so
// only the latter burn lockout budget.
var errMalformedVerification = errors.New("malformed verification parameters")

// Handler processes HTTP requests for custodied shares. Share payloads pass
// through opaque; only their encoded shape is checked before the custody
// engine encrypts them.
type Handler struct {
	engine    *custody.Engine
	users     interfaces.UserStore
	accessLog interfaces.AccessLogStore
	limiter   *ratelimit.Limiter
	registry  *verification.Registry
	log       *slog.Logger
}

// NewHandler creates an HTTP request handler for the custody endpoints.
func NewHandler(engine *custody.Engine, users interfaces.UserStore, accessLog interfaces.AccessLogStore, limiter *ratelimit.Limiter, registry *verification.Registry, log *slog.Logger) *Handler {
	return &Handler{
		engine:    engine,
		users:     users,
		accessLog: accessLog,
		limiter:   limiter,
		registry:  registry,
		log:       log,
	}
}

// RegisterRoutes configures the router with the custody endpoints:
//   - PUT /api/v1/shares/{identity} - store a share for an identity
//   - GET /api/v1/shares/{identity} - retrieve the stored share
//   - POST /api/v1/shares/{identity} - replace the stored share
//   - DELETE /api/v1/shares/{identity} - remove the stored share
//   - GET /api/v1/shares/{identity}/audit - newest access log entries
//   - POST /api/v1/verification/start - issue a verification challenge
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Put("/api/v1/shares/{identity}", h.HandleStoreShare)
	r.Get("/api/v1/shares/{identity}", h.HandleRetrieveShare)
	r.Post("/api/v1/shares/{identity}", h.HandleUpdateShare)
	r.Delete("/api/v1/shares/{identity}", h.HandleDeleteShare)
	r.Get("/api/v1/shares/{identity}/audit", h.HandleAuditLog)
	r.Post("/api/v1/verification/start", h.HandleVerificationStart)
}

// HandleStoreShare encrypts and stores a share for an identity, creating the
// user record on first contact. One share per identity; replacing an existing
// one goes through update.
//
// URL format: PUT /api/v1/shares/{identity}
//
// Status codes:
//   - 200 OK: share stored, response carries the version metadata
//   - 400 Bad Request: malformed share encoding or verification parameters
//   - 401 Unauthorized: verification proof rejected
//   - 409 Conflict: the identity already has a share
//   - 429 Too Many Requests: identity or origin is locked out
func (h *Handler) HandleStoreShare(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if !h.authorize(w, r, identity, interfaces.ActionStore) {
		return
	}

	var req api.StoreShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid request body: %w", err).Error(), http.StatusBadRequest)
		return
	}

	// Shape rejections carry no authentication signal and are not logged.
	if err := sharebackup.ValidateEncoded(req.Share); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.userForStore(r.Context(), identity)
	if err != nil {
		h.log.Error("Failed to resolve user", "err", err, slog.String("identity", identity))
		metrics.RecordCustodyOp(interfaces.ActionStore.String(), metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	record, err := h.engine.StoreShare(r.Context(), user.ID, req.Share)
	if errors.Is(err, interfaces.ErrDuplicateShare) {
		h.logAccess(r.Context(), r, identity, interfaces.ActionStore, false, "share already exists")
		metrics.RecordCustodyOp(interfaces.ActionStore.String(), metrics.OutcomeFailure)
		http.Error(w, "share already exists for this identity", http.StatusConflict)
		return
	}
	if err != nil {
		metrics.RecordCustodyOp(interfaces.ActionStore.String(), metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logAccess(r.Context(), r, identity, interfaces.ActionStore, true, "")
	metrics.RecordCustodyOp(interfaces.ActionStore.String(), metrics.OutcomeSuccess)
	response := api.ShareResponse{
		Identity:  identity,
		Version:   record.Version,
		UpdatedAt: record.UpdatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleRetrieveShare decrypts and returns an identity's share. Misses are
// logged as failed attempts: probing identities for stored shares burns the
// same lockout budget as guessing proofs.
//
// URL format: GET /api/v1/shares/{identity}
func (h *Handler) HandleRetrieveShare(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if !h.authorize(w, r, identity, interfaces.ActionRetrieve) {
		return
	}

	user, err := h.users.ByIdentity(r.Context(), identity)
	if errors.Is(err, interfaces.ErrUserNotFound) {
		h.logAccess(r.Context(), r, identity, interfaces.ActionRetrieve, false, "share not found")
		metrics.RecordCustodyOp(interfaces.ActionRetrieve.String(), metrics.OutcomeNotFound)
		http.Error(w, "share not found", http.StatusNotFound)
		return
	}
	if err != nil {
		metrics.RecordCustodyOp(interfaces.ActionRetrieve.String(), metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	share, found, err := h.engine.RetrieveShare(r.Context(), user.ID)
	if err != nil {
		metrics.RecordCustodyOp(interfaces.ActionRetrieve.String(), metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		h.logAccess(r.Context(), r, identity, interfaces.ActionRetrieve, false, "share not found")
		metrics.RecordCustodyOp(interfaces.ActionRetrieve.String(), metrics.OutcomeNotFound)
		http.Error(w, "share not found", http.StatusNotFound)
		return
	}

	h.logAccess(r.Context(), r, identity, interfaces.ActionRetrieve, true, "")
	metrics.RecordCustodyOp(interfaces.ActionRetrieve.String(), metrics.OutcomeSuccess)
	response := api.ShareResponse{
		Identity: identity,
		Share:    share,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleUpdateShare replaces an identity's share under a fresh nonce. The
// version increments by exactly one; an identity with nothing stored gets a
// 404 rather than an implicit create.
//
// URL format: POST /api/v1/shares/{identity}
func (h *Handler) HandleUpdateShare(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if !h.authorize(w, r, identity, interfaces.ActionUpdate) {
		return
	}

	var req api.StoreShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid request body: %w", err).Error(), http.StatusBadRequest)
		return
	}

	if err := sharebackup.ValidateEncoded(req.Share); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.users.ByIdentity(r.Context(), identity)
	if errors.Is(err, interfaces.ErrUserNotFound) {
		h.shareMissingForUpdate(w, r, identity)
		return
	}
	if err != nil {
		metrics.RecordCustodyOp(interfaces.ActionUpdate.String(), metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	record, err := h.engine.UpdateShare(r.Context(), user.ID, req.Share)
	if errors.Is(err, interfaces.ErrNoExistingShare) {
		h.shareMissingForUpdate(w, r, identity)
		return
	}
	if err != nil {
		metrics.RecordCustodyOp(interfaces.ActionUpdate.String(), metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logAccess(r.Context(), r, identity, interfaces.ActionUpdate, true, "")
	metrics.RecordCustodyOp(interfaces.ActionUpdate.String(), metrics.OutcomeSuccess)
	response := api.ShareResponse{
		Identity:  identity,
		Version:   record.Version,
		UpdatedAt: record.UpdatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleDeleteShare removes an identity's share. Deletion is idempotent and
// reveals nothing about whether a share existed, so it is verification gated
// without a lockout policy or audit action.
//
// URL format: DELETE /api/v1/shares/{identity}
func (h *Handler) HandleDeleteShare(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if !h.verifyOnly(w, r, identity, "delete") {
		return
	}

	user, err := h.users.ByIdentity(r.Context(), identity)
	if errors.Is(err, interfaces.ErrUserNotFound) {
		metrics.RecordCustodyOp("delete", metrics.OutcomeSuccess)
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		metrics.RecordCustodyOp("delete", metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.engine.DeleteShare(r.Context(), user.ID); err != nil {
		metrics.RecordCustodyOp("delete", metrics.OutcomeError)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.RecordCustodyOp("delete", metrics.OutcomeSuccess)
	w.WriteHeader(http.StatusOK)
}

// HandleAuditLog returns the newest access log entries for an identity, most
// recent first.
//
// URL format: GET /api/v1/shares/{identity}/audit
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if !h.verifyOnly(w, r, identity, "audit") {
		return
	}

	entries, err := h.accessLog.RecentByIdentity(r.Context(), identity, auditPageSize)
	if err != nil {
		h.log.Error("Failed to query access log", "err", err, slog.String("identity", identity))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	response := api.AuditLogResponse{
		Identity: identity,
		Entries:  entries,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleVerificationStart issues a fresh challenge for an identity through
// the named verification method. The challenge response carries the expiry;
// development methods also return the expected proof as a hint.
//
// URL format: POST /api/v1/verification/start
func (h *Handler) HandleVerificationStart(w http.ResponseWriter, r *http.Request) {
	var req api.VerificationStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid request body: %w", err).Error(), http.StatusBadRequest)
		return
	}
	if req.Identity == "" {
		http.Error(w, "identity is required", http.StatusBadRequest)
		return
	}

	challenge, err := h.registry.Start(r.Context(), req.Method, req.Identity)
	if err != nil {
		http.Error(w, fmt.Errorf("verification start failed: %w", err).Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(challenge); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// authorize runs the full gate for one audited custody operation: the
// lockout check first, then the verification proof. A rejected proof is
// logged as a failed attempt so it burns lockout budget; a lockout rejection
// is not, or probing a locked identity would keep extending its lockout.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, identity string, action interfaces.AccessAction) bool {
	decision, err := h.limiter.IsLimited(r.Context(), identity, originFromRequest(r), action)
	if err != nil {
		h.log.Error("Rate limit check failed", "err", err, slog.String("identity", identity))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return false
	}
	if decision.Limited {
		metrics.RecordRateLimitRejection(decision.Scope)
		metrics.RecordCustodyOp(action.String(), metrics.OutcomeRateLimited)
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterMinutes*60))
		http.Error(w, "rate limited, retry later", http.StatusTooManyRequests)
		return false
	}

	if err := h.proofError(r, identity); err != nil {
		if errors.Is(err, errMalformedVerification) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return false
		}
		h.logAccess(r.Context(), r, identity, action, false, "verification failed")
		metrics.RecordCustodyOp(action.String(), metrics.OutcomeDenied)
		http.Error(w, "verification failed", http.StatusUnauthorized)
		return false
	}
	return true
}

// verifyOnly runs just the verification gate, for operations outside the
// lockout policy table. metricAction labels the outcome counter.
func (h *Handler) verifyOnly(w http.ResponseWriter, r *http.Request, identity, metricAction string) bool {
	if err := h.proofError(r, identity); err != nil {
		if errors.Is(err, errMalformedVerification) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return false
		}
		metrics.RecordCustodyOp(metricAction, metrics.OutcomeDenied)
		http.Error(w, "verification failed", http.StatusUnauthorized)
		return false
	}
	return true
}

// proofError checks the request's verification headers against the registry.
// Returns nil for a verified proof, errMalformedVerification when the headers
// are unusable, and the verifier's error for a rejected proof.
func (h *Handler) proofError(r *http.Request, identity string) error {
	method := r.Header.Get(api.VerificationMethodHeader)
	proof := r.Header.Get(api.VerificationProofHeader)
	if method == "" || proof == "" {
		return fmt.Errorf("%w: verification method and proof headers are required", errMalformedVerification)
	}

	verifier, err := h.registry.VerifierFor(method)
	if err != nil {
		return fmt.Errorf("%w: %w", errMalformedVerification, err)
	}

	return verifier.Complete(r.Context(), identity, proof)
}

// shareMissingForUpdate logs a failed update against an identity with nothing
// stored and answers 404.
func (h *Handler) shareMissingForUpdate(w http.ResponseWriter, r *http.Request, identity string) {
	h.logAccess(r.Context(), r, identity, interfaces.ActionUpdate, false, "no existing share")
	metrics.RecordCustodyOp(interfaces.ActionUpdate.String(), metrics.OutcomeNotFound)
	http.Error(w, "no existing share for this identity", http.StatusNotFound)
}

// userForStore resolves the identity's user record, creating it on first
// contact. A create racing another writer loses to the identity unique
// constraint and re-fetches.
func (h *Handler) userForStore(ctx context.Context, identity string) (*interfaces.UserRecord, error) {
	user, err := h.users.ByIdentity(ctx, identity)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, interfaces.ErrUserNotFound) {
		return nil, err
	}

	user = &interfaces.UserRecord{Identity: identity}
	err = h.users.Create(ctx, user)
	if errors.Is(err, interfaces.ErrDuplicateUser) {
		return h.users.ByIdentity(ctx, identity)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// logAccess appends one audit entry. A failed append degrades the trail, not
// the operation: the error is logged and the response proceeds.
func (h *Handler) logAccess(ctx context.Context, r *http.Request, identity string, action interfaces.AccessAction, success bool, reason string) {
	if err := h.limiter.LogAccess(ctx, identity, originFromRequest(r), action, success, reason); err != nil {
		h.log.Error("Failed to append access log entry", "err", err,
			slog.String("identity", identity),
			slog.String("action", action.String()))
	}
}

// originFromRequest reduces the peer address to a bare host for origin-scoped
// rate limiting. Deployments behind a proxy enable the real-IP middleware so
// RemoteAddr already names the client by the time the handler runs.
func originFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
