// Package relayapi exposes the relay's HTTP/JSON surface: job submission and
// execution, job status polling, the session/prove/submit flow, and health.
package relayapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/solbridge-labs/relay/internal/job"
	"github.com/solbridge-labs/relay/internal/payout"
	"github.com/solbridge-labs/relay/internal/session"
)

var ErrInvalidConfig = errors.New("relayapi: invalid config")

// Executor runs the job execution state machine. *payout.Service satisfies it.
type Executor interface {
	Execute(ctx context.Context, id string) (job.Job, error)
}

// Events receives submission notifications. Implementations must not fail
// the request path.
type Events interface {
	JobSubmitted(ctx context.Context, j job.Job)
}

type Config struct {
	Network string

	// AllowedOrigins is the CORS allowlist. Empty disables cross-origin
	// access; a single "*" allows any origin.
	AllowedOrigins []string

	// RateLimitPerMinute is the per-client request budget. The bucket
	// refills continuously and bursts up to one minute's budget.
	RateLimitPerMinute     int
	RateLimitMaxTrackedIPs int

	Now func() time.Time
}

func NewHandler(cfg Config, jobs job.Store, executor Executor, sessions *session.Service, events Events, log *slog.Logger) (http.Handler, error) {
	if jobs == nil {
		return nil, fmt.Errorf("%w: nil job store", ErrInvalidConfig)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: nil executor", ErrInvalidConfig)
	}
	if sessions == nil {
		return nil, fmt.Errorf("%w: nil session service", ErrInvalidConfig)
	}
	if cfg.Network == "" {
		cfg.Network = "unknown"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 120
	}
	if cfg.RateLimitMaxTrackedIPs <= 0 {
		cfg.RateLimitMaxTrackedIPs = 10_000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}

	h := &handler{
		cfg:      cfg,
		jobs:     jobs,
		executor: executor,
		sessions: sessions,
		events:   events,
		log:      log,
		limiter: newClientRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitMaxTrackedIPs),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /bridge/submit", h.handleSubmit)
	mux.HandleFunc("GET /bridge/job/{id}", h.handleJobStatus)
	mux.HandleFunc("POST /bridge/job/{id}/execute", h.handleExecute)
	mux.HandleFunc("POST /api/session", h.handleSession)
	mux.HandleFunc("POST /api/prove", h.handleProve)
	mux.HandleFunc("POST /api/submit", h.handleProofSubmit)

	var root http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health checks must never be throttled.
		if r.URL.Path == "/health" {
			mux.ServeHTTP(w, r)
			return
		}

		now := h.cfg.Now().UTC()
		allowed := h.limiter.Allow(clientIP(r), now)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.limiter.Limit()))
		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}

		mux.ServeHTTP(w, r)
	})
	root = withRecovery(root, log)
	root = withCORS(root, cfg.AllowedOrigins)
	return root, nil
}

type handler struct {
	cfg      Config
	jobs     job.Store
	executor Executor
	sessions *session.Service
	events   Events
	log      *slog.Logger
	limiter  *clientRateLimiter
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"network": h.cfg.Network,
		"time":    h.cfg.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSONBody[job.Request](w, r)
	if !ok {
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}
	if strings.TrimSpace(req.Receiver) == "" {
		writeError(w, http.StatusBadRequest, "Missing receiver")
		return
	}
	if strings.TrimSpace(req.DepositSignature) == "" {
		writeError(w, http.StatusBadRequest, "Missing depositSignature from Solana side")
		return
	}

	j, err := h.jobs.Create(r.Context(), req)
	if err != nil {
		h.log.Error("create job", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	h.log.Info("job submitted", "jobId", j.ID, "fromChain", req.FromChain, "toChain", req.ToChain)
	if h.events != nil {
		h.events.JobSubmitted(r.Context(), j)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":  j.ID,
		"status": j.Status,
	})
}

func (h *handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error("get job", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	j, err := h.executor.Execute(r.Context(), id)
	if err != nil {
		h.writeExecuteError(w, id, j, err)
		return
	}

	resp := map[string]any{
		"jobId":     j.ID,
		"status":    j.Status,
		"simulated": j.Simulated,
	}
	if j.TxHash != "" {
		resp["txHash"] = j.TxHash
	}
	if j.ExplorerURL != "" {
		resp["explorerUrl"] = j.ExplorerURL
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) writeExecuteError(w http.ResponseWriter, id string, j job.Job, err error) {
	var notPending *job.NotPendingError
	switch {
	case errors.Is(err, job.ErrNotFound):
		writeError(w, http.StatusNotFound, "Job not found")
	case errors.As(err, &notPending):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Job is not pending (status: %s)", notPending.Status))
	case errors.Is(err, payout.ErrMissingFields):
		writeError(w, http.StatusBadRequest, j.ErrorMessage)
	case errors.Is(err, payout.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, j.ErrorMessage)
	case errors.Is(err, payout.ErrSendFailed):
		writeError(w, http.StatusInternalServerError, j.ErrorMessage)
	default:
		h.log.Error("execute job", "jobId", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func (h *handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		h.log.Error("create session", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":  sess.ID,
		"merkleRoot": sess.MerkleRoot,
		"provingKey": session.ProvingKey,
		"expiresIn":  h.sessions.SessionTTL(),
	})
}

type proveRequestBody struct {
	SessionID string         `json:"sessionId"`
	PublicKey string         `json:"publicKey"`
	Payload   session.Intent `json:"payload"`
}

func (h *handler) handleProve(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSONBody[proveRequestBody](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(body.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "Missing sessionId")
		return
	}
	if strings.TrimSpace(body.PublicKey) == "" {
		writeError(w, http.StatusBadRequest, "Missing publicKey")
		return
	}
	if strings.TrimSpace(body.Payload.Commitment) == "" {
		writeError(w, http.StatusBadRequest, "Missing commitment in payload")
		return
	}

	bundle, err := h.sessions.Prove(r.Context(), body.SessionID, body.PublicKey, body.Payload)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusBadRequest, "Invalid or expired sessionId")
			return
		}
		h.log.Error("prove", "sessionId", body.SessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

type proofSubmitRequestBody struct {
	ProofID    string `json:"proofId"`
	Proof      string `json:"proof"`
	Commitment string `json:"commitment"`
	Nullifier  string `json:"nullifier"`
	Network    string `json:"network"`
	Mode       string `json:"mode"`
}

func (h *handler) handleProofSubmit(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeJSONBody[proofSubmitRequestBody](w, r)
	if !ok {
		return
	}
	for _, f := range []struct{ name, value string }{
		{"proofId", body.ProofID},
		{"proof", body.Proof},
		{"commitment", body.Commitment},
		{"nullifier", body.Nullifier},
	} {
		if strings.TrimSpace(f.value) == "" {
			writeError(w, http.StatusBadRequest, "Missing "+f.name)
			return
		}
	}

	receipt, err := h.sessions.Submit(r.Context(), body.ProofID, body.Network, body.Mode)
	if err != nil {
		if errors.Is(err, session.ErrProofNotFound) {
			writeError(w, http.StatusBadRequest, "Invalid or expired proofId")
			return
		}
		h.log.Error("proof submit", "proofId", body.ProofID, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func withRecovery(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "Internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// decodeJSONBody does not reject unknown fields: submissions carry
// passthrough fields the registry stores without inspecting.
func decodeJSONBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var out T
	if err := json.NewDecoder(r.Body).Decode(&out); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return out, false
	}
	return out, true
}

func clientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
		return xrip
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(remote); err == nil {
		return addr.Addr().String()
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.String()
	}
	host := remote
	if i := strings.LastIndex(remote, ":"); i > 0 {
		host = remote[:i]
	}
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return addr.String()
	}
	return remote
}
