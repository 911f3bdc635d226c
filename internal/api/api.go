// Package api is the HTTP transport: request decoding, validation and
// sanitization, error mapping, and the control surface. All scoring
// happens in the engine; handlers never compute risk themselves.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"guardian/internal/auth"
	"guardian/internal/encryption"
	"guardian/internal/engine"
	"guardian/internal/enrich"
	"guardian/internal/risk/callguard"
	"guardian/internal/risk/identitywatch"
	"guardian/internal/risk/inboxguard"
	"guardian/internal/risk/moneyguard"
	"guardian/internal/session"
	"guardian/internal/telemetry"
)

// AuditRecorder receives session lifecycle audit events.
type AuditRecorder interface {
	Record(kind, sessionID, module string, detail map[string]any) error
}

// Options carries the optional collaborators. Nil fields disable the
// corresponding routes.
type Options struct {
	Auth      *auth.Store
	Tokens    *auth.TokenIssuer
	Enricher  *enrich.Client
	Stream    http.Handler
	Audit     AuditRecorder
	Telemetry *telemetry.Provider
}

// Handler handles all API requests.
type Handler struct {
	engine   *engine.Engine
	validate *validator.Validate
	profiles *profileStore
	opts     Options
	mux      *http.ServeMux
}

// New creates the API handler and registers its routes.
func New(eng *engine.Engine, cipher *encryption.Cipher, opts Options) *Handler {
	h := &Handler{
		engine:   eng,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		profiles: newProfileStore(cipher),
		opts:     opts,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("/v1/session/start", h.handleSessionStart)
	h.mux.HandleFunc("/v1/session/", h.handleSession)
	h.mux.HandleFunc("/v1/callguard/assess", h.handleCallGuardAssess)
	h.mux.HandleFunc("/v1/moneyguard/assess", h.handleMoneyGuardAssess)
	h.mux.HandleFunc("/v1/moneyguard/safe_steps", h.handleMoneyGuardSafeSteps)
	h.mux.HandleFunc("/v1/inboxguard/analyze_text", h.handleInboxGuardText)
	h.mux.HandleFunc("/v1/inboxguard/analyze_url", h.handleInboxGuardURL)
	h.mux.HandleFunc("/v1/identitywatch/profile", h.handleIdentityWatchProfile)
	h.mux.HandleFunc("/v1/identitywatch/check_risk", h.handleIdentityWatchRisk)

	if opts.Auth != nil && opts.Tokens != nil {
		h.mux.HandleFunc("/v1/auth/register", h.handleRegister)
		h.mux.HandleFunc("/v1/auth/login", h.handleLogin)
		h.mux.HandleFunc("/v1/auth/verify", h.handleVerifyEmail)
	}
	if opts.Stream != nil {
		h.mux.Handle("/v1/stream", opts.Stream)
	}

	h.mux.HandleFunc("/control/health", h.handleHealth)
	h.mux.HandleFunc("/control/stats", h.handleStats)
	h.mux.HandleFunc("/control/retention_policy", h.handleRetentionPolicy)

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS for browser clients
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.opts.Telemetry != nil {
		ctx, span := h.opts.Telemetry.StartRequestSpan(r.Context(), r.Method, r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.mux.ServeHTTP(rec, r.WithContext(ctx))
		h.opts.Telemetry.EndRequestSpan(span, rec.status)
		return
	}

	h.mux.ServeHTTP(w, r)
}

// statusRecorder captures the response status for the request span.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer, so
// the stream endpoint can still hijack the connection.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// handleSessionStart handles POST /v1/session/start
func (h *Handler) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if !h.decode(w, r, &req) {
		return
	}

	module, err := session.ParseModule(req.Module)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := h.engine.StartSession(
		sanitize(req.UserID, maxFieldLength),
		sanitize(req.DeviceID, maxFieldLength),
		module,
	)
	h.audit("session_started", id, string(module), nil)
	writeJSON(w, http.StatusOK, sessionStartResponse{SessionID: id})
}

// handleSession routes /v1/session/{id}[/event|/end]
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/session/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}

	sessionID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getSession(w, sessionID)
	case action == "event" && r.Method == http.MethodPost:
		h.appendEvent(w, r, sessionID)
	case action == "end" && r.Method == http.MethodPost:
		h.endSession(w, sessionID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handler) getSession(w http.ResponseWriter, sessionID string) {
	view, err := h.engine.GetSession(sessionID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) appendEvent(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req appendEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.engine.AppendEvent(sessionID, session.EventIn{
		Type:      sanitize(req.Type, maxFieldLength),
		Payload:   sanitizePayload(req.Payload),
		Timestamp: req.Timestamp,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if h.opts.Telemetry != nil {
		module, _ := h.engine.Module(sessionID)
		h.opts.Telemetry.RecordRiskScored(r.Context(), sessionID, string(module), resp.Score, string(resp.Level))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) endSession(w http.ResponseWriter, sessionID string) {
	summary, err := h.engine.EndSession(sessionID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.audit("session_ended", sessionID, string(summary.Module), map[string]any{
		"score": summary.LastRisk.Score,
		"level": string(summary.LastRisk.Level),
	})
	writeJSON(w, http.StatusOK, summary)
}

// handleCallGuardAssess handles POST /v1/callguard/assess. This is the
// only path that may consult the enrichment client; session dispatch is
// always rule-based.
func (h *Handler) handleCallGuardAssess(w http.ResponseWriter, r *http.Request) {
	var req callGuardAssessRequest
	if !h.decode(w, r, &req) {
		return
	}

	signals := make([]string, 0, len(req.Signals))
	for _, s := range req.Signals {
		signals = append(signals, sanitize(s, maxFieldLength))
	}

	resp := callguard.Assess(signals)
	if h.opts.Enricher != nil {
		resp = h.opts.Enricher.Enrich(r.Context(), signals, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMoneyGuardAssess handles POST /v1/moneyguard/assess
func (h *Handler) handleMoneyGuardAssess(w http.ResponseWriter, r *http.Request) {
	var req moneyGuardAssessRequest
	if !h.decode(w, r, &req) {
		return
	}

	payload := map[string]any{
		"amount":                     req.Amount,
		"payment_method":             sanitize(req.PaymentMethod, maxFieldLength),
		"recipient":                  sanitize(req.Recipient, maxFieldLength),
		"reason":                     sanitize(req.Reason, maxTextLength),
		"did_they_contact_you_first": req.DidTheyContactYouFirst,
		"flags": map[string]any{
			"urgency_present":             req.UrgencyPresent,
			"asked_to_keep_secret":        req.AskedToKeepSecret,
			"asked_for_verification_code": req.AskedForVerificationCode,
			"asked_for_remote_access":     req.AskedForRemoteAccess,
			"impersonation_type":          sanitize(req.ImpersonationType, maxFieldLength),
		},
	}

	// A linked session gets the assessment recorded in its event log;
	// the direct response below stays authoritative either way.
	if req.SessionID != "" {
		_, err := h.engine.AppendEvent(req.SessionID, session.EventIn{
			Type:    "assess",
			Payload: payload,
		})
		if err != nil && !errors.Is(err, engine.ErrNotFound) {
			h.writeEngineError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, moneyguard.Assess(payload))
}

// handleMoneyGuardSafeSteps handles POST /v1/moneyguard/safe_steps
func (h *Handler) handleMoneyGuardSafeSteps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, moneyguard.SafeSteps())
}

// handleInboxGuardText handles POST /v1/inboxguard/analyze_text
func (h *Handler) handleInboxGuardText(w http.ResponseWriter, r *http.Request) {
	var req inboxGuardTextRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, inboxguard.AnalyzeText(
		sanitize(req.Text, maxTextLength),
		sanitize(req.Channel, maxFieldLength),
	))
}

// handleInboxGuardURL handles POST /v1/inboxguard/analyze_url
func (h *Handler) handleInboxGuardURL(w http.ResponseWriter, r *http.Request) {
	var req inboxGuardURLRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, inboxguard.AnalyzeURL(sanitize(req.URL, maxURLLength)))
}

// handleIdentityWatchProfile handles POST /v1/identitywatch/profile
func (h *Handler) handleIdentityWatchProfile(w http.ResponseWriter, r *http.Request) {
	var req identityWatchProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	profile := h.profiles.create(req.Emails, req.Phones,
		sanitize(req.FullName, maxFieldLength),
		sanitize(req.State, maxFieldLength),
	)
	writeJSON(w, http.StatusOK, identityWatchProfileResponse{
		ProfileID: profile.ID,
		Created:   profile.Created,
	})
}

// handleIdentityWatchRisk handles POST /v1/identitywatch/check_risk
func (h *Handler) handleIdentityWatchRisk(w http.ResponseWriter, r *http.Request) {
	var req identityWatchRiskRequest
	if !h.decode(w, r, &req) {
		return
	}

	if !h.profiles.exists(req.ProfileID) {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	writeJSON(w, http.StatusOK, identitywatch.Assess(req.Signals))
}

// handleRegister handles POST /v1/auth/register
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, token, err := h.opts.Auth.Create(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("registration failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{
		UserID:            user.ID,
		VerificationToken: token,
	})
}

// handleLogin handles POST /v1/auth/login
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.opts.Auth.Authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		slog.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	token, err := h.opts.Tokens.Issue(user.ID, user.Verified)
	if err != nil {
		slog.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer"})
}

// handleVerifyEmail handles POST /v1/auth/verify
func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.opts.Auth.VerifyEmail(req.Token); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "Unknown verification token")
			return
		}
		slog.Error("email verification failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// handleHealth handles GET /control/health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   "0.1.0",
	})
}

// handleStats handles GET /control/stats
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// handleRetentionPolicy handles GET /control/retention_policy
func (h *Handler) handleRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.RetentionPolicy())
}

// decode parses a POST body and validates it. Returns false after
// writing the error response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationDetail(err))
		return false
	}
	return true
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "Invalid field: " + strings.ToLower(verrs[0].Field())
	}
	return "Invalid request"
}

func (h *Handler) audit(kind, sessionID, module string, detail map[string]any) {
	if h.opts.Audit == nil {
		return
	}
	if err := h.opts.Audit.Record(kind, sessionID, module, detail); err != nil {
		slog.Error("failed to record audit event", "kind", kind, "error", err)
	}
}

// writeEngineError maps engine sentinels onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, engine.ErrNoEvidence):
		writeError(w, http.StatusUnprocessableEntity, "No evidence events for module")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// sanitizePayload sanitizes the top-level string values of an event
// payload. Nested structure is preserved as-is; scorers coerce types
// themselves.
func sanitizePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			out[k] = sanitize(s, maxTextLength)
		} else {
			out[k] = v
		}
	}
	return out
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
