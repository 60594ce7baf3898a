package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authlife"
	"github.com/MrEthical07/authlife/metrics/export/prometheus"
	"github.com/MrEthical07/authlife/middleware"
)

// newRouter mounts the public, session and admin routes. Admin routes are
// omitted when adminToken is empty.
func newRouter(engine *authlife.Engine, logger *slog.Logger, adminToken string) http.Handler {
	h := &handlers{engine: engine, logger: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.health)
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(engine).Handler())

	guard := middleware.Guard(engine, true)
	mux.Handle("GET /v1/session", guard(http.HandlerFunc(h.currentSession)))
	mux.Handle("DELETE /v1/session", guard(http.HandlerFunc(h.logout)))

	if adminToken != "" {
		admin := requireAdmin(adminToken)
		mux.Handle("POST /v1/admin/sessions", admin(http.HandlerFunc(h.createSession)))
		mux.Handle("POST /v1/admin/sessions/{id}/mfa", admin(http.HandlerFunc(h.verifyMFA)))
		mux.Handle("GET /v1/admin/users/{uid}/sessions", admin(http.HandlerFunc(h.userSessions)))
		mux.Handle("DELETE /v1/admin/users/{uid}/sessions", admin(http.HandlerFunc(h.invalidateUser)))
		mux.Handle("GET /v1/admin/rotation", admin(http.HandlerFunc(h.rotationStatus)))
		mux.Handle("POST /v1/admin/rotation", admin(http.HandlerFunc(h.rotate)))
		mux.Handle("POST /v1/admin/rotation/emergency", admin(http.HandlerFunc(h.emergency)))
	}
	return mux
}

func requireAdmin(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type handlers struct {
	engine *authlife.Engine
	logger *slog.Logger
}

type sessionView struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TenantID       string    `json:"tenant_id,omitempty"`
	Role           string    `json:"role,omitempty"`
	MFAVerified    bool      `json:"mfa_verified"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	ExpiringSoon   bool      `json:"expiring_soon"`
}

func (h *handlers) view(s *authlife.Session) sessionView {
	return sessionView{
		ID:             s.ID,
		UserID:         s.UserID,
		TenantID:       s.TenantID,
		Role:           s.Role,
		MFAVerified:    s.MFAVerified,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		ExpiringSoon:   h.engine.Sessions().IsSessionExpiringSoon(s),
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Health(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) currentSession(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, h.view(res.Session))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.engine.Sessions().InvalidateSession(r.Context(), res.Session.ID); err != nil {
		h.error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createSessionRequest struct {
	UserID    string `json:"user_id"`
	TenantID  string `json:"tenant_id"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

type createSessionResponse struct {
	Session      sessionView `json:"session"`
	SessionToken string      `json:"session_token"`
	AccessToken  string      `json:"access_token"`
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	sess, err := h.engine.Sessions().CreateSession(r.Context(), req.UserID, req.TenantID, req.Role, req.Email,
		authlife.RequestMeta{IPAddress: req.IPAddress, UserAgent: req.UserAgent})
	if err != nil {
		h.error(w, err)
		return
	}
	access, err := h.engine.Tokens().Issue(sess.UserID, sess.TenantID, sess.ID, sess.Role)
	if err != nil {
		h.error(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		Session:      h.view(sess),
		SessionToken: sess.Token,
		AccessToken:  access,
	})
}

func (h *handlers) verifyMFA(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Sessions().VerifyMFAForSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(sess))
}

func (h *handlers) userSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Sessions().GetUserSessions(r.Context(), r.PathValue("uid"))
	if err != nil {
		h.error(w, err)
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, h.view(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) invalidateUser(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.Sessions().InvalidateAllUserSessions(r.Context(), r.PathValue("uid"))
	if err != nil {
		h.error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

type rotationStatusView struct {
	CurrentSecretAgeSeconds int64     `json:"current_secret_age_seconds"`
	NextRotationInSeconds   int64     `json:"next_rotation_in_seconds"`
	PreviousSecretsCount    int       `json:"previous_secrets_count"`
	AutoRotationEnabled     bool      `json:"auto_rotation_enabled"`
	RotatedAt               time.Time `json:"rotated_at"`
	RotationCount           uint64    `json:"rotation_count"`
	Fingerprint             string    `json:"fingerprint"`
}

func (h *handlers) rotationStatus(w http.ResponseWriter, _ *http.Request) {
	st := h.engine.Secrets().RotationStatus()
	writeJSON(w, http.StatusOK, rotationStatusView{
		CurrentSecretAgeSeconds: int64(st.CurrentSecretAge / time.Second),
		NextRotationInSeconds:   int64(st.NextRotationIn / time.Second),
		PreviousSecretsCount:    st.PreviousSecretsCount,
		AutoRotationEnabled:     st.AutoRotationEnabled,
		RotatedAt:               st.RotatedAt,
		RotationCount:           st.RotationCount,
		Fingerprint:             h.engine.Secrets().CurrentFingerprint(),
	})
}

type rotationView struct {
	Fingerprint   string    `json:"fingerprint"`
	RotatedAt     time.Time `json:"rotated_at"`
	RotationCount uint64    `json:"rotation_count"`
	Emergency     bool      `json:"emergency"`
}

func (h *handlers) rotate(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Secrets().RotateSecret(r.Context(), authlife.ReasonManual)
	h.writeRotation(w, res, err)
}

func (h *handlers) emergency(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Secrets().EmergencyRotation(r.Context())
	h.writeRotation(w, res, err)
}

// writeRotation never echoes the secret itself.
func (h *handlers) writeRotation(w http.ResponseWriter, res authlife.RotationResult, err error) {
	if err != nil {
		h.error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rotationView{
		Fingerprint:   res.Fingerprint,
		RotatedAt:     res.RotatedAt,
		RotationCount: res.RotationCount,
		Emergency:     res.Emergency,
	})
}

func (h *handlers) error(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authlife.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, authlife.ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
	case errors.Is(err, authlife.ErrSessionPersistence):
		h.logger.Error("session store failure", "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
