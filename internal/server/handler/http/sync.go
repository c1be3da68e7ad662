// Package http provides the HTTP adapter over the synchronization engine,
// mapping the engine's error taxonomy onto status codes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/studentlink/portalsync/internal/models"
)

// SyncService defines the orchestration operations required by the handlers.
type SyncService interface {
	// PerformFullSync runs one full synchronization pass for the user.
	PerformFullSync(ctx context.Context, userID, password string) (*models.SyncResult, error)
	// ChangePassword runs the portal password-change flow.
	ChangePassword(ctx context.Context, userID, current, newPassword string) (bool, error)
}

// SyncHandler handles HTTP requests for synchronization and password changes.
type SyncHandler struct {
	// SyncService performs the underlying orchestration.
	SyncService SyncService
	// Logger records request outcomes.
	Logger *zap.Logger
}

// SyncRequest represents the JSON payload for a full sync.
type SyncRequest struct {
	// UserID is the portal student number.
	UserID string `json:"userId"`
	// Password is the portal password, used only when a handshake is needed.
	Password string `json:"password"`
}

// ChangePasswordRequest represents the JSON payload for a password change.
type ChangePasswordRequest struct {
	// UserID is the portal student number.
	UserID string `json:"userId"`
	// Current is the current portal password.
	Current string `json:"current"`
	// New is the desired portal password.
	New string `json:"new"`
}

// Sync runs a full synchronization pass. Authentication failures map to 401,
// cooldown to 429, a concurrently held handshake lock to 503, an unrecognized
// portal page to 502, and deadline expiry to 504.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	result, err := h.SyncService.PerformFullSync(r.Context(), req.UserID, req.Password)
	if err != nil {
		h.writeError(w, req.UserID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// ChangePassword runs the portal password-change flow.
func (h *SyncHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.New == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	ok, err := h.SyncService.ChangePassword(r.Context(), req.UserID, req.Current, req.New)
	if err != nil {
		h.writeError(w, req.UserID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"changed": ok})
}

func (h *SyncHandler) writeError(w http.ResponseWriter, userID string, err error) {
	var parseErr *models.ParseError
	switch {
	case errors.Is(err, models.ErrAuthentication):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, models.ErrLockedOut):
		http.Error(w, "too many failed logins, try again later", http.StatusTooManyRequests)
	case errors.Is(err, models.ErrBusy):
		http.Error(w, "sync already in progress, try again shortly", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "portal timed out", http.StatusGatewayTimeout)
	case errors.As(err, &parseErr):
		// A missing structural marker means the portal changed its markup,
		// not that the engine is broken.
		h.Logger.Warn("portal page unrecognized", zap.String("user", userID), zap.Error(err))
		http.Error(w, "portal page unrecognized", http.StatusBadGateway)
	default:
		h.Logger.Error("sync failed", zap.String("user", userID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
