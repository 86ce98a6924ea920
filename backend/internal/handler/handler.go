package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gallery-dev/gallery/backend/internal/service"
	"github.com/gallery-dev/gallery/shared/config"
	"github.com/gallery-dev/gallery/shared/domain"
	"github.com/gallery-dev/gallery/shared/logger"
)

// SessionIssuer turns auth results into the tokens handed to the client.
type SessionIssuer interface {
	Issue(user domain.UserSummary, refreshToken string, refreshExpires time.Time) (domain.Session, error)
	IssueAccess(user domain.UserSummary) (domain.Session, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	auth     service.AuthService
	sessions SessionIssuer
	health   HealthChecker
	cfg      *config.Config
}

func New(auth service.AuthService, sessions SessionIssuer, health HealthChecker, cfg *config.Config) *Handler {
	return &Handler{
		auth:     auth,
		sessions: sessions,
		health:   health,
		cfg:      cfg,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Log.Error("failed to encode response", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
