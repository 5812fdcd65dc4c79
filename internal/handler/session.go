package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/refactorly/console/internal/model"
	"github.com/refactorly/console/internal/session"
)

type sessionResponse struct {
	Phase      string      `json:"phase"`
	LoggingOut bool        `json:"logging_out"`
	User       *model.User `json:"user,omitempty"`
}

type SessionHandler struct {
	store *session.Store
}

func NewSessionHandler(store *session.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

// State reports the live session state. Loading pages and the logout
// overlay poll it.
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	st := h.store.State()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	err := json.NewEncoder(w).Encode(sessionResponse{
		Phase:      st.Phase.String(),
		LoggingOut: st.LoggingOut,
		User:       st.User,
	})
	if err != nil {
		slog.Error("failed to encode session state", "error", err)
	}
}
