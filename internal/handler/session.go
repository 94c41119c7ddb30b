package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/convobench/inbenta-relay-go/internal/config"
	"github.com/convobench/inbenta-relay-go/internal/connector"
	apperrors "github.com/convobench/inbenta-relay-go/internal/errors"
	"github.com/convobench/inbenta-relay-go/internal/httputil"
	"github.com/convobench/inbenta-relay-go/internal/model"
)

// SessionHandler exposes connector sessions to the test harness: one
// session per conversation, turns in, normalized bot messages out.
type SessionHandler struct {
	cfg      *config.Config
	registry *connector.Registry
	options  connector.Options
}

func NewSessionHandler(cfg *config.Config, registry *connector.Registry, options connector.Options) *SessionHandler {
	return &SessionHandler{
		cfg:      cfg,
		registry: registry,
		options:  options,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Post("/{sessionID}/messages", h.SendMessage)
	r.Get("/{sessionID}/messages", h.GetMessages)
	r.Delete("/{sessionID}", h.DeleteSession)

	return r
}

type createSessionResponse struct {
	SessionID string             `json:"sessionId"`
	Messages  []model.BotMessage `json:"messages"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c := connector.New(h.cfg, h.options)
	if err := c.Start(ctx); err != nil {
		log.Error().Err(err).Msg("failed to start session")
		httputil.WriteError(w, err)
		return
	}

	session := h.registry.Add(c)
	log.Info().Str("session_id", session.ID).Msg("session created")

	httputil.WriteJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: session.ID,
		Messages:  drained(c),
	})
}

type sendMessageResponse struct {
	Messages []model.BotMessage `json:"messages"`
}

// POST /v1/sessions/{sessionID}/messages
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	session := h.registry.Get(chi.URLParam(r, "sessionID"))
	if session == nil {
		httputil.WriteError(w, apperrors.NotFound("session"))
		return
	}
	session.Touch()

	var msg model.UserMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("message body", "malformed JSON"))
		return
	}

	if err := session.Connector.UserSays(r.Context(), msg); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to process turn")
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, sendMessageResponse{Messages: drained(session.Connector)})
}

// GET /v1/sessions/{sessionID}/messages
func (h *SessionHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	session := h.registry.Get(chi.URLParam(r, "sessionID"))
	if session == nil {
		httputil.WriteError(w, apperrors.NotFound("session"))
		return
	}
	session.Touch()

	httputil.WriteJSON(w, http.StatusOK, sendMessageResponse{Messages: drained(session.Connector)})
}

// DELETE /v1/sessions/{sessionID}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	session := h.registry.Remove(chi.URLParam(r, "sessionID"))
	if session == nil {
		httputil.WriteError(w, apperrors.NotFound("session"))
		return
	}

	log.Info().Str("session_id", session.ID).Msg("session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// drained never returns nil so the JSON field is always an array.
func drained(c *connector.Connector) []model.BotMessage {
	messages := c.Drain()
	if messages == nil {
		messages = []model.BotMessage{}
	}
	return messages
}
