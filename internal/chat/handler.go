package chat

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clinicdesk/appointmentbot/internal/dialog"
	"github.com/clinicdesk/appointmentbot/internal/identity"
	"github.com/clinicdesk/appointmentbot/pkg/logging"
)

// Dialog is the orchestration surface the webhook drives.
type Dialog interface {
	Handle(ctx context.Context, profile identity.Profile, input dialog.Input) (dialog.Outcome, error)
}

// InboundMessage is one user message delivered by the chat platform bridge.
type InboundMessage struct {
	UserID      int64  `json:"user_id"`
	ChatID      int64  `json:"chat_id"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Text        string `json:"text"`
	PromptToken string `json:"prompt_token,omitempty"`
}

// OutboundChoice is one option the bridge should render as a button.
type OutboundChoice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// OutboundMessage is the reply the bridge renders back to the user.
type OutboundMessage struct {
	Kind        string           `json:"kind"` // "prompt", "notice", "result"
	Text        string           `json:"text"`
	Choices     []OutboundChoice `json:"choices,omitempty"`
	PromptToken string           `json:"prompt_token,omitempty"`
	AllowBack   bool             `json:"allow_back,omitempty"`
}

// Handler is the inbound webhook for the chat platform bridge.
type Handler struct {
	dialog Dialog
	token  string
	logger *logging.Logger
}

// NewHandler creates the webhook handler. token guards the endpoint; an empty
// token disables the check (local runs only).
func NewHandler(d Dialog, token string, logger *logging.Logger) *Handler {
	if d == nil {
		panic("chat: dialog cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dialog: d, token: token, logger: logger}
}

// Routes mounts the webhook endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/webhook/message", h.handleMessage)
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var msg InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if msg.UserID == 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	profile := identity.Profile{
		PlatformUserID: msg.UserID,
		ChatID:         msg.ChatID,
		Username:       msg.Username,
		FirstName:      msg.FirstName,
		LastName:       msg.LastName,
	}
	outcome, err := h.dialog.Handle(r.Context(), profile, dialog.Input{
		Text:        msg.Text,
		PromptToken: msg.PromptToken,
	})
	if err != nil {
		h.logger.Error("dialog handling failed", "user_id", msg.UserID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toOutbound(outcome))
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got := r.Header.Get("X-Webhook-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

func toOutbound(outcome dialog.Outcome) OutboundMessage {
	out := OutboundMessage{Kind: string(outcome.Kind), Text: outcome.Text}
	if outcome.Prompt != nil {
		out.Text = outcome.Prompt.Text
		if outcome.Prompt.Error != "" {
			out.Text = outcome.Prompt.Error + "\n" + out.Text
		}
		out.PromptToken = outcome.Prompt.Token
		out.AllowBack = outcome.Prompt.AllowBack
		for _, c := range outcome.Prompt.Choices {
			out.Choices = append(out.Choices, OutboundChoice{ID: c.ID, Label: c.Label})
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
