//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/orderdesk/internal/catalog"
	"github.com/ashureev/orderdesk/internal/domain"
	"github.com/ashureev/orderdesk/internal/support"
	"github.com/ashureev/orderdesk/internal/transcript"
	"github.com/go-chi/chi/v5"
)

// TranscriptReader reads back recorded transcript events.
type TranscriptReader interface {
	Session(ctx context.Context, sessionID string) ([]transcript.Event, error)
}

// ChatHandler exposes the conversation service over HTTP.
type ChatHandler struct {
	svc         *support.Service
	cat         *catalog.Catalog
	maxBody     int64
	logger      *slog.Logger
	transcripts TranscriptReader
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(svc *support.Service, cat *catalog.Catalog, maxBody int64, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{svc: svc, cat: cat, maxBody: maxBody, logger: logger}
}

// SetTranscriptReader enables GET /api/conversations/{id}/transcript.
// Call it before RegisterRoutes.
func (h *ChatHandler) SetTranscriptReader(tr TranscriptReader) {
	h.transcripts = tr
}

// RegisterRoutes mounts the chat API.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)
		r.Post("/conversations", h.StartConversation)
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", h.GetConversation)
			r.Post("/messages", h.PostMessage)
			r.Post("/payment", h.SelectPayment)
			r.Post("/followups", h.DeliverFollowup)
			if h.transcripts != nil {
				r.Get("/transcript", h.GetTranscript)
			}
		})
	})
}

type categoryView struct {
	Label     domain.Category   `json:"label"`
	Directive catalog.Directive `json:"directive"`
}

type startRequest struct {
	Category string `json:"category"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type paymentRequest struct {
	Option string `json:"option"`
}

type followupResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Remaining int    `json:"remaining"`
}

// ListCategories returns the help-screen categories with their directives.
func (h *ChatHandler) ListCategories(w http.ResponseWriter, _ *http.Request) {
	cats := domain.Categories()
	views := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		entry, err := h.cat.Entry(c)
		if err != nil {
			continue
		}
		views = append(views, categoryView{Label: c, Directive: entry.Directive})
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"categories":      views,
		"payment_options": h.cat.PaymentLabels(),
	})
}

// StartConversation opens a conversation for the chosen category.
func (h *ChatHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Start(r.Context(), domain.Category(strings.TrimSpace(req.Category)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, res)
}

// GetConversation returns the conversation state and history.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Conversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, conv)
}

// PostMessage forwards a free-text input or button label.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := h.svc.Process(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		h.failWith(w, r, err, res)
		return
	}
	JSON(w, http.StatusOK, res)
}

// SelectPayment applies a payment option button.
func (h *ChatHandler) SelectPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Option) == "" {
		Error(w, http.StatusBadRequest, "option is required")
		return
	}

	res, err := h.svc.SelectPayment(r.Context(), chi.URLParam(r, "id"), req.Option)
	if err != nil {
		h.failWith(w, r, err, res)
		return
	}
	JSON(w, http.StatusOK, res)
}

// DeliverFollowup returns the next message the conversation owes once the
// caller's pause has elapsed. The request body is ignored.
func (h *ChatHandler) DeliverFollowup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	text, err := h.svc.Followup(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	remaining, err := h.svc.Pending(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, followupResponse{SessionID: id, Message: text, Remaining: remaining})
}

// GetTranscript returns the audit events recorded for a conversation.
func (h *ChatHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Conversation(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.transcripts.Session(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"events":     events,
	})
}

func (h *ChatHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	logFailure(h.logger, r, status, err)
	Error(w, status, err.Error())
}

// failWith writes the structured failure result produced by the service.
func (h *ChatHandler) failWith(w http.ResponseWriter, r *http.Request, err error, res support.Result) {
	status := StatusFor(err)
	logFailure(h.logger, r, status, err)
	if res.Error == "" {
		res = support.Failure(chi.URLParam(r, "id"), err)
	}
	JSON(w, status, res)
}
