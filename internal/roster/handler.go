package roster

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hotwellkz/app122/internal/account"
	"github.com/hotwellkz/app122/internal/platform/httpx"
	"github.com/hotwellkz/app122/internal/shared"
	"github.com/hotwellkz/app122/internal/view"
)

// Handler wires the user roster screen: live listing with search, the
// guarded deletion flow, and the snapshot stream.
type Handler struct {
	logger     *slog.Logger
	sync       *Synchronizer
	controller *account.Controller
	templates  *view.Engine
	csrf       *shared.CSRFManager
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, sync *Synchronizer, controller *account.Controller, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:     logger,
		sync:       sync,
		controller: controller,
		templates:  templates,
		csrf:       csrf,
	}
}

// MountRoutes registers roster routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Get("/stream", h.stream)
	r.Post("/resubscribe", h.resubscribe)
	r.Post("/{id}/delete", h.requestDelete)
	r.Post("/{id}/cancel", h.cancelDelete)
	r.Post("/{id}/destroy", h.confirmDelete)
}

type listPageData struct {
	Records  []UserRecord
	Query    string
	Degraded bool
	LastSync time.Time
}

type confirmPageData struct {
	Target UserRecord
	Error  string
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	data := listPageData{
		Records:  h.sync.Filter(q),
		Query:    q,
		Degraded: h.sync.Err() != nil,
		LastSync: h.sync.LastSync(),
	}
	h.render(w, r, "pages/users/list.html", data, http.StatusOK)
}

// stream pushes roster snapshots as Server-Sent Events. One watcher per
// connection; teardown releases it.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Streaming Unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snaps, cancel := h.sync.Watch()
	defer cancel()

	// Prime the stream with the current backing set so the client does not
	// wait for the next change.
	h.writeEvent(w, Snapshot{Records: h.sync.Filter(""), Taken: h.sync.LastSync()})
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			h.writeEvent(w, snap)
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, snap Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error("encode snapshot", slog.Any("error", err))
		return
	}
	_, _ = w.Write([]byte("event: roster\ndata: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}

// resubscribe is the explicit retry after a subscription failure. Start
// tears down any previous subscription before opening the new one.
func (h *Handler) resubscribe(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.sync.Start(context.WithoutCancel(r.Context())); err != nil {
		h.logger.Error("resubscribe", slog.Any("error", err))
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: "Live feed is still unavailable."})
		}
	} else if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Live feed restored."})
	}
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

// requestDelete captures the deletion intent and shows the confirmation
// prompt. The backend is not touched until the operator re-authenticates.
func (h *Handler) requestDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target, ok := h.sync.Find(id)
	if !ok {
		h.redirectWithFlash(w, r, shared.FlashError, shared.UserSafeMessage(shared.ErrNotFound))
		return
	}
	if err := h.controller.RequestDelete(shared.CurrentUserID(r.Context()), account.DeleteTarget{ID: target.ID, Email: target.Email}); err != nil {
		h.redirectWithFlash(w, r, shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	h.render(w, r, "pages/users/confirm_delete.html", confirmPageData{Target: target}, http.StatusOK)
}

func (h *Handler) cancelDelete(w http.ResponseWriter, r *http.Request) {
	h.controller.Cancel()
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

func (h *Handler) confirmDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	// The intent may have been lost (restart, concurrent cancel); recapture
	// it so the confirmation still points at the posted target.
	pending := h.controller.Pending()
	if pending == nil || pending.TargetID != id {
		h.controller.Cancel()
		target, ok := h.sync.Find(id)
		if !ok {
			h.redirectWithFlash(w, r, shared.FlashError, shared.UserSafeMessage(shared.ErrNotFound))
			return
		}
		if err := h.controller.RequestDelete(shared.CurrentUserID(r.Context()), account.DeleteTarget{ID: target.ID, Email: target.Email}); err != nil {
			h.redirectWithFlash(w, r, shared.FlashError, shared.UserSafeMessage(err))
			return
		}
	}

	sess := shared.SessionFromContext(r.Context())
	proof := r.PostFormValue("password")
	err := h.controller.Confirm(r.Context(), proof, shared.FlashNotifier{Sess: sess})
	if errors.Is(err, account.ErrAuthenticationDeclined) {
		// The prompt carries its own inline feedback; no flash is queued.
		target, ok := h.sync.Find(id)
		if !ok {
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}
		h.render(w, r, "pages/users/confirm_delete.html", confirmPageData{Target: target, Error: "Password not recognised. Account was not deleted."}, http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}
