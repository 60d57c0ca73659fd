package account

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hotwellkz/app122/internal/shared"
	"github.com/hotwellkz/app122/internal/view"
)

// Handler wires the self-service profile screen.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	controller *Controller
	templates  *view.Engine
	csrf       *shared.CSRFManager
	validator  *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, controller *Controller, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		controller: controller,
		templates:  templates,
		csrf:       csrf,
		validator:  validator.New(),
	}
}

// MountRoutes registers profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showProfile)
	r.Post("/", h.updateProfile)
	r.Post("/password", h.changePassword)
}

type profileForm struct {
	DisplayName string `validate:"required,max=80"`
}

type passwordForm struct {
	Current string `validate:"required"`
	New     string `validate:"required,min=8"`
	Confirm string `validate:"required"`
}

type formErrors map[string]string

type profilePageData struct {
	Account *Account
	Form    profileForm
	Errors  formErrors
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	uid := shared.CurrentUserID(r.Context())
	acct, err := h.service.Account(r.Context(), uid)
	if err != nil {
		h.logger.Error("load profile", slog.Any("error", err))
		h.render(w, r, profilePageData{Errors: formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, profilePageData{Account: acct, Form: profileForm{DisplayName: acct.DisplayName}}, http.StatusOK)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	uid := shared.CurrentUserID(r.Context())
	form := profileForm{DisplayName: r.PostFormValue("display_name")}

	if err := h.validator.Struct(form); err != nil {
		errs := formErrors{}
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errs[fieldErr.Field()] = fieldErr.Error()
		}
		acct, _ := h.service.Account(r.Context(), uid)
		h.render(w, r, profilePageData{Account: acct, Form: form, Errors: errs}, http.StatusBadRequest)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if err := h.controller.UpdateProfile(r.Context(), uid, form.DisplayName, shared.FlashNotifier{Sess: sess}); err != nil {
		h.logger.Warn("update profile rejected", slog.Any("error", err))
	}
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	uid := shared.CurrentUserID(r.Context())
	form := passwordForm{
		Current: r.PostFormValue("current_password"),
		New:     r.PostFormValue("new_password"),
		Confirm: r.PostFormValue("confirm_password"),
	}

	if err := h.validator.Struct(form); err != nil {
		errs := formErrors{}
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errs[fieldErr.Field()] = fieldErr.Error()
		}
		acct, _ := h.service.Account(r.Context(), uid)
		h.render(w, r, profilePageData{Account: acct, Errors: errs}, http.StatusBadRequest)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if err := h.controller.ChangePassword(r.Context(), uid, form.Current, form.New, form.Confirm, shared.FlashNotifier{Sess: sess}); err != nil {
		h.logger.Warn("change password rejected", slog.Any("error", err))
	}
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data profilePageData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Profile", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/profile.html", viewData); err != nil {
		h.logger.Error("render profile", slog.Any("error", err))
	}
}
