package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hotwellkz/app122/internal/shared"
	"github.com/hotwellkz/app122/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type registerForm struct {
	Email       string `validate:"required,email"`
	DisplayName string `validate:"max=80"`
	Password    string `validate:"required,min=8"`
}

type authPageData struct {
	LoginForm    loginForm
	RegisterForm registerForm
	Errors       map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "pages/login.html", "Sign in", authPageData{}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errs[fieldErr.Field()] = fieldErr.Error()
		}
	}

	if len(errs) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err != nil {
			errs["general"] = "Email or password is incorrect"
		} else {
			h.establishSession(w, r, sess, user)
			return
		}
	}

	h.renderPage(w, r, "pages/login.html", "Sign in", authPageData{LoginForm: form, Errors: errs}, http.StatusBadRequest)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "pages/register.html", "Create account", authPageData{}, http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := registerForm{
		Email:       r.PostFormValue("email"),
		DisplayName: r.PostFormValue("display_name"),
		Password:    r.PostFormValue("password"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errs[fieldErr.Field()] = fieldErr.Error()
		}
	}

	if len(errs) == 0 {
		user, err := h.service.Register(r.Context(), form.Email, form.DisplayName, form.Password)
		if err != nil {
			errs["general"] = shared.UserSafeMessage(err)
		} else {
			h.establishSession(w, r, sess, user)
			return
		}
	}

	h.renderPage(w, r, "pages/register.html", "Create account", authPageData{RegisterForm: form, Errors: errs}, http.StatusBadRequest)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) establishSession(w http.ResponseWriter, r *http.Request, sess *shared.Session, user *User) {
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	sess.SetUser(user.ID)
	sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Welcome back"})
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, template, title string, data authPageData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render auth page", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
