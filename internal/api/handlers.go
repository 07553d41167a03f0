// Package api exposes HTTP handlers for the activity sign-up service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /activities", h.listActivities)
	mux.HandleFunc("POST /activities/{activityName}/signup", h.signUp)
	mux.HandleFunc("DELETE /activities/{activityName}/unregister", h.unregister)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /{$}", rootRedirect)

	// Method-less patterns are less specific, so they only get methods the routes above do not handle.
	mux.HandleFunc("/activities", methodNotAllowed(http.MethodGet, http.MethodHead))
	mux.HandleFunc("/activities/{activityName}/signup", methodNotAllowed(http.MethodPost))
	mux.HandleFunc("/activities/{activityName}/unregister", methodNotAllowed(http.MethodDelete))
}

// RegisterStatic serves the front-end bundle from dir under /static/.
func RegisterStatic(mux *http.ServeMux, dir string) {
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
}

// healthz reports OK along with the repository serving requests.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": h.service.Backend(),
	})
}

// rootRedirect points at the directory so FileServer serves index.html without
// a second redirect.
func rootRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/static/", http.StatusTemporaryRedirect)
}

func methodNotAllowed(allowed ...string) http.HandlerFunc {
	allow := strings.Join(allowed, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.service.ListActivities(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	activityName := r.PathValue("activityName")
	email, err := emailParam(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	msg, err := h.service.SignUp(r.Context(), activityName, email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func (h *Handler) unregister(w http.ResponseWriter, r *http.Request) {
	activityName := r.PathValue("activityName")
	email, err := emailParam(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	msg, err := h.service.Unregister(r.Context(), activityName, email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// MessageResponse is the body returned by signup and unregister.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body returned for every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func emailParam(r *http.Request) (string, error) {
	values, ok := r.URL.Query()["email"]
	if !ok || len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", errors.New("email query parameter is required")
	}
	if len(values) > 1 {
		return "", errors.New("email query parameter must be given once")
	}

	email := strings.TrimSpace(values[0])
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.New("email query parameter is not a valid address")
	}
	return email, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "Activity not found")
	case errors.Is(err, domain.ErrAlreadySignedUp):
		writeError(w, http.StatusBadRequest, "Student is already signed up")
	case errors.Is(err, domain.ErrActivityFull):
		writeError(w, http.StatusBadRequest, "Activity is full")
	case errors.Is(err, domain.ErrNotSignedUp):
		writeError(w, http.StatusBadRequest, "Student is not signed up for this activity")
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusBadGateway, "Activity store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
