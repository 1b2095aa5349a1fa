package organisations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusworks/campusworks/internal/platform/httpx"
	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	mw        rbac.Middleware
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validator: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermOrganisationsView))
		r.Get("/", h.list)
		r.Get("/{orgID}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermOrganisationsEdit))
		r.Post("/", h.create)
		r.Put("/{orgID}", h.rename)
		r.Delete("/{orgID}", h.softDelete)
	})
}

type organisationResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func toResponse(org Organisation) organisationResponse {
	return organisationResponse{ID: org.ID, Name: org.Name, Active: org.IsActive}
}

type organisationForm struct {
	Name string `json:"name" validate:"required,min=2,max=200"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.service.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list organisations", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]organisationResponse, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, toResponse(org))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathOrgID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid organisation id")
		return
	}
	org, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get organisation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(org))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	// Creating an organisation is a system-level act: it seeds the default
	// role set for the new tenant.
	actor, _ := rbac.ActorFromContext(r.Context())
	if !actor.IsSystemUser() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	var form organisationForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	org, err := h.service.Create(r.Context(), form.Name)
	if err != nil {
		h.respondError(w, "create organisation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(org))
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	id, err := pathOrgID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid organisation id")
		return
	}
	var form organisationForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	org, err := h.service.Rename(r.Context(), id, form.Name)
	if err != nil {
		h.respondError(w, "rename organisation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(org))
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	if !actor.IsSystemUser() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	id, err := pathOrgID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid organisation id")
		return
	}
	if err := h.service.SoftDelete(r.Context(), id); err != nil {
		h.respondError(w, "delete organisation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "organisation not found")
		return
	}
	h.logger.Error(action, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func pathOrgID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
}
