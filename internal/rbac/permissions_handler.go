package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusworks/campusworks/internal/platform/httpx"
	"github.com/campusworks/campusworks/internal/shared"
)

// PushEnqueuer submits a push-defaults run to the background queue.
type PushEnqueuer interface {
	EnqueuePushDefaults(ctx context.Context, permissionID string) error
}

// PermissionsHandler manages the system permission catalog.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	enqueuer  PushEnqueuer
	mw        Middleware
	validator *validator.Validate
}

// NewPermissionsHandler builds a PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, enqueuer PushEnqueuer, mw Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, enqueuer: enqueuer, mw: mw, validator: validator.New()}
}

// MountRoutes registers permission catalog routes. Catalog writes are
// system-administrator territory and gated on permissions.manage.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermPermissionsView, shared.PermPermissionsManage))
		r.Get("/", h.listEntries)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermPermissionsManage))
		r.Put("/{permissionID}", h.upsertEntry)
		r.Delete("/{permissionID}", h.softDeleteEntry)
		r.Delete("/{permissionID}/force", h.forceDeleteEntry)
		r.Post("/{permissionID}/push", h.pushDefaults)
	})
}

type catalogEntryResponse struct {
	ID           string   `json:"id"`
	Group        string   `json:"group"`
	Description  string   `json:"description"`
	DefaultRoles []string `json:"default_roles"`
	Scope        string   `json:"scope"`
	IsActive     bool     `json:"is_active"`
}

func (h *PermissionsHandler) listEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Catalog().ListEntries(r.Context())
	if err != nil {
		h.logger.Error("list catalog", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]catalogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, catalogEntryResponse{
			ID:           entry.ID,
			Group:        entry.Group,
			Description:  entry.Description,
			DefaultRoles: entry.DefaultRoles,
			Scope:        entry.Scope,
			IsActive:     entry.IsActive,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type catalogEntryForm struct {
	Group        string   `json:"group" validate:"required,max=120"`
	Description  string   `json:"description" validate:"max=500"`
	DefaultRoles []string `json:"default_roles" validate:"dive,min=1"`
	Scope        string   `json:"scope" validate:"omitempty,oneof=organisation system"`
}

func (h *PermissionsHandler) upsertEntry(w http.ResponseWriter, r *http.Request) {
	permissionID := chi.URLParam(r, "permissionID")
	var form catalogEntryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.Catalog().Upsert(r.Context(), SystemPermission{
		ID:           permissionID,
		Group:        form.Group,
		Description:  form.Description,
		DefaultRoles: form.DefaultRoles,
		Scope:        form.Scope,
	})
	if err != nil {
		h.logger.Error("upsert catalog entry", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionsHandler) softDeleteEntry(w http.ResponseWriter, r *http.Request) {
	h.deleteEntry(w, r, h.service.Catalog().SoftDelete)
}

func (h *PermissionsHandler) forceDeleteEntry(w http.ResponseWriter, r *http.Request) {
	h.deleteEntry(w, r, h.service.Catalog().ForceDelete)
}

func (h *PermissionsHandler) deleteEntry(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	permissionID := chi.URLParam(r, "permissionID")
	if err := fn(r.Context(), permissionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown permission id")
			return
		}
		h.logger.Error("delete catalog entry", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionsHandler) pushDefaults(w http.ResponseWriter, r *http.Request) {
	permissionID := chi.URLParam(r, "permissionID")
	if h.enqueuer == nil {
		// No worker wired: run synchronously.
		report, err := h.service.PushPermissionToOrganisations(r.Context(), permissionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown permission id")
				return
			}
			h.logger.Error("push defaults", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		httpx.JSON(w, http.StatusOK, report)
		return
	}
	if err := h.enqueuer.EnqueuePushDefaults(r.Context(), permissionID); err != nil {
		h.logger.Error("enqueue push defaults", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
