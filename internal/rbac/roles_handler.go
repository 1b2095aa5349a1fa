package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusworks/campusworks/internal/platform/httpx"
	"github.com/campusworks/campusworks/internal/shared"
)

// RolesHandler manages role and assignment endpoints.
type RolesHandler struct {
	logger    *slog.Logger
	service   *Service
	mw        Middleware
	validator *validator.Validate
}

// NewRolesHandler builds a RolesHandler instance.
func NewRolesHandler(logger *slog.Logger, service *Service, mw Middleware) *RolesHandler {
	return &RolesHandler{logger: logger, service: service, mw: mw, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *RolesHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermRolesView))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Put("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
		r.Put("/assignments/{userID}", h.assignRoles)
	})
}

type roleResponse struct {
	ID             int64    `json:"id"`
	OrganisationID int64    `json:"organisation_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Permissions    []string `json:"permissions"`
	IsDefault      bool     `json:"is_default"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:             role.ID,
		OrganisationID: role.OrganisationID,
		Name:           role.Name,
		Description:    role.Description,
		Permissions:    role.Permissions,
		IsDefault:      role.IsDefault,
	}
}

func (h *RolesHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	roles, err := h.service.ListRoles(r.Context(), actor.OrganisationID)
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *RolesHandler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	if !actor.IsSystemUser() && role.OrganisationID != actor.OrganisationID {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

type roleForm struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"dive,min=1"`
}

func (h *RolesHandler) createRole(w http.ResponseWriter, r *http.Request) {
	var form roleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := ActorFromContext(r.Context())
	role, err := h.service.CreateRole(r.Context(), actor.OrganisationID, form.Name, form.Description, form.Permissions, false)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *RolesHandler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var form roleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, form.Name, form.Description, form.Permissions)
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *RolesHandler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if err := h.service.SoftDeleteRole(r.Context(), id); err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignForm struct {
	RoleIDs []int64 `json:"role_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *RolesHandler) assignRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var form assignForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := ActorFromContext(r.Context())
	if err := h.service.AssignMultiple(r.Context(), userID, form.RoleIDs, actor.UserID); err != nil {
		h.respondError(w, "assign roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RolesHandler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
	case errors.Is(err, ErrDuplicateRoleName):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "role name already in use")
	case errors.Is(err, ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", "role still has active assignments")
	case errors.Is(err, ErrRoleInactiveOrMissing),
		errors.Is(err, ErrUserNotInOrganisation),
		errors.Is(err, ErrCrossOrganisationRoleSet):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrPermissionDenied):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}
