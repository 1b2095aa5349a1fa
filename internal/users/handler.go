package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusworks/campusworks/internal/platform/httpx"
	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	mw        rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermUsersView))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermUsersInvite))
		r.Post("/invites", h.invite)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermUsersEdit))
		r.Put("/{userID}/system-roles", h.setSystemRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermUsersDelete))
		r.Delete("/{userID}", h.softDelete)
		r.Delete("/{userID}/hard", h.hardDelete)
	})
}

// MountPublicRoutes registers routes reached before an actor exists:
// invite acceptance and the identity-provider webhook.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/invites/{inviteID}/accept", h.acceptInvite)
	r.Post("/identity/webhook", h.identityWebhook)
}

type userResponse struct {
	ID             int64    `json:"id"`
	Subject        string   `json:"subject"`
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	OrganisationID int64    `json:"organisation_id"`
	SystemRoles    []string `json:"system_roles"`
}

func toUserResponse(user User) userResponse {
	return userResponse{
		ID:             user.ID,
		Subject:        user.Subject,
		Email:          user.Email,
		Name:           user.Name,
		OrganisationID: user.OrganisationID,
		SystemRoles:    user.SystemRoles,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	result, err := h.service.List(r.Context(), actor.OrganisationID)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]userResponse, 0, len(result))
	for _, user := range result {
		out = append(out, toUserResponse(user))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type inviteForm struct {
	Email  string `json:"email" validate:"required,email"`
	RoleID int64  `json:"role_id" validate:"required,gt=0"`
}

type inviteResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	var form inviteForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	invite, token, err := h.service.Invite(r.Context(), form.Email, actor.OrganisationID, form.RoleID, actor.UserID)
	if err != nil {
		h.logger.Error("create invite", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	// The plaintext token appears exactly once, here; only its hash is
	// stored.
	httpx.JSON(w, http.StatusCreated, inviteResponse{
		ID:        invite.ID,
		Email:     invite.Email,
		Token:     token,
		ExpiresAt: invite.ExpiresAt,
	})
}

type acceptInviteForm struct {
	Token   string `json:"token" validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Name    string `json:"name" validate:"required,max=200"`
}

func (h *Handler) acceptInvite(w http.ResponseWriter, r *http.Request) {
	inviteID, err := strconv.ParseInt(chi.URLParam(r, "inviteID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invite id")
		return
	}
	var form acceptInviteForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.AcceptInvite(r.Context(), inviteID, form.Token, form.Subject, form.Name)
	if err != nil {
		if errors.Is(err, ErrInviteInvalid) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "invite invalid or expired")
			return
		}
		h.logger.Error("accept invite", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

type identityWebhookForm struct {
	Subject        string `json:"subject" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Name           string `json:"name" validate:"max=200"`
	OrganisationID int64  `json:"organisation_id" validate:"required,gt=0"`
}

func (h *Handler) identityWebhook(w http.ResponseWriter, r *http.Request) {
	var form identityWebhookForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.UpsertFromIdentity(r.Context(), form.Subject, form.Email, form.Name, form.OrganisationID)
	if err != nil {
		h.logger.Error("identity webhook", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

type systemRolesForm struct {
	SystemRoles []string `json:"system_roles" validate:"dive,min=1"`
}

func (h *Handler) setSystemRoles(w http.ResponseWriter, r *http.Request) {
	// Granting bypass tags escalates privilege; only a system user may do
	// it, regardless of organisation permissions.
	actor, _ := rbac.ActorFromContext(r.Context())
	if !actor.IsSystemUser() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var form systemRolesForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.service.SetSystemRoles(r.Context(), userID, form.SystemRoles); err != nil {
		h.respondStoreError(w, "set system roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteUser(w, r, "soft delete user", h.service.SoftDelete)
}

func (h *Handler) hardDelete(w http.ResponseWriter, r *http.Request) {
	// Hard delete is reserved for system users; the default lifecycle is
	// soft delete.
	actor, _ := rbac.ActorFromContext(r.Context())
	if !actor.IsSystemUser() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		return
	}
	h.deleteUser(w, r, "hard delete user", h.service.HardDelete)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, id int64) error) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	if err := fn(r.Context(), userID); err != nil {
		h.respondStoreError(w, action, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondStoreError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
		return
	}
	h.logger.Error(action, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
