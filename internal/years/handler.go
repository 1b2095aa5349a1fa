package years

import (
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

// Handler manages academic year endpoints. Authorization happens in the
// service against each year's lifecycle state, so routes carry no blanket
// permission middleware.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers academic year routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{yearID}", h.get)
	r.Put("/{yearID}", h.update)
	r.Post("/{yearID}/publish", h.publish)
	r.Post("/{yearID}/archive", h.archive)
	r.Post("/{yearID}/staging", h.setStaging)
	r.Post("/{yearID}/default", h.setDefault)
	r.Delete("/{yearID}", h.delete)
}

type yearResponse struct {
	ID             int64     `json:"id"`
	OrganisationID int64     `json:"organisation_id"`
	Name           string    `json:"name"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Status         Status    `json:"status"`
	Staging        bool      `json:"staging"`
	State          State     `json:"state"`
	IsDefault      bool      `json:"is_default"`
}

func toYearResponse(year AcademicYear) yearResponse {
	return yearResponse{
		ID:             year.ID,
		OrganisationID: year.OrganisationID,
		Name:           year.Name,
		StartDate:      year.StartDate,
		EndDate:        year.EndDate,
		Status:         year.Status,
		Staging:        year.Staging,
		State:          year.LifecycleState(),
		IsDefault:      year.IsDefault,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	organisationID := actor.OrganisationID
	if raw := r.URL.Query().Get("organisation_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid organisation id")
			return
		}
		organisationID = parsed
	}
	result, err := h.service.List(r.Context(), actor, organisationID)
	if err != nil {
		h.respondError(w, "list years", err)
		return
	}
	out := make([]yearResponse, 0, len(result))
	for _, year := range result {
		out = append(out, toYearResponse(year))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createYearForm struct {
	Name      string    `json:"name" validate:"required,max=120"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var form createYearForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	year, err := h.service.Create(r.Context(), actor, CreateInput{
		OrganisationID: actor.OrganisationID,
		Name:           form.Name,
		StartDate:      form.StartDate,
		EndDate:        form.EndDate,
	})
	if err != nil {
		h.respondError(w, "create year", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toYearResponse(year))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	h.withYear(w, r, "get year", func(actor rbac.Actor, id int64) (AcademicYear, error) {
		return h.service.Get(r.Context(), actor, id)
	})
}

type updateYearForm struct {
	Name      string    `json:"name" validate:"omitempty,max=120"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var form updateYearForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.withYear(w, r, "update year", func(actor rbac.Actor, id int64) (AcademicYear, error) {
		return h.service.Update(r.Context(), actor, id, UpdateInput{
			Name:      form.Name,
			StartDate: form.StartDate,
			EndDate:   form.EndDate,
		})
	})
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	h.withYear(w, r, "publish year", func(actor rbac.Actor, id int64) (AcademicYear, error) {
		return h.service.Publish(r.Context(), actor, id)
	})
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.withYear(w, r, "archive year", func(actor rbac.Actor, id int64) (AcademicYear, error) {
		return h.service.Archive(r.Context(), actor, id)
	})
}

type stagingForm struct {
	Staging bool `json:"staging"`
}

func (h *Handler) setStaging(w http.ResponseWriter, r *http.Request) {
	var form stagingForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	h.withYear(w, r, "set staging", func(actor rbac.Actor, id int64) (AcademicYear, error) {
		return h.service.SetStaging(r.Context(), actor, id, form.Staging)
	})
}

func (h *Handler) setDefault(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "yearID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year id")
		return
	}
	if err := h.service.SetDefaultYear(r.Context(), actor, id); err != nil {
		h.respondError(w, "set default year", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "yearID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year id")
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.respondError(w, "delete year", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) withYear(w http.ResponseWriter, r *http.Request, action string, fn func(rbac.Actor, int64) (AcademicYear, error)) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "yearID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year id")
		return
	}
	year, err := fn(actor, id)
	if err != nil {
		h.respondError(w, action, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearResponse(year))
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	var denied *rbac.PermissionDeniedError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "academic year not found")
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &denied):
		// The permission id is safe for operators; the response stays
		// generic.
		h.logger.Warn("year access denied", slog.String("permission", denied.PermissionID))
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
