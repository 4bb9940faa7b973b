package artifacts

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/handlers"
	"github.com/kavlartius217/meditrust/pkg/pagination"
	"github.com/kavlartius217/meditrust/pkg/routes"
)

// Handler exposes read-only artifact endpoints. Artifacts are written by
// workflow stages only.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "artifacts"),
		pagination: pagination,
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/artifacts",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{scope}/{name}", Handler: h.Latest},
			{Method: "GET", Pattern: "/{scope}/{name}/versions", Handler: h.Versions},
			{Method: "GET", Pattern: "/{scope}/{name}/versions/{version}", Handler: h.Version},
		},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	scope, err := uuid.Parse(r.PathValue("scope"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: scope", ErrInvalid))
		return
	}

	a, err := h.sys.Latest(r.Context(), scope, r.PathValue("name"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, a)
}

func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	scope, err := uuid.Parse(r.PathValue("scope"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: scope", ErrInvalid))
		return
	}

	vs, err := h.sys.Versions(r.Context(), scope, r.PathValue("name"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, vs)
}

func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	scope, err := uuid.Parse(r.PathValue("scope"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: scope", ErrInvalid))
		return
	}
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: version", ErrInvalid))
		return
	}

	a, err := h.sys.Version(r.Context(), scope, r.PathValue("name"), version)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, a)
}
