package masterdata

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/procurement/internal/platform/httpx"
)

// Handler exposes existence lookups for UI value helps.
type Handler struct {
	logger  *slog.Logger
	checker Checker
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, checker Checker) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, checker: checker}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{kind}/exists", h.exists)
}

type existsResponse struct {
	Kind   Kind     `json:"kind"`
	Key    []string `json:"key"`
	Exists bool     `json:"exists"`
}

func (h *Handler) exists(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	key := r.URL.Query()["key"]
	found, err := h.checker.Exists(r.Context(), kind, key...)
	if err != nil {
		if errors.Is(err, ErrKeyArity) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("masterdata exists", slog.String("kind", string(kind)), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, existsResponse{Kind: kind, Key: key, Exists: found})
}
