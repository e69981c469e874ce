package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/internal/utils"
)

func (h *Handlers) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.catalogService.ListServices(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"services": services})
}

func (h *Handlers) GetService(w http.ResponseWriter, r *http.Request) {
	slug := utils.NormalizeSlug(chi.URLParam(r, "slug"))

	svc, err := h.catalogService.GetService(r.Context(), slug)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"service": svc})
}
