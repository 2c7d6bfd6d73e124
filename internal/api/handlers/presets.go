package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nextconvert/reelmix/internal/modules/montage"
)

// PresetsHandler exposes the preset registry
type PresetsHandler struct {
	presets *montage.Presets
}

// NewPresetsHandler creates a new presets handler
func NewPresetsHandler(presets *montage.Presets) *PresetsHandler {
	return &PresetsHandler{presets: presets}
}

// ListPresets returns every preset and the option names a request may override
func (h *PresetsHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"presets": h.presets.List(),
		"options": montage.OptionNames(),
	})
}

// GetPreset returns one preset
func (h *PresetsHandler) GetPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := h.presets.Get(chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, preset)
}
