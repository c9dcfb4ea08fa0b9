package handlers

import (
	"net/http"

	"clipfetch/internal/logging"
)

// SweepTempFiles removes stale relay temp files on demand.
// POST /api/temp/sweep
func (h *Handlers) SweepTempFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	removed, freedBytes, err := h.temp.Sweep()
	if err != nil {
		logging.Error("Failed to sweep temp files: %v", err)
		writeJSONError(w, "Failed to sweep temp files", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"success":    true,
		"removed":    removed,
		"freedBytes": freedBytes,
	})
}
