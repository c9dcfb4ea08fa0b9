package handlers

import (
	"encoding/json"
	"net/http"

	"clipfetch/internal/failure"
	"clipfetch/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a {success:false} body with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, failure.ErrorBody{Success: false, Error: message})
}

// writeFailure writes a classified failure as its JSON body and status.
func writeFailure(w http.ResponseWriter, fe *failure.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(fe.Status())
	writeJSON(w, fe.Body())
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"status": status})
}
