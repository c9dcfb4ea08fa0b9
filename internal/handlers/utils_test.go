package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"clipfetch/internal/failure"
)

// =============================================================================
// writeJSON Tests
// =============================================================================

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{
			name:     "Simple map",
			input:    map[string]string{"status": "ok"},
			expected: `{"status":"ok"}`,
		},
		{
			name:     "Null",
			input:    nil,
			expected: `null`,
		},
		{
			name:     "Error body omits empty fields",
			input:    failure.ErrorBody{Error: "URL is required"},
			expected: `{"success":false,"error":"URL is required"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.input)

			body := w.Body.String()
			// Trim newline that json.Encoder adds
			body = body[:len(body)-1]

			if body != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, body)
			}
		})
	}
}

func TestWriteJSONHandlesInvalidTypes(t *testing.T) {
	t.Parallel()

	// JSON encoder handles most types, but channels cause errors
	w := httptest.NewRecorder()
	writeJSON(w, make(chan int))

	// The function should log the error but not panic
	if w.Body.Len() != 0 {
		t.Errorf("Expected no body for unencodable value, got %q", w.Body.String())
	}
}

// =============================================================================
// Error Response Tests
// =============================================================================

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	writeJSONError(w, "Unsupported platform", http.StatusNotFound)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}

	var body failure.ErrorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if body.Success || body.Error != "Unsupported platform" {
		t.Errorf("Unexpected body %+v", body)
	}
}

func TestWriteFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        *failure.Error
		wantStatus int
	}{
		{"Login required", failure.New(failure.LoginRequired, "ERROR: login required", nil), http.StatusForbidden},
		{"Unavailable", failure.New(failure.Unavailable, "", nil), http.StatusNotFound},
		{"Unclassified", failure.From(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeFailure(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var body failure.ErrorBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode JSON: %v", err)
			}
			if body.Category != tt.err.Category {
				t.Errorf("Expected category %q, got %q", tt.err.Category, body.Category)
			}
			if body.Error != tt.err.Category.Message() {
				t.Errorf("Expected message %q, got %q", tt.err.Category.Message(), body.Error)
			}
			if body.Details != tt.err.Details {
				t.Errorf("Expected details %q, got %q", tt.err.Details, body.Details)
			}
		})
	}
}

// =============================================================================
// writeJSONStatus Tests
// =============================================================================

func TestWriteJSONStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		code         int
		status       string
		expectedBody string
	}{
		{
			name:         "Ready",
			code:         http.StatusOK,
			status:       "ready",
			expectedBody: `{"status":"ready"}`,
		},
		{
			name:         "Not ready",
			code:         http.StatusServiceUnavailable,
			status:       "not_ready",
			expectedBody: `{"status":"not_ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSONStatus(w, tt.code, tt.status)

			if w.Code != tt.code {
				t.Errorf("Expected status %d, got %d", tt.code, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type application/json, got %q", ct)
			}

			body := w.Body.String()
			body = body[:len(body)-1] // Trim newline

			if body != tt.expectedBody {
				t.Errorf("Expected body %q, got %q", tt.expectedBody, body)
			}
		})
	}
}
