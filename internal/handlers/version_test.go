package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clipfetch/internal/startup"
)

func TestGetVersion(t *testing.T) {
	t.Parallel()

	h := &Handlers{}

	req := httptest.NewRequest(http.MethodGet, "/version", http.NoBody)
	w := httptest.NewRecorder()

	h.GetVersion(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Cache-Control": "no-cache",
	}
	for name, expectedValue := range headers {
		if actualValue := w.Header().Get(name); actualValue != expectedValue {
			t.Errorf("Expected header %q: %q, got %q", name, expectedValue, actualValue)
		}
	}

	var response startup.BuildInfo
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Version != startup.Version {
		t.Errorf("Expected version %q, got %q", startup.Version, response.Version)
	}
}

func TestGetVersionJSONValidation(t *testing.T) {
	t.Parallel()

	h := &Handlers{}

	req := httptest.NewRequest(http.MethodGet, "/version", http.NoBody)
	w := httptest.NewRecorder()

	h.GetVersion(w, req)

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}

	// Check for expected fields (values may be empty but keys should exist)
	expectedFields := []string{"version", "commit", "buildTime", "goVersion"}
	for _, field := range expectedFields {
		if _, exists := result[field]; !exists {
			t.Errorf("Expected field %q in response", field)
		}
	}
}
