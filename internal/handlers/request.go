package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"clipfetch/internal/platform"
)

const maxRequestBody = 64 << 10

var errBadBody = errors.New("invalid request body")

// readParams merges the query string with a form or JSON body. Body values
// win over query values of the same name.
func readParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	params := r.URL.Query()
	if r.Body == nil || r.Body == http.NoBody || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return params, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		for k, v := range body {
			if s, ok := jsonScalar(v); ok {
				params.Set(k, s)
			}
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params.Set(k, v[0])
			}
		}
	}
	return params, nil
}

// jsonScalar renders a decoded JSON value as a parameter string. Objects and
// arrays are ignored.
func jsonScalar(v interface{}) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// target resolves the route's platform and the requested post URL. It
// writes the error response itself and returns false when the request
// cannot proceed.
func target(w http.ResponseWriter, r *http.Request) (platform.Platform, url.Values, bool) {
	p, ok := platform.Lookup(mux.Vars(r)["platform"])
	if !ok {
		writeJSONError(w, "Unsupported platform", http.StatusNotFound)
		return platform.Platform{}, nil, false
	}

	params, err := readParams(w, r)
	if err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return p, nil, false
	}

	link := strings.TrimSpace(params.Get("url"))
	if link == "" {
		writeJSONError(w, "URL is required", http.StatusBadRequest)
		return p, nil, false
	}
	if !p.Matches(link) {
		msg := fmt.Sprintf("Not a valid %s URL", p.Label)
		if other, ok := platform.Detect(link); ok {
			msg += fmt.Sprintf(" (looks like a %s link)", other.Label)
		}
		writeJSONError(w, msg, http.StatusBadRequest)
		return p, nil, false
	}
	params.Set("url", link)

	return p, params, true
}
