// Package failure turns external process failures into user-facing error
// categories, HTTP statuses and JSON bodies.
package failure

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Category is a user-facing failure class.
type Category string

const (
	LoginRequired Category = "login_required"
	Unavailable   Category = "unavailable"
	AgeRestricted Category = "age_restricted"
	Spawn         Category = "spawn"
	Transcoder    Category = "transcoder"
	Generic       Category = "generic"
)

// Rule maps any of its substrings (matched case-insensitively) to a category.
type Rule struct {
	Category Category
	Patterns []string
}

// Rules are evaluated top to bottom and the first match wins. Age checks go
// first because the extractor phrases them as "Sign in to confirm your age",
// which would otherwise match the login rule. No match means Generic.
var Rules = []Rule{
	{AgeRestricted, []string{
		"confirm your age",
		"age-restricted",
		"age restricted",
		"inappropriate for some users",
		"age verification",
	}},
	{LoginRequired, []string{
		"login required",
		"login_required",
		"log in",
		"login",
		"sign in",
		"private",
		"members-only",
		"authentication",
		"use --cookies",
	}},
	{Unavailable, []string{
		"not available",
		"unavailable",
		"has been removed",
		"removed by",
		"no longer available",
		"does not exist",
		"video not found",
		"no video could be found",
		"http error 404",
		"deleted",
		"terminated",
	}},
}

// Classify returns the category of the first rule with a pattern contained in
// text, or Generic.
func Classify(text string) Category {
	lower := strings.ToLower(text)
	for _, rule := range Rules {
		for _, p := range rule.Patterns {
			if strings.Contains(lower, p) {
				return rule.Category
			}
		}
	}
	return Generic
}

// Status returns the HTTP status used for a category.
func (c Category) Status() int {
	switch c {
	case LoginRequired, AgeRestricted:
		return http.StatusForbidden
	case Unavailable:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing message for a category.
func (c Category) Message() string {
	switch c {
	case LoginRequired:
		return "This content is private or requires login"
	case Unavailable:
		return "This content is unavailable or has been removed"
	case AgeRestricted:
		return "This content is age-restricted"
	case Spawn:
		return "Media tools are not available on the server"
	case Transcoder:
		return "Failed to process media"
	default:
		return "Failed to download media"
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Category Category
	Details  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return string(e.Category)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status is shorthand for e.Category.Status().
func (e *Error) Status() int {
	return e.Category.Status()
}

// ErrorBody is the JSON error response shape.
type ErrorBody struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error"`
	Category Category `json:"category,omitempty"`
	Details  string   `json:"details,omitempty"`
}

// Body returns the JSON body for e.
func (e *Error) Body() ErrorBody {
	return ErrorBody{
		Success:  false,
		Error:    e.Category.Message(),
		Category: e.Category,
		Details:  e.Details,
	}
}

// New builds an Error of a fixed category.
func New(category Category, details string, err error) *Error {
	return &Error{Category: category, Details: details, Err: err}
}

// FromStderr classifies a failed extractor by its diagnostic output.
func FromStderr(stderr string, err error) *Error {
	return &Error{
		Category: Classify(stderr),
		Details:  Details(stderr),
		Err:      err,
	}
}

// From returns err as an *Error, classifying unknown errors as Generic.
func From(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Category: Generic, Err: err}
}

const maxDetails = 300

// Details picks the most useful line of diagnostic output: the last line
// starting with "ERROR", else the last non-empty line. It is bounded so a
// chatty process cannot bloat the response.
func Details(stderr string) string {
	lines := strings.Split(strings.ReplaceAll(stderr, "\r", "\n"), "\n")

	var last, lastError string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		last = line
		if strings.HasPrefix(line, "ERROR") {
			lastError = line
		}
	}

	out := lastError
	if out == "" {
		out = last
	}
	if len(out) > maxDetails {
		out = out[:maxDetails] + "..."
	}
	return out
}
