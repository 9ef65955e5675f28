package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("missing field %q", "name"), KindValidation},
		{"forbidden", Forbidden("missing capability"), KindForbidden},
		{"not found", NotFound("inspection %d", 42), KindNotFound},
		{"conflict", Conflict("duplicate email"), KindConflict},
		{"invalid state", InvalidState("cannot approve a draft"), KindInvalidState},
		{"wrapped once", fmt.Errorf("handler: %w", NotFound("user")), KindNotFound},
		{"plain error", errors.New("boom"), KindInternal},
		{"nil cause internal", Internal("db failure", errors.New("conn reset")), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("bad input"), http.StatusBadRequest},
		{Unauthenticated("no session"), http.StatusUnauthorized},
		{Forbidden("nope"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Conflict("dupe"), http.StatusConflict},
		{InvalidState("already submitted"), http.StatusConflict},
		{Internal("db", errors.New("x")), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(NotFound("asset %d", 7)); got != "asset 7" {
		t.Errorf("MessageOf() = %q, want %q", got, "asset 7")
	}

	// Unclassified errors must not leak their message to clients.
	if got := MessageOf(errors.New("pq: connection refused")); got != "internal server error" {
		t.Errorf("MessageOf() = %q, want generic message", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("row not found")
	err := Wrap(KindNotFound, "inspection", cause)
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}
