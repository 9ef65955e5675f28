package audit

import (
	"net/http"
	"strconv"
	"strings"
)

// statusWriter captures the response status for the trail entry.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Middleware records every mutating request after it completes. Reads
// are not trailed.
func Middleware(recorder *Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				next.ServeHTTP(w, r)
				return
			}

			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			entityType, entityID := entityFromPath(r.URL.Path)
			recorder.Record(r.Context(), &Event{
				Action:     ActionHTTPRequest,
				Status:     statusFor(wrapped.status),
				EntityType: entityType,
				EntityID:   entityID,
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: wrapped.status,
			})
		})
	}
}

func statusFor(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return StatusDenied
	case code >= 400:
		return StatusFailure
	default:
		return StatusSuccess
	}
}

// entityFromPath reads the collection and numeric id from a request
// path, e.g. /inspections/42/submit yields ("inspections", "42").
func entityFromPath(path string) (string, string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", ""
	}
	entityType := segments[0]
	if entityType == "admin" && len(segments) > 1 {
		entityType = segments[1]
		segments = segments[1:]
	}
	if len(segments) > 1 {
		if _, err := strconv.ParseInt(segments[1], 10, 64); err == nil {
			return entityType, segments[1]
		}
	}
	return entityType, ""
}
