// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, the standard
// response envelope, parameter parsing, validation, and common HTTP middleware.
//
// # Response Envelope
//
// Every endpoint responds with the same shape:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": "forbidden", "message": "missing capability: review_inspections"}
//
// Success responses:
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//
// Error responses map application errors to status codes:
//
//	httputil.WriteError(w, apperr.Forbidden("missing capability: %s", cap))
//	httputil.WriteBadRequest(w, "inspection_type is required")
//	httputil.WriteUnauthorized(w, "session expired")
//
// # Request Parsing
//
// JSON parsing:
//
//	var req SubmitInspectionRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// Query parameters:
//
//	limit, _ := httputil.ParseQueryInt(r, "limit", 50)
//	unread, _ := httputil.ParseQueryBool(r, "unread_only", false)
//
// # Middleware
//
//	RequestIDMiddleware, LoggingMiddleware, RecoveryMiddleware, CORSMiddleware
//
// # Related Packages
//
//   - pkg/auth: Session authentication middleware
//   - pkg/rbac: Role and capability middleware
package httputil
