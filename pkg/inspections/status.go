package inspections

import (
	"github.com/fieldsafe/fieldsafe/pkg/apperr"
)

// Status is an inspection lifecycle status.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusCompleted     Status = "completed"
)

// KnownStatuses lists every valid status.
func KnownStatuses() []Status {
	return []Status{StatusDraft, StatusPendingReview, StatusApproved, StatusRejected, StatusCompleted}
}

// ParseStatus validates a status string. Unrecognized values are rejected
// rather than coerced to a default.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusPendingReview, StatusApproved, StatusRejected, StatusCompleted:
		return Status(s), nil
	default:
		return "", apperr.Validation("unknown inspection status %q", s)
	}
}

// ParseSubmitStatus parses the status field of a submit request. Only the
// submit endpoint accepts "submitted" as an alias of pending_review; an
// empty value also means pending_review so clients may omit the field.
func ParseSubmitStatus(s string) (Status, error) {
	switch s {
	case "", "submitted", string(StatusPendingReview):
		return StatusPendingReview, nil
	default:
		return "", apperr.Validation("status %q is not valid for submission", s)
	}
}

// CanTransition reports whether from -> to is a legal transition.
// Completion is allowed from any status except completed itself.
func CanTransition(from, to Status) bool {
	if to == StatusCompleted {
		return from != StatusCompleted
	}
	switch from {
	case StatusDraft:
		return to == StatusPendingReview
	case StatusPendingReview:
		return to == StatusApproved || to == StatusRejected
	default:
		return false
	}
}

// Type is an inspection form type.
type Type string

const (
	TypeFireExtinguisher Type = "fire_extinguisher"
	TypeFirstAid         Type = "first_aid"
	TypeHSE              Type = "hse"
	TypeManHours         Type = "man_hours"
)

// KnownTypes lists every inspection type.
func KnownTypes() []Type {
	return []Type{TypeFireExtinguisher, TypeFirstAid, TypeHSE, TypeManHours}
}

// ParseType validates an inspection type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeFireExtinguisher, TypeFirstAid, TypeHSE, TypeManHours:
		return Type(s), nil
	default:
		return "", apperr.Validation("unknown inspection type %q", s)
	}
}
