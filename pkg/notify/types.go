package notify

import (
	"github.com/fieldsafe/fieldsafe/pkg/apperr"
)

// EventType categorizes a notification.
type EventType string

const (
	EventAssigned EventType = "inspection_assigned"
	EventApproved EventType = "inspection_approved"
	EventRejected EventType = "inspection_rejected"
	EventComment  EventType = "inspection_comment"
)

// Target selects the recipients of a trigger. Exactly one field is used:
// UserID when non-zero, else UserIDs when non-empty, else Role.
type Target struct {
	UserID  int64
	UserIDs []int64
	Role    string
}

// TargetUser addresses a single user.
func TargetUser(id int64) Target { return Target{UserID: id} }

// TargetUsers addresses a list of users.
func TargetUsers(ids ...int64) Target { return Target{UserIDs: ids} }

// TargetRole addresses every active user holding a role.
func TargetRole(role string) Target { return Target{Role: role} }

func (t Target) validate() error {
	if t.UserID == 0 && len(t.UserIDs) == 0 && t.Role == "" {
		return apperr.Validation("notification target is empty")
	}
	return nil
}

// Action is a button on a push notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Payload is the push message shared by every recipient of one dispatch.
type Payload struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	EventType          string   `json:"event_type"`
	InspectionID       *int64   `json:"inspection_id,omitempty"`
	Actions            []Action `json:"actions,omitempty"`
	RequireInteraction bool     `json:"require_interaction,omitempty"`
}

// payloadFor builds the shared payload with type-specific actions.
// Assignments demand interaction so they stay on screen until handled.
func payloadFor(event EventType, title, body string, inspectionID *int64) *Payload {
	payload := &Payload{
		Title:        title,
		Body:         body,
		EventType:    string(event),
		InspectionID: inspectionID,
	}
	switch event {
	case EventAssigned:
		payload.RequireInteraction = true
		payload.Actions = []Action{
			{Action: "review", Title: "Review now"},
			{Action: "view", Title: "View"},
		}
	default:
		payload.Actions = []Action{{Action: "view", Title: "View"}}
	}
	return payload
}
