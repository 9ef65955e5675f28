package notify

import (
	"context"
	"fmt"

	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Workflow event adapters consumed by the inspection service.

// InspectionAssigned notifies the assigned reviewer of a new submission.
func (s *Service) InspectionAssigned(ctx context.Context, inspection *storage.Inspection) error {
	if inspection.ReviewerID == nil {
		return nil
	}
	title := "Inspection assigned to you"
	body := fmt.Sprintf("A %s inspection is waiting for your review.", typeLabel(inspection.InspectionType))
	return s.Trigger(ctx, EventAssigned, TargetUser(*inspection.ReviewerID), title, body, &inspection.ID)
}

// InspectionReviewed notifies the inspector of the review decision.
func (s *Service) InspectionReviewed(ctx context.Context, inspection *storage.Inspection, decision string) error {
	event := EventApproved
	title := "Inspection approved"
	if decision == "rejected" {
		event = EventRejected
		title = "Inspection rejected"
	}
	body := fmt.Sprintf("Your %s inspection was %s.", typeLabel(inspection.InspectionType), decision)
	if inspection.ReviewComment != "" {
		body = fmt.Sprintf("%s Comment: %s", body, inspection.ReviewComment)
	}
	return s.Trigger(ctx, event, TargetUser(inspection.InspectorID), title, body, &inspection.ID)
}

func typeLabel(inspectionType string) string {
	switch inspectionType {
	case "fire_extinguisher":
		return "fire extinguisher"
	case "first_aid":
		return "first aid"
	case "hse":
		return "HSE"
	case "man_hours":
		return "man-hours"
	default:
		return inspectionType
	}
}
