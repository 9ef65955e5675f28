package inspections

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/async"
	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/rbac"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Exporter pushes an approved or submitted inspection to the document
// store. Implementations own their sync-status bookkeeping; Export errors
// are logged here but never fail the triggering transition.
type Exporter interface {
	Export(ctx context.Context, inspectionID int64) error
}

// Notifier delivers workflow notifications.
type Notifier interface {
	InspectionAssigned(ctx context.Context, inspection *storage.Inspection) error
	InspectionReviewed(ctx context.Context, inspection *storage.Inspection, decision string) error
}

// Detector runs AI component detection over an inspection's images.
type Detector interface {
	Analyze(ctx context.Context, inspectionID int64) error
}

// PermissionChecker resolves a user's effective capabilities, role plus
// per-user overrides. Satisfied by *rbac.Checker.
type PermissionChecker interface {
	PermissionsFor(ctx context.Context, userID int64, role rbac.Role) (rbac.PermissionSet, error)
}

// EffectTimeout bounds each background side effect.
const EffectTimeout = 30 * time.Second

// Service implements the inspection workflow. All state transitions go
// through the store's optimistic status-checked updates; background
// effects run detached from the request.
type Service struct {
	store    storage.Store
	balancer *Balancer
	perms    PermissionChecker
	exporter Exporter
	notifier Notifier
	detector Detector
	logger   *observability.Logger
	metrics  *observability.Metrics

	now func() time.Time
}

// NewService creates the workflow service. perms may be nil, in which
// case capability checks fall back to the caller's bare role set.
// exporter, notifier, and detector may be nil when the corresponding
// integration is disabled.
func NewService(store storage.Store, balancer *Balancer, perms PermissionChecker, exporter Exporter, notifier Notifier, detector Detector, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:    store,
		balancer: balancer,
		perms:    perms,
		exporter: exporter,
		notifier: notifier,
		detector: detector,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// CreateInput is the payload for creating a draft inspection.
type CreateInput struct {
	InspectionType string          `json:"inspection_type"`
	AssetID        *int64          `json:"asset_id,omitempty"`
	LocationID     *int64          `json:"location_id,omitempty"`
	FormData       json.RawMessage `json:"form_data"`
	ImageKeys      []string        `json:"image_keys,omitempty"`
	SignatureKey   string          `json:"signature_key,omitempty"`
}

// Create stores a new draft owned by the caller.
func (s *Service) Create(ctx context.Context, principal *auth.Principal, input CreateInput) (*storage.Inspection, error) {
	inspType, err := ParseType(input.InspectionType)
	if err != nil {
		return nil, err
	}
	if len(input.FormData) == 0 {
		return nil, apperr.Validation("form_data is required")
	}
	if !json.Valid(input.FormData) {
		return nil, apperr.Validation("form_data is not valid JSON")
	}

	inspection := &storage.Inspection{
		InspectionType: string(inspType),
		Status:         string(StatusDraft),
		InspectorID:    principal.UserID,
		AssetID:        input.AssetID,
		LocationID:     input.LocationID,
		FormData:       input.FormData,
		ImageKeys:      input.ImageKeys,
		SignatureKey:   input.SignatureKey,
	}
	if err := s.store.CreateInspection(ctx, inspection); err != nil {
		return nil, err
	}
	return inspection, nil
}

// Get returns one inspection, enforcing visibility: moderators see all,
// everyone else only inspections they own or review.
func (s *Service) Get(ctx context.Context, principal *auth.Principal, id int64) (*storage.Inspection, error) {
	inspection, err := s.store.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canSee(principal, inspection) {
		// Hide existence from callers with no relationship to the record.
		return nil, apperr.NotFound("inspection %d not found", id)
	}
	return inspection, nil
}

// List returns inspections matching the filter. Non-moderators are
// restricted to their own inspections regardless of the filter.
func (s *Service) List(ctx context.Context, principal *auth.Principal, filter storage.InspectionFilter) ([]*storage.Inspection, int64, error) {
	if filter.Status != "" {
		if _, err := ParseStatus(filter.Status); err != nil {
			return nil, 0, err
		}
	}
	if filter.InspectionType != "" {
		if _, err := ParseType(filter.InspectionType); err != nil {
			return nil, 0, err
		}
	}
	if !isModerator(principal) {
		filter.InspectorID = principal.UserID
	}
	return s.store.ListInspections(ctx, filter)
}

// ListPending returns inspections awaiting the caller's review.
func (s *Service) ListPending(ctx context.Context, principal *auth.Principal, limit, offset int) ([]*storage.Inspection, int64, error) {
	filter := storage.InspectionFilter{
		Status: string(StatusPendingReview),
		Limit:  limit,
		Offset: offset,
	}
	// Admins see the whole queue, supervisors their own assignments.
	if rbac.Role(principal.Role) != rbac.RoleAdmin {
		filter.ReviewerID = principal.UserID
	}
	return s.store.ListInspections(ctx, filter)
}

// UpdateInput is the payload for editing a draft.
type UpdateInput struct {
	AssetID      *int64          `json:"asset_id,omitempty"`
	LocationID   *int64          `json:"location_id,omitempty"`
	FormData     json.RawMessage `json:"form_data,omitempty"`
	ImageKeys    []string        `json:"image_keys,omitempty"`
	SignatureKey string          `json:"signature_key,omitempty"`
}

// UpdateDraft edits a draft. Only the owning inspector may edit, and only
// while the inspection is still a draft.
func (s *Service) UpdateDraft(ctx context.Context, principal *auth.Principal, id int64, input UpdateInput) (*storage.Inspection, error) {
	inspection, err := s.store.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if inspection.InspectorID != principal.UserID {
		return nil, apperr.Forbidden("only the owning inspector may edit inspection %d", id)
	}
	if inspection.Status != string(StatusDraft) {
		return nil, apperr.InvalidState("inspection %d is no longer a draft", id)
	}

	if input.FormData != nil {
		if !json.Valid(input.FormData) {
			return nil, apperr.Validation("form_data is not valid JSON")
		}
		inspection.FormData = input.FormData
	}
	if input.AssetID != nil {
		inspection.AssetID = input.AssetID
	}
	if input.LocationID != nil {
		inspection.LocationID = input.LocationID
	}
	if input.ImageKeys != nil {
		inspection.ImageKeys = input.ImageKeys
	}
	if input.SignatureKey != "" {
		inspection.SignatureKey = input.SignatureKey
	}

	if err := s.store.UpdateInspectionDraft(ctx, inspection); err != nil {
		return nil, err
	}
	return inspection, nil
}

// Submit transitions a draft to pending_review. The reviewer is chosen
// before the transition so assignment lands in the same UPDATE; export,
// notification, and detection then run detached and best-effort.
func (s *Service) Submit(ctx context.Context, principal *auth.Principal, id int64, status string) (*storage.Inspection, error) {
	if _, err := ParseSubmitStatus(status); err != nil {
		return nil, err
	}

	inspection, err := s.store.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if inspection.InspectorID != principal.UserID {
		return nil, apperr.Forbidden("only the owning inspector may submit inspection %d", id)
	}
	if inspection.Status != string(StatusDraft) {
		return nil, apperr.InvalidState("inspection %d is not a draft", id)
	}

	reviewerID, err := s.balancer.PickReviewer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pick reviewer: %w", err)
	}

	if err := s.store.SubmitInspection(ctx, id, reviewerID, s.now().UTC()); err != nil {
		return nil, err
	}

	submitted, err := s.store.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.InspectionsSubmittedTotal.WithLabelValues(submitted.InspectionType).Inc()
		outcome := "assigned"
		if reviewerID == nil {
			outcome = "unassigned"
		}
		s.metrics.ReviewerAssignmentsTotal.WithLabelValues(outcome).Inc()
	}

	s.runSubmitEffects(ctx, submitted)
	return submitted, nil
}

// runSubmitEffects fires the detached post-submit effects. Each one is
// panic-recovered and bounded by EffectTimeout; failures are recorded and
// swallowed.
func (s *Service) runSubmitEffects(ctx context.Context, inspection *storage.Inspection) {
	id := inspection.ID

	if s.exporter != nil {
		async.SafeGo(ctx, EffectTimeout, "inspection-export", func(ctx context.Context) error {
			return s.exporter.Export(ctx, id)
		})
	}
	if s.notifier != nil && inspection.ReviewerID != nil {
		inspection := *inspection
		async.SafeGo(ctx, EffectTimeout, "inspection-assigned-notify", func(ctx context.Context) error {
			return s.notifier.InspectionAssigned(ctx, &inspection)
		})
	}
	if s.detector != nil && inspection.InspectionType == string(TypeFireExtinguisher) && len(inspection.ImageKeys) > 0 {
		async.SafeGo(ctx, EffectTimeout, "inspection-detect", func(ctx context.Context) error {
			return s.detector.Analyze(ctx, id)
		})
	}
}

// Review approves or rejects a pending inspection. The route middleware
// gates access to the review queue; the decision itself requires the
// matching approve or reject capability, so an override can grant a user
// one side of the decision without the other.
func (s *Service) Review(ctx context.Context, principal *auth.Principal, id int64, decision, comment string) (*storage.Inspection, error) {
	status, err := ParseStatus(decision)
	if err != nil {
		return nil, err
	}
	if status != StatusApproved && status != StatusRejected {
		return nil, apperr.Validation("review decision must be approved or rejected, got %q", decision)
	}

	required := rbac.CapApproveInspections
	if status == StatusRejected {
		required = rbac.CapRejectInspections
	}
	set, err := s.capabilitiesFor(ctx, principal)
	if err != nil {
		return nil, err
	}
	if !set.Has(required) {
		return nil, apperr.Forbidden("missing capability %q", required)
	}

	if err := s.store.ReviewInspection(ctx, id, principal.UserID, string(status), comment, s.now().UTC()); err != nil {
		return nil, err
	}

	reviewed, err := s.store.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.InspectionsReviewedTotal.WithLabelValues(reviewed.InspectionType, string(status)).Inc()
	}
	if s.notifier != nil {
		inspection := *reviewed
		async.SafeGo(ctx, EffectTimeout, "inspection-reviewed-notify", func(ctx context.Context) error {
			return s.notifier.InspectionReviewed(ctx, &inspection, string(status))
		})
	}
	return reviewed, nil
}

// Complete finalizes an inspection. Administrative, no side effects.
func (s *Service) Complete(ctx context.Context, principal *auth.Principal, id int64) (*storage.Inspection, error) {
	if rbac.Role(principal.Role) != rbac.RoleAdmin {
		return nil, apperr.Forbidden("only admins may complete inspections")
	}
	if err := s.store.CompleteInspection(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.store.GetInspection(ctx, id)
}

// Delete removes an inspection. Owners may delete only their drafts;
// admins may delete any inspection regardless of status.
func (s *Service) Delete(ctx context.Context, principal *auth.Principal, id int64) error {
	inspection, err := s.store.GetInspection(ctx, id)
	if err != nil {
		return err
	}
	if rbac.Role(principal.Role) == rbac.RoleAdmin {
		return s.store.DeleteInspection(ctx, id)
	}
	if inspection.InspectorID != principal.UserID {
		return apperr.Forbidden("only the owning inspector or an admin may delete inspection %d", id)
	}
	if inspection.Status != string(StatusDraft) {
		return apperr.InvalidState("inspection %d is no longer a draft and cannot be deleted", id)
	}
	return s.store.DeleteInspection(ctx, id)
}

// SyncLog returns the export history for an inspection.
func (s *Service) SyncLog(ctx context.Context, principal *auth.Principal, id int64) ([]*storage.SyncLogEntry, error) {
	if _, err := s.Get(ctx, principal, id); err != nil {
		return nil, err
	}
	return s.store.ListSyncLog(ctx, id)
}

func (s *Service) capabilitiesFor(ctx context.Context, principal *auth.Principal) (rbac.PermissionSet, error) {
	if s.perms == nil {
		return rbac.RolePermissions(rbac.Role(principal.Role)), nil
	}
	return s.perms.PermissionsFor(ctx, principal.UserID, rbac.Role(principal.Role))
}

func (s *Service) canSee(principal *auth.Principal, inspection *storage.Inspection) bool {
	if isModerator(principal) {
		return true
	}
	if inspection.InspectorID == principal.UserID {
		return true
	}
	return inspection.ReviewerID != nil && *inspection.ReviewerID == principal.UserID
}

func isModerator(principal *auth.Principal) bool {
	role := rbac.Role(principal.Role)
	return role == rbac.RoleAdmin || role == rbac.RoleSupervisor
}
