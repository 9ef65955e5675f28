package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// notificationTTL is how long in-app notifications stay visible before
// the listing filters them out.
const notificationTTL = 30 * 24 * time.Hour

// Service resolves recipients and fans out notifications.
type Service struct {
	store    storage.Store
	provider Provider
	logger   *observability.Logger
	metrics  *observability.Metrics

	now func() time.Time
}

// NewService creates the fan-out service.
func NewService(store storage.Store, provider Provider, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:    store,
		provider: provider,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Trigger fans an event out to the target's recipients. Per-recipient
// delivery failures are recorded and swallowed; only an empty target or a
// failure to resolve recipients returns an error.
func (s *Service) Trigger(ctx context.Context, event EventType, target Target, title, body string, inspectionID *int64) error {
	if err := target.validate(); err != nil {
		return err
	}
	userIDs, err := s.resolveTarget(ctx, target)
	if err != nil {
		return err
	}

	dispatchID := uuid.NewString()
	payload := payloadFor(event, title, body, inspectionID)
	for _, userID := range userIDs {
		s.notifyUser(ctx, dispatchID, userID, event, payload, title, body, inspectionID)
	}
	return nil
}

func (s *Service) resolveTarget(ctx context.Context, target Target) ([]int64, error) {
	switch {
	case target.UserID != 0:
		return []int64{target.UserID}, nil
	case len(target.UserIDs) > 0:
		return target.UserIDs, nil
	default:
		users, err := s.store.ListUsers(ctx, target.Role, true)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role target %q: %w", target.Role, err)
		}
		ids := make([]int64, 0, len(users))
		for _, user := range users {
			ids = append(ids, user.ID)
		}
		return ids, nil
	}
}

// notifyUser writes the in-app row and pushes to the user's devices.
func (s *Service) notifyUser(ctx context.Context, dispatchID string, userID int64, event EventType, payload *Payload, title, body string, inspectionID *int64) {
	log := s.logger.WithField("user_id", userID).WithField("event_type", string(event))

	expires := s.now().UTC().Add(notificationTTL)
	notification := &storage.Notification{
		UserID:       userID,
		EventType:    string(event),
		Title:        title,
		Body:         body,
		InspectionID: inspectionID,
		ExpiresAt:    &expires,
	}
	var notificationID *int64
	if err := s.store.CreateNotification(ctx, notification); err != nil {
		log.WithError(err).Error("failed to store notification")
	} else {
		notificationID = &notification.ID
	}

	subs, err := s.store.ListActiveSubscriptions(ctx, userID)
	if err != nil {
		log.WithError(err).Error("failed to list push subscriptions")
		return
	}
	if len(subs) == 0 {
		return
	}

	pref, err := s.store.GetPreference(ctx, userID)
	if err != nil {
		// Preference lookup failure degrades to the fail-open default.
		log.WithError(err).Warn("failed to load notification preference, sending anyway")
		pref = nil
	}

	if reason := s.filterReason(pref, event); reason != "" {
		for _, sub := range subs {
			s.recordDispatch(ctx, dispatchID, notificationID, sub, userID, event, "filtered", reason)
		}
		if s.metrics != nil {
			s.metrics.NotificationFilteredTotal.WithLabelValues(reason).Add(float64(len(subs)))
		}
		return
	}

	for _, sub := range subs {
		s.dispatch(ctx, dispatchID, notificationID, sub, userID, event, payload)
	}
}

// filterReason returns why the recipient is skipped, or "" to send. A nil
// preference record means send everything.
func (s *Service) filterReason(pref *storage.NotificationPreference, event EventType) string {
	if pref == nil {
		return ""
	}
	if !categoryEnabled(pref, event) {
		return "category_disabled"
	}
	if inQuietHours(pref.QuietHoursStart, pref.QuietHoursEnd, s.now().UTC()) {
		return "quiet_hours"
	}
	return ""
}

func (s *Service) dispatch(ctx context.Context, dispatchID string, notificationID *int64, sub *storage.PushSubscription, userID int64, event EventType, payload *Payload) {
	err := s.provider.Send(ctx, sub, payload)
	switch {
	case err == nil:
		s.recordDispatch(ctx, dispatchID, notificationID, sub, userID, event, "sent", "")
	case errors.Is(err, ErrSubscriptionGone):
		if derr := s.store.DeactivateSubscription(ctx, sub.ID); derr != nil {
			s.logger.WithError(derr).WithField("subscription_id", sub.ID).
				Error("failed to deactivate gone subscription")
		}
		s.recordDispatch(ctx, dispatchID, notificationID, sub, userID, event, "failed", "endpoint gone, subscription deactivated")
	default:
		s.logger.WithError(err).WithField("subscription_id", sub.ID).
			Warn("push dispatch failed")
		s.recordDispatch(ctx, dispatchID, notificationID, sub, userID, event, "failed", err.Error())
	}
	if s.metrics != nil {
		status := "sent"
		if err != nil {
			status = "failed"
		}
		s.metrics.NotificationDispatchTotal.WithLabelValues(string(event), status).Inc()
	}
}

func (s *Service) recordDispatch(ctx context.Context, dispatchID string, notificationID *int64, sub *storage.PushSubscription, userID int64, event EventType, status, detail string) {
	entry := &storage.DispatchLogEntry{
		DispatchID:     dispatchID,
		NotificationID: notificationID,
		SubscriptionID: sub.ID,
		UserID:         userID,
		EventType:      string(event),
		Status:         status,
		Detail:         detail,
	}
	if err := s.store.AppendDispatchLog(ctx, entry); err != nil {
		s.logger.WithError(err).Error("failed to append dispatch log entry")
	}
}

func categoryEnabled(pref *storage.NotificationPreference, event EventType) bool {
	switch event {
	case EventAssigned:
		return pref.NotifyOnAssignment
	case EventApproved:
		return pref.NotifyOnApproval
	case EventRejected:
		return pref.NotifyOnRejection
	case EventComment:
		return pref.NotifyOnComment
	default:
		return true
	}
}

// inQuietHours reports whether the UTC instant falls inside the window.
// Times are "HH:MM" UTC wall clock; a window with end before start wraps
// midnight. An empty or equal pair disables the window.
func inQuietHours(start, end string, now time.Time) bool {
	startMin, ok := parseClock(start)
	if !ok {
		return false
	}
	endMin, ok := parseClock(end)
	if !ok {
		return false
	}
	if startMin == endMin {
		return false
	}

	nowMin := now.Hour()*60 + now.Minute()
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	return nowMin >= startMin || nowMin < endMin
}

func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
