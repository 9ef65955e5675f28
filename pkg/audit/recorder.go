package audit

import (
	"context"
	"time"

	"github.com/fieldsafe/fieldsafe/pkg/async"
	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
)

// writeTimeout bounds a background trail insert.
const writeTimeout = 5 * time.Second

// Inserter is the sink the recorder writes to.
type Inserter interface {
	Insert(ctx context.Context, event *Event) error
}

// Recorder writes trail events best effort: inserts run in the
// background and failures are logged, never returned.
type Recorder struct {
	store  Inserter
	logger *observability.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(store Inserter, logger *observability.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record fills in the actor from the context principal and writes the
// event in the background.
func (r *Recorder) Record(ctx context.Context, event *Event) {
	if principal, ok := auth.PrincipalFromContext(ctx); ok && event.ActorID == nil {
		actorID := principal.UserID
		event.ActorID = &actorID
		event.ActorEmail = principal.Email
		event.ActorRole = principal.Role
	}
	if event.RequestID == "" {
		event.RequestID = observability.GetRequestID(ctx)
	}
	if event.Status == "" {
		event.Status = StatusSuccess
	}
	event.CreatedAt = time.Now().UTC()

	async.SafeGo(ctx, writeTimeout, "audit trail write", func(taskCtx context.Context) error {
		return r.store.Insert(taskCtx, event)
	})
}
