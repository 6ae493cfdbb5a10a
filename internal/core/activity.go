package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/store"
)

// Activity actions.
const (
	ActionCreateConnection         = "create_connection"
	ActionUpdateConnection         = "update_connection"
	ActionDeleteConnection         = "delete_connection"
	ActionUpdateConnectionBehavior = "update_connection_behavior"
	ActionUpdateConnectionDocs     = "update_connection_documents"
	ActionCreateBehavior           = "create_organization_behavior"
	ActionUpdateBehavior           = "update_organization_behavior"
	ActionAddDocument              = "add_document"
	ActionDeleteDocument           = "delete_document"
	ActionIngestDocuments          = "ingest_documents"
)

const (
	defaultActivityLimit = 10
	maxActivityLimit     = 100

	// SystemActor is recorded when no admin is attached to the context.
	SystemActor = "system"
)

type actorKey struct{}

// WithActor attaches the admin performing a change to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the admin attached by WithActor, or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}

// ActivityRecorder keeps the per-organization admin activity log. A failed
// write is logged and never fails the change it describes.
type ActivityRecorder struct {
	store  store.Store
	logger *zap.Logger
}

func NewActivityRecorder(s store.Store, logger *zap.Logger) *ActivityRecorder {
	return &ActivityRecorder{store: s, logger: logger.Named("activity")}
}

func (r *ActivityRecorder) Record(ctx context.Context, organizationID, action, collection string, details map[string]any) {
	if r == nil {
		return
	}
	entry := &store.ActivityLog{
		OrganizationID: organizationID,
		ActorID:        ActorFromContext(ctx),
		Action:         action,
		CollectionType: collection,
		Details:        details,
	}
	if err := r.store.CreateActivityLog(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn("Failed to record activity",
			zap.String("organization_id", organizationID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// List returns the newest entries first. limit falls back to 10 and is capped at 100.
func (r *ActivityRecorder) List(ctx context.Context, organizationID string, limit int) ([]store.ActivityLog, error) {
	if limit < 1 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	return r.store.ListActivityLogs(ctx, organizationID, limit)
}
