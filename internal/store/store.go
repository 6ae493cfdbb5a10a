package store

import "context"

// Store is the durable document store behind the chat pipeline.
// Get/Find methods return nil, nil when nothing matches.
type Store interface {
	CreateConnection(ctx context.Context, conn *Connection) error
	UpdateConnection(ctx context.Context, conn *Connection) error
	GetConnection(ctx context.Context, id string) (*Connection, error)
	FindConnectionByEmbedURL(ctx context.Context, embedURL string) (*Connection, error)
	ListConnections(ctx context.Context, organizationID string) ([]Connection, error)
	// ReplaceConnectionSelectors swaps the connection's selector set and moves
	// chunk back-references in one transaction, removals first.
	ReplaceConnectionSelectors(ctx context.Context, connectionID string, selectors []string) (removed, added []string, err error)
	// DeleteConnection hands every chunk back-reference to the connection over to
	// another connection still selecting the content (or clears it) and deletes it
	// in one transaction.
	DeleteConnection(ctx context.Context, id string) error

	// CreateChunk binds the chunk to a connection already selecting its content
	// when no back-reference is given.
	CreateChunk(ctx context.Context, chunk *KnowledgeChunk) error
	DeleteChunk(ctx context.Context, organizationID string, id int64) error
	ListChunksByOrganization(ctx context.Context, organizationID string) ([]KnowledgeChunk, error)
	ListAllChunks(ctx context.Context) ([]KnowledgeChunk, error)
	FindChunksByContent(ctx context.Context, organizationID string, contents []string) ([]KnowledgeChunk, error)
	CountChunksByConnection(ctx context.Context, connectionID string) (int, error)

	InsertOrganizationBehaviorIfAbsent(ctx context.Context, ob *OrganizationBehavior) (bool, error)
	UpdateOrganizationBehavior(ctx context.Context, ob *OrganizationBehavior) error
	GetOrganizationBehavior(ctx context.Context, organizationID string) (*OrganizationBehavior, error)

	CreateMessage(ctx context.Context, msg *ConversationMessage) error
	GetMessage(ctx context.Context, messageID string) (*ConversationMessage, error)
	ListMessagesByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]ConversationMessage, int, error)

	// InsertFeedbackIfAbsent inserts unless a row for (messageID, type) exists.
	InsertFeedbackIfAbsent(ctx context.Context, fb *FeedbackEvent) (bool, error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]FeedbackEvent, error)

	CreateActivityLog(ctx context.Context, entry *ActivityLog) error
	// ListActivityLogs returns the newest entries first.
	ListActivityLogs(ctx context.Context, organizationID string, limit int) ([]ActivityLog, error)

	Close() error
}

// DiffSelectors returns the entries of next missing from prev (added) and the
// entries of prev missing from next (removed). Duplicates are collapsed.
func DiffSelectors(prev, next []string) (removed, added []string) {
	prevSet := make(map[string]struct{}, len(prev))
	for _, s := range prev {
		prevSet[s] = struct{}{}
	}
	nextSet := make(map[string]struct{}, len(next))
	for _, s := range next {
		nextSet[s] = struct{}{}
	}

	seen := make(map[string]struct{})
	for _, s := range prev {
		if _, ok := nextSet[s]; ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		removed = append(removed, s)
	}
	for _, s := range next {
		if _, ok := prevSet[s]; ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		added = append(added, s)
	}
	return removed, added
}
