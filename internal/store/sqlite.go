package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dataSourceName string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger.Named("sqlite")}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// sqliteDSN adds the pragmas the store relies on: a busy timeout so concurrent
// writers wait instead of failing, and immediate transactions so read-modify-write
// transactions take the write lock up front.
func sqliteDSN(dsn string) string {
	params := "_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS connections (
        id TEXT PRIMARY KEY,
        organization_id TEXT NOT NULL,
        name TEXT NOT NULL,
        embed_url TEXT NOT NULL,
        image_url TEXT NOT NULL DEFAULT '',
        selectors_json TEXT NOT NULL DEFAULT '[]',
        use_custom_prompt BOOLEAN NOT NULL DEFAULT FALSE,
        custom_prompt TEXT NOT NULL DEFAULT '',
        behavior_json TEXT, -- NULL when no descriptor is configured
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_connections_org ON connections (organization_id);
    CREATE UNIQUE INDEX IF NOT EXISTS idx_connections_embed_url ON connections (embed_url);

    CREATE TABLE IF NOT EXISTS knowledge_chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        organization_id TEXT NOT NULL,
        content TEXT NOT NULL,
        embedding_json TEXT, -- JSON array of float32
        associated_connection_id TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_chunks_org ON knowledge_chunks (organization_id);
    CREATE INDEX IF NOT EXISTS idx_chunks_connection ON knowledge_chunks (associated_connection_id);

    CREATE TABLE IF NOT EXISTS organization_behaviors (
        organization_id TEXT PRIMARY KEY,
        behavior_json TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS conversation_messages (
        message_id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        question TEXT NOT NULL,
        answer_html TEXT NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        organization_id TEXT,
        connection_id TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_messages_org ON conversation_messages (organization_id, timestamp);

    CREATE TABLE IF NOT EXISTS feedback_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        message_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        conversation_id TEXT NOT NULL,
        feedback_type TEXT NOT NULL CHECK (feedback_type IN ('like', 'dislike', 'report', 'retry')),
        report_reason TEXT,
        retry_count INTEGER CHECK (retry_count IS NULL OR retry_count BETWEEN 1 AND 5),
        bot_response TEXT NOT NULL,
        user_question TEXT NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (message_id, feedback_type)
    );
    CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback_events (user_id);

    CREATE TABLE IF NOT EXISTS activity_logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        organization_id TEXT NOT NULL,
        actor_id TEXT NOT NULL,
        action TEXT NOT NULL,
        collection_type TEXT NOT NULL,
        details_json TEXT,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_activity_org ON activity_logs (organization_id, timestamp);
    `
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Connection methods

const connectionColumns = "id, organization_id, name, embed_url, image_url, selectors_json, use_custom_prompt, custom_prompt, behavior_json, created_at, updated_at"

func (s *SQLiteStore) CreateConnection(ctx context.Context, conn *Connection) error {
	selectorsJSON, behaviorJSON, err := encodeConnectionJSON(conn)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin connection insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO connections ("+connectionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		conn.ID, conn.OrganizationID, conn.Name, conn.EmbedURL, conn.ImageURL, selectorsJSON,
		conn.UseCustomPrompt, conn.CustomPromptText, behaviorJSON, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("embed url already registered: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to execute connection insert: %w", err)
	}

	if err := s.setBackReferences(ctx, tx, conn.OrganizationID, conn.ID, conn.KnowledgeSelectors); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateConnection(ctx context.Context, conn *Connection) error {
	_, behaviorJSON, err := encodeConnectionJSON(conn)
	if err != nil {
		return err
	}
	conn.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE connections SET name = ?, embed_url = ?, image_url = ?, use_custom_prompt = ?,
		custom_prompt = ?, behavior_json = ?, updated_at = ? WHERE id = ?`,
		conn.Name, conn.EmbedURL, conn.ImageURL, conn.UseCustomPrompt, conn.CustomPromptText,
		behaviorJSON, conn.UpdatedAt, conn.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("embed url already registered: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to execute connection update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperrors.ErrConnectionNotFound
	}
	return nil
}

func (s *SQLiteStore) GetConnection(ctx context.Context, id string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+connectionColumns+" FROM connections WHERE id = ?", id)
	conn, err := scanConnection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (s *SQLiteStore) FindConnectionByEmbedURL(ctx context.Context, embedURL string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+connectionColumns+" FROM connections WHERE embed_url = ?", embedURL)
	conn, err := scanConnection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find connection by embed url: %w", err)
	}
	return conn, nil
}

func (s *SQLiteStore) ListConnections(ctx context.Context, organizationID string) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+connectionColumns+" FROM connections WHERE organization_id = ? ORDER BY created_at, id", organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	connections := []Connection{}
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		connections = append(connections, *conn)
	}
	return connections, rows.Err()
}

func (s *SQLiteStore) ReplaceConnectionSelectors(ctx context.Context, connectionID string, selectors []string) ([]string, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin selector update: %w", err)
	}
	defer tx.Rollback()

	var organizationID, prevJSON string
	err = tx.QueryRowContext(ctx, "SELECT organization_id, selectors_json FROM connections WHERE id = ?", connectionID).
		Scan(&organizationID, &prevJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, apperrors.ErrConnectionNotFound
		}
		return nil, nil, fmt.Errorf("failed to load connection selectors: %w", err)
	}

	var prev []string
	if err := json.Unmarshal([]byte(prevJSON), &prev); err != nil {
		return nil, nil, fmt.Errorf("failed to decode stored selectors: %w", err)
	}
	removed, added := DiffSelectors(prev, selectors)

	if len(removed) > 0 {
		query, args := inClause(
			"UPDATE knowledge_chunks SET associated_connection_id = "+sqliteNextOwner+
				" WHERE organization_id = ? AND associated_connection_id = ? AND content IN ",
			[]any{connectionID, organizationID, connectionID}, removed)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, nil, fmt.Errorf("failed to release chunk back-references: %w", err)
		}
	}
	if err := s.setBackReferences(ctx, tx, organizationID, connectionID, added); err != nil {
		return nil, nil, err
	}

	nextJSON, err := json.Marshal(nonNil(selectors))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode selectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE connections SET selectors_json = ?, updated_at = ? WHERE id = ?",
		string(nextJSON), time.Now().UTC(), connectionID); err != nil {
		return nil, nil, fmt.Errorf("failed to store selectors: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit selector update: %w", err)
	}
	return removed, added, nil
}

// sqliteNextOwner picks the most recently updated connection, other than the
// bound one, whose selectors still contain the chunk's content. NULL when none do.
const sqliteNextOwner = `(SELECT c.id FROM connections c, json_each(c.selectors_json) j
	WHERE c.organization_id = knowledge_chunks.organization_id AND c.id <> ? AND j.value = knowledge_chunks.content
	ORDER BY c.updated_at DESC, c.id LIMIT 1)`

func (s *SQLiteStore) setBackReferences(ctx context.Context, tx *sql.Tx, organizationID, connectionID string, contents []string) error {
	if len(contents) == 0 {
		return nil
	}
	query, args := inClause(
		"UPDATE knowledge_chunks SET associated_connection_id = ? WHERE organization_id = ? AND content IN ",
		[]any{connectionID, organizationID}, contents)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set chunk back-references: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteConnection(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin connection delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE knowledge_chunks SET associated_connection_id = "+sqliteNextOwner+" WHERE associated_connection_id = ?",
		id, id); err != nil {
		return fmt.Errorf("failed to release chunk back-references: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM connections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperrors.ErrConnectionNotFound
	}
	return tx.Commit()
}

// KnowledgeChunk methods

func (s *SQLiteStore) CreateChunk(ctx context.Context, chunk *KnowledgeChunk) error {
	embeddingBytes, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	chunk.CreatedAt = time.Now().UTC()

	// A chunk whose content is already selected starts out bound to that connection.
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO knowledge_chunks (organization_id, content, embedding_json, associated_connection_id, created_at)
		VALUES (?, ?, ?, COALESCE(?, (SELECT c.id FROM connections c, json_each(c.selectors_json) j
			WHERE c.organization_id = ? AND j.value = ? ORDER BY c.updated_at DESC, c.id LIMIT 1)), ?)
		RETURNING id, associated_connection_id`,
		chunk.OrganizationID, chunk.Content, string(embeddingBytes), chunk.AssociatedConnectionID,
		chunk.OrganizationID, chunk.Content, chunk.CreatedAt,
	).Scan(&chunk.ID, &chunk.AssociatedConnectionID)
	if err != nil {
		return fmt.Errorf("failed to execute chunk insert: %w", err)
	}
	return nil
}

// DeleteChunk removes one of the organization's chunks. Ranks of later chunks shift down by one.
func (s *SQLiteStore) DeleteChunk(ctx context.Context, organizationID string, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_chunks WHERE id = ? AND organization_id = ?", id, organizationID)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperrors.ErrChunkNotFound
	}
	return nil
}

const chunkColumns = "id, organization_id, content, embedding_json, associated_connection_id, created_at"

// Chunk lists come back in insertion order, which is the store's natural order.

func (s *SQLiteStore) ListChunksByOrganization(ctx context.Context, organizationID string) ([]KnowledgeChunk, error) {
	return s.queryChunks(ctx, "SELECT "+chunkColumns+" FROM knowledge_chunks WHERE organization_id = ? ORDER BY id", organizationID)
}

func (s *SQLiteStore) ListAllChunks(ctx context.Context) ([]KnowledgeChunk, error) {
	return s.queryChunks(ctx, "SELECT "+chunkColumns+" FROM knowledge_chunks ORDER BY id")
}

func (s *SQLiteStore) FindChunksByContent(ctx context.Context, organizationID string, contents []string) ([]KnowledgeChunk, error) {
	if len(contents) == 0 {
		return []KnowledgeChunk{}, nil
	}
	query, args := inClause(
		"SELECT "+chunkColumns+" FROM knowledge_chunks WHERE organization_id = ? AND content IN ",
		[]any{organizationID}, contents)
	return s.queryChunks(ctx, query+" ORDER BY id", args...)
}

func (s *SQLiteStore) CountChunksByConnection(ctx context.Context, connectionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM knowledge_chunks WHERE associated_connection_id = ?", connectionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) queryChunks(ctx context.Context, query string, args ...any) ([]KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge_chunks: %w", err)
	}
	defer rows.Close()

	chunks := []KnowledgeChunk{}
	for rows.Next() {
		var chunk KnowledgeChunk
		var embeddingJSON sql.NullString
		var connectionID sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.OrganizationID, &chunk.Content, &embeddingJSON, &connectionID, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if connectionID.Valid {
			chunk.AssociatedConnectionID = &connectionID.String
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &chunk.Embedding); err != nil {
				s.logger.Warn("Failed to unmarshal chunk embedding",
					zap.Int64("chunk_id", chunk.ID),
					zap.Error(err))
				chunk.Embedding = nil
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// OrganizationBehavior methods

func (s *SQLiteStore) InsertOrganizationBehaviorIfAbsent(ctx context.Context, ob *OrganizationBehavior) (bool, error) {
	behaviorJSON, err := json.Marshal(ob.Behavior)
	if err != nil {
		return false, fmt.Errorf("failed to encode behavior: %w", err)
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO organization_behaviors (organization_id, behavior_json, created_at, updated_at)
		VALUES (?, ?, ?, ?) ON CONFLICT (organization_id) DO NOTHING`,
		ob.OrganizationID, string(behaviorJSON), now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert organization behavior: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 1 {
		ob.CreatedAt = now
		ob.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

func (s *SQLiteStore) UpdateOrganizationBehavior(ctx context.Context, ob *OrganizationBehavior) error {
	behaviorJSON, err := json.Marshal(ob.Behavior)
	if err != nil {
		return fmt.Errorf("failed to encode behavior: %w", err)
	}
	ob.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		"UPDATE organization_behaviors SET behavior_json = ?, updated_at = ? WHERE organization_id = ?",
		string(behaviorJSON), ob.UpdatedAt, ob.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to update organization behavior: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperrors.ErrBehaviorNotFound
	}
	return nil
}

func (s *SQLiteStore) GetOrganizationBehavior(ctx context.Context, organizationID string) (*OrganizationBehavior, error) {
	var ob OrganizationBehavior
	var behaviorJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT organization_id, behavior_json, created_at, updated_at FROM organization_behaviors WHERE organization_id = ?",
		organizationID).Scan(&ob.OrganizationID, &behaviorJSON, &ob.CreatedAt, &ob.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization behavior: %w", err)
	}
	if err := json.Unmarshal([]byte(behaviorJSON), &ob.Behavior); err != nil {
		return nil, fmt.Errorf("failed to decode organization behavior: %w", err)
	}
	return &ob, nil
}

// ConversationMessage methods

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *ConversationMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversation_messages (message_id, user_id, question, answer_html, timestamp, organization_id, connection_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.MessageID, msg.UserID, msg.Question, msg.AnswerHTML, msg.Timestamp, msg.OrganizationID, msg.ConnectionID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("message id %s already exists: %w", msg.MessageID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

const messageColumns = "message_id, user_id, question, answer_html, timestamp, organization_id, connection_id"

func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*ConversationMessage, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM conversation_messages WHERE message_id = ?", messageID)
	msg, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) ListMessagesByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]ConversationMessage, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversation_messages WHERE organization_id = ?", organizationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM conversation_messages WHERE organization_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ? OFFSET ?",
		organizationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []ConversationMessage{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	return messages, total, rows.Err()
}

// FeedbackEvent methods

func (s *SQLiteStore) InsertFeedbackIfAbsent(ctx context.Context, fb *FeedbackEvent) (bool, error) {
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback_events (message_id, user_id, conversation_id, feedback_type, report_reason,
		retry_count, bot_response, user_question, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (message_id, feedback_type) DO NOTHING`,
		fb.MessageID, fb.UserID, fb.ConversationID, string(fb.Type), fb.ReportReason, fb.RetryCount,
		fb.BotResponse, fb.UserQuestion, fb.Timestamp)
	if err != nil {
		return false, fmt.Errorf("failed to insert feedback: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return false, nil
	}
	fb.ID, _ = res.LastInsertId()
	return true, nil
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]FeedbackEvent, error) {
	query := `SELECT f.id, f.message_id, f.user_id, f.conversation_id, f.feedback_type, f.report_reason,
		f.retry_count, f.bot_response, f.user_question, f.timestamp
		FROM feedback_events f`
	var where []string
	var args []any
	if filter.OrganizationID != "" {
		query += " JOIN conversation_messages m ON m.message_id = f.message_id"
		where = append(where, "m.organization_id = ?")
		args = append(args, filter.OrganizationID)
	}
	if filter.UserID != "" {
		where = append(where, "f.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.MessageID != "" {
		where = append(where, "f.message_id = ?")
		args = append(args, filter.MessageID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY f.timestamp DESC, f.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	events := []FeedbackEvent{}
	for rows.Next() {
		var fb FeedbackEvent
		var feedbackType string
		var reason sql.NullString
		var retry sql.NullInt64
		if err := rows.Scan(&fb.ID, &fb.MessageID, &fb.UserID, &fb.ConversationID, &feedbackType, &reason,
			&retry, &fb.BotResponse, &fb.UserQuestion, &fb.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		fb.Type = FeedbackType(feedbackType)
		if reason.Valid {
			fb.ReportReason = &reason.String
		}
		if retry.Valid {
			n := int(retry.Int64)
			fb.RetryCount = &n
		}
		events = append(events, fb)
	}
	return events, rows.Err()
}

// ActivityLog methods

func (s *SQLiteStore) CreateActivityLog(ctx context.Context, entry *ActivityLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	var details sql.NullString
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO activity_logs (organization_id, actor_id, action, collection_type, details_json, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		entry.OrganizationID, entry.ActorID, entry.Action, entry.CollectionType, details, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListActivityLogs(ctx context.Context, organizationID string, limit int) ([]ActivityLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, actor_id, action, collection_type, details_json, timestamp
		FROM activity_logs WHERE organization_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity logs: %w", err)
	}
	defer rows.Close()

	entries := []ActivityLog{}
	for rows.Next() {
		var entry ActivityLog
		var details sql.NullString
		if err := rows.Scan(&entry.ID, &entry.OrganizationID, &entry.ActorID, &entry.Action,
			&entry.CollectionType, &details, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity log row: %w", err)
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode activity details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*Connection, error) {
	var conn Connection
	var selectorsJSON string
	var behaviorJSON sql.NullString
	if err := row.Scan(&conn.ID, &conn.OrganizationID, &conn.Name, &conn.EmbedURL, &conn.ImageURL, &selectorsJSON,
		&conn.UseCustomPrompt, &conn.CustomPromptText, &behaviorJSON, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(selectorsJSON), &conn.KnowledgeSelectors); err != nil {
		return nil, fmt.Errorf("failed to decode selectors: %w", err)
	}
	if conn.KnowledgeSelectors == nil {
		conn.KnowledgeSelectors = []string{}
	}
	if behaviorJSON.Valid && behaviorJSON.String != "" {
		var b BehaviorDescriptor
		if err := json.Unmarshal([]byte(behaviorJSON.String), &b); err != nil {
			return nil, fmt.Errorf("failed to decode behavior: %w", err)
		}
		conn.Behavior = &b
	}
	return &conn, nil
}

func scanMessage(row rowScanner) (*ConversationMessage, error) {
	var msg ConversationMessage
	var orgID, connID sql.NullString
	if err := row.Scan(&msg.MessageID, &msg.UserID, &msg.Question, &msg.AnswerHTML, &msg.Timestamp, &orgID, &connID); err != nil {
		return nil, err
	}
	if orgID.Valid {
		msg.OrganizationID = &orgID.String
	}
	if connID.Valid {
		msg.ConnectionID = &connID.String
	}
	return &msg, nil
}

func encodeConnectionJSON(conn *Connection) (string, *string, error) {
	selectorsJSON, err := json.Marshal(nonNil(conn.KnowledgeSelectors))
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode selectors: %w", err)
	}
	if conn.Behavior == nil {
		return string(selectorsJSON), nil, nil
	}
	behaviorJSON, err := json.Marshal(conn.Behavior)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode behavior: %w", err)
	}
	b := string(behaviorJSON)
	return string(selectorsJSON), &b, nil
}

// inClause appends "(?, ?, ...)" for values to prefix and returns the merged args.
func inClause(prefix string, args []any, values []string) (string, []any) {
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args = append(args, v)
	}
	return prefix + "(" + strings.Join(placeholders, ", ") + ")", args
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
