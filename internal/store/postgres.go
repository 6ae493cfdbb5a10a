package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
)

// PostgresStore is the server-grade Store. Chunk embeddings live in a pgvector column.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore runs migrations and opens a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	logger = logger.Named("postgres")
	if err := RunMigrations(databaseURL, logger); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 25
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const pgConnectionColumns = "id, organization_id, name, embed_url, image_url, selectors, use_custom_prompt, custom_prompt, behavior, created_at, updated_at"

func (s *PostgresStore) CreateConnection(ctx context.Context, conn *Connection) error {
	behaviorJSON, err := behaviorBytes(conn.Behavior)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO connections (`+pgConnectionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			conn.ID, conn.OrganizationID, conn.Name, conn.EmbedURL, conn.ImageURL, nonNil(conn.KnowledgeSelectors),
			conn.UseCustomPrompt, conn.CustomPromptText, behaviorJSON, conn.CreatedAt, conn.UpdatedAt)
		if err != nil {
			if isPgUniqueViolation(err) {
				return fmt.Errorf("embed url already registered: %w", apperrors.ErrConflict)
			}
			return fmt.Errorf("failed to insert connection: %w", err)
		}
		return pgSetBackReferences(ctx, tx, conn.OrganizationID, conn.ID, conn.KnowledgeSelectors)
	})
}

func (s *PostgresStore) UpdateConnection(ctx context.Context, conn *Connection) error {
	behaviorJSON, err := behaviorBytes(conn.Behavior)
	if err != nil {
		return err
	}
	conn.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE connections SET name = $1, embed_url = $2, image_url = $3, use_custom_prompt = $4,
		custom_prompt = $5, behavior = $6, updated_at = $7 WHERE id = $8`,
		conn.Name, conn.EmbedURL, conn.ImageURL, conn.UseCustomPrompt, conn.CustomPromptText,
		behaviorJSON, conn.UpdatedAt, conn.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("embed url already registered: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConnectionNotFound
	}
	return nil
}

func (s *PostgresStore) GetConnection(ctx context.Context, id string) (*Connection, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+pgConnectionColumns+" FROM connections WHERE id = $1", id)
	conn, err := pgScanConnection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (s *PostgresStore) FindConnectionByEmbedURL(ctx context.Context, embedURL string) (*Connection, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+pgConnectionColumns+" FROM connections WHERE embed_url = $1", embedURL)
	conn, err := pgScanConnection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find connection by embed url: %w", err)
	}
	return conn, nil
}

func (s *PostgresStore) ListConnections(ctx context.Context, organizationID string) ([]Connection, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+pgConnectionColumns+" FROM connections WHERE organization_id = $1 ORDER BY created_at, id", organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	connections := []Connection{}
	for rows.Next() {
		conn, err := pgScanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		connections = append(connections, *conn)
	}
	return connections, rows.Err()
}

func (s *PostgresStore) ReplaceConnectionSelectors(ctx context.Context, connectionID string, selectors []string) ([]string, []string, error) {
	var removed, added []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var organizationID string
		var prev []string
		err := tx.QueryRow(ctx,
			"SELECT organization_id, selectors FROM connections WHERE id = $1 FOR UPDATE", connectionID).
			Scan(&organizationID, &prev)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrConnectionNotFound
			}
			return fmt.Errorf("failed to load connection selectors: %w", err)
		}

		removed, added = DiffSelectors(prev, selectors)
		if len(removed) > 0 {
			if _, err := tx.Exec(ctx,
				`UPDATE knowledge_chunks SET associated_connection_id = `+pgNextOwner("$2")+`
				WHERE organization_id = $1 AND associated_connection_id = $2 AND content = ANY($3)`,
				organizationID, connectionID, removed); err != nil {
				return fmt.Errorf("failed to release chunk back-references: %w", err)
			}
		}
		if err := pgSetBackReferences(ctx, tx, organizationID, connectionID, added); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, "UPDATE connections SET selectors = $1, updated_at = $2 WHERE id = $3",
			nonNil(selectors), time.Now().UTC(), connectionID); err != nil {
			return fmt.Errorf("failed to store selectors: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return removed, added, nil
}

// pgNextOwner picks the most recently updated connection, other than the one
// bound to param, whose selectors still contain the chunk's content.
func pgNextOwner(param string) string {
	return `(SELECT c.id FROM connections c
		WHERE c.organization_id = knowledge_chunks.organization_id AND c.id <> ` + param + `
		AND knowledge_chunks.content = ANY(c.selectors)
		ORDER BY c.updated_at DESC, c.id LIMIT 1)`
}

func pgSetBackReferences(ctx context.Context, tx pgx.Tx, organizationID, connectionID string, contents []string) error {
	if len(contents) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`UPDATE knowledge_chunks SET associated_connection_id = $1
		WHERE organization_id = $2 AND content = ANY($3)`,
		connectionID, organizationID, contents); err != nil {
		return fmt.Errorf("failed to set chunk back-references: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteConnection(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"UPDATE knowledge_chunks SET associated_connection_id = "+pgNextOwner("$1")+" WHERE associated_connection_id = $1",
			id); err != nil {
			return fmt.Errorf("failed to release chunk back-references: %w", err)
		}
		tag, err := tx.Exec(ctx, "DELETE FROM connections WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete connection: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrConnectionNotFound
		}
		return nil
	})
}

func (s *PostgresStore) CreateChunk(ctx context.Context, chunk *KnowledgeChunk) error {
	var embedding *pgvector.Vector
	if len(chunk.Embedding) > 0 {
		v := pgvector.NewVector(chunk.Embedding)
		embedding = &v
	}
	chunk.CreatedAt = time.Now().UTC()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO knowledge_chunks (organization_id, content, embedding, associated_connection_id, created_at)
		VALUES ($1, $2, $3, COALESCE($4::text, (SELECT c.id FROM connections c
			WHERE c.organization_id = $1 AND $2 = ANY(c.selectors) ORDER BY c.updated_at DESC, c.id LIMIT 1)), $5)
		RETURNING id, associated_connection_id`,
		chunk.OrganizationID, chunk.Content, embedding, chunk.AssociatedConnectionID, chunk.CreatedAt,
	).Scan(&chunk.ID, &chunk.AssociatedConnectionID)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteChunk(ctx context.Context, organizationID string, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM knowledge_chunks WHERE id = $1 AND organization_id = $2", id, organizationID)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrChunkNotFound
	}
	return nil
}

const pgChunkColumns = "id, organization_id, content, embedding, associated_connection_id, created_at"

func (s *PostgresStore) ListChunksByOrganization(ctx context.Context, organizationID string) ([]KnowledgeChunk, error) {
	return s.queryChunks(ctx, "SELECT "+pgChunkColumns+" FROM knowledge_chunks WHERE organization_id = $1 ORDER BY id", organizationID)
}

func (s *PostgresStore) ListAllChunks(ctx context.Context) ([]KnowledgeChunk, error) {
	return s.queryChunks(ctx, "SELECT "+pgChunkColumns+" FROM knowledge_chunks ORDER BY id")
}

func (s *PostgresStore) FindChunksByContent(ctx context.Context, organizationID string, contents []string) ([]KnowledgeChunk, error) {
	if len(contents) == 0 {
		return []KnowledgeChunk{}, nil
	}
	return s.queryChunks(ctx,
		"SELECT "+pgChunkColumns+" FROM knowledge_chunks WHERE organization_id = $1 AND content = ANY($2) ORDER BY id",
		organizationID, contents)
}

func (s *PostgresStore) CountChunksByConnection(ctx context.Context, connectionID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM knowledge_chunks WHERE associated_connection_id = $1", connectionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) queryChunks(ctx context.Context, query string, args ...any) ([]KnowledgeChunk, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge_chunks: %w", err)
	}
	defer rows.Close()

	chunks := []KnowledgeChunk{}
	for rows.Next() {
		var chunk KnowledgeChunk
		var embedding *pgvector.Vector
		if err := rows.Scan(&chunk.ID, &chunk.OrganizationID, &chunk.Content, &embedding,
			&chunk.AssociatedConnectionID, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if embedding != nil {
			chunk.Embedding = embedding.Slice()
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *PostgresStore) InsertOrganizationBehaviorIfAbsent(ctx context.Context, ob *OrganizationBehavior) (bool, error) {
	behaviorJSON, err := json.Marshal(ob.Behavior)
	if err != nil {
		return false, fmt.Errorf("failed to encode behavior: %w", err)
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO organization_behaviors (organization_id, behavior, created_at, updated_at)
		VALUES ($1, $2, $3, $3) ON CONFLICT (organization_id) DO NOTHING`,
		ob.OrganizationID, behaviorJSON, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert organization behavior: %w", err)
	}
	if tag.RowsAffected() == 1 {
		ob.CreatedAt = now
		ob.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

func (s *PostgresStore) UpdateOrganizationBehavior(ctx context.Context, ob *OrganizationBehavior) error {
	behaviorJSON, err := json.Marshal(ob.Behavior)
	if err != nil {
		return fmt.Errorf("failed to encode behavior: %w", err)
	}
	ob.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		"UPDATE organization_behaviors SET behavior = $1, updated_at = $2 WHERE organization_id = $3",
		behaviorJSON, ob.UpdatedAt, ob.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to update organization behavior: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrBehaviorNotFound
	}
	return nil
}

func (s *PostgresStore) GetOrganizationBehavior(ctx context.Context, organizationID string) (*OrganizationBehavior, error) {
	var ob OrganizationBehavior
	var behaviorJSON []byte
	err := s.pool.QueryRow(ctx,
		"SELECT organization_id, behavior, created_at, updated_at FROM organization_behaviors WHERE organization_id = $1",
		organizationID).Scan(&ob.OrganizationID, &behaviorJSON, &ob.CreatedAt, &ob.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization behavior: %w", err)
	}
	if err := json.Unmarshal(behaviorJSON, &ob.Behavior); err != nil {
		return nil, fmt.Errorf("failed to decode organization behavior: %w", err)
	}
	return &ob, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *ConversationMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_messages (message_id, user_id, question, answer_html, timestamp, organization_id, connection_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.MessageID, msg.UserID, msg.Question, msg.AnswerHTML, msg.Timestamp, msg.OrganizationID, msg.ConnectionID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("message id %s already exists: %w", msg.MessageID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

const pgMessageColumns = "message_id, user_id, question, answer_html, timestamp, organization_id, connection_id"

func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (*ConversationMessage, error) {
	var msg ConversationMessage
	err := s.pool.QueryRow(ctx, "SELECT "+pgMessageColumns+" FROM conversation_messages WHERE message_id = $1", messageID).
		Scan(&msg.MessageID, &msg.UserID, &msg.Question, &msg.AnswerHTML, &msg.Timestamp, &msg.OrganizationID, &msg.ConnectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

func (s *PostgresStore) ListMessagesByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]ConversationMessage, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM conversation_messages WHERE organization_id = $1", organizationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+pgMessageColumns+" FROM conversation_messages WHERE organization_id = $1 ORDER BY timestamp DESC, message_id DESC LIMIT $2 OFFSET $3",
		organizationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []ConversationMessage{}
	for rows.Next() {
		var msg ConversationMessage
		if err := rows.Scan(&msg.MessageID, &msg.UserID, &msg.Question, &msg.AnswerHTML, &msg.Timestamp,
			&msg.OrganizationID, &msg.ConnectionID); err != nil {
			return nil, 0, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, total, rows.Err()
}

func (s *PostgresStore) InsertFeedbackIfAbsent(ctx context.Context, fb *FeedbackEvent) (bool, error) {
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO feedback_events (message_id, user_id, conversation_id, feedback_type, report_reason,
		retry_count, bot_response, user_question, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id, feedback_type) DO NOTHING
		RETURNING id`,
		fb.MessageID, fb.UserID, fb.ConversationID, string(fb.Type), fb.ReportReason, fb.RetryCount,
		fb.BotResponse, fb.UserQuestion, fb.Timestamp,
	).Scan(&fb.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]FeedbackEvent, error) {
	query := `SELECT f.id, f.message_id, f.user_id, f.conversation_id, f.feedback_type, f.report_reason,
		f.retry_count, f.bot_response, f.user_question, f.timestamp
		FROM feedback_events f`
	var where []string
	var args []any
	if filter.OrganizationID != "" {
		query += " JOIN conversation_messages m ON m.message_id = f.message_id"
		args = append(args, filter.OrganizationID)
		where = append(where, "m.organization_id = $"+strconv.Itoa(len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, "f.user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.MessageID != "" {
		args = append(args, filter.MessageID)
		where = append(where, "f.message_id = $"+strconv.Itoa(len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY f.timestamp DESC, f.id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	events := []FeedbackEvent{}
	for rows.Next() {
		var fb FeedbackEvent
		var feedbackType string
		var retry *int32
		if err := rows.Scan(&fb.ID, &fb.MessageID, &fb.UserID, &fb.ConversationID, &feedbackType, &fb.ReportReason,
			&retry, &fb.BotResponse, &fb.UserQuestion, &fb.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		fb.Type = FeedbackType(feedbackType)
		if retry != nil {
			n := int(*retry)
			fb.RetryCount = &n
		}
		events = append(events, fb)
	}
	return events, rows.Err()
}

func (s *PostgresStore) CreateActivityLog(ctx context.Context, entry *ActivityLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	var details []byte
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
		details = raw
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO activity_logs (organization_id, actor_id, action, collection_type, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		entry.OrganizationID, entry.ActorID, entry.Action, entry.CollectionType, details, entry.Timestamp,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivityLogs(ctx context.Context, organizationID string, limit int) ([]ActivityLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, actor_id, action, collection_type, details, timestamp
		FROM activity_logs WHERE organization_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`,
		organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity logs: %w", err)
	}
	defer rows.Close()

	entries := []ActivityLog{}
	for rows.Next() {
		var entry ActivityLog
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.OrganizationID, &entry.ActorID, &entry.Action,
			&entry.CollectionType, &details, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity log row: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode activity details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func pgScanConnection(row pgx.Row) (*Connection, error) {
	var conn Connection
	var behaviorJSON []byte
	if err := row.Scan(&conn.ID, &conn.OrganizationID, &conn.Name, &conn.EmbedURL, &conn.ImageURL, &conn.KnowledgeSelectors,
		&conn.UseCustomPrompt, &conn.CustomPromptText, &behaviorJSON, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return nil, err
	}
	if conn.KnowledgeSelectors == nil {
		conn.KnowledgeSelectors = []string{}
	}
	if len(behaviorJSON) > 0 {
		var b BehaviorDescriptor
		if err := json.Unmarshal(behaviorJSON, &b); err != nil {
			return nil, fmt.Errorf("failed to decode behavior: %w", err)
		}
		conn.Behavior = &b
	}
	return &conn, nil
}

// behaviorBytes encodes a descriptor for a JSONB column; nil stays SQL NULL.
func behaviorBytes(b *BehaviorDescriptor) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode behavior: %w", err)
	}
	return raw, nil
}
