package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

// NormalizeEmbedURL trims surrounding space and lowercases the scheme and
// host. Path, trailing slash and query are kept as given, so lookups stay
// exact-match on everything a site controls. The same function runs when a
// connection is saved and when a widget looks one up.
func NormalizeEmbedURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return trimmed
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// ConnectionInput carries the admin-editable fields of a connection.
type ConnectionInput struct {
	Name               string                    `json:"name"`
	EmbedURL           string                    `json:"embedUrl"`
	ImageURL           string                    `json:"imageUrl"`
	KnowledgeSelectors []string                  `json:"knowledgeSelectors"`
	UseCustomPrompt    bool                      `json:"useCustomPrompt"`
	CustomPrompt       string                    `json:"customPrompt"`
	Behavior           *store.BehaviorDescriptor `json:"botBehavior"`
}

// BehaviorUpdate replaces a connection's behavior: either a descriptor or a custom prompt.
type BehaviorUpdate struct {
	UseCustomPrompt bool                      `json:"useCustomPrompt"`
	CustomPrompt    string                    `json:"customPrompt"`
	Behavior        *store.BehaviorDescriptor `json:"botBehavior"`
}

func (u BehaviorUpdate) validate() (BehaviorUpdate, error) {
	out := BehaviorUpdate{UseCustomPrompt: u.UseCustomPrompt}
	if u.UseCustomPrompt {
		if err := ValidateCustomPrompt(u.CustomPrompt); err != nil {
			return out, err
		}
		out.CustomPrompt = u.CustomPrompt
	} else if strings.TrimSpace(u.CustomPrompt) != "" {
		// kept so the admin can switch back without retyping it
		if err := ValidateCustomPrompt(u.CustomPrompt); err != nil {
			return out, err
		}
		out.CustomPrompt = u.CustomPrompt
	}
	if u.Behavior != nil {
		b, err := NormalizeBehavior(*u.Behavior)
		if err != nil {
			return out, err
		}
		out.Behavior = &b
	}
	return out, nil
}

// ConnectionService is the connection registry. Every admin operation is
// scoped to the caller's organization.
type ConnectionService struct {
	store    store.Store
	prompts  *PromptService
	activity *ActivityRecorder
	logger   *zap.Logger
}

func NewConnectionService(s store.Store, prompts *PromptService, activity *ActivityRecorder, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{store: s, prompts: prompts, activity: activity, logger: logger.Named("connections")}
}

// ResolveByEmbedID finds the connection for a widget. embedID may be the
// connection id or its embed URL; URLs must match exactly after normalization.
func (s *ConnectionService) ResolveByEmbedID(ctx context.Context, embedID string) (*store.Connection, error) {
	embedID = strings.TrimSpace(embedID)
	if embedID == "" {
		return nil, apperrors.ErrConnectionNotFound
	}

	conn, err := s.store.GetConnection(ctx, embedID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection: %w", err)
	}
	if conn != nil {
		return conn, nil
	}

	conn, err = s.store.FindConnectionByEmbedURL(ctx, NormalizeEmbedURL(embedID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection: %w", err)
	}
	if conn == nil {
		return nil, apperrors.ErrConnectionNotFound
	}
	return conn, nil
}

func (s *ConnectionService) Create(ctx context.Context, organizationID string, in ConnectionInput) (*store.Connection, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &apperrors.MissingFieldError{Field: "name"}
	}
	embedURL := NormalizeEmbedURL(in.EmbedURL)
	if embedURL == "" {
		return nil, &apperrors.MissingFieldError{Field: "embedUrl"}
	}
	behavior, err := BehaviorUpdate{UseCustomPrompt: in.UseCustomPrompt, CustomPrompt: in.CustomPrompt, Behavior: in.Behavior}.validate()
	if err != nil {
		return nil, err
	}

	conn := &store.Connection{
		ID:                 uuid.New().String(),
		OrganizationID:     organizationID,
		Name:               name,
		EmbedURL:           embedURL,
		ImageURL:           strings.TrimSpace(in.ImageURL),
		KnowledgeSelectors: dedupe(in.KnowledgeSelectors),
		UseCustomPrompt:    behavior.UseCustomPrompt,
		CustomPromptText:   behavior.CustomPrompt,
		Behavior:           behavior.Behavior,
	}
	if err := s.store.CreateConnection(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("Created connection",
		zap.String("organization_id", organizationID),
		zap.String("connection_id", conn.ID),
		zap.Int("selectors", len(conn.KnowledgeSelectors)))
	s.activity.Record(ctx, organizationID, ActionCreateConnection, store.CollectionConnections, map[string]any{
		"connectionId": conn.ID,
		"name":         conn.Name,
		"embedUrl":     conn.EmbedURL,
	})
	return conn, nil
}

// Update replaces every editable field, applying selector changes with the
// same add/remove semantics as UpsertKnowledgeSelectors.
func (s *ConnectionService) Update(ctx context.Context, organizationID, id string, in ConnectionInput) (*store.Connection, error) {
	conn, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		conn.Name = name
	}
	if embedURL := NormalizeEmbedURL(in.EmbedURL); embedURL != "" {
		conn.EmbedURL = embedURL
	}
	conn.ImageURL = strings.TrimSpace(in.ImageURL)

	behavior, err := BehaviorUpdate{UseCustomPrompt: in.UseCustomPrompt, CustomPrompt: in.CustomPrompt, Behavior: in.Behavior}.validate()
	if err != nil {
		return nil, err
	}
	applyBehavior(conn, behavior)

	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		return nil, err
	}
	s.prompts.Invalidate(ctx, conn.ID)

	if in.KnowledgeSelectors != nil {
		if _, _, err := s.replaceSelectors(ctx, conn, in.KnowledgeSelectors); err != nil {
			return nil, err
		}
	}
	s.activity.Record(ctx, organizationID, ActionUpdateConnection, store.CollectionConnections, map[string]any{
		"connectionId": conn.ID,
		"name":         conn.Name,
	})
	return s.Get(ctx, organizationID, id)
}

// Get returns the connection when it belongs to organizationID.
func (s *ConnectionService) Get(ctx context.Context, organizationID, id string) (*store.Connection, error) {
	conn, err := s.store.GetConnection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil || conn.OrganizationID != organizationID {
		return nil, apperrors.ErrConnectionNotFound
	}
	return conn, nil
}

func (s *ConnectionService) List(ctx context.Context, organizationID string) ([]store.Connection, error) {
	return s.store.ListConnections(ctx, organizationID)
}

// Delete hands the connection's chunk back-references to any other connection
// still selecting them, clears the rest and removes it.
func (s *ConnectionService) Delete(ctx context.Context, organizationID, id string) error {
	if _, err := s.Get(ctx, organizationID, id); err != nil {
		return err
	}
	linked, err := s.store.CountChunksByConnection(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count connection chunks: %w", err)
	}
	if err := s.store.DeleteConnection(ctx, id); err != nil {
		return err
	}
	s.prompts.Invalidate(ctx, id)
	s.logger.Info("Deleted connection",
		zap.String("organization_id", organizationID),
		zap.String("connection_id", id),
		zap.Int("released_chunks", linked))
	s.activity.Record(ctx, organizationID, ActionDeleteConnection, store.CollectionConnections, map[string]any{
		"connectionId": id,
	})
	return nil
}

// UpsertKnowledgeSelectors replaces the connection's selector set. Chunks
// dropped from the set are released before added ones are bound.
func (s *ConnectionService) UpsertKnowledgeSelectors(ctx context.Context, organizationID, id string, selectors []string) error {
	conn, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return err
	}
	removed, added, err := s.replaceSelectors(ctx, conn, selectors)
	if err != nil {
		return err
	}
	s.activity.Record(ctx, organizationID, ActionUpdateConnectionDocs, store.CollectionConnections, map[string]any{
		"connectionId": conn.ID,
		"removed":      nonNilStrings(removed),
		"added":        nonNilStrings(added),
	})
	return nil
}

func (s *ConnectionService) replaceSelectors(ctx context.Context, conn *store.Connection, selectors []string) ([]string, []string, error) {
	removed, added, err := s.store.ReplaceConnectionSelectors(ctx, conn.ID, dedupe(selectors))
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("Updated connection documents",
		zap.String("connection_id", conn.ID),
		zap.Int("removed", len(removed)),
		zap.Int("added", len(added)))
	return removed, added, nil
}

// UpsertConnectionBehavior swaps the connection's descriptor or custom prompt
// and drops its cached template.
func (s *ConnectionService) UpsertConnectionBehavior(ctx context.Context, organizationID, id string, update BehaviorUpdate) (*store.Connection, error) {
	conn, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	validated, err := update.validate()
	if err != nil {
		return nil, err
	}

	applyBehavior(conn, validated)

	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		return nil, err
	}
	s.prompts.Invalidate(ctx, conn.ID)
	s.activity.Record(ctx, organizationID, ActionUpdateConnectionBehavior, store.CollectionConnections, map[string]any{
		"connectionId":    conn.ID,
		"useCustomPrompt": conn.UseCustomPrompt,
	})
	return conn, nil
}

// applyBehavior copies a validated update onto conn. Switching to a custom
// prompt without a descriptor keeps the stored one for switching back.
func applyBehavior(conn *store.Connection, validated BehaviorUpdate) {
	conn.UseCustomPrompt = validated.UseCustomPrompt
	conn.CustomPromptText = validated.CustomPrompt
	if validated.Behavior != nil || !validated.UseCustomPrompt {
		conn.Behavior = validated.Behavior
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
