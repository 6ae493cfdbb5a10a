package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/apperrors"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

// BehaviorSource names the tier a resolved behavior came from.
type BehaviorSource string

const (
	SourceConnectionCustomPrompt BehaviorSource = "connection_custom_prompt"
	SourceConnectionDescriptor   BehaviorSource = "connection_descriptor"
	SourceOrganizationDescriptor BehaviorSource = "organization_descriptor"
	SourceHardDefault            BehaviorSource = "hard_default"
)

const (
	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"

	StructureParagraph = "paragraph"
	StructureBullets   = "bullets"

	maxBehaviorFieldLen = 500
)

// DefaultBehavior returns the descriptor used when nothing else is configured.
func DefaultBehavior() store.BehaviorDescriptor {
	return store.BehaviorDescriptor{
		Tone:            "professional",
		ResponseLength:  LengthMedium,
		Personality:     "helpful",
		OutputStructure: StructureParagraph,
		MustDo:          "_",
		MustNotDo:       "_",
		Persona:         "AI",
	}
}

// WithDefaults fills each empty field from DefaultBehavior, field by field.
func WithDefaults(d store.BehaviorDescriptor) store.BehaviorDescriptor {
	def := DefaultBehavior()
	fill := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}
	return store.BehaviorDescriptor{
		Tone:            fill(d.Tone, def.Tone),
		ResponseLength:  fill(d.ResponseLength, def.ResponseLength),
		Personality:     fill(d.Personality, def.Personality),
		OutputStructure: fill(d.OutputStructure, def.OutputStructure),
		MustDo:          fill(d.MustDo, def.MustDo),
		MustNotDo:       fill(d.MustNotDo, def.MustNotDo),
		Persona:         fill(d.Persona, def.Persona),
	}
}

// NormalizeBehavior trims every field, lowercases the enumerated ones and
// rejects values outside their sets. Empty fields stay empty.
func NormalizeBehavior(d store.BehaviorDescriptor) (store.BehaviorDescriptor, error) {
	out := store.BehaviorDescriptor{
		Tone:            strings.TrimSpace(d.Tone),
		ResponseLength:  strings.ToLower(strings.TrimSpace(d.ResponseLength)),
		Personality:     strings.TrimSpace(d.Personality),
		OutputStructure: strings.ToLower(strings.TrimSpace(d.OutputStructure)),
		MustDo:          strings.TrimSpace(d.MustDo),
		MustNotDo:       strings.TrimSpace(d.MustNotDo),
		Persona:         strings.TrimSpace(d.Persona),
	}

	switch out.ResponseLength {
	case "", LengthShort, LengthMedium, LengthLong:
	default:
		return out, apperrors.Invalid("responseLength", "must be one of short, medium, long")
	}
	switch out.OutputStructure {
	case "", StructureParagraph, StructureBullets:
	default:
		return out, apperrors.Invalid("outputStructure", "must be one of paragraph, bullets")
	}

	for _, f := range []struct{ name, value string }{
		{"tone", out.Tone},
		{"personality", out.Personality},
		{"mustDo", out.MustDo},
		{"mustNotDo", out.MustNotDo},
		{"persona", out.Persona},
	} {
		if len(f.value) > maxBehaviorFieldLen {
			return out, apperrors.Invalid(f.name, fmt.Sprintf("must be at most %d characters", maxBehaviorFieldLen))
		}
	}
	return out, nil
}

// Resolution is the request-scoped outcome of behavior resolution. It is a
// value; nothing about it is shared between requests.
type Resolution struct {
	Source       BehaviorSource
	Behavior     store.BehaviorDescriptor
	CustomPrompt string
}

// IsCustom reports whether the prompt assembler should use CustomPrompt verbatim.
func (r Resolution) IsCustom() bool {
	return r.Source == SourceConnectionCustomPrompt
}

// ConnectionScoped reports whether the resolution depends only on the connection record.
func (r Resolution) ConnectionScoped() bool {
	return r.Source == SourceConnectionCustomPrompt || r.Source == SourceConnectionDescriptor
}

type BehaviorService struct {
	store    store.Store
	activity *ActivityRecorder
	logger   *zap.Logger
}

func NewBehaviorService(s store.Store, activity *ActivityRecorder, logger *zap.Logger) *BehaviorService {
	return &BehaviorService{store: s, activity: activity, logger: logger.Named("behavior")}
}

// Resolve walks connection custom prompt, connection descriptor, organization
// descriptor and the hard default, in that order.
func (s *BehaviorService) Resolve(ctx context.Context, conn *store.Connection, organizationID string) (Resolution, error) {
	if conn != nil {
		if conn.UseCustomPrompt && strings.TrimSpace(conn.CustomPromptText) != "" {
			return Resolution{Source: SourceConnectionCustomPrompt, CustomPrompt: conn.CustomPromptText}, nil
		}
		if conn.Behavior != nil {
			return Resolution{Source: SourceConnectionDescriptor, Behavior: WithDefaults(*conn.Behavior)}, nil
		}
		organizationID = conn.OrganizationID
	}

	if organizationID != "" {
		ob, err := s.store.GetOrganizationBehavior(ctx, organizationID)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to load organization behavior: %w", err)
		}
		if ob != nil {
			return Resolution{Source: SourceOrganizationDescriptor, Behavior: WithDefaults(ob.Behavior)}, nil
		}
	}

	return Resolution{Source: SourceHardDefault, Behavior: DefaultBehavior()}, nil
}

// CreateOrganizationBehavior stores the organization default once. When one
// already exists it is returned unchanged with created=false.
func (s *BehaviorService) CreateOrganizationBehavior(ctx context.Context, organizationID string, d store.BehaviorDescriptor) (*store.OrganizationBehavior, bool, error) {
	normalized, err := NormalizeBehavior(d)
	if err != nil {
		return nil, false, err
	}

	ob := &store.OrganizationBehavior{OrganizationID: organizationID, Behavior: normalized}
	created, err := s.store.InsertOrganizationBehaviorIfAbsent(ctx, ob)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("Created organization behavior", zap.String("organization_id", organizationID))
		s.activity.Record(ctx, organizationID, ActionCreateBehavior, store.CollectionOrganizationBehavior, behaviorDetails(normalized))
		return ob, true, nil
	}

	existing, err := s.store.GetOrganizationBehavior(ctx, organizationID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, apperrors.ErrBehaviorNotFound
	}
	return existing, false, nil
}

func (s *BehaviorService) UpdateOrganizationBehavior(ctx context.Context, organizationID string, d store.BehaviorDescriptor) (*store.OrganizationBehavior, error) {
	normalized, err := NormalizeBehavior(d)
	if err != nil {
		return nil, err
	}
	ob := &store.OrganizationBehavior{OrganizationID: organizationID, Behavior: normalized}
	if err := s.store.UpdateOrganizationBehavior(ctx, ob); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, organizationID, ActionUpdateBehavior, store.CollectionOrganizationBehavior, behaviorDetails(normalized))
	return s.GetOrganizationBehavior(ctx, organizationID)
}

func behaviorDetails(d store.BehaviorDescriptor) map[string]any {
	return map[string]any{
		"tone":            d.Tone,
		"responseLength":  d.ResponseLength,
		"outputStructure": d.OutputStructure,
		"persona":         d.Persona,
	}
}

func (s *BehaviorService) GetOrganizationBehavior(ctx context.Context, organizationID string) (*store.OrganizationBehavior, error) {
	ob, err := s.store.GetOrganizationBehavior(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if ob == nil {
		return nil, apperrors.ErrBehaviorNotFound
	}
	return ob, nil
}
