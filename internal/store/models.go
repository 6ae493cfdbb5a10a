package store

import "time"

// BehaviorDescriptor is the set of answer-shaping settings for a bot.
// Empty fields mean "not set" and are filled from defaults at resolution time.
type BehaviorDescriptor struct {
	Tone            string `json:"tone"`
	ResponseLength  string `json:"responseLength"`
	Personality     string `json:"personality"`
	OutputStructure string `json:"outputStructure"`
	MustDo          string `json:"mustDo"`
	MustNotDo       string `json:"mustNotDo"`
	Persona         string `json:"persona"`
}

type Connection struct {
	ID                 string              `json:"id"`
	OrganizationID     string              `json:"organizationId"`
	Name               string              `json:"name"`
	EmbedURL           string              `json:"embedUrl"`
	ImageURL           string              `json:"imageUrl,omitempty"`
	KnowledgeSelectors []string            `json:"knowledgeSelectors"`
	UseCustomPrompt    bool                `json:"useCustomPrompt"`
	CustomPromptText   string              `json:"customPrompt,omitempty"`
	Behavior           *BehaviorDescriptor `json:"botBehavior,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

type KnowledgeChunk struct {
	ID                     int64     `json:"id"`
	OrganizationID         string    `json:"organizationId"`
	Content                string    `json:"content"`
	Embedding              []float32 `json:"-"`
	AssociatedConnectionID *string   `json:"associatedConnectionId"`
	CreatedAt              time.Time `json:"createdAt"`
}

// ConversationMessage is one question/answer exchange. MessageID is the only
// identity feedback may reference.
type ConversationMessage struct {
	MessageID      string    `json:"messageId"`
	UserID         string    `json:"userId"`
	Question       string    `json:"question"`
	AnswerHTML     string    `json:"response"`
	Timestamp      time.Time `json:"timestamp"`
	OrganizationID *string   `json:"organizationId,omitempty"`
	ConnectionID   *string   `json:"connectionId,omitempty"`
}

type FeedbackType string

const (
	FeedbackLike    FeedbackType = "like"
	FeedbackDislike FeedbackType = "dislike"
	FeedbackReport  FeedbackType = "report"
	FeedbackRetry   FeedbackType = "retry"
)

var FeedbackTypes = []FeedbackType{FeedbackLike, FeedbackDislike, FeedbackReport, FeedbackRetry}

func (t FeedbackType) Valid() bool {
	for _, ft := range FeedbackTypes {
		if t == ft {
			return true
		}
	}
	return false
}

type FeedbackEvent struct {
	ID             int64        `json:"id"`
	MessageID      string       `json:"messageId"`
	UserID         string       `json:"userId"`
	ConversationID string       `json:"conversationId"`
	Type           FeedbackType `json:"type"`
	ReportReason   *string      `json:"reportReason,omitempty"`
	RetryCount     *int         `json:"retryCount,omitempty"`
	BotResponse    string       `json:"botResponse"`
	UserQuestion   string       `json:"userQuestion"`
	Timestamp      time.Time    `json:"timestamp"`
}

// FeedbackTypeFlags renders the event type in the one-hot shape widgets expect.
func (f FeedbackEvent) FeedbackTypeFlags() map[FeedbackType]bool {
	flags := make(map[FeedbackType]bool, len(FeedbackTypes))
	for _, ft := range FeedbackTypes {
		flags[ft] = ft == f.Type
	}
	return flags
}

type OrganizationBehavior struct {
	OrganizationID string             `json:"organizationId"`
	Behavior       BehaviorDescriptor `json:"behavior"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// FeedbackFilter narrows ListFeedback. Empty fields are ignored.
type FeedbackFilter struct {
	OrganizationID string
	UserID         string
	MessageID      string
}

// Collections an ActivityLog entry can refer to.
const (
	CollectionConnections          = "connections"
	CollectionKnowledgeChunks      = "knowledge_chunks"
	CollectionOrganizationBehavior = "organization_behavior"
)

// ActivityLog records one admin change to an organization's configuration.
type ActivityLog struct {
	ID             int64          `json:"id"`
	OrganizationID string         `json:"organizationId"`
	ActorID        string         `json:"actorId"`
	Action         string         `json:"action"`
	CollectionType string         `json:"collectionType"`
	Details        map[string]any `json:"details,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
