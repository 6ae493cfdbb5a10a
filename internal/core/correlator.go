package core

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/store"
)

// NewMessageID returns a 24-hex-char id: a 4-byte big-endian unix timestamp
// followed by 8 random bytes.
func NewMessageID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	u := uuid.New()
	copy(b[4:], u[:8])
	return hex.EncodeToString(b[:])
}

// Exchange is one answered question waiting to be persisted.
type Exchange struct {
	UserID         string
	Question       string
	AnswerHTML     string
	OrganizationID string
	ConnectionID   string
}

// Correlator mints message ids and persists exchanges under them.
type Correlator struct {
	store  store.Store
	logger *zap.Logger
}

func NewCorrelator(s store.Store, logger *zap.Logger) *Correlator {
	return &Correlator{store: s, logger: logger.Named("correlator")}
}

// RecordExchange persists the exchange under a fresh message id and returns it.
func (c *Correlator) RecordExchange(ctx context.Context, ex Exchange) (string, error) {
	msg := &store.ConversationMessage{
		MessageID:      NewMessageID(),
		UserID:         ex.UserID,
		Question:       ex.Question,
		AnswerHTML:     ex.AnswerHTML,
		Timestamp:      time.Now().UTC(),
		OrganizationID: optional(ex.OrganizationID),
		ConnectionID:   optional(ex.ConnectionID),
	}
	if err := c.store.CreateMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to record exchange: %w", err)
	}
	return msg.MessageID, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
