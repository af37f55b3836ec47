// Package chatlog assembles channel context around a message and renders
// it as a human-readable transcript.
package chatlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/valmeida/chatvault/internal/database"
)

// defaultContextLimit bounds how many sibling messages a bundle carries.
const defaultContextLimit = 20

// Bundle is a target message plus a bounded set of other messages from
// the same channel.
type Bundle struct {
	Message         *database.MessageWithAuthor  `json:"message"`
	ChannelID       string                       `json:"channel_id"`
	ContextMessages []database.MessageWithAuthor `json:"context_messages"`
	Count           int                          `json:"count"`
}

// Assembler loads context bundles from the store.
type Assembler struct {
	store  database.Store
	logger *slog.Logger
	limit  int
}

// NewAssembler creates a context assembler bound to a store.
func NewAssembler(store database.Store, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Assembler{
		store:  store,
		logger: logger.With("component", "chatlog"),
		limit:  defaultContextLimit,
	}
}

// AssembleContext loads the target message and up to 20 other messages
// from its channel in origin-timestamp order. The window is the first 20
// other rows of the channel, not a window centered on the target; with
// dense history it may fall entirely before or after the target.
// Returns database.ErrNotFound (wrapped) when the id is unknown.
func (a *Assembler) AssembleContext(ctx context.Context, messageID string) (*Bundle, error) {
	message, err := a.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble context for message %s: %w", messageID, err)
	}

	contextMessages, err := a.store.ListChannelContext(ctx, message.ChannelID, messageID, a.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble context for message %s: %w", messageID, err)
	}

	return &Bundle{
		Message:         message,
		ChannelID:       message.ChannelID,
		ContextMessages: contextMessages,
		Count:           len(contextMessages),
	}, nil
}

// RenderTranscript renders the context bundle of a message as
// "[HH:MM] <name>: <content>" lines. Any failure, including an unknown
// message id, yields an empty slice: callers get "no context" instead of
// an error.
func (a *Assembler) RenderTranscript(ctx context.Context, messageID string) []string {
	bundle, err := a.AssembleContext(ctx, messageID)
	if err != nil {
		a.logger.WarnContext(ctx, "Transcript rendering degraded to empty", "message_id", messageID, "error", err)
		return []string{}
	}

	messages := make([]database.MessageWithAuthor, len(bundle.ContextMessages))
	copy(messages, bundle.ContextMessages)

	// The store already orders by timestamp; re-sorting keeps the
	// transcript stable even if the query ordering changes.
	sort.SliceStable(messages, func(i, j int) bool {
		ti, tj := messages[i].MessageTimestamp, messages[j].MessageTimestamp
		switch {
		case !ti.Valid:
			return false
		case !tj.Valid:
			return true
		default:
			return ti.Time.Before(tj.Time)
		}
	})

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", clockTime(&m), DisplayName(&m), m.Content.String))
	}
	return lines
}

// DisplayName prefers the author's global display name over their handle.
func DisplayName(m *database.MessageWithAuthor) string {
	switch {
	case m.AuthorGlobalName.Valid && m.AuthorGlobalName.String != "":
		return m.AuthorGlobalName.String
	case m.AuthorUsername.Valid && m.AuthorUsername.String != "":
		return m.AuthorUsername.String
	default:
		return "unknown"
	}
}

// clockTime takes the precomputed local display time when present and
// falls back to the origin timestamp.
func clockTime(m *database.MessageWithAuthor) string {
	if m.TimestampLocal.Valid && m.TimestampLocal.String != "" {
		return m.TimestampLocal.String
	}
	if m.MessageTimestamp.Valid {
		return m.MessageTimestamp.Time.Format("15:04")
	}
	return "--:--"
}
