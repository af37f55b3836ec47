// Package insights computes per-user statistics over the archived
// messages and persists them as append-only insight facts.
package insights

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/valmeida/chatvault/internal/database"
)

// contextWindow is how far around each message the channel context reaches.
const contextWindow = 5 * time.Minute

// maxContextBundles bounds the response size.
const maxContextBundles = 20

// Insight fact names written by the aggregator.
const (
	InsightMessageCount = "message_count"
	InsightChannelCount = "channel_count"
)

// ContextBundle pairs one of the user's messages with the channel
// messages sent within the window around it.
type ContextBundle struct {
	Message         database.MessageWithAuthor   `json:"message"`
	ContextMessages []database.MessageWithAuthor `json:"context_messages"`
}

// Report is the result of one aggregation run.
type Report struct {
	UserID       string          `json:"user_id"`
	MessageCount int             `json:"message_count"`
	ChannelCount int             `json:"channel_count"`
	Contexts     []ContextBundle `json:"contexts,omitempty"`
}

// Aggregator computes and persists user insights.
type Aggregator struct {
	store  database.Store
	logger *slog.Logger
}

// NewAggregator creates an aggregator bound to a store.
func NewAggregator(store database.Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Aggregator{
		store:  store,
		logger: logger.With("component", "insights"),
	}
}

// Generate aggregates statistics for one user. A user with no messages
// yields a zero-count report, not an error. Channel context for all of
// the user's messages comes from a single window-join query rather than
// one query per message; the computed statistics are persisted as
// user_insights rows (best effort).
func (a *Aggregator) Generate(ctx context.Context, userID string) (*Report, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	messages, err := a.store.ListMessagesByAuthor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for user %s: %w", userID, err)
	}

	if len(messages) == 0 {
		a.logger.InfoContext(ctx, "No messages for user, returning zero-count report", "user_id", userID)
		return &Report{UserID: userID, MessageCount: 0}, nil
	}

	channelCount, err := a.store.CountDistinctChannels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count channels for user %s: %w", userID, err)
	}

	rows, err := a.store.ListWindowContexts(ctx, userID, contextWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load window contexts for user %s: %w", userID, err)
	}

	contextByTarget := make(map[string][]database.MessageWithAuthor, len(messages))
	for _, row := range rows {
		contextByTarget[row.TargetID] = append(contextByTarget[row.TargetID], row.MessageWithAuthor)
	}

	ordered := make([]database.MessageWithAuthor, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].MessageTimestamp, ordered[j].MessageTimestamp
		switch {
		case !ti.Valid:
			return false
		case !tj.Valid:
			return true
		default:
			return ti.Time.Before(tj.Time)
		}
	})

	bundles := make([]ContextBundle, 0, maxContextBundles)
	for _, m := range ordered {
		if len(bundles) == maxContextBundles {
			break
		}
		bundles = append(bundles, ContextBundle{
			Message:         m,
			ContextMessages: contextByTarget[m.ID],
		})
	}

	report := &Report{
		UserID:       userID,
		MessageCount: len(messages),
		ChannelCount: channelCount,
		Contexts:     bundles,
	}

	a.persist(ctx, report)

	a.logger.InfoContext(ctx, "Generated user insights",
		"user_id", userID,
		"message_count", report.MessageCount,
		"channel_count", report.ChannelCount,
		"context_bundles", len(bundles),
	)
	return report, nil
}

// persist writes the report's statistics as insight facts. Failures are
// logged and do not fail the aggregation.
func (a *Aggregator) persist(ctx context.Context, report *Report) {
	facts := []database.UserInsight{
		{UserID: report.UserID, InsightName: InsightMessageCount, InsightValue: strconv.Itoa(report.MessageCount)},
		{UserID: report.UserID, InsightName: InsightChannelCount, InsightValue: strconv.Itoa(report.ChannelCount)},
	}
	for i := range facts {
		if err := a.store.InsertUserInsight(ctx, &facts[i]); err != nil {
			a.logger.WarnContext(ctx, "Failed to persist insight fact",
				"user_id", report.UserID, "insight_name", facts[i].InsightName, "error", err)
		}
	}
}

// Read returns the stored insight facts for a user; empty when none exist.
func (a *Aggregator) Read(ctx context.Context, userID string) ([]database.UserInsight, error) {
	return a.store.ListUserInsights(ctx, userID)
}
