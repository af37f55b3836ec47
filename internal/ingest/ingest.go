// Package ingest validates inbound message envelopes and decomposes them
// into per-table rows of the archive schema.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/valmeida/chatvault/internal/database"
)

// ErrValidation marks a rejected envelope (missing message or message id).
var ErrValidation = errors.New("validation error")

// Envelope is the inbound payload captured from the host platform.
type Envelope struct {
	Type               string          `json:"type"`
	GuildID            string          `json:"guild_id"`
	ChannelID          string          `json:"channel_id"`
	Optimistic         bool            `json:"optimistic"`
	IsPushNotification bool            `json:"is_push_notification"`
	Message            *MessagePayload `json:"message" validate:"required"`
}

// MessagePayload is the message object inside an envelope. Fields mirror
// the host platform's message shape; unknown substructure is preserved in
// raw JSON columns.
type MessagePayload struct {
	ID              string  `json:"id" validate:"required"`
	ChannelID       string  `json:"channel_id"`
	Content         *string `json:"content"`
	Timestamp       *string `json:"timestamp"`
	TimestampLocal  *string `json:"timestamp_local"`
	EditedTimestamp *string `json:"edited_timestamp"`
	Flags           *int64  `json:"flags"`
	Type            *int64  `json:"type"`
	Pinned          bool    `json:"pinned"`
	TTS             bool    `json:"tts"`
	Nonce           *string `json:"nonce"`

	Author            *AuthorPayload      `json:"author"`
	Member            *MemberPayload      `json:"member"`
	Attachments       []AttachmentPayload `json:"attachments"`
	Embeds            []json.RawMessage   `json:"embeds"`
	Components        []json.RawMessage   `json:"components"`
	Mentions          []MentionPayload    `json:"mentions"`
	MessageReference  *ReferencePayload   `json:"message_reference"`
	ReferencedMessage *ReferencedPayload  `json:"referenced_message"`
}

// AuthorPayload is the sender profile attached to a message.
type AuthorPayload struct {
	ID            string  `json:"id"`
	Username      *string `json:"username"`
	GlobalName    *string `json:"global_name"`
	Avatar        *string `json:"avatar"`
	Discriminator *string `json:"discriminator"`
	Clan          *string `json:"clan"`
	PrimaryGuild  *string `json:"primary_guild"`
	Flags         *int64  `json:"flags"`
	Bot           bool    `json:"bot"`
}

// AttachmentPayload is one file attachment.
type AttachmentPayload struct {
	ID          *string `json:"id"`
	Filename    *string `json:"filename"`
	URL         *string `json:"url"`
	ProxyURL    *string `json:"proxy_url"`
	ContentType *string `json:"content_type"`
	Size        *int64  `json:"size"`
	Width       *int64  `json:"width"`
	Height      *int64  `json:"height"`
}

// MentionPayload is one mentioned user.
type MentionPayload struct {
	ID         *string `json:"id"`
	Username   *string `json:"username"`
	GlobalName *string `json:"global_name"`
}

// MemberPayload is the author's guild membership snapshot.
type MemberPayload struct {
	Nick         *string  `json:"nick"`
	Roles        []string `json:"roles"`
	JoinedAt     *string  `json:"joined_at"`
	PremiumSince *string  `json:"premium_since"`
	Pending      bool     `json:"pending"`
	Flags        *int64   `json:"flags"`
}

// ReferencePayload is the reply-link of a message.
type ReferencePayload struct {
	MessageID *string `json:"message_id"`
	ChannelID *string `json:"channel_id"`
	GuildID   *string `json:"guild_id"`
	Type      *int64  `json:"type"`
}

// ReferencedPayload is the denormalized snapshot of the replied-to message.
type ReferencedPayload struct {
	ID        string         `json:"id"`
	ChannelID *string        `json:"channel_id"`
	Content   *string        `json:"content"`
	Timestamp *string        `json:"timestamp"`
	Type      *int64         `json:"type"`
	Flags     *int64         `json:"flags"`
	Author    *AuthorPayload `json:"author"`
}

// embedFields and componentFields pull the typed columns out of the raw
// JSON blobs; the blob itself is stored alongside them.
type embedFields struct {
	Type        *string `json:"type"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	URL         *string `json:"url"`
	Color       *int64  `json:"color"`
}

type componentFields struct {
	Type     *int64  `json:"type"`
	CustomID *string `json:"custom_id"`
}

// Service decomposes envelopes into store writes.
type Service struct {
	store    database.Store
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService creates an ingestion service bound to a store.
func NewService(store database.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:    store,
		logger:   logger.With("component", "ingest"),
		validate: validator.New(),
	}
}

// Ingest persists one envelope. The message upsert alone decides the
// request outcome; child-entity writes are best effort and only logged on
// failure. Re-ingesting an id overwrites the message scalars and appends
// duplicate list children (attachments, embeds, components, mentions).
func (s *Service) Ingest(ctx context.Context, env *Envelope) error {
	if env == nil {
		return fmt.Errorf("%w: missing envelope", ErrValidation)
	}
	if err := s.validate.Struct(env); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msg := env.Message

	if msg.Author != nil && msg.Author.ID != "" {
		if err := s.store.UpsertAuthor(ctx, authorRow(msg.Author)); err != nil {
			s.logger.WarnContext(ctx, "Author upsert failed, continuing with message", "author_id", msg.Author.ID, "error", err)
		}
	}

	row := s.messageRow(env)
	if err := s.store.UpsertMessage(ctx, row); err != nil {
		return fmt.Errorf("failed to persist message %s: %w", msg.ID, err)
	}

	// Everything below is eventually persisted, best effort: a failure on
	// one item never aborts its siblings or the request.
	s.persistChildren(ctx, msg)

	s.logger.InfoContext(ctx, "Message ingested",
		"message_id", msg.ID,
		"channel_id", row.ChannelID,
		"attachments", len(msg.Attachments),
		"embeds", len(msg.Embeds),
		"mentions", len(msg.Mentions),
	)
	return nil
}

func (s *Service) persistChildren(ctx context.Context, msg *MessagePayload) {
	for i, a := range msg.Attachments {
		att := &database.Attachment{
			MessageID:    msg.ID,
			AttachmentID: nullString(a.ID),
			Filename:     nullString(a.Filename),
			URL:          nullString(a.URL),
			ProxyURL:     nullString(a.ProxyURL),
			ContentType:  nullString(a.ContentType),
			Size:         nullInt(a.Size),
			Width:        nullInt(a.Width),
			Height:       nullInt(a.Height),
		}
		if err := s.store.InsertAttachment(ctx, att); err != nil {
			s.logger.WarnContext(ctx, "Attachment insert failed", "message_id", msg.ID, "index", i, "error", err)
		}
	}

	for i, raw := range msg.Embeds {
		var f embedFields
		if err := json.Unmarshal(raw, &f); err != nil {
			s.logger.WarnContext(ctx, "Embed payload unparsable, storing raw only", "message_id", msg.ID, "index", i, "error", err)
		}
		embed := &database.Embed{
			MessageID:   msg.ID,
			EmbedType:   nullString(f.Type),
			Title:       nullString(f.Title),
			Description: nullString(f.Description),
			URL:         nullString(f.URL),
			Color:       nullInt(f.Color),
			Raw:         sql.NullString{String: string(raw), Valid: len(raw) > 0},
		}
		if err := s.store.InsertEmbed(ctx, embed); err != nil {
			s.logger.WarnContext(ctx, "Embed insert failed", "message_id", msg.ID, "index", i, "error", err)
		}
	}

	for i, raw := range msg.Components {
		var f componentFields
		if err := json.Unmarshal(raw, &f); err != nil {
			s.logger.WarnContext(ctx, "Component payload unparsable, storing raw only", "message_id", msg.ID, "index", i, "error", err)
		}
		component := &database.Component{
			MessageID:     msg.ID,
			ComponentType: nullInt(f.Type),
			CustomID:      nullString(f.CustomID),
			Raw:           sql.NullString{String: string(raw), Valid: len(raw) > 0},
		}
		if err := s.store.InsertComponent(ctx, component); err != nil {
			s.logger.WarnContext(ctx, "Component insert failed", "message_id", msg.ID, "index", i, "error", err)
		}
	}

	for i, m := range msg.Mentions {
		mention := &database.Mention{
			MessageID:  msg.ID,
			UserID:     nullString(m.ID),
			Username:   nullString(m.Username),
			GlobalName: nullString(m.GlobalName),
		}
		if err := s.store.InsertMention(ctx, mention); err != nil {
			s.logger.WarnContext(ctx, "Mention insert failed", "message_id", msg.ID, "index", i, "error", err)
		}
	}

	if msg.Member != nil {
		member := &database.Member{
			MessageID:    msg.ID,
			Nick:         nullString(msg.Member.Nick),
			Roles:        marshalRoles(msg.Member.Roles),
			JoinedAt:     parseTime(msg.Member.JoinedAt),
			PremiumSince: parseTime(msg.Member.PremiumSince),
			Pending:      msg.Member.Pending,
			Flags:        nullInt(msg.Member.Flags),
		}
		if err := s.store.UpsertMember(ctx, member); err != nil {
			s.logger.WarnContext(ctx, "Member upsert failed", "message_id", msg.ID, "error", err)
		}
	}

	if msg.MessageReference != nil {
		ref := &database.MessageReference{
			MessageID:           msg.ID,
			ReferencedMessageID: nullString(msg.MessageReference.MessageID),
			ReferencedChannelID: nullString(msg.MessageReference.ChannelID),
			ReferencedGuildID:   nullString(msg.MessageReference.GuildID),
			ReferenceType:       nullInt(msg.MessageReference.Type),
		}
		if err := s.store.UpsertMessageReference(ctx, ref); err != nil {
			s.logger.WarnContext(ctx, "Message reference upsert failed", "message_id", msg.ID, "error", err)
		}
	}

	if msg.ReferencedMessage != nil && msg.ReferencedMessage.ID != "" {
		var authorID sql.NullString
		if msg.ReferencedMessage.Author != nil && msg.ReferencedMessage.Author.ID != "" {
			authorID = sql.NullString{String: msg.ReferencedMessage.Author.ID, Valid: true}
		}
		ref := &database.ReferencedMessage{
			ID:               msg.ReferencedMessage.ID,
			ParentMessageID:  msg.ID,
			ChannelID:        nullString(msg.ReferencedMessage.ChannelID),
			AuthorID:         authorID,
			Content:          nullString(msg.ReferencedMessage.Content),
			MessageTimestamp: parseTime(msg.ReferencedMessage.Timestamp),
			Type:             nullInt(msg.ReferencedMessage.Type),
			Flags:            nullInt(msg.ReferencedMessage.Flags),
		}
		if err := s.store.UpsertReferencedMessage(ctx, ref); err != nil {
			s.logger.WarnContext(ctx, "Referenced message upsert failed", "message_id", msg.ID, "error", err)
		}
	}
}

func (s *Service) messageRow(env *Envelope) *database.Message {
	msg := env.Message

	channelID := env.ChannelID
	if channelID == "" {
		channelID = msg.ChannelID
	}

	var authorID sql.NullString
	if msg.Author != nil && msg.Author.ID != "" {
		authorID = sql.NullString{String: msg.Author.ID, Valid: true}
	}

	return &database.Message{
		ID:                 msg.ID,
		ChannelID:          channelID,
		GuildID:            env.GuildID,
		Content:            nullString(msg.Content),
		AuthorID:           authorID,
		MessageTimestamp:   parseTime(msg.Timestamp),
		EditedTimestamp:    parseTime(msg.EditedTimestamp),
		CreatedAt:          database.Time{Time: time.Now().UTC()},
		TimestampLocal:     nullString(msg.TimestampLocal),
		Flags:              nullInt(msg.Flags),
		Type:               nullInt(msg.Type),
		Pinned:             msg.Pinned,
		TTS:                msg.TTS,
		Nonce:              nullString(msg.Nonce),
		Optimistic:         env.Optimistic,
		IsPushNotification: env.IsPushNotification,
	}
}

func authorRow(a *AuthorPayload) *database.Author {
	return &database.Author{
		ID:            a.ID,
		Username:      nullString(a.Username),
		GlobalName:    nullString(a.GlobalName),
		Avatar:        nullString(a.Avatar),
		Discriminator: nullString(a.Discriminator),
		Clan:          nullString(a.Clan),
		PrimaryGuild:  nullString(a.PrimaryGuild),
		Flags:         nullInt(a.Flags),
		Bot:           a.Bot,
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func parseTime(s *string) database.NullTime {
	if s == nil || *s == "" {
		return database.NullTime{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, *s); err == nil {
			return database.NullTime{Time: t.UTC(), Valid: true}
		}
	}
	return database.NullTime{}
}

func marshalRoles(roles []string) sql.NullString {
	if len(roles) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(roles)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
