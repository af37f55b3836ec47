package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by singular getters when no row matches.
// List reads return empty slices instead.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertAuthor inserts or replaces an author row by id.
	UpsertAuthor(ctx context.Context, author *Author) error

	// UpsertMessage inserts or replaces a message row by id. This is the
	// idempotency boundary for ingestion: scalar columns are overwritten,
	// child rows are untouched.
	UpsertMessage(ctx context.Context, message *Message) error

	// Child-entity writes. Attachments, embeds, components, and mentions
	// are insert-only; member, reference, and referenced message are
	// one-per-message upserts.
	InsertAttachment(ctx context.Context, a *Attachment) error
	InsertEmbed(ctx context.Context, e *Embed) error
	InsertComponent(ctx context.Context, c *Component) error
	InsertMention(ctx context.Context, m *Mention) error
	UpsertMember(ctx context.Context, m *Member) error
	UpsertMessageReference(ctx context.Context, r *MessageReference) error
	UpsertReferencedMessage(ctx context.Context, r *ReferencedMessage) error

	// GetMessage retrieves one message joined with its author's display
	// fields. Returns ErrNotFound when the id is unknown.
	GetMessage(ctx context.Context, id string) (*MessageWithAuthor, error)

	// ListMessages retrieves all messages, newest ingestion first.
	ListMessages(ctx context.Context) ([]MessageWithAuthor, error)

	// ListMessagesByAuthor retrieves an author's messages in creation order.
	ListMessagesByAuthor(ctx context.Context, authorID string) ([]MessageWithAuthor, error)

	// ListChannelContext retrieves up to limit messages from a channel,
	// excluding excludeID, ordered by origin timestamp ascending.
	ListChannelContext(ctx context.Context, channelID, excludeID string, limit int) ([]MessageWithAuthor, error)

	// GetAuthor retrieves one author by id. Returns ErrNotFound on a miss.
	GetAuthor(ctx context.Context, id string) (*Author, error)

	// ListAuthors retrieves all authors, alphabetical by username.
	ListAuthors(ctx context.Context) ([]Author, error)

	// Per-message child reads. Singular children return nil, nil when absent.
	ListAttachments(ctx context.Context, messageID string) ([]Attachment, error)
	ListEmbeds(ctx context.Context, messageID string) ([]Embed, error)
	ListComponents(ctx context.Context, messageID string) ([]Component, error)
	ListMentions(ctx context.Context, messageID string) ([]Mention, error)
	GetMember(ctx context.Context, messageID string) (*Member, error)
	GetMessageReference(ctx context.Context, messageID string) (*MessageReference, error)
	GetReferencedMessage(ctx context.Context, parentMessageID string) (*ReferencedMessage, error)

	// ListWindowContexts runs the insight window join: for every message
	// of the user, the other messages in the same channel whose origin
	// timestamp falls within the given window around it. One query, no
	// per-message round trips.
	ListWindowContexts(ctx context.Context, userID string, window time.Duration) ([]WindowContextRow, error)

	// CountDistinctChannels counts the channels a user has messages in.
	CountDistinctChannels(ctx context.Context, userID string) (int, error)

	// InsertUserInsight appends one insight fact for a user.
	InsertUserInsight(ctx context.Context, insight *UserInsight) error

	// ListUserInsights retrieves all stored insight facts for a user.
	ListUserInsights(ctx context.Context, userID string) ([]UserInsight, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// WindowContextRow is one (target message, context message) pair produced
// by the insight window join.
type WindowContextRow struct {
	TargetID string `db:"target_id"`
	MessageWithAuthor
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const messageColumns = `m.id, m.channel_id, m.guild_id, m.content, m.author_id,
       m.message_timestamp, m.edited_timestamp, m.created_at, m.timestamp_local,
       m.flags, m.type, m.pinned, m.tts, m.nonce, m.optimistic, m.is_push_notification,
       a.username AS author_username, a.global_name AS author_global_name, a.avatar AS author_avatar`

const messageFromAuthorJoin = `FROM messages m LEFT JOIN authors a ON a.id = m.author_id`

func (s *sqlxStore) UpsertAuthor(ctx context.Context, author *Author) error {
	if author == nil || author.ID == "" {
		return fmt.Errorf("author must have a non-empty id")
	}

	query := `
        INSERT INTO authors (id, username, global_name, avatar, discriminator, clan, primary_guild, flags, bot)
        VALUES (:id, :username, :global_name, :avatar, :discriminator, :clan, :primary_guild, :flags, :bot)
        ON CONFLICT(id) DO UPDATE SET
            username = excluded.username,
            global_name = excluded.global_name,
            avatar = excluded.avatar,
            discriminator = excluded.discriminator,
            clan = excluded.clan,
            primary_guild = excluded.primary_guild,
            flags = excluded.flags,
            bot = excluded.bot;
    `

	if _, err := s.db.NamedExecContext(ctx, query, author); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting author", "author_id", author.ID, "error", err)
		return fmt.Errorf("failed to upsert author %s: %w", author.ID, err)
	}

	s.logger.DebugContext(ctx, "Author upserted", "author_id", author.ID)
	return nil
}

func (s *sqlxStore) UpsertMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.ID == "" {
		return fmt.Errorf("message must have a non-empty id")
	}
	if message.ChannelID == "" {
		return fmt.Errorf("message must have a non-empty channel_id")
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = Time{Time: time.Now().UTC()}
	}

	query := `
        INSERT INTO messages (
            id, channel_id, guild_id, content, author_id,
            message_timestamp, edited_timestamp, created_at, timestamp_local,
            flags, type, pinned, tts, nonce, optimistic, is_push_notification
        ) VALUES (
            :id, :channel_id, :guild_id, :content, :author_id,
            :message_timestamp, :edited_timestamp, :created_at, :timestamp_local,
            :flags, :type, :pinned, :tts, :nonce, :optimistic, :is_push_notification
        )
        ON CONFLICT(id) DO UPDATE SET
            channel_id = excluded.channel_id,
            guild_id = excluded.guild_id,
            content = excluded.content,
            author_id = excluded.author_id,
            message_timestamp = excluded.message_timestamp,
            edited_timestamp = excluded.edited_timestamp,
            created_at = excluded.created_at,
            timestamp_local = excluded.timestamp_local,
            flags = excluded.flags,
            type = excluded.type,
            pinned = excluded.pinned,
            tts = excluded.tts,
            nonce = excluded.nonce,
            optimistic = excluded.optimistic,
            is_push_notification = excluded.is_push_notification;
    `

	if _, err := s.db.NamedExecContext(ctx, query, message); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting message", "message_id", message.ID, "channel_id", message.ChannelID, "error", err)
		return fmt.Errorf("failed to upsert message %s: %w", message.ID, err)
	}

	s.logger.DebugContext(ctx, "Message upserted", "message_id", message.ID, "channel_id", message.ChannelID)
	return nil
}

func (s *sqlxStore) InsertAttachment(ctx context.Context, a *Attachment) error {
	if a == nil || a.MessageID == "" {
		return fmt.Errorf("attachment must have a non-empty message_id")
	}

	query := `
        INSERT INTO attachments (message_id, attachment_id, filename, url, proxy_url, content_type, size, width, height)
        VALUES (:message_id, :attachment_id, :filename, :url, :proxy_url, :content_type, :size, :width, :height);
    `
	if _, err := s.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("failed to insert attachment for message %s: %w", a.MessageID, err)
	}
	return nil
}

func (s *sqlxStore) InsertEmbed(ctx context.Context, e *Embed) error {
	if e == nil || e.MessageID == "" {
		return fmt.Errorf("embed must have a non-empty message_id")
	}

	query := `
        INSERT INTO embeds (message_id, embed_type, title, description, url, color, raw)
        VALUES (:message_id, :embed_type, :title, :description, :url, :color, :raw);
    `
	if _, err := s.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("failed to insert embed for message %s: %w", e.MessageID, err)
	}
	return nil
}

func (s *sqlxStore) InsertComponent(ctx context.Context, c *Component) error {
	if c == nil || c.MessageID == "" {
		return fmt.Errorf("component must have a non-empty message_id")
	}

	query := `
        INSERT INTO components (message_id, component_type, custom_id, raw)
        VALUES (:message_id, :component_type, :custom_id, :raw);
    `
	if _, err := s.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("failed to insert component for message %s: %w", c.MessageID, err)
	}
	return nil
}

func (s *sqlxStore) InsertMention(ctx context.Context, m *Mention) error {
	if m == nil || m.MessageID == "" {
		return fmt.Errorf("mention must have a non-empty message_id")
	}

	query := `
        INSERT INTO mentions (message_id, user_id, username, global_name)
        VALUES (:message_id, :user_id, :username, :global_name);
    `
	if _, err := s.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("failed to insert mention for message %s: %w", m.MessageID, err)
	}
	return nil
}

func (s *sqlxStore) UpsertMember(ctx context.Context, m *Member) error {
	if m == nil || m.MessageID == "" {
		return fmt.Errorf("member must have a non-empty message_id")
	}

	query := `
        INSERT INTO members (message_id, nick, roles, joined_at, premium_since, pending, flags)
        VALUES (:message_id, :nick, :roles, :joined_at, :premium_since, :pending, :flags)
        ON CONFLICT(message_id) DO UPDATE SET
            nick = excluded.nick,
            roles = excluded.roles,
            joined_at = excluded.joined_at,
            premium_since = excluded.premium_since,
            pending = excluded.pending,
            flags = excluded.flags;
    `
	if _, err := s.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("failed to upsert member for message %s: %w", m.MessageID, err)
	}
	return nil
}

func (s *sqlxStore) UpsertMessageReference(ctx context.Context, r *MessageReference) error {
	if r == nil || r.MessageID == "" {
		return fmt.Errorf("message reference must have a non-empty message_id")
	}

	query := `
        INSERT INTO message_references (message_id, referenced_message_id, referenced_channel_id, referenced_guild_id, reference_type)
        VALUES (:message_id, :referenced_message_id, :referenced_channel_id, :referenced_guild_id, :reference_type)
        ON CONFLICT(message_id) DO UPDATE SET
            referenced_message_id = excluded.referenced_message_id,
            referenced_channel_id = excluded.referenced_channel_id,
            referenced_guild_id = excluded.referenced_guild_id,
            reference_type = excluded.reference_type;
    `
	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("failed to upsert message reference for message %s: %w", r.MessageID, err)
	}
	return nil
}

func (s *sqlxStore) UpsertReferencedMessage(ctx context.Context, r *ReferencedMessage) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("referenced message must have a non-empty id")
	}
	if r.ParentMessageID == "" {
		return fmt.Errorf("referenced message must have a non-empty parent_message_id")
	}

	query := `
        INSERT INTO referenced_messages (id, parent_message_id, channel_id, author_id, content, message_timestamp, type, flags)
        VALUES (:id, :parent_message_id, :channel_id, :author_id, :content, :message_timestamp, :type, :flags)
        ON CONFLICT(id) DO UPDATE SET
            parent_message_id = excluded.parent_message_id,
            channel_id = excluded.channel_id,
            author_id = excluded.author_id,
            content = excluded.content,
            message_timestamp = excluded.message_timestamp,
            type = excluded.type,
            flags = excluded.flags;
    `
	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("failed to upsert referenced message %s: %w", r.ID, err)
	}
	return nil
}

func (s *sqlxStore) GetMessage(ctx context.Context, id string) (*MessageWithAuthor, error) {
	if id == "" {
		return nil, fmt.Errorf("message id cannot be empty")
	}

	var message MessageWithAuthor
	query := `SELECT ` + messageColumns + ` ` + messageFromAuthorJoin + ` WHERE m.id = ?`

	err := s.db.GetContext(ctx, &message, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting message by id", "message_id", id, "error", err)
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	return &message, nil
}

func (s *sqlxStore) ListMessages(ctx context.Context) ([]MessageWithAuthor, error) {
	messages := []MessageWithAuthor{}
	query := `SELECT ` + messageColumns + ` ` + messageFromAuthorJoin + ` ORDER BY m.created_at DESC`

	if err := s.db.SelectContext(ctx, &messages, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing messages", "error", err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	s.logger.DebugContext(ctx, "Listed messages", "count", len(messages))
	return messages, nil
}

func (s *sqlxStore) ListMessagesByAuthor(ctx context.Context, authorID string) ([]MessageWithAuthor, error) {
	if authorID == "" {
		return nil, fmt.Errorf("author id cannot be empty")
	}

	messages := []MessageWithAuthor{}
	query := `SELECT ` + messageColumns + ` ` + messageFromAuthorJoin + ` WHERE m.author_id = ? ORDER BY m.created_at ASC`

	if err := s.db.SelectContext(ctx, &messages, query, authorID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing messages by author", "author_id", authorID, "error", err)
		return nil, fmt.Errorf("failed to list messages for author %s: %w", authorID, err)
	}

	return messages, nil
}

// ListChannelContext returns the first limit other messages of the channel
// in origin-timestamp order. The window is not centered on excludeID; with
// dense history it may fall entirely before or after it.
func (s *sqlxStore) ListChannelContext(ctx context.Context, channelID, excludeID string, limit int) ([]MessageWithAuthor, error) {
	if channelID == "" {
		return nil, fmt.Errorf("channel id cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	messages := []MessageWithAuthor{}
	query := `SELECT ` + messageColumns + ` ` + messageFromAuthorJoin + `
        WHERE m.channel_id = ? AND m.id != ?
        ORDER BY m.message_timestamp ASC
        LIMIT ?`

	if err := s.db.SelectContext(ctx, &messages, query, channelID, excludeID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing channel context", "channel_id", channelID, "error", err)
		return nil, fmt.Errorf("failed to list context for channel %s: %w", channelID, err)
	}

	s.logger.DebugContext(ctx, "Listed channel context", "channel_id", channelID, "count", len(messages))
	return messages, nil
}

func (s *sqlxStore) GetAuthor(ctx context.Context, id string) (*Author, error) {
	if id == "" {
		return nil, fmt.Errorf("author id cannot be empty")
	}

	var author Author
	query := `SELECT id, username, global_name, avatar, discriminator, clan, primary_guild, flags, bot
	          FROM authors WHERE id = ?`

	err := s.db.GetContext(ctx, &author, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("author %s: %w", id, ErrNotFound)
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting author by id", "author_id", id, "error", err)
		return nil, fmt.Errorf("failed to get author %s: %w", id, err)
	}

	return &author, nil
}

func (s *sqlxStore) ListAuthors(ctx context.Context) ([]Author, error) {
	authors := []Author{}
	query := `SELECT id, username, global_name, avatar, discriminator, clan, primary_guild, flags, bot
	          FROM authors ORDER BY username ASC`

	if err := s.db.SelectContext(ctx, &authors, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing authors", "error", err)
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}

	return authors, nil
}

func (s *sqlxStore) ListAttachments(ctx context.Context, messageID string) ([]Attachment, error) {
	attachments := []Attachment{}
	query := `SELECT id, message_id, attachment_id, filename, url, proxy_url, content_type, size, width, height
	          FROM attachments WHERE message_id = ?`

	if err := s.db.SelectContext(ctx, &attachments, query, messageID); err != nil {
		return nil, fmt.Errorf("failed to list attachments for message %s: %w", messageID, err)
	}
	return attachments, nil
}

func (s *sqlxStore) ListEmbeds(ctx context.Context, messageID string) ([]Embed, error) {
	embeds := []Embed{}
	query := `SELECT id, message_id, embed_type, title, description, url, color, raw
	          FROM embeds WHERE message_id = ?`

	if err := s.db.SelectContext(ctx, &embeds, query, messageID); err != nil {
		return nil, fmt.Errorf("failed to list embeds for message %s: %w", messageID, err)
	}
	return embeds, nil
}

func (s *sqlxStore) ListComponents(ctx context.Context, messageID string) ([]Component, error) {
	components := []Component{}
	query := `SELECT id, message_id, component_type, custom_id, raw
	          FROM components WHERE message_id = ?`

	if err := s.db.SelectContext(ctx, &components, query, messageID); err != nil {
		return nil, fmt.Errorf("failed to list components for message %s: %w", messageID, err)
	}
	return components, nil
}

func (s *sqlxStore) ListMentions(ctx context.Context, messageID string) ([]Mention, error) {
	mentions := []Mention{}
	query := `SELECT id, message_id, user_id, username, global_name
	          FROM mentions WHERE message_id = ?`

	if err := s.db.SelectContext(ctx, &mentions, query, messageID); err != nil {
		return nil, fmt.Errorf("failed to list mentions for message %s: %w", messageID, err)
	}
	return mentions, nil
}

func (s *sqlxStore) GetMember(ctx context.Context, messageID string) (*Member, error) {
	var member Member
	query := `SELECT message_id, nick, roles, joined_at, premium_since, pending, flags
	          FROM members WHERE message_id = ?`

	err := s.db.GetContext(ctx, &member, query, messageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// A message without a member snapshot is normal.
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get member for message %s: %w", messageID, err)
	}
	return &member, nil
}

func (s *sqlxStore) GetMessageReference(ctx context.Context, messageID string) (*MessageReference, error) {
	var ref MessageReference
	query := `SELECT message_id, referenced_message_id, referenced_channel_id, referenced_guild_id, reference_type
	          FROM message_references WHERE message_id = ?`

	err := s.db.GetContext(ctx, &ref, query, messageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get message reference for message %s: %w", messageID, err)
	}
	return &ref, nil
}

func (s *sqlxStore) GetReferencedMessage(ctx context.Context, parentMessageID string) (*ReferencedMessage, error) {
	var ref ReferencedMessage
	query := `SELECT id, parent_message_id, channel_id, author_id, content, message_timestamp, type, flags
	          FROM referenced_messages WHERE parent_message_id = ?`

	err := s.db.GetContext(ctx, &ref, query, parentMessageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get referenced message for message %s: %w", parentMessageID, err)
	}
	return &ref, nil
}

// ListWindowContexts joins each of the user's messages with the other
// messages of its channel inside the time window. Replaces the one-query-
// per-message loop with a single self-join statement. The datetime()
// arithmetic and the raw comparisons both rely on timestamp columns being
// stored in the normalized UTC text form (see NullTime).
func (s *sqlxStore) ListWindowContexts(ctx context.Context, userID string, window time.Duration) ([]WindowContextRow, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if window <= 0 {
		window = 5 * time.Minute
	}

	rows := []WindowContextRow{}
	modifier := fmt.Sprintf("%d seconds", int(window.Seconds()))
	query := `
        SELECT t.id AS target_id, ` + messageColumns + `
        FROM messages t
        JOIN messages m ON m.channel_id = t.channel_id
            AND m.id != t.id
            AND m.message_timestamp >= datetime(t.message_timestamp, '-' || ?)
            AND m.message_timestamp <= datetime(t.message_timestamp, '+' || ?)
        LEFT JOIN authors a ON a.id = m.author_id
        WHERE t.author_id = ?
        ORDER BY t.message_timestamp ASC, m.message_timestamp ASC;
    `

	if err := s.db.SelectContext(ctx, &rows, query, modifier, modifier, userID); err != nil {
		s.logger.ErrorContext(ctx, "Error running window context join", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to load window contexts for user %s: %w", userID, err)
	}

	s.logger.DebugContext(ctx, "Loaded window contexts", "user_id", userID, "rows", len(rows))
	return rows, nil
}

func (s *sqlxStore) CountDistinctChannels(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user id cannot be empty")
	}

	var count int
	query := `SELECT COUNT(DISTINCT channel_id) FROM messages WHERE author_id = ?`

	if err := s.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count channels for user %s: %w", userID, err)
	}
	return count, nil
}

func (s *sqlxStore) InsertUserInsight(ctx context.Context, insight *UserInsight) error {
	if insight == nil || insight.UserID == "" || insight.InsightName == "" {
		return fmt.Errorf("insight must have a user_id and insight_name")
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = Time{Time: time.Now().UTC()}
	}

	query := `
        INSERT INTO user_insights (user_id, insight_name, insight_value, created_at)
        VALUES (:user_id, :insight_name, :insight_value, :created_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, insight)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting user insight", "user_id", insight.UserID, "insight_name", insight.InsightName, "error", err)
		return fmt.Errorf("failed to insert insight %s for user %s: %w", insight.InsightName, insight.UserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		insight.ID = id
	}
	return nil
}

func (s *sqlxStore) ListUserInsights(ctx context.Context, userID string) ([]UserInsight, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	insights := []UserInsight{}
	query := `SELECT id, user_id, insight_name, insight_value, created_at
	          FROM user_insights WHERE user_id = ? ORDER BY created_at ASC, id ASC`

	if err := s.db.SelectContext(ctx, &insights, query, userID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing user insights", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list insights for user %s: %w", userID, err)
	}
	return insights, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
