package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"
)

// sqliteTimeLayout is the canonical text form for every timestamp column:
// UTC, second precision, no zone suffix. SQLite's date functions parse it
// and lexical ordering matches chronological ordering.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// timeScanLayouts covers the canonical form plus the formats older rows or
// external writers may have used.
var timeScanLayouts = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	time.RFC3339,
}

// Time is a non-null timestamp bound to the database as normalized UTC text.
type Time struct {
	time.Time
}

func (t Time) Value() (driver.Value, error) {
	return t.UTC().Format(sqliteTimeLayout), nil
}

func (t *Time) Scan(value any) error {
	var nt NullTime
	if err := nt.Scan(value); err != nil {
		return err
	}
	t.Time = nt.Time
	return nil
}

// NullTime is a nullable timestamp bound to the database as normalized UTC
// text. The field shape mirrors sql.NullTime.
type NullTime struct {
	Time  time.Time
	Valid bool
}

func (t NullTime) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time.UTC().Format(sqliteTimeLayout), nil
}

func (t *NullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*t = NullTime{}
		return nil
	case time.Time:
		*t = NullTime{Time: v.UTC(), Valid: true}
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into NullTime", value)
	}
}

func (t *NullTime) parse(s string) error {
	if s == "" {
		*t = NullTime{}
		return nil
	}
	for _, layout := range timeScanLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = NullTime{Time: parsed.UTC(), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as a timestamp", s)
}

// Message is one archived chat message. The id comes from the host
// platform and doubles as the idempotency key for ingestion: writing
// the same id again replaces the scalar columns in place.
type Message struct {
	ID        string `db:"id"         json:"id"`
	ChannelID string `db:"channel_id" json:"channel_id"`
	GuildID   string `db:"guild_id"   json:"guild_id"`
	CreatedAt Time   `db:"created_at" json:"created_at"`

	Content  sql.NullString `db:"content"   json:"content"`
	AuthorID sql.NullString `db:"author_id" json:"author_id"`

	MessageTimestamp NullTime       `db:"message_timestamp" json:"message_timestamp"`
	EditedTimestamp  NullTime       `db:"edited_timestamp"  json:"edited_timestamp"`
	TimestampLocal   sql.NullString `db:"timestamp_local"   json:"timestamp_local"`

	Flags              sql.NullInt64  `db:"flags"                json:"flags"`
	Type               sql.NullInt64  `db:"type"                 json:"type"`
	Pinned             bool           `db:"pinned"               json:"pinned"`
	TTS                bool           `db:"tts"                  json:"tts"`
	Nonce              sql.NullString `db:"nonce"                json:"nonce"`
	Optimistic         bool           `db:"optimistic"           json:"optimistic"`
	IsPushNotification bool           `db:"is_push_notification" json:"is_push_notification"`
}

// MessageWithAuthor joins a message with its author's display fields.
type MessageWithAuthor struct {
	Message
	AuthorUsername   sql.NullString `db:"author_username"    json:"author_username"`
	AuthorGlobalName sql.NullString `db:"author_global_name" json:"author_global_name"`
	AuthorAvatar     sql.NullString `db:"author_avatar"      json:"author_avatar"`
}

// Author is the profile snapshot of a message sender. One author row may
// be referenced by many messages; it is upserted independently of them.
type Author struct {
	ID            string         `db:"id"            json:"id"`
	Username      sql.NullString `db:"username"      json:"username"`
	GlobalName    sql.NullString `db:"global_name"   json:"global_name"`
	Avatar        sql.NullString `db:"avatar"        json:"avatar"`
	Discriminator sql.NullString `db:"discriminator" json:"discriminator"`
	Clan          sql.NullString `db:"clan"          json:"clan"`
	PrimaryGuild  sql.NullString `db:"primary_guild" json:"primary_guild"`
	Flags         sql.NullInt64  `db:"flags"         json:"flags"`
	Bot           bool           `db:"bot"           json:"bot"`
}

// Attachment is a file attached to a message. Insert-only.
type Attachment struct {
	ID           int64          `db:"id"            json:"id"`
	MessageID    string         `db:"message_id"    json:"message_id"`
	AttachmentID sql.NullString `db:"attachment_id" json:"attachment_id"`
	Filename     sql.NullString `db:"filename"      json:"filename"`
	URL          sql.NullString `db:"url"           json:"url"`
	ProxyURL     sql.NullString `db:"proxy_url"     json:"proxy_url"`
	ContentType  sql.NullString `db:"content_type"  json:"content_type"`
	Size         sql.NullInt64  `db:"size"          json:"size"`
	Width        sql.NullInt64  `db:"width"         json:"width"`
	Height       sql.NullInt64  `db:"height"        json:"height"`
}

// Embed is a rich embed rendered inside a message. Insert-only; the raw
// column keeps the original JSON blob for fields the schema does not model.
type Embed struct {
	ID          int64          `db:"id"          json:"id"`
	MessageID   string         `db:"message_id"  json:"message_id"`
	EmbedType   sql.NullString `db:"embed_type"  json:"embed_type"`
	Title       sql.NullString `db:"title"       json:"title"`
	Description sql.NullString `db:"description" json:"description"`
	URL         sql.NullString `db:"url"         json:"url"`
	Color       sql.NullInt64  `db:"color"       json:"color"`
	Raw         sql.NullString `db:"raw"         json:"raw"`
}

// Component is an interactive UI component attached to a message. Insert-only.
type Component struct {
	ID            int64          `db:"id"             json:"id"`
	MessageID     string         `db:"message_id"     json:"message_id"`
	ComponentType sql.NullInt64  `db:"component_type" json:"component_type"`
	CustomID      sql.NullString `db:"custom_id"      json:"custom_id"`
	Raw           sql.NullString `db:"raw"            json:"raw"`
}

// Mention is a user mentioned in a message. Insert-only.
type Mention struct {
	ID         int64          `db:"id"          json:"id"`
	MessageID  string         `db:"message_id"  json:"message_id"`
	UserID     sql.NullString `db:"user_id"     json:"user_id"`
	Username   sql.NullString `db:"username"    json:"username"`
	GlobalName sql.NullString `db:"global_name" json:"global_name"`
}

// Member is the author's guild-membership snapshot at send time.
// At most one per message, keyed by message_id.
type Member struct {
	MessageID    string         `db:"message_id"    json:"message_id"`
	Nick         sql.NullString `db:"nick"          json:"nick"`
	Roles        sql.NullString `db:"roles"         json:"roles"`
	JoinedAt     NullTime       `db:"joined_at"     json:"joined_at"`
	PremiumSince NullTime       `db:"premium_since" json:"premium_since"`
	Pending      bool           `db:"pending"       json:"pending"`
	Flags        sql.NullInt64  `db:"flags"         json:"flags"`
}

// MessageReference is the reply-link of a message. At most one per message.
type MessageReference struct {
	MessageID           string         `db:"message_id"            json:"message_id"`
	ReferencedMessageID sql.NullString `db:"referenced_message_id" json:"referenced_message_id"`
	ReferencedChannelID sql.NullString `db:"referenced_channel_id" json:"referenced_channel_id"`
	ReferencedGuildID   sql.NullString `db:"referenced_guild_id"   json:"referenced_guild_id"`
	ReferenceType       sql.NullInt64  `db:"reference_type"        json:"reference_type"`
}

// ReferencedMessage is a denormalized snapshot of the message a reply
// points at, kept under its own id with a back-pointer to the parent.
type ReferencedMessage struct {
	ID               string         `db:"id"                json:"id"`
	ParentMessageID  string         `db:"parent_message_id" json:"parent_message_id"`
	ChannelID        sql.NullString `db:"channel_id"        json:"channel_id"`
	AuthorID         sql.NullString `db:"author_id"         json:"author_id"`
	Content          sql.NullString `db:"content"           json:"content"`
	MessageTimestamp NullTime       `db:"message_timestamp" json:"message_timestamp"`
	Type             sql.NullInt64  `db:"type"              json:"type"`
	Flags            sql.NullInt64  `db:"flags"             json:"flags"`
}

// UserInsight is one append-only key/value fact about a user.
type UserInsight struct {
	ID           int64  `db:"id"            json:"id"`
	UserID       string `db:"user_id"       json:"user_id"`
	InsightName  string `db:"insight_name"  json:"insight_name"`
	InsightValue string `db:"insight_value" json:"insight_value"`
	CreatedAt    Time   `db:"created_at"    json:"created_at"`
}
