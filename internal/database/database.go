package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"signalhub/internal/migrations"
	"signalhub/internal/models"
	"signalhub/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// InsertMessageEvent persists one message event and its conversation update
// as a single transaction. A uniqueness violation on the dedup key
// (sender, group, gateway timestamp) is not an error; it reports created=false
// and leaves the conversation aggregate untouched.
func (d *Database) InsertMessageEvent(ctx context.Context, event *models.MessageEvent) (int64, bool, error) {
	var attachmentsJSON sql.NullString
	if len(event.Attachments) > 0 {
		data, err := json.Marshal(event.Attachments)
		if err != nil {
			return 0, false, fmt.Errorf("failed to marshal attachments: %w", err)
		}
		attachmentsJSON = sql.NullString{String: string(data), Valid: true}
	}

	var id int64
	var created bool
	err := retryableDBOperation(ctx, func() error {
		var txErr error
		id, created, txErr = d.insertMessageEventTx(ctx, event, attachmentsJSON)
		return txErr
	}, "insert message event")
	if err != nil {
		return 0, false, err
	}
	return id, created, nil
}

func (d *Database) insertMessageEventTx(ctx context.Context, event *models.MessageEvent, attachmentsJSON sql.NullString) (int64, bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, InsertMessageQuery,
		event.SenderNumber,
		nullIfEmpty(event.SenderName),
		event.GroupID,
		nullIfEmpty(event.GroupName),
		event.Timestamp,
		event.Body,
		attachmentsJSON,
		nullIfEmpty(event.RawEnvelope),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get message id: %w", err)
	}

	contactID := event.SenderNumber
	displayName := event.SenderName
	isGroup := false
	if event.GroupID != "" {
		contactID = event.GroupID
		displayName = event.GroupName
		isGroup = true
	}

	lastMessageAt := time.UnixMilli(event.Timestamp).UTC()
	if _, err := tx.ExecContext(ctx, UpsertConversationQuery,
		contactID, displayName, isGroup, lastMessageAt); err != nil {
		return 0, false, fmt.Errorf("failed to upsert conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit message transaction: %w", err)
	}

	return id, true, nil
}

func (d *Database) GetMessageByID(ctx context.Context, id int64) (*models.MessageEvent, error) {
	row := d.db.QueryRowContext(ctx, SelectMessageByIDQuery, id)

	event, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return event, nil
}

// ListMessages returns persisted message events, newest first, optionally
// filtered by sender or group.
func (d *Database) ListMessages(ctx context.Context, query models.MessageQuery) ([]models.MessageEvent, error) {
	sqlQuery := selectMessageColumns
	var conditions []string
	var args []interface{}

	if query.Sender != "" {
		conditions = append(conditions, "sender_number = ?")
		args = append(args, query.Sender)
	}
	if query.Group != "" {
		conditions = append(conditions, "group_id = ?")
		args = append(args, query.Group)
	}
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, query.Limit, query.Offset)

	rows, err := d.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var events []models.MessageEvent
	for rows.Next() {
		event, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

func (d *Database) MarkMessageProcessed(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, MarkMessageProcessedQuery, id); err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

func (d *Database) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, SelectConversationsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

func (d *Database) GetConversation(ctx context.Context, contactID string) (*models.Conversation, error) {
	row := d.db.QueryRowContext(ctx, SelectConversationByContactQuery, contactID)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// LogSentMessage records one outbound send in the sent-message log.
func (d *Database) LogSentMessage(ctx context.Context, sent *models.SentMessage) (int64, error) {
	result, err := d.db.ExecContext(ctx, InsertSentMessageQuery,
		sent.Recipient,
		sent.Body,
		nullIfEmpty(sent.AttachmentPath),
		sent.Status,
		nullIfEmpty(sent.ErrorMessage),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to log sent message: %w", err)
	}
	return result.LastInsertId()
}

func (d *Database) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	stats := &models.Statistics{}

	if err := d.db.QueryRowContext(ctx, CountMessagesQuery).Scan(&stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, CountConversationsQuery).Scan(&stats.TotalConversations); err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, CountMessagesTodayQuery).Scan(&stats.MessagesToday); err != nil {
		return nil, fmt.Errorf("failed to count today's messages: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, SelectTopSendersQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query top senders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stat models.SenderStat
		if err := rows.Scan(&stat.SenderNumber, &stat.SenderName, &stat.Count); err != nil {
			return nil, fmt.Errorf("failed to scan sender stat: %w", err)
		}
		stats.TopSenders = append(stats.TopSenders, stat)
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.MessageEvent, error) {
	var event models.MessageEvent
	var senderName, groupName, attachments, rawEnvelope sql.NullString

	err := row.Scan(
		&event.ID,
		&event.SenderNumber,
		&senderName,
		&event.GroupID,
		&groupName,
		&event.Timestamp,
		&event.ReceivedAt,
		&event.Body,
		&attachments,
		&rawEnvelope,
		&event.Processed,
	)
	if err != nil {
		return nil, err
	}

	event.SenderName = senderName.String
	event.GroupName = groupName.String
	event.RawEnvelope = rawEnvelope.String

	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &event.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}

	return &event, nil
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var conv models.Conversation
	var displayName sql.NullString
	var lastMessageAt sql.NullTime

	err := row.Scan(
		&conv.ID,
		&conv.ContactID,
		&displayName,
		&conv.IsGroup,
		&lastMessageAt,
		&conv.MessageCount,
		&conv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.DisplayName = displayName.String
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		conv.LastMessageAt = &t
	}
	return &conv, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
