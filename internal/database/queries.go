package database

// Message event queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (
			sender_number, sender_name, group_id, group_name,
			timestamp, message_body, attachments, raw_envelope
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	UpsertConversationQuery = `
		INSERT INTO conversations (contact_id, display_name, is_group, last_message_at, message_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(contact_id) DO UPDATE SET
			display_name = COALESCE(NULLIF(excluded.display_name, ''), display_name),
			last_message_at = excluded.last_message_at,
			message_count = message_count + 1
	`

	selectMessageColumns = `
		SELECT id, sender_number, sender_name, group_id, group_name,
		       timestamp, received_at, message_body, attachments, raw_envelope, processed
		FROM messages
	`

	SelectMessageByIDQuery = selectMessageColumns + `
		WHERE id = ?
	`

	MarkMessageProcessedQuery = `
		UPDATE messages SET processed = 1 WHERE id = ?
	`

	SelectConversationsQuery = `
		SELECT id, contact_id, display_name, is_group, last_message_at, message_count, created_at
		FROM conversations
		ORDER BY last_message_at DESC
	`

	SelectConversationByContactQuery = `
		SELECT id, contact_id, display_name, is_group, last_message_at, message_count, created_at
		FROM conversations
		WHERE contact_id = ?
	`

	InsertSentMessageQuery = `
		INSERT INTO sent_messages (recipient, message_body, attachment_path, status, error_message)
		VALUES (?, ?, ?, ?, ?)
	`
)

// Subscriber queries
const (
	InsertSubscriberQuery = `
		INSERT INTO subscribers (callback_url, secret, active)
		VALUES (?, ?, 1)
	`

	selectSubscriberColumns = `
		SELECT id, callback_url, secret, active, consecutive_failures, created_at, last_notified_at
		FROM subscribers
	`

	SelectSubscriberByIDQuery = selectSubscriberColumns + `
		WHERE id = ?
	`

	SelectSubscriberByURLQuery = selectSubscriberColumns + `
		WHERE callback_url = ?
	`

	SelectActiveSubscribersQuery = selectSubscriberColumns + `
		WHERE active = 1
		ORDER BY id
	`

	SelectAllSubscribersQuery = selectSubscriberColumns + `
		ORDER BY id
	`

	DeactivateSubscriberQuery = `
		UPDATE subscribers SET active = 0 WHERE id = ? AND active = 1
	`

	RecordSubscriberSuccessQuery = `
		UPDATE subscribers
		SET consecutive_failures = 0, last_notified_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	RecordSubscriberFailureQuery = `
		UPDATE subscribers
		SET consecutive_failures = consecutive_failures + 1,
		    active = CASE WHEN consecutive_failures + 1 >= ? THEN 0 ELSE active END
		WHERE id = ?
	`
)

// Statistics queries
const (
	CountMessagesQuery      = `SELECT COUNT(*) FROM messages`
	CountConversationsQuery = `SELECT COUNT(*) FROM conversations`
	CountMessagesTodayQuery = `
		SELECT COUNT(*) FROM messages WHERE DATE(received_at) = DATE('now')
	`
	SelectTopSendersQuery = `
		SELECT sender_number, COALESCE(sender_name, ''), COUNT(*) as count
		FROM messages
		GROUP BY sender_number
		ORDER BY count DESC
		LIMIT 10
	`
)
