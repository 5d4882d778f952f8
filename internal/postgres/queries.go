package postgres

const (
	qUserColumns = `id, username, email, display_name, avatar_url, status, last_seen_at, created_at, updated_at`

	qFindUserByID = `
		SELECT ` + qUserColumns + `
		FROM users
		WHERE id = $1`
	qFindUserByEmail = `
		SELECT ` + qUserColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1)
		LIMIT 1`
	qUpdateUserProfile = `
		UPDATE users
		SET display_name = COALESCE($2, display_name),
		    avatar_url   = COALESCE($3, avatar_url),
		    updated_at   = now()
		WHERE id = $1
		RETURNING ` + qUserColumns
)

const (
	qConversationColumns = `c.id, c.type, c.name, c.created_by, c.created_at, c.updated_at`

	qCreateConversation = `
		INSERT INTO conversations (type, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, type, name, created_by, created_at, updated_at`
	qInsertParticipant = `
		INSERT INTO conversation_participants (conversation_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`
	qFindConversationByID = `
		SELECT ` + qConversationColumns + `
		FROM conversations AS c
		WHERE c.id = $1`
	qIsParticipant = `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)`
	qParticipantRole = `
		SELECT role FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2`
	qListConversationsByUser = `
		SELECT ` + qConversationColumns + `
		FROM conversations AS c
		JOIN conversation_participants AS p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC, c.id DESC`
	qListParticipants = `
		SELECT conversation_id, user_id, role, joined_at, last_read_at
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at ASC`
	qDeleteParticipant = `
		DELETE FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2`
)

const (
	qMessageColumns = `id, conversation_id, sender_id, content, reply_to_id, created_at, updated_at, deleted_at`

	qCreateMessage = `
		INSERT INTO messages (conversation_id, sender_id, content, reply_to_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + qMessageColumns
	qTouchConversation = `UPDATE conversations SET updated_at = $2 WHERE id = $1`
	qFindMessageByID   = `
		SELECT ` + qMessageColumns + `
		FROM messages
		WHERE id = $1 AND deleted_at IS NULL`
	qMessageHistory = `
		SELECT ` + qMessageColumns + `
		FROM messages
		WHERE conversation_id = $1
		  AND deleted_at IS NULL
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`
	qUpdateMessage = `
		UPDATE messages
		SET content = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + qMessageColumns
	qSoftDeleteMessage = `
		UPDATE messages
		SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL`
)
