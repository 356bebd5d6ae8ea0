package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/edulink/classchat/internal/types"
)

const messageColumns = "id, room_id, sender_id, sender_name, sender_role, content, " +
	"attachment, reply_to, mentions, created_at, edited, edited_at, pinned, pinned_at, pinned_by"

func (db *PgTenantRepository) ListRooms() ([]RoomRecord, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, kind, teachers, members, class_codes, group_names, created_at " +
			"FROM rooms ORDER BY created_at",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []RoomRecord
	for rows.Next() {
		var r RoomRecord
		if err := rows.Scan(
			&r.Id,
			&r.Name,
			&r.Kind,
			&r.Teachers,
			&r.Members,
			&r.ClassCodes,
			&r.Groups,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

func (db *PgTenantRepository) GetRoom(id string) (RoomRecord, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, kind, teachers, members, class_codes, group_names, created_at "+
			"FROM rooms WHERE id = $1 LIMIT 1",
		id,
	)

	var r RoomRecord
	err := row.Scan(
		&r.Id,
		&r.Name,
		&r.Kind,
		&r.Teachers,
		&r.Members,
		&r.ClassCodes,
		&r.Groups,
		&r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return RoomRecord{}, ErrNotFound
	}

	return r, err
}

func (db *PgTenantRepository) CreateRoom(params CreateRoomParams) (RoomRecord, error) {
	row := db.conn.QueryRow(
		"INSERT INTO rooms (id, name, kind, teachers, members, class_codes, group_names, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) "+
			"RETURNING id, name, kind, teachers, members, class_codes, group_names, created_at",
		params.Id,
		params.Name,
		params.Kind,
		params.Teachers,
		params.Members,
		params.ClassCodes,
		params.Groups,
		time.Now().UTC(),
	)

	var r RoomRecord
	err := row.Scan(
		&r.Id,
		&r.Name,
		&r.Kind,
		&r.Teachers,
		&r.Members,
		&r.ClassCodes,
		&r.Groups,
		&r.CreatedAt,
	)

	return r, err
}

func (db *PgTenantRepository) CreateMessage(msg types.Message) error {
	attachment, err := marshalNullable(msg.Attachment)
	if err != nil {
		return fmt.Errorf("marshal attachment: %w", err)
	}
	replyTo, err := marshalNullable(msg.ReplyTo)
	if err != nil {
		return fmt.Errorf("marshal reply_to: %w", err)
	}

	var mentions []byte
	if len(msg.Mentions) > 0 {
		mentions, err = json.Marshal(msg.Mentions)
		if err != nil {
			return fmt.Errorf("marshal mentions: %w", err)
		}
	}

	_, err = db.conn.Exec(
		"INSERT INTO messages (id, room_id, sender_id, sender_name, sender_role, content, "+
			"attachment, reply_to, mentions, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		msg.Id,
		msg.RoomId,
		msg.Sender.Id,
		msg.Sender.Name,
		string(msg.Sender.Role),
		msg.Content,
		attachment,
		replyTo,
		mentions,
		msg.CreatedAt,
	)

	return err
}

func (db *PgTenantRepository) GetMessage(id string) (types.Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return types.Message{}, ErrNotFound
	}
	if err != nil {
		return types.Message{}, err
	}

	msgs := []types.Message{msg}
	if err := db.hydrateMessages(msgs); err != nil {
		return types.Message{}, err
	}

	return msgs[0], nil
}

func (db *PgTenantRepository) DeleteMessage(id string) error {
	res, err := db.conn.Exec("DELETE FROM messages WHERE id = $1", id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgTenantRepository) UpdateMessageContent(id, senderId, content string, editedAt time.Time) error {
	res, err := db.conn.Exec(
		"UPDATE messages SET content = $3, edited = TRUE, edited_at = $4 "+
			"WHERE id = $1 AND sender_id = $2",
		id,
		senderId,
		content,
		editedAt,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// ToggleReaction serializes concurrent toggles on the same message by
// locking the message row for the duration of the transaction.
func (db *PgTenantRepository) ToggleReaction(messageId, emoji string, actor types.Reactor) (map[string][]types.Reactor, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRow("SELECT id FROM messages WHERE id = $1 FOR UPDATE", messageId).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// Clear any existing reaction by this user. The primary key guarantees
	// at most one row, so the returned emoji (if any) is the prior bucket.
	var prior sql.NullString
	err = tx.QueryRow(
		"DELETE FROM message_reactions WHERE message_id = $1 AND account_id = $2 RETURNING emoji",
		messageId,
		actor.UserId,
	).Scan(&prior)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	if !prior.Valid || prior.String != emoji {
		_, err = tx.Exec(
			"INSERT INTO message_reactions (message_id, account_id, account_name, emoji) "+
				"VALUES ($1, $2, $3, $4)",
			messageId,
			actor.UserId,
			actor.Name,
			emoji,
		)
		if err != nil {
			return nil, err
		}
	}

	reactions, err := readReactions(tx, messageId)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return reactions, nil
}

func readReactions(tx *sql.Tx, messageId string) (map[string][]types.Reactor, error) {
	rows, err := tx.Query(
		"SELECT account_id, account_name, emoji FROM message_reactions WHERE message_id = $1",
		messageId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reactions := make(map[string][]types.Reactor)
	for rows.Next() {
		var r types.Reactor
		var emoji string
		if err := rows.Scan(&r.UserId, &r.Name, &emoji); err != nil {
			return nil, err
		}
		reactions[emoji] = append(reactions[emoji], r)
	}

	return reactions, rows.Err()
}

// MarkRead is a single atomic sweep: concurrent unread-count queries observe
// either the pre- or post-sweep state, never a partial one.
func (db *PgTenantRepository) MarkRead(roomId, userId string) error {
	_, err := db.conn.Exec(
		"INSERT INTO message_reads (message_id, account_id) "+
			"SELECT id, $2 FROM messages WHERE room_id = $1 AND sender_id <> $2 "+
			"ON CONFLICT DO NOTHING",
		roomId,
		userId,
	)

	return err
}

func (db *PgTenantRepository) UnreadCount(roomId, userId string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages m WHERE m.room_id = $1 AND m.sender_id <> $2 "+
			"AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.account_id = $2)",
		roomId,
		userId,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

func (db *PgTenantRepository) UnreadCounts(userId string) (map[string]int, error) {
	rows, err := db.conn.Query(
		"SELECT m.room_id, COUNT(*) FROM messages m WHERE m.sender_id <> $1 "+
			"AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.account_id = $1) "+
			"GROUP BY m.room_id",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var roomId string
		var count int
		if err := rows.Scan(&roomId, &count); err != nil {
			return nil, err
		}
		counts[roomId] = count
	}

	return counts, rows.Err()
}

// PinMessage enforces the per-room pin cap inside one transaction: the
// currently pinned rows are locked, so two concurrent pins cannot both pass
// the capacity check.
func (db *PgTenantRepository) PinMessage(messageId, pinnedBy string, pinnedAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var roomId string
	var pinned bool
	err = tx.QueryRow(
		"SELECT room_id, pinned FROM messages WHERE id = $1 FOR UPDATE",
		messageId,
	).Scan(&roomId, &pinned)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if pinned {
		return tx.Commit()
	}

	rows, err := tx.Query(
		"SELECT id FROM messages WHERE room_id = $1 AND pinned FOR UPDATE",
		roomId,
	)
	if err != nil {
		return err
	}

	var pinnedCount int
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		pinnedCount++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if pinnedCount >= MaxPinnedPerRoom {
		return ErrPinLimit
	}

	_, err = tx.Exec(
		"UPDATE messages SET pinned = TRUE, pinned_at = $2, pinned_by = $3 WHERE id = $1",
		messageId,
		pinnedAt,
		pinnedBy,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgTenantRepository) UnpinMessage(messageId string) error {
	res, err := db.conn.Exec(
		"UPDATE messages SET pinned = FALSE, pinned_at = NULL, pinned_by = '' WHERE id = $1",
		messageId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgTenantRepository) PinnedMessages(roomId string) ([]types.Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages WHERE room_id = $1 AND pinned "+
			"ORDER BY pinned_at DESC",
		roomId,
	)
	if err != nil {
		return nil, err
	}

	return db.collectMessages(rows)
}

func (db *PgTenantRepository) Messages(roomId string, before time.Time, limit int) ([]types.Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages WHERE room_id = $1 AND created_at < $2 "+
			"ORDER BY created_at DESC LIMIT $3",
		roomId,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}

	return db.collectMessages(rows)
}

func (db *PgTenantRepository) SearchMessages(roomId, query string, limit int) ([]types.Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages WHERE room_id = $1 AND content ILIKE '%' || $2 || '%' "+
			"ORDER BY created_at DESC LIMIT $3",
		roomId,
		query,
		limit,
	)
	if err != nil {
		return nil, err
	}

	return db.collectMessages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (types.Message, error) {
	var (
		msg        types.Message
		role       string
		attachment []byte
		replyTo    []byte
		mentions   []byte
		editedAt   sql.NullTime
		pinnedAt   sql.NullTime
	)

	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.Sender.Id,
		&msg.Sender.Name,
		&role,
		&msg.Content,
		&attachment,
		&replyTo,
		&mentions,
		&msg.CreatedAt,
		&msg.Edited,
		&editedAt,
		&msg.Pinned,
		&pinnedAt,
		&msg.PinnedBy,
	)
	if err != nil {
		return types.Message{}, err
	}

	msg.Sender.Role = types.Role(role)
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if pinnedAt.Valid {
		t := pinnedAt.Time
		msg.PinnedAt = &t
	}

	if len(attachment) > 0 {
		msg.Attachment = &types.Attachment{}
		if err := json.Unmarshal(attachment, msg.Attachment); err != nil {
			return types.Message{}, fmt.Errorf("unmarshal attachment: %w", err)
		}
	}
	if len(replyTo) > 0 {
		msg.ReplyTo = &types.ReplyRef{}
		if err := json.Unmarshal(replyTo, msg.ReplyTo); err != nil {
			return types.Message{}, fmt.Errorf("unmarshal reply_to: %w", err)
		}
	}
	if len(mentions) > 0 {
		if err := json.Unmarshal(mentions, &msg.Mentions); err != nil {
			return types.Message{}, fmt.Errorf("unmarshal mentions: %w", err)
		}
	}

	msg.ReadBy = []string{}
	msg.Reactions = make(map[string][]types.Reactor)

	return msg, nil
}

func (db *PgTenantRepository) collectMessages(rows *sql.Rows) ([]types.Message, error) {
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.hydrateMessages(msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

// hydrateMessages attaches the read set and reaction map to each message
// with two batched queries instead of a round trip per message.
func (db *PgTenantRepository) hydrateMessages(msgs []types.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]string, len(msgs))
	index := make(map[string]*types.Message, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].Id
		index[msgs[i].Id] = &msgs[i]
	}

	readRows, err := db.conn.Query(
		"SELECT message_id, account_id FROM message_reads WHERE message_id = ANY($1)",
		pq.Array(ids),
	)
	if err != nil {
		return err
	}
	for readRows.Next() {
		var messageId, accountId string
		if err := readRows.Scan(&messageId, &accountId); err != nil {
			readRows.Close()
			return err
		}
		if msg, ok := index[messageId]; ok {
			msg.ReadBy = append(msg.ReadBy, accountId)
		}
	}
	readRows.Close()
	if err := readRows.Err(); err != nil {
		return err
	}

	reactionRows, err := db.conn.Query(
		"SELECT message_id, account_id, account_name, emoji FROM message_reactions WHERE message_id = ANY($1)",
		pq.Array(ids),
	)
	if err != nil {
		return err
	}
	for reactionRows.Next() {
		var messageId, emoji string
		var r types.Reactor
		if err := reactionRows.Scan(&messageId, &r.UserId, &r.Name, &emoji); err != nil {
			reactionRows.Close()
			return err
		}
		if msg, ok := index[messageId]; ok {
			msg.Reactions[emoji] = append(msg.Reactions[emoji], r)
		}
	}
	reactionRows.Close()

	return reactionRows.Err()
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case *types.Attachment:
		if val == nil {
			return nil, nil
		}
	case *types.ReplyRef:
		if val == nil {
			return nil, nil
		}
	}

	return json.Marshal(v)
}
