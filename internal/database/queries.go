package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const (
	appendMessageQuery = `
		WITH m AS (
			INSERT INTO messages (room_id, account_id, content, iv, ct, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, room_id, account_id, content, iv, ct, created_at
		)
		SELECT m.id, m.room_id, COALESCE(m.account_id, 0), COALESCE(a.username, ''),
			m.content, COALESCE(m.iv, ''), COALESCE(m.ct, ''), m.created_at
		FROM m LEFT JOIN accounts a ON a.id = m.account_id`

	lastMessagesQuery = `
		SELECT id, room_id, account_id, username, content, iv, ct, created_at FROM (
			SELECT m.id, m.room_id, COALESCE(m.account_id, 0) AS account_id,
				COALESCE(a.username, '') AS username, m.content,
				COALESCE(m.iv, '') AS iv, COALESCE(m.ct, '') AS ct, m.created_at
			FROM messages m
			LEFT JOIN accounts a ON a.id = m.account_id
			WHERE m.room_id = $1
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`
)

func (db *PgRelayRepository) CreateAccount(params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, created_at, updated_at",
		params.Username,
		params.PasswordHash,
		now,
		now,
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return User{}, ErrUsernameTaken
	}

	return u, err
}

func (db *PgRelayRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgRelayRepository) GetAccountByUsername(username string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at, updated_at FROM accounts "+
			"WHERE username = $1 LIMIT 1",
		username,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

// GetOrCreateRoom returns the room called name, inserting it if needed. The
// upsert is a single statement so concurrent first joins share one row. It
// also bumps updated_at, which records room activity.
func (db *PgRelayRepository) GetOrCreateRoom(name string) (Room, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO rooms (name, created_at, updated_at) VALUES ($1, $2, $2) "+
			"ON CONFLICT (name) DO UPDATE SET updated_at = EXCLUDED.updated_at "+
			"RETURNING id, name, created_at, updated_at",
		name,
		now,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return Room{}, fmt.Errorf("upsert room %q: %w", name, err)
	}

	return room, nil
}

func (db *PgRelayRepository) GetRoomByName(name string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, created_at, updated_at FROM rooms WHERE name = $1 LIMIT 1",
		name,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

// LastMessages returns at most limit messages for the room, oldest first.
func (db *PgRelayRepository) LastMessages(roomId, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(lastMessagesQuery, roomId, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.AccountId,
			&msg.Username,
			&msg.Content,
			&msg.IV,
			&msg.CT,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

func (db *PgRelayRepository) AppendMessage(params AppendMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res := tx.QueryRow(
		appendMessageQuery,
		params.RoomId,
		sql.NullInt64{Int64: int64(params.AccountId), Valid: params.AccountId > 0},
		params.Content,
		sql.NullString{String: params.IV, Valid: params.IV != ""},
		sql.NullString{String: params.CT, Valid: params.CT != ""},
		createdAt,
	)

	var msg Message
	err = res.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.AccountId,
		&msg.Username,
		&msg.Content,
		&msg.IV,
		&msg.CT,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	_, err = tx.Exec("UPDATE rooms SET updated_at = $1 WHERE id = $2", createdAt, params.RoomId)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgRelayRepository) ListRoomKeys(roomId int) ([]RoomKey, error) {
	rows, err := db.conn.Query(
		"SELECT k.account_id, a.username, k.public_key FROM room_keys k "+
			"JOIN accounts a ON a.id = k.account_id WHERE k.room_id = $1 ORDER BY k.id",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys = make([]RoomKey, 0)
	for rows.Next() {
		var key RoomKey
		if err := rows.Scan(&key.AccountId, &key.Username, &key.PublicKey); err != nil {
			return nil, fmt.Errorf("scan room key: %w", err)
		}

		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// UpsertRoomKey stores the account's public key for the room, replacing any
// previous key for the same pair.
func (db *PgRelayRepository) UpsertRoomKey(params UpsertRoomKeyParams) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec(
		"INSERT INTO room_keys (room_id, account_id, public_key, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) "+
			"ON CONFLICT (room_id, account_id) DO UPDATE "+
			"SET public_key = EXCLUDED.public_key, updated_at = EXCLUDED.updated_at",
		params.RoomId,
		params.AccountId,
		params.PublicKey,
		now,
	)

	return err
}
