package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

const messageColumns = `m.id, m.sender_id, trim(u.username), m.receiver_id, m.group_id,
		m.content, m.content_hash, m.kind, m.status, m.is_offline,
		m.created_at, m.delivered_at, m.read_at`

// CreateMessage appends a message row and returns its id. The caller
// provides kind, content, content hash and the kind-consistent
// receiver/group references; status starts at sent.
func (s *Store) CreateMessage(ctx context.Context, m *Message) (int64, error) {
	s.logger.Debugf("Creating %s message from user (id: %d)", m.Kind, m.Sender)

	var id int64
	sql := `insert into messages
			(sender_id, receiver_id, group_id, content, content_hash, kind, status, is_offline, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9) returning id`
	err := s.db.QueryRow(ctx, sql,
		m.Sender, m.Receiver, m.Group, m.Content, m.ContentHash, m.Kind, StatusSent, m.Offline, time.Now()).
		Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.ForeignKeyViolation:
				switch pgErr.ConstraintName {
				case "messages_sender_id_fkey":
					return 0, ErrMessageBadSender
				case "messages_receiver_id_fkey":
					return 0, ErrMessageBadReceiver
				case "messages_group_id_fkey":
					return 0, ErrMessageBadGroup
				}
			}
		}
		return 0, err
	}

	return id, nil
}

// MarkMessageDelivered transitions a message from sent to delivered,
// stamps delivered_at and clears the offline flag in one statement.
// Messages already delivered or read are left untouched (transitions
// are forward-only), which makes the call idempotent.
func (s *Store) MarkMessageDelivered(ctx context.Context, id int64) error {
	s.logger.Debugf("Marking message (id: %d) delivered", id)

	sql := `update messages
			   set status = $1, delivered_at = $2, is_offline = false
			 where id = $3 and status = $4`
	_, err := s.db.Exec(ctx, sql, StatusDelivered, time.Now(), id, StatusSent)
	return err
}

// MarkMessageRead transitions a message to read and stamps read_at.
// Valid from both sent and delivered; marking an already-read message
// is a no-op. delivered_at is never touched here.
func (s *Store) MarkMessageRead(ctx context.Context, id int64) error {
	s.logger.Debugf("Marking message (id: %d) read", id)

	sql := `update messages
			   set status = $1, read_at = $2, is_offline = false
			 where id = $3 and status in ($4, $5)`
	_, err := s.db.Exec(ctx, sql, StatusRead, time.Now(), id, StatusSent, StatusDelivered)
	return err
}

// SetMessageOffline flips the offline-pending flag of a message.
func (s *Store) SetMessageOffline(ctx context.Context, id int64, offline bool) error {
	s.logger.Debugf("Setting message (id: %d) offline=%t", id, offline)

	sql := "update messages set is_offline = $1 where id = $2"
	ct, err := s.db.Exec(ctx, sql, offline, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrMessageNotExist
	}

	return nil
}

// BroadcastMessages returns up to limit most recent broadcast messages
// ordered from oldest to newest.
func (s *Store) BroadcastMessages(ctx context.Context, limit int) ([]Message, error) {
	sql := `select ` + messageColumns + `
			  from messages m
			  join users u on m.sender_id = u.id
			 where m.kind = $1
			 order by m.created_at desc
			 limit $2`

	messages, err := s.scanMessages(ctx, sql, KindBroadcast, limit)
	if err != nil {
		return nil, err
	}

	return reverseMessages(messages), nil
}

// GroupMessages returns up to limit most recent messages of a group
// ordered from oldest to newest.
func (s *Store) GroupMessages(ctx context.Context, group int64, limit int) ([]Message, error) {
	sql := `select ` + messageColumns + `
			  from messages m
			  join users u on m.sender_id = u.id
			 where m.kind = $1 and m.group_id = $2
			 order by m.created_at desc
			 limit $3`

	messages, err := s.scanMessages(ctx, sql, KindGroup, group, limit)
	if err != nil {
		return nil, err
	}

	return reverseMessages(messages), nil
}

// PrivateMessages returns up to limit most recent private messages
// exchanged between the two users, ordered from oldest to newest.
func (s *Store) PrivateMessages(ctx context.Context, user, peer int64, limit int) ([]Message, error) {
	sql := `select ` + messageColumns + `
			  from messages m
			  join users u on m.sender_id = u.id
			 where m.kind = $1
			   and ((m.sender_id = $2 and m.receiver_id = $3)
					or (m.sender_id = $3 and m.receiver_id = $2))
			 order by m.created_at desc
			 limit $4`

	messages, err := s.scanMessages(ctx, sql, KindPrivate, user, peer, limit)
	if err != nil {
		return nil, err
	}

	return reverseMessages(messages), nil
}

// OfflineMessages returns every offline-pending private message
// addressed to the user, oldest first, so drain order matches send order.
func (s *Store) OfflineMessages(ctx context.Context, user int64) ([]Message, error) {
	s.logger.Debugf("Retrieving offline-pending messages for user (id: %d)", user)

	sql := `select ` + messageColumns + `
			  from messages m
			  join users u on m.sender_id = u.id
			 where m.receiver_id = $1 and m.is_offline
			 order by m.created_at asc`

	return s.scanMessages(ctx, sql, user)
}

func (s *Store) scanMessages(ctx context.Context, sql string, args ...interface{}) ([]Message, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.ID, &m.Sender, &m.SenderName, &m.Receiver, &m.Group,
			&m.Content, &m.ContentHash, &m.Kind, &m.Status, &m.Offline,
			&m.CreatedAt, &m.DeliveredAt, &m.ReadAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return messages, nil
}

func reverseMessages(messages []Message) []Message {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages
}
