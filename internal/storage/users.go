package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"golang.org/x/crypto/bcrypt"
)

// CreateUser registers a user with a bcrypt-hashed password and returns its id.
func (s *Store) CreateUser(ctx context.Context, username, password, email string) (int64, error) {
	s.logger.Debugf("Creating user (%s)", username)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	var id int64
	sql := "insert into users (username, password_hash, email, created_at) values ($1, $2, $3, $4) returning id"
	err = s.db.QueryRow(ctx, sql, username, string(hash), email, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return 0, ErrUserExists
			}
		}
		return 0, err
	}

	s.logger.Debugf("Created user (%s) with id %d", username, id)

	return id, nil
}

// VerifyCredentials checks username/password against the stored bcrypt
// hash and returns the user on success. A missing user and a wrong
// password are indistinguishable to the caller.
func (s *Store) VerifyCredentials(ctx context.Context, username, password string) (*User, error) {
	u, err := s.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotExist) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}

	return u, nil
}

// UserByID returns the user with the provided id.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	sql := `select id, username, password_hash, coalesce(email, ''), is_online, last_seen, created_at
			  from users where id = $1`

	var u User
	err := s.db.QueryRow(ctx, sql, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.Online, &u.LastSeen, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotExist
		}
		return nil, err
	}

	return &u, nil
}

// UserByUsername returns the user with the provided username.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	sql := `select id, username, password_hash, coalesce(email, ''), is_online, last_seen, created_at
			  from users where username = $1`

	var u User
	err := s.db.QueryRow(ctx, sql, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.Online, &u.LastSeen, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotExist
		}
		return nil, err
	}

	return &u, nil
}

// SetUserOnline flips the online flag and refreshes last_seen.
func (s *Store) SetUserOnline(ctx context.Context, id int64, online bool) error {
	s.logger.Debugf("Setting user (id: %d) online=%t", id, online)

	sql := "update users set is_online = $1, last_seen = $2 where id = $3"
	ct, err := s.db.Exec(ctx, sql, online, time.Now(), id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrUserNotExist
	}

	return nil
}

// AllUsers returns every registered user ordered by username.
func (s *Store) AllUsers(ctx context.Context) ([]User, error) {
	sql := `select id, username, coalesce(email, ''), is_online, last_seen, created_at
			  from users order by username`

	return s.scanUsers(ctx, sql)
}

// OnlineUsers returns users currently flagged online ordered by username.
func (s *Store) OnlineUsers(ctx context.Context) ([]User, error) {
	sql := `select id, username, coalesce(email, ''), is_online, last_seen, created_at
			  from users where is_online order by username`

	return s.scanUsers(ctx, sql)
}

// SearchUsers returns users whose username contains the query,
// case-insensitively, ordered by username.
func (s *Store) SearchUsers(ctx context.Context, query string) ([]User, error) {
	sql := `select id, username, coalesce(email, ''), is_online, last_seen, created_at
			  from users where username ilike '%' || $1 || '%' order by username`

	return s.scanUsers(ctx, sql, query)
}

func (s *Store) scanUsers(ctx context.Context, sql string, args ...interface{}) ([]User, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		err = rows.Scan(&u.ID, &u.Username, &u.Email, &u.Online, &u.LastSeen, &u.CreatedAt)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return users, nil
}
