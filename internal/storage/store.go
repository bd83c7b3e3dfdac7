package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/yusrasengun4/chat-app/internal/storage/zapadapter"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotExist       = errors.New("user does not exist")
	ErrBadCredentials     = errors.New("bad credentials")
	ErrGroupExists        = errors.New("group already exists")
	ErrGroupNotExist      = errors.New("group does not exist")
	ErrGroupBadMembers    = errors.New("bad members list")
	ErrAlreadyMember      = errors.New("user is already a group member")
	ErrMessageBadSender   = errors.New("bad sender id")
	ErrMessageBadReceiver = errors.New("bad receiver id")
	ErrMessageBadGroup    = errors.New("bad group id")
	ErrMessageNotExist    = errors.New("message does not exist")
)

// Store wraps the pgx connection pool and is the durable backing for
// the user directory, the group authorizer and the message log.
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// NewStore sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func NewStore(logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Close releases all pool connections
func (s *Store) Close() {
	s.db.Close()
}
