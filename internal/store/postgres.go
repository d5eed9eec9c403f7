package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/creditops/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrUsernameTaken   = errors.New("username already taken")
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type Store struct {
	Db *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// CreateAccount creates a new account with 0 credits. The credential hash is
// opaque to the store; it is computed by the auth package.
func (s *Store) CreateAccount(ctx context.Context, username, passwordHash string, role models.Role) (*models.Account, error) {
	var acct models.Account
	err := s.Db.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash, role, credits)
		 VALUES ($1, $2, $3, 0)
		 RETURNING id, username, password_hash, role, credits, created_at`,
		username, passwordHash, role,
	).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role, &acct.Credits, &acct.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("account insert failed: %w", err)
	}
	return &acct, nil
}

// GetAccountByUsername retrieves a single account by its unique username.
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.scanAccount(s.Db.QueryRow(ctx,
		`SELECT id, username, password_hash, role, credits, created_at
		 FROM accounts WHERE username = $1`, username))
}

// GetAccountByID retrieves a single account by ID.
func (s *Store) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.scanAccount(s.Db.QueryRow(ctx,
		`SELECT id, username, password_hash, role, credits, created_at
		 FROM accounts WHERE id = $1`, id))
}

func (s *Store) scanAccount(row pgx.Row) (*models.Account, error) {
	var acct models.Account
	err := row.Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role, &acct.Credits, &acct.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// GetEntries retrieves the accepted-request records touching an account,
// newest first. This is the audit view of the request ledger.
func (s *Store) GetEntries(ctx context.Context, accountID int64) ([]models.RequestRecord, error) {
	var exists bool
	err := s.Db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)", accountID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrAccountNotFound
	}

	rows, err := s.Db.Query(ctx,
		`SELECT idempotency_key, actor_id, target_id, amount, kind, created_at
		 FROM credit_requests
		 WHERE actor_id = $1 OR target_id = $1
		 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.RequestRecord
	for rows.Next() {
		var rec models.RequestRecord
		if err := rows.Scan(&rec.IdempotencyKey, &rec.ActorID, &rec.TargetID, &rec.Amount, &rec.Kind, &rec.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, rec)
	}
	return entries, rows.Err()
}
