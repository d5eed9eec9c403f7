package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/punchamoorthee/creditops/internal/models"
	"github.com/punchamoorthee/creditops/internal/store"
)

var (
	ErrTargetNotFound      = errors.New("target account not found")
	ErrInvalidTarget       = errors.New("invalid target token")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDuplicateRequest    = errors.New("duplicate request")
)

// ScanVerifier verifies a scan token and returns the subject username.
type ScanVerifier interface {
	VerifyScanToken(token string) (string, error)
}

// MutationService executes credit mutations as atomic, idempotent transactions.
type MutationService struct {
	db     *pgxpool.Pool
	tokens ScanVerifier
	logger zerolog.Logger
}

func NewMutationService(db *pgxpool.Pool, tokens ScanVerifier, logger zerolog.Logger) *MutationService {
	return &MutationService{db: db, tokens: tokens, logger: logger}
}

// ProcessMutation applies one validated credit mutation on behalf of actorID.
// The whole operation runs in a single transaction holding an exclusive row
// lock on the target account, so retries and concurrent actors can never
// double-apply or drive a balance negative.
func (s *MutationService) ProcessMutation(ctx context.Context, actorID int64, mut models.Mutation) (*models.MutationResponse, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Bounded lock wait; a contended row fails fast and the caller retries.
	if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '3s'"); err != nil {
		return nil, fmt.Errorf("lock timeout setup failed: %w", err)
	}

	// 1. Idempotency probe. A known key means the original attempt already
	// committed or is in flight; the original outcome is not re-derived.
	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM credit_requests WHERE idempotency_key = $1)",
		mut.IdempotencyKey,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}
	if exists {
		return nil, ErrDuplicateRequest
	}

	// 2. Resolve and lock the target row.
	targetID, credits, err := s.resolveTarget(ctx, tx, mut)
	if err != nil {
		return nil, err
	}

	// 3. Balance guard. No clamping, no partial deduction.
	if mut.Kind == models.KindDeduct && credits < mut.Amount {
		return nil, ErrInsufficientCredits
	}

	// 4. Apply the delta to the locked row.
	delta := mut.Amount
	if mut.Kind == models.KindDeduct {
		delta = -mut.Amount
	}
	var newBalance int64
	err = tx.QueryRow(ctx,
		"UPDATE accounts SET credits = credits + $1 WHERE id = $2 RETURNING credits",
		delta, targetID,
	).Scan(&newBalance)
	if err != nil {
		return nil, fmt.Errorf("balance update failed: %w", err)
	}

	// 5. Record the accepted request. The primary key on idempotency_key is
	// the storage-level backstop: two identical retries racing past step 1
	// cannot both insert.
	_, err = tx.Exec(ctx,
		`INSERT INTO credit_requests (idempotency_key, actor_id, target_id, amount, kind)
		 VALUES ($1, $2, $3, $4, $5)`,
		mut.IdempotencyKey, actorID, targetID, mut.Amount, mut.Kind,
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("request record insert failed: %w", err)
	}

	// 6. Commit. Any earlier failure rolled the whole transaction back.
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	s.logger.Info().
		Str("kind", string(mut.Kind)).
		Int64("actor_id", actorID).
		Int64("target_id", targetID).
		Int64("amount", mut.Amount).
		Int64("balance", newBalance).
		Msg("mutation committed")

	return &models.MutationResponse{
		TargetID: targetID,
		Kind:     mut.Kind,
		Amount:   mut.Amount,
		Balance:  newBalance,
	}, nil
}
