package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/punchamoorthee/creditops/internal/models"
)

// resolveTarget resolves the account being credited or debited, from either
// the explicit username or a presented scan token, and locks its row for the
// remainder of the enclosing transaction. Validation already guaranteed that
// exactly one specifier is present.
func (s *MutationService) resolveTarget(ctx context.Context, tx pgx.Tx, mut models.Mutation) (int64, int64, error) {
	username := mut.TargetUsername
	if mut.UserToken != "" {
		subject, err := s.tokens.VerifyScanToken(mut.UserToken)
		if err != nil {
			s.logger.Warn().Err(err).Msg("scan token rejected during target resolution")
			return 0, 0, ErrInvalidTarget
		}
		username = subject
	}

	var id, credits int64
	err := tx.QueryRow(ctx,
		"SELECT id, credits FROM accounts WHERE username = $1 FOR UPDATE",
		username,
	).Scan(&id, &credits)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, 0, ErrTargetNotFound
		}
		return 0, 0, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return id, credits, nil
}
