package models

import (
	"errors"
	"time"
)

// Role is the closed set of account roles. Exactly one role per account;
// roles are used purely for authorization, never for balance logic.
type Role string

const (
	RoleHolder   Role = "holder"
	RoleKiosk    Role = "kiosk"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHolder, RoleKiosk, RoleMerchant, RoleAdmin:
		return true
	}
	return false
}

// Authorizes reports whether the role may perform the given mutation kind.
// ADD requires an issuer-class role, DEDUCT a redeemer-class role; admins
// may do either.
func (r Role) Authorizes(kind MutationKind) bool {
	if r == RoleAdmin {
		return true
	}
	switch kind {
	case KindAdd:
		return r == RoleKiosk
	case KindDeduct:
		return r == RoleMerchant
	}
	return false
}

// MutationKind discriminates the two balance mutations.
type MutationKind string

const (
	KindAdd    MutationKind = "ADD"
	KindDeduct MutationKind = "DEDUCT"
)

// Account represents a user account row.
type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Credits      int64     `json:"credits"`
	CreatedAt    time.Time `json:"created_at"`
}

// RequestRecord is one accepted mutation in the append-only ledger. The
// idempotency key doubles as the primary key: a second insert with the same
// key is rejected by the storage layer before any balance change survives.
type RequestRecord struct {
	IdempotencyKey string       `json:"idempotency_key"`
	ActorID        int64        `json:"actor_id"`
	TargetID       int64        `json:"target_id"`
	Amount         int64        `json:"amount"`
	Kind           MutationKind `json:"kind"`
	CreatedAt      time.Time    `json:"created_at"`
}

// AllowedDenominations is the closed set of amounts a mutation may carry.
// Arbitrary integers are rejected to bound abuse and keep the audit trail
// simple to reason about.
var AllowedDenominations = []int64{1, 5, 10, 20, 50}

// AllowedDenomination reports whether amount is in the enumerated set.
func AllowedDenomination(amount int64) bool {
	for _, d := range AllowedDenominations {
		if amount == d {
			return true
		}
	}
	return false
}

// MutationRequest is the raw payload from the client. Exactly one of
// TargetUsername / UserToken must be set.
type MutationRequest struct {
	Amount         int64  `json:"amount"`
	TargetUsername string `json:"target_username,omitempty"`
	UserToken      string `json:"user_token,omitempty"`
}

// Mutation is the validated, immutable form of a request. Handlers build it
// once; downstream code never re-inspects raw input.
type Mutation struct {
	Kind           MutationKind
	Amount         int64
	IdempotencyKey string
	TargetUsername string
	UserToken      string
}

var (
	ErrAmountNotAllowed = errors.New("amount is not an allowed denomination")
	ErrAmbiguousTarget  = errors.New("exactly one of target_username or user_token required")
)

// Validate checks the closed amount set and the mutually-exclusive target
// fields, returning the typed Mutation on success.
func (r MutationRequest) Validate(kind MutationKind, idempotencyKey string) (Mutation, error) {
	if !AllowedDenomination(r.Amount) {
		return Mutation{}, ErrAmountNotAllowed
	}
	if (r.TargetUsername == "") == (r.UserToken == "") {
		return Mutation{}, ErrAmbiguousTarget
	}
	return Mutation{
		Kind:           kind,
		Amount:         r.Amount,
		IdempotencyKey: idempotencyKey,
		TargetUsername: r.TargetUsername,
		UserToken:      r.UserToken,
	}, nil
}

// MutationResponse is the canonical success payload: the post-mutation balance.
type MutationResponse struct {
	TargetID int64        `json:"target_id"`
	Kind     MutationKind `json:"kind"`
	Amount   int64        `json:"amount"`
	Balance  int64        `json:"balance"`
}

// CredentialsRequest is the register/login payload.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries an issued token and its expiry instant.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
