package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/punchamoorthee/creditops/internal/models"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")
)

// scanTokenType is the type discriminator carried by scan tokens. Session
// tokens never carry it, so neither class can be replayed as the other even
// when both parse structurally.
const scanTokenType = "scan"

// SessionClaims are the claims of a symmetrically signed session token.
type SessionClaims struct {
	AccountID int64       `json:"account_id"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
	jwt.RegisteredClaims
}

// ScanClaims are the claims of an asymmetrically signed scan token. Only the
// subject username and the type tag; never role or balance.
type ScanClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Authority mints and verifies both token classes with independent keys.
type Authority struct {
	sessionSecret []byte
	sessionTTL    time.Duration
	scanKey       *rsa.PrivateKey
	scanPub       *rsa.PublicKey
	scanTTL       time.Duration

	// Ephemeral is true when the scan keypair was generated at startup
	// instead of loaded from operator-supplied files. All outstanding scan
	// tokens are invalidated on every restart in this mode.
	Ephemeral bool
}

// New builds an Authority. keyFile/pubFile name PEM-encoded RSA keys for scan
// tokens; when either is empty an ephemeral keypair is generated and the
// Authority is flagged as such.
func New(sessionSecret string, sessionTTL time.Duration, keyFile, pubFile string, scanTTL time.Duration) (*Authority, error) {
	if sessionSecret == "" {
		return nil, errors.New("session secret is required")
	}
	a := &Authority{
		sessionSecret: []byte(sessionSecret),
		sessionTTL:    sessionTTL,
		scanTTL:       scanTTL,
	}

	if keyFile == "" || pubFile == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("ephemeral keypair generation failed: %w", err)
		}
		a.scanKey = key
		a.scanPub = &key.PublicKey
		a.Ephemeral = true
		return a, nil
	}

	key, err := loadPrivateKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("scan private key: %w", err)
	}
	pub, err := loadPublicKey(pubFile)
	if err != nil {
		return nil, fmt.Errorf("scan public key: %w", err)
	}
	a.scanKey = key
	a.scanPub = pub
	return a, nil
}

// IssueSessionToken mints an HS256 session token for the account.
func (a *Authority) IssueSessionToken(acct *models.Account) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(a.sessionTTL)
	claims := &SessionClaims{
		AccountID: acct.ID,
		Username:  acct.Username,
		Role:      acct.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.sessionSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// VerifySessionToken checks signature and expiry. Verification is stateless;
// identity and role are trusted from the claims for the token's lifetime.
func (a *Authority) VerifySessionToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.sessionSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueScanToken mints an RS256 capability token asserting only "I am this
// account". A zero ttl falls back to the configured default.
func (a *Authority) IssueScanToken(username string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = a.scanTTL
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := &ScanClaims{
		TokenType: scanTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.scanKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// VerifyScanToken checks the asymmetric signature, expiry, and that the type
// discriminator is exactly the scan type. Returns the subject username.
func (a *Authority) VerifyScanToken(tokenString string) (string, error) {
	claims := &ScanClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.scanPub, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if !tok.Valid {
		return "", ErrInvalidToken
	}
	if claims.TokenType != scanTokenType {
		return "", ErrWrongTokenType
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return key, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return pub, nil
}
