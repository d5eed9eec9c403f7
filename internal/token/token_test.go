package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/creditops/internal/models"
)

func newTestAuthority(t *testing.T, sessionTTL, scanTTL time.Duration) *Authority {
	t.Helper()
	a, err := New("test-secret", sessionTTL, "", "", scanTTL)
	require.NoError(t, err)
	require.True(t, a.Ephemeral)
	return a
}

func testAccount() *models.Account {
	return &models.Account{ID: 42, Username: "alice", Role: models.RoleKiosk}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	a := newTestAuthority(t, time.Hour, 72*time.Hour)

	tok, exp, err := a.IssueSessionToken(testAccount())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := a.VerifySessionToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.AccountID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.RoleKiosk, claims.Role)
}

func TestSessionTokenExpired(t *testing.T) {
	a := newTestAuthority(t, -time.Minute, 72*time.Hour)

	tok, _, err := a.IssueSessionToken(testAccount())
	require.NoError(t, err)

	_, err = a.VerifySessionToken(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestSessionTokenTampered(t *testing.T) {
	a := newTestAuthority(t, time.Hour, 72*time.Hour)

	tok, _, err := a.IssueSessionToken(testAccount())
	require.NoError(t, err)

	_, err = a.VerifySessionToken(tok + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionTokenWrongSecret(t *testing.T) {
	a := newTestAuthority(t, time.Hour, 72*time.Hour)
	other, err := New("other-secret", time.Hour, "", "", 72*time.Hour)
	require.NoError(t, err)

	tok, _, err := a.IssueSessionToken(testAccount())
	require.NoError(t, err)

	_, err = other.VerifySessionToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestScanTokenRoundTrip(t *testing.T) {
	a := newTestAuthority(t, time.Hour, 72*time.Hour)

	tok, exp, err := a.IssueScanToken("bob", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), exp, 5*time.Second)

	subject, err := a.VerifyScanToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "bob", subject)
}

func TestScanTokenExpired(t *testing.T) {
	a := newTestAuthority(t, time.Hour, 72*time.Hour)

	tok, _, err := a.IssueScanToken("bob", -time.Minute)
	require.NoError(t, err)

	_, err = a.VerifyScanToken(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestScanTokenWrongKeypair(t *testing.T) {
	a := newTestAuthority(t, time.Hour, 72*time.Hour)
	other := newTestAuthority(t, time.Hour, 72*time.Hour)

	tok, _, err := a.IssueScanToken("bob", 0)
	require.NoError(t, err)

	_, err = other.VerifyScanToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// A session token must never verify as a scan token, and vice versa. The two
// classes use independent keys and signing methods.
func TestTokenClassesAreNotInterchangeable(t *testing.T) {
	a := newTestAuthority(t, time.Hour, 72*time.Hour)

	session, _, err := a.IssueSessionToken(testAccount())
	require.NoError(t, err)
	scan, _, err := a.IssueScanToken("alice", 0)
	require.NoError(t, err)

	_, err = a.VerifyScanToken(session)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.VerifySessionToken(scan)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// A token signed with the correct scan key but carrying the wrong type
// discriminator is structurally valid yet must be rejected as WrongTokenType.
func TestScanTokenWrongTypeDiscriminator(t *testing.T) {
	a := newTestAuthority(t, time.Hour, 72*time.Hour)

	claims := &ScanClaims{
		TokenType: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "mallory",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.scanKey)
	require.NoError(t, err)

	_, err = a.VerifyScanToken(forged)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestScanTokenMissingSubject(t *testing.T) {
	a := newTestAuthority(t, time.Hour, 72*time.Hour)

	claims := &ScanClaims{
		TokenType: scanTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.scanKey)
	require.NoError(t, err)

	_, err = a.VerifyScanToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRequiresSessionSecret(t *testing.T) {
	_, err := New("", time.Hour, "", "", 72*time.Hour)
	assert.Error(t, err)
}
